package worker

import (
	"github.com/hibiken/asynq"
)

// Server consumes the asynq queues.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewServer(opt asynq.RedisClientOpt, concurrency int, h *Handlers) *Server {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})
	mux := asynq.NewServeMux()
	h.Register(mux)
	return &Server{server: srv, mux: mux}
}

// Run blocks until the process receives SIGTERM or SIGINT.
func (s *Server) Run() error { return s.server.Run(s.mux) }
