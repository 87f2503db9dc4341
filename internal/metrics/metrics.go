package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Auctions
	BidsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_bids_total",
			Help: "Total accepted bids",
		},
	)
	AuctionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auctions_closed_total",
			Help: "Closed auctions by result",
		},
		[]string{"result"}, // won|no_bids
	)

	// Settlement
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Committed settlement transitions",
		},
		[]string{"kind"}, // payment|remainder|completion|refund|cancel
	)
	SettlementsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_failed_total",
			Help: "Settlement attempts rolled back",
		},
		[]string{"kind"},
	)

	// Gateway
	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_callbacks_total",
			Help: "Payment gateway callbacks by outcome",
		},
		[]string{"outcome"},
	)

	// Background work
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_total",
			Help: "Post-settlement tasks by type and result",
		},
		[]string{"type", "result"},
	)
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

var Handler = promhttp.Handler

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(register)
}

func register() {
	prometheus.MustRegister(HTTPLatency)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(BidsTotal)
	prometheus.MustRegister(AuctionsClosed)
	prometheus.MustRegister(SettlementsTotal)
	prometheus.MustRegister(SettlementsFailed)
	prometheus.MustRegister(CallbacksTotal)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(WorkerQueueDepth)
}
