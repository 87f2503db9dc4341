package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/auth"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
)

type UserService struct {
	store repo.Store
	tm    *auth.TokenManager
	log   *slog.Logger
}

func NewUserService(store repo.Store, tm *auth.TokenManager, log *slog.Logger) *UserService {
	return &UserService{store: store, tm: tm, log: log}
}

// Register creates the user and their empty wallet together.
func (s *UserService) Register(ctx context.Context, username, email, password string) (models.User, error) {
	u := models.User{
		Username: strings.TrimSpace(username),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Role:     models.RoleUser,
	}
	if err := u.Validate(); err != nil {
		return models.User{}, apperr.BadRequest(err.Error())
	}
	if len(password) < auth.MinPasswordLen {
		return models.User{}, apperr.BadRequest("password too short")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, apperr.Internal("hash password", err)
	}
	u.PasswordHash = hash

	err = s.store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		u, err = r.Users.Create(ctx, u)
		if err != nil {
			return err
		}
		if _, err := r.Wallets.Create(ctx, u.ID); err != nil {
			return err
		}
		return audit(ctx, r, "user", u.ID, u.ID, "registered", map[string]any{"email": u.Email})
	})
	if err != nil {
		return models.User{}, err
	}
	s.log.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login checks the credentials and issues a token pair. Unknown emails and
// wrong passwords fail the same way.
func (s *UserService) Login(ctx context.Context, email, password string) (auth.Pair, models.User, error) {
	u, err := s.store.Repos().Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return auth.Pair{}, models.User{}, apperr.Forbidden("invalid credentials")
		}
		return auth.Pair{}, models.User{}, err
	}
	if err := auth.VerifyPassword(password, u.PasswordHash); err != nil {
		return auth.Pair{}, models.User{}, apperr.Forbidden("invalid credentials")
	}
	p, err := s.tm.GeneratePair(u.ID, u.Role)
	if err != nil {
		return auth.Pair{}, models.User{}, apperr.Internal("issue token", err)
	}
	return p, u, nil
}

func (s *UserService) Refresh(refreshToken string) (auth.Pair, error) {
	p, err := s.tm.Refresh(refreshToken)
	if err != nil {
		return auth.Pair{}, apperr.Forbidden("invalid refresh token")
	}
	return p, nil
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	return s.store.Repos().Users.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.Repos().Users.List(ctx, limit, offset)
}
