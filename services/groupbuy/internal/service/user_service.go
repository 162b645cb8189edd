package service

import (
	"context"
	"errors"

	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/repository"
)

// UserService is a read-only directory used by reports and the admin panel.
type UserService interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context, limit, offset int64) ([]domain.User, int64, error)
}

type userService struct {
	users repository.UserRepository
	pool  db.Querier
}

func NewUserService(users repository.UserRepository, pool db.Querier) UserService {
	return &userService{users: users, pool: pool}
}

func (s *userService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, s.pool, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

func (s *userService) List(ctx context.Context, limit, offset int64) ([]domain.User, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	return s.users.List(ctx, s.pool, limit, offset)
}
