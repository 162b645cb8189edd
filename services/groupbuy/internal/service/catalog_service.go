package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/repository"
	"go.uber.org/zap"
)

type CatalogService interface {
	Create(ctx context.Context, product *domain.Product) (int64, error)
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
	List(ctx context.Context, limit, offset int64, search string) ([]domain.Product, int64, error)
	Update(ctx context.Context, id int64, input *domain.UpdateProductInput) (*domain.Product, error)
	Delete(ctx context.Context, id int64) error
}

type catalogService struct {
	products repository.ProductRepository
	pool     db.Querier
	activity *activityRecorder
	logger   *zap.Logger
}

func NewCatalogService(
	products repository.ProductRepository,
	activity repository.ActivityRepository,
	pool db.Querier,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		products: products,
		pool:     pool,
		activity: &activityRecorder{repo: activity, q: pool, logger: logger},
		logger:   logger,
	}
}

var ErrProductNameRequired = newError(ErrValidation, "NAME_REQUIRED", "product name is required")
var ErrNegativePrice = newError(ErrValidation, "INVALID_PRICE", "price must not be negative")

func (s *catalogService) Create(ctx context.Context, product *domain.Product) (int64, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		return 0, ErrProductNameRequired
	}
	if product.Price < 0 {
		return 0, ErrNegativePrice
	}

	id, err := s.products.Create(ctx, s.pool, product)
	if err != nil {
		return 0, err
	}

	mylogger.Info(ctx, s.logger, "Product created", zap.Int64("product_id", id))
	s.activity.record(ctx, "product.create", "product", id, map[string]any{"name": product.Name, "price": product.Price})

	return id, nil
}

func (s *catalogService) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, s.pool, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrCatalogNotFound
		}
		return nil, err
	}

	return product, nil
}

func (s *catalogService) List(ctx context.Context, limit, offset int64, search string) ([]domain.Product, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.products.List(ctx, s.pool, limit, offset, strings.TrimSpace(search))
}

func (s *catalogService) Update(ctx context.Context, id int64, input *domain.UpdateProductInput) (*domain.Product, error) {
	if input.Empty() {
		return nil, ErrEmptyPatch
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, ErrProductNameRequired
	}
	if input.Price != nil && *input.Price < 0 {
		return nil, ErrNegativePrice
	}

	if err := s.products.Update(ctx, s.pool, id, input); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrCatalogNotFound
		}
		return nil, err
	}

	s.activity.record(ctx, "product.update", "product", id, input)

	return s.FindByID(ctx, id)
}

func (s *catalogService) Delete(ctx context.Context, id int64) error {
	err := s.products.DeleteByID(ctx, s.pool, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			mylogger.Warn(ctx, s.logger, "product not found", zap.Int64("product_id", id))
			return ErrCatalogNotFound
		}

		mylogger.Error(ctx, s.logger, "error deleting product", zap.Error(err))
		return err
	}

	s.activity.record(ctx, "product.delete", "product", id, nil)
	return nil
}
