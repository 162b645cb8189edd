package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/groupbuy/pkg/db"
	generalDomain "github.com/sakashimaa/groupbuy/pkg/domain"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type JoinInput struct {
	UserID       int64
	GroupOrderID int64
	Selections   []domain.Selection
}

type JoinResult struct {
	Participation *domain.Participation
	Created       bool
}

type ParticipationView struct {
	Participating bool              `json:"participating"`
	Items         []domain.LineItem `json:"items,omitempty"`
	TotalAmount   int64             `json:"total_amount"`
	ItemCount     int64             `json:"item_count"`
}

type ParticipationOptions struct {
	AllowLeaveAfterClose bool
}

type ParticipationService interface {
	Join(ctx context.Context, in JoinInput) (*JoinResult, error)
	Leave(ctx context.Context, userID, groupOrderID int64) (bool, error)
	GetParticipation(ctx context.Context, userID, groupOrderID int64) (*ParticipationView, error)
}

type participationService struct {
	orders         repository.GroupOrderRepository
	participations repository.ParticipationRepository
	products       repository.ProductRepository
	pool           db.Querier
	tx             db.Transactor
	notifier       Notifier
	now            Clock
	opts           ParticipationOptions
	logger         *zap.Logger
	tracer         trace.Tracer
}

func NewParticipationService(
	orders repository.GroupOrderRepository,
	participations repository.ParticipationRepository,
	products repository.ProductRepository,
	pool db.Querier,
	tx db.Transactor,
	notifier Notifier,
	now Clock,
	opts ParticipationOptions,
	logger *zap.Logger,
) ParticipationService {
	if now == nil {
		now = time.Now
	}

	return &participationService{
		orders:         orders,
		participations: participations,
		products:       products,
		pool:           pool,
		tx:             tx,
		notifier:       notifier,
		now:            now,
		opts:           opts,
		logger:         logger,
		tracer:         otel.Tracer("groupbuy/participation_service"),
	}
}

// Join creates the user's participation or replaces its line items
// wholesale. Prices are read from the catalog now and frozen on the items.
func (s *participationService) Join(ctx context.Context, in JoinInput) (*JoinResult, error) {
	ctx, span := s.tracer.Start(ctx, "ParticipationService.Join")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", in.UserID),
		attribute.Int64("group_order_id", in.GroupOrderID),
		attribute.Int("selections", len(in.Selections)),
	)

	var (
		result JoinResult
		order  *domain.GroupOrder
	)
	err := s.tx.InTx(ctx, pgx.TxOptions{}, func(q db.Querier) error {
		var err error
		order, err = s.orders.GetForShare(ctx, q, in.GroupOrderID)
		if err != nil {
			if errors.Is(err, repository.ErrGroupOrderNotFound) {
				return ErrGroupOrderNotFound
			}
			return err
		}

		if err := checkAcceptsParticipation(order, s.now()); err != nil {
			return err
		}

		ids, err := validateSelections(in.Selections)
		if err != nil {
			return err
		}

		products, err := s.products.GetByIDs(ctx, q, ids)
		if err != nil {
			return err
		}

		p := &domain.Participation{
			UserID:       in.UserID,
			GroupOrderID: in.GroupOrderID,
			Items:        make([]domain.LineItem, 0, len(in.Selections)),
		}
		for _, sel := range in.Selections {
			product, ok := products[sel.ProductID]
			if !ok {
				return &ProductNotFoundError{ProductID: sel.ProductID}
			}
			p.Items = append(p.Items, domain.NewLineItem(&product, sel.Quantity))
		}
		p.CalculateTotal()

		created, err := s.participations.Upsert(ctx, q, p)
		if err != nil {
			return err
		}

		if err := s.participations.ReplaceItems(ctx, q, p.ID, p.Items); err != nil {
			return err
		}

		result = JoinResult{Participation: p, Created: created}
		return nil
	})
	if err != nil {
		span.RecordError(err)

		mylogger.Warn(
			ctx,
			s.logger,
			"Join rejected",
			zap.Int64("user_id", in.UserID),
			zap.Int64("group_order_id", in.GroupOrderID),
			zap.String("code", Code(err)),
			zap.Error(err),
		)

		return nil, err
	}

	p := result.Participation
	mylogger.Info(
		ctx,
		s.logger,
		"Participation saved",
		zap.Int64("participation_id", p.ID),
		zap.Int64("user_id", p.UserID),
		zap.Int64("group_order_id", p.GroupOrderID),
		zap.Int64("total_amount", p.TotalAmount),
		zap.Bool("created", result.Created),
	)

	s.emitConfirmation(ctx, order, p, !result.Created)

	return &result, nil
}

func (s *participationService) Leave(ctx context.Context, userID, groupOrderID int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ParticipationService.Leave")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("group_order_id", groupOrderID),
	)

	var removed bool
	err := s.tx.InTx(ctx, pgx.TxOptions{}, func(q db.Querier) error {
		order, err := s.orders.GetForShare(ctx, q, groupOrderID)
		if err != nil {
			if errors.Is(err, repository.ErrGroupOrderNotFound) {
				return ErrGroupOrderNotFound
			}
			return err
		}

		if !s.opts.AllowLeaveAfterClose &&
			(order.Status == domain.StatusClosed || domain.ComputeStatus(order, s.now()) == domain.StatusClosed) {
			return ErrOrderClosed
		}

		removed, err = s.participations.Delete(ctx, q, userID, groupOrderID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	span.SetAttributes(attribute.Bool("removed", removed))
	if removed {
		mylogger.Info(
			ctx,
			s.logger,
			"Participation removed",
			zap.Int64("user_id", userID),
			zap.Int64("group_order_id", groupOrderID),
		)
	}

	return removed, nil
}

func (s *participationService) GetParticipation(ctx context.Context, userID, groupOrderID int64) (*ParticipationView, error) {
	if _, err := s.orders.GetByID(ctx, s.pool, groupOrderID); err != nil {
		if errors.Is(err, repository.ErrGroupOrderNotFound) {
			return nil, ErrGroupOrderNotFound
		}
		return nil, err
	}

	p, err := s.participations.Get(ctx, s.pool, userID, groupOrderID)
	if err != nil {
		if errors.Is(err, repository.ErrParticipationNotFound) {
			return &ParticipationView{Participating: false}, nil
		}
		return nil, err
	}

	return &ParticipationView{
		Participating: true,
		Items:         p.Items,
		TotalAmount:   p.TotalAmount,
		ItemCount:     p.ItemCount(),
	}, nil
}

func (s *participationService) emitConfirmation(ctx context.Context, order *domain.GroupOrder, p *domain.Participation, updated bool) {
	items := make([]generalDomain.ConfirmationItem, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, generalDomain.ConfirmationItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}

	notify(ctx, s.notifier, s.logger, domain.NotificationEvent{
		Type:         generalDomain.EventOrderConfirmation,
		GroupOrderID: order.ID,
		Payload: generalDomain.OrderConfirmationEvent{
			ParticipationID: p.ID,
			GroupOrderID:    order.ID,
			GroupOrderTitle: order.Title,
			UserID:          p.UserID,
			Deadline:        order.Deadline,
			Items:           items,
			TotalAmount:     p.TotalAmount,
			Updated:         updated,
		},
	})
}

// checkAcceptsParticipation recomputes the status from the order's window
// instead of trusting the stored value, which may lag behind a sweep.
func checkAcceptsParticipation(order *domain.GroupOrder, now time.Time) error {
	if order.AcceptsParticipation(now) {
		return nil
	}

	switch domain.ComputeStatus(order, now) {
	case domain.StatusClosed:
		return ErrDeadlinePassed
	case domain.StatusScheduled:
		return ErrOrderNotOpen
	}

	return ErrOrderClosed
}

func validateSelections(selections []domain.Selection) ([]int64, error) {
	if len(selections) == 0 {
		return nil, ErrEmptySelection
	}

	seen := make(map[int64]struct{}, len(selections))
	ids := make([]int64, 0, len(selections))
	for _, sel := range selections {
		if sel.ProductID <= 0 {
			return nil, ErrInvalidProduct.withDetail("id %d", sel.ProductID)
		}
		if sel.Quantity < 1 {
			return nil, ErrInvalidQuantity.withDetail("product %d", sel.ProductID)
		}
		if _, dup := seen[sel.ProductID]; dup {
			return nil, ErrDuplicateProduct.withDetail("product %d", sel.ProductID)
		}

		seen[sel.ProductID] = struct{}{}
		ids = append(ids, sel.ProductID)
	}

	return ids, nil
}
