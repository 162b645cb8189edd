package service

import (
	"context"
	"errors"
	"strings"
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

type CreateGroupOrderInput struct {
	Title       string
	Description string
	OpeningTime *time.Time
	Deadline    time.Time
	CreatedBy   int64
}

// GroupOrderPatch leaves nil fields untouched. ClearOpeningTime removes the
// opening time and wins over OpeningTime.
type GroupOrderPatch struct {
	Title            *string
	Description      *string
	Deadline         *time.Time
	OpeningTime      *time.Time
	ClearOpeningTime bool
	Status           *domain.Status
}

func (p *GroupOrderPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.Deadline == nil &&
		p.OpeningTime == nil && !p.ClearOpeningTime && p.Status == nil
}

type SweepResult struct {
	Opened []domain.GroupOrder
	Closed []domain.GroupOrder
}

// LifecycleService owns group order status. Status is level-triggered: every
// read path sweeps first, so a stored status can lag wall-clock time only
// until the next read or explicit sweep.
type LifecycleService interface {
	Create(ctx context.Context, in CreateGroupOrderInput) (*domain.GroupOrder, error)
	Update(ctx context.Context, id int64, patch GroupOrderPatch) (*domain.GroupOrder, error)
	Delete(ctx context.Context, id int64) (int64, error)
	Get(ctx context.Context, id int64) (*domain.GroupOrder, error)
	ListActive(ctx context.Context) ([]domain.GroupOrder, error)
	List(ctx context.Context, filter repository.GroupOrderFilter) ([]domain.GroupOrder, error)
	Sweep(ctx context.Context, now time.Time) (*SweepResult, error)
	// SweepNow sweeps at the service clock's current time.
	SweepNow(ctx context.Context) (*SweepResult, error)
}

type lifecycleService struct {
	orders         repository.GroupOrderRepository
	participations repository.ParticipationRepository
	pool           db.Querier
	tx             db.Transactor
	notifier       Notifier
	activity       *activityRecorder
	now            Clock
	logger         *zap.Logger
	tracer         trace.Tracer
}

func NewLifecycleService(
	orders repository.GroupOrderRepository,
	participations repository.ParticipationRepository,
	activity repository.ActivityRepository,
	pool db.Querier,
	tx db.Transactor,
	notifier Notifier,
	now Clock,
	logger *zap.Logger,
) LifecycleService {
	if now == nil {
		now = time.Now
	}

	return &lifecycleService{
		orders:         orders,
		participations: participations,
		pool:           pool,
		tx:             tx,
		notifier:       notifier,
		activity:       &activityRecorder{repo: activity, q: pool, logger: logger},
		now:            now,
		logger:         logger,
		tracer:         otel.Tracer("groupbuy/lifecycle_service"),
	}
}

func (s *lifecycleService) Create(ctx context.Context, in CreateGroupOrderInput) (*domain.GroupOrder, error) {
	ctx, span := s.tracer.Start(ctx, "LifecycleService.Create")
	defer span.End()

	now := s.now()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if in.Deadline.IsZero() {
		return nil, ErrDeadlineRequired
	}
	if !in.Deadline.After(now) {
		return nil, ErrDeadlineNotInFuture
	}
	if !domain.ValidWindow(in.OpeningTime, in.Deadline) {
		return nil, ErrInvalidWindow
	}

	order := &domain.GroupOrder{
		Title:       title,
		Description: in.Description,
		OpeningTime: in.OpeningTime,
		Deadline:    in.Deadline,
		CreatedBy:   in.CreatedBy,
	}
	order.Status = domain.ComputeStatus(order, now)

	if err := s.orders.Create(ctx, s.pool, order); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("group_order_id", order.ID),
		attribute.String("status", string(order.Status)),
	)

	mylogger.Info(
		ctx,
		s.logger,
		"Group order created",
		zap.Int64("group_order_id", order.ID),
		zap.String("status", string(order.Status)),
	)

	s.activity.record(ctx, "group_order.create", "group_order", order.ID, map[string]any{
		"title":    order.Title,
		"deadline": order.Deadline,
	})

	if order.Status == domain.StatusOpen {
		s.emitStatus(ctx, order, now)
	}

	return order, nil
}

func (s *lifecycleService) Update(ctx context.Context, id int64, patch GroupOrderPatch) (*domain.GroupOrder, error) {
	ctx, span := s.tracer.Start(ctx, "LifecycleService.Update")
	defer span.End()

	span.SetAttributes(attribute.Int64("group_order_id", id))

	if patch.empty() {
		return nil, ErrEmptyPatch
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, ErrTitleRequired
	}
	if patch.Status != nil && *patch.Status != domain.StatusOpen && *patch.Status != domain.StatusClosed {
		return nil, ErrInvalidStatus
	}

	now := s.now()

	var (
		updated  *domain.GroupOrder
		previous domain.Status
	)
	err := s.tx.InTx(ctx, pgx.TxOptions{}, func(q db.Querier) error {
		order, err := s.orders.GetForUpdate(ctx, q, id)
		if err != nil {
			if errors.Is(err, repository.ErrGroupOrderNotFound) {
				return ErrGroupOrderNotFound
			}
			return err
		}
		previous = order.Status

		datesChanged := false
		if patch.Title != nil {
			order.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			order.Description = *patch.Description
		}
		if patch.Deadline != nil {
			order.Deadline = *patch.Deadline
			datesChanged = true
		}
		if patch.ClearOpeningTime {
			order.OpeningTime = nil
			datesChanged = true
		} else if patch.OpeningTime != nil {
			opening := *patch.OpeningTime
			order.OpeningTime = &opening
			datesChanged = true
		}

		if datesChanged && !domain.ValidWindow(order.OpeningTime, order.Deadline) {
			return ErrInvalidWindow
		}

		switch {
		case patch.Status != nil && *patch.Status == domain.StatusOpen:
			if !order.Deadline.After(now) {
				return ErrDeadlinePassed
			}
			// Opening early moves the window start to now so the stored
			// status and the computed one agree.
			if order.OpeningTime != nil && now.Before(*order.OpeningTime) {
				opening := now
				order.OpeningTime = &opening
			}
			order.Status = domain.StatusOpen
		case patch.Status != nil:
			order.Status = domain.StatusClosed
		case datesChanged && order.Status != domain.StatusClosed:
			order.Status = domain.ComputeStatus(order, now)
		}

		if err := s.orders.Update(ctx, q, order); err != nil {
			return err
		}

		updated = order
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.activity.record(ctx, "group_order.update", "group_order", id, map[string]any{
		"from_status": previous,
		"to_status":   updated.Status,
	})

	if updated.Status != previous {
		mylogger.Info(
			ctx,
			s.logger,
			"Group order status changed",
			zap.Int64("group_order_id", id),
			zap.String("from", string(previous)),
			zap.String("to", string(updated.Status)),
		)

		s.emitStatus(ctx, updated, now)
	}

	return updated, nil
}

func (s *lifecycleService) Delete(ctx context.Context, id int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "LifecycleService.Delete")
	defer span.End()

	span.SetAttributes(attribute.Int64("group_order_id", id))

	var removed int64
	err := s.tx.InTx(ctx, pgx.TxOptions{}, func(q db.Querier) error {
		if _, err := s.orders.GetForUpdate(ctx, q, id); err != nil {
			if errors.Is(err, repository.ErrGroupOrderNotFound) {
				return ErrGroupOrderNotFound
			}
			return err
		}

		n, err := s.participations.DeleteByGroupOrder(ctx, q, id)
		if err != nil {
			return err
		}

		if err := s.orders.Delete(ctx, q, id); err != nil {
			if errors.Is(err, repository.ErrGroupOrderNotFound) {
				return ErrGroupOrderNotFound
			}
			return err
		}

		removed = n
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Group order deleted",
		zap.Int64("group_order_id", id),
		zap.Int64("removed_participations", removed),
	)

	s.activity.record(ctx, "group_order.delete", "group_order", id, map[string]any{
		"removed_participations": removed,
	})

	return removed, nil
}

func (s *lifecycleService) Get(ctx context.Context, id int64) (*domain.GroupOrder, error) {
	s.sweepOnRead(ctx)

	order, err := s.orders.GetByID(ctx, s.pool, id)
	if err != nil {
		if errors.Is(err, repository.ErrGroupOrderNotFound) {
			return nil, ErrGroupOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

func (s *lifecycleService) ListActive(ctx context.Context) ([]domain.GroupOrder, error) {
	return s.List(ctx, repository.GroupOrderFilter{
		Statuses: []domain.Status{domain.StatusScheduled, domain.StatusOpen},
	})
}

func (s *lifecycleService) List(ctx context.Context, filter repository.GroupOrderFilter) ([]domain.GroupOrder, error) {
	s.sweepOnRead(ctx)

	return s.orders.List(ctx, s.pool, filter)
}

// Sweep applies every pending time-based transition. Both updates are
// conditional on the current stored status, so concurrent sweeps never
// report the same transition twice.
func (s *lifecycleService) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "LifecycleService.Sweep")
	defer span.End()

	result := &SweepResult{}
	err := s.tx.InTx(ctx, pgx.TxOptions{}, func(q db.Querier) error {
		closed, err := s.orders.CloseExpired(ctx, q, now)
		if err != nil {
			return err
		}

		opened, err := s.orders.OpenDue(ctx, q, now)
		if err != nil {
			return err
		}

		result.Closed = closed
		result.Opened = opened
		return nil
	})
	if err != nil {
		span.RecordError(err)

		mylogger.Error(ctx, s.logger, "Sweep failed", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("opened", len(result.Opened)),
		attribute.Int("closed", len(result.Closed)),
	)

	if len(result.Opened)+len(result.Closed) > 0 {
		mylogger.Info(
			ctx,
			s.logger,
			"Sweep transitioned group orders",
			zap.Int("opened", len(result.Opened)),
			zap.Int("closed", len(result.Closed)),
		)
	}

	for i := range result.Closed {
		s.emitStatus(ctx, &result.Closed[i], now)
	}
	for i := range result.Opened {
		s.emitStatus(ctx, &result.Opened[i], now)
	}

	return result, nil
}

func (s *lifecycleService) SweepNow(ctx context.Context) (*SweepResult, error) {
	return s.Sweep(ctx, s.now())
}

func (s *lifecycleService) sweepOnRead(ctx context.Context) {
	if _, err := s.SweepNow(ctx); err != nil {
		mylogger.Warn(ctx, s.logger, "Sweep on read failed, serving stored status", zap.Error(err))
	}
}

func (s *lifecycleService) emitStatus(ctx context.Context, order *domain.GroupOrder, now time.Time) {
	var eventType string
	switch order.Status {
	case domain.StatusOpen:
		eventType = generalDomain.EventOrderOpened
	case domain.StatusClosed:
		eventType = generalDomain.EventOrderClosed
	default:
		return
	}

	notify(ctx, s.notifier, s.logger, domain.NotificationEvent{
		Type:         eventType,
		GroupOrderID: order.ID,
		Payload: generalDomain.GroupOrderStatusEvent{
			GroupOrderID: order.ID,
			Title:        order.Title,
			Description:  order.Description,
			OpeningTime:  order.OpeningTime,
			Deadline:     order.Deadline,
			Status:       string(order.Status),
			ChangedAt:    now,
		},
	})
}
