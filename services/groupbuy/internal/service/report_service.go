package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/report"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Reports struct {
	Participant *report.ParticipantReport `json:"participant"`
	Supplier    *report.SupplierReport    `json:"supplier"`
}

type ReportService interface {
	Build(ctx context.Context, groupOrderID int64) (*Reports, error)
}

type reportService struct {
	orders         repository.GroupOrderRepository
	participations repository.ParticipationRepository
	users          repository.UserRepository
	tx             db.Transactor
	logger         *zap.Logger
	tracer         trace.Tracer
}

func NewReportService(
	orders repository.GroupOrderRepository,
	participations repository.ParticipationRepository,
	users repository.UserRepository,
	tx db.Transactor,
	logger *zap.Logger,
) ReportService {
	return &reportService{
		orders:         orders,
		participations: participations,
		users:          users,
		tx:             tx,
		logger:         logger,
		tracer:         otel.Tracer("groupbuy/report_service"),
	}
}

// Build reads the whole snapshot inside one repeatable-read transaction and
// derives both reports from it.
func (s *reportService) Build(ctx context.Context, groupOrderID int64) (*Reports, error) {
	ctx, span := s.tracer.Start(ctx, "ReportService.Build")
	defer span.End()

	span.SetAttributes(attribute.Int64("group_order_id", groupOrderID))

	var snap domain.ReportSnapshot
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := s.tx.InTx(ctx, opts, func(q db.Querier) error {
		order, err := s.orders.GetByID(ctx, q, groupOrderID)
		if err != nil {
			if errors.Is(err, repository.ErrGroupOrderNotFound) {
				return ErrGroupOrderNotFound
			}
			return err
		}

		participations, err := s.participations.ListByGroupOrder(ctx, q, groupOrderID)
		if err != nil {
			return err
		}

		userIDs := make([]int64, 0, len(participations))
		for _, p := range participations {
			userIDs = append(userIDs, p.UserID)
		}

		users, err := s.users.GetByIDs(ctx, q, userIDs)
		if err != nil {
			return err
		}

		snap = domain.ReportSnapshot{Order: *order, Participations: participations, Users: users}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	reports := &Reports{
		Participant: report.BuildParticipantReport(&snap.Order, snap.Participations, snap.Users),
		Supplier:    report.BuildSupplierReport(&snap.Order, snap.Participations),
	}

	mylogger.Debug(
		ctx,
		s.logger,
		"Reports built",
		zap.Int64("group_order_id", groupOrderID),
		zap.Int("participants", reports.Participant.ParticipantCount),
		zap.Int("products", reports.Supplier.DistinctProducts),
	)

	return reports, nil
}
