package handler

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/report"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"go.uber.org/zap"
)

type ReportHandler struct {
	reports service.ReportService
	timeout time.Duration
	logger  *zap.Logger
}

func NewReportHandler(reports service.ReportService, timeout time.Duration, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *ReportHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	reports, err := h.reports.Build(ctx, id)
	if err != nil {
		return writeError(ctx, c, h.logger, "build reports failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(reports)
}

func (h *ReportHandler) SupplierCSV(c *fiber.Ctx) error {
	return h.csv(c, "supplier", func(buf *bytes.Buffer, r *service.Reports) error {
		return report.WriteSupplierCSV(buf, r.Supplier)
	})
}

func (h *ReportHandler) ParticipantsCSV(c *fiber.Ctx) error {
	return h.csv(c, "participants", func(buf *bytes.Buffer, r *service.Reports) error {
		return report.WriteParticipantCSV(buf, r.Participant)
	})
}

func (h *ReportHandler) csv(c *fiber.Ctx, kind string, write func(*bytes.Buffer, *service.Reports) error) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	reports, err := h.reports.Build(ctx, id)
	if err != nil {
		return writeError(ctx, c, h.logger, "build reports failed", err)
	}

	var buf bytes.Buffer
	if err := write(&buf, reports); err != nil {
		return writeError(ctx, c, h.logger, "write csv failed", err)
	}

	mylogger.Info(ctx, h.logger, "report exported", zap.String("kind", kind), zap.Int64("group_order_id", id))

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="group-order-%d-%s.csv"`, id, kind))
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}
