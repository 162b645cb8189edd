package handler

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/repository"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"github.com/sakashimaa/groupbuy/services/groupbuy/middleware"
	"go.uber.org/zap"
)

type GroupOrderHandler struct {
	lifecycle service.LifecycleService
	validate  *validator.Validate
	timeout   time.Duration
	logger    *zap.Logger
}

func NewGroupOrderHandler(lifecycle service.LifecycleService, timeout time.Duration, logger *zap.Logger) *GroupOrderHandler {
	return &GroupOrderHandler{
		lifecycle: lifecycle,
		validate:  validator.New(),
		timeout:   timeout,
		logger:    logger,
	}
}

type CreateGroupOrderRequest struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description" validate:"max=5000"`
	OpeningTime *time.Time `json:"opening_time"`
	Deadline    *time.Time `json:"deadline" validate:"required"`
}

// UpdateGroupOrderRequest is a patch: omitted fields stay as they are.
type UpdateGroupOrderRequest struct {
	Title            *string    `json:"title" validate:"omitempty,max=255"`
	Description      *string    `json:"description" validate:"omitempty,max=5000"`
	Deadline         *time.Time `json:"deadline"`
	OpeningTime      *time.Time `json:"opening_time"`
	ClearOpeningTime bool       `json:"clear_opening_time"`
	Status           *string    `json:"status"`
}

func (h *GroupOrderHandler) ListActive(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	orders, err := h.lifecycle.ListActive(ctx)
	if err != nil {
		return writeError(ctx, c, h.logger, "list active group orders failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"group_orders": orders})
}

func (h *GroupOrderHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	order, err := h.lifecycle.Get(ctx, id)
	if err != nil {
		return writeError(ctx, c, h.logger, "get group order failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(order)
}

func (h *GroupOrderHandler) List(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	filter := repository.GroupOrderFilter{
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}

	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := domain.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				return writeError(ctx, c, h.logger, "list group orders rejected", service.ErrInvalidStatus)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	orders, err := h.lifecycle.List(ctx, filter)
	if err != nil {
		return writeError(ctx, c, h.logger, "list group orders failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"group_orders": orders})
}

func (h *GroupOrderHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	req := new(CreateGroupOrderRequest)
	if err := decodeBody(c, h.validate, req); err != nil {
		return badBody(ctx, c, h.logger, err)
	}

	order, err := h.lifecycle.Create(ctx, service.CreateGroupOrderInput{
		Title:       req.Title,
		Description: req.Description,
		OpeningTime: req.OpeningTime,
		Deadline:    *req.Deadline,
		CreatedBy:   middleware.UserID(c),
	})
	if err != nil {
		return writeError(ctx, c, h.logger, "create group order failed", err)
	}

	mylogger.Info(ctx, h.logger, "group order created", zap.Int64("group_order_id", order.ID))

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *GroupOrderHandler) Update(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	req := new(UpdateGroupOrderRequest)
	if err := decodeBody(c, h.validate, req); err != nil {
		return badBody(ctx, c, h.logger, err)
	}

	patch := service.GroupOrderPatch{
		Title:            req.Title,
		Description:      req.Description,
		Deadline:         req.Deadline,
		OpeningTime:      req.OpeningTime,
		ClearOpeningTime: req.ClearOpeningTime,
	}
	if req.Status != nil {
		status := domain.Status(strings.TrimSpace(*req.Status))
		patch.Status = &status
	}

	order, err := h.lifecycle.Update(ctx, id, patch)
	if err != nil {
		return writeError(ctx, c, h.logger, "update group order failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(order)
}

func (h *GroupOrderHandler) Delete(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	removed, err := h.lifecycle.Delete(ctx, id)
	if err != nil {
		return writeError(ctx, c, h.logger, "delete group order failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":                true,
		"participations_removed": removed,
	})
}

func (h *GroupOrderHandler) Sweep(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	result, err := h.lifecycle.SweepNow(ctx)
	if err != nil {
		return writeError(ctx, c, h.logger, "sweep failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"opened": result.Opened,
		"closed": result.Closed,
	})
}
