package handler

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"github.com/sakashimaa/groupbuy/services/groupbuy/middleware"
	"go.uber.org/zap"
)

type ParticipationHandler struct {
	participation service.ParticipationService
	validate      *validator.Validate
	timeout       time.Duration
	logger        *zap.Logger
}

func NewParticipationHandler(participation service.ParticipationService, timeout time.Duration, logger *zap.Logger) *ParticipationHandler {
	return &ParticipationHandler{
		participation: participation,
		validate:      validator.New(),
		timeout:       timeout,
		logger:        logger,
	}
}

type JoinRequest struct {
	Items []JoinItem `json:"items" validate:"required,min=1,dive"`
}

type JoinItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int32 `json:"quantity" validate:"required,gte=1"`
}

func (h *ParticipationHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	view, err := h.participation.GetParticipation(ctx, middleware.UserID(c), id)
	if err != nil {
		return writeError(ctx, c, h.logger, "get participation failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(view)
}

func (h *ParticipationHandler) Join(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	req := new(JoinRequest)
	if err := decodeBody(c, h.validate, req); err != nil {
		return badBody(ctx, c, h.logger, err)
	}

	selections := make([]domain.Selection, 0, len(req.Items))
	for _, item := range req.Items {
		selections = append(selections, domain.Selection{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	result, err := h.participation.Join(ctx, service.JoinInput{
		UserID:       middleware.UserID(c),
		GroupOrderID: id,
		Selections:   selections,
	})
	if err != nil {
		return writeError(ctx, c, h.logger, "join group order failed", err)
	}

	httpStatus := fiber.StatusOK
	if result.Created {
		httpStatus = fiber.StatusCreated
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"participation": result.Participation,
		"created":       result.Created,
	})
}

func (h *ParticipationHandler) Leave(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	removed, err := h.participation.Leave(ctx, middleware.UserID(c), id)
	if err != nil {
		return writeError(ctx, c, h.logger, "leave group order failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"removed": removed})
}
