package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"go.uber.org/zap"
)

type UserHandler struct {
	users   service.UserService
	timeout time.Duration
	logger  *zap.Logger
}

func NewUserHandler(users service.UserService, timeout time.Duration, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, timeout: timeout, logger: logger}
}

func (h *UserHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	user, err := h.users.GetByID(ctx, id)
	if err != nil {
		return writeError(ctx, c, h.logger, "get user failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(user)
}

func (h *UserHandler) List(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	users, total, err := h.users.List(ctx, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		return writeError(ctx, c, h.logger, "list users failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"users": users,
		"total": total,
	})
}
