package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/pkg/utils"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"go.uber.org/zap"
)

// statusFor maps the service error taxonomy onto HTTP. A missing group order
// is checked before the validation class so it always reads as 404.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrGroupOrderNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrState):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(ctx context.Context, c *fiber.Ctx, logger *zap.Logger, msg string, err error) error {
	httpStatus := statusFor(err)

	if httpStatus >= fiber.StatusInternalServerError {
		mylogger.Error(ctx, logger, msg, zap.Int("http_status", httpStatus), zap.Error(err))

		body := fiber.Map{"error": "internal error", "code": "INTERNAL"}
		if httpStatus == fiber.StatusGatewayTimeout {
			body = fiber.Map{"error": "request timed out", "code": "TIMEOUT"}
		}
		return c.Status(httpStatus).JSON(body)
	}

	mylogger.Warn(ctx, logger, msg, zap.Int("http_status", httpStatus), zap.Error(err))

	return c.Status(httpStatus).JSON(fiber.Map{
		"error": err.Error(),
		"code":  service.Code(err),
	})
}

func parseID(c *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func invalidID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Id is invalid",
		"code":  "INVALID_ID",
	})
}

// decodeBody rejects unknown fields and trailing data, then runs struct
// validation. The returned error is ready for badBody.
func decodeBody(c *fiber.Ctx, validate *validator.Validate, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after request body")
	}

	return validate.Struct(dst)
}

func badBody(ctx context.Context, c *fiber.Ctx, logger *zap.Logger, err error) error {
	mylogger.Warn(ctx, logger, "Invalid request body", zap.Error(err))

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  "invalid request body",
		"code":   "INVALID_BODY",
		"fields": utils.FormatValidationError(err),
	})
}

func queryInt(c *fiber.Ctx, key string, def int64) int64 {
	v, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil {
		return def
	}
	return v
}
