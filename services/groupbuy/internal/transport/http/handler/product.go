package handler

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"go.uber.org/zap"
)

type ProductHandler struct {
	catalog  service.CatalogService
	validate *validator.Validate
	timeout  time.Duration
	logger   *zap.Logger
}

func NewProductHandler(catalog service.CatalogService, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog:  catalog,
		validate: validator.New(),
		timeout:  timeout,
		logger:   logger,
	}
}

type CreateProductInput struct {
	Name        string `json:"name" validate:"required,min=2,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Price       int64  `json:"price" validate:"gte=0"`
	Category    string `json:"category" validate:"max=100"`
	ImageUrl    string `json:"image_url" validate:"omitempty,url"`
}

func (h *ProductHandler) FindByID(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	product, err := h.catalog.FindByID(ctx, id)
	if err != nil {
		return writeError(ctx, c, h.logger, "find product failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(product)
}

func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	products, total, err := h.catalog.List(ctx, queryInt(c, "limit", 20), queryInt(c, "offset", 0), c.Query("search"))
	if err != nil {
		return writeError(ctx, c, h.logger, "list products failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"products": products,
		"total":    total,
	})
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	req := new(CreateProductInput)
	if err := decodeBody(c, h.validate, req); err != nil {
		return badBody(ctx, c, h.logger, err)
	}

	id, err := h.catalog.Create(ctx, &domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		ImageUrl:    req.ImageUrl,
	})
	if err != nil {
		return writeError(ctx, c, h.logger, "create product failed", err)
	}

	mylogger.Info(ctx, h.logger, "product created", zap.Int64("product_id", id))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (h *ProductHandler) Update(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	req := new(domain.UpdateProductInput)
	if err := decodeBody(c, h.validate, req); err != nil {
		return badBody(ctx, c, h.logger, err)
	}

	product, err := h.catalog.Update(ctx, id, req)
	if err != nil {
		return writeError(ctx, c, h.logger, "update product failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(product)
}

func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c)
	}

	if err := h.catalog.Delete(ctx, id); err != nil {
		return writeError(ctx, c, h.logger, "delete product failed", err)
	}

	mylogger.Info(ctx, h.logger, "product deleted", zap.Int64("product_id", id))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}
