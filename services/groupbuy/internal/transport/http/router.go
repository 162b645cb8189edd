package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/transport/http/handler"
	"github.com/sakashimaa/groupbuy/services/groupbuy/middleware"
)

type Handlers struct {
	GroupOrder    *handler.GroupOrderHandler
	Participation *handler.ParticipationHandler
	Product       *handler.ProductHandler
	Report        *handler.ReportHandler
	User          *handler.UserHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers, accessSecret []byte) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", middleware.NewAuthMiddleware(accessSecret), middleware.NewIsActivatedMiddleware())

	groupOrders := api.Group("/group-orders")
	groupOrders.Get("", h.GroupOrder.ListActive)
	groupOrders.Get("/:id", h.GroupOrder.Get)
	groupOrders.Get("/:id/participation", h.Participation.Get)
	groupOrders.Put("/:id/participation", h.Participation.Join)
	groupOrders.Delete("/:id/participation", h.Participation.Leave)

	products := api.Group("/products")
	products.Get("", h.Product.ListProducts)
	products.Get("/:id", h.Product.FindByID)

	admin := api.Group("/admin", middleware.NewAdminMiddleware())

	adminOrders := admin.Group("/group-orders")
	adminOrders.Get("", h.GroupOrder.List)
	adminOrders.Post("", h.GroupOrder.Create)
	adminOrders.Post("/sweep", h.GroupOrder.Sweep)
	adminOrders.Patch("/:id", h.GroupOrder.Update)
	adminOrders.Delete("/:id", h.GroupOrder.Delete)
	adminOrders.Get("/:id/reports", h.Report.Get)
	adminOrders.Get("/:id/reports/supplier.csv", h.Report.SupplierCSV)
	adminOrders.Get("/:id/reports/participants.csv", h.Report.ParticipantsCSV)

	adminProducts := admin.Group("/products")
	adminProducts.Post("", h.Product.Create)
	adminProducts.Patch("/:id", h.Product.Update)
	adminProducts.Delete("/:id", h.Product.DeleteProduct)

	adminUsers := admin.Group("/users")
	adminUsers.Get("", h.User.List)
	adminUsers.Get("/:id", h.User.Get)
}
