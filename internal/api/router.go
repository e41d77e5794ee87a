package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"splitsnap/internal/api/handlers"
	"splitsnap/pkg/middleware"
)

func SetupRouter(
	receiptHandler *handlers.ReceiptHandler,
	settlementHandler *handlers.SettlementHandler,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(middleware.RequestLog(appLogger))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	receipts := api.Group("/receipts")
	receipts.Post("/upload", receiptHandler.Upload)
	receipts.Post("/:id/process", receiptHandler.Process)
	receipts.Get("/:id", receiptHandler.Get)
	receipts.Post("/:id/review", receiptHandler.Review)
	receipts.Post("/:id/finalize", receiptHandler.Finalize)
	receipts.Get("/:id/shares", receiptHandler.Shares)

	groups := api.Group("/groups")
	groups.Get("/:id/settlements", settlementHandler.Balances)
	groups.Post("/:id/settlements/recompute", settlementHandler.Recompute)

	return app
}
