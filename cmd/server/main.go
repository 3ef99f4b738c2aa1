package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"employee-manager/internal/api"
	"employee-manager/internal/auth"
	"employee-manager/internal/catalog"
	"employee-manager/internal/config"
	"employee-manager/internal/store"
	"employee-manager/internal/validation"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s/%s)", cfg.Server.Port, cfg.Database.Driver, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Create schema and seed reference data
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap schema: %v", err)
	}
	log.Println("Schema ready")

	// 4. Load the device rule catalog. A broken catalog means the process
	// must not serve traffic.
	cat, err := catalog.Load(cfg.Rules.Path)
	if err != nil {
		log.Fatalf("Failed to load rule catalog: %v", err)
	}
	log.Printf("Rule catalog loaded (%d entries)", cat.Len())

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 6. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 7. Auth routes, registered ahead of the auth middleware
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	auth.RegisterRoutes(app, authHandler)

	// 8. Resource routes behind auth, with the conditional-validation
	// interceptor ahead of the device handlers
	handler := api.NewHandler(db)
	engine := validation.NewEngine(cat, handler)
	api.RegisterRoutes(app, handler,
		auth.Middleware(cfg.JWTSecret),
		auth.RequireAdmin(),
		validation.DeviceRuleMiddleware(engine))

	// 9. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *api.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(api.ErrorResponse{Error: appErr})
	}

	// Schema and storage faults land here; the caller sees a generic
	// message, the log keeps the detail.
	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(api.ErrorResponse{
		Error: &api.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
