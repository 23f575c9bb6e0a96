package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/melih/bamview-paas/internal/adapters/builder"
	"github.com/melih/bamview-paas/internal/adapters/docker"
	httphandler "github.com/melih/bamview-paas/internal/adapters/http"
	"github.com/melih/bamview-paas/internal/adapters/proxy"
	"github.com/melih/bamview-paas/internal/config"
	"github.com/melih/bamview-paas/internal/core/services"
)

func main() {
	// 1. Configuration (explicit, no ambient state)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	registry, err := config.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		log.Fatalf("Failed to load plugin registry: %v", err)
	}

	// 2. Initialize Adapters (Infrastructure)
	dockerAdapter, err := docker.NewAdapter(cfg.DockerStopTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize Docker adapter: %v", err)
	}
	builderAdapter, err := builder.NewAdapter()
	if err != nil {
		log.Fatalf("Failed to initialize builder adapter: %v", err)
	}
	routes := proxy.NewTable()

	// 3. Core service wiring
	launcher := services.NewLauncher(services.LauncherOptions{
		Containers: dockerAdapter,
		Builder:    builderAdapter,
		Routes:     routes,
		PublicHost: cfg.PublicHost,
		Readiness:  cfg.Readiness,
	})

	sessionHandler := httphandler.NewSessionHandler(registry, launcher)
	proxyHandler := proxy.NewHandler(routes)

	// 4. Setup Framework (Fiber)
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	// 5. Define Routes
	api := app.Group("/api")
	v1 := api.Group("/v1")

	sessions := v1.Group("/sessions")
	sessions.Post("/", sessionHandler.CreateSession)
	sessions.Get("/", sessionHandler.ListSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Delete("/:id", sessionHandler.EndSession)
	sessions.Get("/:id/logs", sessionHandler.GetSessionLogs)

	// Proxied viewer traffic
	app.All("/proxy/:session/*", proxyHandler.Forward)

	// 6. Start Server
	log.Println("Server starting on " + cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
