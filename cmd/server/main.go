package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docvault/backend/internal/config"
	"github.com/docvault/backend/internal/database"
	"github.com/docvault/backend/internal/handlers"
	"github.com/docvault/backend/internal/middleware"
	"github.com/docvault/backend/internal/services"
	"github.com/docvault/backend/internal/storage"
	"github.com/docvault/backend/pkg/logger"
	"github.com/docvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	// Schema management is cmd/migrate's job; the server only connects.
	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	documentService := services.NewDocumentService(db, storageClient, cfg.Server.PublicURL)

	authHandler := handlers.NewAuthHandler(db)
	usersHandler := handlers.NewUsersHandler(db)
	groupsHandler := handlers.NewGroupsHandler(db)
	documentsHandler := handlers.NewDocumentsHandler(db, storageClient, documentService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: cfg.Server.MaxUploadBytes})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	// The retrieval routes are public, so auth is attached per route rather
	// than on the /documents prefix.
	documentRoutes := api.Group("/documents")
	documentRoutes.Post("/query", authMiddleware.OptionalAuth, documentsHandler.Resolve)
	documentRoutes.Get("/:id/view", authMiddleware.OptionalAuth, documentsHandler.View)
	documentRoutes.Get("/:id/qrcode", authMiddleware.OptionalAuth, documentsHandler.QRCode)
	documentRoutes.Get("/", authMiddleware.RequireAuth, documentsHandler.List)
	documentRoutes.Post("/", authMiddleware.RequireAuth, documentsHandler.Upload)
	documentRoutes.Get("/:id", authMiddleware.RequireAuth, documentsHandler.Get)
	documentRoutes.Delete("/:id", authMiddleware.RequireAuth, documentsHandler.Delete)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Get("/", groupsHandler.List)
	groupRoutes.Post("/", groupsHandler.Create)
	groupRoutes.Get("/:id", groupsHandler.Get)
	groupRoutes.Put("/:id", groupsHandler.Update)
	groupRoutes.Delete("/:id", groupsHandler.Delete)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Post("/", usersHandler.Create)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Put("/:id", usersHandler.Update)
	userRoutes.Delete("/:id", usersHandler.Delete)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
