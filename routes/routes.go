// routes/routes.go
package routes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"playforge/config"
	"playforge/controllers"
	"playforge/gateway"
	"playforge/middleware"
	"playforge/models"
	"playforge/services"
)

// AuthConfig holds what the admin routes need to verify bearer tokens.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// ServiceContainer holds all services and dependencies
type ServiceContainer struct {
	Gateway             gateway.Gateway
	Auth                AuthConfig
	ContentService      *services.ContentService
	DocsTree            *services.DocsTree
	PollService         *services.PollService
	PollBoards          *services.PollBoards
	GameService         *services.GameService
	FrameService        *services.FrameService
	PollDefaultDuration time.Duration
}

// NewServiceContainer wires every service onto gw. frameStore may be nil
// when object storage is not configured. ctx bounds the live subscriptions.
func NewServiceContainer(ctx context.Context, gw gateway.Gateway, cfg *config.Config, frameStore services.ObjectStore) (*ServiceContainer, error) {
	contentService, err := services.NewContentService(gw, cfg.RenderCacheSize)
	if err != nil {
		return nil, err
	}

	docsTree := services.NewDocsTree(contentService, cfg.MirrorRefreshTimeout)
	if err := docsTree.Start(ctx, gw); err != nil {
		return nil, fmt.Errorf("failed to start docs tree: %w", err)
	}

	pollService := services.NewPollService(gw)
	pollBoards, err := services.NewPollBoards(ctx, pollService, gw, cfg.BoardCacheSize, cfg.MirrorRefreshTimeout)
	if err != nil {
		docsTree.Close()
		return nil, err
	}

	return &ServiceContainer{
		Gateway:        gw,
		Auth:           AuthConfig{JWTSecret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		ContentService: contentService,
		DocsTree:       docsTree,
		PollService:    pollService,
		PollBoards:     pollBoards,
		GameService:    services.NewGameService(gw),
		FrameService: services.NewFrameService(frameStore, services.FrameOptions{
			Count:    cfg.FrameCount,
			Bytes:    cfg.FrameBytes,
			MaxBytes: cfg.FrameMaxBytes,
		}),
		PollDefaultDuration: cfg.PollDefaultDuration,
	}, nil
}

// Close ends every mirror subscription.
func (sc *ServiceContainer) Close() {
	sc.PollBoards.Close()
	sc.DocsTree.Close()
}

// NewRouter builds the gin engine with CORS, the health check and all API
// routes.
func NewRouter(container *ServiceContainer, allowedOrigins []string) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.CORS(allowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC(),
		})
	})

	api := router.Group("/api")
	SetupRoutesWithContainer(api, container)
	return router
}

// SetupRoutesWithContainer configures all API routes using a service container
func SetupRoutesWithContainer(api *gin.RouterGroup, container *ServiceContainer) {
	docsController := controllers.NewDocsController(container.ContentService, container.DocsTree)
	pollController := controllers.NewPollController(container.PollService, container.GameService, container.PollBoards, container.PollDefaultDuration)
	gameController := controllers.NewGameController(container.GameService, container.PollBoards)
	frameController := controllers.NewFrameController(container.FrameService)

	admin := api.Group("/admin")
	admin.Use(
		middleware.AuthMiddleware(container.Auth.JWTSecret, container.Auth.Issuer),
		middleware.RequireRole(models.RoleAdmin),
	)

	RegisterDocsRoutes(api, admin, docsController)
	RegisterGameRoutes(api, admin, gameController, pollController)
	RegisterPollRoutes(admin, pollController)
	RegisterFunctionRoutes(api, frameController)
}
