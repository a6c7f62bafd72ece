package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"playforge/config"
	"playforge/gateway"
	"playforge/jobs"
	"playforge/routes"
	"playforge/services"
	"playforge/utils"
)

func main() {
	// Load .env file with proper path handling (do this BEFORE config.Load)
	loadEnvFile()

	if err := run(); err != nil {
		utils.LogFatal("Server exited with error", err)
	}
}

// run returns instead of exiting so deferred cleanup always happens.
func run() error {
	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	utils.InitLogger(cfg.Env, cfg.LogLevel)
	cfg.Log()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect the data gateway
	gw, err := openGateway(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open data gateway: %w", err)
	}
	defer func() {
		closeCtx, cancel := config.CreateContext(5 * time.Second)
		defer cancel()
		if err := gw.Close(closeCtx); err != nil {
			utils.LogError("Failed to close data gateway", err)
		}
	}()

	// Initialize Backblaze B2 for frame uploads
	var frameStore services.ObjectStore
	if cfg.B2Enabled() {
		b2Ctx, cancel := config.CreateContext(30 * time.Second)
		b2Service, err := services.NewB2Service(b2Ctx, cfg.B2ApplicationKeyID, cfg.B2ApplicationKey, cfg.B2BucketName, cfg.B2URLExpiration)
		cancel()
		if err != nil {
			utils.LogError("B2 unavailable, frame extraction disabled", err)
		} else {
			frameStore = b2Service
		}
	} else {
		utils.LogWarning("B2 credentials not set, frame extraction disabled")
	}

	// Initialize services container
	serviceContainer, err := routes.NewServiceContainer(ctx, gw, cfg, frameStore)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer serviceContainer.Close()

	// Start the orphan poll sweeper
	if cfg.OrphanSweepInterval > 0 {
		sweeper := jobs.NewOrphanPollSweeper(serviceContainer.PollService, cfg.OrphanSweepInterval, cfg.OrphanGracePeriod)
		go sweeper.Start(ctx)
	}

	router := routes.NewRouter(serviceContainer, cfg.AllowedOrigins)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := config.CreateContext(10 * time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			utils.LogError("Graceful shutdown failed", err)
		}
	}()

	// Start the server
	utils.LogInfo(fmt.Sprintf("Starting playforge server on port %s", cfg.Port))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	utils.LogInfo("Server stopped")
	return nil
}

// openGateway connects the configured storage driver. The postgres driver
// also starts relaying writes made by other instances.
func openGateway(ctx context.Context, cfg *config.Config) (gateway.Gateway, error) {
	connectCtx, cancel := config.CreateContext(30 * time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverMongo:
		gw, err := gateway.ConnectMongo(connectCtx, cfg.MongoURI, cfg.DatabaseName)
		if err != nil {
			return nil, err
		}
		utils.LogInfo("Connected to MongoDB successfully")
		return gw, nil

	case config.DriverPostgres:
		gw, err := gateway.OpenPostgres(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		go gateway.NewPGListener(cfg.DatabaseURL, gw).Run(ctx)
		utils.LogInfo("Connected to PostgreSQL successfully")
		return gw, nil

	case config.DriverMemory:
		utils.LogWarning("Using in-memory store; data is lost on restart")
		return gateway.NewMemoryGateway(nil), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// loadEnvFile handles loading .env file from multiple possible locations
func loadEnvFile() {
	pwd, err := os.Getwd()
	if err != nil {
		utils.LogWarning(fmt.Sprintf("Could not get working directory: %v", err))
		return
	}

	// Define possible .env file locations
	envPaths := []string{
		".env",                                   // Current directory
		"../.env",                                // Parent directory
		"../../.env",                             // Grandparent directory
		filepath.Join(pwd, ".env"),               // Absolute path to current dir
		filepath.Join(filepath.Dir(pwd), ".env"), // Absolute path to parent dir
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		absPath, _ := filepath.Abs(envPath)
		if err := godotenv.Load(envPath); err != nil {
			utils.LogWarning(fmt.Sprintf("Failed to load .env from %s: %v", absPath, err))
			continue
		}
		utils.LogInfo(fmt.Sprintf("Loaded environment variables from: %s", absPath))
		return
	}

	utils.LogInfo("No .env file found, using system environment variables")
}
