package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatgate-backend/internal/catalog"
	"chatgate-backend/internal/config"
	"chatgate-backend/internal/database"
	"chatgate-backend/internal/gateway"
	"chatgate-backend/internal/handlers"
	"chatgate-backend/internal/middleware"
	"chatgate-backend/internal/repository"
	"chatgate-backend/internal/router"
	"chatgate-backend/internal/services"
	"chatgate-backend/internal/websocket"
	"chatgate-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Chatgate Backend...")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Chat Provider ────
	provider, closeProvider, err := newProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("✗ Chat provider initialization failed: %v", err)
	}
	defer closeProvider()
	if provider == nil {
		log.Printf("✗ No API key for provider %q; chat requests will fail with a configuration error", cfg.GatewayProvider)
	} else {
		log.Printf("✓ Chat provider %q initialized", cfg.GatewayProvider)
	}

	// ──── Step 3: Initialize PostgreSQL (optional) ────
	var (
		recorder     *worker.Recorder
		usageHandler *handlers.UsageHandler
	)
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("✗ PostgreSQL connection failed: %v", err)
		}
		defer pool.Close()
		log.Println("✓ PostgreSQL connected")

		if err := database.RunMigrations(pool, cfg.MigrationsDir); err != nil {
			log.Fatalf("✗ Database migration failed: %v", err)
		}
		log.Println("✓ Database migrations applied")

		chatLogRepo := repository.NewChatLogRepo(pool)
		recorder = worker.NewRecorder(chatLogRepo, 2, 256)
		recorder.Start()
		usageHandler = handlers.NewUsageHandler(chatLogRepo)
		log.Println("✓ Chat log recorder started (2 goroutines)")
	}

	// ──── Step 4: Initialize Rate Limiter ────
	var chatLimiter middleware.Limiter
	switch {
	case cfg.ChatRateLimit <= 0:
		log.Println("✓ Chat rate limiting disabled (CHAT_RATE_LIMIT=0)")
	case cfg.RedisURL != "":
		rdb, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer rdb.Close()
		chatLimiter = middleware.NewRedisLimiter(rdb, cfg.ChatRateLimit, cfg.ChatRateWindow)
		log.Println("✓ Redis connected (shared rate limit)")
	default:
		chatLimiter = middleware.NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateWindow)
		log.Println("✓ In-memory rate limiter enabled")
	}

	// ──── Step 5: Load Model Catalog ────
	modelCatalog, err := catalog.Load(cfg.ModelsFile)
	if err != nil {
		log.Fatalf("✗ Model catalog load failed: %v", err)
	}
	if err := modelCatalog.Watch(ctx); err != nil {
		log.Printf("✗ Model catalog watch disabled: %v", err)
	}
	log.Printf("✓ Model catalog loaded (%d models)", len(modelCatalog.List()))

	// ──── Initialize Services & Handlers ────
	var chatService *services.ChatService
	if recorder != nil {
		chatService = services.NewChatService(provider, cfg.SystemPrompt, cfg.ChatMaxDuration, recorder)
	} else {
		chatService = services.NewChatService(provider, cfg.SystemPrompt, cfg.ChatMaxDuration, nil)
	}

	var jwtAuth *middleware.JWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth = middleware.NewJWTAuth(cfg.JWTSecret)
		log.Println("✓ JWT authentication enabled for chat routes")
	}

	chatHandler := handlers.NewChatHandler(chatService)
	modelsHandler := handlers.NewModelsHandler(modelCatalog)
	chatSocket := websocket.NewChatSocket(chatService, chatLimiter, cfg.FrontendURL)

	// ──── Step 6: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		chatLimiter,
		chatHandler,
		modelsHandler,
		usageHandler,
		chatSocket,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Streams are bounded by the chat duration; leave room for the final chunks.
		WriteTimeout: cfg.ChatMaxDuration + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		stop()
		chatSocket.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ChatMaxDuration+5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)

		if recorder != nil {
			recorder.Stop()
		}
	}()

	log.Printf("✓ Chatgate Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/chat", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/chat/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	<-done
	log.Println("✓ Shutdown complete")
}

// newProvider builds the upstream chat provider. It returns a nil provider,
// not an error, when the credential is missing.
func newProvider(ctx context.Context, cfg *config.Config) (gateway.Provider, func(), error) {
	noop := func() {}

	apiKey := cfg.ProviderAPIKey()
	if apiKey == "" {
		return nil, noop, nil
	}

	switch cfg.GatewayProvider {
	case config.ProviderGemini:
		p, err := gateway.NewGeminiProvider(ctx, apiKey, cfg.GeminiDefaultModel)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	case config.ProviderGateway:
		c, err := gateway.NewClient(apiKey, gateway.WithBaseURL(cfg.GatewayBaseURL))
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown GATEWAY_PROVIDER %q", cfg.GatewayProvider)
	}
}
