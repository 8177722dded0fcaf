package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/gatekey/gatekey/application/usecase"
	"github.com/gatekey/gatekey/infrastructure/config"
	"github.com/gatekey/gatekey/infrastructure/http/handler"
	"github.com/gatekey/gatekey/infrastructure/http/middleware"
	"github.com/gatekey/gatekey/infrastructure/persistence/postgres"
	redisstore "github.com/gatekey/gatekey/infrastructure/persistence/redis"
	"github.com/gatekey/gatekey/infrastructure/service/jwt"
	"github.com/gatekey/gatekey/infrastructure/service/logger"
	"github.com/gatekey/gatekey/infrastructure/service/password"
	"github.com/gatekey/gatekey/infrastructure/service/ratelimit"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	structuredLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "gatekey",
	})
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"env": cfg.Environment,
	})

	// Connect to database
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	structuredLogger.Info(ctx, "Database connection established", nil)

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Initialize the revocation store, rate limiting and services
	revocationStore, err := redisstore.NewRevocationStore(redisClient, cfg.StoreTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize revocation store: %v", err)
	}
	structuredLogger.Info(ctx, "Revocation store connected", nil)

	rateLimitService := ratelimit.NewRateLimitService(redisClient, ratelimit.RateLimitConfig{
		Enabled: cfg.RateLimitEnabled,
	}, structuredLogger)

	tokenService, err := jwt.NewJWTService(jwt.Config{
		Secret:          cfg.JWTSecret,
		Issuer:          cfg.JWTIssuer,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}, revocationStore)
	if err != nil {
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}

	passwordService := password.NewBcryptPasswordService(10)
	userRepo := postgres.NewUserRepository(db)

	// Initialize use cases
	authUseCase := usecase.NewAuthUseCase(
		userRepo,
		tokenService,
		passwordService,
		rateLimitService,
		structuredLogger,
	)
	carrierResolver := usecase.NewCarrierResolver(tokenService)

	// Initialize middleware and handlers
	sessionMiddleware := middleware.NewSessionMiddleware(carrierResolver, structuredLogger, middleware.CookieConfig{
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
		Secure:     cfg.CookieSecure,
		Domain:     cfg.CookieDomain,
	})
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(rateLimitService, structuredLogger)
	authHandler := handler.NewAuthHandler(authUseCase, sessionMiddleware)

	// Setup routes
	router := mux.NewRouter()
	router.Use(middleware.CorrelationIDMiddleware)

	auth := router.PathPrefix("/v1/auth").Subrouter()
	auth.Handle("/login", rateLimitMiddleware.RateLimit(http.HandlerFunc(authHandler.Login))).Methods(http.MethodPost)
	auth.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	auth.Handle("/refresh", rateLimitMiddleware.RateLimit(http.HandlerFunc(authHandler.Refresh))).Methods(http.MethodPost)
	auth.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)
	auth.Handle("/me", sessionMiddleware.Resolve(sessionMiddleware.RequireAuth(authHandler.Me))).Methods(http.MethodGet)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"healthy"}`)
	}).Methods(http.MethodGet)

	// Compose outer middleware: CORS wraps everything when enabled
	var rootHandler http.Handler = router
	if cfg.CORSEnabled && len(cfg.CORSAllowedOrigins) > 0 {
		rootHandler = middleware.CORSMiddleware(rootHandler, cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		structuredLogger.Info(ctx, "Starting server", map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			structuredLogger.Error(ctx, "Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	structuredLogger.Info(ctx, "Shutting down server...", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(ctx, "Server forced to shutdown", err, nil)
	}
	structuredLogger.Info(ctx, "Server exited", nil)
}
