package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/tracker-api/internal/config"
	"github.com/yourusername/tracker-api/internal/handler"
	"github.com/yourusername/tracker-api/internal/middleware"
	"github.com/yourusername/tracker-api/internal/provider"
	pgRepo "github.com/yourusername/tracker-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/tracker-api/internal/repository/redis"
	"github.com/yourusername/tracker-api/internal/service"
	"github.com/yourusername/tracker-api/pkg/auth"
	"github.com/yourusername/tracker-api/pkg/auth/manager"
	"github.com/yourusername/tracker-api/pkg/database"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Loading configuration from %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Repositories
	userRepo := pgRepo.NewUserRepo(db)
	identityRepo := pgRepo.NewUserIdentityRepo(db)
	taskRepo := pgRepo.NewTaskRepo(db)
	expenseRepo := pgRepo.NewExpenseRepo(db)

	refreshTokenRepo, err := pgRepo.NewRefreshTokenRepo(db)
	if err != nil {
		log.Printf("Failed to initialize RefreshTokenRepo: %v", err)
		os.Exit(1)
	}

	stateRepo, err := redisRepo.NewOAuthStateRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize OAuthStateRepo: %v", err)
		os.Exit(1)
	}

	// Token service and manager
	tokenService, err := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry(), cfg.JWT.RefreshTokenExpiry())
	if err != nil {
		log.Printf("Failed to initialize TokenService: %v", err)
		os.Exit(1)
	}

	tokenManager, err := manager.NewTokenManager(tokenService, refreshTokenRepo, userRepo)
	if err != nil {
		log.Printf("Failed to initialize TokenManager: %v", err)
		os.Exit(1)
	}
	if cfg.Auth.SessionLimit > 0 {
		tokenManager.SetMaxRefreshTokensPerUser(cfg.Auth.SessionLimit)
	}

	// Secure cookies only make sense behind HTTPS; local development runs
	// over plain HTTP.
	isProduction := gin.Mode() == gin.ReleaseMode
	tokenManager.SetCookieAttributes(cfg.Auth.CookieDomain, isProduction)

	// Root context for background goroutines.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// OAuth providers; each one is registered only when configured.
	var providers []provider.Provider
	if cfg.OAuth.Google.ClientID != "" {
		google, err := provider.NewGoogleProvider(cfg.OAuth.Google.ClientID, cfg.OAuth.Google.ClientSecret, cfg.OAuth.Google.RedirectURL)
		if err != nil {
			log.Printf("Failed to initialize Google provider: %v", err)
			os.Exit(1)
		}
		providers = append(providers, google)
	}
	if cfg.OAuth.GitHub.ClientID != "" {
		github, err := provider.NewGitHubProvider(cfg.OAuth.GitHub.ClientID, cfg.OAuth.GitHub.ClientSecret, cfg.OAuth.GitHub.RedirectURL)
		if err != nil {
			log.Printf("Failed to initialize GitHub provider: %v", err)
			os.Exit(1)
		}
		providers = append(providers, github)
	}
	registry := provider.NewRegistry(providers...)
	log.Printf("OAuth providers registered: %v", registry.Names())

	// Services
	oauthService, err := service.NewOAuthService(registry, userRepo, identityRepo, stateRepo, tokenManager)
	if err != nil {
		log.Printf("Failed to initialize OAuthService: %v", err)
		os.Exit(1)
	}
	taskService := service.NewTaskService(taskRepo)
	expenseService := service.NewExpenseService(expenseRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(oauthService, tokenManager, cfg.Auth.FrontendURL)
	taskHandler := handler.NewTaskHandler(taskService)
	expenseHandler := handler.NewExpenseHandler(expenseService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService, userRepo)
	rateLimiter := middleware.NewRateLimiter(redisClient)
	metrics := middleware.NewMetrics()

	// Expired refresh sessions are pruned hourly.
	tokenManager.StartCleanupLoop(ctx, 1*time.Hour)

	router := gin.Default()

	// Trusted proxies matter for c.ClientIP(), which feeds the rate limiter
	// and session metadata. Production does not trust proxy headers; add
	// the load balancer address here when one exists.
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	allowedOrigins := cfg.CORS.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(metrics.Middleware())
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.Use(rateLimiter.LimitByIP(middleware.DefaultAuthRateLimitConfig()))
		{
			authGroup.GET("/login/:provider", authHandler.Login)
			authGroup.GET("/callback/:provider", authHandler.Callback)
			authGroup.POST("/refresh", rateLimiter.Limit(middleware.RefreshRateLimitConfig()), authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
			authGroup.GET("/me", authMiddleware.RequireAuth(), authHandler.Me)
		}

		tasks := api.Group("/tasks")
		tasks.Use(authMiddleware.RequireAuth())
		{
			tasks.GET("", taskHandler.List)
			tasks.POST("", taskHandler.Create)

			taskWithID := tasks.Group("/:id")
			taskWithID.Use(middleware.ExtractUintParam("id", "taskID"))
			{
				taskWithID.GET("", taskHandler.Get)
				taskWithID.PATCH("", taskHandler.Update)
				taskWithID.DELETE("", taskHandler.Delete)
			}
		}

		expenses := api.Group("/expenses")
		expenses.Use(authMiddleware.RequireAuth())
		{
			expenses.GET("", expenseHandler.List)
			expenses.POST("", expenseHandler.Create)
			expenses.GET("/summary", expenseHandler.Summary)

			expenseWithID := expenses.Group("/:id")
			expenseWithID.Use(middleware.ExtractUintParam("id", "expenseID"))
			{
				expenseWithID.GET("", expenseHandler.Get)
				expenseWithID.PATCH("", expenseHandler.Update)
				expenseWithID.DELETE("", expenseHandler.Delete)
			}
		}
	}

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	readTimeout := cfg.Server.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10
	}
	writeTimeout := cfg.Server.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
	}

	go func() {
		log.Printf("Server listening on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}

	if sqlDB, err := database.GetSQLDB(db); err == nil {
		sqlDB.Close()
	}
	redisClient.Close()

	log.Println("Server stopped")
}
