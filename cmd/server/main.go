package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-contrib/sessions"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/day-planner-api/internal/config"
	"github.com/yukikurage/day-planner-api/internal/constants"
	"github.com/yukikurage/day-planner-api/internal/database"
	"github.com/yukikurage/day-planner-api/internal/handlers"
	"github.com/yukikurage/day-planner-api/internal/logging"
	"github.com/yukikurage/day-planner-api/internal/middleware"
	"github.com/yukikurage/day-planner-api/internal/repository"
	"github.com/yukikurage/day-planner-api/internal/schedule"
	"github.com/yukikurage/day-planner-api/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Failed to resolve time zone: %v", err)
	}

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	// Connect to database
	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.Migrate(db, log); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Gin router
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	// Setup session middleware with Redis
	store, err := redisStore.NewStore(
		10,            // Redis pool size
		"tcp",         // network type
		cfg.RedisAddr(),
		"",            // password (empty = no password; sessions v1.0.2 has no username parameter)
		[]byte(cfg.SessionSecret),
	)
	if err != nil {
		log.Fatalf("Failed to create Redis store: %v", err)
	}
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(constants.SessionCookieName, store))

	// Initialize AI drafting
	var drafter services.TaskDrafter
	if cfg.OpenAIAPIKey != "" {
		drafter = services.NewAIService(cfg.OpenAIAPIKey)
	}

	// Initialize services
	userRepo := repository.NewUserRepository(db)
	clk := clock.New()
	taskRepo := repository.NewTaskRepositoryWithClock(db, clk)
	authService := services.NewAuthService(userRepo)
	scheduleService := services.NewScheduleService(taskRepo, services.ScheduleOptions{
		Clock:         clk,
		Location:      loc,
		Logger:        log,
		RetryAttempts: cfg.RemoteRetryAttempts,
		RetryDelay:    cfg.RemoteRetryDelay,
		Drafter:       drafter,
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, scheduleService)
	taskHandler := handlers.NewTaskHandler(scheduleService, log)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Day Planner API is running",
			"today":   scheduleService.Today(),
		})
	})

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", middleware.RequireAuth(), authHandler.GetCurrentUser)
		}

		// Task history routes (protected)
		tasks := api.Group("/tasks")
		tasks.Use(middleware.RequireAuth())
		{
			tasks.GET("", taskHandler.ListTasks)
			tasks.POST("/sweep", taskHandler.Sweep)
		}

		// Day schedule routes (protected)
		day := api.Group("/schedule/:date")
		day.Use(middleware.RequireAuth(), middleware.RequireDateKey())
		{
			day.GET("", taskHandler.GetDay)
			day.POST("/tasks", taskHandler.CreateTask)
			day.PATCH("/tasks/:id", taskHandler.UpdateTask)
			day.DELETE("/tasks/:id", taskHandler.DeleteTask)
			day.POST("/tasks/:id/toggle", taskHandler.ToggleTask)
			day.GET("/tasks/:id/calendar", taskHandler.CalendarLink)
			day.PUT("/order", taskHandler.ReorderTasks)
			day.POST("/drafts", taskHandler.DraftTasks)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Auto-complete passed tasks in the background
	sweeper := schedule.NewSweeper(clk, cfg.SweepInterval, scheduleService.SweepAll, log)
	sweeper.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	sweeper.Stop()
}
