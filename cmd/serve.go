package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cascade-engine/internal/auth"
	"cascade-engine/internal/database"
	"cascade-engine/internal/handlers"
	"cascade-engine/internal/jobs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, resolution poller and generation job",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	auth.InitJWT(cfg.App.JWTSecret)

	if err := connectDB(cfg); err != nil {
		return err
	}

	a, err := newApp(cfg, database.GetDB())
	if err != nil {
		return err
	}

	if err := a.poller.Start(); err != nil {
		return err
	}
	defer a.poller.Stop()

	if cfg.Generation.Enabled {
		if err := a.generation.Rehydrate(context.Background(), cfg.Generation.HistorySize); err != nil {
			log.Warn().Err(err).Msg("starting with empty diversity history")
		}
		genJob := jobs.NewGenerationJob(a.generation, cfg.Generation.Schedule, cfg.Generation.Attempts)
		if err := genJob.Start(); err != nil {
			return err
		}
		defer genJob.Stop()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: newRouter(a),
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	log.Info().Msg("server exited")
	return nil
}

func newRouter(a *app) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
	}
	if a.cfg.Server.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, a.cfg.Server.FrontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"time":    time.Now().Format(time.RFC3339),
			"breaker": a.polymarket.BreakerState(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	resolutionHandler := handlers.NewResolutionHandler(a.queue)
	cascadeHandler := handlers.NewCascadeHandler(a.repo)
	predictionHandler := handlers.NewPredictionHandler(a.predictions, a.repo)

	// Public routes
	router.GET("/api/resolution/status", resolutionHandler.GetStatus)
	router.GET("/api/cascades", cascadeHandler.GetCascades)
	router.GET("/api/cascades/:id", cascadeHandler.GetCascadeByID)
	router.GET("/api/progress/:userId", predictionHandler.GetProgress)

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.POST("/predictions", predictionHandler.CreatePrediction)
	}

	// Admin routes (protected + admin only)
	admin := router.Group("/api/admin")
	admin.Use(auth.AuthMiddleware())
	admin.Use(auth.RequireAdmin())
	{
		admin.POST("/resolution/resolve", resolutionHandler.ResolveManually)
	}

	return router
}
