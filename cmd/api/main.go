package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/carebridge/carebridge-api/internal/config"
	"github.com/carebridge/carebridge-api/internal/handlers"
	"github.com/carebridge/carebridge-api/internal/jobs"
	"github.com/carebridge/carebridge-api/internal/logger"
	"github.com/carebridge/carebridge-api/internal/middleware"
	"github.com/carebridge/carebridge-api/internal/realtime"
	"github.com/carebridge/carebridge-api/internal/services"
	"github.com/carebridge/carebridge-api/internal/store"
	"github.com/carebridge/carebridge-api/internal/utils"
)

func main() {
	if err := newRootCmd(runServer).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the CLI. Running it without a subcommand serves the API.
func newRootCmd(serve func() error) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "carebridge-api",
		Short:        "CareBridge appointment and queue API",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	rootCmd.AddCommand(serveCmd(serve))
	rootCmd.AddCommand(indexesCmd())
	rootCmd.AddCommand(hospitalsCmd())
	return rootCmd
}

func serveCmd(serve func() error) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Env, cfg.LogLevel)
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database ---
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, db, err := store.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("disconnect mongodb")
		}
	}()
	log.Info().Str("database", cfg.MongoDatabase).Msg("connected to MongoDB")

	if err := store.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	// --- Realtime ---
	hub := realtime.NewHub(log)
	realtime.SetAllowedOrigins(cfg.CORSOrigins)
	var events realtime.Publisher = hub
	if cfg.RedisURL != "" {
		rdb, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		bus := realtime.NewRedisBus(rdb, hub, log)
		go func() {
			if err := bus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("redis event bus stopped")
			}
		}()
		events = bus
		log.Info().Msg("fanning out events through Redis")
	}

	// --- Services and handlers ---
	loc := cfg.Location()
	appointments := store.NewAppointmentStore(db)
	queues := store.NewQueueStore(db)
	metrics := middleware.NewMetrics()

	h := handlers.NewHandler(handlers.Deps{
		Users:               store.NewUserStore(db),
		Hospitals:           store.NewHospitalStore(db),
		Doctors:             store.NewDoctorStore(db),
		Appointments:        appointments,
		Queues:              queues,
		NotificationSvc:     services.NewNotificationService(cfg.TextbeltAPIKey, loc, log),
		Chat:                services.NewChatService(cfg.GeminiAPIKey, cfg.GeminiModel, log),
		Predictor:           services.NewPredictionService(cfg.MLServiceURL, log),
		Events:              events,
		Hub:                 hub,
		Tokens:              utils.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL),
		Metrics:             metrics,
		Log:                 log,
		Location:            loc,
		CancellationWindow:  cfg.CancellationWindow,
		DefaultConsultation: cfg.ConsultationMinutes,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	})

	// --- Gin Router ---
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(metrics.Middleware())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.GET("/metrics", metrics.Handler())
	h.Routes(r)

	// --- Jobs ---
	var scheduler *jobs.Scheduler
	if cfg.JobsEnabled {
		scheduler = jobs.New(appointments, queues, events, loc, log)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		switch o {
		case "":
		case "*":
			cfg.AllowAllOrigins = true
			cfg.AllowOrigins = nil
			return cfg
		default:
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowCredentials = true
	return cfg
}
