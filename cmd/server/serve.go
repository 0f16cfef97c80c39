package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"photo-transform-go/config"
	"photo-transform-go/internal/api/handlers"
	"photo-transform-go/internal/api/middleware"
	"photo-transform-go/internal/cleanup"
	"photo-transform-go/internal/core/processor"
	"photo-transform-go/internal/db"
	"photo-transform-go/internal/db/repository"
	"photo-transform-go/internal/inference"
	"photo-transform-go/internal/integrations/mqtt"
	"photo-transform-go/internal/pipeline"
	"photo-transform-go/internal/server/sse"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	cleanupInterval = 24 * time.Hour
	shutdownTimeout = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the transformation workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	log.Info("Initializing database...")
	gdb, err := db.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close(gdb)
	repo := repository.NewSQLiteRepository(gdb)

	backend, err := inference.NewClient(cfg.Inference)
	if err != nil {
		return fmt.Errorf("failed to create inference client: %w", err)
	}

	hub := sse.NewHub()
	go hub.Run(ctx)

	orchestrator := pipeline.NewOrchestrator(backend, cfg.Pipeline, cfg.Inference.Timeouts,
		pipeline.WithObserver(func(runID string, from, to pipeline.State) {
			hub.BroadcastState(runID, from.String(), to.String())
		}),
	)

	mqttClient := mqtt.NewClient(cfg.MQTT)
	if err := mqttClient.Start(); err != nil {
		// Ohne Broker läuft die Anwendung weiter, Ereignisse gehen dann verloren
		log.Warnf("MQTT client not started: %v", err)
	}
	defer mqttClient.Stop()

	imageProcessor := processor.NewImageProcessor(repo, orchestrator, cfg, mqttClient, hub)
	pool := processor.NewWorkerPool(imageProcessor, cfg.Workers)
	defer pool.Shutdown()

	if cleanupService := cleanup.NewService(repo, cfg.Cleanup.RetentionDays, cfg.Server.SnapshotDir, cleanupInterval); cleanupService != nil {
		cleanupService.StartBackgroundCleanup()
		defer cleanupService.StopBackgroundCleanup()
	}

	translator, err := middleware.NewTranslator(cfg.I18n.DefaultLanguage)
	if err != nil {
		return fmt.Errorf("failed to load translations: %w", err)
	}

	router := newRouter(cfg, translator)
	handlers.NewAPIHandler(repo, cfg, pool, backend, hub).RegisterRoutes(router.Group("/api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("Server stopped")
	return nil
}

func newRouter(cfg *config.Config, translator *middleware.Translator) *gin.Engine {
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = cfg.Upload.MaxBytes + 1<<20

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept-Language"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.Server.AllowOrigins) == 0 || slices.Contains(cfg.Server.AllowOrigins, "*") {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.Server.AllowOrigins
	}
	router.Use(cors.New(corsConfig))

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	store.Options(sessions.Options{Path: "/", MaxAge: 30 * 24 * 3600, HttpOnly: true})
	router.Use(sessions.Sessions("photo_transform", store))
	router.Use(middleware.I18n(translator))

	router.Static(cfg.Server.SnapshotURL, cfg.Server.SnapshotDir)
	return router
}
