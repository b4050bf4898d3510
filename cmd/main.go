// Package main is the entry point for the check-in scanner station.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/asean-events/checkin-station/internal/cache"
	"github.com/asean-events/checkin-station/internal/camera"
	"github.com/asean-events/checkin-station/internal/config"
	"github.com/asean-events/checkin-station/internal/database"
	"github.com/asean-events/checkin-station/internal/detect"
	"github.com/asean-events/checkin-station/internal/feedback"
	"github.com/asean-events/checkin-station/internal/handler"
	"github.com/asean-events/checkin-station/internal/overlay"
	"github.com/asean-events/checkin-station/internal/session"
	"github.com/asean-events/checkin-station/internal/upstream"
	"github.com/asean-events/checkin-station/internal/verify"
)

func main() {
	// Parse command line flags
	port := flag.String("port", "", "Server port (overrides SERVER_PORT env var)")
	upstreamURL := flag.String("upstream", "", "Check-in API base URL (overrides UPSTREAM_URL env var)")
	detector := flag.String("detector", "", "Barcode detector: zxing or none (overrides BARCODE_DETECTOR env var)")
	flag.Parse()

	// Override environment variables if flags are provided
	if *port != "" {
		os.Setenv("SERVER_PORT", *port)
	}
	if *upstreamURL != "" {
		os.Setenv("UPSTREAM_URL", *upstreamURL)
	}
	if *detector != "" {
		os.Setenv("BARCODE_DETECTOR", *detector)
	}

	app := fx.New(
		fx.Provide(
			config.New,
			newLogger,
			newGinEngine,
			camera.NewHub,
			newReader,
			newDetector,
			newRenderer,
			newSynth,
			upstream.NewClient,
			newJournal,
			newCache,
			newVerifier,
			newController,
			newHandler,
		),
		fx.Invoke(startServer),
	)

	app.Run()
}

// newLogger creates a new zap logger based on the environment.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newGinEngine creates and configures a new Gin engine.
func newGinEngine(cfg *config.Config) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	// CORS middleware
	engine.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Header("Access-Control-Expose-Headers", "X-Cue-Kind, X-Vibration")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	return engine
}

func newReader(hub *camera.Hub, logger *zap.Logger) *camera.Reader {
	return camera.NewReader(hub, func() camera.Decoder { return camera.NewZXingDecoder() }, logger)
}

func newDetector(cfg *config.Config, logger *zap.Logger) (detect.Detector, error) {
	d, err := detect.New(cfg.BarcodeDetector)
	if err != nil {
		return nil, err
	}
	logger.Info("Barcode detector ready", zap.String("kind", cfg.BarcodeDetector))
	return d, nil
}

func newRenderer(cfg *config.Config, logger *zap.Logger) *overlay.Renderer {
	return overlay.NewRenderer(cfg.CaptureInset, logger)
}

func newSynth(cfg *config.Config, logger *zap.Logger) *feedback.Synth {
	return feedback.NewSynth(feedback.NewBufferOutput(), cfg.AudioSampleRate, logger)
}

// newJournal connects the scan journal. The station keeps scanning without
// it, so connection failures are logged rather than fatal.
func newJournal(cfg *config.Config, logger *zap.Logger) database.Repository {
	if cfg.DatabaseURL == "" {
		return nil
	}
	repo, err := database.NewPostgresRepository(cfg, logger)
	if err != nil {
		logger.Warn("Scan journal disabled", zap.Error(err))
		return nil
	}
	return repo
}

// newCache connects the event list cache. Without it events are fetched
// from the check-in API on every request.
func newCache(cfg *config.Config, logger *zap.Logger) cache.Cache {
	if cfg.RedisURL == "" {
		return nil
	}
	c, err := cache.NewRedisCache(cfg, logger)
	if err != nil {
		logger.Warn("Event cache disabled", zap.Error(err))
		return nil
	}
	return c
}

func newVerifier(client *upstream.Client, synth *feedback.Synth, repo database.Repository, cfg *config.Config, logger *zap.Logger) *verify.Client {
	var journal verify.Journal
	if repo != nil {
		journal = repo
	}
	return verify.NewClient(client, synth, journal, verify.Options{
		Timeout:  cfg.VerifyTimeout,
		Location: cfg.Location(),
	}, logger)
}

func newController(reader *camera.Reader, detector detect.Detector, renderer *overlay.Renderer, verifier *verify.Client, cfg *config.Config, logger *zap.Logger) *session.Controller {
	return session.NewController(reader, detector, renderer, verifier, session.Options{
		Margin:   cfg.AlignMargin,
		Interval: cfg.DetectInterval,
	}, logger)
}

func newHandler(
	controller *session.Controller,
	hub *camera.Hub,
	renderer *overlay.Renderer,
	synth *feedback.Synth,
	client *upstream.Client,
	eventCache cache.Cache,
	repo database.Repository,
	logger *zap.Logger,
) *handler.Handler {
	return handler.NewHandler(handler.Dependencies{
		Scanner: controller,
		Devices: hub,
		Overlay: renderer,
		Cues:    synth,
		Events:  client,
		Cache:   eventCache,
		Journal: repo,
	}, logger)
}

// startServer registers the routes and ties the station's resources to the
// application lifecycle.
func startServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
	engine *gin.Engine,
	h *handler.Handler,
	controller *session.Controller,
	synth *feedback.Synth,
	repo database.Repository,
	eventCache cache.Cache,
) {
	logger.Info("Starting check-in station",
		zap.String("port", cfg.ServerPort),
		zap.String("upstream", cfg.UpstreamURL),
	)

	// Health check endpoint
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "checkin-station",
			"journal": repo != nil,
			"cache":   eventCache != nil,
		})
	})

	// Setup API versioned routes
	h.RegisterRoutes(engine.Group("/api/v1"))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("Server starting", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Server shutting down")

			err := server.Shutdown(ctx)

			_ = controller.Close()
			_ = synth.Close()
			if repo != nil {
				repo.Close()
			}
			if eventCache != nil {
				_ = eventCache.Close()
			}

			return err
		},
	})
}
