//	@title			Pixelscan API
//	@version		1.0
//	@description	Image upload and object-detection service.
//
//	@host		localhost:8080
//	@BasePath	/api/v1

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/pixelscan/service/internal/config"
	"github.com/pixelscan/service/internal/db"
	"github.com/pixelscan/service/internal/detection"
	"github.com/pixelscan/service/internal/image"
	"github.com/pixelscan/service/internal/logging"
	"github.com/pixelscan/service/internal/metrics"
	appMiddleware "github.com/pixelscan/service/internal/middleware"
	"github.com/pixelscan/service/internal/storage"
	"github.com/pixelscan/service/internal/vision"

	_ "github.com/pixelscan/service/docs"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.IsProduction())

	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("blob storage init failed")
	}

	detector := vision.NewHTTPDetector(cfg.DetectorURL, cfg.DetectorTimeout, cfg.ConfidenceThreshold)
	if err := detector.Warmup(context.Background()); err != nil {
		// The provider may come up after us; analysis requests will surface
		// its availability per call.
		log.Warn().Err(err).Msg("detection provider warmup failed")
	}

	reg := metrics.NewRegistry()

	// Wire dependencies: repository → service → handler
	imageRepo := image.NewRepository(pool)
	imageSvc := image.NewService(imageRepo, store, reg)
	imageHandler := image.NewHandler(imageSvc, store, cfg.MaxUploadBytes)

	detRepo := detection.NewRepository(pool)
	detSvc := detection.NewService(pool, imageRepo, detRepo, store, vision.NewStdDecoder(), detector, reg)
	detHandler := detection.NewHandler(detSvc)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", reg.Handler())

	// Swagger UI — available at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/images", func(r chi.Router) {
			r.Post("/upload", imageHandler.Upload)
			r.Get("/", imageHandler.List)
			r.Get("/{imageID}", imageHandler.Get)
			r.Get("/{imageID}/file", imageHandler.Download)
			r.Delete("/{imageID}", imageHandler.Delete)

			r.Post("/{imageID}/analyze", detHandler.Analyze)
			r.Get("/{imageID}/detections", detHandler.ListForImage)
		})
		r.Get("/detections", detHandler.ListAll)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	log.Info().Msg("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}

// newStore picks the blob storage backend from configuration.
func newStore(cfg *config.Config) (storage.Store, error) {
	if cfg.StorageBackend == "minio" {
		return storage.NewMinioStore(
			cfg.StorageEndpoint,
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			cfg.StorageBucket,
			cfg.StorageUseSSL,
		)
	}
	return storage.NewFileStore(cfg.UploadDir)
}
