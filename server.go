package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"Charla/controllers"
	"Charla/middleware"
	"Charla/pkg/cache"
	"Charla/pkg/chat"
	"Charla/pkg/config"
	"Charla/pkg/database"
	"Charla/pkg/extract"
	"Charla/pkg/guest"
	"Charla/pkg/llm"
	"Charla/pkg/logger"
	"Charla/pkg/storage"
	"Charla/pkg/store"
	"Charla/routes"
)

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	cfg.LogSummary(log)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	blobs, err := newBlobStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	extractCache := cache.New(cfg.ExtractCacheMaxItems, time.Minute)
	defer extractCache.Close()
	extractor := extract.New(blobs, extractCache, time.Duration(cfg.ExtractCacheTTLSeconds)*time.Second, log)

	var provider llm.Provider = &llm.LocalProvider{Delay: 15 * time.Millisecond}
	if cfg.ProviderEnabled() {
		provider = llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, log)
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, using the local provider")
	}

	st := store.New(db)
	orch := chat.NewOrchestrator(st, provider, extractor, chat.Options{
		DefaultModel:    cfg.DefaultModel,
		MultimodalModel: cfg.MultimodalModel,
		TitleMaxLength:  cfg.TitleMaxLength,
	}, log)

	middleware.SetRateLimitConfig(time.Duration(cfg.RateLimitWindowSeconds)*time.Second, cfg.RateLimitCapacity)

	deps := &controllers.Deps{
		Config:       cfg,
		Store:        st,
		Orchestrator: orch,
		Blobs:        blobs,
		Guest:        guest.Policy{Limit: cfg.GuestLimit, Window: cfg.GuestWindow},
		Log:          log,
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		// replies still streaming from the provider get saved before exit
		if err := orch.Wait(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("pending replies not saved before timeout")
		}
		return nil
	})
	return g.Wait()
}

func newRouter(d *controllers.Deps) *gin.Engine {
	if d.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logging(d.Log), middleware.Metrics())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     d.Config.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "x-conversation-id", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, d)
	return r
}

func newBlobStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.BlobStore, error) {
	if cfg.StorageBackend == "s3" {
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:     cfg.S3Endpoint,
			PublicURL:    cfg.S3PublicURL,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKeyID:  cfg.S3AccessKeyID,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		}, log)
		if err != nil {
			return nil, err
		}
		if err := s3.Health(ctx); err != nil {
			log.Warn().Err(err).Str("bucket", cfg.S3Bucket).Msg("bucket not reachable at startup")
		}
		return s3, nil
	}
	local, err := storage.NewLocalStore(cfg.LocalStoragePath, cfg.LocalStorageURL, log)
	if err != nil {
		return nil, err
	}
	return local, nil
}
