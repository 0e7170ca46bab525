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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/leaflens/internal/application"
	appai "github.com/bryanwahyu/leaflens/internal/application/ai"
	appplants "github.com/bryanwahyu/leaflens/internal/application/plants"
	"github.com/bryanwahyu/leaflens/internal/config"
	domai "github.com/bryanwahyu/leaflens/internal/domain/ai"
	domain "github.com/bryanwahyu/leaflens/internal/domain/plants"
	"github.com/bryanwahyu/leaflens/internal/infra/ai/gemini"
	"github.com/bryanwahyu/leaflens/internal/infra/ai/openai"
	"github.com/bryanwahyu/leaflens/internal/infra/ai/service"
	"github.com/bryanwahyu/leaflens/internal/infra/db/jsonfile"
	mysqlp "github.com/bryanwahyu/leaflens/internal/infra/db/mysql"
	"github.com/bryanwahyu/leaflens/internal/infra/db/postgres"
	"github.com/bryanwahyu/leaflens/internal/infra/httpserver"
	"github.com/bryanwahyu/leaflens/internal/infra/report"
	minioStore "github.com/bryanwahyu/leaflens/internal/infra/storage"
	"github.com/bryanwahyu/leaflens/internal/logging"
	"github.com/bryanwahyu/leaflens/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "leaflens: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	log, err := logging.New(cfg.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	providers, err := openAI(ctx, cfg, log)
	if err != nil {
		return err
	}

	checks := map[string]middleware.HealthChecker{}
	if c, ok := store.(middleware.HealthChecker); ok {
		checks["store"] = c
	}

	svc := &appplants.Service{
		Store:    store,
		Analyzer: providers.analyzer,
		Reports:  providers.reports,
		Clock:    application.SystemClock{},
		Log:      log.With(zap.String("component", "plants_service")),
	}
	if cfg.MinioEnabled() {
		archive, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		archive.Presign = cfg.Minio.Presign
		svc.Archive = archive
		svc.Renderer = report.NewPDFRenderer()
		checks["reports"] = archive
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.Burst, cfg.Server.RateLimit.RPS)
	defer limiter.Close()

	handler := httpserver.NewRouter(svc, appai.NewService(providers.chatter), httpserver.Options{
		Log:         log,
		CORSOrigins: cfg.Server.CORSOrigins,
		Limiter:     limiter,
		Checks:      checks,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// diagnose waits on the analysis collaborator
		WriteTimeout: cfg.AI.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.String("ai_provider", cfg.AI.Provider),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore picks the record store for the configured driver.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (domain.Store, func(), error) {
	noop := func() {}
	switch cfg.Store.Driver {
	case config.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN(), mysqlp.Pool{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("mysql connect: %w", err)
		}
		return mysqlp.NewPlantRepository(db), func() { _ = db.Close() }, nil
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN(), postgres.Pool{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("postgres connect: %w", err)
		}
		return postgres.NewPlantRepository(db), func() { _ = db.Close() }, nil
	default:
		return jsonfile.New(cfg.Store.Path, log), noop, nil
	}
}

type aiProviders struct {
	analyzer domai.Analyzer
	chatter  domai.Chatter
	reports  domai.ReportSource
}

func openAI(ctx context.Context, cfg *config.Config, log *zap.Logger) (aiProviders, error) {
	switch cfg.AI.Provider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, cfg.AI.GeminiAPIKey, cfg.AI.GeminiModel)
		if err != nil {
			return aiProviders{}, fmt.Errorf("gemini init: %w", err)
		}
		return aiProviders{analyzer: c, chatter: c}, nil
	case config.ProviderOpenAI:
		c := openai.NewClient(cfg.AI.OpenAIAPIKey, cfg.AI.OpenAIModel)
		return aiProviders{analyzer: c, chatter: c}, nil
	case config.ProviderNone:
		log.Warn("no ai provider configured; diagnose and chat are disabled")
		return aiProviders{}, nil
	default:
		c := service.NewClient(cfg.AI.ServiceURL, cfg.AI.Timeout, log)
		return aiProviders{analyzer: c, chatter: c, reports: c}, nil
	}
}
