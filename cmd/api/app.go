package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/medcoder/internal/application"
	appcoding "github.com/bryanwahyu/medcoder/internal/application/coding"
	appdeid "github.com/bryanwahyu/medcoder/internal/application/deid"
	appdocs "github.com/bryanwahyu/medcoder/internal/application/documents"
	apppipeline "github.com/bryanwahyu/medcoder/internal/application/pipeline"
	"github.com/bryanwahyu/medcoder/internal/config"
	"github.com/bryanwahyu/medcoder/internal/domain/coding"
	"github.com/bryanwahyu/medcoder/internal/infra/ai/openai"
	"github.com/bryanwahyu/medcoder/internal/infra/ai/prompt"
	"github.com/bryanwahyu/medcoder/internal/infra/ai/vertex"
	"github.com/bryanwahyu/medcoder/internal/infra/db"
	"github.com/bryanwahyu/medcoder/internal/infra/docinspect"
	"github.com/bryanwahyu/medcoder/internal/infra/errorreport"
	"github.com/bryanwahyu/medcoder/internal/infra/httpserver"
	"github.com/bryanwahyu/medcoder/internal/infra/ocr"
	"github.com/bryanwahyu/medcoder/internal/infra/redaction"
	"github.com/bryanwahyu/medcoder/internal/infra/sftp"
	"github.com/bryanwahyu/medcoder/internal/infra/storage"
	"github.com/bryanwahyu/medcoder/internal/middleware"
)

// app holds every wired component; Close releases what needs releasing.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *db.Store
	files    *sftp.Client
	archive  *storage.Store
	reporter *errorreport.Reporter
	pipeline *apppipeline.Service
	docs     *appdocs.Service
	metrics  *middleware.Metrics
	limiter  *middleware.RateLimiter
	closers  []func() error
}

func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, metrics: middleware.NewMetrics()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	p := cfg.Pipeline
	files, err := sftp.NewClient(sftp.Config{
		Host:           p.FileStore.Host,
		Port:           p.FileStore.Port,
		Username:       p.FileStore.Username,
		Password:       p.FileStore.Password,
		PrivateKeyPath: p.FileStore.PrivateKeyPath,
		KnownHostsPath: p.FileStore.KnownHostsPath,
		Root:           p.FileStore.Root,
		DialTimeout:    p.FileStore.DialTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("sftp: %w", err)
	}
	a.files = files

	generator, err := newGenerator(ctx, cfg.Generator)
	if err != nil {
		return nil, err
	}
	if c, isVertex := generator.(*vertex.Client); isVertex {
		a.closers = append(a.closers, c.Close)
	}

	reporter, err := errorreport.New(cfg.Sentry, nil)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	a.reporter = reporter
	a.closers = append(a.closers, func() error {
		reporter.Flush(2 * time.Second)
		return nil
	})

	retry := application.RetryPolicy{
		MaxAttempts:     p.Retry.MaxAttempts,
		InitialInterval: p.Retry.InitialInterval,
		MaxInterval:     p.Retry.MaxInterval,
	}
	deidSvc := &appdeid.Service{
		OCR:           ocr.NewClient(p.OCREndpoint, p.OCRAPIKey, p.OCRTimeout),
		Store:         files,
		Redactor:      redaction.NewClient(p.RedactionEndpoint, p.RedactionTimeout),
		Retry:         retry,
		Log:           log.With().Str("component", "deid").Logger(),
		RemoteRoot:    files.Root(),
		StagingSubdir: p.StagingSubdir,
		OutputSubdir:  p.OutputSubdir,
		WorkDir:       p.WorkDir,
	}
	codingSvc := &appcoding.Service{
		Generator:       generator,
		Instructions:    prompt.Coding(cfg.Generator.AllowedChapters),
		AllowedChapters: cfg.Generator.AllowedChapters,
		Retry:           retry,
		Log:             log.With().Str("component", "coding").Logger(),
	}
	a.pipeline = &apppipeline.Service{
		Deid:          deidSvc,
		Coder:         codingSvc,
		Reporter:      reporter,
		Log:           log.With().Str("component", "pipeline").Logger(),
		KeepWorkFiles: p.KeepWorkFiles,
	}

	a.docs = &appdocs.Service{
		Repo:      store.Documents,
		Failures:  store.Failures,
		Pipeline:  a.pipeline,
		Inspector: docinspect.Inspector{MaxPages: p.MaxPages},
		Metrics:   a.metrics,
		Clock:     application.SystemClock{},
		Log:       log.With().Str("component", "documents").Logger(),
		TempDir:   p.WorkDir,
	}
	if cfg.Minio.Enabled {
		archive, err := storage.New(ctx, cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio init error: %w", err)
		}
		a.archive = archive
		a.docs.Artifacts = archive
	}

	rl := cfg.Server.RateLimit
	a.limiter = middleware.NewRateLimiter(rl.RequestsPerSecond, rl.Burst)
	ok = true
	return a, nil
}

func newGenerator(ctx context.Context, cfg config.GeneratorConfig) (coding.Generator, error) {
	switch cfg.Provider {
	case "", "openai":
		return openai.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	case "vertex":
		c, err := vertex.NewClient(ctx, cfg.ProjectID, cfg.Region, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("vertex: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("generator provider %q is not supported", cfg.Provider)
	}
}

// Handler builds the HTTP API with health checks for every external dependency.
func (a *app) Handler() http.Handler {
	health := map[string]middleware.HealthChecker{
		"database":   middleware.CheckFunc(a.store.Ping),
		"file_store": middleware.CheckFunc(a.files.Ping),
	}
	if a.archive != nil {
		health["archive"] = middleware.CheckFunc(a.archive.Ping)
	}
	return httpserver.NewRouter(a.docs, httpserver.Options{
		APIKeys:        a.cfg.Server.APIKeys,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		Limiter:        a.limiter,
		Metrics:        a.metrics,
		Health:         health,
		MaxUploadBytes: a.cfg.Server.MaxUploadMB << 20,
		Log:            a.log.With().Str("component", "http").Logger(),
	})
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}
