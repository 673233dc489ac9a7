// Package app assembles the service from configuration.
package app

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ctgenie/assets"
	"ctgenie/config"
	"ctgenie/db"
	qhttp "ctgenie/http"
	"ctgenie/llm"
	"ctgenie/ml"
	"ctgenie/monitoring"
	"ctgenie/telemetry"
)

type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	snapshot  *assets.Snapshot
	predictor *ml.CachedService
	audit     *db.AuditLog
	recorder  *db.Recorder
	hub       *telemetry.Hub
	metrics   *monitoring.Collector
	watcher   *assets.Watcher
	handlers  *qhttp.Handlers
	server    *qhttp.Server
}

// New loads assets and opens collaborators. An *assets.AssetLoadError means the
// service must not start.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	snapshot, err := assets.Load(ctx, AssetsConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	predictor, err := ml.NewCachedService(snapshot.Service, cfg.Cache.Size)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		snapshot:  snapshot,
		predictor: predictor,
		hub: telemetry.NewHub(telemetry.HubConfig{
			Interval:       cfg.Telemetry.Interval,
			PingPeriod:     cfg.Telemetry.PingPeriod,
			SendBuffer:     cfg.Telemetry.SendBuffer,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		}, logger.Named("telemetry")),
		metrics: monitoring.NewCollector(),
	}
	a.metrics.RegisterGauge("telemetry_clients", func() float64 { return float64(a.hub.Clients()) })
	a.metrics.RegisterGauge("prediction_cache_entries", func() float64 { return float64(predictor.Len()) })
	a.metrics.RegisterGauge("stale_assets", func() float64 {
		if snapshot.Stale() {
			return 1
		}
		return 0
	})

	opts := qhttp.Options{
		Predictor:  predictor,
		Cases:      snapshot.Cases,
		Guidelines: snapshot.Guidelines,
		Stream:     a.hub,
		Metrics:    a.metrics,
		Stale:      snapshot.Stale,
		Logger:     logger,
	}

	client := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, cfg.LLM.Timeout)
	if client.Configured() {
		opts.Explainer = llm.NewExplainer(client)
		logger.Info("llm explainer enabled", zap.String("model", client.Model()))
	} else {
		logger.Info("llm explainer disabled, OPENAI_API_KEY not set")
	}

	if cfg.Database.Path != "" {
		audit, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		a.audit = audit
		a.recorder = db.NewRecorder(audit, cfg.Database.QueueSize, logger.Named("audit"))
		opts.Audit = a.recorder
		if err := audit.RecordModelLoad(ctx, predictor.ModelInfo()); err != nil {
			logger.Warn("model load not recorded", zap.Error(err))
		}
	}

	if cfg.Assets.Watch {
		watcher, err := assets.NewWatcher(snapshot, logger.Named("assets"))
		if err != nil {
			logger.Warn("asset watcher disabled", zap.Error(err))
		} else {
			a.watcher = watcher
		}
	}

	a.handlers = qhttp.NewHandlers(opts)
	a.server = qhttp.NewServer(ServerConfig(cfg), a.handlers, logger.Named("http"))
	return a, nil
}

// AssetsConfig maps the config file section onto the loader's settings.
func AssetsConfig(cfg *config.Config) assets.Config {
	return assets.Config{
		ModelDir:       cfg.Assets.ModelDir,
		CasesDir:       cfg.Assets.CasesDir,
		CaseBatches:    cfg.Assets.CaseBatches,
		SimilarCases:   cfg.Assets.SimilarCases,
		GuidelinesPath: cfg.Assets.GuidelinesPath,
	}
}

// ServerConfig maps the http section onto the server's settings.
func ServerConfig(cfg *config.Config) qhttp.ServerConfig {
	return qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}
}

// Handler is the routed API with its middleware, for serving without Run.
func (a *App) Handler() http.Handler {
	return qhttp.NewHandler(ServerConfig(a.cfg), a.handlers, a.logger.Named("http"))
}

// Run serves until ctx is cancelled, then shuts the server down and waits for the
// background goroutines.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(ctx)
		})
	}
	if a.recorder != nil {
		g.Go(func() error {
			return a.recorder.Run(ctx)
		})
	}
	g.Go(func() error {
		return a.server.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.server.Stop()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the audit database. Call it after Run returns so queued writes are flushed.
func (a *App) Close() error {
	if a.audit != nil {
		return a.audit.Close()
	}
	return nil
}
