package commands

import (
	"fmt"
	"log/slog"

	"github.com/FACorreiaa/kontoexport/internal/domain/jobs"
	"github.com/FACorreiaa/kontoexport/internal/domain/workflow"
	"github.com/FACorreiaa/kontoexport/pkg/config"
	"github.com/FACorreiaa/kontoexport/pkg/cron"
	"github.com/FACorreiaa/kontoexport/pkg/metrics"
	"github.com/FACorreiaa/kontoexport/pkg/storage"
)

// Dependencies holds everything a command needs.
type Dependencies struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Client  *jobs.Client
	Storage storage.Storage

	stopMetrics func()
}

// InitDependencies builds the client stack from configuration.
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics()
	deps.Client = jobs.NewClient(cfg.API, logger, deps.Metrics)

	if err := deps.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	logger.Debug("dependencies initialized",
		slog.String("api_base", cfg.API.BaseURL),
		slog.Duration("poll_interval", cfg.Poll.Interval),
	)
	return deps, nil
}

func (d *Dependencies) initMetrics() {
	d.Metrics = metrics.New()
	if d.Config.Observability.MetricsEnabled {
		d.stopMetrics = d.Metrics.Serve(d.Config.Observability.MetricsAddr, d.Logger)
	}
}

func (d *Dependencies) initStorage() error {
	s, err := storage.NewLocalStorage(d.Config.Output.Dir)
	if err != nil {
		return err
	}
	d.Storage = s
	return nil
}

// NewWorkflow wires a controller with its own poller to presenter.
func (d *Dependencies) NewWorkflow(presenter workflow.Presenter) *workflow.Controller {
	poller := cron.NewPollScheduler(d.Client, d.Config.Poll.Interval, d.Logger, d.Metrics)
	return workflow.New(d.Client, poller, presenter, d.Logger, d.Metrics, workflow.Options{
		Strict: d.Config.Review.Strict,
	})
}

// Close releases background resources.
func (d *Dependencies) Close() {
	if d.stopMetrics != nil {
		d.stopMetrics()
	}
}
