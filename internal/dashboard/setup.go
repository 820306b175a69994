// Package dashboard serves the program views and the session catalogue to the
// front end.
package dashboard

import (
	"context"

	"go.uber.org/zap"

	"github.com/cordoba-data/program-dashboard/internal/config"
	"github.com/cordoba-data/program-dashboard/internal/feedback"
	"github.com/cordoba-data/program-dashboard/internal/history"
	"github.com/cordoba-data/program-dashboard/internal/loader"
	"github.com/cordoba-data/program-dashboard/internal/source"
	"github.com/cordoba-data/program-dashboard/internal/telemetry"
	"github.com/cordoba-data/program-dashboard/internal/views"

	// Source registrations.
	_ "github.com/cordoba-data/program-dashboard/internal/gitlab"
	_ "github.com/cordoba-data/program-dashboard/internal/mirror"
)

// Setup wires the server from configuration. An invalid configuration does
// not fail: the server then answers every data request with a diagnostic.
// store may be nil.
func Setup(ctx context.Context, cfg config.Config, log *zap.Logger, metrics *telemetry.Metrics, store *history.Store) *Server {
	opts := Options{
		Views: views.NewBuilder(
			views.WithLocation(cfg.Location()),
			views.WithMetrics(metrics),
			views.WithLogger(log),
		),
		Log: log,
	}

	var fbRecorder feedback.Recorder
	if store != nil {
		fbRecorder = store
		opts.Runs = store
	}
	opts.Feedback = feedback.SetupRoutes(feedback.NewHandler(feedback.NewClient(cfg.Feedback.WebhookURL, log), fbRecorder, log))

	src, err := source.New(ctx, cfg, log)
	if err != nil {
		log.Error("data source unavailable", zap.Error(err))
		opts.ConfigErr = err
		return NewServer(opts)
	}

	loaderOpts := []loader.Option{
		loader.WithConcurrency(cfg.DataRepo.Concurrency),
		loader.WithMetrics(metrics),
	}
	if store != nil {
		loaderOpts = append(loaderOpts, loader.WithRecorder(store))
	}
	l := loader.New(src, log, loaderOpts...)
	opts.Build = l.Build

	return NewServer(opts)
}
