package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zjrosen/rankreg/internal/config"
	"github.com/zjrosen/rankreg/internal/flags"
	"github.com/zjrosen/rankreg/internal/log"
	"github.com/zjrosen/rankreg/internal/metrics"
	"github.com/zjrosen/rankreg/internal/registry"
	"github.com/zjrosen/rankreg/internal/tracing"
)

// runtime bundles the registry with the observability it was built with.
type runtime struct {
	registry *registry.Registry
	tracing  *tracing.Provider
	gatherer prometheus.Gatherer
}

// openRuntime validates the loaded configuration and assembles the registry.
func openRuntime() (*runtime, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	opts := []registry.Option{registry.WithTracer(tp.Tracer())}
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		opts = append(opts, registry.WithMetrics(metrics.New(
			metrics.WithNamespace(cfg.Metrics.Namespace),
			metrics.WithRegistry(reg),
		)))
		gatherer = reg
	}

	r, err := registry.New(cfg, flags.New(cfg.Flags), opts...)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}
	return &runtime{registry: r, tracing: tp, gatherer: gatherer}, nil
}

// Close stops the registry and flushes pending spans.
func (rt *runtime) Close() {
	rt.registry.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.tracing.Shutdown(ctx); err != nil {
		log.Warn(log.CatTrace, "tracing shutdown failed", "error", err)
	}
}
