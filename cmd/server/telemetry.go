package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/invitely/backend/internal/infrastructure/config"
	"github.com/invitely/backend/internal/infrastructure/telemetry"
)

// telemetryProviders holds the OpenTelemetry providers and the profiler
type telemetryProviders struct {
	tracer   *telemetry.TracerProvider
	meter    *telemetry.MeterProvider
	logs     *telemetry.LoggerProvider
	profiler *telemetry.Profiler
	cfg      config.TelemetryConfig
	env      string
}

// setupTelemetry starts the log provider first so the application logger
// can bridge into it; tracing, metrics and profiling start in attachLogger.
func setupTelemetry(ctx context.Context, cfg *config.Config) (*telemetryProviders, error) {
	t := cfg.Telemetry
	logs, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           t.Enabled && t.LogsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize log export: %w", err)
	}
	return &telemetryProviders{logs: logs, cfg: t, env: cfg.App.Env}, nil
}

// attachLogger starts the remaining providers. Failures disable the
// provider and are logged; telemetry never stops the service.
func (p *telemetryProviders) attachLogger(log *zap.Logger) {
	ctx := context.Background()
	t := p.cfg

	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		SamplingRatio:     t.SamplingRatio,
		ServiceName:       t.ServiceName,
		ServiceVersion:    version,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		log.Warn("Tracing disabled", zap.Error(err))
		tracer, _ = telemetry.NewTracerProvider(ctx, telemetry.Config{}, log)
	}
	p.tracer = tracer

	meter, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           t.Enabled && t.MetricsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ExportInterval:    t.MetricsExportInterval,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		log.Warn("Metrics disabled", zap.Error(err))
		meter, _ = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{}, log)
	}
	p.meter = meter

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           t.ProfilingEnabled,
		ServerAddress:     t.PyroscopeAddress,
		ApplicationName:   t.ServiceName,
		BasicAuthUser:     t.PyroscopeAuthUser,
		BasicAuthPassword: t.PyroscopeAuthPassword,
		Tags:              map[string]string{"env": p.env, "version": version},
	}, log)
	if err != nil {
		log.Warn("Profiling disabled", zap.Error(err))
		profiler, _ = telemetry.NewProfiler(telemetry.ProfilerConfig{}, log)
	}
	p.profiler = profiler
	if profiler.IsEnabled() {
		p.tracer.EnableSpanProfiles()
	}
}

func (p *telemetryProviders) shutdown(ctx context.Context, log *zap.Logger) {
	if p.profiler != nil {
		if err := p.profiler.Stop(); err != nil {
			log.Warn("Profiler stop failed", zap.Error(err))
		}
	}
	if p.meter != nil {
		if err := p.meter.Shutdown(ctx); err != nil {
			log.Warn("Meter provider shutdown failed", zap.Error(err))
		}
	}
	if p.tracer != nil {
		if err := p.tracer.Shutdown(ctx); err != nil {
			log.Warn("Tracer provider shutdown failed", zap.Error(err))
		}
	}
	// Last, so the shutdown warnings above are exported too
	if err := p.logs.Shutdown(ctx, log); err != nil {
		log.Warn("Log provider shutdown failed", zap.Error(err))
	}
}
