package services

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"keyforge/pkg/contracts"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthService provides health check functionality
type HealthService struct {
	deps      map[string]Pinger
	timeout   time.Duration
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual dependency health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthService creates a health service checking deps on readiness
func NewHealthService(deps map[string]Pinger, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		deps:      deps,
		timeout:   2 * time.Second,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck is the liveness answer; it never touches dependencies
func (hs *HealthService) HealthCheck(context.Context) HealthStatus {
	return HealthStatus{
		Status:    "online",
		Timestamp: time.Now().UTC(),
		Version:   contracts.Version,
	}
}

// ReadinessCheck pings every dependency
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Version:   contracts.Version,
		Services:  make(map[string]ServiceHealth, len(hs.deps)),
	}

	names := make([]string, 0, len(hs.deps))
	for name := range hs.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, hs.timeout)
		start := time.Now()
		err := hs.deps[name].Ping(pctx)
		cancel()

		sh := ServiceHealth{Status: "ready", Latency: time.Since(start).String()}
		if err != nil {
			sh.Status = "not_ready"
			sh.Message = "dependency check failed"
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "readiness check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()))
		}
		status.Services[name] = sh
	}
	return status
}

// LivenessCheck adds runtime details to the liveness answer
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	status := hs.HealthCheck(ctx)
	status.Runtime = map[string]interface{}{
		"uptime":     time.Since(hs.startTime).Seconds(),
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	}
	return status
}

// Version returns build and runtime version information
func (hs *HealthService) Version() map[string]interface{} {
	info := contracts.GetVersionInfo()
	return map[string]interface{}{
		"version":     info.Version,
		"api_version": info.APIVersion,
		"build_time":  info.BuildTime,
		"git_commit":  info.GitCommit,
		"go_version":  runtime.Version(),
		"os":          runtime.GOOS,
		"arch":        runtime.GOARCH,
		"start_time":  hs.startTime.UTC().Format(time.RFC3339),
	}
}
