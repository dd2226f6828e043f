package registry

import (
	"context"
	"log/slog"
	"time"
)

// LivenessProbe checks that a hosted bot token still answers the platform
// API. A nil error refreshes the tenant's liveness timestamp.
type LivenessProbe func(ctx context.Context, token string) error

// Monitor periodically scans the registry: tenants whose process has exited
// are evicted (workspace retained for inspection); live tenants get a
// reachability probe that only refreshes the timestamp, never evicts.
type Monitor struct {
	registry *Registry
	probe    LivenessProbe
	interval time.Duration
	log      *slog.Logger

	// OnEvict, when set, is invoked for each tenant removed by a scan.
	OnEvict func(Tenant)
}

func NewMonitor(registry *Registry, probe LivenessProbe, interval time.Duration) *Monitor {
	return &Monitor{
		registry: registry,
		probe:    probe,
		interval: interval,
		log:      slog.Default().With("component", "registry.monitor"),
	}
}

// Run scans on a fixed interval until the context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan evaluates every tenant once. Each tenant is handled independently so
// one failure never blocks the rest of the pass.
func (m *Monitor) Scan(ctx context.Context) {
	for _, tenant := range m.registry.Snapshot() {
		if tenant.Handle == nil || !tenant.Handle.Alive() {
			if removed, ok := m.registry.Remove(tenant.UserID); ok {
				m.log.Warn("tenant process exited, evicting",
					"user", removed.UserID, "bot", removed.BotUsername)
				if m.OnEvict != nil {
					m.OnEvict(removed)
				}
			}
			continue
		}

		if m.probe == nil {
			continue
		}
		if err := m.probe(ctx, tenant.BotToken); err != nil {
			m.log.Warn("liveness probe failed", "user", tenant.UserID, "err", err)
			continue
		}
		m.registry.Touch(tenant.UserID, time.Now())
	}
}
