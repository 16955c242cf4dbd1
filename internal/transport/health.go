package transport

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// HealthMonitor periodically checks that a Transport's connection is alive
// and triggers a reconnect when it isn't. It runs until its context is
// canceled, mirroring the teacher's keepalive goroutine lifecycle in
// internal/tunnel/server.go but driven by the transport's own CheckAlive
// rather than an SSH keepalive request.
type HealthMonitor struct {
	transport *Transport
	interval  time.Duration
}

// NewHealthMonitor builds a monitor that checks liveness every interval.
func NewHealthMonitor(t *Transport, interval time.Duration) *HealthMonitor {
	return &HealthMonitor{transport: t, interval: interval}
}

// Run blocks, checking liveness on each tick and reconnecting on failure,
// until ctx is canceled.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.transport.CheckAlive(); err != nil {
				log.Warn().Err(err).Msg("transport: health check failed, reconnecting")
				if err := m.transport.Reconnect(ctx); err != nil {
					log.Error().Err(err).Msg("transport: reconnect failed")
				}
			}
		}
	}
}
