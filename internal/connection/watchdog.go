package connection

import (
	"context"
	"fmt"
	"net"
	"time"
)

// defaultProbeTimeout bounds a latency probe when configuration omits one.
const defaultProbeTimeout = 3 * time.Second

// RunWatchdog monitors the session at the configured interval until the
// context is cancelled. Each tick measures broker round-trip latency and
// probes socket liveness; failures trigger a transport-level reconnect
// first, and a full connect with refreshed configuration after persistent
// failure.
//
// At most one probe is in flight at a time. A slow probe causes ticks to be
// skipped, never stacked, and probing never blocks the publish path.
func (m *Manager) RunWatchdog(ctx context.Context) {
	interval := time.Duration(m.watchdog.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	m.logger.Info("watchdog started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("watchdog stopped")
			return
		case <-ticker.C:
			if !m.probeInFlight.CompareAndSwap(false, true) {
				m.logger.Debug("previous probe still in flight, skipping tick")
				continue
			}
			go func() {
				defer m.probeInFlight.Store(false)
				m.probe(ctx)
			}()
		}
	}
}

// probe performs one watchdog pass.
func (m *Manager) probe(ctx context.Context) {
	m.mu.Lock()
	client := m.client
	cfg := m.cfg
	m.mu.Unlock()

	healthy := m.State() == StateConnected && client != nil && client.IsConnectionOpen()

	if cfg != nil {
		latency, err := m.measureLatency(cfg.Broker.Host, cfg.Broker.Port)
		if err != nil {
			m.logger.Warn("latency probe failed", "error", err)
			healthy = false
		} else {
			m.latencyMS.Store(latency)
			m.logger.Debug("latency probe", "latency_ms", latency)
		}
	}

	if healthy {
		m.probeFailures.Store(0)
		return
	}

	failures := m.probeFailures.Add(1)
	m.logger.Warn("watchdog detected unhealthy session", "consecutive_failures", failures)

	threshold := int32(m.watchdog.FullReconnectAfter) //nolint:gosec // small config value
	if threshold <= 0 {
		threshold = 3
	}

	if failures < threshold {
		if err := m.transportReconnect(ctx); err != nil {
			m.logger.Warn("transport reconnect failed", "error", err)
			return
		}
		m.probeFailures.Store(0)
		return
	}

	// Persistent failure: fall back to the full connect path with freshly
	// loaded configuration and a new session bdSeq.
	m.logger.Warn("falling back to full reconnect", "consecutive_failures", failures)
	if err := m.fullReconnect(ctx); err != nil {
		m.logger.Error("full reconnect failed", "error", err)
		return
	}
	m.probeFailures.Store(0)
}

// transportReconnect re-opens the socket on the existing client without
// re-reading configuration or re-applying security settings, then re-runs
// the post-connect lifecycle so broker state is rebuilt.
func (m *Manager) transportReconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return ErrNotConnected
	}

	m.logger.Info("attempting transport reconnect")
	token := m.client.Connect()
	if !waitToken(ctx, token, connectTimeout) {
		return fmt.Errorf("%w: transport reconnect timeout", ErrConnectFailed)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	m.state.Store(int32(StateConnected))
	m.lastConnectMS.Store(time.Now().UnixMilli())
	m.reconnects.Add(1)
	m.logger.Info("transport reconnected")

	m.onConnectSuccess(ctx, m.client, m.cfg, m.topics)
	return nil
}

// fullReconnect tears the session down and rebuilds it through the normal
// connect path.
func (m *Manager) fullReconnect(ctx context.Context) error {
	m.reconnects.Add(1)
	return m.Reload(ctx)
}

// measureLatency times a TCP dial to the broker. The dial is bounded by the
// configured probe timeout so a black-holed network cannot wedge the probe.
func (m *Manager) measureLatency(host string, port int) (int64, error) {
	timeout := time.Duration(m.watchdog.ProbeTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	start := time.Now()
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return 0, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close() //nolint:errcheck // measurement connection

	return time.Since(start).Milliseconds(), nil
}
