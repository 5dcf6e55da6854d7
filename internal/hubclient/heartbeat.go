package hubclient

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/duckpond/duckswarm/internal/config"
)

// DefaultHeartbeatInterval is the fleet-wide heartbeat cadence.
const DefaultHeartbeatInterval = 30 * time.Second

// HeartbeatPublisher reports agent liveness to the hub on a fixed cadence.
// It publishes once immediately on start and then every interval until
// stopped.
type HeartbeatPublisher struct {
	client    *Client
	agentName string
	category  string
	interval  time.Duration
	startedAt time.Time
	stopChan  chan struct{}
	running   atomic.Bool
	log       zerolog.Logger
}

// StartHeartbeat begins a heartbeat cadence for the agent and returns the
// stop handle. A zero interval uses the default.
func (c *Client) StartHeartbeat(agentName, category string, interval time.Duration) *HeartbeatPublisher {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	h := &HeartbeatPublisher{
		client:    c,
		agentName: agentName,
		category:  category,
		interval:  interval,
		startedAt: time.Now(),
		stopChan:  make(chan struct{}),
		log:       config.NewLogger("heartbeat"),
	}
	h.start()
	return h
}

func (h *HeartbeatPublisher) start() {
	if !h.running.CompareAndSwap(false, true) {
		return
	}

	go func() {
		h.publish("healthy")

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.publish("healthy")
			case <-h.stopChan:
				h.log.Info().Str("agent", h.agentName).Msg("heartbeat stopped")
				return
			}
		}
	}()

	h.log.Info().
		Str("agent", h.agentName).
		Dur("interval", h.interval).
		Msg("heartbeat started")
}

func (h *HeartbeatPublisher) publish(status string) {
	h.client.PostHeartbeat(Heartbeat{
		AgentName: h.agentName,
		Category:  h.category,
		Status:    status,
		UptimeMs:  time.Since(h.startedAt).Milliseconds(),
	})
}

// PublishWithStatus sends one out-of-cadence heartbeat with a custom
// status, e.g. "draining" during shutdown.
func (h *HeartbeatPublisher) PublishWithStatus(status string) {
	h.publish(status)
}

// Stop ends the cadence. Exactly one caller wins the flag, so repeated or
// concurrent calls are no-ops.
func (h *HeartbeatPublisher) Stop() {
	if !h.running.CompareAndSwap(true, false) {
		return
	}
	close(h.stopChan)
}

// IsRunning reports whether the cadence is active.
func (h *HeartbeatPublisher) IsRunning() bool {
	return h.running.Load()
}
