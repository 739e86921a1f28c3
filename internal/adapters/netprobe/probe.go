// Package netprobe provides connectivity sources for the sync coordinator:
// a probe that pings the remote store and a manual switch.
package netprobe

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bft-labs/washline/internal/ports"
)

var _ ports.Connectivity = (*Probe)(nil)

// Default probe configuration values.
const (
	DefaultInterval = 15 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Config configures a Probe.
type Config struct {
	// Interval between pings while online.
	Interval time.Duration

	// MaxInterval caps the backoff between pings while offline.
	MaxInterval time.Duration

	// Timeout bounds each ping.
	Timeout time.Duration
}

// Probe pings the remote store and publishes online/offline transitions.
// While offline it retries with exponential backoff.
type Probe struct {
	*hub
	pinger ports.Pinger
	config Config
	logger ports.Logger

	forced  atomic.Bool
	trigger chan struct{}
}

// NewProbe creates a probe that starts offline until the first ping.
func NewProbe(pinger ports.Pinger, cfg Config, logger ports.Logger) *Probe {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultBackoffMax
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Probe{
		hub:     newHub(false),
		pinger:  pinger,
		config:  cfg,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
}

// ForceOffline pins the probe offline, or releases it and re-checks.
func (p *Probe) ForceOffline(offline bool) {
	if p.forced.Swap(offline) == offline {
		return
	}
	p.logger.Info("offline mode changed", ports.Bool("forced_offline", offline))
	if offline {
		p.set(false)
		return
	}
	p.Trigger()
}

// Trigger requests an immediate check.
func (p *Probe) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Check pings once and updates the state. It reports whether the remote
// store is reachable.
func (p *Probe) Check(ctx context.Context) bool {
	if p.forced.Load() {
		p.set(false)
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	err := p.pinger.Ping(pingCtx)
	cancel()

	online := err == nil
	if p.set(online) {
		if online {
			p.logger.Info("remote store reachable")
		} else {
			p.logger.Warn("remote store unreachable", ports.Err(err))
		}
	}
	return online
}

// Run checks connectivity until ctx is cancelled.
func (p *Probe) Run(ctx context.Context) error {
	bo := newBackoff(minDuration(DefaultBackoffInitial, p.config.Interval), p.config.MaxInterval)

	for {
		wait := p.config.Interval
		if p.Check(ctx) {
			bo.Reset()
		} else {
			wait = bo.Next()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-p.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
