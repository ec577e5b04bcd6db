// Package heartbeat runs the background reaper that moves stale devices
// offline and piggy-backs the command router's acknowledgement-timeout
// sweep onto the same tick, per spec.md §4.4.
package heartbeat

import (
	"context"
	"time"

	dm "github.com/fleetctl/devicemgr"
	"github.com/rs/zerolog"
)

// RegistryPort is the subset of the registry the reaper needs.
type RegistryPort interface {
	StaleSince(cutoff time.Time) []dm.DeviceID
	MarkOffline(id dm.DeviceID, reason dm.ConnectionEventKind)
}

// SessionPort is the subset of the session manager the reaper needs.
type SessionPort interface {
	Close(deviceID dm.DeviceID, reason string)
}

// AckSweeper is implemented by the command router: SweepTimedOutAcks scans
// pending acknowledgements and transitions any past their deadline to
// CommandTimeout.
type AckSweeper interface {
	SweepTimedOutAcks()
}

// Reaper is a single long-lived, cancellable task.
type Reaper struct {
	registry RegistryPort
	sessions SessionPort
	acks     AckSweeper

	timeout  time.Duration
	interval time.Duration
	logger   zerolog.Logger
}

// New constructs a Reaper. acks may be nil if no command router is wired
// (e.g. in registry-only tests).
func New(registry RegistryPort, sessions SessionPort, acks AckSweeper, timeout, interval time.Duration, logger zerolog.Logger) *Reaper {
	return &Reaper{
		registry: registry,
		sessions: sessions,
		acks:     acks,
		timeout:  timeout,
		interval: interval,
		logger:   logger.With().Str("component", "heartbeat_reaper").Logger(),
	}
}

// Run ticks every r.interval until ctx is cancelled. It is intended to be
// started with `go reaper.Run(ctx)` from the composition root and joined by
// waiting for ctx's cancellation to propagate.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Reaper) tick() {
	cutoff := time.Now().Add(-r.timeout)
	stale := r.registry.StaleSince(cutoff)
	for _, id := range stale {
		r.registry.MarkOffline(id, dm.EventTimeout)
		r.sessions.Close(id, "timeout")
		r.logger.Info().Str("device_id", string(id)).Msg("device marked offline: heartbeat timeout")
	}

	if r.acks != nil {
		r.acks.SweepTimedOutAcks()
	}
}
