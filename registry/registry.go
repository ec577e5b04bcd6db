// Package registry owns the in-memory authoritative map of known devices
// and their liveness. Mutations happen only through Register, Touch, and
// MarkOffline; reads never block writers for longer than a map operation.
package registry

import (
	"context"
	"sync"
	"time"

	dm "github.com/fleetctl/devicemgr"
	"github.com/rs/zerolog"
)

// DevicePersister mirrors the live device row into the audit store. It is
// consulted only on Register and MarkOffline, never on Touch -- mirroring
// every heartbeat into Postgres would turn the hottest path in the system
// into a database write.
type DevicePersister interface {
	UpsertDevice(ctx context.Context, dev dm.Device) error
}

// Registry is the authoritative device-liveness map. All operations are
// guarded by a single coarse mutex; none of them perform I/O while the
// lock is held.
type Registry struct {
	mu      sync.Mutex
	devices map[dm.DeviceID]*dm.Device

	sink      dm.EventSink
	persister DevicePersister
	logger    zerolog.Logger
}

// New constructs an empty Registry. sink receives connection events as they
// are emitted; persister mirrors device rows into the audit store. Either
// may be nil in tests that don't care about the audit trail.
func New(sink dm.EventSink, persister DevicePersister, logger zerolog.Logger) *Registry {
	return &Registry{
		devices:   make(map[dm.DeviceID]*dm.Device),
		sink:      sink,
		persister: persister,
		logger:    logger.With().Str("component", "registry").Logger(),
	}
}

// Register creates or reactivates a device entry. If the entry already
// existed and was online, a "reregistered" event is emitted instead of
// "connected" -- the session manager calls Register when a registration
// frame arrives, after Accept has already closed any prior session for the
// same id.
func (r *Registry) Register(id dm.DeviceID, deviceType dm.DeviceType, metadata map[string]any) dm.Device {
	r.mu.Lock()
	now := time.Now()
	existing, ok := r.devices[id]
	wasOnline := ok && existing.IsOnline

	var dev *dm.Device
	if ok {
		dev = existing
		dev.DeviceType = deviceType
		dev.IsOnline = true
		dev.LastHeartbeat = now
		dev.DisconnectedAt = nil
		if metadata != nil {
			dev.Metadata = metadata
		}
	} else {
		dev = &dm.Device{
			DeviceID:      id,
			DeviceType:    deviceType,
			IsOnline:      true,
			ConnectedAt:   now,
			LastHeartbeat: now,
			Metadata:      metadata,
		}
		r.devices[id] = dev
	}
	snapshot := *dev
	r.mu.Unlock()

	kind := dm.EventConnected
	if wasOnline {
		kind = dm.EventReregistered
	}
	r.emit(dm.ConnectionEvent{
		DeviceID:   id,
		DeviceType: deviceType,
		Kind:       kind,
		Timestamp:  now,
	})
	r.persist(snapshot)

	return snapshot
}

// Touch updates the device's last-heartbeat timestamp. It is a no-op if the
// device id is unknown (a frame can arrive before registration completes).
func (r *Registry) Touch(id dm.DeviceID) {
	r.mu.Lock()
	if dev, ok := r.devices[id]; ok {
		dev.LastHeartbeat = time.Now()
	}
	r.mu.Unlock()
}

// MarkOffline marks a device offline and stamps DisconnectedAt. reason is
// either "disconnected" or "timeout" and determines the emitted event kind.
func (r *Registry) MarkOffline(id dm.DeviceID, reason dm.ConnectionEventKind) {
	r.mu.Lock()
	dev, ok := r.devices[id]
	if !ok || !dev.IsOnline {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	dev.IsOnline = false
	dev.DisconnectedAt = &now
	snapshot := *dev
	r.mu.Unlock()

	r.emit(dm.ConnectionEvent{
		DeviceID:   id,
		DeviceType: snapshot.DeviceType,
		Kind:       reason,
		Timestamp:  now,
	})
	r.persist(snapshot)
}

// Get returns a copy of the device record, if known.
func (r *Registry) Get(id dm.DeviceID) (dm.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[id]
	if !ok {
		return dm.Device{}, false
	}
	return *dev, true
}

// List returns a snapshot of every known device, online or not.
func (r *Registry) List() []dm.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dm.Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, *dev)
	}
	return out
}

// ListByType returns online devices of the given type. Offline devices are
// never targets for command dispatch.
func (r *Registry) ListByType(deviceType dm.DeviceType) []dm.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dm.Device
	for _, dev := range r.devices {
		if dev.DeviceType == deviceType && dev.IsOnline {
			out = append(out, *dev)
		}
	}
	return out
}

// StaleSince returns the ids of online devices whose last heartbeat is
// older than cutoff. Used by the heartbeat reaper on each tick.
func (r *Registry) StaleSince(cutoff time.Time) []dm.DeviceID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dm.DeviceID
	for id, dev := range r.devices {
		if dev.IsOnline && dev.LastHeartbeat.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) emit(ev dm.ConnectionEvent) {
	if r.sink == nil {
		return
	}
	if err := r.sink.RecordConnectionEvent(ev); err != nil {
		r.logger.Error().Err(err).Str("device_id", string(ev.DeviceID)).Msg("failed to record connection event")
	}
}

func (r *Registry) persist(dev dm.Device) {
	if r.persister == nil {
		return
	}
	if err := r.persister.UpsertDevice(context.Background(), dev); err != nil {
		r.logger.Error().Err(err).Str("device_id", string(dev.DeviceID)).Msg("failed to upsert device row")
	}
}
