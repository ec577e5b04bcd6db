// Package telemetry forwards device "status" frames into the audit store,
// per spec.md §4.6.
package telemetry

import (
	"time"

	dm "github.com/fleetctl/devicemgr"
	"github.com/rs/zerolog"
)

// Store is the subset of the audit store the ingestor writes through.
type Store interface {
	InsertStateSnapshot(snap dm.DeviceStateSnapshot) error
}

// Ingestor implements session.StatusPort: it receives one "status" frame
// per call and persists it as an append-only snapshot. It holds no
// in-memory cache of its own; the latest-N read path queries the store
// directly (spec.md §4.6 asks for persistence, not a live cache).
type Ingestor struct {
	store  Store
	logger zerolog.Logger
}

// New constructs an Ingestor.
func New(store Store, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		store:  store,
		logger: logger.With().Str("component", "telemetry_ingestor").Logger(),
	}
}

// IngestStatus implements session.StatusPort.
func (i *Ingestor) IngestStatus(deviceID dm.DeviceID, deviceType dm.DeviceType, payload map[string]any) {
	snap := dm.DeviceStateSnapshot{
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
	if err := i.store.InsertStateSnapshot(snap); err != nil {
		i.logger.Error().Err(err).Str("device_id", string(deviceID)).Msg("failed to persist state snapshot")
	}
}
