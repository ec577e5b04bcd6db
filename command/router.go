// Package command implements the command router: issuing commands
// addressed to device classes, correlating acknowledgements back to the
// issuer, and maintaining command lifecycle state, per spec.md §4.5.
package command

import (
	"sync"
	"time"

	dm "github.com/fleetctl/devicemgr"
	"github.com/fleetctl/devicemgr/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RegistryPort is the subset of the device registry the router needs to
// resolve a device type to its currently-online members.
type RegistryPort interface {
	ListByType(deviceType dm.DeviceType) []dm.Device
}

// SessionPort is the subset of the session manager the router needs to
// fan a command frame out to a set of device ids.
type SessionPort interface {
	SendToType(ids []dm.DeviceID, frame any) []session.TargetOutcome
}

// Store is the subset of the audit store the router writes through.
type Store interface {
	CreateCommand(rec dm.CommandRecord) error
	UpdateCommandStatus(commandID string, status dm.CommandStatus, executedAt, completedAt *time.Time, response map[string]any, successCount, targetDeviceCount *int) error
}

type pendingAck struct {
	expected     int
	received     int
	successCount int
	lastResponse map[string]any
	allSuccess   bool
	deadline     time.Time
}

// Router dispatches commands addressed by device_type and correlates
// acknowledgements by command_id. A single mutex guards the pending-ack
// map; it is never held across a store call or a session send.
type Router struct {
	registry RegistryPort
	sessions SessionPort
	store    Store
	logger   zerolog.Logger

	defaultAckTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingAck
}

// New constructs a Router.
func New(registry RegistryPort, sessions SessionPort, store Store, defaultAckTimeout time.Duration, logger zerolog.Logger) *Router {
	return &Router{
		registry:          registry,
		sessions:          sessions,
		store:             store,
		defaultAckTimeout: defaultAckTimeout,
		pending:           make(map[string]*pendingAck),
		logger:            logger.With().Str("component", "command_router").Logger(),
	}
}

// Dispatch implements spec.md §4.5 steps 1-8.
func (r *Router) Dispatch(deviceType dm.DeviceType, commandName string, payload map[string]any, ackTimeout time.Duration) dm.CommandRecord {
	if ackTimeout <= 0 {
		ackTimeout = r.defaultAckTimeout
	}
	if payload == nil {
		payload = map[string]any{}
	}

	now := time.Now()
	commandID := uuid.NewString()
	rec := dm.CommandRecord{
		CommandID:   commandID,
		DeviceType:  deviceType,
		CommandName: commandName,
		Payload:     payload,
		Status:      dm.CommandCreated,
		CreatedAt:   now,
	}

	if err := r.store.CreateCommand(rec); err != nil {
		r.logger.Error().Err(err).Str("command_id", commandID).Msg("failed to persist created command")
	}

	targets := r.registry.ListByType(deviceType)
	if len(targets) == 0 {
		rec.Status = dm.CommandNoTargets
		completed := now
		rec.CompletedAt = &completed
		r.updateStatus(commandID, dm.CommandNoTargets, nil, &completed, nil, nil, nil)
		return rec
	}

	ids := make([]dm.DeviceID, len(targets))
	for i, d := range targets {
		ids[i] = d.DeviceID
	}

	frame := session.NewCommandFrame(commandID, commandName, payload)
	outcomes := r.sessions.SendToType(ids, frame)

	sentCount := 0
	for _, o := range outcomes {
		if o.Outcome == session.OutcomeOK {
			sentCount++
		}
	}

	if sentCount == 0 {
		rec.Status = dm.CommandNoTargets
		completed := now
		rec.CompletedAt = &completed
		r.updateStatus(commandID, dm.CommandNoTargets, nil, &completed, nil, nil, nil)
		return rec
	}

	executed := time.Now()
	rec.Status = dm.CommandSent
	rec.TargetDeviceCount = sentCount
	rec.ExecutedAt = &executed
	r.updateStatus(commandID, dm.CommandSent, &executed, nil, nil, nil, &sentCount)

	r.mu.Lock()
	r.pending[commandID] = &pendingAck{
		expected:   sentCount,
		allSuccess: true,
		deadline:   time.Now().Add(ackTimeout),
	}
	r.mu.Unlock()

	return rec
}

// HandleAck implements session.AckPort: it is called by the session manager
// when a device sends a "command_ack" frame.
func (r *Router) HandleAck(commandID string, status string, response map[string]any) {
	r.mu.Lock()
	entry, ok := r.pending[commandID]
	if !ok {
		r.mu.Unlock()
		r.logger.Info().Str("command_id", commandID).Msg("ack for unknown or completed command dropped")
		return
	}

	entry.received++
	if status == "success" {
		entry.successCount++
	} else {
		entry.allSuccess = false
	}
	if response != nil {
		entry.lastResponse = response
	}

	done := entry.received >= entry.expected
	var finalStatus dm.CommandStatus
	var successCount int
	var resp map[string]any
	if done {
		delete(r.pending, commandID)
		if entry.allSuccess {
			finalStatus = dm.CommandAckSuccess
		} else {
			finalStatus = dm.CommandAckError
		}
		successCount = entry.successCount
		resp = entry.lastResponse
	}
	r.mu.Unlock()

	if done {
		completed := time.Now()
		r.updateStatus(commandID, finalStatus, nil, &completed, resp, &successCount, nil)
	}
}

// SweepTimedOutAcks implements heartbeat.AckSweeper: it runs on each reaper
// tick and transitions any pending acknowledgement past its deadline to
// CommandTimeout.
func (r *Router) SweepTimedOutAcks() {
	now := time.Now()

	var expired []string
	r.mu.Lock()
	for id, entry := range r.pending {
		if now.After(entry.deadline) {
			expired = append(expired, id)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		completed := time.Now()
		r.updateStatus(id, dm.CommandTimeout, nil, &completed, nil, nil, nil)
		r.logger.Info().Str("command_id", id).Msg("command timed out awaiting acknowledgement")
	}
}

func (r *Router) updateStatus(commandID string, status dm.CommandStatus, executedAt, completedAt *time.Time, response map[string]any, successCount, targetDeviceCount *int) {
	if err := r.store.UpdateCommandStatus(commandID, status, executedAt, completedAt, response, successCount, targetDeviceCount); err != nil {
		r.logger.Error().Err(err).Str("command_id", commandID).Str("status", string(status)).Msg("failed to persist command status transition")
	}
}
