// Package session owns the set of live bidirectional channels keyed by
// device id: registration, inbound frame routing, outbound fan-out, and
// reserved-identifier rejection. It never holds its map lock across a
// channel read or write, per spec.md §5.
package session

import (
	"sync"

	dm "github.com/fleetctl/devicemgr"
	"github.com/rs/zerolog"
)

// RegistryPort is the subset of the device registry the session manager
// needs. Defined here (rather than imported from package registry) so this
// package has no dependency on registry's implementation, only its shape.
type RegistryPort interface {
	Register(id dm.DeviceID, deviceType dm.DeviceType, metadata map[string]any) dm.Device
	Touch(id dm.DeviceID)
	MarkOffline(id dm.DeviceID, reason dm.ConnectionEventKind)
}

// StatusPort receives "status" telemetry frames forwarded from a session.
type StatusPort interface {
	IngestStatus(deviceID dm.DeviceID, deviceType dm.DeviceType, payload map[string]any)
}

// AckPort receives "command_ack" frames forwarded from a session.
type AckPort interface {
	HandleAck(commandID string, status string, response map[string]any)
}

// SendOutcome is the per-target result of a fan-out send, per spec.md §4.3
// and the "fan-out with partial failure" design note.
type SendOutcome string

const (
	OutcomeOK           SendOutcome = "ok"
	OutcomeNoSuchDevice SendOutcome = "no_such_device"
	OutcomeQueueFull    SendOutcome = "queue_full"
	OutcomeSendFailed   SendOutcome = "send_failed"
)

// TargetOutcome pairs a device id with the result of trying to enqueue a
// frame to it.
type TargetOutcome struct {
	DeviceID dm.DeviceID
	Outcome  SendOutcome
}

// Manager owns the device id -> Session map. A single mutex guards
// insert/remove/lookup only; it is never held across I/O.
type Manager struct {
	mu       sync.RWMutex
	sessions map[dm.DeviceID]*Session

	queueCapacity int
	registry      RegistryPort
	statusPort    StatusPort
	ackPort       AckPort
	logger        zerolog.Logger
}

// New constructs a Manager. queueCapacity <= 0 defaults to 64.
func New(registry RegistryPort, statusPort StatusPort, ackPort AckPort, queueCapacity int, logger zerolog.Logger) *Manager {
	return &Manager{
		sessions:      make(map[dm.DeviceID]*Session),
		queueCapacity: queueCapacity,
		registry:      registry,
		statusPort:    statusPort,
		ackPort:       ackPort,
		logger:        logger.With().Str("component", "session_manager").Logger(),
	}
}

// Accept installs a new session for deviceID. Reserved identifiers are
// rejected unconditionally before any state mutation, per spec.md §4.3's
// REDESIGN FLAG. If a session already exists for deviceID, it is closed
// first and a "reregistered" event surfaces through Register's own path
// once the device sends its registration frame.
//
// Accept spawns the session's inbound and outbound goroutines and returns
// immediately; it does not block for the session's lifetime.
func (m *Manager) Accept(deviceID dm.DeviceID, conn wsConn) error {
	if dm.IsReserved(deviceID) {
		_ = conn.Close()
		return dm.ErrReservedDeviceID
	}

	sess := newSession(string(deviceID), conn, m.queueCapacity)

	m.mu.Lock()
	prior := m.sessions[deviceID]
	m.sessions[deviceID] = sess
	m.mu.Unlock()

	if prior != nil {
		prior.closeOnce()
	}

	go sess.runOutboundPump()
	go m.runSession(deviceID, sess)

	return nil
}

func (m *Manager) runSession(deviceID dm.DeviceID, sess *Session) {
	var deviceType dm.DeviceType
	sess.runInboundLoop(func(frame InboundFrame) {
		m.registry.Touch(deviceID)
		if frame.DeviceType != "" {
			deviceType = dm.DeviceType(frame.DeviceType)
		}
		m.dispatch(deviceID, deviceType, frame)
	}, func(err error) {
		m.logger.Warn().Err(err).Str("device_id", string(deviceID)).Msg("malformed frame dropped")
	})
	m.onSessionEnded(deviceID, sess)
}

func (m *Manager) dispatch(deviceID dm.DeviceID, deviceType dm.DeviceType, frame InboundFrame) {
	switch frame.MessageType {
	case MsgRegistration:
		m.registry.Register(deviceID, deviceType, frame.Metadata)
	case MsgHeartbeat:
		// Touch already happened above; nothing else to do.
	case MsgStatus:
		if m.statusPort != nil {
			m.statusPort.IngestStatus(deviceID, deviceType, frame.Payload)
		}
	case MsgCommandAck:
		if m.ackPort != nil {
			m.ackPort.HandleAck(frame.CommandID, frame.Status, frame.Response)
		}
	case MsgAudioChunk, MsgAudioResponseEnd:
		// Devices do not originate audio frames in this protocol; ignore.
	default:
		m.logger.Warn().Str("device_id", string(deviceID)).Str("message_type", string(frame.MessageType)).Msg("unknown frame type dropped")
	}
}

// onSessionEnded fires when a session's connection closes for any reason
// (remote close, read error, or a forced Close). It removes the session
// from the map and marks the device offline in the registry, unless the
// map entry has already been replaced by a newer session for the same
// device id (the reregistration race: the prior session's read loop ends
// only after Accept has already installed its successor).
func (m *Manager) onSessionEnded(deviceID dm.DeviceID, ended *Session) {
	m.mu.Lock()
	current, ok := m.sessions[deviceID]
	if ok && current == ended {
		delete(m.sessions, deviceID)
	} else {
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.registry.MarkOffline(deviceID, dm.EventDisconnected)
}

// Send enqueues one frame to deviceID's session.
func (m *Manager) Send(deviceID dm.DeviceID, frame any) SendOutcome {
	m.mu.RLock()
	sess, ok := m.sessions[deviceID]
	m.mu.RUnlock()
	if !ok {
		return OutcomeNoSuchDevice
	}

	raw, err := marshalFrame(frame)
	if err != nil {
		return OutcomeSendFailed
	}
	if sess.enqueue(raw) {
		return OutcomeOK
	}
	m.logger.Warn().Str("device_id", string(deviceID)).Msg("outbound queue full, dropping newest frame")
	return OutcomeQueueFull
}

// SendToType fans a frame out to every currently-online session whose
// device id is in ids (the caller, the command router, determines
// membership from the registry so this package stays decoupled from
// device-type semantics).
func (m *Manager) SendToType(ids []dm.DeviceID, frame any) []TargetOutcome {
	raw, err := marshalFrame(frame)
	if err != nil {
		out := make([]TargetOutcome, len(ids))
		for i, id := range ids {
			out[i] = TargetOutcome{DeviceID: id, Outcome: OutcomeSendFailed}
		}
		return out
	}

	out := make([]TargetOutcome, 0, len(ids))
	for _, id := range ids {
		m.mu.RLock()
		sess, ok := m.sessions[id]
		m.mu.RUnlock()
		if !ok {
			out = append(out, TargetOutcome{DeviceID: id, Outcome: OutcomeNoSuchDevice})
			continue
		}
		if sess.enqueue(raw) {
			out = append(out, TargetOutcome{DeviceID: id, Outcome: OutcomeOK})
		} else {
			m.logger.Warn().Str("device_id", string(id)).Msg("outbound queue full, dropping newest frame")
			out = append(out, TargetOutcome{DeviceID: id, Outcome: OutcomeQueueFull})
		}
	}
	return out
}

// Close force-closes deviceID's session, if any. It does not itself mutate
// the registry; the session-ended hook (triggered by the resulting read
// error in runInboundLoop) drives that.
func (m *Manager) Close(deviceID dm.DeviceID, reason string) {
	m.mu.RLock()
	sess, ok := m.sessions[deviceID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	sess.closeOnce()
}

// IsOnline reports whether deviceID currently has a live session.
func (m *Manager) IsOnline(deviceID dm.DeviceID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[deviceID]
	return ok
}

// OnlineCount returns the number of live sessions, for diagnostics.
func (m *Manager) OnlineCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
