package devicemgr

import "time"

// DeviceID is the opaque, server-assigned-by-convention identifier a device
// asserts on connect. Uniqueness is enforced by the registry, not here.
type DeviceID string

// DeviceType is an uninterpreted routing key used to address commands to a
// class of devices (e.g. "wheel", "servo", "audio"). The core never
// validates membership in a fixed enum.
type DeviceType string

// Device is the authoritative liveness record the registry keeps for one
// device id. Exactly one Device exists per DeviceID at any time.
type Device struct {
	DeviceID       DeviceID
	DeviceType     DeviceType
	IsOnline       bool
	ConnectedAt    time.Time
	LastHeartbeat  time.Time
	DisconnectedAt *time.Time
	Metadata       map[string]any
}

// DeviceStateSnapshot is an append-only telemetry record captured from a
// device's "status" frame. The payload is opaque to the core.
type DeviceStateSnapshot struct {
	ID         int64
	DeviceID   DeviceID
	DeviceType DeviceType
	Payload    map[string]any
	Timestamp  time.Time
}

// CommandStatus is the one-directional lifecycle state of a CommandRecord.
// Valid transitions: created -> sent -> {ack_success, ack_error, timeout}
// and created -> no_targets. No status ever regresses.
type CommandStatus string

const (
	CommandCreated    CommandStatus = "created"
	CommandSent       CommandStatus = "sent"
	CommandAckSuccess CommandStatus = "ack_success"
	CommandAckError   CommandStatus = "ack_error"
	CommandTimeout    CommandStatus = "timeout"
	CommandNoTargets  CommandStatus = "no_targets"
)

// CommandRecord is the durable, mutable-only-forward record of one dispatch
// issued by the command router.
type CommandRecord struct {
	CommandID         string
	DeviceType        DeviceType
	CommandName       string
	Payload           map[string]any
	Status            CommandStatus
	TargetDeviceCount int
	SuccessCount      int
	CreatedAt         time.Time
	ExecutedAt        *time.Time
	CompletedAt       *time.Time
	ResponsePayload   map[string]any
}

// ConnectionEventKind enumerates the append-only connection history rows.
type ConnectionEventKind string

const (
	EventConnected    ConnectionEventKind = "connected"
	EventDisconnected ConnectionEventKind = "disconnected"
	EventTimeout      ConnectionEventKind = "timeout"
	EventReregistered ConnectionEventKind = "reregistered"
)

// ConnectionEvent is an append-only record of a registry/session lifecycle
// transition for one device.
type ConnectionEvent struct {
	ID         int64
	DeviceID   DeviceID
	DeviceType DeviceType
	Kind       ConnectionEventKind
	Timestamp  time.Time
	Details    map[string]any
}

// AudioTranscript is an append-only record of one audio upload's full
// decision chain: transcription, prefix gate, fuzzy match, and whatever
// command it produced.
type AudioTranscript struct {
	ID             int64
	DeviceID       DeviceID
	RawText        string
	NormalizedText string
	PrefixOK       bool
	MatchedCommand *string
	Confidence     float64
	Manual         bool
	Timestamp      time.Time
	Details        map[string]any
}

// EventSink receives connection events as they are emitted by the registry.
// The audit store is the production implementation;
// tests can substitute a recording fake.
type EventSink interface {
	RecordConnectionEvent(ev ConnectionEvent) error
}
