package devicemgr

import "time"

// Options configures the coordination server. Values are populated by
// internal/config from the environment (and optionally a config file) and
// passed down through the composition root to every component.
type Options struct {
	ListenHost string
	ListenPort int

	HeartbeatTimeout   time.Duration
	ReaperInterval     time.Duration
	CommandAckTimeout  time.Duration
	OutboundQueueCap   int
	RequestDeadline    time.Duration

	AudioSampleRate      int
	PrefixPhrases        []string
	ConfidenceThreshold  float64
	AudioChunkSize       int

	DatabaseURL string
}

// DefaultOptions gives the baseline values spec.md §6 recommends.
func DefaultOptions() Options {
	return Options{
		ListenHost:          "0.0.0.0",
		ListenPort:          8000,
		HeartbeatTimeout:    90 * time.Second,
		ReaperInterval:      10 * time.Second,
		CommandAckTimeout:   30 * time.Second,
		OutboundQueueCap:    64,
		RequestDeadline:     60 * time.Second,
		AudioSampleRate:     16000,
		PrefixPhrases:       []string{"ESP", "NATIONAL PG"},
		ConfidenceThreshold: 0.70,
		AudioChunkSize:      2048,
	}
}

// ReservedDeviceIDs are identifiers that must be rejected at session
// accept time to prevent dashboard/browser clients from impersonating a
// device on the same /ws/{device_id} endpoint.
var ReservedDeviceIDs = map[DeviceID]struct{}{
	"dashboard": {},
	"browser":   {},
	"servo":     {},
}

// IsReserved reports whether id is a reserved device identifier.
func IsReserved(id DeviceID) bool {
	_, ok := ReservedDeviceIDs[id]
	return ok
}
