package httpapi

import (
	"net/http"

	"github.com/fleetctl/devicemgr/audio"
	"github.com/fleetctl/devicemgr/command"
	"github.com/fleetctl/devicemgr/internal/logbuffer"
	"github.com/fleetctl/devicemgr/registry"
	"github.com/fleetctl/devicemgr/session"
	"github.com/rs/zerolog"
)

// Store is the subset of the audit store the read-side API queries.
type Store interface {
	devicesStore
	audioStore
}

// Dependencies bundles everything the route table closes over.
type Dependencies struct {
	Registry *registry.Registry
	Sessions *session.Manager
	Router   *command.Router
	Pipeline *audio.Pipeline
	Store    Store
	Logs     *logbuffer.Ring
	Logger   zerolog.Logger
}

// NewMux builds the *http.ServeMux backing C8's read-side API, C9's
// WebSocket gateway, and the supplemented convenience/dashboard routes,
// using Go 1.22's method+wildcard ServeMux patterns.
func NewMux(deps Dependencies) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws/{device_id}", WebSocketHandler(deps.Sessions, deps.Logger))

	mux.HandleFunc("POST /command", CommandHandler(deps.Router))
	mux.HandleFunc("POST /servo/pose/{name}", ServoPoseHandler(deps.Router))
	mux.HandleFunc("POST /wheel/move/{direction}", WheelMoveHandler(deps.Router))

	mux.HandleFunc("POST /audio/upload", AudioUploadHandler(deps.Pipeline))
	mux.HandleFunc("GET /audio/notify", AudioNotifyHandler(deps.Pipeline))
	mux.HandleFunc("POST /audio/notify", AudioNotifyHandler(deps.Pipeline))
	mux.HandleFunc("GET /audio/transcripts", AudioTranscriptsHandler(deps.Store))

	mux.HandleFunc("GET /devices", DevicesHandler(deps.Registry))
	mux.HandleFunc("GET /state-history/{device_id}", StateHistoryHandler(deps.Store))
	mux.HandleFunc("GET /command-logs", CommandLogsHandler(deps.Store))
	mux.HandleFunc("GET /device-connection-history/{device_id}", DeviceConnectionHistoryHandler(deps.Store))

	mux.HandleFunc("GET /health", HealthHandler(deps.Registry))
	mux.HandleFunc("GET /api/system/logs", SystemLogsHandler(deps.Logs))

	return mux
}
