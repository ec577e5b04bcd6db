package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fleetctl/devicemgr/internal/logbuffer"
)

// SystemLogsHandler implements the supplemented GET /api/system/logs?limit=N&level=X
// route, serving the in-memory log ring so an operator dashboard can tail
// recent server activity without shelling into the host.
func SystemLogsHandler(ring *logbuffer.Ring) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 200)
		level := r.URL.Query().Get("level")
		entries := ring.Recent(limit, level)
		writeCORS(w)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	}
}
