package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	dm "github.com/fleetctl/devicemgr"
	"github.com/fleetctl/devicemgr/audio"
)

type audioStore interface {
	RecentTranscripts(limit int) ([]dm.AudioTranscript, error)
}

type audioUploadResponse struct {
	Matched     bool   `json:"matched"`
	Reason      string `json:"reason,omitempty"`
	CommandID   string `json:"command_id,omitempty"`
	CommandName string `json:"command_name,omitempty"`
	RawText     string `json:"raw_text"`
}

// AudioUploadHandler implements POST /audio/upload?device_id=X&manual=true,
// body is raw PCM bytes, per spec.md §4.7.
func AudioUploadHandler(pipeline *audio.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := dm.DeviceID(r.URL.Query().Get("device_id"))
		if deviceID == "" {
			http.Error(w, "device_id is required", http.StatusBadRequest)
			return
		}
		manual := r.URL.Query().Get("manual") == "true"

		pcm, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read upload body", http.StatusBadRequest)
			return
		}

		result := pipeline.ProcessUpload(r.Context(), deviceID, pcm, manual)
		writeCORS(w)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(audioUploadResponse{
			Matched:     result.Matched,
			Reason:      result.Reason,
			CommandID:   result.CommandID,
			CommandName: result.CommandName,
			RawText:     result.Transcript.RawText,
		})
	}
}

type notifyResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// AudioNotifyHandler implements GET/POST /audio/notify?device_id=X&text=Y: it
// speaks text to the named device via audio.Pipeline.NotifyOnly, per
// spec.md's "triggers a TTS reply to the named device."
func AudioNotifyHandler(pipeline *audio.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := dm.DeviceID(r.URL.Query().Get("device_id"))
		text := r.URL.Query().Get("text")
		if deviceID == "" {
			http.Error(w, "device_id is required", http.StatusBadRequest)
			return
		}

		ok, err := pipeline.NotifyOnly(r.Context(), deviceID, text)
		resp := notifyResponse{OK: ok}
		if err != nil {
			resp.Error = err.Error()
		}

		writeCORS(w)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// AudioTranscriptsHandler implements GET /audio/transcripts?limit=N.
func AudioTranscriptsHandler(store audioStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 50)
		transcripts, err := store.RecentTranscripts(limit)
		if err != nil {
			http.Error(w, "failed to load transcripts", http.StatusInternalServerError)
			return
		}
		writeCORS(w)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(transcripts)
	}
}
