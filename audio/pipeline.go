package audio

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	dm "github.com/fleetctl/devicemgr"
	"github.com/fleetctl/devicemgr/session"
	"github.com/rs/zerolog"
)

// Store is the subset of the audit store the pipeline writes through.
type Store interface {
	InsertTranscript(t dm.AudioTranscript) error
}

// Dispatcher is the subset of the command router the pipeline calls into.
type Dispatcher interface {
	Dispatch(deviceType dm.DeviceType, commandName string, payload map[string]any, ackTimeout time.Duration) dm.CommandRecord
}

// SessionSender is the subset of the session manager the pipeline uses to
// speak a confirmation back to the originating device.
type SessionSender interface {
	Send(deviceID dm.DeviceID, frame any) session.SendOutcome
}

// Config carries the pipeline's tunables, sourced from devicemgr.Options.
type Config struct {
	PrefixPhrases       []string
	ConfidenceThreshold float64
	SampleRate          int
	ChunkSize           int
	AckTimeout          time.Duration
}

type mappedCommand struct {
	DeviceType  dm.DeviceType
	CommandName string
}

// intentTable is the static mapping from a matched intent token to the
// device class and command it addresses, per spec.md §4.7 step 6.
var intentTable = map[string]mappedCommand{
	"forward":  {DeviceType: "wheel", CommandName: "forward"},
	"backward": {DeviceType: "wheel", CommandName: "backward"},
	"left":     {DeviceType: "wheel", CommandName: "left"},
	"right":    {DeviceType: "wheel", CommandName: "right"},
	"stop":     {DeviceType: "wheel", CommandName: "stop"},

	"resetposition": {DeviceType: "servo", CommandName: "resetposition"},
	"handsup":       {DeviceType: "servo", CommandName: "handsup"},
	"headleft":      {DeviceType: "servo", CommandName: "headleft"},
	"headright":     {DeviceType: "servo", CommandName: "headright"},
	"headup":        {DeviceType: "servo", CommandName: "headup"},
	"headdown":      {DeviceType: "servo", CommandName: "headdown"},
}

// Result is the HTTP-facing summary of one upload's processing.
type Result struct {
	Matched     bool
	Reason      string
	CommandID   string
	CommandName string
	Transcript  dm.AudioTranscript
}

// Pipeline wires the external collaborators, the command router, and the
// session manager into the ingest -> intent -> dispatch -> reply sequence.
type Pipeline struct {
	stt   Transcriber
	tts   Synthesizer
	match Matcher
	kb    KnowledgeBase

	dispatch Dispatcher
	sessions SessionSender
	store    Store
	cfg      Config
	logger   zerolog.Logger
}

// New constructs a Pipeline. kb may be nil to disable the fallback answer.
func New(stt Transcriber, tts Synthesizer, match Matcher, kb KnowledgeBase, dispatch Dispatcher, sessions SessionSender, store Store, cfg Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		stt:      stt,
		tts:      tts,
		match:    match,
		kb:       kb,
		dispatch: dispatch,
		sessions: sessions,
		store:    store,
		cfg:      cfg,
		logger:   logger.With().Str("component", "audio_pipeline").Logger(),
	}
}

// ProcessUpload implements spec.md §4.7 steps 1-10. deviceID is the source
// of the upload and the destination of any spoken reply.
func (p *Pipeline) ProcessUpload(ctx context.Context, deviceID dm.DeviceID, pcm []byte, manual bool) Result {
	rawText, err := p.stt.Transcribe(ctx, pcm, p.cfg.SampleRate)
	if err != nil {
		p.logger.Warn().Err(err).Str("device_id", string(deviceID)).Msg("transcription failed")
		t := dm.AudioTranscript{
			DeviceID:  deviceID,
			RawText:   "",
			Manual:    manual,
			Timestamp: time.Now(),
			Details:   map[string]any{"error": err.Error()},
		}
		p.persist(t)
		return Result{Matched: false, Reason: "stt_failed", Transcript: t}
	}

	normalized := normalize(rawText)

	prefixOK := manual
	var stripped string
	if manual {
		stripped = normalized
	} else {
		stripped, prefixOK = stripPrefix(normalized, p.cfg.PrefixPhrases)
	}

	if !prefixOK {
		t := dm.AudioTranscript{
			DeviceID:       deviceID,
			RawText:        rawText,
			NormalizedText: normalized,
			PrefixOK:       false,
			Manual:         manual,
			Timestamp:      time.Now(),
		}
		p.persist(t)
		return Result{Matched: false, Reason: "prefix_missing", Transcript: t}
	}

	intent, confidence := p.match.Match(ctx, stripped)
	threshold := p.cfg.ConfidenceThreshold
	if intent == "" || confidence < threshold {
		t := dm.AudioTranscript{
			DeviceID:       deviceID,
			RawText:        rawText,
			NormalizedText: normalized,
			PrefixOK:       true,
			Confidence:     confidence,
			Manual:         manual,
			Timestamp:      time.Now(),
		}
		p.persist(t)

		if answer, ok := p.consultKnowledgeBase(ctx, stripped); ok {
			p.speak(ctx, deviceID, answer)
			return Result{Matched: false, Reason: "knowledge_base_answer", Transcript: t}
		}
		return Result{Matched: false, Reason: "low_confidence", Transcript: t}
	}

	mapped, ok := intentTable[intent]
	if !ok {
		// A matcher returning a confident but unmapped intent is a
		// collaborator bug, not a pipeline failure mode worth a distinct
		// reason code; treat it as low confidence.
		t := dm.AudioTranscript{
			DeviceID:       deviceID,
			RawText:        rawText,
			NormalizedText: normalized,
			PrefixOK:       true,
			Confidence:     confidence,
			Manual:         manual,
			Timestamp:      time.Now(),
		}
		p.persist(t)
		return Result{Matched: false, Reason: "low_confidence", Transcript: t}
	}

	rec := p.dispatch.Dispatch(mapped.DeviceType, mapped.CommandName, nil, p.cfg.AckTimeout)

	matchedName := mapped.CommandName
	t := dm.AudioTranscript{
		DeviceID:       deviceID,
		RawText:        rawText,
		NormalizedText: normalized,
		PrefixOK:       true,
		MatchedCommand: &matchedName,
		Confidence:     confidence,
		Manual:         manual,
		Timestamp:      time.Now(),
		Details:        map[string]any{"command_id": rec.CommandID},
	}
	p.persist(t)

	p.speak(ctx, deviceID, "Executing "+mapped.CommandName)

	return Result{Matched: true, CommandID: rec.CommandID, CommandName: mapped.CommandName, Transcript: t}
}

// NotifyOnly implements `/audio/notify`: it speaks text to deviceID without
// running STT or intent matching, and records a transcript annotation
// distinguishing a wake-word ping from an operator feedback note for
// dashboard display. It reports whether the spoken reply was actually
// delivered to the device's session.
func (p *Pipeline) NotifyOnly(ctx context.Context, deviceID dm.DeviceID, text string) (bool, error) {
	normalized := normalize(text)
	label := "FEEDBACK"
	if strings.Contains(normalized, "LISTENING") {
		label = "WAKE_WORD"
	}
	t := dm.AudioTranscript{
		DeviceID:       deviceID,
		RawText:        text,
		NormalizedText: normalized,
		Timestamp:      time.Now(),
		Details:        map[string]any{"annotation": label},
	}
	p.persist(t)

	return p.speak(ctx, deviceID, text)
}

func (p *Pipeline) consultKnowledgeBase(ctx context.Context, text string) (string, bool) {
	if p.kb == nil {
		return "", false
	}
	return p.kb.Answer(ctx, text)
}

// speak synthesizes text and sends it to deviceID as chunked audio_chunk
// frames per spec.md §4.7 step 9. It reports whether every chunk was
// accepted by the device's outbound queue.
func (p *Pipeline) speak(ctx context.Context, deviceID dm.DeviceID, text string) (bool, error) {
	pcm, err := p.tts.Synthesize(ctx, text, p.cfg.SampleRate)
	if err != nil {
		p.logger.Warn().Err(err).Str("device_id", string(deviceID)).Msg("speech synthesis failed, skipping audio reply")
		return false, err
	}

	chunkSize := p.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 2048
	}
	total := (len(pcm) + chunkSize - 1) / chunkSize
	if total == 0 {
		total = 1
	}

	for index := 0; index < total; index++ {
		start := index * chunkSize
		end := start + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk := pcm[start:end]
		frame := session.OutboundAudioChunk{
			MessageType: session.MsgAudioChunk,
			AudioBase64: base64.StdEncoding.EncodeToString(chunk),
			IsLast:      index == total-1,
			SampleRate:  p.cfg.SampleRate,
			Format:      "pcm16le",
			Index:       index,
			Total:       total,
		}
		outcome := p.sessions.Send(deviceID, frame)
		if outcome != session.OutcomeOK {
			p.logger.Info().Str("device_id", string(deviceID)).Str("outcome", string(outcome)).Msg("audio reply chunk not delivered, originating session gone")
			return false, nil
		}
	}
	return true, nil
}

func (p *Pipeline) persist(t dm.AudioTranscript) {
	if err := p.store.InsertTranscript(t); err != nil {
		p.logger.Error().Err(err).Str("device_id", string(t.DeviceID)).Msg("failed to persist audio transcript")
	}
}

func normalize(s string) string {
	upper := strings.ToUpper(strings.TrimSpace(s))
	fields := strings.Fields(upper)
	return strings.Join(fields, " ")
}

func stripPrefix(normalized string, prefixes []string) (string, bool) {
	for _, prefix := range prefixes {
		p := strings.ToUpper(strings.TrimSpace(prefix))
		if p == "" {
			continue
		}
		if strings.HasPrefix(normalized, p) {
			rest := strings.TrimSpace(strings.TrimPrefix(normalized, p))
			return rest, true
		}
	}
	return normalized, false
}
