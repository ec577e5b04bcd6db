package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	dm "github.com/fleetctl/devicemgr"
	"github.com/fleetctl/devicemgr/session"
	"github.com/rs/zerolog"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte, int) (string, error) {
	return f.text, f.err
}

type fakeSynthesizer struct {
	pcm []byte
	err error
}

func (f *fakeSynthesizer) Synthesize(context.Context, string, int) ([]byte, error) {
	return f.pcm, f.err
}

type fakeMatcher struct {
	intent     string
	confidence float64
}

func (f *fakeMatcher) Match(context.Context, string) (string, float64) {
	return f.intent, f.confidence
}

type fakeDispatcher struct {
	calls []string
	rec   dm.CommandRecord
}

func (f *fakeDispatcher) Dispatch(deviceType dm.DeviceType, commandName string, _ map[string]any, _ time.Duration) dm.CommandRecord {
	f.calls = append(f.calls, string(deviceType)+":"+commandName)
	if f.rec.CommandID == "" {
		f.rec.CommandID = "cmd-1"
	}
	f.rec.DeviceType = deviceType
	f.rec.CommandName = commandName
	return f.rec
}

type fakeSender struct {
	sent []session.OutboundAudioChunk
}

func (f *fakeSender) Send(_ dm.DeviceID, frame any) session.SendOutcome {
	if chunk, ok := frame.(session.OutboundAudioChunk); ok {
		f.sent = append(f.sent, chunk)
	}
	return session.OutcomeOK
}

type fakeStore struct {
	transcripts []dm.AudioTranscript
}

func (f *fakeStore) InsertTranscript(t dm.AudioTranscript) error {
	f.transcripts = append(f.transcripts, t)
	return nil
}

func baseConfig() Config {
	return Config{
		PrefixPhrases:       []string{"ESP", "NATIONAL PG"},
		ConfidenceThreshold: 0.70,
		SampleRate:          16000,
		ChunkSize:           4,
		AckTimeout:          time.Second,
	}
}

func TestProcessUploadSuccessDispatchesAndSpeaks(t *testing.T) {
	stt := &fakeTranscriber{text: "esp forward"}
	tts := &fakeSynthesizer{pcm: []byte{1, 2, 3, 4, 5}}
	match := &fakeMatcher{intent: "forward", confidence: 0.92}
	dispatch := &fakeDispatcher{}
	sender := &fakeSender{}
	store := &fakeStore{}

	p := New(stt, tts, match, nil, dispatch, sender, store, baseConfig(), zerolog.Nop())
	result := p.ProcessUpload(context.Background(), "cam1", []byte{0}, false)

	if !result.Matched {
		t.Fatalf("expected match, got %+v", result)
	}
	if result.CommandName != "forward" {
		t.Fatalf("expected forward, got %s", result.CommandName)
	}
	if len(dispatch.calls) != 1 || dispatch.calls[0] != "wheel:forward" {
		t.Fatalf("expected dispatch to wheel:forward, got %v", dispatch.calls)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 chunks for 5 bytes at chunk size 4, got %d", len(sender.sent))
	}
	if !sender.sent[len(sender.sent)-1].IsLast {
		t.Fatalf("expected last chunk to carry is_last=true")
	}
	if len(store.transcripts) != 1 || !store.transcripts[0].PrefixOK {
		t.Fatalf("expected one persisted transcript with prefix_ok=true, got %+v", store.transcripts)
	}
}

func TestProcessUploadSTTFailure(t *testing.T) {
	stt := &fakeTranscriber{err: errors.New("boom")}
	p := New(stt, &fakeSynthesizer{}, &fakeMatcher{}, nil, &fakeDispatcher{}, &fakeSender{}, &fakeStore{}, baseConfig(), zerolog.Nop())

	result := p.ProcessUpload(context.Background(), "cam1", []byte{0}, false)

	if result.Matched || result.Reason != "stt_failed" {
		t.Fatalf("expected stt_failed, got %+v", result)
	}
}

func TestProcessUploadPrefixMissing(t *testing.T) {
	stt := &fakeTranscriber{text: "go forward now"}
	p := New(stt, &fakeSynthesizer{}, &fakeMatcher{}, nil, &fakeDispatcher{}, &fakeSender{}, &fakeStore{}, baseConfig(), zerolog.Nop())

	result := p.ProcessUpload(context.Background(), "cam1", []byte{0}, false)

	if result.Matched || result.Reason != "prefix_missing" {
		t.Fatalf("expected prefix_missing, got %+v", result)
	}
}

func TestProcessUploadManualBypassesPrefixGate(t *testing.T) {
	stt := &fakeTranscriber{text: "forward"}
	match := &fakeMatcher{intent: "forward", confidence: 0.9}
	dispatch := &fakeDispatcher{}
	p := New(stt, &fakeSynthesizer{}, match, nil, dispatch, &fakeSender{}, &fakeStore{}, baseConfig(), zerolog.Nop())

	result := p.ProcessUpload(context.Background(), "cam1", []byte{0}, true)

	if !result.Matched {
		t.Fatalf("expected manual upload to bypass prefix gate, got %+v", result)
	}
}

func TestProcessUploadLowConfidenceFallsBackToKnowledgeBase(t *testing.T) {
	stt := &fakeTranscriber{text: "esp what is your status"}
	match := &fakeMatcher{intent: "", confidence: 0}
	kb := NewStaticKnowledgeBase()
	sender := &fakeSender{}
	p := New(stt, &fakeSynthesizer{pcm: []byte{9}}, match, kb, &fakeDispatcher{}, sender, &fakeStore{}, baseConfig(), zerolog.Nop())

	result := p.ProcessUpload(context.Background(), "cam1", []byte{0}, false)

	if result.Matched || result.Reason != "knowledge_base_answer" {
		t.Fatalf("expected knowledge_base_answer, got %+v", result)
	}
	if len(sender.sent) == 0 {
		t.Fatalf("expected a spoken reply from the knowledge base answer")
	}
}

func TestProcessUploadLowConfidenceNoKnowledgeBase(t *testing.T) {
	stt := &fakeTranscriber{text: "esp gibberish"}
	match := &fakeMatcher{intent: "forward", confidence: 0.2}
	p := New(stt, &fakeSynthesizer{}, match, nil, &fakeDispatcher{}, &fakeSender{}, &fakeStore{}, baseConfig(), zerolog.Nop())

	result := p.ProcessUpload(context.Background(), "cam1", []byte{0}, false)

	if result.Matched || result.Reason != "low_confidence" {
		t.Fatalf("expected low_confidence, got %+v", result)
	}
}

func TestNotifyOnlyAnnotatesWakeWord(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{}
	p := New(&fakeTranscriber{}, &fakeSynthesizer{pcm: []byte{1, 2}}, &fakeMatcher{}, nil, &fakeDispatcher{}, sender, store, baseConfig(), zerolog.Nop())

	ok, err := p.NotifyOnly(context.Background(), "cam1", "listening now")

	if err != nil || !ok {
		t.Fatalf("expected successful spoken reply, got ok=%v err=%v", ok, err)
	}
	if len(store.transcripts) != 1 {
		t.Fatalf("expected one transcript")
	}
	if store.transcripts[0].Details["annotation"] != "WAKE_WORD" {
		t.Fatalf("expected WAKE_WORD annotation, got %+v", store.transcripts[0].Details)
	}
	if len(sender.sent) == 0 {
		t.Fatalf("expected notify to speak the text back to the device")
	}
}
