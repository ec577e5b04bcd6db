package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPTranscriber implements Transcriber by posting raw PCM to an external
// speech-to-text service, following the *http.Client-with-timeout dialer
// shape runtime.DeviceAdapter uses for its own outbound calls to Talaria.
// The production model (Whisper or equivalent) runs out-of-process; this
// server only speaks its HTTP contract.
type HTTPTranscriber struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTranscriber constructs an HTTPTranscriber against baseURL (e.g.
// "http://stt:9000").
func NewHTTPTranscriber(baseURL string) *HTTPTranscriber {
	return &HTTPTranscriber{baseURL: baseURL, client: &http.Client{Timeout: 10 * time.Second}}
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe implements Transcriber.
func (h *HTTPTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	url := fmt.Sprintf("%s/transcribe?sample_rate=%d", h.baseURL, sampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(pcm))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcriber: unexpected status %d", resp.StatusCode)
	}

	var parsed transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("transcriber: decode response: %w", err)
	}
	return parsed.Text, nil
}

// HTTPSynthesizer implements Synthesizer by posting text to an external
// text-to-speech service and reading back raw PCM.
type HTTPSynthesizer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSynthesizer constructs an HTTPSynthesizer against baseURL.
func NewHTTPSynthesizer(baseURL string) *HTTPSynthesizer {
	return &HTTPSynthesizer{baseURL: baseURL, client: &http.Client{Timeout: 10 * time.Second}}
}

type synthesizeRequest struct {
	Text       string `json:"text"`
	SampleRate int    `json:"sample_rate"`
}

// Synthesize implements Synthesizer.
func (h *HTTPSynthesizer) Synthesize(ctx context.Context, text string, sampleRate int) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, SampleRate: sampleRate})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesizer: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FuzzyMatcher implements Matcher with a token/bigram keyword lookup
// falling back to normalized Levenshtein similarity, grounded on the
// original's app/audio/commandcheck.py match_command: grammar and polite
// words stripped, each of the first two tokens (and the bigram each forms
// with the token after it) checked against a keyword table exactly before
// falling back to fuzzy scoring.
type FuzzyMatcher struct {
	keywords map[string]string
}

var stopWords = map[string]struct{}{
	"is": {}, "am": {}, "are": {}, "the": {}, "a": {}, "an": {},
	"please": {}, "kindly": {}, "can": {}, "you": {},
}

// NewFuzzyMatcher builds a FuzzyMatcher over the intent-table's own
// vocabulary, so the keyword set always matches what the pipeline is able
// to dispatch.
func NewFuzzyMatcher() *FuzzyMatcher {
	keywords := make(map[string]string, len(intentTable))
	for intent := range intentTable {
		keywords[intent] = intent
	}
	return &FuzzyMatcher{keywords: keywords}
}

const maxFuzzyTokenLen = 10

// Match implements Matcher.
func (m *FuzzyMatcher) Match(_ context.Context, text string) (string, float64) {
	tokens := filterTokens(text)
	if len(tokens) == 0 {
		return "", 0
	}

	candidates := make([]string, 0, 4)
	for i, t := range tokens {
		if i > 1 {
			break
		}
		candidates = append(candidates, t)
		if i+1 < len(tokens) {
			candidates = append(candidates, t+tokens[i+1])
		}
	}

	for _, c := range candidates {
		if intent, ok := m.keywords[c]; ok {
			return intent, 1.0
		}
	}

	var best string
	var score float64
	for _, c := range candidates {
		if len(c) > maxFuzzyTokenLen {
			continue
		}
		for intent := range m.keywords {
			s := levenshteinRatio(c, intent)
			if s > score {
				score = s
				best = intent
			}
		}
	}
	return best, score
}

func filterTokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; !stop {
			out = append(out, f)
		}
	}
	return out
}

// levenshteinRatio returns a similarity score in [0,1], 1 meaning
// identical. No fuzzy-matching library appears anywhere in the available
// dependency pack, so this is a direct, unexported stdlib implementation
// of the classic edit-distance ratio rather than an adopted dependency.
func levenshteinRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	distance := prev[lb]
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	return 1 - float64(distance)/float64(maxLen)
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
