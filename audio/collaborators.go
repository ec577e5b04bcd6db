// Package audio implements the ingest -> intent -> dispatch pipeline: a
// device uploads raw PCM, the pipeline transcribes it, gates it on a wake
// phrase, fuzzy-matches the remainder to a closed intent set, dispatches
// the resulting command, and speaks a confirmation back over the
// originating session, per spec.md §4.7.
package audio

import "context"

// Transcriber turns raw PCM into text. The production implementation calls
// out to an external speech-to-text engine; the core treats it as a pure
// function and never inspects its internals.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}

// Synthesizer turns text into PCM for a spoken reply.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, sampleRate int) ([]byte, error)
}

// Matcher fuzzy-matches normalized, prefix-stripped text against the closed
// intent enumeration, returning the best intent token and a confidence in
// [0, 1]. An empty intent means no match was found.
type Matcher interface {
	Match(ctx context.Context, text string) (intent string, confidence float64)
}

// KnowledgeBase is an optional fallback collaborator: when the prefix gate
// passes but the fuzzy matcher finds no command, it may produce a spoken
// answer instead of a generic acknowledgement. A nil KnowledgeBase simply
// disables the fallback.
type KnowledgeBase interface {
	Answer(ctx context.Context, text string) (answer string, ok bool)
}
