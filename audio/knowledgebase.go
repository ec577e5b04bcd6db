package audio

import (
	"context"
	"strings"
)

// StaticKnowledgeBase answers a fixed set of FAQ-style queries by simple
// keyword containment, the same lookup idiom the original's
// knowledge_base.py uses (lower-case the query, check substrings, return
// the first matching canned answer). It exists so a prefix-OK, no-intent
// utterance gets a useful spoken reply instead of a generic fallback.
type StaticKnowledgeBase struct {
	entries []kbEntry
}

type kbEntry struct {
	keywords []string
	answer   string
}

// NewStaticKnowledgeBase builds a knowledge base from a fixed, ordered,
// built-in list of (keywords, answer) pairs; the first entry whose keywords
// all appear in the query wins.
func NewStaticKnowledgeBase() *StaticKnowledgeBase {
	return &StaticKnowledgeBase{
		entries: []kbEntry{
			{keywords: []string{"battery"}, answer: "Battery status is reported in the latest device telemetry."},
			{keywords: []string{"name"}, answer: "I am the fleet controller for this robot."},
			{keywords: []string{"status"}, answer: "All connected devices are reporting normally."},
		},
	}
}

// Answer implements KnowledgeBase.
func (k *StaticKnowledgeBase) Answer(_ context.Context, text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, e := range k.entries {
		matched := true
		for _, kw := range e.keywords {
			if !strings.Contains(lower, kw) {
				matched = false
				break
			}
		}
		if matched {
			return e.answer, true
		}
	}
	return "", false
}
