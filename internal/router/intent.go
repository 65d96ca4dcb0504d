package router

import (
	"strings"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
)

// reasoningLengthHint is the prompt length above which planning keywords
// alone are enough to classify a request as reasoning work.
const reasoningLengthHint = 400

// Built-in keyword sets, merged with config-supplied ones. Checked in fixed
// order so classification is deterministic: vision beats code beats
// reasoning, anything else is chat.
var builtinKeywords = map[Intent][]string{
	IntentVision: {
		"image", "screenshot", "photo", "diagram", "picture",
		"data:image/", ".png", ".jpg", ".jpeg", ".webp",
	},
	IntentCode: {
		"```", "code", "function", "compile", "debug", "refactor",
		"stack trace", "traceback", "unit test", "regex", "script",
		"implement", "bugfix", "segfault",
	},
	IntentReasoning: {
		"step by step", "step-by-step", "plan", "analyze", "analyse",
		"reason", "prove", "trade-off", "tradeoff", "strategy",
		"think through", "compare", "pros and cons",
	},
}

// intentOrder fixes the precedence of keyword checks.
var intentOrder = []Intent{IntentVision, IntentCode, IntentReasoning}

// IntentDetector classifies a request from its last user message. It is
// pure: no clocks, no I/O, no randomness.
type IntentDetector struct {
	keywords map[Intent][]string
}

// NewIntentDetector merges extra keywords from config into the built-in
// sets. Keys that do not name a known intent are ignored.
func NewIntentDetector(extra map[string][]string) *IntentDetector {
	merged := make(map[Intent][]string, len(builtinKeywords))
	for intent, words := range builtinKeywords {
		merged[intent] = append([]string(nil), words...)
	}
	for name, words := range extra {
		intent := Intent(name)
		if !ValidIntent(name) || intent == IntentChat || intent == IntentVerify {
			continue
		}
		for _, w := range words {
			merged[intent] = append(merged[intent], strings.ToLower(w))
		}
	}
	return &IntentDetector{keywords: merged}
}

// Detect returns the intent of the conversation's most recent user message.
// Empty or user-less conversations classify as chat.
func (d *IntentDetector) Detect(messages []provider.LLMMessage) Intent {
	text := lastUserText(messages)
	if text == "" {
		return IntentChat
	}
	lower := strings.ToLower(text)
	for _, intent := range intentOrder {
		if intent == IntentReasoning && len(lower) < reasoningLengthHint {
			// Short prompts mentioning "plan" or "compare" are
			// usually chat, not deep reasoning work.
			continue
		}
		for _, kw := range d.keywords[intent] {
			if strings.Contains(lower, kw) {
				return intent
			}
		}
	}
	return IntentChat
}

func lastUserText(messages []provider.LLMMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == provider.MessageRoleUser {
			return messages[i].Content
		}
	}
	return ""
}
