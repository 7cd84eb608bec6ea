package tokens

import (
	"strings"
	"unicode/utf8"
)

// Formatting overheads in tokens.
const (
	perMessageOverhead   = 3
	perRoleOverhead      = 1
	conversationOverhead = 3

	// Completion defaults when the caller gives no output estimate.
	minCompletionTokens = 100
	maxCompletionTokens = 1000
)

// DefaultCharsPerToken is used when no ratio matches a model.
const DefaultCharsPerToken = 4.0

// DefaultRatios are the built-in characters-per-token ratios.
var DefaultRatios = map[string]float64{
	"gpt-4":   4.0,
	"gpt-3.5": 4.0,
	"o1":      4.0,
	"o3":      4.0,
	"claude":  3.5,
	"gemini":  4.0,
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Counter estimates token counts. The zero value uses DefaultRatios.
type Counter struct {
	ratios map[string]float64
}

// NewCounter returns a counter with ratios merged over DefaultRatios.
func NewCounter(ratios map[string]float64) *Counter {
	merged := make(map[string]float64, len(DefaultRatios)+len(ratios))
	for k, v := range DefaultRatios {
		merged[k] = v
	}
	for k, v := range ratios {
		if v > 0 {
			merged[k] = v
		}
	}
	return &Counter{ratios: merged}
}

// CountText estimates tokens in text. Non-empty text is at least one token.
func (c *Counter) CountText(text, model string) int64 {
	if text == "" {
		return 0
	}
	chars := utf8.RuneCountInString(text)
	n := float64(chars) / c.charsPerToken(model)
	if n < 1 {
		return 1
	}
	return int64(n + 0.5)
}

// CountMessages estimates the prompt tokens of a conversation.
func (c *Counter) CountMessages(messages []Message, model string) int64 {
	if len(messages) == 0 {
		return 0
	}
	var total int64
	for _, m := range messages {
		total += perRoleOverhead + perMessageOverhead
		total += c.CountText(m.Content, model)
		if m.Name != "" {
			total += c.CountText(m.Name, model)
		}
	}
	return total + conversationOverhead
}

// CompletionTokens is the default completion estimate for a prompt: a third
// of the prompt, clamped to [100, 1000].
func CompletionTokens(promptTokens int64) int64 {
	return min(max(promptTokens/3, minCompletionTokens), maxCompletionTokens)
}

func (c *Counter) charsPerToken(model string) float64 {
	ratios := c.ratios
	if ratios == nil {
		ratios = DefaultRatios
	}
	if r, ok := ratios[model]; ok {
		return r
	}
	best, bestLen := 0.0, 0
	for prefix, r := range ratios {
		if len(prefix) > bestLen && strings.HasPrefix(model, prefix) {
			best, bestLen = r, len(prefix)
		}
	}
	if bestLen > 0 {
		return best
	}
	return DefaultCharsPerToken
}
