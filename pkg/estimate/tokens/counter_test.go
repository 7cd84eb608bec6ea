package tokens

import (
	"strings"
	"testing"
)

func TestCountText(t *testing.T) {
	c := NewCounter(nil)

	tests := []struct {
		name  string
		text  string
		model string
		want  int64
	}{
		{"empty", "", "gpt-4", 0},
		{"single char", "a", "gpt-4", 1},
		{"gpt-4 ratio", strings.Repeat("a", 400), "gpt-4", 100},
		{"prefix match", strings.Repeat("a", 400), "gpt-4o-mini", 100},
		{"claude ratio", strings.Repeat("a", 350), "claude-3-5-sonnet", 100},
		{"unknown model", strings.Repeat("a", 40), "llama", 10},
		{"runes not bytes", strings.Repeat("é", 8), "gpt-4", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.CountText(tt.text, tt.model); got != tt.want {
				t.Errorf("Expected %d tokens, got %d", tt.want, got)
			}
		})
	}
}

func TestCountMessages(t *testing.T) {
	c := NewCounter(nil)
	if got := c.CountMessages(nil, "gpt-4"); got != 0 {
		t.Errorf("Expected 0 for no messages, got %d", got)
	}

	msgs := []Message{
		{Role: "system", Content: strings.Repeat("a", 40)},
		{Role: "user", Content: strings.Repeat("b", 80), Name: "ann"},
	}
	// 2*(1+3) overhead + 10 + 20 + 1 (name) + 3 conversation
	if got := c.CountMessages(msgs, "gpt-4"); got != 42 {
		t.Errorf("Expected 42 tokens, got %d", got)
	}
}

func TestCustomRatios(t *testing.T) {
	c := NewCounter(map[string]float64{"gpt-4": 2, "mistral": 3, "bad": 0})
	if got := c.CountText(strings.Repeat("a", 20), "gpt-4"); got != 10 {
		t.Errorf("Expected override ratio, got %d", got)
	}
	if got := c.CountText(strings.Repeat("a", 30), "mistral-large"); got != 10 {
		t.Errorf("Expected added ratio, got %d", got)
	}
	if got := c.CountText(strings.Repeat("a", 40), "bad"); got != 10 {
		t.Errorf("Expected non-positive ratio ignored, got %d", got)
	}

	var zero Counter
	if got := zero.CountText(strings.Repeat("a", 40), "claude"); got != 11 {
		t.Errorf("Expected zero counter to use defaults, got %d", got)
	}
}

func TestCompletionTokens(t *testing.T) {
	for _, tt := range []struct{ prompt, want int64 }{
		{0, 100},
		{900, 300},
		{30000, 1000},
	} {
		if got := CompletionTokens(tt.prompt); got != tt.want {
			t.Errorf("CompletionTokens(%d): expected %d, got %d", tt.prompt, tt.want, got)
		}
	}
}
