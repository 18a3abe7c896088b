package bot

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitReasoning(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantReasoning string
		wantContent   string
	}{
		{
			name:        "plain reply",
			input:       "  4  ",
			wantContent: "4",
		},
		{
			name:          "think block",
			input:         "<think>2+2 is 4</think>\nThe answer is 4.",
			wantReasoning: "2+2 is 4",
			wantContent:   "The answer is 4.",
		},
		{
			name:          "Thinking block any case",
			input:         "<Thinking>\nhmm\n</Thinking>Hello!",
			wantReasoning: "hmm",
			wantContent:   "Hello!",
		},
		{
			name:          "reasoning block",
			input:         "Sure. <reasoning>because</reasoning> Done.",
			wantReasoning: "because",
			wantContent:   "Sure.  Done.",
		},
		{
			name:          "redacted reasoning close tag",
			input:         "<think>secret</redacted_reasoning>Visible",
			wantReasoning: "secret",
			wantContent:   "Visible",
		},
		{
			name:        "orphan tags removed",
			input:       "</think>Answer<think>",
			wantContent: "Answer",
		},
		{
			name:        "newlines collapsed",
			input:       "a\n\n\n\n\nb",
			wantContent: "a\n\nb",
		},
		{
			name:          "reasoning only",
			input:         "<think>nothing to say</think>",
			wantReasoning: "nothing to say",
			wantContent:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoning, content := SplitReasoning(tt.input)
			assert.Equal(t, tt.wantReasoning, reasoning)
			assert.Equal(t, tt.wantContent, content)
		})
	}
}

func TestCleanReply(t *testing.T) {
	_, got := CleanReply(strings.Repeat("ü", 1200), 1000)
	assert.Equal(t, 1000, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))

	reasoning, got := CleanReply("<think>x</think>short", 1000)
	assert.Equal(t, "x", reasoning)
	assert.Equal(t, "short", got)

	_, got = CleanReply("unbounded", 0)
	assert.Equal(t, "unbounded", got)
}
