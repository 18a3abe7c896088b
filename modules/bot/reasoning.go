package bot

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Reasoning block formats emitted by the models we talk to, tried in order.
var reasoningBlocks = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>(.*?)</redacted_reasoning>`),
	regexp.MustCompile(`(?is)<think>(.*?)</think>`),
	regexp.MustCompile(`(?is)<thinking>(.*?)</thinking>`),
	regexp.MustCompile(`(?is)<reasoning>(.*?)</reasoning>`),
}

var (
	orphanTags   = regexp.MustCompile(`(?i)</?(thinking|think|reasoning|redacted_reasoning)>`)
	extraNewline = regexp.MustCompile(`\n{3,}`)
)

// SplitReasoning separates a model's reasoning block from the reply text.
// Only the first matching format is extracted; stray tags are removed from
// the content either way.
func SplitReasoning(text string) (reasoning, content string) {
	content = text
	for _, re := range reasoningBlocks {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		reasoning = strings.TrimSpace(m[1])
		content = re.ReplaceAllString(text, "")
		break
	}

	content = orphanTags.ReplaceAllString(content, "")
	content = extraNewline.ReplaceAllString(content, "\n\n")
	return reasoning, strings.TrimSpace(content)
}

// CleanReply splits off any reasoning block and truncates the reply to
// maxRunes characters.
func CleanReply(text string, maxRunes int) (reasoning, reply string) {
	reasoning, reply = SplitReasoning(text)
	if maxRunes > 0 && utf8.RuneCountInString(reply) > maxRunes {
		reply = strings.TrimSpace(string([]rune(reply)[:maxRunes]))
	}
	return reasoning, reply
}
