package chat

import "strings"

// MentionMarker is the literal that summons the bot. Matching is case-sensitive.
const MentionMarker = "@chatbot"

// DetectMention reports whether body contains MentionMarker anywhere, including
// inside a longer word.
func DetectMention(body string) bool {
	return strings.Contains(body, MentionMarker)
}
