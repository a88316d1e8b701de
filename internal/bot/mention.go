package bot

import (
	"errors"
	"strings"
)

var errEmptyReply = errors.New("generator returned empty reply")

// IsMention reports whether text addresses the bot, i.e. contains the
// mention token anywhere.
func IsMention(text, token string) bool {
	return token != "" && strings.Contains(text, token)
}

// StripMention removes every occurrence of the token and trims surrounding
// whitespace, leaving the query text forwarded to generation.
func StripMention(text, token string) string {
	if token == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, token, ""))
}
