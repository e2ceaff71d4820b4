package mail

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// TokenLength is the number of hex characters in a correlation token
const TokenLength = 4

var replyPrefixes = []string{"re:", "fwd:", "fw:"}

// NewToken returns a fresh correlation token: the first four hex
// characters of a random uuid.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:TokenLength]
}

// TaggedSubject appends the correlation token to subject
func TaggedSubject(subject, token string) string {
	return strings.TrimSpace(subject) + " " + token
}

// StripReplyPrefixes removes any stack of "Re:", "Fwd:" and "Fw:"
// prefixes, compared case-insensitively.
func StripReplyPrefixes(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		lower := strings.ToLower(s)
		stripped := false
		for _, p := range replyPrefixes {
			if strings.HasPrefix(lower, p) {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}

// ExtractToken returns the correlation token carried as the last word of
// a reply subject. "Re: RCA Bot Alert ab12" yields "ab12".
func ExtractToken(subject string) (string, bool) {
	words := strings.Fields(StripReplyPrefixes(subject))
	if len(words) == 0 {
		return "", false
	}
	last := strings.ToLower(words[len(words)-1])
	if !IsToken(last) {
		return "", false
	}
	return last, true
}

// IsToken reports whether s has the shape of a correlation token
func IsToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

var quoteHeader = regexp.MustCompile(`(?i)^on .+ wrote:$`)

// ReplyText returns the new text of a reply body, dropping quoted history
// that clients append below the answer.
func ReplyText(body string) string {
	var kept []string
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") ||
			quoteHeader.MatchString(trimmed) ||
			strings.HasPrefix(trimmed, "-----Original Message-----") {
			break
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
