package pipeline

import (
	"strings"

	"github.com/teranos/rpawatch/mail"
)

// ApprovalWord is the reply that authorizes remediation
const ApprovalWord = "YES"

// IsApproval reports whether a reply body approves remediation: its first
// non-empty line, ignoring quoted history, is YES in any case.
func IsApproval(body string) bool {
	for _, line := range strings.Split(mail.ReplyText(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.EqualFold(line, ApprovalWord)
	}
	return false
}
