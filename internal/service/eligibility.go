// internal/service/eligibility.go
package service

import (
	"strings"
	"time"

	"github.com/sai-marketing/nps-admin-backend/internal/model"
)

// IsEligible reports whether a client may be dispatched today. Pure check,
// no I/O. A missing next_send_at counts as due now (fails open), never as
// "never eligible".
func IsEligible(c *model.Client, today time.Time) bool {
	if c == nil || !c.Active {
		return false
	}
	if c.SendStatus != model.SendStatusPending && c.SendStatus != model.SendStatusError {
		return false
	}
	if c.ExecutionStatus == model.ExecStatusRunning {
		return false
	}
	if !strings.Contains(c.Email, "@") {
		return false
	}
	if c.NextSendAt != nil && dateOf(*c.NextSendAt).After(dateOf(today)) {
		return false
	}
	return true
}

// dateOf truncates a timestamp to its calendar date.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDate reports whether two timestamps fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	return dateOf(a).Equal(dateOf(b))
}
