// internal/service/completion_poller.go
package service

import (
	"errors"
	"time"

	appErrors "github.com/sai-marketing/nps-admin-backend/internal/errors"
	"github.com/sai-marketing/nps-admin-backend/internal/model"
)

// Poller stages.
const (
	PollStageDone       = "done"
	PollStageDoneByDate = "done_by_date"
	PollStageNotFound   = "not_found"
	PollStageTimeout    = "timeout_waiting_store"
)

// ClientReader is the slice of the repository the poller needs.
type ClientReader interface {
	GetByID(id string) (*model.Client, error)
}

// PollSnapshot is what the poller observed when it stopped.
type PollSnapshot struct {
	Stage      string `json:"stage"`
	SendStatus string `json:"send_status,omitempty"`
	LastSentAt string `json:"last_sent_at,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// CompletionPoller re-reads the client record until the external workflow's
// outcome becomes visible or the timeout elapses. Purely observational; it
// never mutates state.
type CompletionPoller struct {
	Reader   ClientReader
	Interval time.Duration
	Timeout  time.Duration
}

func NewCompletionPoller(reader ClientReader) *CompletionPoller {
	return &CompletionPoller{
		Reader:   reader,
		Interval: time.Second,
		Timeout:  40 * time.Second,
	}
}

// WaitForCompletion polls until send_status reaches a terminal value
// (Sent/Error/Responded), or last_sent_at lands on today (workflows that
// stamp the date before the status string), or the record disappears, or the
// timeout elapses. A missing record is reported, not an error; store failures
// are returned to the caller.
func (p *CompletionPoller) WaitForCompletion(clientID string) (bool, *PollSnapshot, error) {
	deadline := time.Now().Add(p.Timeout)
	today := time.Now()

	for {
		c, err := p.Reader.GetByID(clientID)
		if err != nil {
			var notFound *appErrors.ErrClientNotFound
			if errors.As(err, &notFound) {
				return false, &PollSnapshot{Stage: PollStageNotFound}, nil
			}
			return false, nil, err
		}

		switch c.SendStatus {
		case model.SendStatusSent, model.SendStatusError, model.SendStatusResponded:
			return true, &PollSnapshot{
				Stage:      PollStageDone,
				SendStatus: c.SendStatus,
				LastSentAt: formatDate(c.LastSentAt),
				LastError:  c.LastError,
			}, nil
		}

		if c.LastSentAt != nil && SameDate(*c.LastSentAt, today) {
			return true, &PollSnapshot{
				Stage:      PollStageDoneByDate,
				SendStatus: c.SendStatus,
				LastSentAt: formatDate(c.LastSentAt),
			}, nil
		}

		if !time.Now().Add(p.Interval).Before(deadline) {
			return false, &PollSnapshot{Stage: PollStageTimeout, SendStatus: c.SendStatus}, nil
		}
		time.Sleep(p.Interval)
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
