// internal/service/dispatch_service.go
package service

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sai-marketing/nps-admin-backend/internal/model"
)

// Session-level stages, on top of the dispatcher/poller stages.
const (
	StageLockContention      = "lock_contention"
	StageStoreError          = "store_error"
	StageCompletedWithError  = "completed_with_error"
	StageConfirmationPending = "confirmation_pending"
)

// DispatchRepository is the slice of the client repository a dispatch
// session needs: the execution lock plus eligibility selection.
type DispatchRepository interface {
	GetByID(id string) (*model.Client, error)
	AcquireExecution(id string) (bool, error)
	ReleaseExecution(id, outcome, executionRef, errorMessage string) error
	ListEligible(limit int) ([]*model.Client, error)
}

// Dispatcher triggers the external workflow for one client.
type Dispatcher interface {
	Dispatch(clientID string) *WebhookResult
}

// Poller waits for the workflow outcome to show up in the store.
type Poller interface {
	WaitForCompletion(clientID string) (bool, *PollSnapshot, error)
}

// DispatchOutcome is the structured result of one dispatch session.
type DispatchOutcome struct {
	ClientID     string                 `json:"client_id"`
	OK           bool                   `json:"ok"`
	Skipped      bool                   `json:"skipped,omitempty"`
	Stage        string                 `json:"stage"`
	Message      string                 `json:"message"`
	ExecutionRef string                 `json:"execution_ref,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// BatchResult accumulates per-item outcomes and overall counts.
type BatchResult struct {
	BatchID string             `json:"batch_id"`
	Items   []*DispatchOutcome `json:"items"`
	Success int                `json:"success"`
	Failure int                `json:"failure"`
	Skipped int                `json:"skipped"`
}

// ProgressFunc receives incremental batch progress (index is 1-based).
type ProgressFunc func(index, total int, outcome *DispatchOutcome)

// DispatchService composes the execution lock, the webhook dispatcher and
// the completion poller into one dispatch session per client, and drives
// sessions sequentially over a batch.
type DispatchService struct {
	Repo       DispatchRepository
	Dispatcher Dispatcher
	Poller     Poller
}

func NewDispatchService(repo DispatchRepository, dispatcher Dispatcher, poller Poller) *DispatchService {
	return &DispatchService{Repo: repo, Dispatcher: dispatcher, Poller: poller}
}

// DispatchOne runs a full dispatch session for a single client:
// acquire lock -> call webhook -> wait for confirmation -> release lock.
// Once the lock is acquired, every exit path releases it exactly once.
func (s *DispatchService) DispatchOne(clientID string) (out *DispatchOutcome) {
	acquired, err := s.Repo.AcquireExecution(clientID)
	if err != nil {
		return &DispatchOutcome{
			ClientID: clientID, OK: false, Stage: StageStoreError,
			Message: "failed to acquire execution lock: " + err.Error(),
		}
	}
	if !acquired {
		// diagnostic read only; the acquire statement already made the decision
		msg := "skipped: execution already running"
		if c, gerr := s.Repo.GetByID(clientID); gerr == nil && !c.Active {
			msg = "skipped: client inactive"
		}
		return &DispatchOutcome{
			ClientID: clientID, OK: false, Skipped: true, Stage: StageLockContention,
			Message: msg,
		}
	}

	released := false
	details := map[string]interface{}{}
	release := func(outcome, ref, errMsg string) {
		released = true
		if rerr := s.Repo.ReleaseExecution(clientID, outcome, ref, errMsg); rerr != nil {
			// surfaced, but never re-locks the client or fails the session
			log.Println("⚠️ failed to release execution lock for", clientID, ":", rerr)
			details["release_error"] = rerr.Error()
		}
	}
	defer func() {
		if r := recover(); r != nil {
			if !released {
				release(model.ExecStatusError, "", fmt.Sprintf("unexpected error: %v", r))
			}
			out = &DispatchOutcome{
				ClientID: clientID, OK: false, Stage: StageException,
				Message: fmt.Sprintf("unexpected error: %v", r), Details: details,
			}
		}
	}()

	res := s.Dispatcher.Dispatch(clientID)
	for k, v := range res.Details() {
		details[k] = v
	}

	if !res.OK {
		release(model.ExecStatusError, res.ExecutionID, res.Message)
		return &DispatchOutcome{
			ClientID: clientID, OK: false, Stage: res.Stage,
			Message: res.Message, ExecutionRef: res.ExecutionID, Details: details,
		}
	}

	done, snap, perr := s.Poller.WaitForCompletion(clientID)
	if perr != nil {
		release(model.ExecStatusError, res.ExecutionID, perr.Error())
		return &DispatchOutcome{
			ClientID: clientID, OK: false, Stage: StageStoreError,
			Message: "store error while waiting for confirmation: " + perr.Error(),
			ExecutionRef: res.ExecutionID, Details: details,
		}
	}
	if snap != nil {
		details["poll"] = snap
	}

	if done {
		release(model.ExecStatusDone, res.ExecutionID, "")
		if snap.SendStatus == model.SendStatusError {
			// the execution itself finished, the business outcome did not
			return &DispatchOutcome{
				ClientID: clientID, OK: false, Stage: StageCompletedWithError,
				Message: "send completed with error: " + snap.LastError,
				ExecutionRef: res.ExecutionID, Details: details,
			}
		}
		return &DispatchOutcome{
			ClientID: clientID, OK: true, Stage: snap.Stage,
			Message: "send confirmed (status: " + snap.SendStatus + ")",
			ExecutionRef: res.ExecutionID, Details: details,
		}
	}

	if snap.Stage == PollStageNotFound {
		release(model.ExecStatusError, res.ExecutionID, "client record disappeared while waiting for confirmation")
		return &DispatchOutcome{
			ClientID: clientID, OK: false, Stage: PollStageNotFound,
			Message: "client record disappeared while waiting for confirmation",
			ExecutionRef: res.ExecutionID, Details: details,
		}
	}

	// confirmation timed out; the external workflow may still finish, so the
	// lock is released as Done and the caller is warned
	release(model.ExecStatusDone, res.ExecutionID, "")
	return &DispatchOutcome{
		ClientID: clientID, OK: true, Stage: StageConfirmationPending,
		Message: "workflow started, but the store has not confirmed the send yet",
		ExecutionRef: res.ExecutionID, Details: details,
	}
}

// DispatchBatch runs one dispatch session per client, in order, sequentially.
// A failure or lock contention on one client never halts the batch.
func (s *DispatchService) DispatchBatch(clientIDs []string, progress ProgressFunc) *BatchResult {
	result := &BatchResult{
		BatchID: uuid.NewString(),
		Items:   []*DispatchOutcome{},
	}
	total := len(clientIDs)

	for i, id := range clientIDs {
		out := s.DispatchOne(id)
		result.Items = append(result.Items, out)

		switch {
		case out.Skipped:
			result.Skipped++
		case out.OK:
			result.Success++
		default:
			result.Failure++
			log.Println("⚠️ dispatch failed for", id, ":", out.Message)
		}

		if progress != nil {
			progress(i+1, total, out)
		}
	}
	return result
}

// DispatchEligible selects eligible clients and dispatches them as a batch.
func (s *DispatchService) DispatchEligible(limit int, progress ProgressFunc) (*BatchResult, error) {
	clients, err := s.Repo.ListEligible(limit)
	if err != nil {
		return nil, err
	}

	today := time.Now()
	ids := []string{}
	for _, c := range clients {
		if IsEligible(c, today) {
			ids = append(ids, c.ClientID)
		}
	}
	return s.DispatchBatch(ids, progress), nil
}
