package service_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	appErrors "github.com/sai-marketing/nps-admin-backend/internal/errors"
	"github.com/sai-marketing/nps-admin-backend/internal/model"
	"github.com/sai-marketing/nps-admin-backend/internal/service"
)

// fakeClientStore arbitrates the execution lock the way the real store does:
// one atomic compare-and-set per acquire attempt.
type releaseCall struct {
	ID      string
	Outcome string
	Ref     string
	Err     string
}

type fakeClientStore struct {
	mu       sync.Mutex
	clients  map[string]*model.Client
	readErr  map[string]error
	releases []releaseCall
}

func newFakeStore(clients ...*model.Client) *fakeClientStore {
	s := &fakeClientStore{clients: map[string]*model.Client{}, readErr: map[string]error{}}
	for _, c := range clients {
		s.clients[c.ClientID] = c
	}
	return s
}

func (s *fakeClientStore) GetByID(id string) (*model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readErr[id]; err != nil {
		return nil, err
	}
	c, ok := s.clients[id]
	if !ok {
		return nil, appErrors.NewClientNotFound(id)
	}
	clone := *c
	return &clone, nil
}

func (s *fakeClientStore) AcquireExecution(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok || !c.Active || c.ExecutionStatus == model.ExecStatusRunning {
		return false, nil
	}
	now := time.Now()
	c.ExecutionStatus = model.ExecStatusRunning
	c.ExecStartedAt = &now
	c.ExecFinishedAt = nil
	return true, nil
}

func (s *fakeClientStore) ReleaseExecution(id, outcome, ref, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases = append(s.releases, releaseCall{ID: id, Outcome: outcome, Ref: ref, Err: errMsg})
	if c, ok := s.clients[id]; ok {
		now := time.Now()
		c.ExecutionStatus = outcome
		c.LastExecutionID = ref
		c.LastError = errMsg
		c.ExecFinishedAt = &now
	}
	return nil
}

func (s *fakeClientStore) ListEligible(limit int) ([]*model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Client{}
	today := time.Now()
	for _, c := range s.clients {
		clone := *c
		if service.IsEligible(&clone, today) {
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *fakeClientStore) setSent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.clients[id].SendStatus = model.SendStatusSent
	s.clients[id].LastSentAt = &now
}

func (s *fakeClientStore) setSendError(id, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[id].SendStatus = model.SendStatusError
	s.clients[id].LastError = msg
}

func (s *fakeClientStore) client(id string) model.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.clients[id]
}

// fakeWebhook counts calls and can mimic the external workflow's side
// effects on the store.
type fakeWebhook struct {
	mu         sync.Mutex
	calls      int
	result     func(id string) *service.WebhookResult
	onDispatch func(id string)
}

func (f *fakeWebhook) Dispatch(clientID string) *service.WebhookResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.onDispatch != nil {
		f.onDispatch(clientID)
	}
	if f.result != nil {
		return f.result(clientID)
	}
	return &service.WebhookResult{OK: true, Stage: service.StageStarted, ExecutionID: "E1", Message: "workflow started"}
}

func (f *fakeWebhook) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func pendingClient(id string) *model.Client {
	return &model.Client{
		ClientID:   id,
		Email:      id + "@acme.com",
		Active:     true,
		SendStatus: model.SendStatusPending,
	}
}

func newDispatchService(store *fakeClientStore, hook *fakeWebhook) *service.DispatchService {
	poller := service.NewCompletionPoller(store)
	poller.Interval = time.Millisecond
	poller.Timeout = 50 * time.Millisecond
	return service.NewDispatchService(store, hook, poller)
}

func TestDispatchOneConfirmed(t *testing.T) {
	store := newFakeStore(pendingClient("C1"))
	hook := &fakeWebhook{onDispatch: store.setSent}
	svc := newDispatchService(store, hook)

	out := svc.DispatchOne("C1")

	if !out.OK {
		t.Fatalf("expected ok, got %+v", out)
	}
	if out.Stage != service.PollStageDone {
		t.Errorf("expected stage done, got %q", out.Stage)
	}
	if out.ExecutionRef != "E1" {
		t.Errorf("expected execution ref E1, got %q", out.ExecutionRef)
	}
	if got := store.client("C1"); got.ExecutionStatus != model.ExecStatusDone {
		t.Errorf("expected execution_status Done, got %q", got.ExecutionStatus)
	}
	if hook.callCount() != 1 {
		t.Errorf("expected 1 webhook call, got %d", hook.callCount())
	}
}

func TestDispatchOneLockContention(t *testing.T) {
	c := pendingClient("C1")
	c.ExecutionStatus = model.ExecStatusRunning
	store := newFakeStore(c)
	hook := &fakeWebhook{}
	svc := newDispatchService(store, hook)

	out := svc.DispatchOne("C1")

	if out.OK || !out.Skipped {
		t.Fatalf("expected skipped outcome, got %+v", out)
	}
	if out.Stage != service.StageLockContention {
		t.Errorf("expected stage lock_contention, got %q", out.Stage)
	}
	if hook.callCount() != 0 {
		t.Errorf("no HTTP call may happen on contention, got %d", hook.callCount())
	}
	if len(store.releases) != 0 {
		t.Errorf("a lock that was never acquired must not be released, got %v", store.releases)
	}
	if !strings.Contains(out.Message, "already running") {
		t.Errorf("contention should be reported as a running execution, got %q", out.Message)
	}
}

func TestDispatchOneSkippedInactiveClient(t *testing.T) {
	c := pendingClient("C1")
	c.Active = false
	store := newFakeStore(c)
	hook := &fakeWebhook{}
	svc := newDispatchService(store, hook)

	out := svc.DispatchOne("C1")

	if out.OK || !out.Skipped || out.Stage != service.StageLockContention {
		t.Fatalf("expected skipped outcome, got %+v", out)
	}
	if !strings.Contains(out.Message, "inactive") {
		t.Errorf("an inactive client should not be reported as contention, got %q", out.Message)
	}
	if hook.callCount() != 0 {
		t.Errorf("no HTTP call may happen for an inactive client, got %d", hook.callCount())
	}
}

func TestDispatchOnePanicReleasesLock(t *testing.T) {
	store := newFakeStore(pendingClient("C1"))
	hook := &fakeWebhook{onDispatch: func(id string) { panic("dispatcher blew up") }}
	svc := newDispatchService(store, hook)

	out := svc.DispatchOne("C1")

	if out.OK {
		t.Fatalf("expected failure, got %+v", out)
	}
	if out.Stage != service.StageException {
		t.Errorf("expected stage exception, got %q", out.Stage)
	}
	if len(store.releases) != 1 || store.releases[0].Outcome != model.ExecStatusError {
		t.Fatalf("the lock must be released exactly once to Error, got %v", store.releases)
	}
	if got := store.client("C1"); got.ExecutionStatus != model.ExecStatusError {
		t.Errorf("expected execution_status Error, got %q", got.ExecutionStatus)
	}
	if got := store.client("C1"); !strings.Contains(got.LastError, "dispatcher blew up") {
		t.Errorf("expected the panic recorded as last_error, got %q", got.LastError)
	}
}

func TestDispatchOneWebhookFailureReleasesError(t *testing.T) {
	store := newFakeStore(pendingClient("C1"))
	hook := &fakeWebhook{result: func(id string) *service.WebhookResult {
		return &service.WebhookResult{OK: false, Stage: service.StageHTTPError, HTTPStatus: 500, Message: "webhook call failed (HTTP 500)"}
	}}
	svc := newDispatchService(store, hook)

	out := svc.DispatchOne("C1")

	if out.OK {
		t.Fatalf("expected failure, got %+v", out)
	}
	if out.Stage != service.StageHTTPError {
		t.Errorf("expected stage http_error, got %q", out.Stage)
	}
	got := store.client("C1")
	if got.ExecutionStatus != model.ExecStatusError {
		t.Errorf("expected execution_status Error, got %q", got.ExecutionStatus)
	}
	if got.LastError == "" {
		t.Error("expected dispatcher message recorded as last_error")
	}
}

func TestDispatchOneConfirmationPendingReleasesDone(t *testing.T) {
	store := newFakeStore(pendingClient("C1"))
	hook := &fakeWebhook{result: func(id string) *service.WebhookResult {
		return &service.WebhookResult{OK: true, Stage: service.StageStarted, ExecutionID: "E2", Message: "workflow started"}
	}}
	svc := newDispatchService(store, hook)

	out := svc.DispatchOne("C1")

	if !out.OK {
		t.Fatalf("confirmation timeout is a warning, not a failure: %+v", out)
	}
	if out.Stage != service.StageConfirmationPending {
		t.Errorf("expected stage confirmation_pending, got %q", out.Stage)
	}
	got := store.client("C1")
	if got.ExecutionStatus != model.ExecStatusDone {
		t.Errorf("the workflow may still be running, lock must release as Done; got %q", got.ExecutionStatus)
	}
	if got.LastExecutionID != "E2" {
		t.Errorf("expected execution ref persisted, got %q", got.LastExecutionID)
	}
}

func TestDispatchOneCompletedWithError(t *testing.T) {
	store := newFakeStore(pendingClient("C1"))
	hook := &fakeWebhook{onDispatch: func(id string) { store.setSendError(id, "smtp bounce") }}
	svc := newDispatchService(store, hook)

	out := svc.DispatchOne("C1")

	if out.OK {
		t.Fatalf("a confirmed business error is reported as such: %+v", out)
	}
	if out.Stage != service.StageCompletedWithError {
		t.Errorf("expected stage completed_with_error, got %q", out.Stage)
	}
	// the execution finished even though the business outcome is an error
	if got := store.client("C1"); got.ExecutionStatus != model.ExecStatusDone {
		t.Errorf("expected execution_status Done, got %q", got.ExecutionStatus)
	}
}

func TestDispatchOneMutualExclusion(t *testing.T) {
	store := newFakeStore(pendingClient("C1"))
	started := make(chan struct{})
	unblock := make(chan struct{})
	hook := &fakeWebhook{onDispatch: func(id string) {
		close(started)
		<-unblock
		store.setSent(id)
	}}
	svc := newDispatchService(store, hook)

	var first *service.DispatchOutcome
	firstDone := make(chan struct{})
	go func() {
		first = svc.DispatchOne("C1")
		close(firstDone)
	}()

	// second session races in while the first still holds the lock
	<-started
	second := svc.DispatchOne("C1")
	close(unblock)
	<-firstDone

	if hook.callCount() != 1 {
		t.Fatalf("concurrent sessions must produce exactly one webhook call, got %d", hook.callCount())
	}
	if !first.OK {
		t.Errorf("lock holder should complete normally, got %+v", first)
	}
	if !second.Skipped || second.Stage != service.StageLockContention {
		t.Errorf("expected the racing session to be skipped on contention, got %+v", second)
	}
}

func TestDispatchBatchPartialFailure(t *testing.T) {
	store := newFakeStore(pendingClient("C1"), pendingClient("C2"), pendingClient("C3"))
	store.readErr["C2"] = errors.New("store exploded")
	hook := &fakeWebhook{onDispatch: func(id string) {
		if id != "C2" {
			store.setSent(id)
		}
	}}
	svc := newDispatchService(store, hook)

	progress := []string{}
	result := svc.DispatchBatch([]string{"C1", "C2", "C3"}, func(i, total int, out *service.DispatchOutcome) {
		if total != 3 {
			t.Errorf("expected total 3, got %d", total)
		}
		progress = append(progress, out.ClientID)
	})

	if result.Success != 2 || result.Failure != 1 || result.Skipped != 0 {
		t.Fatalf("expected {success:2, failure:1}, got %+v", result)
	}
	if len(result.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(result.Items))
	}
	if result.Items[1].OK || result.Items[1].Stage != service.StageStoreError {
		t.Errorf("item 2 should fail with store_error, got %+v", result.Items[1])
	}
	if got := store.client("C2"); got.ExecutionStatus != model.ExecStatusError {
		t.Errorf("item 2's lock must still be released to Error, got %q", got.ExecutionStatus)
	}
	if len(progress) != 3 || progress[0] != "C1" || progress[2] != "C3" {
		t.Errorf("expected in-order progress for all items, got %v", progress)
	}
}

func TestDispatchBatchCountsSkipped(t *testing.T) {
	busy := pendingClient("C2")
	busy.ExecutionStatus = model.ExecStatusRunning
	store := newFakeStore(pendingClient("C1"), busy)
	hook := &fakeWebhook{onDispatch: store.setSent}
	svc := newDispatchService(store, hook)

	result := svc.DispatchBatch([]string{"C1", "C2"}, nil)

	if result.Success != 1 || result.Skipped != 1 || result.Failure != 0 {
		t.Errorf("expected {success:1, skipped:1}, got %+v", result)
	}
	if result.BatchID == "" {
		t.Error("expected a batch id")
	}
}

func TestDispatchEligibleFiltersClients(t *testing.T) {
	inactive := pendingClient("C2")
	inactive.Active = false
	sent := pendingClient("C3")
	sent.SendStatus = model.SendStatusSent
	store := newFakeStore(pendingClient("C1"), inactive, sent)
	hook := &fakeWebhook{onDispatch: store.setSent}
	svc := newDispatchService(store, hook)

	result, err := svc.DispatchEligible(10, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Items) != 1 || result.Items[0].ClientID != "C1" {
		t.Fatalf("only the eligible client should be dispatched, got %+v", result.Items)
	}
}
