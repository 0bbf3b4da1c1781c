package queue_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	appErrors "github.com/sai-marketing/nps-admin-backend/internal/errors"
	"github.com/sai-marketing/nps-admin-backend/internal/model"
	"github.com/sai-marketing/nps-admin-backend/internal/queue"
	"github.com/sai-marketing/nps-admin-backend/internal/service"
)

// stubRepo holds one client and arbitrates the lock in memory.
type stubRepo struct {
	mu     sync.Mutex
	client *model.Client
}

func (s *stubRepo) GetByID(id string) (*model.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || s.client.ClientID != id {
		return nil, appErrors.NewClientNotFound(id)
	}
	clone := *s.client
	return &clone, nil
}

func (s *stubRepo) AcquireExecution(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client.ExecutionStatus == model.ExecStatusRunning {
		return false, nil
	}
	s.client.ExecutionStatus = model.ExecStatusRunning
	return true, nil
}

func (s *stubRepo) ReleaseExecution(id, outcome, ref, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.ExecutionStatus = outcome
	s.client.LastExecutionID = ref
	return nil
}

func (s *stubRepo) ListEligible(limit int) ([]*model.Client, error) {
	return nil, nil
}

func (s *stubRepo) executionStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.ExecutionStatus
}

type stubDispatcher struct {
	repo *stubRepo
}

func (d *stubDispatcher) Dispatch(clientID string) *service.WebhookResult {
	d.repo.mu.Lock()
	now := time.Now()
	d.repo.client.SendStatus = model.SendStatusSent
	d.repo.client.LastSentAt = &now
	d.repo.mu.Unlock()
	return &service.WebhookResult{OK: true, Stage: service.StageStarted, ExecutionID: "E1"}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	q := queue.NewInMemoryQueue()
	if err := q.Publish("nothing_listens_here", "x"); err == nil {
		t.Fatal("expected error publishing to a topic without subscribers")
	}
}

func TestDispatchSubscriberProcessesQueuedClient(t *testing.T) {
	repo := &stubRepo{client: &model.Client{
		ClientID:   "C1",
		Email:      "alice@acme.com",
		Active:     true,
		SendStatus: model.SendStatusPending,
	}}
	poller := service.NewCompletionPoller(repo)
	poller.Interval = time.Millisecond
	poller.Timeout = 50 * time.Millisecond
	svc := service.NewDispatchService(repo, &stubDispatcher{repo: repo}, poller)

	q := queue.NewInMemoryQueue()
	queue.StartDispatchSubscriber(q, svc)

	if err := q.Publish(queue.TopicClientDispatches, "C1"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if repo.executionStatus() == model.ExecStatusDone {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected execution released to Done, got %q", repo.executionStatus())
}

func TestQueueRetriesFailedHandler(t *testing.T) {
	q := queue.NewInMemoryQueue()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})
	q.Subscribe("flaky", func(payload any) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	if err := q.Publish("flaky", "job"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never succeeded after retries")
	}
}
