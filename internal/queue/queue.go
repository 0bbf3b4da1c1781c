package queue

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sai-marketing/nps-admin-backend/internal/service"
)

// TopicClientDispatches carries client ids whose dispatch was requested.
const TopicClientDispatches = "client_dispatches"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue is an in-process queue with retry, used when no broker is
// configured (single-instance deployments).
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: 3,
	}

	for _, handler := range handlers {
		go q.processJob(handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		log.Printf("Job failed (attempt %d/%d): %+v, error: %v\n", job.RetryCount, job.MaxRetries, job.Payload, err)

		if job.RetryCount > job.MaxRetries {
			log.Printf("Job permanently failed after %d attempts: %+v\n", job.MaxRetries, job.Payload)
			return // No requeue
		}

		// Exponential backoff before retry
		time.Sleep(time.Duration(job.RetryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// StartDispatchSubscriber consumes queued dispatch requests and runs one
// dispatch session per client id. Business failures are already recorded on
// the client row, so the handler never asks for a queue-level retry (a blind
// retry would just hit lock contention or an ineligible client).
func StartDispatchSubscriber(q Queue, dispatch *service.DispatchService) {
	err := q.Subscribe(TopicClientDispatches, func(payload any) error {
		clientID, ok := payload.(string)
		if !ok {
			log.Println("⚠️ Invalid payload type, expected client id string")
			return nil
		}

		log.Println("📩 Processing queued dispatch for client:", clientID)
		out := dispatch.DispatchOne(clientID)
		if out.Skipped {
			log.Println("⏭️ Dispatch skipped for", clientID, ":", out.Message)
		} else if !out.OK {
			log.Println("⚠️ Dispatch failed for", clientID, ":", out.Message)
		} else {
			log.Println("✅ Dispatch completed for", clientID, "(stage:", out.Stage+")")
		}
		return nil
	})

	if err != nil {
		log.Println("⚠️ Failed to start subscriber for", TopicClientDispatches, ":", err)
	}
}
