// internal/controller/dispatch_controller.go
package controller

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/streadway/amqp"

	"github.com/sai-marketing/nps-admin-backend/internal/queue"
	"github.com/sai-marketing/nps-admin-backend/internal/service"
)

type DispatchController struct {
	ClientService   *service.ClientService
	DispatchService *service.DispatchService
	Queue           queue.Queue
}

// ForceSend resets the client's send cycle and runs a full dispatch session
// synchronously: lock, webhook, confirmation poll, release.
func (c *DispatchController) ForceSend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := c.ClientService.ForceSend(id); err != nil {
		http.Error(w, "failed to force send: "+err.Error(), http.StatusInternalServerError)
		return
	}

	out := c.DispatchService.DispatchOne(id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// DispatchOne runs a dispatch session for an already-eligible client.
func (c *DispatchController) DispatchOne(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	out := c.DispatchService.DispatchOne(id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// DispatchBatch processes the given client ids sequentially and returns the
// per-item results plus aggregate counts.
func (c *DispatchController) DispatchBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientIDs []string `json:"client_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if len(body.ClientIDs) == 0 {
		http.Error(w, "client_ids is empty", http.StatusBadRequest)
		return
	}

	result := c.DispatchService.DispatchBatch(body.ClientIDs, func(i, total int, out *service.DispatchOutcome) {
		log.Printf("batch %d/%d: %s -> %s\n", i, total, out.ClientID, out.Stage)
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// DispatchEligible selects eligible clients and dispatches them as a batch.
func (c *DispatchController) DispatchEligible(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.Limit < 1 {
		body.Limit = 200
	}

	result, err := c.DispatchService.DispatchEligible(body.Limit, func(i, total int, out *service.DispatchOutcome) {
		log.Printf("batch %d/%d: %s -> %s\n", i, total, out.ClientID, out.Stage)
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// EnqueueBatch hands the client ids to a queue for asynchronous processing,
// so the HTTP request returns immediately. With AMQP_URL set the jobs go to
// RabbitMQ for the worker; otherwise they go to the in-process queue served
// by the server's own dispatch subscriber.
func (c *DispatchController) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientIDs []string `json:"client_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if len(body.ClientIDs) == 0 {
		http.Error(w, "client_ids is empty", http.StatusBadRequest)
		return
	}

	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL == "" {
		if c.Queue == nil {
			http.Error(w, "no queue configured", http.StatusServiceUnavailable)
			return
		}
		queued := 0
		for _, clientID := range body.ClientIDs {
			if err := c.Queue.Publish(queue.TopicClientDispatches, clientID); err != nil {
				log.Println("Failed to publish dispatch job:", err)
				continue
			}
			queued++
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"queued": queued,
			"total":  len(body.ClientIDs),
		})
		return
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		http.Error(w, "failed to connect to queue", http.StatusInternalServerError)
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		http.Error(w, "failed to open queue channel", http.StatusInternalServerError)
		return
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		queue.TopicClientDispatches,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		http.Error(w, "failed to declare queue", http.StatusInternalServerError)
		return
	}

	queued := 0
	for _, clientID := range body.ClientIDs {
		payload, _ := json.Marshal(map[string]string{"client_id": clientID})
		err = ch.Publish(
			"",
			q.Name,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        payload,
			},
		)
		if err != nil {
			log.Println("Failed to publish dispatch job:", err)
			continue
		}
		queued++
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"queued": queued,
		"total":  len(body.ClientIDs),
	})
}
