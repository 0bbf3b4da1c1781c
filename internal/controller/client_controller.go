// internal/controller/client_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/sai-marketing/nps-admin-backend/internal/errors"
	"github.com/sai-marketing/nps-admin-backend/internal/service"
)

type ClientController struct {
	ClientService *service.ClientService
}

func (c *ClientController) CreateClient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Company         string `json:"company"`
		DecisionProfile string `json:"decision_profile"`
		Segment         string `json:"segment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	client, err := c.ClientService.CreateClient(body.Name, body.Email, body.Company, body.DecisionProfile, body.Segment)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(client)
}

func (c *ClientController) ListClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	active := r.URL.Query().Get("active")
	profile := r.URL.Query().Get("profile")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	clients, err := c.ClientService.ListClients(q, active, profile, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  clients,
		"count": len(clients),
	})
}

func (c *ClientController) GetClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	client, err := c.ClientService.GetClient(id)
	if err != nil {
		var notFound *appErrors.ErrClientNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(client)
}

func (c *ClientController) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Company         string `json:"company"`
		DecisionProfile string `json:"decision_profile"`
		Segment         string `json:"segment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	client, err := c.ClientService.UpdateClient(id, body.Name, body.Email, body.Company, body.DecisionProfile, body.Segment)
	if err != nil {
		var notFound *appErrors.ErrClientNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(client)
}

// SetActive activates or deactivates a client (logical delete only).
func (c *ClientController) SetActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := c.ClientService.SetActive(id, body.Active); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"client_id": id, "active": body.Active})
}

// ForceEligible marks the client eligible for the next cycle.
func (c *ClientController) ForceEligible(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := c.ClientService.ForceEligible(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"client_id": id, "status": "eligible"})
}

// ImportClients ingests a CSV body (name,email,company[,decision_profile,segment]).
func (c *ClientController) ImportClients(w http.ResponseWriter, r *http.Request) {
	result, err := c.ClientService.ImportClientsCSV(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
