// internal/controller/response_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/sai-marketing/nps-admin-backend/internal/errors"
	"github.com/sai-marketing/nps-admin-backend/internal/model"
	"github.com/sai-marketing/nps-admin-backend/internal/repository"
)

type ResponseController struct {
	Repo repository.ResponseRepositoryInterface
}

func (c *ResponseController) ListResponses(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	company := r.URL.Query().Get("company")
	category := r.URL.Query().Get("category")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 200
	}

	responses, err := c.Repo.ListResponses(clientID, company, category, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  responses,
		"count": len(responses),
	})
}

// UpdateResponse adjusts score/reason/channel; the category is re-derived
// from the score, never stored independently of it.
func (c *ResponseController) UpdateResponse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid response id", http.StatusBadRequest)
		return
	}

	var body struct {
		Score   int    `json:"score"`
		Reason  string `json:"reason"`
		Channel string `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.Score < 0 || body.Score > 10 {
		http.Error(w, "score must be between 0 and 10", http.StatusBadRequest)
		return
	}

	resp, err := c.Repo.GetByID(id)
	if err != nil {
		var notFound *appErrors.ErrResponseNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp.Score = body.Score
	resp.Category = model.CategoryForScore(body.Score)
	resp.Reason = body.Reason
	resp.Channel = body.Channel

	if err := c.Repo.UpdateResponse(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// DeleteResponse is a soft delete (deleted_at), never a row removal.
func (c *ResponseController) DeleteResponse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid response id", http.StatusBadRequest)
		return
	}

	if err := c.Repo.SoftDelete(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "deleted": true})
}

// NPSStats returns promoter/passive/detractor counts and the NPS score
// ((promoters - detractors) / total * 100).
func (c *ResponseController) NPSStats(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")

	stats, err := c.Repo.NPSStats(company)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	score := 0.0
	if total := stats["total"]; total > 0 {
		score = float64(stats[model.CategoryPromoter]-stats[model.CategoryDetractor]) / float64(total) * 100
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"stats": stats,
		"nps":   score,
	})
}
