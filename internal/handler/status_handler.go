// internal/handler/status_handler.go
package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/sai-marketing/nps-admin-backend/internal/db"
)

// StatusHandler serves the connection/configuration diagnostics operators
// use before blaming the workflow side.
type StatusHandler struct {
	DB *sql.DB
}

func NewStatusHandler(conn *sql.DB) *StatusHandler {
	return &StatusHandler{DB: conn}
}

// Health runs SELECT 1 and reports latency, with a hint for the common
// failure modes.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	if missing := db.MissingEnvs(); len(missing) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":      false,
			"missing": missing,
			"hint":    "incomplete environment configuration (.env)",
		})
		return
	}

	ok, ms, err := db.Healthcheck(h.DB)
	resp := map[string]interface{}{
		"ok": ok,
		"ms": ms,
	}
	if err != nil {
		resp["error"] = err.Error()
		resp["hint"] = healthHint(err.Error())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(resp)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func healthHint(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "password authentication failed"):
		return "invalid credentials (DB_USER/DB_PASSWORD) or missing grants"
	case strings.Contains(lower, "no such host"), strings.Contains(lower, "connection refused"):
		return "database unreachable (DNS/firewall/network)"
	case strings.Contains(lower, "timeout"):
		return "timeout connecting; check firewall, network, or DB_HOST"
	}
	return "unexpected error opening the connection"
}

// Config echoes the essential configuration with secrets masked.
func (h *StatusHandler) Config(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"DB_HOST":       mask(os.Getenv("DB_HOST"), 3),
		"DB_NAME":       mask(os.Getenv("DB_NAME"), 3),
		"DB_USER":       mask(os.Getenv("DB_USER"), 3),
		"DB_PASSWORD":   "(hidden)",
		"N8N_FORCE_URL": mask(os.Getenv("N8N_FORCE_URL"), 12),
	})
}

func mask(v string, keep int) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "(empty)"
	}
	if len(v) <= keep {
		return strings.Repeat("*", len(v))
	}
	return v[:keep] + strings.Repeat("*", len(v)-keep)
}
