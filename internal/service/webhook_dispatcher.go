// internal/service/webhook_dispatcher.go
package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Stages of a webhook dispatch attempt. Each branch of the response
// classification keeps its own tag so callers never have to parse messages.
const (
	StageConfig       = "config"
	StageTimeout      = "timeout"
	StageException    = "exception"
	StageHTTPError    = "http_error"
	StageNotListening = "webhook_not_listening"
	StageStarted      = "started"
	StageOKNoConfirm  = "ok_no_confirm"
)

// DefaultWebhookTimeout caps a single webhook call.
const DefaultWebhookTimeout = 40 * time.Second

// The automation platform serves test webhooks under /webhook-test/ while the
// production endpoint lives under /webhook/. When the configured URL is the
// test one, the production URL is tried as a fallback on 404/410.
const (
	testMarker = "/webhook-test/"
	prodMarker = "/webhook/"
)

// WebhookResult is the classified outcome of one dispatch call.
type WebhookResult struct {
	OK          bool   `json:"ok"`
	Message     string `json:"message"`
	Stage       string `json:"stage"`
	ExecutionID string `json:"execution_id,omitempty"`
	HTTPStatus  int    `json:"http_status,omitempty"`
	URL         string `json:"url,omitempty"`
	ElapsedMS   int64  `json:"elapsed_ms,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Details returns the debug payload shown to operators.
func (r *WebhookResult) Details() map[string]interface{} {
	d := map[string]interface{}{"stage": r.Stage}
	if r.HTTPStatus != 0 {
		d["http"] = r.HTTPStatus
	}
	if r.URL != "" {
		d["url"] = r.URL
	}
	if r.ElapsedMS != 0 {
		d["ms"] = r.ElapsedMS
	}
	if r.Body != "" {
		d["body"] = r.Body
	}
	if r.ExecutionID != "" {
		d["executionId"] = r.ExecutionID
	}
	return d
}

// WebhookDispatcher triggers the external automation workflow for one client.
// Stateless beyond its configuration; it never touches the client record.
type WebhookDispatcher struct {
	URL    string
	Client *http.Client
}

func NewWebhookDispatcher(rawURL string) *WebhookDispatcher {
	return &WebhookDispatcher{
		URL:    strings.TrimSpace(rawURL),
		Client: &http.Client{Timeout: DefaultWebhookTimeout},
	}
}

// Dispatch POSTs {"client_id": id} to the configured URL, falling back to the
// production URL when a test URL answers 404/410 (endpoint not listening).
// Classification, in priority order: transport timeout, transport error,
// 404/410 (try next candidate), other non-2xx (stop), 2xx with explicit
// ok:true (started), other 2xx (success without confirmation).
func (d *WebhookDispatcher) Dispatch(clientID string) *WebhookResult {
	baseURL := strings.TrimSpace(d.URL)
	if baseURL == "" {
		return &WebhookResult{OK: false, Stage: StageConfig, Message: "webhook URL not configured (N8N_FORCE_URL)"}
	}

	urlsToTry := []string{baseURL}
	if strings.Contains(baseURL, testMarker) {
		urlsToTry = append(urlsToTry, strings.Replace(baseURL, testMarker, prodMarker, 1))
	}

	payload, _ := json.Marshal(map[string]string{"client_id": clientID})

	var last *WebhookResult
	for _, target := range urlsToTry {
		t0 := time.Now()
		resp, err := d.Client.Post(target, "application/json", bytes.NewReader(payload))
		ms := time.Since(t0).Milliseconds()

		if err != nil {
			var uerr *url.Error
			if errors.As(err, &uerr) && uerr.Timeout() {
				return &WebhookResult{
					OK: false, Stage: StageTimeout, URL: target,
					Message: fmt.Sprintf("timeout (%s) calling webhook", d.Client.Timeout),
				}
			}
			return &WebhookResult{
				OK: false, Stage: StageException, URL: target,
				Message: "error calling webhook: " + err.Error(),
			}
		}

		body := readBodyExcerpt(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			last = &WebhookResult{
				OK: false, Stage: StageNotListening, HTTPStatus: resp.StatusCode,
				URL: target, ElapsedMS: ms, Body: body,
			}
			// endpoint not listening, try the next candidate URL
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &WebhookResult{
				OK: false, Stage: StageHTTPError, HTTPStatus: resp.StatusCode,
				URL: target, ElapsedMS: ms, Body: body,
				Message: fmt.Sprintf("webhook call failed (HTTP %d)", resp.StatusCode),
			}
		}

		var data map[string]interface{}
		if err := json.Unmarshal([]byte(body), &data); err == nil {
			if ok, _ := data["ok"].(bool); ok {
				execID, _ := data["executionId"].(string)
				msg := "workflow started"
				if execID != "" {
					msg += " (executionId: " + execID + ")"
				}
				return &WebhookResult{
					OK: true, Stage: StageStarted, ExecutionID: execID,
					HTTPStatus: resp.StatusCode, URL: target, ElapsedMS: ms, Message: msg,
				}
			}
		}

		return &WebhookResult{
			OK: true, Stage: StageOKNoConfirm,
			HTTPStatus: resp.StatusCode, URL: target, ElapsedMS: ms, Body: body,
			Message: "dispatch accepted (no explicit confirmation)",
		}
	}

	// every candidate answered 404/410
	if last == nil {
		last = &WebhookResult{OK: false, Stage: StageNotListening}
	}
	last.Message = "webhook is not available (404/410); if using a test URL, " +
		"activate the workflow listener or switch to the production path"
	return last
}

func readBodyExcerpt(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 8192))
	if err != nil {
		return ""
	}
	s := string(b)
	if len(s) > 800 {
		s = s[:800]
	}
	return s
}
