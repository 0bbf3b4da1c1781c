// internal/model/client.go
package model

import "time"

// Send status values (business outcome of the last send cycle).
const (
	SendStatusPending   = "Pending"
	SendStatusSent      = "Sent"
	SendStatusError     = "Error"
	SendStatusResponded = "Responded"
)

// Execution status values (lock state, independent of send_status).
// Empty string means no execution recorded yet (NULL in the store).
const (
	ExecStatusRunning = "Running"
	ExecStatusDone    = "Done"
	ExecStatusError   = "Error"
)

type Client struct {
	ClientID        string     `db:"client_id" json:"client_id"`
	Name            string     `db:"name" json:"name"`
	Email           string     `db:"email" json:"email"`
	Company         string     `db:"company" json:"company"`
	DecisionProfile string     `db:"decision_profile" json:"decision_profile"`
	Segment         string     `db:"segment" json:"segment,omitempty"`
	Active          bool       `db:"active" json:"active"`
	SendStatus      string     `db:"send_status" json:"send_status"`
	ExecutionStatus string     `db:"execution_status" json:"execution_status,omitempty"`
	LastExecutionID string     `db:"last_execution_id" json:"last_execution_id,omitempty"`
	ExecStartedAt   *time.Time `db:"exec_started_at" json:"exec_started_at,omitempty"`
	ExecFinishedAt  *time.Time `db:"exec_finished_at" json:"exec_finished_at,omitempty"`
	LastSentAt      *time.Time `db:"last_sent_at" json:"last_sent_at,omitempty"`
	NextSendAt      *time.Time `db:"next_send_at" json:"next_send_at,omitempty"`
	LastError       string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
