package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/sai-marketing/nps-admin-backend/internal/errors"
	"github.com/sai-marketing/nps-admin-backend/internal/model"
)

type ClientRepositoryInterface interface {
	// Client CRUD
	GetByID(id string) (*model.Client, error)
	ListClients(q, active, profile string, limit int) ([]*model.Client, error)
	Create(c *model.Client) error
	Update(c *model.Client) error
	SetActive(id string, active bool) error

	// Administrative "force" actions
	ForceEligible(id string) error
	ForceSend(id string) error

	// Execution lock (store-arbitrated; the store is the only arbiter
	// across concurrent operators and processes)
	AcquireExecution(id string) (bool, error)
	ReleaseExecution(id, outcome, executionRef, errorMessage string) error

	// Dispatch selection
	ListEligible(limit int) ([]*model.Client, error)
}

type ClientRepository struct {
	DB *sql.DB
}

const clientColumns = `client_id, name, email, company, decision_profile, segment,
    active, send_status, execution_status, last_execution_id,
    exec_started_at, exec_finished_at, last_sent_at, next_send_at, last_error,
    created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (*model.Client, error) {
	var c model.Client
	var segment, execStatus, execID, lastError sql.NullString
	err := row.Scan(
		&c.ClientID, &c.Name, &c.Email, &c.Company, &c.DecisionProfile, &segment,
		&c.Active, &c.SendStatus, &execStatus, &execID,
		&c.ExecStartedAt, &c.ExecFinishedAt, &c.LastSentAt, &c.NextSendAt, &lastError,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Segment = segment.String
	c.ExecutionStatus = execStatus.String
	c.LastExecutionID = execID.String
	c.LastError = lastError.String
	return &c, nil
}

// ====================== Client CRUD ======================

func (r *ClientRepository) GetByID(id string) (*model.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM nps_clients WHERE client_id=$1`
	c, err := scanClient(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewClientNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *ClientRepository) ListClients(q, active, profile string, limit int) ([]*model.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM nps_clients WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	switch active {
	case "active":
		query += " AND active=TRUE"
	case "inactive":
		query += " AND active=FALSE"
	}

	if profile != "" {
		query += fmt.Sprintf(" AND decision_profile=$%d", argPos)
		args = append(args, profile)
		argPos++
	}

	if q != "" {
		query += fmt.Sprintf(` AND (
            LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d OR
            LOWER(company) LIKE $%d OR client_id LIKE $%d)`, argPos, argPos, argPos, argPos+1)
		args = append(args, "%"+strings.ToLower(q)+"%", "%"+q+"%")
		argPos += 2
	}

	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := []*model.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *ClientRepository) Create(c *model.Client) error {
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	if c.SendStatus == "" {
		c.SendStatus = model.SendStatusPending
	}
	query := `
        INSERT INTO nps_clients
          (client_id, name, email, company, decision_profile, segment,
           active, send_status, next_send_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, $8, CURRENT_DATE, $9, $10)
    `
	_, err := r.DB.Exec(query, c.ClientID, c.Name, c.Email, c.Company,
		c.DecisionProfile, c.Segment, c.Active, c.SendStatus, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *ClientRepository) Update(c *model.Client) error {
	query := `
        UPDATE nps_clients
        SET name=$1, email=$2, company=$3, decision_profile=$4, segment=NULLIF($5,''), updated_at=NOW()
        WHERE client_id=$6
    `
	_, err := r.DB.Exec(query, c.Name, c.Email, c.Company, c.DecisionProfile, c.Segment, c.ClientID)
	return err
}

func (r *ClientRepository) SetActive(id string, active bool) error {
	query := `UPDATE nps_clients SET active=$1, updated_at=NOW() WHERE client_id=$2`
	_, err := r.DB.Exec(query, active, id)
	return err
}

// ====================== Force actions ======================

// ForceEligible marks the client eligible for the next cycle without
// clearing last_sent_at (the sent-today rule still applies).
func (r *ClientRepository) ForceEligible(id string) error {
	query := `
        UPDATE nps_clients
        SET active=TRUE, send_status=$1, next_send_at=CURRENT_DATE, last_error=NULL, updated_at=NOW()
        WHERE client_id=$2
    `
	_, err := r.DB.Exec(query, model.SendStatusPending, id)
	return err
}

// ForceSend resets last_sent_at so the client can be re-dispatched today.
func (r *ClientRepository) ForceSend(id string) error {
	query := `
        UPDATE nps_clients
        SET active=TRUE, send_status=$1, last_sent_at=NULL, next_send_at=CURRENT_DATE, last_error=NULL, updated_at=NOW()
        WHERE client_id=$2
    `
	_, err := r.DB.Exec(query, model.SendStatusPending, id)
	return err
}

// ====================== Execution lock ======================

// AcquireExecution attempts to take the execution lock for a client with a
// single conditional update. Returns true iff exactly one row was affected;
// acquisition and commit are one atomic statement, there is no
// read-then-write window.
func (r *ClientRepository) AcquireExecution(id string) (bool, error) {
	query := `
        UPDATE nps_clients
        SET execution_status=$1, exec_started_at=NOW(), exec_finished_at=NULL, updated_at=NOW()
        WHERE client_id=$2 AND active=TRUE
          AND (execution_status IS NULL OR execution_status <> $1)
    `
	res, err := r.DB.Exec(query, model.ExecStatusRunning, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseExecution finalizes a lock hold. Unconditional: only the session
// that succeeded at AcquireExecution calls it.
func (r *ClientRepository) ReleaseExecution(id, outcome, executionRef, errorMessage string) error {
	query := `
        UPDATE nps_clients
        SET execution_status=$1, last_execution_id=NULLIF($2,''), last_error=NULLIF($3,''),
            exec_finished_at=NOW(), updated_at=NOW()
        WHERE client_id=$4
    `
	_, err := r.DB.Exec(query, outcome, executionRef, errorMessage, id)
	return err
}

// ====================== Dispatch selection ======================

func (r *ClientRepository) ListEligible(limit int) ([]*model.Client, error) {
	query := `
        SELECT ` + clientColumns + `
        FROM nps_clients
        WHERE active=TRUE
          AND send_status IN ($1, $2)
          AND (next_send_at IS NULL OR next_send_at <= CURRENT_DATE)
          AND (execution_status IS NULL OR execution_status <> $3)
          AND email LIKE '%@%'
        ORDER BY updated_at ASC
        LIMIT $4
    `
	rows, err := r.DB.Query(query, model.SendStatusPending, model.SendStatusError, model.ExecStatusRunning, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := []*model.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

var _ ClientRepositoryInterface = (*ClientRepository)(nil)
