package repository

import (
	"database/sql"
	"fmt"

	appErrors "github.com/sai-marketing/nps-admin-backend/internal/errors"
	"github.com/sai-marketing/nps-admin-backend/internal/model"
)

// ResponseRepositoryInterface defines methods used by the responses service
type ResponseRepositoryInterface interface {
	GetByID(id int) (*model.SurveyResponse, error)
	ListResponses(clientID, company, category string, limit int) ([]*model.SurveyResponse, error)
	UpdateResponse(r *model.SurveyResponse) error
	SoftDelete(id int) error
	NPSStats(company string) (map[string]int, error)
}

// ResponseRepository is the concrete implementation
type ResponseRepository struct {
	DB *sql.DB
}

const responseColumns = `id, client_id, company, score, category, reason, channel, responded_at, deleted_at`

func (r *ResponseRepository) GetByID(id int) (*model.SurveyResponse, error) {
	query := `SELECT ` + responseColumns + ` FROM nps_responses WHERE id=$1 AND deleted_at IS NULL`
	var resp model.SurveyResponse
	var reason, channel sql.NullString
	err := r.DB.QueryRow(query, id).Scan(
		&resp.ID, &resp.ClientID, &resp.Company, &resp.Score, &resp.Category,
		&reason, &channel, &resp.RespondedAt, &resp.DeletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewResponseNotFound(id)
		}
		return nil, err
	}
	resp.Reason = reason.String
	resp.Channel = channel.String
	return &resp, nil
}

func (r *ResponseRepository) ListResponses(clientID, company, category string, limit int) ([]*model.SurveyResponse, error) {
	query := `SELECT ` + responseColumns + ` FROM nps_responses WHERE deleted_at IS NULL`
	args := []interface{}{}
	argPos := 1

	if clientID != "" {
		query += fmt.Sprintf(" AND client_id=$%d", argPos)
		args = append(args, clientID)
		argPos++
	}
	if company != "" {
		query += fmt.Sprintf(" AND company=$%d", argPos)
		args = append(args, company)
		argPos++
	}
	if category != "" {
		query += fmt.Sprintf(" AND category=$%d", argPos)
		args = append(args, category)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY responded_at DESC LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := []*model.SurveyResponse{}
	for rows.Next() {
		var resp model.SurveyResponse
		var reason, channel sql.NullString
		if err := rows.Scan(
			&resp.ID, &resp.ClientID, &resp.Company, &resp.Score, &resp.Category,
			&reason, &channel, &resp.RespondedAt, &resp.DeletedAt,
		); err != nil {
			return nil, err
		}
		resp.Reason = reason.String
		resp.Channel = channel.String
		responses = append(responses, &resp)
	}
	return responses, rows.Err()
}

func (r *ResponseRepository) UpdateResponse(resp *model.SurveyResponse) error {
	query := `
        UPDATE nps_responses
        SET score=$1, category=$2, reason=NULLIF($3,''), channel=NULLIF($4,'')
        WHERE id=$5 AND deleted_at IS NULL
    `
	_, err := r.DB.Exec(query, resp.Score, resp.Category, resp.Reason, resp.Channel, resp.ID)
	return err
}

// SoftDelete marks a response deleted without removing the row.
func (r *ResponseRepository) SoftDelete(id int) error {
	query := `UPDATE nps_responses SET deleted_at=NOW() WHERE id=$1 AND deleted_at IS NULL`
	_, err := r.DB.Exec(query, id)
	return err
}

func (r *ResponseRepository) NPSStats(company string) (map[string]int, error) {
	query := `SELECT category, COUNT(*) FROM nps_responses WHERE deleted_at IS NULL`
	args := []interface{}{}
	if company != "" {
		query += " AND company=$1"
		args = append(args, company)
	}
	query += " GROUP BY category"

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		model.CategoryPromoter:  0,
		model.CategoryPassive:   0,
		model.CategoryDetractor: 0,
	}
	total := 0
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		if _, ok := stats[category]; ok {
			stats[category] = count
		}
		total += count
	}
	stats["total"] = total
	return stats, rows.Err()
}

var _ ResponseRepositoryInterface = (*ResponseRepository)(nil)
