// internal/model/response.go
package model

import "time"

// NPS categories derived from the score: 9-10 promoter, 7-8 passive, 0-6 detractor.
const (
	CategoryPromoter  = "Promoter"
	CategoryPassive   = "Passive"
	CategoryDetractor = "Detractor"
)

type SurveyResponse struct {
	ID          int        `db:"id" json:"id"`
	ClientID    string     `db:"client_id" json:"client_id"`
	Company     string     `db:"company" json:"company"`
	Score       int        `db:"score" json:"score"`
	Category    string     `db:"category" json:"category"`
	Reason      string     `db:"reason" json:"reason,omitempty"`
	Channel     string     `db:"channel" json:"channel,omitempty"`
	RespondedAt time.Time  `db:"responded_at" json:"responded_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// CategoryForScore maps an NPS score to its category label.
func CategoryForScore(score int) string {
	switch {
	case score >= 9:
		return CategoryPromoter
	case score >= 7:
		return CategoryPassive
	default:
		return CategoryDetractor
	}
}
