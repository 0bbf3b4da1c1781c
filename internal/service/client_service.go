// internal/service/client_service.go
package service

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/sai-marketing/nps-admin-backend/internal/model"
	"github.com/sai-marketing/nps-admin-backend/internal/repository"
)

// Decision profiles recorded per client.
var Profiles = []string{"Decision Maker", "Influencer"}

var whitespaceRe = regexp.MustCompile(`\s+`)

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespaceRe.ReplaceAllString(s, " ")
}

// MakeClientID derives a stable client id from the normalized
// company + email pair: "C" plus the first 16 hex chars of the sha256.
func MakeClientID(email, company string) string {
	base := normalizeKey(company) + "|" + normalizeKey(email)
	digest := sha256.Sum256([]byte(base))
	return "C" + hex.EncodeToString(digest[:])[:16]
}

type ClientService struct {
	Repo repository.ClientRepositoryInterface
}

func (s *ClientService) CreateClient(name, email, company, profile, segment string) (*model.Client, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	company = strings.TrimSpace(company)

	if name == "" || email == "" || company == "" {
		return nil, fmt.Errorf("name, email and company are required")
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email: %s", email)
	}
	if !validProfile(profile) {
		profile = Profiles[0]
	}

	c := &model.Client{
		ClientID:        MakeClientID(email, company),
		Name:            name,
		Email:           email,
		Company:         company,
		DecisionProfile: profile,
		Segment:         strings.TrimSpace(segment),
		Active:          true,
		SendStatus:      model.SendStatusPending,
	}
	if err := s.Repo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClientService) UpdateClient(id, name, email, company, profile, segment string) (*model.Client, error) {
	c, err := s.Repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	// the id stays fixed even if email/company change
	c.Name = strings.TrimSpace(name)
	c.Email = strings.TrimSpace(email)
	c.Company = strings.TrimSpace(company)
	if validProfile(profile) {
		c.DecisionProfile = profile
	}
	c.Segment = strings.TrimSpace(segment)

	if err := s.Repo.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClientService) ListClients(q, active, profile string, limit int) ([]*model.Client, error) {
	if limit < 1 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.Repo.ListClients(q, active, profile, limit)
}

func (s *ClientService) GetClient(id string) (*model.Client, error) {
	return s.Repo.GetByID(id)
}

func (s *ClientService) SetActive(id string, active bool) error {
	return s.Repo.SetActive(id, active)
}

func (s *ClientService) ForceEligible(id string) error {
	return s.Repo.ForceEligible(id)
}

func (s *ClientService) ForceSend(id string) error {
	return s.Repo.ForceSend(id)
}

func validProfile(p string) bool {
	for _, known := range Profiles {
		if p == known {
			return true
		}
	}
	return false
}

// ====================== CSV import ======================

// ImportResult accounts for every row of an import file.
type ImportResult struct {
	Total   int      `json:"total"`
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// ImportClientsCSV reads a CSV with headers name,email,company
// (optional: decision_profile, segment) and creates one client per row.
// Duplicate company+email pairs are counted as skipped, bad rows as errors;
// neither stops the import.
func (s *ClientService) ImportClientsCSV(r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	col := map[string]int{}
	for i, h := range header {
		col[normalizeKey(strings.ReplaceAll(h, " ", "_"))] = i
	}
	for _, required := range []string{"name", "email", "company"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("CSV is missing required column: %s", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	result := &ImportResult{Errors: []string{}}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.Total++
			continue
		}
		result.Total++

		_, err = s.CreateClient(
			field(row, "name"), field(row, "email"), field(row, "company"),
			field(row, "decision_profile"), field(row, "segment"),
		)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				// unique violation: same company+email already registered
				result.Skipped++
				continue
			}
			log.Println("⚠️ import row failed:", err)
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", result.Total, err))
			continue
		}
		result.Created++
	}
	return result, nil
}
