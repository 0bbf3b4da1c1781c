// internal/errors/errors.go
package appErrors

import "fmt"

// ErrClientNotFound is a sentinel error
type ErrClientNotFound struct {
	ClientID string
}

func (e *ErrClientNotFound) Error() string {
	return fmt.Sprintf("client %s not found", e.ClientID)
}

// Helper constructor
func NewClientNotFound(id string) error {
	return &ErrClientNotFound{ClientID: id}
}

// ErrResponseNotFound is returned when a survey response id does not exist
type ErrResponseNotFound struct {
	ResponseID int
}

func (e *ErrResponseNotFound) Error() string {
	return fmt.Sprintf("response with ID %d not found", e.ResponseID)
}

func NewResponseNotFound(id int) error {
	return &ErrResponseNotFound{ResponseID: id}
}
