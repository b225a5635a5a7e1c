package model

import "github.com/google/uuid"

// NewAlertID returns a time-ordered UUID (v7) so alert IDs sort by arrival.
func NewAlertID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func generateID() string {
	return uuid.NewString()
}
