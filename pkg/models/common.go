package models

import "github.com/google/uuid"

// NewUUID generates a new UUID string for event and trace identifiers.
func NewUUID() string {
	return uuid.New().String()
}
