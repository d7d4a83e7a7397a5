package util

import "github.com/google/uuid"

// NewID returns a store-assignable unique ID.
func NewID() string {
	return uuid.NewString()
}
