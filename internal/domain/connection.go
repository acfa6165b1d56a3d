// Package domain contains identifiers and wire payloads, no logic
package domain

import "github.com/google/uuid"

// NewConnectionID returns a fresh identifier for a client link.
// Identifiers are random and never handed out twice.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}
