package modguard

import (
	"github.com/google/uuid"
)

// NewRuleID generates a globally unique, time-sortable UUIDv7 (RFC 9562) for
// a ModerationRule.
func NewRuleID() string {
	return uuid.Must(uuid.NewV7()).String()
}
