package modguard

import (
	"context"
	"time"
)

// Incident is one row appended to the durable incident log after the
// scheduler records a non-null verdict. OccurredAt is the moderated
// message's own timestamp (ChatContext.Timestamp), not the time the
// incident happens to be recorded.
type Incident struct {
	RuleID     string
	Layer      Layer
	Action     Action
	Priority   Priority
	ChatID     int64
	UserID     int64
	MessageID  int64
	OccurredAt time.Time // UTC, stored as ISO-8601 text
	Reason     string
	Payload    map[string]any
}

// Store abstracts the durable rule/incident repository. Implementations
// (e.g. store/sqlite) own connection lifecycle; the core calls Init once at
// startup.
type Store interface {
	// Init connects and prepares the schema. Fatal on failure.
	Init(ctx context.Context) error
	// Close releases the connection.
	Close() error

	// UpsertRule replaces all non-key columns for rule.RuleID, inserting if
	// new.
	UpsertRule(ctx context.Context, rule ModerationRule) error
	// DeleteRule removes a rule by id. No error if absent.
	DeleteRule(ctx context.Context, ruleID string) error
	// ListRules returns every persisted rule, for registry seeding.
	ListRules(ctx context.Context) ([]ModerationRule, error)

	// RecordIncidents appends all given incidents in one call.
	RecordIncidents(ctx context.Context, incidents []Incident) error
}
