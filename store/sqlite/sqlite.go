// Package sqlite implements modguard.Store using pure-Go SQLite. Zero CGO
// required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modguard/modguard"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and row counts. If
// not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements modguard.Store backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ modguard.Store = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
//
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init enables WAL journaling and creates all required tables, applying
// best-effort migrations.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")

	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS rules (
			rule_id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			action TEXT NOT NULL,
			source TEXT NOT NULL,
			layer TEXT NOT NULL,
			rule_type TEXT NOT NULL,
			chat_id INTEGER,
			pattern TEXT,
			category TEXT,
			priority INTEGER NOT NULL,
			action_duration_seconds INTEGER,
			metadata TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rule_id TEXT NOT NULL,
			layer TEXT NOT NULL,
			action TEXT NOT NULL,
			priority INTEGER NOT NULL,
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			occurred_at TEXT NOT NULL,
			reason TEXT,
			payload TEXT
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// Migration: action_duration_seconds was added after the initial
	// release; ignore the error on databases that already have it.
	_, _ = s.db.ExecContext(ctx, `ALTER TABLE rules ADD COLUMN action_duration_seconds INTEGER`)

	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_rules_layer ON rules(layer)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_rules_chat ON rules(chat_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_incidents_chat ON incidents(chat_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_incidents_occurred ON incidents(occurred_at)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	if err := s.db.Close(); err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
		return err
	}
	return nil
}

// UpsertRule replaces all non-key columns for rule.RuleID, inserting if new.
func (s *Store) UpsertRule(ctx context.Context, rule modguard.ModerationRule) error {
	start := time.Now()
	s.logger.Debug("sqlite: upsert rule", "rule_id", rule.RuleID, "layer", rule.Layer)

	var metaJSON *string
	if len(rule.Metadata) > 0 {
		data, err := json.Marshal(rule.Metadata)
		if err != nil {
			return fmt.Errorf("marshal rule metadata: %w", err)
		}
		v := string(data)
		metaJSON = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rules
			(rule_id, description, action, source, layer, rule_type, chat_id, pattern, category, priority, action_duration_seconds, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.RuleID, rule.Description, string(rule.Action), string(rule.Source), string(rule.Layer), string(rule.RuleType),
		rule.ChatID, rule.Pattern, rule.Category, int(rule.Priority), rule.ActionDurationSeconds, metaJSON,
	)
	if err != nil {
		s.logger.Error("sqlite: upsert rule failed", "rule_id", rule.RuleID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("upsert rule: %w", err)
	}
	s.logger.Debug("sqlite: upsert rule ok", "rule_id", rule.RuleID, "duration", time.Since(start))
	return nil
}

// DeleteRule removes a rule by id. No error if absent.
func (s *Store) DeleteRule(ctx context.Context, ruleID string) error {
	start := time.Now()
	s.logger.Debug("sqlite: delete rule", "rule_id", ruleID)

	_, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE rule_id = ?`, ruleID)
	if err != nil {
		s.logger.Error("sqlite: delete rule failed", "rule_id", ruleID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("delete rule: %w", err)
	}
	s.logger.Debug("sqlite: delete rule ok", "rule_id", ruleID, "duration", time.Since(start))
	return nil
}

// ListRules returns every persisted rule, for registry seeding.
func (s *Store) ListRules(ctx context.Context) ([]modguard.ModerationRule, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list rules")

	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_id, description, action, source, layer, rule_type, chat_id, pattern, category, priority, action_duration_seconds, metadata
		 FROM rules`)
	if err != nil {
		s.logger.Error("sqlite: list rules failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []modguard.ModerationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	s.logger.Debug("sqlite: list rules ok", "count", len(rules), "duration", time.Since(start))
	return rules, rows.Err()
}

func scanRule(rows *sql.Rows) (modguard.ModerationRule, error) {
	var rule modguard.ModerationRule
	var action, source, layer, ruleType string
	var chatID sql.NullInt64
	var pattern, category sql.NullString
	var priority int
	var durationSeconds sql.NullInt64
	var metaJSON sql.NullString

	if err := rows.Scan(&rule.RuleID, &rule.Description, &action, &source, &layer, &ruleType,
		&chatID, &pattern, &category, &priority, &durationSeconds, &metaJSON); err != nil {
		return modguard.ModerationRule{}, err
	}

	rule.Action = modguard.Action(action)
	rule.Source = modguard.RuleSource(source)
	rule.Layer = modguard.Layer(layer)
	rule.RuleType = modguard.RuleType(ruleType)
	rule.Priority = modguard.Priority(priority)
	if chatID.Valid {
		v := chatID.Int64
		rule.ChatID = &v
	}
	if pattern.Valid {
		v := pattern.String
		rule.Pattern = &v
	}
	if category.Valid {
		v := category.String
		rule.Category = &v
	}
	if durationSeconds.Valid {
		v := int(durationSeconds.Int64)
		rule.ActionDurationSeconds = &v
	}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &rule.Metadata)
	}
	return rule, nil
}

// RecordIncidents appends all given incidents in one transaction.
func (s *Store) RecordIncidents(ctx context.Context, incidents []modguard.Incident) error {
	if len(incidents) == 0 {
		return nil
	}
	start := time.Now()
	s.logger.Debug("sqlite: record incidents", "count", len(incidents))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, inc := range incidents {
		var payloadJSON *string
		if len(inc.Payload) > 0 {
			data, err := json.Marshal(inc.Payload)
			if err != nil {
				return fmt.Errorf("marshal incident payload: %w", err)
			}
			v := string(data)
			payloadJSON = &v
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO incidents (rule_id, layer, action, priority, chat_id, user_id, message_id, occurred_at, reason, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inc.RuleID, string(inc.Layer), string(inc.Action), int(inc.Priority),
			inc.ChatID, inc.UserID, inc.MessageID, inc.OccurredAt.UTC().Format(time.RFC3339), inc.Reason, payloadJSON,
		)
		if err != nil {
			s.logger.Error("sqlite: record incident failed", "rule_id", inc.RuleID, "error", err)
			return fmt.Errorf("insert incident: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: record incidents commit failed", "error", err, "duration", time.Since(start))
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: record incidents ok", "count", len(incidents), "duration", time.Since(start))
	return nil
}

// DB returns the underlying *sql.DB, for callers that need direct access
// (e.g. admin tooling, ad-hoc incident queries).
func (s *Store) DB() *sql.DB {
	return s.db
}
