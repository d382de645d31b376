package modguard

import "context"

// DecisionSink is the external callback that turns a verdict into an
// enforcement action (delete/warn/mute/ban a message or user). It is
// invoked at-least-once per violating message; implementations must be
// idempotent — e.g. deleting an already-deleted message is a no-op.
type DecisionSink interface {
	OnDecision(ctx context.Context, decision PunishmentDecision, result ModerationResult) error
}

// DecisionSinkFunc adapts a plain function to a DecisionSink.
type DecisionSinkFunc func(ctx context.Context, decision PunishmentDecision, result ModerationResult) error

func (f DecisionSinkFunc) OnDecision(ctx context.Context, decision PunishmentDecision, result ModerationResult) error {
	return f(ctx, decision, result)
}
