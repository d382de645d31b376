// Command modguardd runs the moderation engine as a standalone daemon: it
// loads configuration, wires the SQLite store and HTTP classifier adapter
// into a Coordinator, starts it, and runs until interrupted. It exposes no
// ingest or admin endpoint of its own.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/modguard/modguard"
	"github.com/modguard/modguard/adapter/httpclassifier"
	"github.com/modguard/modguard/internal/config"
	"github.com/modguard/modguard/store/sqlite"
)

func main() {
	cfgPath := os.Getenv("MODGUARD_CONFIG")
	cfg := config.Load(cfgPath)

	if cfg.Adapter.APIKey == "" {
		log.Fatal("modguardd: MODGUARD_ADAPTER_API_KEY (or adapter.api_key in config) is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	st := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))

	adapter := httpclassifier.New(
		cfg.Adapter.APIKey,
		cfg.Adapter.BaseURL,
		httpclassifier.WithHTTPClient(newHTTPClient(cfg)),
	)

	sink := modguard.DecisionSinkFunc(func(ctx context.Context, decision modguard.PunishmentDecision, result modguard.ModerationResult) error {
		logger.Info("moderation decision",
			"chat_id", result.Message.Context.ChatID,
			"message_id", result.Message.Context.MessageID,
			"user_id", result.Message.Context.UserID,
			"layer", decision.Verdict.Layer,
			"action", decision.Verdict.Action,
			"reason", decision.Verdict.Reason,
		)
		return nil
	})

	coord := modguard.NewCoordinator(
		modguard.WithStore(st),
		modguard.WithDecisionSink(sink),
		modguard.WithClassifierAdapter(adapter),
		modguard.WithMaxBatchSize(cfg.Batcher.MaxBatchSize),
		modguard.WithMaxDelay(cfg.Batcher.MaxDelayDuration()),
		modguard.WithMaxConcurrentBatches(cfg.Scheduler.MaxConcurrentBatches),
		modguard.WithRegexWorkers(cfg.Scheduler.RegexWorkers),
		modguard.WithCategoryConcurrency(cfg.Scheduler.CategoryConcurrency),
		modguard.WithContextualConcurrency(cfg.Scheduler.ContextualConcurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := coord.Start(ctx); err != nil {
		log.Fatalf("modguardd: start: %v", err)
	}
	defer coord.Shutdown()

	<-ctx.Done()
	logger.Info("modguardd: shutting down")
}

func newHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Adapter.TimeoutDuration()}
}
