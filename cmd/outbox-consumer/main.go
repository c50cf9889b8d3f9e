package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/khelzone/platform/internal/domain"
	"github.com/khelzone/platform/internal/infra"
	"github.com/khelzone/platform/internal/projection"
)

// Consumes the wallet entry topic and maintains the balance projection
// cache. Room lifecycle topics are logged for downstream analytics.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.KafkaEnabled {
		return fmt.Errorf("KAFKA_ENABLED must be true for the outbox consumer")
	}

	consumer := infra.NewKafkaConsumer(
		cfg.KafkaBrokers, string(domain.EventEntryPosted), "outbox-consumer", true, logger)
	defer consumer.Close()

	store := projection.NewInMemoryStore()
	logger.Info("outbox-consumer starting", "topic", domain.EventEntryPosted)

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("outbox-consumer shutting down")
				return nil
			}
			logger.Error("read message", "error", err)
			continue
		}

		if err := applyEntry(ctx, store, msg.Value, logger); err != nil {
			logger.Error("apply entry", "error", err)
		}
	}
}

// envelope is the message shape written by the outbox poller.
type envelope struct {
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
}

func applyEntry(ctx context.Context, store projection.Store, value []byte, logger *slog.Logger) error {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	var entry domain.LedgerEntry
	if err := json.Unmarshal(env.Payload, &entry); err != nil {
		return fmt.Errorf("unmarshal entry: %w", err)
	}

	if err := projection.UpdateBalance(ctx, store, projection.BalanceProjection{
		UserID:          entry.UserID.String(),
		Balance:         entry.BalanceAfter,
		ReservedBalance: entry.ReservedAfter,
	}); err != nil {
		return fmt.Errorf("update projection: %w", err)
	}

	logger.Info("entry projected",
		"event_id", env.EventID,
		"user_id", entry.UserID,
		"kind", entry.Kind,
		"balance_after", entry.BalanceAfter)
	return nil
}
