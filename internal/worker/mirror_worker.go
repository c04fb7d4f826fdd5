// Package worker keeps external mirrors of the ledger in step with it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cuentas/internal/amqp"
	"cuentas/internal/core"
	"cuentas/internal/sheets"
)

// SnapshotSource returns the full persisted ledger. *storage.SQLiteRepository implements it.
type SnapshotSource interface {
	Load(ctx context.Context) ([]core.Account, []core.Transaction, error)
}

// MirrorWorker applies ledger events to a mirror and can rebuild it from a snapshot.
type MirrorWorker struct {
	mirror sheets.LedgerMirror
	source SnapshotSource
	logger *slog.Logger
}

func NewMirrorWorker(mirror sheets.LedgerMirror, source SnapshotSource, logger *slog.Logger) *MirrorWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MirrorWorker{mirror: mirror, source: source, logger: logger}
}

// HandleEvent applies one ledger event. A returned error asks for redelivery.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		"type", ev.Type,
		"entity", ev.Entity,
		"id", ev.ID)

	switch ev.Entity {
	case amqp.EntityTransaction:
		if ev.Type == amqp.EventDeleted {
			return wrap("delete transaction", w.mirror.DeleteTransaction(ctx, ev.ID))
		}
		if ev.Transaction == nil {
			return fmt.Errorf("%s transaction event %s has no payload", ev.Type, ev.ID)
		}
		return wrap("upsert transaction", w.mirror.UpsertTransaction(ctx, *ev.Transaction))

	case amqp.EntityAccount:
		if ev.Type == amqp.EventDeleted {
			return wrap("delete account", w.mirror.DeleteAccount(ctx, ev.ID))
		}
		if ev.Account == nil {
			return fmt.Errorf("%s account event %s has no payload", ev.Type, ev.ID)
		}
		return wrap("upsert account", w.mirror.UpsertAccount(ctx, *ev.Account))
	}
	return fmt.Errorf("unknown entity %q", ev.Entity)
}

// Resync writes every persisted account and transaction to the mirror. It is
// the fallback for events that were lost while the worker was down.
func (w *MirrorWorker) Resync(ctx context.Context) error {
	if w.source == nil {
		return errors.New("no snapshot source configured")
	}
	accounts, transactions, err := w.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	var failed int
	for _, a := range accounts {
		if err := w.mirror.UpsertAccount(ctx, a); err != nil {
			w.logger.ErrorContext(ctx, "Failed to mirror account", "id", a.ID, "error", err)
			failed++
		}
	}
	for _, t := range transactions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.mirror.UpsertTransaction(ctx, t); err != nil {
			w.logger.ErrorContext(ctx, "Failed to mirror transaction", "id", t.ID, "error", err)
			failed++
		}
	}

	w.logger.InfoContext(ctx, "Mirror resync completed",
		"accounts", len(accounts),
		"transactions", len(transactions),
		"failed", failed)
	if failed > 0 {
		return fmt.Errorf("resync: %d rows failed", failed)
	}
	return nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
