package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pixwallet/internal/model"
	"pixwallet/internal/notify"
	"pixwallet/internal/storage"
)

// DedupRetention bounds how long a processed gateway transaction id is
// remembered. The gateway does not redeliver beyond this window.
const DedupRetention = 7 * 24 * time.Hour

const dedupKeyPrefix = "webhook_processed:"

// WebhookGuard deduplicates inbound payment confirmations by gateway
// transaction id before they reach the ledger. Duplicate delivery is expected
// gateway behavior, not a fault.
type WebhookGuard struct {
	store    storage.Store
	ledger   *Ledger
	notifier notify.Notifier
}

func NewWebhookGuard(store storage.Store, ledger *Ledger, notifier notify.Notifier) *WebhookGuard {
	return &WebhookGuard{store: store, ledger: ledger, notifier: notifier}
}

// BatchSummary tallies the outcome of one webhook delivery.
type BatchSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type dedupMarker struct {
	ProcessedAt string `json:"processed_at"`
	Amount      string `json:"amount"`
	RawTime     string `json:"raw_time"`
}

// ProcessBatch handles each PIX entry independently: one bad or failing entry
// must not block the rest of the delivery.
func (g *WebhookGuard) ProcessBatch(ctx context.Context, events []model.PixEvent) BatchSummary {
	var summary BatchSummary
	for _, ev := range events {
		switch err := g.processOne(ctx, ev); {
		case err == nil:
			summary.Processed++
		case errors.Is(err, errSkipped):
			summary.Skipped++
		default:
			slog.Error("webhook: failed to process pix event", "txid", ev.Txid, "error", err)
			summary.Failed++
		}
	}
	return summary
}

// errSkipped marks a deliberate no-op outcome: duplicates and malformed entries.
var errSkipped = errors.New("event skipped")

func (g *WebhookGuard) processOne(ctx context.Context, ev model.PixEvent) error {
	if ev.Txid == "" || ev.Valor == "" {
		slog.Warn("webhook: incomplete pix event skipped", "txid", ev.Txid)
		return errSkipped
	}

	key := dedupKeyPrefix + ev.Txid
	_, err := g.store.GetScalar(ctx, key)
	if err == nil {
		slog.Info("webhook: duplicate pix event ignored", "txid", ev.Txid)
		return errSkipped
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("check dedup marker: %w", err)
	}

	amount, err := decimal.NewFromString(ev.Valor)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", ev.Valor, err)
	}

	// Write the marker before crediting. This narrows, but does not close,
	// the duplicate window under concurrent delivery of the same txid.
	marker, _ := json.Marshal(dedupMarker{
		ProcessedAt: time.Now().UTC().Format(storage.TimeLayout),
		Amount:      ev.Valor,
		RawTime:     ev.Horario,
	})
	if err := g.store.SetScalar(ctx, key, string(marker), DedupRetention); err != nil {
		return fmt.Errorf("set dedup marker: %w", err)
	}

	userID, chargeID, err := g.resolveUser(ctx, ev.Txid)
	if err != nil {
		return err
	}

	if _, err := g.ledger.Credit(ctx, userID, amount, ev.Txid); err != nil {
		return fmt.Errorf("credit deposit: %w", err)
	}

	// Close out the charge so it stops matching as a pending deposit.
	if chargeID != "" {
		err := g.store.SetFields(ctx, storage.KindTransaction, chargeID, map[string]string{
			storage.FieldStatus:      string(model.StatusCompleted),
			storage.FieldProcessedAt: time.Now().UTC().Format(storage.TimeLayout),
		})
		if err != nil {
			return fmt.Errorf("complete pending charge: %w", err)
		}
	}
	return nil
}

// resolveUser finds the depositor behind a gateway txid via its pending charge.
// When the confirmation arrives before the charge record exists, the funds are
// credited to a synthesized user instead of being dropped, and the case is
// flagged for manual reconciliation.
func (g *WebhookGuard) resolveUser(ctx context.Context, txid string) (userID, chargeID string, err error) {
	tx, err := g.store.FindPendingDeposit(ctx, txid)
	if err == nil {
		return tx.UserID, tx.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", "", fmt.Errorf("find pending deposit: %w", err)
	}

	userID = "webhook_user_" + uuid.NewString()
	slog.Warn("webhook: orphaned payment, synthesized user", "txid", txid, "user_id", userID)
	g.notifier.Notify(notify.EventOrphanedPayment, map[string]string{
		"txid":    txid,
		"user_id": userID,
	})
	return userID, "", nil
}
