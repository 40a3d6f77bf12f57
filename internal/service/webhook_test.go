package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixwallet/internal/model"
	"pixwallet/internal/notify"
	"pixwallet/internal/storage"
)

func newGuard(t *testing.T) (*WebhookGuard, *Ledger, storage.Store, *recordingNotifier) {
	t.Helper()
	store := storage.NewMemory()
	notifier := &recordingNotifier{}
	ledger := NewLedger(store, notifier)
	return NewWebhookGuard(store, ledger, notifier), ledger, store, notifier
}

func TestWebhook_DepositRoundTrip(t *testing.T) {
	ctx := context.Background()
	guard, ledger, store, _ := newGuard(t)

	// Pending charge created when the user generated the QR code.
	require.NoError(t, store.SetFields(ctx, storage.KindTransaction, "charge1", map[string]string{
		storage.FieldUserID:    "U1",
		storage.FieldType:      string(model.TypeDeposit),
		storage.FieldPaymentID: "TX1",
		storage.FieldStatus:    string(model.StatusPending),
	}))

	summary := guard.ProcessBatch(ctx, []model.PixEvent{
		{Txid: "TX1", Valor: "50.00", Horario: "2026-01-02T03:04:05Z"},
	})
	assert.Equal(t, BatchSummary{Processed: 1}, summary)

	balance, err := ledger.GetBalance(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "50.00", balance.StringFixed(2))

	// The charge no longer matches as a pending deposit.
	status, err := store.GetField(ctx, storage.KindTransaction, "charge1", storage.FieldStatus)
	require.NoError(t, err)
	assert.Equal(t, string(model.StatusCompleted), status)

	// Replaying the same txid is a silent no-op.
	summary = guard.ProcessBatch(ctx, []model.PixEvent{
		{Txid: "TX1", Valor: "50.00", Horario: "2026-01-02T03:04:05Z"},
	})
	assert.Equal(t, BatchSummary{Skipped: 1}, summary)

	balance, err = ledger.GetBalance(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "50.00", balance.StringFixed(2), "duplicate delivery must credit exactly once")
}

func TestWebhook_OrphanedPaymentIsNeverDropped(t *testing.T) {
	ctx := context.Background()
	guard, ledger, _, notifier := newGuard(t)

	summary := guard.ProcessBatch(ctx, []model.PixEvent{
		{Txid: "TX-unknown", Valor: "25.00"},
	})
	assert.Equal(t, BatchSummary{Processed: 1}, summary)
	assert.Equal(t, 1, notifier.count(notify.EventOrphanedPayment))

	// The orphaned-payment event names the synthesized user the funds went to.
	payload := notifier.payload(notify.EventOrphanedPayment)
	require.NotNil(t, payload)
	orphanID := payload["user_id"]
	assert.True(t, strings.HasPrefix(orphanID, "webhook_user_"))

	balance, err := ledger.GetBalance(ctx, orphanID)
	require.NoError(t, err)
	assert.Equal(t, "25.00", balance.StringFixed(2), "orphaned payments are credited, never dropped")
}

func TestWebhook_IncompleteEntriesAreSkipped(t *testing.T) {
	ctx := context.Background()
	guard, _, _, _ := newGuard(t)

	summary := guard.ProcessBatch(ctx, []model.PixEvent{
		{Txid: "", Valor: "10.00"},
		{Txid: "TX2", Valor: ""},
	})
	assert.Equal(t, BatchSummary{Skipped: 2}, summary)
}

func TestWebhook_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	guard, ledger, store, _ := newGuard(t)

	require.NoError(t, store.SetFields(ctx, storage.KindTransaction, "charge1", map[string]string{
		storage.FieldUserID:    "U1",
		storage.FieldPaymentID: "TX-good",
		storage.FieldType:      string(model.TypeDeposit),
		storage.FieldStatus:    string(model.StatusPending),
	}))

	summary := guard.ProcessBatch(ctx, []model.PixEvent{
		{Txid: "TX-bad", Valor: "not-a-number"},
		{Txid: "TX-good", Valor: "30.00"},
	})
	assert.Equal(t, BatchSummary{Processed: 1, Failed: 1}, summary)

	balance, err := ledger.GetBalance(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "30.00", balance.StringFixed(2), "one bad entry must not block the rest")
}

func TestWebhook_MarkerWrittenBeforeCredit(t *testing.T) {
	ctx := context.Background()
	guard, _, store, _ := newGuard(t)

	guard.ProcessBatch(ctx, []model.PixEvent{{Txid: "TX9", Valor: "5.00"}})

	_, err := store.GetScalar(ctx, "webhook_processed:TX9")
	require.NoError(t, err, "dedup marker must exist after processing")
}
