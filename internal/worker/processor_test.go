package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixwallet/internal/model"
	"pixwallet/internal/notify"
	"pixwallet/internal/service"
	"pixwallet/internal/storage"
)

// scriptedPayer fails payouts to the keys listed in failFor.
type scriptedPayer struct {
	failFor map[string]bool
	calls   []string
}

func (p *scriptedPayer) Pay(ctx context.Context, pixKey string, amount decimal.Decimal) error {
	p.calls = append(p.calls, pixKey)
	if p.failFor[pixKey] {
		return errors.New("gateway rejected payout")
	}
	return nil
}

func setup(t *testing.T) (*service.Withdrawals, *service.Ledger, storage.Store) {
	t.Helper()
	store := storage.NewMemory()
	ledger := service.NewLedger(store, notify.Noop{})
	return service.NewWithdrawals(store, ledger, notify.Noop{}), ledger, store
}

func approvedWithdrawal(t *testing.T, ctx context.Context, wf *service.Withdrawals, ledger *service.Ledger, userID, pixKey string) service.Quote {
	t.Helper()
	_, err := ledger.Credit(ctx, userID, decimal.RequireFromString("100.00"), "")
	require.NoError(t, err)
	quote, err := wf.Request(ctx, userID, pixKey)
	require.NoError(t, err)
	require.NoError(t, wf.Approve(ctx, quote.TransactionID, ""))
	return quote
}

func TestProcessor_EmptyQueue(t *testing.T) {
	ctx := context.Background()
	wf, _, _ := setup(t)

	summary, err := NewProcessor(wf, SimulatedPayer{}).ProcessApproved(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
}

func TestProcessor_DrainsQueue(t *testing.T) {
	ctx := context.Background()
	wf, ledger, store := setup(t)

	q1 := approvedWithdrawal(t, ctx, wf, ledger, "u1", "key1@x.com")
	q2 := approvedWithdrawal(t, ctx, wf, ledger, "u2", "key2@x.com")

	payer := &scriptedPayer{}
	summary, err := NewProcessor(wf, payer).ProcessApproved(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, payer.calls, 2)

	for _, txID := range []string{q1.TransactionID, q2.TransactionID} {
		w, err := store.GetWithdrawal(ctx, txID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, w.Status)
	}

	// Net amounts debited, fees retained.
	for _, userID := range []string{"u1", "u2"} {
		balance, err := ledger.GetBalance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "10.00", balance.StringFixed(2))
	}
}

func TestProcessor_FailedPayoutIsIsolated(t *testing.T) {
	ctx := context.Background()
	wf, ledger, store := setup(t)

	bad := approvedWithdrawal(t, ctx, wf, ledger, "u1", "bad@x.com")
	good := approvedWithdrawal(t, ctx, wf, ledger, "u2", "good@x.com")

	payer := &scriptedPayer{failFor: map[string]bool{"bad@x.com": true}}
	summary, err := NewProcessor(wf, payer).ProcessApproved(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{bad.TransactionID}, summary.FailedIDs)

	w, err := store.GetWithdrawal(ctx, bad.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, w.Status)
	assert.Equal(t, "gateway rejected payout", w.FailureReason)

	w, err = store.GetWithdrawal(ctx, good.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, w.Status)

	// The failed user keeps the full balance for a later attempt.
	balance, err := ledger.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "100.00", balance.StringFixed(2))
}

func TestProcessor_SecondRunFindsNothing(t *testing.T) {
	ctx := context.Background()
	wf, ledger, _ := setup(t)

	approvedWithdrawal(t, ctx, wf, ledger, "u1", "key@x.com")

	p := NewProcessor(wf, SimulatedPayer{})
	_, err := p.ProcessApproved(ctx)
	require.NoError(t, err)

	summary, err := p.ProcessApproved(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary, "a drained queue must stay drained")
}
