package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixwallet/internal/model"
)

func TestMemory_SetFieldsMergesWithoutClearing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SetFields(ctx, KindTransaction, "tx1", map[string]string{
		FieldUserID: "u1",
		FieldStatus: "pending",
	}))
	require.NoError(t, m.SetFields(ctx, KindTransaction, "tx1", map[string]string{
		FieldStatus: "completed",
	}))

	user, err := m.GetField(ctx, KindTransaction, "tx1", FieldUserID)
	require.NoError(t, err)
	assert.Equal(t, "u1", user)

	status, err := m.GetField(ctx, KindTransaction, "tx1", FieldStatus)
	require.NoError(t, err)
	assert.Equal(t, "completed", status)
}

func TestMemory_GetFieldAbsent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.GetField(ctx, KindUser, "nobody", FieldBalance)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SetFields(ctx, KindUser, "u1", map[string]string{FieldBalance: "1"}))
	_, err = m.GetField(ctx, KindUser, "u1", FieldUpdatedAt)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_IncrementField(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	got, err := m.IncrementField(ctx, KindUser, "u1", FieldBalance, decimal.RequireFromString("10.50"))
	require.NoError(t, err)
	assert.Equal(t, "10.5", got.String())

	got, err = m.IncrementField(ctx, KindUser, "u1", FieldBalance, decimal.RequireFromString("-0.50"))
	require.NoError(t, err)
	assert.Equal(t, "10", got.String())

	// First increment creates the user record with timestamps.
	created, err := m.GetField(ctx, KindUser, "u1", FieldCreatedAt)
	require.NoError(t, err)
	assert.NotEmpty(t, created)
}

func TestMemory_LogOrderNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, m.AppendToLog(ctx, "log1", v))
	}

	all, err := m.ReadLog(ctx, "log1", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, all)

	slice, err := m.ReadLog(ctx, "log1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, slice)

	empty, err := m.ReadLog(ctx, "missing", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemory_ScalarTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SetScalar(ctx, "k1", "v1", 0))
	val, err := m.GetScalar(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)

	require.NoError(t, m.SetScalar(ctx, "k2", "v2", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, err = m.GetScalar(ctx, "k2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.DeleteScalar(ctx, "k1"))
	_, err = m.GetScalar(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func newWithdrawal(txID, userID string) model.Withdrawal {
	return model.Withdrawal{
		TransactionID: txID,
		UserID:        userID,
		PixKey:        "key@example.com",
		Amount:        decimal.RequireFromString("100.00"),
		Fee:           decimal.RequireFromString("10.00"),
		NetAmount:     decimal.RequireFromString("90.00"),
		Timestamp:     time.Now().UTC(),
		Status:        model.StatusPending,
		AdminApproval: model.ApprovalPending,
	}
}

func TestMemory_WithdrawalQueue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.AddWithdrawal(ctx, newWithdrawal("tx1", "u1")))
	require.NoError(t, m.AddWithdrawal(ctx, newWithdrawal("tx2", "u2")))

	// Nothing approved yet.
	queue, err := m.ListApprovedWithdrawals(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)

	require.NoError(t, m.ApproveWithdrawal(ctx, "tx1", "ok"))

	queue, err = m.ListApprovedWithdrawals(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "tx1", queue[0].TransactionID)
	assert.Equal(t, model.ApprovalApproved, queue[0].AdminApproval)
	assert.Equal(t, "ok", queue[0].AdminNotes)

	require.NoError(t, m.MarkWithdrawalProcessed(ctx, "tx1", true, ""))

	w, err := m.GetWithdrawal(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, w.Status)
	assert.False(t, w.ProcessedAt.IsZero())

	// Completed records leave the queue.
	queue, err = m.ListApprovedWithdrawals(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestMemory_TerminalWithdrawalIsImmutable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.AddWithdrawal(ctx, newWithdrawal("tx1", "u1")))
	require.NoError(t, m.ApproveWithdrawal(ctx, "tx1", ""))
	require.NoError(t, m.MarkWithdrawalProcessed(ctx, "tx1", false, "gateway timeout"))

	err := m.MarkWithdrawalProcessed(ctx, "tx1", true, "")
	assert.ErrorIs(t, err, ErrTerminalState)

	err = m.ApproveWithdrawal(ctx, "tx1", "again")
	assert.ErrorIs(t, err, ErrTerminalState)

	w, err := m.GetWithdrawal(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, w.Status)
	assert.Equal(t, "gateway timeout", w.FailureReason)
}

func TestMemory_WithdrawalNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.GetWithdrawal(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.ApproveWithdrawal(ctx, "missing", ""), ErrNotFound)
	assert.ErrorIs(t, m.MarkWithdrawalProcessed(ctx, "missing", true, ""), ErrNotFound)
}

func TestMemory_FindPendingDeposit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SetFields(ctx, KindTransaction, "tx1", map[string]string{
		FieldUserID:    "u1",
		FieldType:      string(model.TypeDeposit),
		FieldPaymentID: "pix-abc",
		FieldStatus:    string(model.StatusPending),
	}))
	require.NoError(t, m.SetFields(ctx, KindTransaction, "tx2", map[string]string{
		FieldUserID:    "u2",
		FieldType:      string(model.TypeDeposit),
		FieldPaymentID: "pix-done",
		FieldStatus:    string(model.StatusCompleted),
	}))

	tx, err := m.FindPendingDeposit(ctx, "pix-abc")
	require.NoError(t, err)
	assert.Equal(t, "u1", tx.UserID)

	// Completed charges do not resolve.
	_, err = m.FindPendingDeposit(ctx, "pix-done")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListTransactionsFollowsLog(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i, id := range []string{"tx1", "tx2"} {
		require.NoError(t, m.SetFields(ctx, KindTransaction, id, map[string]string{
			FieldUserID: "u1",
			FieldType:   string(model.TypeDeposit),
			FieldAmount: decimal.NewFromInt(int64(i + 1)).StringFixed(2),
			FieldStatus: string(model.StatusCompleted),
		}))
		require.NoError(t, m.AppendToLog(ctx, UserLogID("u1"), id))
	}

	txs, err := m.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "tx2", txs[0].ID)
	assert.Equal(t, "tx1", txs[1].ID)
}

func TestMemory_Capabilities(t *testing.T) {
	m := NewMemory()
	caps := m.Capabilities()
	assert.True(t, caps.Logs)
	assert.False(t, caps.Durable)
	require.NoError(t, m.Ping(context.Background()))
}
