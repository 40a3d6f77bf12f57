package service

import (
	"context"
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

var (
	// ErrInvalidAmount rejects non-positive monetary input before any write.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrNoBalance rejects a withdrawal request against a zero balance.
	ErrNoBalance = errors.New("no balance available for withdrawal")
)

// Ledger owns every balance mutation. The balance field is never written by
// anything else, so its value is always the sum of completed deposits minus
// the net amounts of completed withdrawals.
type Ledger struct {
	store    storage.Store
	notifier notify.Notifier
}

func NewLedger(store storage.Store, notifier notify.Notifier) *Ledger {
	return &Ledger{store: store, notifier: notifier}
}

// Credit adds amount to the user's balance and appends a completed deposit to
// the ledger. correlationID carries the gateway-side payment id, if any.
// The user record is created on first credit.
func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal, correlationID string) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}
	amount = amount.Round(2)

	newBalance, err := l.store.IncrementField(ctx, storage.KindUser, userID, storage.FieldBalance, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("credit balance: %w", err)
	}

	txID := uuid.NewString()
	now := time.Now().UTC()
	err = l.store.SetFields(ctx, storage.KindTransaction, txID, map[string]string{
		storage.FieldUserID:    userID,
		storage.FieldType:      string(model.TypeDeposit),
		storage.FieldAmount:    amount.StringFixed(2),
		storage.FieldPaymentID: correlationID,
		storage.FieldTimestamp: now.Format(storage.TimeLayout),
		storage.FieldStatus:    string(model.StatusCompleted),
	})
	if err != nil {
		// The balance increment already landed; surface the partial write
		// instead of hiding it.
		return newBalance, fmt.Errorf("record deposit transaction: %w", err)
	}

	if l.store.Capabilities().Logs {
		if err := l.store.AppendToLog(ctx, storage.UserLogID(userID), txID); err != nil {
			return newBalance, fmt.Errorf("index deposit transaction: %w", err)
		}
	}

	slog.Info("balance credited",
		"user_id", userID,
		"amount", amount.StringFixed(2),
		"new_balance", newBalance.StringFixed(2),
		"payment_id", correlationID,
	)
	l.notifier.Notify(notify.EventDepositCredited, map[string]string{
		"user_id":        userID,
		"transaction_id": txID,
		"amount":         amount.StringFixed(2),
		"payment_id":     correlationID,
	})

	return newBalance, nil
}

// GetBalance returns the current balance; an unknown user reads as zero.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	val, err := l.store.GetField(ctx, storage.KindUser, userID, storage.FieldBalance)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	balance, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", val, err)
	}
	return balance, nil
}

// DebitForWithdrawal subtracts the net paid-out amount after a successful
// payout. The fee is simply retained, never paid out, so it is not debited.
// Invoked only by the withdrawal workflow.
func (l *Ledger) DebitForWithdrawal(ctx context.Context, userID string, netAmount decimal.Decimal) (decimal.Decimal, error) {
	if netAmount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	newBalance, err := l.store.IncrementField(ctx, storage.KindUser, userID, storage.FieldBalance, netAmount.Neg())
	if err != nil {
		return decimal.Zero, fmt.Errorf("debit balance: %w", err)
	}

	slog.Info("balance debited",
		"user_id", userID,
		"net_amount", netAmount.StringFixed(2),
		"new_balance", newBalance.StringFixed(2),
	)
	return newBalance, nil
}

// History returns the user's ledger entries, newest first.
func (l *Ledger) History(ctx context.Context, userID string) ([]model.Transaction, error) {
	txs, err := l.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}
