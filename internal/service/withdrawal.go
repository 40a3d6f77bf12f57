package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pixwallet/internal/model"
	"pixwallet/internal/notify"
	"pixwallet/internal/storage"
)

// FeeRate is the fixed cut retained on every withdrawal.
var FeeRate = decimal.RequireFromString("0.10")

// Withdrawals drives the payout state machine:
// PENDING -> APPROVED (operator) -> COMPLETED | FAILED.
// Terminal states are final; a failed request is never re-queued, the user has
// to request again.
type Withdrawals struct {
	store    storage.Store
	ledger   *Ledger
	notifier notify.Notifier
}

func NewWithdrawals(store storage.Store, ledger *Ledger, notifier notify.Notifier) *Withdrawals {
	return &Withdrawals{store: store, ledger: ledger, notifier: notifier}
}

// Quote is what the requester gets back: the fee cut and the net payout.
type Quote struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	NetAmount     decimal.Decimal `json:"net_amount"`
}

// Request creates a pending withdrawal for the user's entire current balance.
// Partial withdrawals are deliberately not offered.
func (s *Withdrawals) Request(ctx context.Context, userID, pixKey string) (Quote, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return Quote{}, err
	}
	if balance.LessThanOrEqual(decimal.Zero) {
		return Quote{}, ErrNoBalance
	}

	amount := balance.Round(2)
	fee := amount.Mul(FeeRate).Round(2)
	netAmount := amount.Sub(fee)

	txID := uuid.NewString()
	now := time.Now().UTC()

	// Ledger entry first: the withdrawal row references it by shared id.
	// Amount on the ledger entry is the net to be paid, pending until payout.
	err = s.store.SetFields(ctx, storage.KindTransaction, txID, map[string]string{
		storage.FieldUserID:    userID,
		storage.FieldType:      string(model.TypeWithdrawal),
		storage.FieldAmount:    netAmount.StringFixed(2),
		storage.FieldTimestamp: now.Format(storage.TimeLayout),
		storage.FieldStatus:    string(model.StatusPending),
	})
	if err != nil {
		return Quote{}, fmt.Errorf("record withdrawal transaction: %w", err)
	}

	if s.store.Capabilities().Logs {
		if err := s.store.AppendToLog(ctx, storage.UserLogID(userID), txID); err != nil {
			return Quote{}, fmt.Errorf("index withdrawal transaction: %w", err)
		}
	}

	w := model.Withdrawal{
		TransactionID: txID,
		UserID:        userID,
		PixKey:        pixKey,
		Amount:        amount,
		Fee:           fee,
		NetAmount:     netAmount,
		Timestamp:     now,
		Status:        model.StatusPending,
		AdminApproval: model.ApprovalPending,
	}
	if err := s.store.AddWithdrawal(ctx, w); err != nil {
		return Quote{}, fmt.Errorf("add withdrawal request: %w", err)
	}

	slog.Info("withdrawal requested",
		"transaction_id", txID,
		"user_id", userID,
		"amount", amount.StringFixed(2),
		"fee", fee.StringFixed(2),
		"net_amount", netAmount.StringFixed(2),
	)
	s.notifier.Notify(notify.EventWithdrawalRequested, map[string]string{
		"transaction_id": txID,
		"user_id":        userID,
		"net_amount":     netAmount.StringFixed(2),
	})

	return Quote{TransactionID: txID, Amount: amount, Fee: fee, NetAmount: netAmount}, nil
}

// Get returns one withdrawal request by its transaction id.
func (s *Withdrawals) Get(ctx context.Context, txID string) (model.Withdrawal, error) {
	return s.store.GetWithdrawal(ctx, txID)
}

// Approve records the operator decision. Normally this happens out-of-band;
// the endpoint exists as operator tooling.
func (s *Withdrawals) Approve(ctx context.Context, txID, notes string) error {
	if err := s.store.ApproveWithdrawal(ctx, txID, notes); err != nil {
		return fmt.Errorf("approve withdrawal: %w", err)
	}
	slog.Info("withdrawal approved", "transaction_id", txID)
	return nil
}

// ListApproved returns the payout work queue: approved but still pending.
func (s *Withdrawals) ListApproved(ctx context.Context) ([]model.Withdrawal, error) {
	list, err := s.store.ListApprovedWithdrawals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list approved withdrawals: %w", err)
	}
	return list, nil
}

// Finalize moves a withdrawal to its terminal status after a payout attempt.
// On success the linked ledger entry completes and the net amount is debited.
// On failure the balance stays untouched so the user can request again, and
// reason is retained on the record for operator review.
func (s *Withdrawals) Finalize(ctx context.Context, txID string, success bool, reason string) error {
	w, err := s.store.GetWithdrawal(ctx, txID)
	if err != nil {
		return fmt.Errorf("load withdrawal: %w", err)
	}

	if err := s.store.MarkWithdrawalProcessed(ctx, txID, success, reason); err != nil {
		return fmt.Errorf("mark withdrawal processed: %w", err)
	}

	now := time.Now().UTC()
	txStatus := model.StatusFailed
	if success {
		txStatus = model.StatusCompleted
	}
	err = s.store.SetFields(ctx, storage.KindTransaction, txID, map[string]string{
		storage.FieldStatus:      string(txStatus),
		storage.FieldProcessedAt: now.Format(storage.TimeLayout),
	})
	if err != nil {
		return fmt.Errorf("update withdrawal transaction: %w", err)
	}

	if !success {
		slog.Warn("withdrawal failed, balance preserved",
			"transaction_id", txID,
			"user_id", w.UserID,
			"reason", reason,
		)
		s.notifier.Notify(notify.EventWithdrawalFailed, map[string]string{
			"transaction_id": txID,
			"user_id":        w.UserID,
			"pix_key":        w.PixKey,
			"net_amount":     w.NetAmount.StringFixed(2),
			"reason":         reason,
		})
		return nil
	}

	if _, err := s.ledger.DebitForWithdrawal(ctx, w.UserID, w.NetAmount); err != nil {
		return fmt.Errorf("debit withdrawal: %w", err)
	}

	slog.Info("withdrawal completed",
		"transaction_id", txID,
		"user_id", w.UserID,
		"net_amount", w.NetAmount.StringFixed(2),
	)
	s.notifier.Notify(notify.EventWithdrawalCompleted, map[string]string{
		"transaction_id": txID,
		"user_id":        w.UserID,
		"pix_key":        w.PixKey,
		"net_amount":     w.NetAmount.StringFixed(2),
		"fee":            w.Fee.StringFixed(2),
	})
	return nil
}
