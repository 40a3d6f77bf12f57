package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes credits from payouts in the ledger.
type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
)

// TransactionStatus is the lifecycle state of a ledger entry.
// Completed and Failed are terminal.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// ApprovalState is the out-of-band operator decision on a withdrawal.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "PENDING"
	ApprovalApproved ApprovalState = "APPROVED"
)

// User is a balance record keyed by an opaque, client-generated identifier.
// The identifier doubles as the capability token: whoever holds it owns the funds.
type User struct {
	ID        string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is one immutable ledger entry. Amount is gross for deposits and
// net-paid for withdrawals. PaymentID carries the gateway-side correlation id.
type Transaction struct {
	ID          string            `json:"transaction_id"`
	UserID      string            `json:"user_id"`
	Type        TransactionType   `json:"type"`
	Amount      decimal.Decimal   `json:"amount"`
	PaymentID   string            `json:"payment_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Status      TransactionStatus `json:"status"`
	ProcessedAt time.Time         `json:"processed_at,omitempty"`
}

// Withdrawal is a payout request. It shares its id with the ledger entry
// created alongside it and never regresses out of a terminal status.
type Withdrawal struct {
	TransactionID string            `json:"transaction_id"`
	UserID        string            `json:"user_id"`
	PixKey        string            `json:"pix_key"`
	Amount        decimal.Decimal   `json:"amount"`
	Fee           decimal.Decimal   `json:"fee"`
	NetAmount     decimal.Decimal   `json:"net_amount"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        TransactionStatus `json:"status"`
	AdminApproval ApprovalState     `json:"admin_approval"`
	AdminNotes    string            `json:"admin_notes,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	ProcessedAt   time.Time         `json:"processed_at,omitempty"`
}

// Terminal reports whether the withdrawal reached a final state.
func (w Withdrawal) Terminal() bool {
	return w.Status == StatusCompleted || w.Status == StatusFailed
}

// PixEvent is one entry of the gateway's payment-confirmation webhook.
// Valor arrives as a decimal string, exactly as the gateway sends it.
type PixEvent struct {
	Txid    string `json:"txid"`
	Valor   string `json:"valor"`
	Horario string `json:"horario"`
}

// PixWebhook is the inbound notification body.
type PixWebhook struct {
	Pix []PixEvent `json:"pix"`
}
