package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"pixwallet/internal/model"
)

// RecordKind names one of the fixed record families a backend persists.
// The durable backend maps each kind to its own table.
type RecordKind string

const (
	KindUser        RecordKind = "users"
	KindTransaction RecordKind = "transactions"
	KindWithdrawal  RecordKind = "withdrawals"
)

var (
	// ErrNotFound is returned when a record, field or scalar is absent.
	ErrNotFound = errors.New("storage: not found")
	// ErrUnavailable wraps any failure to reach the backend.
	ErrUnavailable = errors.New("storage: backend unavailable")
	// ErrTerminalState is returned on attempts to move a withdrawal out of
	// a completed/failed status.
	ErrTerminalState = errors.New("storage: withdrawal already in terminal state")
	// ErrUnsupported is returned for operations a backend cannot express,
	// such as incrementing a non-numeric field.
	ErrUnsupported = errors.New("storage: operation not supported")
)

// Capabilities describes what a concrete backend can do. Callers branch on
// these flags instead of probing for methods.
type Capabilities struct {
	// Logs reports whether AppendToLog/ReadLog are real operations.
	// When false, per-user history is served from the transactions table.
	Logs bool
	// Durable reports whether data survives a process restart.
	Durable bool
}

// Store is the single contract every backend implements in full. No operation
// spanning multiple records is transactional; callers must not assume so.
type Store interface {
	// GetField returns one field of a record, or ErrNotFound.
	GetField(ctx context.Context, kind RecordKind, id, field string) (string, error)
	// SetFields merges the given fields into a record, creating it if absent.
	// Unspecified fields are left untouched.
	SetFields(ctx context.Context, kind RecordKind, id string, fields map[string]string) error
	// IncrementField atomically adds delta to a numeric field and returns the
	// new value. A missing record or field counts as zero.
	IncrementField(ctx context.Context, kind RecordKind, id, field string, delta decimal.Decimal) (decimal.Decimal, error)

	// AppendToLog prepends a value to an ordered per-key list.
	AppendToLog(ctx context.Context, logID, value string) error
	// ReadLog returns log entries in [start, stop]; stop == -1 means the tail.
	ReadLog(ctx context.Context, logID string, start, stop int64) ([]string, error)

	// GetScalar / SetScalar / DeleteScalar handle ad-hoc keys such as webhook
	// dedup markers. A zero ttl means no expiry.
	GetScalar(ctx context.Context, key string) (string, error)
	SetScalar(ctx context.Context, key, value string, ttl time.Duration) error
	DeleteScalar(ctx context.Context, key string) error

	// AddWithdrawal records a new payout request.
	AddWithdrawal(ctx context.Context, w model.Withdrawal) error
	// GetWithdrawal returns a payout request by its transaction id.
	GetWithdrawal(ctx context.Context, txID string) (model.Withdrawal, error)
	// ApproveWithdrawal flips the operator decision to APPROVED.
	ApproveWithdrawal(ctx context.Context, txID, notes string) error
	// ListApprovedWithdrawals returns the payout work queue: records that are
	// operator-approved but still pending.
	ListApprovedWithdrawals(ctx context.Context) ([]model.Withdrawal, error)
	// MarkWithdrawalProcessed moves an approved request to its terminal status
	// and stamps processed_at; on failure it retains reason for operator
	// review. Terminal records are never modified again.
	MarkWithdrawalProcessed(ctx context.Context, txID string, success bool, reason string) error

	// FindPendingDeposit resolves the depositor of a gateway payment id via a
	// pending deposit transaction, or ErrNotFound.
	FindPendingDeposit(ctx context.Context, paymentID string) (model.Transaction, error)
	// ListTransactions returns a user's ledger entries, newest first.
	ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error)

	Capabilities() Capabilities
	Ping(ctx context.Context) error
	Close()
}

// Field names shared by both backends. The durable backend uses them verbatim
// as column names, so they are part of the persisted layout contract.
const (
	FieldBalance       = "balance"
	FieldCreatedAt     = "created_at"
	FieldUpdatedAt     = "updated_at"
	FieldUserID        = "user_id"
	FieldType          = "type"
	FieldAmount        = "amount"
	FieldFee           = "fee"
	FieldNetAmount     = "net_amount"
	FieldPaymentID     = "payment_id"
	FieldTimestamp     = "timestamp"
	FieldStatus        = "status"
	FieldPixKey        = "pix_key"
	FieldAdminApproval = "admin_approval"
	FieldAdminNotes    = "admin_notes"
	FieldFailureReason = "failure_reason"
	FieldProcessedAt   = "processed_at"
)

// TimeLayout is the wire format for timestamps passed through field maps.
const TimeLayout = time.RFC3339Nano

// UserLogID is the log key holding a user's transaction ids, newest first.
func UserLogID(userID string) string {
	return "user:" + userID + ":transactions"
}
