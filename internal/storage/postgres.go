package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"pixwallet/internal/model"
)

// Postgres is the durable backend: one table per record kind in Postgres,
// keyed by primary key, with Redis carrying the scalar/TTL surface (webhook
// dedup markers). Log operations are not implemented here; per-user history
// is served straight from the transactions table.
type Postgres struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

func NewPostgres(pool *pgxpool.Pool, rdb *redis.Client) *Postgres {
	return &Postgres{pool: pool, rdb: rdb}
}

func (p *Postgres) Capabilities() Capabilities {
	return Capabilities{Logs: false, Durable: true}
}

type tableSpec struct {
	idCol string
	cols  map[string]bool
}

var tables = map[RecordKind]tableSpec{
	KindUser: {
		idCol: FieldUserID,
		cols: map[string]bool{
			FieldBalance: true, FieldCreatedAt: true, FieldUpdatedAt: true,
		},
	},
	KindTransaction: {
		idCol: "transaction_id",
		cols: map[string]bool{
			FieldUserID: true, FieldType: true, FieldAmount: true, FieldPaymentID: true,
			FieldTimestamp: true, FieldStatus: true, FieldProcessedAt: true,
		},
	},
	KindWithdrawal: {
		idCol: "transaction_id",
		cols: map[string]bool{
			FieldUserID: true, FieldPixKey: true, FieldAmount: true, FieldFee: true,
			FieldNetAmount: true, FieldTimestamp: true, FieldStatus: true,
			FieldAdminApproval: true, FieldAdminNotes: true, FieldFailureReason: true,
			FieldProcessedAt: true,
		},
	},
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// quoteCol quotes a column name; "timestamp" would otherwise read as the type.
func quoteCol(c string) string { return `"` + c + `"` }

func (p *Postgres) GetField(ctx context.Context, kind RecordKind, id, field string) (string, error) {
	spec, ok := tables[kind]
	if !ok || !spec.cols[field] {
		return "", fmt.Errorf("%w: field %q of %s", ErrUnsupported, field, kind)
	}

	query := fmt.Sprintf(`SELECT %s::text FROM %s WHERE %s = $1`, quoteCol(field), kind, spec.idCol)

	var val *string
	err := p.pool.QueryRow(ctx, query, id).Scan(&val)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", unavailable("get field", err)
	}
	if val == nil {
		return "", ErrNotFound
	}
	return *val, nil
}

func (p *Postgres) SetFields(ctx context.Context, kind RecordKind, id string, fields map[string]string) error {
	spec, ok := tables[kind]
	if !ok {
		return fmt.Errorf("%w: kind %s", ErrUnsupported, kind)
	}

	names := make([]string, 0, len(fields))
	for f := range fields {
		if !spec.cols[f] {
			return fmt.Errorf("%w: field %q of %s", ErrUnsupported, f, kind)
		}
		names = append(names, f)
	}
	sort.Strings(names)

	cols := []string{spec.idCol}
	placeholders := []string{"$1"}
	args := []any{id}
	var updates []string
	for i, f := range names {
		cols = append(cols, quoteCol(f))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		// Empty string means "absent": stored as NULL so typed columns stay clean.
		if v := fields[f]; v == "" {
			args = append(args, nil)
		} else {
			args = append(args, fields[f])
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoteCol(f), quoteCol(f)))
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s`,
		kind, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		spec.idCol, strings.Join(updates, ", "),
	)

	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return unavailable("set fields", err)
	}
	return nil
}

// IncrementField is atomic: the addition happens inside Postgres, so two
// concurrent credits to one user cannot lose an update.
func (p *Postgres) IncrementField(ctx context.Context, kind RecordKind, id, field string, delta decimal.Decimal) (decimal.Decimal, error) {
	if kind != KindUser || field != FieldBalance {
		return decimal.Zero, fmt.Errorf("%w: increment of %s.%s", ErrUnsupported, kind, field)
	}

	query := `
		INSERT INTO users (user_id, balance, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (user_id)
		DO UPDATE SET balance = users.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance
	`

	var newBalance decimal.Decimal
	if err := p.pool.QueryRow(ctx, query, id, delta).Scan(&newBalance); err != nil {
		return decimal.Zero, unavailable("increment field", err)
	}
	return newBalance, nil
}

// AppendToLog is a no-op: this backend keeps no ordered indexes.
func (p *Postgres) AppendToLog(ctx context.Context, logID, value string) error { return nil }

// ReadLog always returns an empty result; see Capabilities.Logs.
func (p *Postgres) ReadLog(ctx context.Context, logID string, start, stop int64) ([]string, error) {
	return nil, nil
}

func (p *Postgres) GetScalar(ctx context.Context, key string) (string, error) {
	val, err := p.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", unavailable("get scalar", err)
	}
	return val, nil
}

func (p *Postgres) SetScalar(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := p.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set scalar", err)
	}
	return nil
}

func (p *Postgres) DeleteScalar(ctx context.Context, key string) error {
	if err := p.rdb.Del(ctx, key).Err(); err != nil {
		return unavailable("delete scalar", err)
	}
	return nil
}

func (p *Postgres) AddWithdrawal(ctx context.Context, w model.Withdrawal) error {
	query := `
		INSERT INTO withdrawals
			(transaction_id, user_id, pix_key, amount, fee, net_amount, "timestamp", status, admin_approval, admin_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := p.pool.Exec(ctx, query,
		w.TransactionID, w.UserID, w.PixKey, w.Amount, w.Fee, w.NetAmount,
		w.Timestamp, string(w.Status), string(w.AdminApproval), w.AdminNotes,
	)
	if err != nil {
		return unavailable("add withdrawal", err)
	}
	return nil
}

const withdrawalColumns = `transaction_id, user_id, pix_key, amount, fee, net_amount, "timestamp", status, admin_approval, admin_notes, failure_reason, processed_at`

func scanWithdrawal(row pgx.Row) (model.Withdrawal, error) {
	var w model.Withdrawal
	var status, approval string
	var notes, reason *string
	var processedAt *time.Time
	err := row.Scan(
		&w.TransactionID, &w.UserID, &w.PixKey, &w.Amount, &w.Fee, &w.NetAmount,
		&w.Timestamp, &status, &approval, &notes, &reason, &processedAt,
	)
	if err != nil {
		return model.Withdrawal{}, err
	}
	w.Status = model.TransactionStatus(status)
	w.AdminApproval = model.ApprovalState(approval)
	if notes != nil {
		w.AdminNotes = *notes
	}
	if reason != nil {
		w.FailureReason = *reason
	}
	if processedAt != nil {
		w.ProcessedAt = *processedAt
	}
	return w, nil
}

func (p *Postgres) GetWithdrawal(ctx context.Context, txID string) (model.Withdrawal, error) {
	query := fmt.Sprintf(`SELECT %s FROM withdrawals WHERE transaction_id = $1`, withdrawalColumns)

	w, err := scanWithdrawal(p.pool.QueryRow(ctx, query, txID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Withdrawal{}, ErrNotFound
		}
		return model.Withdrawal{}, unavailable("get withdrawal", err)
	}
	return w, nil
}

func (p *Postgres) ApproveWithdrawal(ctx context.Context, txID, notes string) error {
	query := `
		UPDATE withdrawals
		SET admin_approval = $2, admin_notes = $3
		WHERE transaction_id = $1 AND status = $4
	`
	tag, err := p.pool.Exec(ctx, query, txID, string(model.ApprovalApproved), notes, string(model.StatusPending))
	if err != nil {
		return unavailable("approve withdrawal", err)
	}
	if tag.RowsAffected() == 0 {
		w, getErr := p.GetWithdrawal(ctx, txID)
		if getErr != nil {
			return getErr
		}
		if w.Terminal() {
			return ErrTerminalState
		}
	}
	return nil
}

func (p *Postgres) ListApprovedWithdrawals(ctx context.Context) ([]model.Withdrawal, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM withdrawals
		WHERE admin_approval = $1 AND status = $2
		ORDER BY "timestamp"
	`, withdrawalColumns)

	rows, err := p.pool.Query(ctx, query, string(model.ApprovalApproved), string(model.StatusPending))
	if err != nil {
		return nil, unavailable("list approved withdrawals", err)
	}
	defer rows.Close()

	var out []model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, unavailable("scan withdrawal", err)
		}
		out = append(out, w)
	}
	if rows.Err() != nil {
		return nil, unavailable("list approved withdrawals", rows.Err())
	}
	return out, nil
}

// MarkWithdrawalProcessed relies on the status guard in the WHERE clause to
// keep terminal records immutable even under concurrent drains.
func (p *Postgres) MarkWithdrawalProcessed(ctx context.Context, txID string, success bool, reason string) error {
	status := model.StatusFailed
	var failureReason *string
	if success {
		status = model.StatusCompleted
	} else if reason != "" {
		failureReason = &reason
	}

	query := `
		UPDATE withdrawals
		SET status = $2, failure_reason = $3, processed_at = now()
		WHERE transaction_id = $1 AND status NOT IN ($4, $5)
	`
	tag, err := p.pool.Exec(ctx, query, txID, string(status), failureReason,
		string(model.StatusCompleted), string(model.StatusFailed))
	if err != nil {
		return unavailable("mark withdrawal processed", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := p.GetWithdrawal(ctx, txID); getErr != nil {
			return getErr
		}
		return ErrTerminalState
	}
	return nil
}

const transactionColumns = `transaction_id, user_id, type, amount, payment_id, "timestamp", status, processed_at`

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var tx model.Transaction
	var txType, status string
	var paymentID *string
	var processedAt *time.Time
	err := row.Scan(&tx.ID, &tx.UserID, &txType, &tx.Amount, &paymentID, &tx.Timestamp, &status, &processedAt)
	if err != nil {
		return model.Transaction{}, err
	}
	tx.Type = model.TransactionType(txType)
	tx.Status = model.TransactionStatus(status)
	if paymentID != nil {
		tx.PaymentID = *paymentID
	}
	if processedAt != nil {
		tx.ProcessedAt = *processedAt
	}
	return tx, nil
}

func (p *Postgres) FindPendingDeposit(ctx context.Context, paymentID string) (model.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE payment_id = $1 AND status = $2
		LIMIT 1
	`, transactionColumns)

	tx, err := scanTransaction(p.pool.QueryRow(ctx, query, paymentID, string(model.StatusPending)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Transaction{}, ErrNotFound
		}
		return model.Transaction{}, unavailable("find pending deposit", err)
	}
	return tx, nil
}

func (p *Postgres) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE user_id = $1
		ORDER BY "timestamp" DESC
	`, transactionColumns)

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, unavailable("list transactions", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, unavailable("scan transaction", err)
		}
		out = append(out, tx)
	}
	if rows.Err() != nil {
		return nil, unavailable("list transactions", rows.Err())
	}
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return unavailable("ping postgres", err)
	}
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping redis", err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
	_ = p.rdb.Close()
}
