package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pixwallet/internal/model"
)

type scalarEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Memory is the in-process fallback backend. Everything lives in maps behind
// one mutex, so single-process operations are linearizable, but all data is
// lost on restart. Development and degraded mode only.
type Memory struct {
	mu      sync.RWMutex
	records map[RecordKind]map[string]map[string]string
	logs    map[string][]string
	scalars map[string]scalarEntry
}

func NewMemory() *Memory {
	return &Memory{
		records: map[RecordKind]map[string]map[string]string{
			KindUser:        {},
			KindTransaction: {},
			KindWithdrawal:  {},
		},
		logs:    map[string][]string{},
		scalars: map[string]scalarEntry{},
	}
}

func (m *Memory) Capabilities() Capabilities {
	return Capabilities{Logs: true, Durable: false}
}

func (m *Memory) GetField(ctx context.Context, kind RecordKind, id, field string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[kind][id]
	if !ok {
		return "", ErrNotFound
	}
	val, ok := rec[field]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (m *Memory) SetFields(ctx context.Context, kind RecordKind, id string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setFieldsLocked(kind, id, fields)
	return nil
}

func (m *Memory) setFieldsLocked(kind RecordKind, id string, fields map[string]string) {
	rec, ok := m.records[kind][id]
	if !ok {
		rec = map[string]string{}
		m.records[kind][id] = rec
	}
	for k, v := range fields {
		rec[k] = v
	}
}

func (m *Memory) IncrementField(ctx context.Context, kind RecordKind, id, field string, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[kind][id]
	if !ok {
		rec = map[string]string{}
		m.records[kind][id] = rec
	}
	next := parseDecimal(rec[field]).Add(delta)
	rec[field] = next.String()
	// Mirror the durable backend's upsert, which stamps user timestamps.
	if kind == KindUser && field == FieldBalance {
		now := formatTime(time.Now().UTC())
		if rec[FieldCreatedAt] == "" {
			rec[FieldCreatedAt] = now
		}
		rec[FieldUpdatedAt] = now
	}
	return next, nil
}

func (m *Memory) AppendToLog(ctx context.Context, logID, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logs[logID] = append([]string{value}, m.logs[logID]...)
	return nil
}

func (m *Memory) ReadLog(ctx context.Context, logID string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.logs[logID]
	n := int64(len(list))
	if start < 0 {
		start = 0
	}
	if stop == -1 || stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (m *Memory) GetScalar(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.scalars[key]
	if !ok {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(m.scalars, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *Memory) SetScalar(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := scalarEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.scalars[key] = entry
	return nil
}

func (m *Memory) DeleteScalar(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.scalars, key)
	return nil
}

func (m *Memory) AddWithdrawal(ctx context.Context, w model.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setFieldsLocked(KindWithdrawal, w.TransactionID, withdrawalToFields(w))
	return nil
}

func (m *Memory) GetWithdrawal(ctx context.Context, txID string) (model.Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[KindWithdrawal][txID]
	if !ok {
		return model.Withdrawal{}, ErrNotFound
	}
	return withdrawalFromFields(txID, rec), nil
}

func (m *Memory) ApproveWithdrawal(ctx context.Context, txID, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[KindWithdrawal][txID]
	if !ok {
		return ErrNotFound
	}
	if w := withdrawalFromFields(txID, rec); w.Terminal() {
		return ErrTerminalState
	}
	rec[FieldAdminApproval] = string(model.ApprovalApproved)
	rec[FieldAdminNotes] = notes
	return nil
}

func (m *Memory) ListApprovedWithdrawals(ctx context.Context) ([]model.Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Withdrawal
	for id, rec := range m.records[KindWithdrawal] {
		w := withdrawalFromFields(id, rec)
		if w.AdminApproval == model.ApprovalApproved && w.Status == model.StatusPending {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) MarkWithdrawalProcessed(ctx context.Context, txID string, success bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[KindWithdrawal][txID]
	if !ok {
		return ErrNotFound
	}
	if w := withdrawalFromFields(txID, rec); w.Terminal() {
		return ErrTerminalState
	}
	status := model.StatusFailed
	if success {
		status = model.StatusCompleted
	} else {
		rec[FieldFailureReason] = reason
	}
	rec[FieldStatus] = string(status)
	rec[FieldProcessedAt] = formatTime(time.Now().UTC())
	return nil
}

func (m *Memory) FindPendingDeposit(ctx context.Context, paymentID string) (model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, rec := range m.records[KindTransaction] {
		tx := transactionFromFields(id, rec)
		if tx.PaymentID == paymentID && tx.Status == model.StatusPending {
			return tx, nil
		}
	}
	return model.Transaction{}, ErrNotFound
}

func (m *Memory) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// The per-user log already holds transaction ids newest first.
	var out []model.Transaction
	for _, id := range m.logs[UserLogID(userID)] {
		rec, ok := m.records[KindTransaction][id]
		if !ok {
			continue
		}
		out = append(out, transactionFromFields(id, rec))
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() {}
