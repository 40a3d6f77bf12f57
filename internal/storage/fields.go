package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"pixwallet/internal/model"
)

// Field-map codecs shared by the memory backend. The durable backend reads and
// writes typed columns directly.

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTime(s string) time.Time {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}

func withdrawalToFields(w model.Withdrawal) map[string]string {
	return map[string]string{
		FieldUserID:        w.UserID,
		FieldPixKey:        w.PixKey,
		FieldAmount:        w.Amount.String(),
		FieldFee:           w.Fee.String(),
		FieldNetAmount:     w.NetAmount.String(),
		FieldTimestamp:     formatTime(w.Timestamp),
		FieldStatus:        string(w.Status),
		FieldAdminApproval: string(w.AdminApproval),
		FieldAdminNotes:    w.AdminNotes,
		FieldFailureReason: w.FailureReason,
		FieldProcessedAt:   formatTime(w.ProcessedAt),
	}
}

func withdrawalFromFields(txID string, f map[string]string) model.Withdrawal {
	return model.Withdrawal{
		TransactionID: txID,
		UserID:        f[FieldUserID],
		PixKey:        f[FieldPixKey],
		Amount:        parseDecimal(f[FieldAmount]),
		Fee:           parseDecimal(f[FieldFee]),
		NetAmount:     parseDecimal(f[FieldNetAmount]),
		Timestamp:     parseTime(f[FieldTimestamp]),
		Status:        model.TransactionStatus(f[FieldStatus]),
		AdminApproval: model.ApprovalState(f[FieldAdminApproval]),
		AdminNotes:    f[FieldAdminNotes],
		FailureReason: f[FieldFailureReason],
		ProcessedAt:   parseTime(f[FieldProcessedAt]),
	}
}

func transactionFromFields(txID string, f map[string]string) model.Transaction {
	return model.Transaction{
		ID:          txID,
		UserID:      f[FieldUserID],
		Type:        model.TransactionType(f[FieldType]),
		Amount:      parseDecimal(f[FieldAmount]),
		PaymentID:   f[FieldPaymentID],
		Timestamp:   parseTime(f[FieldTimestamp]),
		Status:      model.TransactionStatus(f[FieldStatus]),
		ProcessedAt: parseTime(f[FieldProcessedAt]),
	}
}
