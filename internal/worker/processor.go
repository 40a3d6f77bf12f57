// Package worker drains the approved-withdrawal queue. The drain only runs
// when triggered from outside (HTTP endpoint or NATS command); there is no
// internal scheduler loop.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"pixwallet/internal/service"
)

// Payer transmits a PIX payout. The real gateway transmission lives outside
// this system; SimulatedPayer stands in for it.
type Payer interface {
	Pay(ctx context.Context, pixKey string, amount decimal.Decimal) error
}

// SimulatedPayer logs the payout and reports success. It exists so the
// workflow can run end-to-end without a gateway integration.
type SimulatedPayer struct{}

func (SimulatedPayer) Pay(ctx context.Context, pixKey string, amount decimal.Decimal) error {
	slog.Info("simulated pix payout", "pix_key", pixKey, "amount", amount.StringFixed(2))
	return nil
}

// Summary reports one drain run.
type Summary struct {
	Total     int      `json:"total"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// Processor attempts payouts for approved withdrawals and finalizes each one.
type Processor struct {
	withdrawals *service.Withdrawals
	payer       Payer
}

func NewProcessor(withdrawals *service.Withdrawals, payer Payer) *Processor {
	return &Processor{withdrawals: withdrawals, payer: payer}
}

// ProcessApproved drains the queue once. Items are processed independently:
// one failing payout never blocks the rest, and a failed item keeps its
// balance untouched for a later request.
func (p *Processor) ProcessApproved(ctx context.Context) (Summary, error) {
	queue, err := p.withdrawals.ListApproved(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load payout queue: %w", err)
	}

	summary := Summary{Total: len(queue)}
	for _, w := range queue {
		payErr := p.payer.Pay(ctx, w.PixKey, w.NetAmount)
		success := payErr == nil
		var reason string
		if payErr != nil {
			reason = payErr.Error()
			slog.Error("payout attempt failed",
				"transaction_id", w.TransactionID,
				"pix_key", w.PixKey,
				"error", payErr,
			)
		}

		if err := p.withdrawals.Finalize(ctx, w.TransactionID, success, reason); err != nil {
			slog.Error("failed to finalize withdrawal",
				"transaction_id", w.TransactionID,
				"error", err,
			)
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, w.TransactionID)
			continue
		}

		if success {
			summary.Processed++
		} else {
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, w.TransactionID)
		}
	}

	slog.Info("payout drain finished",
		"total", summary.Total,
		"processed", summary.Processed,
		"failed", summary.Failed,
	)
	return summary, nil
}
