package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"pixwallet/internal/worker"
)

// SubjectProcessWithdrawals triggers one payout drain. Meant for external
// schedulers (cron, n8n) that publish a message instead of calling HTTP.
const SubjectProcessWithdrawals = "commands.withdrawals.process"

// Handler subscribes to command subjects and delegates to the payout processor.
type Handler struct {
	processor *worker.Processor
	nc        *nats.Conn
	subs      []*nats.Subscription
}

func NewHandler(processor *worker.Processor, nc *nats.Conn) *Handler {
	return &Handler{processor: processor, nc: nc}
}

// Start subscribes to command subjects and blocks until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) error {
	// QueueSubscribe so that with multiple replicas only one drains the queue
	// per command.
	sub, err := h.nc.QueueSubscribe(SubjectProcessWithdrawals, "wallet_workers", func(m *nats.Msg) {
		summary, err := h.processor.ProcessApproved(ctx)
		if err != nil {
			slog.Error("nats: payout drain failed", "error", err)
			return
		}
		if m.Reply != "" {
			data, _ := json.Marshal(summary)
			if err := m.Respond(data); err != nil {
				slog.Error("nats: failed to respond with drain summary", "error", err)
			}
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, sub)

	slog.Info("NATS command handler is running")

	<-ctx.Done()
	slog.Info("NATS command handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}
