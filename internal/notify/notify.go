// Package notify carries fire-and-forget event notifications out of the
// wallet core. Delivery failures are logged and swallowed: a notification must
// never block or fail a ledger operation.
package notify

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Topics published by the wallet core.
const (
	EventDepositCredited     = "wallet.deposit.credited"
	EventOrphanedPayment     = "wallet.deposit.orphaned"
	EventWithdrawalRequested = "wallet.withdrawal.requested"
	EventWithdrawalCompleted = "wallet.withdrawal.completed"
	EventWithdrawalFailed    = "wallet.withdrawal.failed"
)

type Notifier interface {
	Notify(event string, payload any)
}

// NatsNotifier publishes events as JSON onto NATS topics.
type NatsNotifier struct {
	nc *nats.Conn
}

func NewNats(nc *nats.Conn) *NatsNotifier {
	return &NatsNotifier{nc: nc}
}

func (n *NatsNotifier) Notify(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("notify: failed to marshal payload", "event", event, "error", err)
		return
	}
	if err := n.nc.Publish(event, data); err != nil {
		slog.Error("notify: failed to publish", "event", event, "error", err)
	}
}

// Noop drops every notification. Used when no NATS server is configured.
type Noop struct{}

func (Noop) Notify(event string, payload any) {}
