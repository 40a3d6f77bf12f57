package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"pixwallet/internal/model"
	"pixwallet/internal/service"
	"pixwallet/internal/storage"
	"pixwallet/internal/worker"
)

type Handler struct {
	ledger      *service.Ledger
	withdrawals *service.Withdrawals
	webhook     *service.WebhookGuard
	processor   *worker.Processor
}

func NewHandler(ledger *service.Ledger, withdrawals *service.Withdrawals, webhook *service.WebhookGuard, processor *worker.Processor) *Handler {
	return &Handler{
		ledger:      ledger,
		withdrawals: withdrawals,
		webhook:     webhook,
		processor:   processor,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /webhook/pix", h.PixWebhook)
	mux.HandleFunc("GET /balance", h.GetBalance)
	mux.HandleFunc("GET /transactions", h.GetTransactions)
	mux.HandleFunc("POST /credit", h.Credit)
	mux.HandleFunc("POST /withdrawals", h.RequestWithdrawal)
	mux.HandleFunc("GET /withdrawals/pending", h.PendingWithdrawals)
	mux.HandleFunc("POST /withdrawals/{id}/approve", h.ApproveWithdrawal)
	mux.HandleFunc("POST /withdrawals/process", h.ProcessWithdrawals)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// PixWebhook consumes the gateway's payment-confirmation notification. The
// response is always 200 for a well-formed body: redelivery is the gateway's
// retry mechanism and per-event failures are isolated in the summary.
func (h *Handler) PixWebhook(w http.ResponseWriter, r *http.Request) {
	var body model.PixWebhook
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(body.Pix) == 0 {
		h.respondJSON(w, http.StatusOK, map[string]string{"message": "no pix entries"})
		return
	}

	summary := h.webhook.ProcessBatch(r.Context(), body.Pix)
	h.respondJSON(w, http.StatusOK, map[string]any{
		"message": "webhook processed",
		"summary": summary,
	})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_user_id")
		return
	}
	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{
		"user_id": userID,
		"balance": balance.StringFixed(2),
	})
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_user_id")
		return
	}
	txs, err := h.ledger.History(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"user_id":      userID,
		"transactions": txs,
	})
}

// Credit is the manual balance top-up used by operators and tests.
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		Amount    string `json:"amount"`
		PaymentID string `json:"payment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.UserID == "" || req.Amount == "" {
		h.respondError(w, http.StatusBadRequest, "user_id and amount are required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}

	newBalance, err := h.ledger.Credit(r.Context(), req.UserID, amount, req.PaymentID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{
		"user_id":     req.UserID,
		"new_balance": newBalance.StringFixed(2),
	})
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		PixKey string `json:"pix_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.UserID == "" || req.PixKey == "" {
		h.respondError(w, http.StatusBadRequest, "user_id and pix_key are required")
		return
	}

	quote, err := h.withdrawals.Request(r.Context(), req.UserID, req.PixKey)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, quote)
}

func (h *Handler) PendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := h.withdrawals.ListApproved(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"pending_approvals": len(list),
		"withdrawals":       list,
	})
}

func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	txID := r.PathValue("id")
	var req struct {
		Notes string `json:"notes"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	if err := h.withdrawals.Approve(r.Context(), txID, req.Notes); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (h *Handler) ProcessWithdrawals(w http.ResponseWriter, r *http.Request) {
	summary, err := h.processor.ProcessApproved(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrNoBalance):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, storage.ErrTerminalState):
		h.respondError(w, http.StatusConflict, "already_finalized")
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
