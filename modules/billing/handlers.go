package billing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/draftbase/credits/pkg/credits"
)

// maxWebhookBody bounds inbound webhook payloads. Stripe caps event
// payloads well below this.
const maxWebhookBody = 1 << 20

type handlers struct {
	ledger  LedgerService
	credits CreditsService
	log     *slog.Logger
}

// userIDFromRequest resolves the caller identity. Identity management is
// an external collaborator; the gateway in front of this service injects
// the authenticated user id.
func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		raw = r.URL.Query().Get("user_id")
	}
	if raw == "" {
		return uuid.Nil, credits.E(credits.KindAuth, "missing_user", credits.ErrMissingUserID)
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, credits.E(credits.KindAuth, "invalid_user", err)
	}
	return userID, nil
}

func (h *handlers) getBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	// One snapshot serves both fields, so the pending conversion value is
	// never stale relative to the balance it accompanies.
	acc, err := h.ledger.Snapshot(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	resp := balanceResponse{UserID: userID.String(), Balance: acc.Balance.String()}
	if acc.PendingConversionValue != nil {
		v := acc.PendingConversionValue.String()
		resp.PendingConversionValue = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txs, err := h.ledger.Transactions(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	items := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		items = append(items, transactionResponse{
			ID:                 t.ID.String(),
			Amount:             t.Amount.String(),
			Kind:               string(t.Kind),
			Description:        t.Description,
			ExternalPaymentRef: t.ExternalPaymentRef,
			CreatedAt:          t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, transactionListResponse{
		UserID:       userID.String(),
		Transactions: items,
		Offset:       offset,
	})
}

type debitRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (h *handlers) debit(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var req debitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, credits.E(credits.KindValidation, "invalid_body", err))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, h.log, credits.E(credits.KindValidation, "invalid_amount", err))
		return
	}

	balance, err := h.ledger.Debit(r.Context(), userID, amount, req.Description)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{UserID: userID.String(), Balance: balance.String()})
}

func (h *handlers) listPackages(w http.ResponseWriter, r *http.Request) {
	catalog := h.credits.Catalog()
	items := make([]packageResponse, 0, len(catalog))
	for _, p := range catalog {
		items = append(items, packageResponse{
			ID:         p.ID,
			Name:       p.Name,
			Credits:    p.Credits.String(),
			PriceCents: p.PriceCents,
			Currency:   p.Currency,
		})
	}
	writeJSON(w, http.StatusOK, packageListResponse{Packages: items})
}

type checkoutRequest struct {
	PackageID string `json:"package_id"`
	Email     string `json:"email"`
}

func (h *handlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, credits.E(credits.KindValidation, "invalid_body", err))
		return
	}

	checkout, err := h.credits.InitiateCheckout(r.Context(), userID, req.PackageID, req.Email)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{
		SessionID: checkout.SessionID,
		URL:       checkout.URL,
	})
}

// paymentWebhook feeds the raw, unparsed body to signature verification.
// Response codes drive the processor's redelivery: 2xx acknowledges,
// 400 rejects permanently, 500 asks for redelivery later.
func (h *handlers) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, h.log, credits.E(credits.KindValidation, "unreadable_body", err))
		return
	}

	result, err := h.credits.HandleWebhook(r.Context(), payload, r.Header.Get(h.credits.SignatureHeader()))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Outcome: result.Outcome})
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.credits.RecentEvents(r.Context(), limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	items := make([]eventResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, eventResponse{
			EventID:   e.EventID,
			EventType: e.EventType,
			Status:    string(e.Status),
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, eventListResponse{Events: items})
}
