package billing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/draftbase/credits/pkg/credits"
	"github.com/draftbase/credits/pkg/ledger"
)

type balanceResponse struct {
	UserID                 string  `json:"user_id"`
	Balance                string  `json:"balance"`
	PendingConversionValue *string `json:"pending_conversion_value,omitempty"`
}

type transactionResponse struct {
	ID                 string    `json:"id"`
	Amount             string    `json:"amount"`
	Kind               string    `json:"kind"`
	Description        string    `json:"description"`
	ExternalPaymentRef string    `json:"external_payment_ref,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

type transactionListResponse struct {
	UserID       string                `json:"user_id"`
	Transactions []transactionResponse `json:"transactions"`
	Offset       int                   `json:"offset"`
}

type packageResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Credits    string `json:"credits"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
}

type packageListResponse struct {
	Packages []packageResponse `json:"packages"`
}

type checkoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

type eventResponse struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type eventListResponse struct {
	Events []eventResponse `json:"events"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string         `json:"kind"`
	Code    string         `json:"code"`
	Context map[string]any `json:"context,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto the HTTP taxonomy: validation and
// signature failures are terminal 4xx, missing identity is 401,
// insufficient funds is the distinguishable 402, and everything else is
// a retryable 500. Internal detail stays out of response bodies.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	detail := errorDetail{Kind: string(credits.KindTransient), Code: "internal_error"}
	status := http.StatusInternalServerError

	var domainErr *credits.Error
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
		detail = errorDetail{Kind: string(credits.KindInsufficientFunds), Code: "insufficient_funds"}
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidKind):
		status = http.StatusBadRequest
		detail = errorDetail{Kind: string(credits.KindValidation), Code: "invalid_request"}
	case errors.Is(err, ledger.ErrAccountNotFound):
		status = http.StatusNotFound
		detail = errorDetail{Kind: string(credits.KindNotFound), Code: "account_not_found"}
	case errors.As(err, &domainErr):
		detail = errorDetail{Kind: string(domainErr.Kind), Code: domainErr.Code, Context: domainErr.Context}
		switch domainErr.Kind {
		case credits.KindValidation, credits.KindSignature:
			status = http.StatusBadRequest
		case credits.KindAuth:
			status = http.StatusUnauthorized
		case credits.KindInsufficientFunds:
			status = http.StatusPaymentRequired
		case credits.KindNotFound:
			status = http.StatusNotFound
		default:
			status = http.StatusInternalServerError
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error("request failed", "kind", detail.Kind, "code", detail.Code, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: detail})
}
