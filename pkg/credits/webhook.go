package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/draftbase/credits/pkg/eventlog"
	"github.com/draftbase/credits/pkg/ledger"
	"github.com/draftbase/credits/pkg/notification"
	"github.com/draftbase/credits/pkg/payments"
)

// Webhook outcomes recorded in the processing log and returned to the
// transport layer. Every outcome except a transient failure is
// acknowledged with 2xx so the processor stops redelivering.
const (
	OutcomeProcessed           = "processed"
	OutcomeDuplicate           = "duplicate"
	OutcomeDuplicatePaymentRef = "duplicate_payment_ref"
	OutcomeMissingMetadata     = "missing_metadata"
	OutcomeMalformedMetadata   = "malformed_metadata"
	OutcomePaymentNotCompleted = "payment_not_completed"
	OutcomePaymentFailed       = "async_payment_failed"
	OutcomeUnhandled           = "unhandled_event_type"
)

// WebhookResult summarizes one processed delivery.
type WebhookResult struct {
	EventID   string
	EventType string
	Outcome   string
	UserID    uuid.UUID
	Credited  decimal.Decimal
}

// HandleWebhook drives one inbound delivery through the processing state
// machine: verify signature, suppress duplicates, record a processing
// entry, dispatch by event type, and upsert the terminal status.
//
// Error contract for the transport layer: a KindSignature or
// KindValidation error is terminal (respond 400, redelivery cannot
// help); any other error is transient (respond 500, the processor will
// redeliver and the handler is safe to re-run). A nil error means the
// delivery is acknowledged, including intentionally ignored events.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (result *WebhookResult, err error) {
	event, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		// Terminal rejection. Log minimally: no secret, no payload body.
		if errors.Is(err, payments.ErrSignatureVerificationFailed) {
			s.log.WarnContext(ctx, "webhook signature verification failed",
				"provider", s.provider.Name(), "payload_bytes", len(payload))
			return nil, E(KindSignature, "invalid_signature", err)
		}
		// Some providers resolve extra context over their API while
		// parsing; an outage there is retryable, not a bad payload.
		if errors.Is(err, payments.ErrProviderUnavailable) {
			s.log.WarnContext(ctx, "webhook context lookup failed",
				"provider", s.provider.Name(), "error", err)
			return nil, E(KindTransient, "provider_unavailable", errors.Join(ErrWebhookTransient, err))
		}
		s.log.WarnContext(ctx, "webhook payload rejected",
			"provider", s.provider.Name(), "error", err)
		return nil, E(KindValidation, "malformed_payload", err)
	}
	if event.ID == "" {
		return nil, E(KindValidation, "missing_event_id", payments.ErrMalformedPayload)
	}

	// Redeliveries are expected; the handler must stay safe if it dies
	// mid-flight and the processor replays the event.
	defer func() {
		if r := recover(); r != nil {
			s.recordEntry(ctx, eventlog.Entry{
				EventID:   event.ID,
				EventType: event.ProviderType,
				Status:    eventlog.StatusError,
				Message:   fmt.Sprintf("panic during processing: %v", r),
			})
			result = nil
			err = E(KindTransient, "processing_panic", fmt.Errorf("%w: panic: %v", ErrWebhookTransient, r))
		}
	}()

	// Advisory duplicate suppression: short-circuit deliveries that
	// already reached a completed state. The hard guarantee lives in the
	// ledger's unique external-ref constraint, not here.
	if prior, getErr := s.events.Get(ctx, event.ID, event.ProviderType); getErr == nil {
		if prior.Status == eventlog.StatusSuccess && strings.HasPrefix(prior.Message, OutcomeProcessed) {
			s.log.InfoContext(ctx, "duplicate webhook delivery suppressed",
				"event_id", event.ID, "event_type", event.ProviderType)
			return &WebhookResult{EventID: event.ID, EventType: event.ProviderType, Outcome: OutcomeDuplicate}, nil
		}
	} else if !errors.Is(getErr, eventlog.ErrEntryNotFound) {
		s.log.WarnContext(ctx, "duplicate pre-check unavailable, continuing",
			"event_id", event.ID, "error", getErr)
	}

	s.recordEntry(ctx, eventlog.Entry{
		EventID:   event.ID,
		EventType: event.ProviderType,
		Status:    eventlog.StatusProcessing,
		Message:   "received",
		Metadata:  event.Metadata,
	})

	result, err = s.dispatch(ctx, event)
	if err != nil {
		s.recordEntry(ctx, eventlog.Entry{
			EventID:   event.ID,
			EventType: event.ProviderType,
			Status:    eventlog.StatusError,
			Message:   "processing failed: " + err.Error(),
			Metadata:  event.Metadata,
		})
		return nil, E(KindTransient, "webhook_processing_failed", errors.Join(ErrWebhookTransient, err),
			"event_id", event.ID, "event_type", event.ProviderType)
	}

	s.recordEntry(ctx, eventlog.Entry{
		EventID:   event.ID,
		EventType: event.ProviderType,
		Status:    eventlog.StatusSuccess,
		Message:   terminalMessage(result),
		Metadata:  event.Metadata,
	})

	s.log.InfoContext(ctx, "webhook processed",
		"event_id", event.ID, "event_type", event.ProviderType, "outcome", result.Outcome)
	return result, nil
}

// dispatch applies the event's effect. Only paid purchase events mutate
// the ledger; everything else is an acknowledged no-op so the processor
// does not retry-storm events this service intentionally ignores.
func (s *Service) dispatch(ctx context.Context, event *payments.Event) (*WebhookResult, error) {
	result := &WebhookResult{EventID: event.ID, EventType: event.ProviderType}

	switch event.Type {
	case payments.EventPaymentCompleted, payments.EventAsyncPaymentSucceeded:
		return s.applyPayment(ctx, event, result)

	case payments.EventRefund:
		return s.applyRefund(ctx, event, result)

	case payments.EventAsyncPaymentFailed:
		result.Outcome = OutcomePaymentFailed
		s.log.InfoContext(ctx, "async payment failed, no ledger mutation",
			"event_id", event.ID, "payment_ref", event.PaymentRef)
		return result, nil

	case payments.EventUnhandled:
		result.Outcome = OutcomeUnhandled
		return result, nil

	default:
		result.Outcome = OutcomeUnhandled
		return result, nil
	}
}

func (s *Service) applyPayment(ctx context.Context, event *payments.Event, result *WebhookResult) (*WebhookResult, error) {
	userID, amount, outcome := reconciliationTarget(event)
	if outcome != "" {
		result.Outcome = outcome
		return result, nil
	}
	if !event.Paid {
		result.Outcome = OutcomePaymentNotCompleted
		return result, nil
	}

	packageID := event.Metadata[payments.MetaPackageID]
	description := "credit purchase"
	if packageID != "" {
		description = "credit purchase (" + packageID + ")"
	}

	_, err := s.ledger.Credit(ctx, userID, amount, ledger.KindPurchase, description, event.PaymentRef)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateExternalRef) {
			result.Outcome = OutcomeDuplicatePaymentRef
			return result, nil
		}
		return nil, err
	}

	result.Outcome = OutcomeProcessed
	result.UserID = userID
	result.Credited = amount

	// Phase 2: the credit is committed; a receipt failure is recorded and
	// never unwinds it.
	if notifyErr := s.notifier.PurchaseReceipt(ctx, notification.Receipt{
		UserID:     userID.String(),
		Email:      event.Email,
		PackageID:  packageID,
		Credits:    amount,
		PaymentRef: event.PaymentRef,
	}); notifyErr != nil {
		s.log.WarnContext(ctx, "purchase receipt delivery failed",
			"user_id", userID, "payment_ref", event.PaymentRef, "error", notifyErr)
	}
	return result, nil
}

func (s *Service) applyRefund(ctx context.Context, event *payments.Event, result *WebhookResult) (*WebhookResult, error) {
	userID, amount, outcome := reconciliationTarget(event)
	if outcome != "" {
		result.Outcome = outcome
		return result, nil
	}

	_, err := s.ledger.Refund(ctx, userID, amount, "payment refund", event.PaymentRef)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateExternalRef) {
			result.Outcome = OutcomeDuplicatePaymentRef
			return result, nil
		}
		return nil, err
	}

	result.Outcome = OutcomeProcessed
	result.UserID = userID
	result.Credited = amount.Neg()
	return result, nil
}

// reconciliationTarget extracts the user and credit amount from event
// metadata. A non-empty outcome means the event is acknowledged without
// any ledger mutation.
func reconciliationTarget(event *payments.Event) (uuid.UUID, decimal.Decimal, string) {
	userIDStr := event.Metadata[payments.MetaUserID]
	creditsStr := event.Metadata[payments.MetaCredits]
	if userIDStr == "" || creditsStr == "" {
		return uuid.Nil, decimal.Zero, OutcomeMissingMetadata
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, decimal.Zero, OutcomeMalformedMetadata
	}
	amount, err := decimal.NewFromString(creditsStr)
	if err != nil || !amount.IsPositive() {
		return uuid.Nil, decimal.Zero, OutcomeMalformedMetadata
	}
	return userID, amount, ""
}

func terminalMessage(result *WebhookResult) string {
	switch result.Outcome {
	case OutcomeProcessed:
		return fmt.Sprintf("%s: credited %s to user %s", OutcomeProcessed, result.Credited, result.UserID)
	case OutcomeDuplicatePaymentRef:
		return OutcomeDuplicatePaymentRef + ": payment already credited"
	default:
		return result.Outcome
	}
}
