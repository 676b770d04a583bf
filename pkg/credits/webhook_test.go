package credits_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/draftbase/credits/pkg/credits"
	"github.com/draftbase/credits/pkg/eventlog"
	"github.com/draftbase/credits/pkg/ledger"
	"github.com/draftbase/credits/pkg/notification"
	"github.com/draftbase/credits/pkg/payments"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string            { return "mockpay" }
func (m *mockProvider) SignatureHeader() string { return "Mockpay-Signature" }

func (m *mockProvider) FindOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	args := m.Called(ctx, userID, email)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, params payments.CheckoutParams) (*payments.CheckoutSession, error) {
	args := m.Called(ctx, params)
	if s, ok := args.Get(0).(*payments.CheckoutSession); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*payments.Event, error) {
	args := m.Called(ctx, payload, signature)
	if e, ok := args.Get(0).(*payments.Event); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

type captureNotifier struct {
	receipts []notification.Receipt
	fail     bool
}

func (c *captureNotifier) PurchaseReceipt(_ context.Context, r notification.Receipt) error {
	c.receipts = append(c.receipts, r)
	if c.fail {
		return errors.New("smtp unavailable")
	}
	return nil
}

type webhookFixture struct {
	svc      *credits.Service
	ledger   *ledger.Service
	store    *ledger.MemoryStore
	events   *eventlog.MemoryStore
	provider *mockProvider
	notifier *captureNotifier
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	now := time.Now().UTC()
	ledgerSvc := ledger.NewService(store, ledger.Config{}, ledger.WithClock(func() time.Time { return now }))
	events := eventlog.NewMemoryStore()
	provider := &mockProvider{}
	notifier := &captureNotifier{}
	svc := credits.NewService(ledgerSvc, events, provider, credits.Config{
		SuccessURL: "https://app.test/billing/success",
		CancelURL:  "https://app.test/billing/cancel",
	}, credits.WithNotifier(notifier))
	return &webhookFixture{svc: svc, ledger: ledgerSvc, store: store, events: events, provider: provider, notifier: notifier}
}

func paidEvent(id string, userID uuid.UUID) *payments.Event {
	return &payments.Event{
		ID:           id,
		Type:         payments.EventPaymentCompleted,
		ProviderType: "checkout.session.completed",
		PaymentRef:   "pi_" + id,
		Paid:         true,
		Email:        "buyer@example.com",
		Metadata: map[string]string{
			payments.MetaUserID:    userID.String(),
			payments.MetaPackageID: "starter",
			payments.MetaCredits:   "10",
		},
	}
}

func (f *webhookFixture) expectEvent(event *payments.Event) {
	f.provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).Return(event, nil).Once()
}

func (f *webhookFixture) handle(t *testing.T) (*credits.WebhookResult, error) {
	t.Helper()
	return f.svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
}

func TestHandleWebhook_CreditsExactlyOnce(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	event := paidEvent("evt_1", userID)

	f.expectEvent(event)
	result, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, credits.OutcomeProcessed, result.Outcome)
	assert.Equal(t, userID, result.UserID)
	assert.True(t, result.Credited.Equal(decimal.NewFromInt(10)))

	acc, err := f.ledger.Account(ctx, userID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(10)))

	entry, err := f.events.Get(ctx, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.Equal(t, eventlog.StatusSuccess, entry.Status)
	assert.Contains(t, entry.Message, credits.OutcomeProcessed)

	// Redelivery of the same event id is suppressed before dispatch.
	f.expectEvent(event)
	result, err = f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, credits.OutcomeDuplicate, result.Outcome)

	acc, err = f.ledger.Account(ctx, userID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(10)), "replay must not double credit")

	require.Len(t, f.notifier.receipts, 1)
	assert.Equal(t, "buyer@example.com", f.notifier.receipts[0].Email)
}

func TestHandleWebhook_DuplicatePaymentRef(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	first := paidEvent("evt_a", userID)
	second := paidEvent("evt_b", userID)
	second.PaymentRef = first.PaymentRef

	f.expectEvent(first)
	_, err := f.handle(t)
	require.NoError(t, err)

	// Distinct event id, same payment: the ledger's unique ref constraint
	// is what catches it, and the delivery is still acknowledged.
	f.expectEvent(second)
	result, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, credits.OutcomeDuplicatePaymentRef, result.Outcome)

	acc, err := f.ledger.Account(ctx, userID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(10)))
}

func TestHandleWebhook_MetadataProblemsAreAcknowledged(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	tests := []struct {
		name    string
		mutate  func(e *payments.Event)
		outcome string
	}{
		{
			name:    "missing user id",
			mutate:  func(e *payments.Event) { delete(e.Metadata, payments.MetaUserID) },
			outcome: credits.OutcomeMissingMetadata,
		},
		{
			name:    "missing credits",
			mutate:  func(e *payments.Event) { delete(e.Metadata, payments.MetaCredits) },
			outcome: credits.OutcomeMissingMetadata,
		},
		{
			name:    "unparseable user id",
			mutate:  func(e *payments.Event) { e.Metadata[payments.MetaUserID] = "not-a-uuid" },
			outcome: credits.OutcomeMalformedMetadata,
		},
		{
			name:    "non-positive credits",
			mutate:  func(e *payments.Event) { e.Metadata[payments.MetaCredits] = "-5" },
			outcome: credits.OutcomeMalformedMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newWebhookFixture(t)
			event := paidEvent("evt_meta", userID)
			tt.mutate(event)

			f.expectEvent(event)
			result, err := f.handle(t)
			require.NoError(t, err, "metadata problems must be acked, not retried")
			assert.Equal(t, tt.outcome, result.Outcome)

			_, err = f.store.Account(context.Background(), userID)
			assert.ErrorIs(t, err, ledger.ErrAccountNotFound, "no ledger mutation expected")

			entry, err := f.events.Get(context.Background(), "evt_meta", "checkout.session.completed")
			require.NoError(t, err)
			assert.Equal(t, eventlog.StatusSuccess, entry.Status)
			assert.Equal(t, tt.outcome, entry.Message)
		})
	}
}

func TestHandleWebhook_PaymentNotCompleted(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	userID := uuid.New()
	event := paidEvent("evt_unpaid", userID)
	event.Paid = false

	f.expectEvent(event)
	result, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, credits.OutcomePaymentNotCompleted, result.Outcome)

	_, err = f.store.Account(context.Background(), userID)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestHandleWebhook_AsyncPaymentFailed(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	event := &payments.Event{
		ID:           "evt_fail",
		Type:         payments.EventAsyncPaymentFailed,
		ProviderType: "checkout.session.async_payment_failed",
		PaymentRef:   "pi_fail",
	}

	f.expectEvent(event)
	result, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, credits.OutcomePaymentFailed, result.Outcome)

	entry, err := f.events.Get(context.Background(), "evt_fail", "checkout.session.async_payment_failed")
	require.NoError(t, err)
	assert.Equal(t, eventlog.StatusSuccess, entry.Status)
}

func TestHandleWebhook_UnhandledEventType(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	event := &payments.Event{
		ID:           "evt_other",
		Type:         payments.EventUnhandled,
		ProviderType: "customer.updated",
	}

	f.expectEvent(event)
	result, err := f.handle(t)
	require.NoError(t, err, "unknown event types are acked so the processor stops redelivering")
	assert.Equal(t, credits.OutcomeUnhandled, result.Outcome)
}

func TestHandleWebhook_RefundDebitsBalance(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	f.expectEvent(paidEvent("evt_p", userID))
	_, err := f.handle(t)
	require.NoError(t, err)

	refund := paidEvent("evt_r", userID)
	refund.Type = payments.EventRefund
	refund.ProviderType = "charge.refunded"
	refund.PaymentRef = "re_1"

	f.expectEvent(refund)
	result, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, credits.OutcomeProcessed, result.Outcome)
	assert.True(t, result.Credited.Equal(decimal.NewFromInt(-10)))

	acc, err := f.ledger.Account(ctx, userID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero())
}

func TestHandleWebhook_SignatureFailureLeavesNoTrace(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	f.provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, payments.ErrSignatureVerificationFailed).Once()

	result, err := f.handle(t)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, credits.KindSignature, credits.KindOf(err))
	assert.ErrorIs(t, err, payments.ErrSignatureVerificationFailed)

	// Rejected before identification: nothing must land in the log.
	entries, err := f.events.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandleWebhook_ProviderOutageIsTransient(t *testing.T) {
	t.Parallel()

	// Providers that look up extra context over their API while parsing
	// can fail on an outage; that asks for redelivery, not a 400.
	f := newWebhookFixture(t)
	f.provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.Join(payments.ErrProviderUnavailable, errors.New("gateway timeout"))).Once()

	_, err := f.handle(t)
	require.Error(t, err)
	assert.Equal(t, credits.KindTransient, credits.KindOf(err))
	assert.ErrorIs(t, err, credits.ErrWebhookTransient)
}

func TestHandleWebhook_MalformedPayload(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	f.provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, payments.ErrMalformedPayload).Once()

	_, err := f.handle(t)
	require.Error(t, err)
	assert.Equal(t, credits.KindValidation, credits.KindOf(err))
}

func TestHandleWebhook_MissingEventID(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	f.expectEvent(&payments.Event{Type: payments.EventPaymentCompleted, ProviderType: "checkout.session.completed"})

	_, err := f.handle(t)
	require.Error(t, err)
	assert.Equal(t, credits.KindValidation, credits.KindOf(err))
}

type failingLedger struct{}

func (failingLedger) Credit(context.Context, uuid.UUID, decimal.Decimal, ledger.Kind, string, string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("connection reset")
}

func (failingLedger) Refund(context.Context, uuid.UUID, decimal.Decimal, string, string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("connection reset")
}

func TestHandleWebhook_LedgerFailureIsTransient(t *testing.T) {
	t.Parallel()

	events := eventlog.NewMemoryStore()
	provider := &mockProvider{}
	svc := credits.NewService(failingLedger{}, events, provider, credits.Config{
		SuccessURL: "https://app.test/ok",
		CancelURL:  "https://app.test/no",
	})

	userID := uuid.New()
	provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
		Return(paidEvent("evt_dead", userID), nil).Once()

	_, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.Error(t, err)
	assert.Equal(t, credits.KindTransient, credits.KindOf(err))
	assert.ErrorIs(t, err, credits.ErrWebhookTransient)

	// The failure is visible in the log so the redelivery has context.
	entry, getErr := events.Get(context.Background(), "evt_dead", "checkout.session.completed")
	require.NoError(t, getErr)
	assert.Equal(t, eventlog.StatusError, entry.Status)
	assert.Contains(t, entry.Message, "processing failed")
}

func TestHandleWebhook_ReceiptFailureDoesNotUnwindCredit(t *testing.T) {
	t.Parallel()

	f := newWebhookFixture(t)
	f.notifier.fail = true
	userID := uuid.New()

	f.expectEvent(paidEvent("evt_rcpt", userID))
	result, err := f.handle(t)
	require.NoError(t, err, "receipt delivery is a secondary effect")
	assert.Equal(t, credits.OutcomeProcessed, result.Outcome)

	acc, err := f.ledger.Account(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(10)))
}
