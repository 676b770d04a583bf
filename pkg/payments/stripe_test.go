package payments_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftbase/credits/pkg/payments"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload builds a Stripe-Signature header the way Stripe signs
// deliveries: HMAC-SHA256 over "<timestamp>.<payload>".
func signPayload(payload []byte, secret string, ts time.Time) string {
	signed := fmt.Sprintf("%d.%s", ts.Unix(), payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func stripeEventPayload(eventType string, object string) []byte {
	return fmt.Appendf(nil, `{
		"id": "evt_test_1",
		"object": "event",
		"api_version": %q,
		"type": %q,
		"data": {"object": %s}
	}`, stripe.APIVersion, eventType, object)
}

func newTestStripeProvider(t *testing.T) *payments.StripeProvider {
	t.Helper()
	p, err := payments.NewStripeProvider(payments.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
	})
	require.NoError(t, err)
	return p
}

func TestNewStripeProvider_Validation(t *testing.T) {
	t.Parallel()

	_, err := payments.NewStripeProvider(payments.StripeConfig{WebhookSecret: "whsec"})
	assert.ErrorIs(t, err, payments.ErrMissingAPIKey)

	_, err = payments.NewStripeProvider(payments.StripeConfig{SecretKey: "sk_test"})
	assert.ErrorIs(t, err, payments.ErrMissingWebhookSecret)
}

func TestStripeParseWebhook_CheckoutCompleted(t *testing.T) {
	t.Parallel()

	p := newTestStripeProvider(t)
	payload := stripeEventPayload("checkout.session.completed", `{
		"id": "cs_test_1",
		"object": "checkout.session",
		"payment_status": "paid",
		"payment_intent": {"id": "pi_test_1"},
		"customer_details": {"email": "buyer@example.com"},
		"metadata": {"user_id": "11111111-2222-3333-4444-555555555555", "package_id": "starter", "credits": "10"}
	}`)

	event, err := p.ParseWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, "evt_test_1", event.ID)
	assert.Equal(t, payments.EventPaymentCompleted, event.Type)
	assert.Equal(t, "checkout.session.completed", event.ProviderType)
	assert.True(t, event.Paid)
	assert.Equal(t, "pi_test_1", event.PaymentRef, "payment intent wins over session id as the external ref")
	assert.Equal(t, "buyer@example.com", event.Email)
	assert.Equal(t, "starter", event.Metadata[payments.MetaPackageID])
	assert.Equal(t, "10", event.Metadata[payments.MetaCredits])
}

func TestStripeParseWebhook_UnpaidSession(t *testing.T) {
	t.Parallel()

	p := newTestStripeProvider(t)
	payload := stripeEventPayload("checkout.session.completed", `{
		"id": "cs_test_2",
		"object": "checkout.session",
		"payment_status": "unpaid",
		"metadata": {"user_id": "11111111-2222-3333-4444-555555555555", "credits": "10"}
	}`)

	event, err := p.ParseWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.False(t, event.Paid)
	assert.Equal(t, "cs_test_2", event.PaymentRef, "falls back to the session id without a payment intent")
}

func TestStripeParseWebhook_AsyncPaymentFailed(t *testing.T) {
	t.Parallel()

	p := newTestStripeProvider(t)
	payload := stripeEventPayload("checkout.session.async_payment_failed", `{
		"id": "cs_test_3",
		"object": "checkout.session",
		"payment_status": "unpaid"
	}`)

	event, err := p.ParseWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, payments.EventAsyncPaymentFailed, event.Type)
	assert.False(t, event.Paid)
}

func TestStripeParseWebhook_ChargeRefunded(t *testing.T) {
	t.Parallel()

	// A real charge.refunded delivery references the payment intent by id
	// and the charge metadata holds the reconciliation keys placed there
	// via the checkout session's payment intent data.
	p := newTestStripeProvider(t)
	payload := stripeEventPayload("charge.refunded", `{
		"id": "ch_test_1",
		"object": "charge",
		"payment_intent": "pi_test_9",
		"metadata": {"user_id": "11111111-2222-3333-4444-555555555555", "package_id": "starter", "credits": "10"}
	}`)

	event, err := p.ParseWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, payments.EventRefund, event.Type)
	assert.Equal(t, "pi_test_9", event.PaymentRef)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", event.Metadata[payments.MetaUserID])
	assert.Equal(t, "10", event.Metadata[payments.MetaCredits])
}

func TestStripeParseWebhook_UnhandledType(t *testing.T) {
	t.Parallel()

	p := newTestStripeProvider(t)
	payload := stripeEventPayload("customer.updated", `{"id": "cus_test_1", "object": "customer"}`)

	event, err := p.ParseWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, payments.EventUnhandled, event.Type)
	assert.Equal(t, "customer.updated", event.ProviderType)
}

func TestStripeParseWebhook_RejectsBadSignature(t *testing.T) {
	t.Parallel()

	p := newTestStripeProvider(t)
	payload := stripeEventPayload("checkout.session.completed", `{"id": "cs_x", "object": "checkout.session"}`)

	_, err := p.ParseWebhook(context.Background(), payload, signPayload(payload, "whsec_wrong_secret", time.Now()))
	assert.ErrorIs(t, err, payments.ErrSignatureVerificationFailed)

	_, err = p.ParseWebhook(context.Background(), payload, "t=123,v1=deadbeef")
	assert.ErrorIs(t, err, payments.ErrSignatureVerificationFailed)
}

func TestStripeParseWebhook_RejectsStaleTimestamp(t *testing.T) {
	t.Parallel()

	p := newTestStripeProvider(t)
	payload := stripeEventPayload("checkout.session.completed", `{"id": "cs_x", "object": "checkout.session"}`)

	// Outside the default replay tolerance.
	sig := signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour))
	_, err := p.ParseWebhook(context.Background(), payload, sig)
	assert.ErrorIs(t, err, payments.ErrSignatureVerificationFailed)
}

func TestStripeParseWebhook_TamperedBody(t *testing.T) {
	t.Parallel()

	p := newTestStripeProvider(t)
	payload := stripeEventPayload("checkout.session.completed", `{"id": "cs_x", "object": "checkout.session"}`)
	sig := signPayload(payload, testWebhookSecret, time.Now())

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = ' '
	_, err := p.ParseWebhook(context.Background(), tampered, sig)
	assert.ErrorIs(t, err, payments.ErrSignatureVerificationFailed)
}

func TestFactory_SelectsProvider(t *testing.T) {
	t.Parallel()

	stripeCfg := payments.StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec"}

	p, err := payments.New(payments.Config{Provider: "stripe"}, stripeCfg, payments.PaddleConfig{})
	require.NoError(t, err)
	assert.Equal(t, "stripe", p.Name())
	assert.Equal(t, "Stripe-Signature", p.SignatureHeader())

	_, err = payments.New(payments.Config{Provider: "square"}, stripeCfg, payments.PaddleConfig{})
	assert.ErrorIs(t, err, payments.ErrUnknownProvider)
}
