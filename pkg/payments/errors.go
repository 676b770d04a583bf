package payments

import "errors"

var (
	ErrMissingAPIKey        = errors.New("payment provider API key is required")
	ErrMissingWebhookSecret = errors.New("payment provider webhook secret is required")
	ErrInvalidEnvironment   = errors.New("invalid payment provider environment")
	ErrUnknownProvider      = errors.New("unknown payment provider")

	// ErrSignatureVerificationFailed is terminal: redelivery of the same
	// payload cannot make the signature valid.
	ErrSignatureVerificationFailed = errors.New("webhook signature verification failed")

	ErrMalformedPayload    = errors.New("malformed webhook payload")
	ErrNoCheckoutURL       = errors.New("no checkout URL returned from provider")
	ErrProviderUnavailable = errors.New("payment provider request failed")
)
