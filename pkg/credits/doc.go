// Package credits meters paid usage of the generation service through a
// prepaid balance: it sells credit packages via hosted checkout and
// reconciles the payment processor's webhooks against the ledger.
//
// Checkout creates no local state before payment. The session carries
// {user id, package id, credits} as processor-side metadata, and the
// webhook handler reconstructs the purchase from that metadata alone.
//
// Webhook deliveries are at-least-once, possibly duplicated and out of
// order. The handler runs a fixed state machine per delivery:
//
//	received -> signature verified -> duplicate? ack
//	                               -> processing -> applied | failed
//
// Signature failures are rejected permanently. Duplicates are suppressed
// first through the processing log (advisory fast path) and finally by
// the ledger's unique external-reference constraint, which is atomic
// with the credit itself. Processing failures are reported as transient
// so the processor redelivers; the handler is safe to re-run.
package credits
