// Package payments abstracts the external payment processor behind a
// small Provider interface: hosted checkout creation, customer
// find-or-create, and webhook verification.
//
// Two implementations ship: Stripe Checkout (the default) and Paddle
// Billing. Both verify webhook signatures against the raw, unparsed
// request body before any field is trusted, and both normalize their
// event names onto the closed EventType set so the webhook handler
// dispatches exhaustively with an explicit default branch.
package payments
