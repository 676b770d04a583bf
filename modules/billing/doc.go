// Package billing exposes the credit ledger and purchase flows over
// HTTP: balance and history reads, usage debits, checkout creation, and
// the payment processor's webhook endpoint. The webhook response code
// is part of the processor contract: 2xx acknowledges, 400 rejects
// permanently, 500 requests redelivery.
package billing
