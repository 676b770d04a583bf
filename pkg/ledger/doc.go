// Package ledger maintains prepaid credit balances backed by an
// append-only transaction log.
//
// Every balance change is recorded as a Transaction and applied to the
// account in the same atomic unit, so for every user the balance always
// equals the sum of their transaction amounts. Mutations for a single
// user are serialized by the store (a row lock in PostgreSQL, a mutex in
// the in-memory implementation); operations on different users proceed
// in parallel.
//
// The service layers two policies on top of the store:
//
//   - Free replenishment: every Balance read tops the account up to the
//     configured grant amount when the balance has dropped below it and
//     the cooldown since the previous grant has elapsed.
//
//   - Purchase idempotency: credits carrying an external payment
//     reference are at-most-once per (user, reference, kind), enforced by
//     a unique index inside the same transaction as the mutation. Replays
//     surface as ErrDuplicateExternalRef with no state change.
//
// Usage:
//
//	store := ledger.NewPostgresStore(pool)
//	svc := ledger.NewService(store, ledger.Config{})
//
//	balance, err := svc.Balance(ctx, userID)
//	balance, err = svc.Debit(ctx, userID, decimal.NewFromFloat(0.5), "page generation")
//	if errors.Is(err, ledger.ErrInsufficientFunds) {
//		// surface "payment required" to the caller
//	}
package ledger
