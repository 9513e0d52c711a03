// Package models defines the core domain models for PoolPay.
//
// # Models
//
//   - Group: A pool of money contributed by its members
//   - Member: A user's membership in a group, with role and UPI address
//   - PaymentRequest: A collect request asking one member to contribute
//   - Transaction: An append-only ledger entry (pool_in / payment_out)
//
// # Design Principles
//
// 1. **Ledger as source of truth**: a group's TotalPooled is always
// reconstructable by summing its transactions; the stored value is a cache
// kept consistent by atomic writes.
//
// 2. **Immutable history**: transactions are never updated or deleted, and
// a payment request transitions out of pending exactly once.
//
// 3. **Avoid circular references**: models reference each other by ID
// strings, never by pointer.
//
// All money amounts use decimal.Decimal to avoid binary floating point
// drift in balances. Timestamps are Unix seconds.
package models
