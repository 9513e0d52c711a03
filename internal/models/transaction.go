package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a ledger entry.
type TransactionType string

const (
	// PoolIn is a member contribution entering the pool.
	PoolIn TransactionType = "pool_in"

	// PaymentOut is a disbursement from the pool to a merchant.
	PaymentOut TransactionType = "payment_out"
)

// Transaction is an append-only ledger entry. Transactions are immutable
// once created and are never updated or deleted; they are the sole source
// of truth for a group's pooled balance.
type Transaction struct {
	// ID is the unique identifier for the transaction (UUID format).
	ID string

	// GroupID is the group whose ledger this entry belongs to.
	GroupID string

	// MemberID attributes a pool_in to the contributing member.
	// Empty for payment_out entries, which are made by the group itself.
	MemberID string

	// Type is pool_in or payment_out.
	Type TransactionType

	// Amount is always positive; Type carries the sign.
	Amount decimal.Decimal

	// Description is a human-readable note (e.g., "Payment to Taj Hotel").
	Description string

	// IdempotencyKey deduplicates retried writes. Optional; when set, the
	// store rejects a second transaction with the same key. Accepting a
	// request uses a key derived from the request ID, merchant payments
	// use the caller's merchant reference when provided.
	IdempotencyKey string

	// CreatedAt is the Unix timestamp when the entry was appended.
	CreatedAt int64
}

// NewTransaction creates a ledger entry stamped with the current time.
func NewTransaction(groupID, memberID string, txType TransactionType, amount decimal.Decimal, description, idempotencyKey string) *Transaction {
	return &Transaction{
		ID:             uuid.New().String(),
		GroupID:        groupID,
		MemberID:       memberID,
		Type:           txType,
		Amount:         amount,
		Description:    description,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().Unix(),
	}
}
