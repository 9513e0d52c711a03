package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GroupStatus is the lifecycle state of a group.
type GroupStatus string

const (
	// GroupActive accepts contributions and payments.
	GroupActive GroupStatus = "active"

	// GroupClosed is terminal; closed groups are kept for history but
	// reject all balance-changing operations.
	GroupClosed GroupStatus = "closed"
)

// Group represents a pool of money shared by its members.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Goa Trip", "Flat 4B").
	Name string

	// Description is an optional free-text note about the group's purpose.
	Description string

	// TotalPooled is the current pooled balance. Invariant: equals the sum
	// of all pool_in transaction amounts minus all payment_out amounts for
	// this group. Mutated only through an atomic write that also appends
	// the corresponding transaction.
	TotalPooled decimal.Decimal

	// Status is either active or closed. Groups are never deleted in place.
	Status GroupStatus

	// CreatedBy is the user ID of the group's creator.
	CreatedBy string

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64

	// Version is the optimistic-concurrency token for balance updates.
	// Every committed balance write increments it; a write carrying a stale
	// version is rejected by the store.
	Version int64
}

// NewGroup creates an active group with a zero balance.
func NewGroup(name, description, createdBy string) *Group {
	return &Group{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		TotalPooled: decimal.Zero,
		Status:      GroupActive,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().Unix(),
	}
}
