// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/poolpay/poolpay/internal/models"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an atomic write loses a race: a stale
	// group version or a request whose status changed underneath the
	// caller. The caller should re-read and retry.
	ErrConflict = errors.New("write conflict")

	// ErrAborted is returned when an atomic write fails for any other
	// reason. No partial effect is committed.
	ErrAborted = errors.New("atomic write aborted")

	// ErrDuplicateTransaction is returned when a transaction's idempotency
	// key has already been committed.
	ErrDuplicateTransaction = errors.New("transaction already processed")
)

// WriteOp is one write in an atomic batch passed to Store.RunAtomic.
type WriteOp interface {
	writeOp()
}

// UpdateRequestStatus transitions a payment request from an expected
// current status to a new one. The transition is a compare-and-swap: if the
// stored status is not From, the batch fails with ErrConflict.
type UpdateRequestStatus struct {
	RequestID   string
	From        models.RequestStatus
	To          models.RequestStatus
	RespondedAt int64
}

// AppendTransaction appends an immutable ledger entry.
type AppendTransaction struct {
	Tx *models.Transaction
}

// UpdateGroupBalance sets a group's pooled balance. Version must match the
// stored version or the batch fails with ErrConflict; on commit the stored
// version is incremented.
type UpdateGroupBalance struct {
	GroupID  string
	NewTotal decimal.Decimal
	Version  int64
}

// IncrementMemberContribution adds Delta to a member's running
// contribution total.
type IncrementMemberContribution struct {
	MemberID string
	Delta    decimal.Decimal
}

func (UpdateRequestStatus) writeOp()         {}
func (AppendTransaction) writeOp()           {}
func (UpdateGroupBalance) writeOp()          {}
func (IncrementMemberContribution) writeOp() {}

// Store defines the interface for ledger persistence.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service or ledger layers; the backend is chosen once
// per deployment via configuration.
type Store interface {
	// CreateGroup persists a new group.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group by ID. Returns ErrNotFound if absent.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroupsByUser retrieves the groups a user is a member of.
	ListGroupsByUser(ctx context.Context, userID string) ([]*models.Group, error)

	// CreateMember persists a new membership.
	CreateMember(ctx context.Context, member *models.Member) error

	// GetMember retrieves a membership by ID. Returns ErrNotFound if absent.
	GetMember(ctx context.Context, memberID string) (*models.Member, error)

	// GetMemberByUser retrieves a user's membership in a group.
	// Returns ErrNotFound if the user is not a member.
	GetMemberByUser(ctx context.Context, groupID, userID string) (*models.Member, error)

	// ListMembers retrieves all members of a group, oldest first.
	ListMembers(ctx context.Context, groupID string) ([]*models.Member, error)

	// CreateRequest persists a new payment request.
	CreateRequest(ctx context.Context, req *models.PaymentRequest) error

	// GetRequest retrieves a payment request by ID. Returns ErrNotFound
	// if absent.
	GetRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error)

	// ListRequestsByGroup retrieves a group's requests, newest first.
	ListRequestsByGroup(ctx context.Context, groupID string) ([]*models.PaymentRequest, error)

	// ListRequestsByMember retrieves the requests addressed to a member,
	// newest first.
	ListRequestsByMember(ctx context.Context, memberID string) ([]*models.PaymentRequest, error)

	// ListPendingBefore retrieves pending requests requested at or before
	// the cutoff, for expiry sweeps.
	ListPendingBefore(ctx context.Context, cutoff int64) ([]*models.PaymentRequest, error)

	// ListTransactions retrieves a group's ledger, ordered by creation
	// time ascending.
	ListTransactions(ctx context.Context, groupID string) ([]*models.Transaction, error)

	// RunAtomic applies all ops as a single serializable unit: either
	// every op commits or none does. Contention surfaces as ErrConflict,
	// idempotency-key reuse as ErrDuplicateTransaction, and any other
	// failure as an error wrapping ErrAborted.
	RunAtomic(ctx context.Context, ops []WriteOp) error

	// Close releases any resources held by the store.
	Close() error
}
