package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle state of a payment request.
// A request starts pending and transitions exactly once into one of the
// terminal states; terminal states admit no further transitions.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
	RequestExpired  RequestStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestAccepted || s == RequestRejected || s == RequestExpired
}

// PaymentMode selects how contributed funds are routed.
type PaymentMode string

const (
	// ModeP2P routes the collect request directly to the member's UPI ID.
	ModeP2P PaymentMode = "p2p"

	// ModeEscrow routes funds through the group's virtual escrow account
	// (poolpay.<groupID>@cashfree). Settlement of the escrow account is an
	// external payment-rail concern.
	ModeEscrow PaymentMode = "escrow"
)

// PaymentRequest asks one member to contribute an amount to the pool.
type PaymentRequest struct {
	// ID is the unique identifier for the request (UUID format).
	ID string

	// GroupID is the group the contribution is pooled into.
	GroupID string

	// MemberID is the membership the request is addressed to. Only this
	// member may accept or reject the request.
	MemberID string

	// Amount is the requested contribution; always positive.
	Amount decimal.Decimal

	// Description is shown to the member (e.g., "Hotel booking").
	Description string

	// Mode is p2p or escrow; it determines the payee of the collect URI.
	Mode PaymentMode

	// Status is pending until the member responds or the request expires.
	Status RequestStatus

	// RequestedAt is the Unix timestamp when the request was created.
	RequestedAt int64

	// RespondedAt is the Unix timestamp of the status transition out of
	// pending; zero while pending.
	RespondedAt int64
}

// NewPaymentRequest creates a pending request addressed to one member.
func NewPaymentRequest(groupID, memberID string, amount decimal.Decimal, description string, mode PaymentMode) *PaymentRequest {
	return &PaymentRequest{
		ID:          uuid.New().String(),
		GroupID:     groupID,
		MemberID:    memberID,
		Amount:      amount,
		Description: description,
		Mode:        mode,
		Status:      RequestPending,
		RequestedAt: time.Now().Unix(),
	}
}
