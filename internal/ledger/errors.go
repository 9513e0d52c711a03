package ledger

import "errors"

var (
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidMemberCount is returned when a split targets fewer than
	// one member.
	ErrInvalidMemberCount = errors.New("member count must be at least 1")

	// ErrForbidden is returned when someone other than the addressed
	// member tries to respond to a payment request.
	ErrForbidden = errors.New("only the addressed member may respond")

	// ErrInvalidState is returned for transitions out of a terminal
	// request status or operations on a closed group.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrInvalidDecision is returned for a decision other than accept or
	// reject.
	ErrInvalidDecision = errors.New("decision must be accept or reject")

	// ErrInsufficientBalance is returned when a payment exceeds the
	// group's pooled balance.
	ErrInsufficientBalance = errors.New("insufficient pooled balance")
)
