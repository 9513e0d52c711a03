package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemberRole controls what a member may do within a group.
type MemberRole string

const (
	// RoleAdmin may invite members, fan out payment requests, pay
	// merchants, and repair the group balance.
	RoleAdmin MemberRole = "admin"

	// RoleMember may respond to requests addressed to them and view the
	// group's ledger.
	RoleMember MemberRole = "member"
)

// Member represents one user's membership in a group.
// Members are owned by a group via GroupID but may be queried
// independently (e.g., "all groups for user X").
type Member struct {
	// ID is the unique identifier for the membership (UUID format).
	ID string

	// GroupID is the group this membership belongs to.
	GroupID string

	// UserID identifies the user behind this membership.
	UserID string

	// DisplayName is the name shown to other group members.
	DisplayName string

	// UpiID is the member's UPI address (e.g., "alice@okhdfcbank"),
	// used as the payee of p2p collect requests.
	UpiID string

	// Role is admin or member. The group creator is always an admin.
	Role MemberRole

	// ContributedAmount is the running total of this member's accepted
	// contributions. Updated in the same atomic write as the group balance.
	ContributedAmount decimal.Decimal

	// JoinedAt is the Unix timestamp when the member joined the group.
	JoinedAt int64
}

// NewMember creates a membership with a zero contribution total.
func NewMember(groupID, userID, displayName, upiID string, role MemberRole) *Member {
	return &Member{
		ID:                uuid.New().String(),
		GroupID:           groupID,
		UserID:            userID,
		DisplayName:       displayName,
		UpiID:             upiID,
		Role:              role,
		ContributedAmount: decimal.Zero,
		JoinedAt:          time.Now().Unix(),
	}
}
