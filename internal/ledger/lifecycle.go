package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poolpay/poolpay/internal/models"
	"github.com/poolpay/poolpay/internal/storage"
)

// Decision is a member's response to a payment request.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Lifecycle governs payment-request status transitions and issues the
// atomic writes that keep the group balance consistent with them.
type Lifecycle struct {
	store storage.Store
}

// NewLifecycle creates a lifecycle manager backed by the given store.
func NewLifecycle(store storage.Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// Respond applies a member's decision to a pending request.
//
// Only the addressed member may respond (ErrForbidden otherwise), and only
// while the request is pending (ErrInvalidState otherwise). Accepting
// applies status, ledger entry, group balance, and member contribution as
// one atomic batch; rejecting updates the status only. Terminal states are
// final, so a second Respond on the same request fails with
// ErrInvalidState.
func (l *Lifecycle) Respond(ctx context.Context, requestID string, decision Decision, actingMemberID string) (*models.PaymentRequest, error) {
	req, err := l.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.MemberID != actingMemberID {
		return nil, ErrForbidden
	}
	if req.Status != models.RequestPending {
		return nil, fmt.Errorf("%w: request is %s", ErrInvalidState, req.Status)
	}

	now := time.Now().Unix()

	switch decision {
	case DecisionReject:
		ops := []storage.WriteOp{
			storage.UpdateRequestStatus{
				RequestID:   req.ID,
				From:        models.RequestPending,
				To:          models.RequestRejected,
				RespondedAt: now,
			},
		}
		if err := l.store.RunAtomic(ctx, ops); err != nil {
			return nil, err
		}
		req.Status = models.RequestRejected

	case DecisionAccept:
		group, err := l.store.GetGroup(ctx, req.GroupID)
		if err != nil {
			return nil, err
		}
		if group.Status != models.GroupActive {
			return nil, fmt.Errorf("%w: group is %s", ErrInvalidState, group.Status)
		}

		tx := models.NewTransaction(
			req.GroupID,
			req.MemberID,
			models.PoolIn,
			req.Amount,
			"Payment request accepted",
			"accept:"+req.ID,
		)
		ops := []storage.WriteOp{
			storage.UpdateRequestStatus{
				RequestID:   req.ID,
				From:        models.RequestPending,
				To:          models.RequestAccepted,
				RespondedAt: now,
			},
			storage.AppendTransaction{Tx: tx},
			storage.UpdateGroupBalance{
				GroupID:  group.ID,
				NewTotal: group.TotalPooled.Add(req.Amount),
				Version:  group.Version,
			},
			storage.IncrementMemberContribution{
				MemberID: req.MemberID,
				Delta:    req.Amount,
			},
		}
		if err := l.store.RunAtomic(ctx, ops); err != nil {
			return nil, err
		}
		req.Status = models.RequestAccepted
		slog.Info("Payment request accepted",
			"request_id", req.ID,
			"group_id", req.GroupID,
			"amount", req.Amount,
		)

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	req.RespondedAt = now
	return req, nil
}

// Expire transitions a pending request to expired. Expiry is driven by an
// external scheduler (or the background sweeper); the only transition
// accepted here is pending -> expired.
func (l *Lifecycle) Expire(ctx context.Context, requestID string) (*models.PaymentRequest, error) {
	req, err := l.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestPending {
		return nil, fmt.Errorf("%w: request is %s", ErrInvalidState, req.Status)
	}

	now := time.Now().Unix()
	ops := []storage.WriteOp{
		storage.UpdateRequestStatus{
			RequestID:   req.ID,
			From:        models.RequestPending,
			To:          models.RequestExpired,
			RespondedAt: now,
		},
	}
	if err := l.store.RunAtomic(ctx, ops); err != nil {
		return nil, err
	}

	req.Status = models.RequestExpired
	req.RespondedAt = now
	return req, nil
}
