package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/poolpay/poolpay/internal/models"
	"github.com/poolpay/poolpay/internal/storage"
)

// Reconciler applies balance-changing operations and audits the stored
// balance against the transaction log.
type Reconciler struct {
	store storage.Store
}

// NewReconciler creates a reconciler backed by the given store.
func NewReconciler(store storage.Store) *Reconciler {
	return &Reconciler{store: store}
}

// ApplyMerchantPayment disburses amount from the group's pool to a
// merchant. The payment_out ledger entry and the balance decrement commit
// as one atomic batch. merchantRef, when non-empty, is used as the
// transaction's idempotency key so a retried payment cannot double-spend.
func (r *Reconciler) ApplyMerchantPayment(ctx context.Context, groupID string, amount decimal.Decimal, merchantName, merchantRef string) (*models.Group, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	group, err := r.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Status != models.GroupActive {
		return nil, fmt.Errorf("%w: group is %s", ErrInvalidState, group.Status)
	}
	if amount.GreaterThan(group.TotalPooled) {
		return nil, fmt.Errorf("%w: have %s, need %s",
			ErrInsufficientBalance, group.TotalPooled, amount)
	}

	tx := models.NewTransaction(
		group.ID,
		"", // disbursements are made by the group, not a member
		models.PaymentOut,
		amount,
		"Payment to "+merchantName,
		merchantRef,
	)
	newTotal := group.TotalPooled.Sub(amount)
	ops := []storage.WriteOp{
		storage.AppendTransaction{Tx: tx},
		storage.UpdateGroupBalance{
			GroupID:  group.ID,
			NewTotal: newTotal,
			Version:  group.Version,
		},
	}
	if err := r.store.RunAtomic(ctx, ops); err != nil {
		return nil, err
	}

	slog.Info("Merchant payment applied",
		"group_id", group.ID,
		"merchant", merchantName,
		"amount", amount,
		"balance", newTotal,
	)

	group.TotalPooled = newTotal
	group.Version++
	return group, nil
}

// RecomputeBalance derives the pooled balance by summing the group's
// transaction log: pool_in positive, payment_out negative. It reads the
// log only and never writes, so it can run against any group to detect
// drift left behind by non-atomic legacy writes.
func (r *Reconciler) RecomputeBalance(ctx context.Context, groupID string) (decimal.Decimal, error) {
	txs, err := r.store.ListTransactions(ctx, groupID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, tx := range txs {
		switch tx.Type {
		case models.PoolIn:
			total = total.Add(tx.Amount)
		case models.PaymentOut:
			total = total.Sub(tx.Amount)
		}
	}
	return total, nil
}

// RepairBalance overwrites the stored balance with the value derived from
// the transaction log. The write is version-checked, so a repair racing a
// live accept or payment fails with ErrConflict instead of clobbering it.
func (r *Reconciler) RepairBalance(ctx context.Context, groupID string) (*models.Group, error) {
	group, err := r.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	derived, err := r.RecomputeBalance(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.TotalPooled.Equal(derived) {
		return group, nil
	}

	slog.Warn("Balance drift detected, repairing",
		"group_id", group.ID,
		"stored", group.TotalPooled,
		"derived", derived,
	)

	ops := []storage.WriteOp{
		storage.UpdateGroupBalance{
			GroupID:  group.ID,
			NewTotal: derived,
			Version:  group.Version,
		},
	}
	if err := r.store.RunAtomic(ctx, ops); err != nil {
		return nil, err
	}

	group.TotalPooled = derived
	group.Version++
	return group, nil
}
