package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/poolpay/poolpay/internal/models"
	"github.com/poolpay/poolpay/internal/storage"
)

func TestApplyMerchantPayment(t *testing.T) {
	store := newTestStore(t)
	group, _, _ := seedGroup(t, store, "1000")

	rec := NewReconciler(store)
	ctx := context.Background()

	updated, err := rec.ApplyMerchantPayment(ctx, group.ID,
		decimal.NewFromInt(300), "Taj Hotel", "ref-001")
	if err != nil {
		t.Fatalf("ApplyMerchantPayment failed: %v", err)
	}
	if !updated.TotalPooled.Equal(decimal.NewFromInt(700)) {
		t.Errorf("totalPooled = %s, want 700", updated.TotalPooled)
	}
	if n := countTransactions(t, store, group.ID, models.PaymentOut); n != 1 {
		t.Errorf("payment_out count = %d, want 1", n)
	}

	txs, err := store.ListTransactions(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	last := txs[len(txs)-1]
	if last.Type != models.PaymentOut || !last.Amount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("last transaction = %s %s, want payment_out 300", last.Type, last.Amount)
	}
	if last.Description != "Payment to Taj Hotel" {
		t.Errorf("description = %q", last.Description)
	}
}

func TestApplyMerchantPaymentInsufficientBalance(t *testing.T) {
	store := newTestStore(t)
	group, _, _ := seedGroup(t, store, "100")

	rec := NewReconciler(store)
	ctx := context.Background()

	_, err := rec.ApplyMerchantPayment(ctx, group.ID,
		decimal.NewFromInt(150), "Taj Hotel", "")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}

	// Balance and ledger untouched.
	got, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if !got.TotalPooled.Equal(decimal.NewFromInt(100)) {
		t.Errorf("totalPooled = %s, want unchanged 100", got.TotalPooled)
	}
	if n := countTransactions(t, store, group.ID, models.PaymentOut); n != 0 {
		t.Errorf("payment_out count = %d, want 0", n)
	}
}

func TestApplyMerchantPaymentValidation(t *testing.T) {
	store := newTestStore(t)
	group, _, _ := seedGroup(t, store, "100")

	rec := NewReconciler(store)
	ctx := context.Background()

	if _, err := rec.ApplyMerchantPayment(ctx, group.ID, decimal.Zero, "shop", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount error = %v, want ErrInvalidAmount", err)
	}
	if _, err := rec.ApplyMerchantPayment(ctx, "missing-group", decimal.NewFromInt(10), "shop", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing group error = %v, want ErrNotFound", err)
	}
}

func TestApplyMerchantPaymentIdempotencyKey(t *testing.T) {
	store := newTestStore(t)
	group, _, _ := seedGroup(t, store, "1000")

	rec := NewReconciler(store)
	ctx := context.Background()

	if _, err := rec.ApplyMerchantPayment(ctx, group.ID, decimal.NewFromInt(100), "shop", "ref-42"); err != nil {
		t.Fatalf("first payment failed: %v", err)
	}

	// A retry with the same merchant ref must not double-spend.
	_, err := rec.ApplyMerchantPayment(ctx, group.ID, decimal.NewFromInt(100), "shop", "ref-42")
	if !errors.Is(err, storage.ErrDuplicateTransaction) {
		t.Fatalf("retry error = %v, want ErrDuplicateTransaction", err)
	}

	got, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if !got.TotalPooled.Equal(decimal.NewFromInt(900)) {
		t.Errorf("totalPooled = %s, want 900 (charged once)", got.TotalPooled)
	}
}

func TestRecomputeBalance(t *testing.T) {
	store := newTestStore(t)
	group, admin, _ := seedGroup(t, store, "0")

	ctx := context.Background()

	// Inject +1000, -300, +50 directly; leave the stored balance stale at
	// an arbitrary wrong value to prove recompute ignores it.
	entries := []struct {
		txType models.TransactionType
		amount string
	}{
		{models.PoolIn, "1000"},
		{models.PaymentOut, "300"},
		{models.PoolIn, "50"},
	}
	for _, e := range entries {
		tx := models.NewTransaction(group.ID, admin.ID, e.txType,
			decimal.RequireFromString(e.amount), "injected", "")
		if err := store.RunAtomic(ctx, []storage.WriteOp{storage.AppendTransaction{Tx: tx}}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	if err := store.RunAtomic(ctx, []storage.WriteOp{
		storage.UpdateGroupBalance{GroupID: group.ID, NewTotal: decimal.NewFromInt(9999), Version: group.Version},
	}); err != nil {
		t.Fatalf("stale balance write failed: %v", err)
	}

	rec := NewReconciler(store)
	derived, err := rec.RecomputeBalance(ctx, group.ID)
	if err != nil {
		t.Fatalf("RecomputeBalance failed: %v", err)
	}
	if !derived.Equal(decimal.NewFromInt(750)) {
		t.Errorf("derived balance = %s, want 750", derived)
	}
}

func TestRepairBalance(t *testing.T) {
	store := newTestStore(t)
	group, admin, _ := seedGroup(t, store, "0")

	ctx := context.Background()

	tx := models.NewTransaction(group.ID, admin.ID, models.PoolIn, decimal.NewFromInt(500), "injected", "")
	if err := store.RunAtomic(ctx, []storage.WriteOp{storage.AppendTransaction{Tx: tx}}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	rec := NewReconciler(store)
	repaired, err := rec.RepairBalance(ctx, group.ID)
	if err != nil {
		t.Fatalf("RepairBalance failed: %v", err)
	}
	if !repaired.TotalPooled.Equal(decimal.NewFromInt(500)) {
		t.Errorf("repaired balance = %s, want 500", repaired.TotalPooled)
	}

	// Idempotent: a second repair is a no-op.
	again, err := rec.RepairBalance(ctx, group.ID)
	if err != nil {
		t.Fatalf("second RepairBalance failed: %v", err)
	}
	if !again.TotalPooled.Equal(decimal.NewFromInt(500)) {
		t.Errorf("balance after second repair = %s, want 500", again.TotalPooled)
	}
}
