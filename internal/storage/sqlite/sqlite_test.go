package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/poolpay/poolpay/internal/models"
	"github.com/poolpay/poolpay/internal/storage"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGroupRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	group := models.NewGroup("Flat 4B", "shared utilities", "user-1")
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	got, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if got.Name != "Flat 4B" || got.Description != "shared utilities" {
		t.Errorf("got %q/%q", got.Name, got.Description)
	}
	if got.Status != models.GroupActive {
		t.Errorf("status = %s, want active", got.Status)
	}
	if !got.TotalPooled.Equal(decimal.Zero) {
		t.Errorf("totalPooled = %s, want 0", got.TotalPooled)
	}
	if got.Version != 0 {
		t.Errorf("version = %d, want 0", got.Version)
	}

	if _, err := store.GetGroup(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetGroup(nope) error = %v, want ErrNotFound", err)
	}
}

func TestMembers(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	group := models.NewGroup("Trip", "", "user-1")
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	admin := models.NewMember(group.ID, "user-1", "Asha", "asha@okhdfcbank", models.RoleAdmin)
	if err := store.CreateMember(ctx, admin); err != nil {
		t.Fatalf("CreateMember failed: %v", err)
	}

	// Same user cannot join twice.
	dup := models.NewMember(group.ID, "user-1", "Asha again", "asha@ybl", models.RoleMember)
	if err := store.CreateMember(ctx, dup); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate member error = %v, want ErrConflict", err)
	}

	byUser, err := store.GetMemberByUser(ctx, group.ID, "user-1")
	if err != nil {
		t.Fatalf("GetMemberByUser failed: %v", err)
	}
	if byUser.ID != admin.ID {
		t.Errorf("GetMemberByUser returned %s, want %s", byUser.ID, admin.ID)
	}

	members, err := store.ListMembers(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("len(members) = %d, want 1", len(members))
	}

	groups, err := store.ListGroupsByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListGroupsByUser failed: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != group.ID {
		t.Errorf("ListGroupsByUser = %v", groups)
	}
}

func TestRequestQueries(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	group := models.NewGroup("Trip", "", "user-1")
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	member := models.NewMember(group.ID, "user-1", "Asha", "asha@okhdfcbank", models.RoleAdmin)
	if err := store.CreateMember(ctx, member); err != nil {
		t.Fatalf("CreateMember failed: %v", err)
	}

	req := models.NewPaymentRequest(group.ID, member.ID, decimal.NewFromInt(100), "Dinner", models.ModeP2P)
	req.RequestedAt = time.Now().Add(-48 * time.Hour).Unix()
	if err := store.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	got, err := store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if got.Status != models.RequestPending || !got.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("got %s %s", got.Status, got.Amount)
	}
	if got.Mode != models.ModeP2P {
		t.Errorf("mode = %s, want p2p", got.Mode)
	}

	byGroup, err := store.ListRequestsByGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListRequestsByGroup failed: %v", err)
	}
	if len(byGroup) != 1 {
		t.Errorf("len(byGroup) = %d, want 1", len(byGroup))
	}

	byMember, err := store.ListRequestsByMember(ctx, member.ID)
	if err != nil {
		t.Fatalf("ListRequestsByMember failed: %v", err)
	}
	if len(byMember) != 1 {
		t.Errorf("len(byMember) = %d, want 1", len(byMember))
	}

	// The 48h-old pending request shows up for a 24h TTL sweep.
	stale, err := store.ListPendingBefore(ctx, time.Now().Add(-24*time.Hour).Unix())
	if err != nil {
		t.Fatalf("ListPendingBefore failed: %v", err)
	}
	if len(stale) != 1 {
		t.Errorf("len(stale) = %d, want 1", len(stale))
	}

	// But not once it has left pending.
	ops := []storage.WriteOp{storage.UpdateRequestStatus{
		RequestID: req.ID, From: models.RequestPending, To: models.RequestExpired,
		RespondedAt: time.Now().Unix(),
	}}
	if err := store.RunAtomic(ctx, ops); err != nil {
		t.Fatalf("RunAtomic failed: %v", err)
	}
	stale, err = store.ListPendingBefore(ctx, time.Now().Add(-24*time.Hour).Unix())
	if err != nil {
		t.Fatalf("ListPendingBefore failed: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("len(stale) = %d, want 0", len(stale))
	}
}

func TestRunAtomicCommitsAllOps(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	group := models.NewGroup("Trip", "", "user-1")
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	member := models.NewMember(group.ID, "user-1", "Asha", "asha@okhdfcbank", models.RoleAdmin)
	if err := store.CreateMember(ctx, member); err != nil {
		t.Fatalf("CreateMember failed: %v", err)
	}
	req := models.NewPaymentRequest(group.ID, member.ID, decimal.NewFromInt(500), "Dinner", models.ModeP2P)
	if err := store.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	tx := models.NewTransaction(group.ID, member.ID, models.PoolIn, decimal.NewFromInt(500), "accepted", "")
	ops := []storage.WriteOp{
		storage.UpdateRequestStatus{RequestID: req.ID, From: models.RequestPending, To: models.RequestAccepted, RespondedAt: time.Now().Unix()},
		storage.AppendTransaction{Tx: tx},
		storage.UpdateGroupBalance{GroupID: group.ID, NewTotal: decimal.NewFromInt(500), Version: 0},
		storage.IncrementMemberContribution{MemberID: member.ID, Delta: decimal.NewFromInt(500)},
	}
	if err := store.RunAtomic(ctx, ops); err != nil {
		t.Fatalf("RunAtomic failed: %v", err)
	}

	gotGroup, _ := store.GetGroup(ctx, group.ID)
	if !gotGroup.TotalPooled.Equal(decimal.NewFromInt(500)) || gotGroup.Version != 1 {
		t.Errorf("group = %s v%d, want 500 v1", gotGroup.TotalPooled, gotGroup.Version)
	}
	gotMember, _ := store.GetMember(ctx, member.ID)
	if !gotMember.ContributedAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("contributedAmount = %s, want 500", gotMember.ContributedAmount)
	}
	txs, _ := store.ListTransactions(ctx, group.ID)
	if len(txs) != 1 {
		t.Errorf("len(txs) = %d, want 1", len(txs))
	}
}

func TestRunAtomicRollsBackOnConflict(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	group := models.NewGroup("Trip", "", "user-1")
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	// Transaction append precedes a balance write carrying a stale
	// version; neither may stick.
	tx := models.NewTransaction(group.ID, "", models.PoolIn, decimal.NewFromInt(100), "orphan", "")
	ops := []storage.WriteOp{
		storage.AppendTransaction{Tx: tx},
		storage.UpdateGroupBalance{GroupID: group.ID, NewTotal: decimal.NewFromInt(100), Version: 7},
	}
	err := store.RunAtomic(ctx, ops)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("RunAtomic error = %v, want ErrConflict", err)
	}

	txs, err := store.ListTransactions(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("rolled-back batch left %d transactions", len(txs))
	}
	gotGroup, _ := store.GetGroup(ctx, group.ID)
	if !gotGroup.TotalPooled.Equal(decimal.Zero) {
		t.Errorf("totalPooled = %s, want 0", gotGroup.TotalPooled)
	}
}

func TestRunAtomicIdempotencyKey(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	group := models.NewGroup("Trip", "", "user-1")
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	first := models.NewTransaction(group.ID, "", models.PoolIn, decimal.NewFromInt(100), "pay", "key-1")
	if err := store.RunAtomic(ctx, []storage.WriteOp{storage.AppendTransaction{Tx: first}}); err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	second := models.NewTransaction(group.ID, "", models.PoolIn, decimal.NewFromInt(100), "pay", "key-1")
	err := store.RunAtomic(ctx, []storage.WriteOp{storage.AppendTransaction{Tx: second}})
	if !errors.Is(err, storage.ErrDuplicateTransaction) {
		t.Fatalf("duplicate key error = %v, want ErrDuplicateTransaction", err)
	}

	// Transactions without keys never collide.
	third := models.NewTransaction(group.ID, "", models.PoolIn, decimal.NewFromInt(100), "pay", "")
	fourth := models.NewTransaction(group.ID, "", models.PoolIn, decimal.NewFromInt(100), "pay", "")
	if err := store.RunAtomic(ctx, []storage.WriteOp{
		storage.AppendTransaction{Tx: third},
		storage.AppendTransaction{Tx: fourth},
	}); err != nil {
		t.Fatalf("keyless appends failed: %v", err)
	}
}

func TestListTransactionsOrdered(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	group := models.NewGroup("Trip", "", "user-1")
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	times := []int64{300, 100, 200}
	for _, ts := range times {
		tx := models.NewTransaction(group.ID, "", models.PoolIn, decimal.NewFromInt(1), "t", "")
		tx.CreatedAt = ts
		if err := store.RunAtomic(ctx, []storage.WriteOp{storage.AppendTransaction{Tx: tx}}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	txs, err := store.ListTransactions(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	for i := 1; i < len(txs); i++ {
		if txs[i].CreatedAt < txs[i-1].CreatedAt {
			t.Fatalf("transactions out of order: %d before %d", txs[i-1].CreatedAt, txs[i].CreatedAt)
		}
	}
}

func TestListTransactionsSameSecondKeepsAppendOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	group := models.NewGroup("Trip", "", "user-1")
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	// A pool_in and the payment_out it funds, stamped within the same
	// second. IDs sort against append order, so an id tie-break would
	// report the spend before its funding.
	now := time.Now().Unix()
	funding := models.NewTransaction(group.ID, "", models.PoolIn, decimal.NewFromInt(1000), "funding", "")
	funding.ID = "zz-" + funding.ID
	funding.CreatedAt = now
	spend := models.NewTransaction(group.ID, "", models.PaymentOut, decimal.NewFromInt(300), "spend", "")
	spend.ID = "aa-" + spend.ID
	spend.CreatedAt = now

	for _, tx := range []*models.Transaction{funding, spend} {
		if err := store.RunAtomic(ctx, []storage.WriteOp{storage.AppendTransaction{Tx: tx}}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	txs, err := store.ListTransactions(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len(txs) = %d, want 2", len(txs))
	}
	if txs[0].ID != funding.ID || txs[1].ID != spend.ID {
		t.Errorf("read order = %s, %s; want funding before spend", txs[0].Type, txs[1].Type)
	}
}
