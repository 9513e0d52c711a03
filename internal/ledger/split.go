// Package ledger implements the group ledger core: the split calculator,
// the payment-request lifecycle, and the balance reconciler. All
// state-changing operations go through a single atomic multi-write against
// the injected storage.Store, so the pooled balance and the transaction
// log can never diverge partially.
package ledger

import "github.com/shopspring/decimal"

// RemainderPolicy controls what happens to the rounding remainder when a
// total does not divide evenly into per-member shares.
type RemainderPolicy int

const (
	// RemainderDrift gives every member the same rounded share and
	// tolerates the resulting drift between sum-of-shares and total.
	// The drift is bounded by memberCount * 0.005 currency units.
	RemainderDrift RemainderPolicy = iota

	// RemainderLastAbsorbs adjusts the final member's share so the shares
	// sum exactly to the total.
	RemainderLastAbsorbs
)

// ParseRemainderPolicy maps a config string to a policy; unknown values
// fall back to RemainderDrift.
func ParseRemainderPolicy(s string) RemainderPolicy {
	if s == "last" {
		return RemainderLastAbsorbs
	}
	return RemainderDrift
}

// ComputeSplit divides totalAmount evenly across memberCount members,
// rounding each share to the currency's minor unit (2 decimal places,
// half away from zero). The rounding remainder is not redistributed here;
// the sum of shares may drift from totalAmount by up to
// memberCount * 0.005. Use ComputeShares with RemainderLastAbsorbs when
// exact totals matter.
func ComputeSplit(totalAmount decimal.Decimal, memberCount int) (decimal.Decimal, error) {
	if totalAmount.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	if memberCount < 1 {
		return decimal.Zero, ErrInvalidMemberCount
	}
	return totalAmount.DivRound(decimal.NewFromInt(int64(memberCount)), 2), nil
}

// ComputeShares returns one share per member under the given remainder
// policy. Under RemainderLastAbsorbs the final share is
// totalAmount - (memberCount-1) * share, so the shares sum exactly to
// totalAmount.
func ComputeShares(totalAmount decimal.Decimal, memberCount int, policy RemainderPolicy) ([]decimal.Decimal, error) {
	share, err := ComputeSplit(totalAmount, memberCount)
	if err != nil {
		return nil, err
	}

	shares := make([]decimal.Decimal, memberCount)
	for i := range shares {
		shares[i] = share
	}

	if policy == RemainderLastAbsorbs {
		allocated := share.Mul(decimal.NewFromInt(int64(memberCount - 1)))
		shares[memberCount-1] = totalAmount.Sub(allocated)
	}

	return shares, nil
}
