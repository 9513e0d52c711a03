package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeSplit(t *testing.T) {
	tests := []struct {
		name        string
		total       string
		memberCount int
		want        string
		wantErr     error
	}{
		{
			name:        "even split",
			total:       "5000",
			memberCount: 4,
			want:        "1250",
		},
		{
			name:        "uneven split rounds to paise",
			total:       "100",
			memberCount: 3,
			want:        "33.33",
		},
		{
			name:        "single member gets the whole total",
			total:       "99.99",
			memberCount: 1,
			want:        "99.99",
		},
		{
			name:        "half-paise rounds away from zero",
			total:       "0.25",
			memberCount: 2,
			want:        "0.13",
		},
		{
			name:        "zero total",
			total:       "0",
			memberCount: 2,
			wantErr:     ErrInvalidAmount,
		},
		{
			name:        "negative total",
			total:       "-10",
			memberCount: 2,
			wantErr:     ErrInvalidAmount,
		},
		{
			name:        "zero members",
			total:       "100",
			memberCount: 0,
			wantErr:     ErrInvalidMemberCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeSplit(decimal.RequireFromString(tt.total), tt.memberCount)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ComputeSplit() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ComputeSplit() unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ComputeSplit() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComputeSplitDriftBound(t *testing.T) {
	// 100/3 = 33.33 each; 3 * 33.33 = 99.99, drift 0.01 <= 3 * 0.005.
	total := decimal.RequireFromString("100")
	share, err := ComputeSplit(total, 3)
	if err != nil {
		t.Fatalf("ComputeSplit() unexpected error: %v", err)
	}

	sum := share.Mul(decimal.NewFromInt(3))
	drift := total.Sub(sum).Abs()
	bound := decimal.RequireFromString("0.015")
	if drift.GreaterThan(bound) {
		t.Errorf("drift %s exceeds bound %s", drift, bound)
	}
}

func TestComputeShares(t *testing.T) {
	tests := []struct {
		name        string
		total       string
		memberCount int
		policy      RemainderPolicy
		want        []string
	}{
		{
			name:        "drift keeps equal shares",
			total:       "100",
			memberCount: 3,
			policy:      RemainderDrift,
			want:        []string{"33.33", "33.33", "33.33"},
		},
		{
			name:        "last member absorbs remainder",
			total:       "100",
			memberCount: 3,
			policy:      RemainderLastAbsorbs,
			want:        []string{"33.33", "33.33", "33.34"},
		},
		{
			name:        "even split is identical under both policies",
			total:       "5000",
			memberCount: 4,
			policy:      RemainderLastAbsorbs,
			want:        []string{"1250", "1250", "1250", "1250"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := decimal.RequireFromString(tt.total)
			shares, err := ComputeShares(total, tt.memberCount, tt.policy)
			if err != nil {
				t.Fatalf("ComputeShares() unexpected error: %v", err)
			}
			if len(shares) != len(tt.want) {
				t.Fatalf("ComputeShares() returned %d shares, want %d", len(shares), len(tt.want))
			}
			for i, want := range tt.want {
				if !shares[i].Equal(decimal.RequireFromString(want)) {
					t.Errorf("share[%d] = %s, want %s", i, shares[i], want)
				}
			}

			if tt.policy == RemainderLastAbsorbs {
				sum := decimal.Zero
				for _, s := range shares {
					sum = sum.Add(s)
				}
				if !sum.Equal(total) {
					t.Errorf("shares sum to %s, want exactly %s", sum, total)
				}
			}
		})
	}
}

func TestParseRemainderPolicy(t *testing.T) {
	if ParseRemainderPolicy("last") != RemainderLastAbsorbs {
		t.Error(`ParseRemainderPolicy("last") != RemainderLastAbsorbs`)
	}
	if ParseRemainderPolicy("drift") != RemainderDrift {
		t.Error(`ParseRemainderPolicy("drift") != RemainderDrift`)
	}
	if ParseRemainderPolicy("bogus") != RemainderDrift {
		t.Error("unknown policy should fall back to RemainderDrift")
	}
}
