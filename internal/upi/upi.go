// Package upi constructs UPI deep-link URIs. These are plain strings with
// no network effect; opening them is a platform-level concern outside this
// server's responsibility.
package upi

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// PayeeName is the payee display name carried on collect requests sent on
// behalf of the platform.
const PayeeName = "PoolPay"

var phoneRe = regexp.MustCompile(`^\d{10}$`)

// NormalizePayee maps a 10-digit phone number to its default UPI handle
// (<phone>@paytm); anything else is assumed to already be a UPI address
// and is returned unchanged.
func NormalizePayee(merchantID string) string {
	if phoneRe.MatchString(merchantID) {
		return merchantID + "@paytm"
	}
	return merchantID
}

// EscrowAddress returns the virtual account address funds are routed
// through in escrow mode. Settlement of this account is handled by the
// external payment rail.
func EscrowAddress(groupID string) string {
	return fmt.Sprintf("poolpay.%s@cashfree", groupID)
}

// BuildPaymentURI builds a upi://pay deep link for the given payee and
// amount in minor units (paise). The mode=02 parameter marks the intent as
// a collect/secure transaction.
func BuildPaymentURI(payeeAddress string, amountMinorUnits int64, payeeName, note string) string {
	return fmt.Sprintf("upi://pay?pa=%s&pn=%s&am=%s&tn=%s&mode=02",
		payeeAddress,
		escape(payeeName),
		formatAmount(amountMinorUnits),
		escape(note),
	)
}

// MinorUnits converts a currency amount to minor units (paise), rounding
// to the nearest unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// formatAmount renders minor units as rupees with two decimal places,
// the format UPI apps expect in the am parameter.
func formatAmount(minorUnits int64) string {
	sign := ""
	if minorUnits < 0 {
		sign = "-"
		minorUnits = -minorUnits
	}
	return fmt.Sprintf("%s%d.%02d", sign, minorUnits/100, minorUnits%100)
}

// escape percent-encodes a query value. QueryEscape's "+" for spaces
// confuses some UPI apps, so spaces use %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
