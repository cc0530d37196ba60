package proofs

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rivalapex/vra/internal/model"
)

// canonicalLine renders a delta in the fixed field order hashed into the
// digest. Amounts and confidences use fixed scale so equal values always
// serialize the same way.
func canonicalLine(d model.ReconcileDelta) string {
	return strings.Join([]string{
		d.EvidenceID,
		string(d.Kind),
		d.WindowStart.UTC().Format(time.RFC3339),
		d.WindowEnd.UTC().Format(time.RFC3339),
		d.Currency,
		d.Amount.StringFixed(6),
		d.Confidence.StringFixed(4),
		d.ReasonCode,
	}, "|")
}

// Digest returns the hex SHA-256 over the canonical lines of deltas, ordered
// by evidence id. Input order does not matter.
func Digest(deltas []model.ReconcileDelta) string {
	lines := make([]string, len(deltas))
	for i, d := range deltas {
		lines[i] = canonicalLine(d)
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Coverage is linked expected revenue as a percentage of all expected
// revenue, rounded to two places. Zero expected revenue gives zero.
func Coverage(linked, expected decimal.Decimal) decimal.Decimal {
	if !expected.IsPositive() {
		return decimal.Zero
	}
	return linked.Div(expected).Mul(decimal.NewFromInt(100)).Round(2)
}
