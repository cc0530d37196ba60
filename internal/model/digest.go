package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyDigest is the signed roll-up of one month's delta evidence.
// Month is the unique key; re-issuance updates the row in place.
type MonthlyDigest struct {
	Month       string // YYYY-MM
	Digest      string // hex sha-256
	Signature   string // base64 ed25519 over Digest
	CoveragePct decimal.Decimal
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
