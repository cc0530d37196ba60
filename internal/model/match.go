package model

import "fmt"

// KeysUsed records how a match was established.
type KeysUsed string

const (
	KeysExact KeysUsed = "exact"
	KeysFuzzy KeysUsed = "fuzzy"
)

// Bucket is the classification of a match result.
type Bucket string

const (
	BucketAuto      Bucket = "auto"
	BucketReview    Bucket = "review"
	BucketUnmatched Bucket = "unmatched"
)

// MatchResult pairs one statement with at most one expected row.
type MatchResult struct {
	Network     string
	StatementID string
	RequestID   string // empty when unmatched
	Confidence  float64
	KeysUsed    KeysUsed
	Bucket      Bucket
	Notes       []string
}

// Validate checks the confidence range and the exact-key invariant.
func (m MatchResult) Validate() error {
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("match %s/%s: confidence %v outside [0,1]", m.Network, m.StatementID, m.Confidence)
	}
	if m.KeysUsed == KeysExact && m.Confidence != 1 {
		return fmt.Errorf("match %s/%s: exact match with confidence %v", m.Network, m.StatementID, m.Confidence)
	}
	return nil
}
