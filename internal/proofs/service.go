// Package proofs issues the signed monthly digest over delta evidence.
package proofs

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rivalapex/vra/internal/id"
	"github.com/rivalapex/vra/internal/logger"
	"github.com/rivalapex/vra/internal/model"
)

// Store is the persistence the digest service needs.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=service.go Store
type Store interface {
	MonthDeltas(ctx context.Context, from, to time.Time) ([]model.ReconcileDelta, error)
	// MonthCoverage returns expected USD linked to a statement and all
	// expected USD with ts in [from, to).
	MonthCoverage(ctx context.Context, from, to time.Time) (linked, expected decimal.Decimal, err error)
	// GetDigest returns nil, nil when the month has no digest yet.
	GetDigest(ctx context.Context, month string) (*model.MonthlyDigest, error)
	InsertDigest(ctx context.Context, d model.MonthlyDigest) error
	UpdateDigest(ctx context.Context, d model.MonthlyDigest) error
}

// Action is what Issue did with the digest row.
type Action string

const (
	ActionDryRun   Action = "dry_run"
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
)

// IssueResult describes an issued (or would-be) digest.
type IssueResult struct {
	Digest     model.MonthlyDigest
	Action     Action
	DeltaCount int
}

// Service computes, signs and stores monthly digests.
type Service struct {
	store  Store
	signer *Signer
	now    func() time.Time
}

// NewService creates a digest Service.
func NewService(store Store, signer *Signer) *Service {
	return &Service{store: store, signer: signer, now: time.Now}
}

// Issue builds the digest for month (YYYY-MM). A dry run computes and signs
// but does not touch the digest table. Otherwise the existing row, if any, is
// updated in place.
func (s *Service) Issue(ctx context.Context, month string, dryRun bool) (IssueResult, error) {
	from, to, err := id.MonthBounds(month)
	if err != nil {
		return IssueResult{}, err
	}
	log := logger.FromContext(ctx).WithField("month", month)

	deltas, err := s.store.MonthDeltas(ctx, from, to)
	if err != nil {
		return IssueResult{}, fmt.Errorf("loading deltas for %s: %w", month, err)
	}
	linked, expected, err := s.store.MonthCoverage(ctx, from, to)
	if err != nil {
		return IssueResult{}, fmt.Errorf("loading coverage for %s: %w", month, err)
	}

	digest := Digest(deltas)
	now := s.now().UTC().Truncate(time.Second)
	d := model.MonthlyDigest{
		Month:       month,
		Digest:      digest,
		Signature:   s.signer.Sign(digest),
		CoveragePct: Coverage(linked, expected),
		Notes:       fmt.Sprintf("deltas=%d pubkey=%s", len(deltas), s.signer.PublicKeyBase64()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res := IssueResult{Digest: d, DeltaCount: len(deltas)}

	if dryRun {
		res.Action = ActionDryRun
		log.WithFields(logrus.Fields{"digest": digest, "deltas": len(deltas)}).Info("digest computed (dry run)")
		return res, nil
	}

	existing, err := s.store.GetDigest(ctx, month)
	if err != nil {
		return IssueResult{}, fmt.Errorf("reading digest for %s: %w", month, err)
	}
	if existing == nil {
		if err := s.store.InsertDigest(ctx, d); err != nil {
			return IssueResult{}, fmt.Errorf("inserting digest for %s: %w", month, err)
		}
		res.Action = ActionInserted
	} else {
		d.CreatedAt = existing.CreatedAt
		if err := s.store.UpdateDigest(ctx, d); err != nil {
			return IssueResult{}, fmt.Errorf("updating digest for %s: %w", month, err)
		}
		res.Digest = d
		res.Action = ActionUpdated
	}
	log.WithFields(logrus.Fields{
		"action":       res.Action,
		"digest":       digest,
		"coverage_pct": d.CoveragePct.String(),
	}).Info("digest issued")
	return res, nil
}
