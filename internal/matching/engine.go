package matching

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rivalapex/vra/internal/model"
)

// Options tunes MatchStatementsToExpected.
type Options struct {
	TimeWindowSec   int
	AutoThreshold   float64
	ReviewThreshold float64
	Workers         int // 0 = GOMAXPROCS
}

// DefaultOptions returns the standard thresholds: auto at 0.8, review at 0.5.
func DefaultOptions() Options {
	return Options{
		TimeWindowSec:   3600,
		AutoThreshold:   0.8,
		ReviewThreshold: 0.5,
	}
}

// Window returns the search radius as a duration.
func (o Options) Window() time.Duration {
	return time.Duration(o.TimeWindowSec) * time.Second
}

// Result holds match results grouped by bucket. Each bucket keeps the
// statements' input order.
type Result struct {
	Auto      []model.MatchResult
	Review    []model.MatchResult
	Unmatched []model.MatchResult
}

// All returns every result, auto first.
func (r Result) All() []model.MatchResult {
	all := make([]model.MatchResult, 0, len(r.Auto)+len(r.Review)+len(r.Unmatched))
	all = append(all, r.Auto...)
	all = append(all, r.Review...)
	return append(all, r.Unmatched...)
}

// Claimed returns the results that hold an expected row (auto and review).
func (r Result) Claimed() []model.MatchResult {
	claimed := make([]model.MatchResult, 0, len(r.Auto)+len(r.Review))
	claimed = append(claimed, r.Auto...)
	return append(claimed, r.Review...)
}

type scoredPair struct {
	stmt       int
	exp        int
	confidence float64
	keys       model.KeysUsed
}

// MatchStatementsToExpected pairs each statement with at most one expected
// row. Pairs are claimed in order of descending confidence, then earliest
// expected ts, then requestId, so no expected row is claimed twice and the
// outcome does not depend on scoring order. Persisting results is the
// caller's job.
func MatchStatementsToExpected(ctx context.Context, statements []model.StatementRow, expected []model.ExpectedRow, opts Options) (Result, error) {
	if opts.ReviewThreshold > opts.AutoThreshold {
		return Result{}, fmt.Errorf("review threshold %.2f above auto threshold %.2f", opts.ReviewThreshold, opts.AutoThreshold)
	}
	window := opts.Window()

	exp := make([]model.ExpectedRow, len(expected))
	copy(exp, expected)
	sort.SliceStable(exp, func(i, j int) bool {
		if !exp[i].TS.Equal(exp[j].TS) {
			return exp[i].TS.Before(exp[j].TS)
		}
		return exp[i].RequestID < exp[j].RequestID
	})

	perStmt := make([][]scoredPair, len(statements))
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range statements {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perStmt[i] = scoreStatement(i, statements[i], exp, window)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("scoring candidates: %w", err)
	}

	var pairs []scoredPair
	for _, ps := range perStmt {
		for _, p := range ps {
			if p.confidence >= opts.ReviewThreshold {
				pairs = append(pairs, p)
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if !exp[a.exp].TS.Equal(exp[b.exp].TS) {
			return exp[a.exp].TS.Before(exp[b.exp].TS)
		}
		if exp[a.exp].RequestID != exp[b.exp].RequestID {
			return exp[a.exp].RequestID < exp[b.exp].RequestID
		}
		return a.stmt < b.stmt
	})

	assigned := make([]int, len(statements))
	for i := range assigned {
		assigned[i] = -1
	}
	chosen := make([]scoredPair, len(statements))
	claimed := make([]bool, len(exp))
	for _, p := range pairs {
		if assigned[p.stmt] >= 0 || claimed[p.exp] {
			continue
		}
		assigned[p.stmt] = p.exp
		chosen[p.stmt] = p
		claimed[p.exp] = true
	}

	var res Result
	for i, s := range statements {
		if assigned[i] < 0 {
			mr := unmatchedResult(s, perStmt[i], claimed)
			if err := mr.Validate(); err != nil {
				return Result{}, err
			}
			res.Unmatched = append(res.Unmatched, mr)
			continue
		}
		p := chosen[i]
		mr := model.MatchResult{
			Network:     s.Network,
			StatementID: s.StatementID,
			RequestID:   exp[p.exp].RequestID,
			Confidence:  p.confidence,
			KeysUsed:    p.keys,
		}
		if err := mr.Validate(); err != nil {
			return Result{}, err
		}
		if p.confidence >= opts.AutoThreshold {
			mr.Bucket = model.BucketAuto
			res.Auto = append(res.Auto, mr)
		} else {
			mr.Bucket = model.BucketReview
			mr.Notes = hintNotes(s, exp[p.exp])
			res.Review = append(res.Review, mr)
		}
	}
	return res, nil
}

// scoreStatement scores every expected row inside the time window. An echoed
// request id only counts for a row in the window.
func scoreStatement(idx int, s model.StatementRow, exp []model.ExpectedRow, window time.Duration) []scoredPair {
	lo := sort.Search(len(exp), func(j int) bool { return !exp[j].TS.Before(s.EventDate.Add(-window)) })
	hi := sort.Search(len(exp), func(j int) bool { return exp[j].TS.After(s.EventDate.Add(window)) })

	var pairs []scoredPair
	for j := lo; j < hi; j++ {
		conf, keys := ScoreCandidate(s, exp[j], window)
		pairs = append(pairs, scoredPair{stmt: idx, exp: j, confidence: conf, keys: keys})
	}
	return pairs
}

func unmatchedResult(s model.StatementRow, pairs []scoredPair, claimed []bool) model.MatchResult {
	mr := model.MatchResult{
		Network:     s.Network,
		StatementID: s.StatementID,
		KeysUsed:    model.KeysFuzzy,
		Bucket:      model.BucketUnmatched,
	}
	if len(pairs) == 0 {
		mr.Notes = []string{"no expected row within time window"}
		return mr
	}
	best := 0.0
	for _, p := range pairs {
		if !claimed[p.exp] && p.confidence > best {
			best = p.confidence
		}
	}
	mr.Confidence = best
	mr.Notes = []string{fmt.Sprintf("best unclaimed candidate scored %.3f", best)}
	return mr
}
