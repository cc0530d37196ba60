package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalapex/vra/internal/model"
)

func TestMatch_ExactAndFuzzyBuckets(t *testing.T) {
	exact := stmt("s-exact", t0, "0.50")
	exact.RequestID = "req-exact"
	fuzzy := stmt("s-fuzzy", t0.Add(2*time.Hour), "1.00")
	review := stmt("s-review", t0.Add(4*time.Hour), "1.00")
	lonely := stmt("s-lonely", t0.Add(48*time.Hour), "1.00")

	expected := []model.ExpectedRow{
		expRow("req-exact", t0.Add(45*time.Minute), "0.75"),
		expRow("req-fuzzy", t0.Add(2*time.Hour+time.Minute), "1.00"),
		noHints(expRow("req-review", t0.Add(4*time.Hour+20*time.Minute), "0.90")),
	}

	res, err := MatchStatementsToExpected(context.Background(),
		[]model.StatementRow{exact, fuzzy, review, lonely}, expected, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, res.Auto, 2)
	assert.Equal(t, "req-exact", res.Auto[0].RequestID)
	assert.Equal(t, model.KeysExact, res.Auto[0].KeysUsed)
	assert.Equal(t, 1.0, res.Auto[0].Confidence)
	assert.Equal(t, "req-fuzzy", res.Auto[1].RequestID)
	assert.Equal(t, model.KeysFuzzy, res.Auto[1].KeysUsed)

	require.Len(t, res.Review, 1)
	assert.Equal(t, "req-review", res.Review[0].RequestID)
	assert.Equal(t, model.BucketReview, res.Review[0].Bucket)
	assert.GreaterOrEqual(t, res.Review[0].Confidence, 0.5)
	assert.Less(t, res.Review[0].Confidence, 0.8)

	require.Len(t, res.Unmatched, 1)
	assert.Equal(t, "s-lonely", res.Unmatched[0].StatementID)
	assert.Empty(t, res.Unmatched[0].RequestID)
	assert.Zero(t, res.Unmatched[0].Confidence)

	for _, r := range res.All() {
		assert.NoError(t, r.Validate())
	}
}

func TestMatch_EchoedIDOutsideWindowIsUnmatched(t *testing.T) {
	s := stmt("s-late", t0.Add(3*time.Hour), "1.00")
	s.RequestID = "req-1"
	expected := []model.ExpectedRow{expRow("req-1", t0, "1.00")}

	res, err := MatchStatementsToExpected(context.Background(), []model.StatementRow{s}, expected, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Auto)
	assert.Empty(t, res.Review)
	require.Len(t, res.Unmatched, 1)
	assert.Empty(t, res.Unmatched[0].RequestID)
	assert.Equal(t, []string{"no expected row within time window"}, res.Unmatched[0].Notes)

	// the same echo inside the window is exact
	s.EventDate = t0.Add(30 * time.Minute)
	res, err = MatchStatementsToExpected(context.Background(), []model.StatementRow{s}, expected, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Auto, 1)
	assert.Equal(t, model.KeysExact, res.Auto[0].KeysUsed)
}

func TestMatch_NoDoubleClaim(t *testing.T) {
	a := stmt("s-a", t0, "1.00")
	b := stmt("s-b", t0.Add(time.Minute), "1.00")
	expected := []model.ExpectedRow{expRow("req-1", t0, "1.00")}

	res, err := MatchStatementsToExpected(context.Background(), []model.StatementRow{a, b}, expected, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, res.Auto, 1)
	assert.Equal(t, "s-a", res.Auto[0].StatementID)
	require.Len(t, res.Unmatched, 1)
	assert.Equal(t, "s-b", res.Unmatched[0].StatementID)
	// the only candidate is taken
	assert.Zero(t, res.Unmatched[0].Confidence)

	claims := map[string]int{}
	for _, r := range res.Claimed() {
		claims[r.RequestID]++
	}
	for req, n := range claims {
		assert.Equal(t, 1, n, req)
	}
}

func TestMatch_TieBreakIsDeterministic(t *testing.T) {
	s := stmt("s1", t0.Add(30*time.Minute), "1.00")
	// equidistant and equally scored; earliest ts wins, then requestId
	before := expRow("req-b", t0, "1.00")
	after := expRow("req-a", t0.Add(time.Hour), "1.00")
	sameTS := expRow("req-0", t0, "1.00")

	for i := 0; i < 20; i++ {
		res, err := MatchStatementsToExpected(context.Background(),
			[]model.StatementRow{s}, []model.ExpectedRow{after, before, sameTS}, Options{
				TimeWindowSec: 3600, AutoThreshold: 0.8, ReviewThreshold: 0.5, Workers: 4,
			})
		require.NoError(t, err)
		require.Len(t, res.Auto, 1)
		assert.Equal(t, "req-0", res.Auto[0].RequestID)
	}
}

func TestMatch_GreedyPrefersHigherConfidence(t *testing.T) {
	// s1 could take either row but s2 fits req-2 far better
	s1 := stmt("s1", t0, "1.00")
	s2 := stmt("s2", t0.Add(40*time.Minute), "2.00")
	expected := []model.ExpectedRow{
		expRow("req-1", t0.Add(10*time.Minute), "1.00"),
		expRow("req-2", t0.Add(40*time.Minute), "2.00"),
	}

	res, err := MatchStatementsToExpected(context.Background(), []model.StatementRow{s1, s2}, expected, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Auto, 2)
	assert.Equal(t, "req-1", res.Auto[0].RequestID)
	assert.Equal(t, "req-2", res.Auto[1].RequestID)
}

func TestMatch_UnmatchedKeepsBestUnclaimedScore(t *testing.T) {
	s := stmt("s1", t0, "1.00")
	far := noHints(expRow("req-far", t0.Add(55*time.Minute), "3.00"))

	res, err := MatchStatementsToExpected(context.Background(), []model.StatementRow{s}, []model.ExpectedRow{far}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Unmatched, 1)
	assert.Greater(t, res.Unmatched[0].Confidence, 0.0)
	assert.Less(t, res.Unmatched[0].Confidence, 0.5)
	assert.Empty(t, res.Unmatched[0].RequestID)
}

func TestMatch_ReviewCarriesHintNotes(t *testing.T) {
	s := stmt("s1", t0, "1.00")
	e := expRow("req-1", t0.Add(10*time.Minute), "0.90")
	e.AdUnitIDHint = "ad_unit_13"
	e.AppIDHint, e.CountryHint, e.FormatHint = "", "", ""

	res, err := MatchStatementsToExpected(context.Background(), []model.StatementRow{s}, []model.ExpectedRow{e}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Review, 1)
	require.NotEmpty(t, res.Review[0].Notes)
	assert.Contains(t, res.Review[0].Notes[0], "near miss")
}

func TestMatch_InvalidThresholds(t *testing.T) {
	_, err := MatchStatementsToExpected(context.Background(), nil, nil, Options{TimeWindowSec: 60, AutoThreshold: 0.5, ReviewThreshold: 0.8})
	assert.Error(t, err)
}

func TestMatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := MatchStatementsToExpected(ctx, []model.StatementRow{stmt("s1", t0, "1")}, nil, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}
