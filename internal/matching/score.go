package matching

import (
	"math"
	"strings"
	"time"

	"github.com/rivalapex/vra/internal/model"
)

// Signal weights. Time and amount make up the base score; agreeing hints
// close the remaining gap to 1.0 in proportion to amount agreement.
const (
	timeWeight    = 0.45
	amountWeight  = 0.40
	hintIncrement = 0.23
	amountEpsilon = 1e-9
)

// ScoreCandidate returns the match confidence between a statement and an
// expected row. window bounds the time-proximity signal.
func ScoreCandidate(s model.StatementRow, e model.ExpectedRow, window time.Duration) (float64, model.KeysUsed) {
	if s.RequestID != "" && s.RequestID == e.RequestID {
		return 1.0, model.KeysExact
	}

	amount := amountProximity(s, e)
	base := timeWeight*timeProximity(s.EventDate, e.TS, window) + amountWeight*amount

	h := hintIncrement * float64(agreeingHints(s, e))
	score := base + (1-base)*h*amount
	return clamp01(score), model.KeysFuzzy
}

// InWindow reports whether the rows are close enough in time to be compared.
func InWindow(s model.StatementRow, e model.ExpectedRow, window time.Duration) bool {
	return absDuration(s.EventDate.Sub(e.TS)) <= window
}

func timeProximity(a, b time.Time, window time.Duration) float64 {
	d := absDuration(a.Sub(b))
	if window <= 0 {
		if d == 0 {
			return 1
		}
		return 0
	}
	if d >= window {
		return 0
	}
	return 1 - float64(d)/float64(window)
}

func amountProximity(s model.StatementRow, e model.ExpectedRow) float64 {
	paid := s.PaidUSD.InexactFloat64()
	expected := e.ExpectedUSD.InexactFloat64()
	rel := math.Abs(paid-expected) / math.Max(expected, amountEpsilon)
	return math.Max(0, 1-rel)
}

type hintPair struct {
	name      string
	statement string
	hint      string
}

func hintPairs(s model.StatementRow, e model.ExpectedRow) []hintPair {
	return []hintPair{
		{"appId", s.AppID, e.AppIDHint},
		{"adUnitId", s.AdUnitID, e.AdUnitIDHint},
		{"country", s.Country, e.CountryHint},
		{"format", s.Format, e.FormatHint},
	}
}

// agreeingHints counts present hints equal to the statement value. Absent
// hints neither help nor penalize.
func agreeingHints(s model.StatementRow, e model.ExpectedRow) int {
	n := 0
	for _, p := range hintPairs(s, e) {
		if p.hint == "" || p.statement == "" {
			continue
		}
		if normalize(p.statement) == normalize(p.hint) {
			n++
		}
	}
	return n
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
