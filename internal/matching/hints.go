package matching

import (
	"fmt"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/rivalapex/vra/internal/model"
)

// maxNearMissDistance is the edit distance under which a disagreeing hint is
// reported as a probable typo rather than a real mismatch.
const maxNearMissDistance = 2

// hintNotes explains hint disagreement for a scored pair. Near misses do not
// change the score; they tell a reviewer where to look.
func hintNotes(s model.StatementRow, e model.ExpectedRow) []string {
	var notes []string
	for _, p := range hintPairs(s, e) {
		if p.hint == "" || p.statement == "" {
			continue
		}
		a, b := normalize(p.statement), normalize(p.hint)
		if a == b {
			continue
		}
		d := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
		if d <= maxNearMissDistance && len(a) > maxNearMissDistance {
			notes = append(notes, fmt.Sprintf("%s near miss %q vs %q (distance %d)", p.name, p.statement, p.hint, d))
		} else {
			notes = append(notes, fmt.Sprintf("%s mismatch %q vs %q", p.name, p.statement, p.hint))
		}
	}
	return notes
}
