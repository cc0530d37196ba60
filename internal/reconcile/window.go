package reconcile

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidWindow  = errors.New("window start must be before end")
	ErrWindowTooLarge = errors.New("window exceeds maximum span")
)

// Window is a half-open time range [From, To).
type Window struct {
	From   time.Time
	To     time.Time
	DryRun bool
}

// Span returns To - From.
func (w Window) Span() time.Duration {
	return w.To.Sub(w.From)
}

// CheckWindow applies the operator guardrail: from must precede to, and a
// span above maxSpan needs both force and yes. The check is the same whether or
// not the run is a dry run.
func CheckWindow(from, to time.Time, maxSpan time.Duration, force, yes bool) error {
	if !from.Before(to) {
		return fmt.Errorf("%w: from %s, to %s", ErrInvalidWindow,
			from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	}
	if span := to.Sub(from); span > maxSpan && !(force && yes) {
		return fmt.Errorf("%w: %s > %s (pass --force --yes to override)", ErrWindowTooLarge, span, maxSpan)
	}
	return nil
}

// Split cuts [from, to) into consecutive sub-windows of at most step. The last
// one is truncated at to.
func Split(from, to time.Time, step time.Duration) []Window {
	if step <= 0 || !from.Before(to) {
		return nil
	}
	var out []Window
	for cur := from; cur.Before(to); cur = cur.Add(step) {
		end := cur.Add(step)
		if end.After(to) {
			end = to
		}
		out = append(out, Window{From: cur, To: end})
	}
	return out
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
