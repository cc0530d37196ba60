package commands

import (
	"errors"

	"github.com/rivalapex/vra/internal/checkpoint"
	"github.com/rivalapex/vra/internal/ingest"
	"github.com/rivalapex/vra/internal/store"
)

// Outcome is the result class of one CLI invocation. Its value is the
// process exit status.
type Outcome int

const (
	OK          Outcome = 0
	Warnings    Outcome = 10
	Error       Outcome = 20
	SchemaDrift Outcome = 30
	Blocked     Outcome = 40
)

// ExitCode returns the process exit status for o.
func (o Outcome) ExitCode() int { return int(o) }

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Warnings:
		return "warnings"
	case Error:
		return "error"
	case SchemaDrift:
		return "schema_drift"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// classify maps a failure to its outcome. Anything unrecognized is Error.
func classify(err error) Outcome {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, store.ErrSchemaDrift):
		return SchemaDrift
	case errors.Is(err, checkpoint.ErrLocked), errors.Is(err, ingest.ErrNetworkBlocked):
		return Blocked
	default:
		return Error
	}
}

// reconcileOutcome: a dry run that found deltas warns, since nothing was
// written. A completed run warns only on attribution ambiguity.
func reconcileOutcome(dryRun bool, deltas, inserted, warnings int) Outcome {
	if dryRun && deltas > 0 && inserted == 0 {
		return Warnings
	}
	if warnings > 0 {
		return Warnings
	}
	return OK
}

// matchOutcome warns when pairs need operator review or a dry run left
// links unwritten.
func matchOutcome(dryRun bool, claimed, review int) Outcome {
	if review > 0 || (dryRun && claimed > 0) {
		return Warnings
	}
	return OK
}

// proofsOutcome: a dry run never writes the digest row, so it always warns.
func proofsOutcome(dryRun bool) Outcome {
	if dryRun {
		return Warnings
	}
	return OK
}

// importOutcome warns when rows were skipped.
func importOutcome(skipped int) Outcome {
	if skipped > 0 {
		return Warnings
	}
	return OK
}

// stageOutcome interprets a backfill stage's exit status. Warnings let the
// backfill continue; every other non-zero status aborts it.
func stageOutcome(code int) Outcome {
	switch Outcome(code) {
	case OK:
		return OK
	case Warnings:
		return Warnings
	default:
		return Error
	}
}
