// Package stage runs backfill stages as child processes of the vra binary.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Stage names, in execution order.
const (
	Match     = "match"
	Reconcile = "reconcile"
)

// All lists every stage in execution order.
var All = []string{Match, Reconcile}

// Valid reports whether name is a known stage.
func Valid(name string) bool {
	for _, s := range All {
		if s == name {
			return true
		}
	}
	return false
}

// Params are the per-window arguments passed to a stage.
type Params struct {
	From       time.Time
	To         time.Time
	DryRun     bool
	ConfigPath string
	DBPath     string
}

// Args builds the child command line for stage over p's window.
func Args(stage string, p Params) []string {
	args := []string{
		stage,
		"--from", p.From.UTC().Format(time.RFC3339),
		"--to", p.To.UTC().Format(time.RFC3339),
		"--dry-run", strconv.FormatBool(p.DryRun),
	}
	if p.ConfigPath != "" {
		args = append(args, "--config", p.ConfigPath)
	}
	if p.DBPath != "" {
		args = append(args, "--db", p.DBPath)
	}
	return args
}

// Runner runs one stage invocation and reports its exit code.
type Runner interface {
	Run(ctx context.Context, args []string) (int, error)
}

// ExecRunner runs a program with the given arguments.
type ExecRunner struct {
	Path   string
	Prefix []string // arguments placed before the stage args
	Stdout io.Writer
	Stderr io.Writer
}

// Self returns an ExecRunner for the running executable.
func Self(stdout, stderr io.Writer) (*ExecRunner, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating vra executable: %w", err)
	}
	return &ExecRunner{Path: path, Stdout: stdout, Stderr: stderr}, nil
}

// Run starts the process and waits. A non-zero exit is reported through the
// code, not as an error; err is set only when the process could not run.
func (r *ExecRunner) Run(ctx context.Context, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, r.Path, append(append([]string{}, r.Prefix...), args...)...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("running %s: %w", r.Path, err)
}

// throttled delays each launch to respect a rate limit.
type throttled struct {
	next    Runner
	limiter *rate.Limiter
}

// Throttle wraps r so launches happen at most perSec times per second.
// perSec <= 0 disables throttling.
func Throttle(r Runner, perSec float64) Runner {
	if perSec <= 0 {
		return r
	}
	return &throttled{next: r, limiter: rate.NewLimiter(rate.Limit(perSec), 1)}
}

func (t *throttled) Run(ctx context.Context, args []string) (int, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return -1, fmt.Errorf("waiting for stage slot: %w", err)
	}
	return t.next.Run(ctx, args)
}
