package stage

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	from := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	args := Args(Reconcile, Params{From: from, To: from.Add(24 * time.Hour), DryRun: true, ConfigPath: "vra.yaml"})
	assert.Equal(t, []string{
		"reconcile",
		"--from", "2025-03-10T00:00:00Z",
		"--to", "2025-03-11T00:00:00Z",
		"--dry-run", "true",
		"--config", "vra.yaml",
	}, args)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("match"))
	assert.True(t, Valid("reconcile"))
	assert.False(t, Valid("issue-proofs"))
}

func TestExecRunner_ExitCodes(t *testing.T) {
	var out bytes.Buffer
	r := &ExecRunner{Path: "sh", Prefix: []string{"-c"}, Stdout: &out}

	code, err := r.Run(context.Background(), []string{"echo hi"})
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Equal(t, "hi\n", out.String())

	code, err = r.Run(context.Background(), []string{"exit 10"})
	require.NoError(t, err)
	assert.Equal(t, 10, code)

	code, err = r.Run(context.Background(), []string{"exit 20"})
	require.NoError(t, err)
	assert.Equal(t, 20, code)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := &ExecRunner{Path: "/nonexistent/vra"}
	code, err := r.Run(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, -1, code)
}

type countingRunner struct{ calls int }

func (c *countingRunner) Run(context.Context, []string) (int, error) {
	c.calls++
	return 0, nil
}

func TestThrottle(t *testing.T) {
	inner := &countingRunner{}
	assert.Same(t, inner, Throttle(inner, 0))

	r := Throttle(inner, 1000)
	for i := 0; i < 3; i++ {
		_, err := r.Run(context.Background(), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, inner.calls)

	slow := Throttle(inner, 0.001)
	_, err := slow.Run(context.Background(), nil) // consumes the burst
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = slow.Run(ctx, nil)
	assert.Error(t, err)
	assert.Equal(t, 4, inner.calls)
}
