package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// boolValue is a boolean flag that always takes a value, so both
// "--dry-run true" and "--dry-run=false" parse.
type boolValue struct{ p *bool }

func (b boolValue) String() string {
	if b.p == nil {
		return "false"
	}
	return strconv.FormatBool(*b.p)
}

func (b boolValue) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("want true or false, got %q", s)
	}
	*b.p = v
	return nil
}

func (b boolValue) Type() string { return "true|false" }

func boolVar(fs *pflag.FlagSet, p *bool, name, usage string) {
	*p = false
	fs.Var(boolValue{p}, name, usage)
}

// windowFlags are the --from/--to pair shared by window commands.
type windowFlags struct {
	from string
	to   string
}

func (w *windowFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&w.from, "from", "", "window start, ISO-8601 (inclusive)")
	fs.StringVar(&w.to, "to", "", "window end, ISO-8601 (exclusive)")
}

func (w *windowFlags) parse() (from, to time.Time, err error) {
	if from, err = parseTimestamp("from", w.from); err != nil {
		return
	}
	to, err = parseTimestamp("to", w.to)
	return
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimestamp parses an ISO-8601 timestamp. Values without a zone are UTC.
func parseTimestamp(name, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("--%s is required", name)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("--%s: %q is not an ISO-8601 timestamp", name, s)
}
