package id

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidMonth is returned for month keys that are not YYYY-MM.
var ErrInvalidMonth = errors.New("month must be YYYY-MM")

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// evidenceNamespace scopes evidence UUIDs to this pipeline.
var evidenceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:vra:evidence"))

// FormatMonth returns a month key like "2025-11".
func FormatMonth(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// ParseMonth parses "2025-11" into year and month.
func ParseMonth(s string) (year, month int, err error) {
	if !monthPattern.MatchString(s) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	parts := strings.SplitN(s, "-", 2)
	year, _ = strconv.Atoi(parts[0])
	month, _ = strconv.Atoi(parts[1])
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: month %02d out of range", ErrInvalidMonth, month)
	}
	return year, month, nil
}

// MonthBounds returns the half-open UTC interval [first day, first day of next month).
func MonthBounds(s string) (from, to time.Time, err error) {
	year, month, err := ParseMonth(s)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

// EvidenceID derives a stable evidence identifier from the parts that define a
// delta. The same parts always yield the same id.
func EvidenceID(parts ...string) string {
	return uuid.NewSHA1(evidenceNamespace, []byte(strings.Join(parts, "|"))).String()
}

// NewRunID returns a random identifier for one CLI invocation.
func NewRunID() string {
	return uuid.NewString()
}
