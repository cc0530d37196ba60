package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func mean(xs []decimal.Decimal) decimal.Decimal {
	if len(xs) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(xs[0], xs[1:]...).Div(decimal.NewFromInt(int64(len(xs))))
}

func sorted(xs []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(xs))
	copy(out, xs)
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}

func median(xs []decimal.Decimal) decimal.Decimal {
	if len(xs) == 0 {
		return decimal.Zero
	}
	s := sorted(xs)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return s[mid-1].Add(s[mid]).Div(decimal.NewFromInt(2))
}

// percentile uses the nearest-rank method: the smallest value with at least
// p% of samples at or below it.
func percentile(xs []decimal.Decimal, p int) decimal.Decimal {
	if len(xs) == 0 {
		return decimal.Zero
	}
	s := sorted(xs)
	rank := (p*len(s) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return s[rank-1]
}
