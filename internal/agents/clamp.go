package agents

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. It never fails: if lo > hi, hi wins.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
