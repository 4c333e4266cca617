package assembler

import (
	"strings"

	"github.com/amosWeiskopf/riacrawler/internal/models"
	"github.com/amosWeiskopf/riacrawler/pkg/utils"
)

// Normalizer turns one raw fragment into a typed value. The second result
// is false when the fragment holds no usable value.
type Normalizer func(raw string) (any, bool)

// Text trims and collapses whitespace; empty text is absent
func Text() Normalizer {
	return func(raw string) (any, bool) {
		s := utils.NormalizeText(raw)
		return s, s != ""
	}
}

// Price yields a float64 amount
func Price() Normalizer {
	return func(raw string) (any, bool) {
		return utils.NormalizePrice(raw)
	}
}

// Year yields an int year within bounds
func Year(bounds models.YearBounds) Normalizer {
	return func(raw string) (any, bool) {
		return utils.NormalizeYear(raw, bounds.Min, bounds.Max)
	}
}

// Integer yields an int64 built from the digits of the fragment
func Integer() Normalizer {
	return func(raw string) (any, bool) {
		return utils.NormalizeInteger(raw)
	}
}

// Date re-renders a date found in the fragment
func Date(sourceFormat, outputFormat string) Normalizer {
	return func(raw string) (any, bool) {
		s := utils.NormalizeDate(raw, sourceFormat, outputFormat)
		return s, s != ""
	}
}

// Flag normalizers always produce a value: a missing fragment is a false
// flag, not an absent one.

// Presence is true when the fragment carries any text
func Presence() Normalizer {
	return func(raw string) (any, bool) {
		return utils.NormalizePresence(raw), true
	}
}

// Equals is true when the cleaned fragment equals want, ignoring case
func Equals(want string) Normalizer {
	return func(raw string) (any, bool) {
		return utils.EqualsFold(raw, want), true
	}
}

// Contains is true when the fragment contains needle, ignoring case
func Contains(needle string) Normalizer {
	return func(raw string) (any, bool) {
		return utils.ContainsFold(raw, needle), true
	}
}

// NotEquals is the negation of Equals. A missing fragment is therefore true.
func NotEquals(want string) Normalizer {
	return func(raw string) (any, bool) {
		return !utils.EqualsFold(raw, want), true
	}
}

// Words applies next to the whitespace separated words [from, to) of the
// fragment. Negative indexes count from the end; to == 0 means the end.
func Words(from, to int, next Normalizer) Normalizer {
	return func(raw string) (any, bool) {
		words := strings.Fields(raw)
		n := len(words)
		lo, hi := from, to
		if lo < 0 {
			lo += n
		}
		if hi <= 0 {
			hi += n
		}
		if lo < 0 || hi > n || lo >= hi {
			return nil, false
		}
		return next(strings.Join(words[lo:hi], " "))
	}
}
