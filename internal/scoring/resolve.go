package scoring

import (
	"strings"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/signals"
)

// Band edges for the .high/.mid/.low suffixes.
const (
	bandHigh = 0.75
	bandLow  = 0.25
)

// Resolve reads one weight key against merged signal values. A direct key
// yields the float or 1/0 for booleans. A `.literal` suffix yields 1 when the
// category (or "true"/"false" for booleans) equals the literal. Band suffixes
// test float signals. The second return is false when the key cannot be read.
func Resolve(key string, values signals.Values) (float64, bool) {
	if v, ok := values[key]; ok {
		return v.Number()
	}
	i := strings.LastIndex(key, ".")
	if i <= 0 {
		return 0, false
	}
	base, suffix := key[:i], key[i+1:]
	v, ok := values[base]
	if !ok {
		return 0, false
	}

	if v.Kind == signals.KindFloat {
		switch suffix {
		case signals.SuffixHigh:
			return indicator(v.Float >= bandHigh), true
		case signals.SuffixMid:
			return indicator(v.Float > bandLow && v.Float < bandHigh), true
		case signals.SuffixLow:
			return indicator(v.Float <= bandLow), true
		}
		return 0, false
	}
	lit, ok := v.Literal()
	if !ok {
		return 0, false
	}
	return indicator(lit == suffix), true
}

// Vetoed reports whether the predicate holds. A key that cannot be resolved
// never vetoes.
func Vetoed(p domain.VetoPredicate, values signals.Values) bool {
	got, ok := Resolve(p.Signal, values)
	if !ok {
		return false
	}
	want := 1.0
	if p.Value != nil {
		want = *p.Value
	}
	switch p.Operator {
	case domain.VetoGTE, "":
		return got >= want
	case domain.VetoLTE:
		return got <= want
	case domain.VetoGT:
		return got > want
	case domain.VetoLT:
		return got < want
	case domain.VetoEQ:
		return got == want
	}
	return false
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
