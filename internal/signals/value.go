package signals

import (
	"encoding/json"
	"math"
	"sort"
)

type Pool string

const (
	PoolGraph    Pool = "graph"
	PoolLLM      Pool = "llm"
	PoolTemporal Pool = "temporal"
	PoolMeta     Pool = "meta"
)

type Kind string

const (
	KindFloat    Kind = "float"
	KindBool     Kind = "bool"
	KindCategory Kind = "category"
)

// Value is one computed signal. Floats are always within [0,1].
type Value struct {
	Kind     Kind
	Float    float64
	Bool     bool
	Category string
}

func Float(v float64) Value {
	return Value{Kind: KindFloat, Float: clamp(v)}
}

func Bool(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

func Category(c string) Value {
	return Value{Kind: KindCategory, Category: c}
}

// Number returns the numeric reading of the value: floats as-is, booleans as
// 1 or 0. Categories have no numeric reading.
func (v Value) Number() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.Float, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Literal returns the string form used by `key.literal` resolution.
func (v Value) Literal() (string, bool) {
	switch v.Kind {
	case KindCategory:
		return v.Category, true
	case KindBool:
		if v.Bool {
			return "true", true
		}
		return "false", true
	}
	return "", false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(v.Bool)
	case KindCategory:
		return json.Marshal(v.Category)
	}
	return json.Marshal(v.Float)
}

// Values maps signal keys to computed values.
type Values map[string]Value

// Merge returns a new map holding v overlaid with other.
func (v Values) Merge(other Values) Values {
	out := make(Values, len(v)+len(other))
	for k, val := range v {
		out[k] = val
	}
	for k, val := range other {
		out[k] = val
	}
	return out
}

func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
