package signals

import (
	"sort"
	"strings"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/google/uuid"
)

type GlobalFunc func(tc TurnContext, computed Values) Value

type NodeFunc func(tc TurnContext, node domain.NodeState, global, computed Values) Value

// Definition declares one signal. Exactly one of Global or Node is set,
// matching NodeLevel.
type Definition struct {
	Key        string
	Pool       Pool
	Kind       Kind
	NodeLevel  bool
	DependsOn  []string
	Neutral    Value
	Categories []string
	Global     GlobalFunc
	Node       NodeFunc
}

// Registry holds signal definitions by key.
type Registry struct {
	defs map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

func (r *Registry) Register(def Definition) error {
	if def.Key == "" {
		return domain.NewConfigurationError("signals", "definition without key")
	}
	if _, ok := r.defs[def.Key]; ok {
		return domain.NewConfigurationError("signals", "duplicate signal %q", def.Key)
	}
	if !strings.HasPrefix(def.Key, string(def.Pool)+".") {
		return domain.NewConfigurationError("signals", "signal %q is not namespaced under pool %q", def.Key, def.Pool)
	}
	if def.NodeLevel && def.Node == nil || !def.NodeLevel && def.Global == nil {
		return domain.NewConfigurationError("signals", "signal %q has no compute function for its level", def.Key)
	}
	if def.Neutral.Kind != def.Kind {
		return domain.NewConfigurationError("signals", "signal %q neutral value kind %s, want %s", def.Key, def.Neutral.Kind, def.Kind)
	}
	if def.Kind == KindCategory {
		if len(def.Categories) == 0 {
			return domain.NewConfigurationError("signals", "category signal %q declares no categories", def.Key)
		}
		if !contains(def.Categories, def.Neutral.Category) {
			return domain.NewConfigurationError("signals", "signal %q neutral %q is not a declared category", def.Key, def.Neutral.Category)
		}
	}
	d := def
	d.DependsOn = append([]string(nil), def.DependsOn...)
	sort.Strings(d.DependsOn)
	r.defs[def.Key] = &d
	return nil
}

// MustRegister panics on error. Used for the built-in catalog only.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(key string) (*Definition, bool) {
	d, ok := r.defs[key]
	return d, ok
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.defs))
	for k := range r.defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Suffixes understood after a signal key in strategy weights and vetoes.
const (
	SuffixHigh = "high"
	SuffixMid  = "mid"
	SuffixLow  = "low"
)

// ParseKey splits a weight key into its signal key and optional suffix. A
// direct key wins over a suffixed reading. Band suffixes require a float
// signal; any other suffix is a literal and requires a category or bool.
func (r *Registry) ParseKey(key string) (base, suffix string, err error) {
	if _, ok := r.defs[key]; ok {
		return key, "", nil
	}
	i := strings.LastIndex(key, ".")
	if i <= 0 || i == len(key)-1 {
		return "", "", domain.NewConfigurationError("signals", "unknown signal key %q", key)
	}
	base, suffix = key[:i], key[i+1:]
	def, ok := r.defs[base]
	if !ok {
		return "", "", domain.NewConfigurationError("signals", "unknown signal key %q", key)
	}
	switch suffix {
	case SuffixHigh, SuffixMid, SuffixLow:
		if def.Kind != KindFloat {
			return "", "", domain.NewConfigurationError("signals", "band suffix %q on non-float signal %q", suffix, base)
		}
	default:
		switch def.Kind {
		case KindFloat:
			return "", "", domain.NewConfigurationError("signals", "literal suffix %q on float signal %q", suffix, base)
		case KindBool:
			if suffix != "true" && suffix != "false" {
				return "", "", domain.NewConfigurationError("signals", "bool signal %q has no literal %q", base, suffix)
			}
		case KindCategory:
			if !contains(def.Categories, suffix) {
				return "", "", domain.NewConfigurationError("signals", "signal %q has no category %q", base, suffix)
			}
		}
	}
	return base, suffix, nil
}

// plan is the evaluation order for a dependency closure.
type plan struct {
	global []*Definition
	node   []*Definition
	pools  map[Pool]bool
}

// resolve computes the dependency closure of keys and orders it so every
// definition follows its dependencies. Ties are broken by key.
func (r *Registry) resolve(keys []string) (*plan, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var order []*Definition

	var visit func(key string, path []string) error
	visit = func(key string, path []string) error {
		def, ok := r.defs[key]
		if !ok {
			if len(path) > 0 {
				return domain.NewConfigurationError("signals", "signal %q depends on unknown signal %q", path[len(path)-1], key)
			}
			return domain.NewConfigurationError("signals", "unknown signal key %q", key)
		}
		switch state[key] {
		case done:
			return nil
		case visiting:
			return domain.NewConfigurationError("signals", "dependency cycle: %s -> %s", strings.Join(path, " -> "), key)
		}
		state[key] = visiting
		next := append(append(make([]string, 0, len(path)+1), path...), key)
		for _, dep := range def.DependsOn {
			if d, ok := r.defs[dep]; ok && d.NodeLevel && !def.NodeLevel {
				return domain.NewConfigurationError("signals", "global signal %q depends on node-level signal %q", key, dep)
			}
			if err := visit(dep, next); err != nil {
				return err
			}
		}
		state[key] = done
		order = append(order, def)
		return nil
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, k := range sorted {
		if err := visit(k, nil); err != nil {
			return nil, err
		}
	}

	p := &plan{pools: make(map[Pool]bool)}
	for _, def := range order {
		p.pools[def.Pool] = true
		if def.NodeLevel {
			p.node = append(p.node, def)
		} else {
			p.global = append(p.global, def)
		}
	}
	return p, nil
}

func (p *plan) evaluate(tc TurnContext) (Values, map[uuid.UUID]Values) {
	global := make(Values, len(p.global))
	for _, def := range p.global {
		global[def.Key] = normalize(def, def.Global(tc, global))
	}
	nodes := make(map[uuid.UUID]Values, len(tc.Nodes))
	for _, n := range tc.Nodes {
		nv := make(Values, len(p.node))
		for _, def := range p.node {
			nv[def.Key] = normalize(def, def.Node(tc, n, global, nv))
		}
		nodes[n.NodeID] = nv
	}
	return global, nodes
}

// normalize guards against compute functions returning the wrong kind or an
// undeclared category.
func normalize(def *Definition, v Value) Value {
	if v.Kind != def.Kind {
		return def.Neutral
	}
	switch v.Kind {
	case KindFloat:
		return Float(v.Float)
	case KindCategory:
		if !contains(def.Categories, v.Category) {
			return def.Neutral
		}
	}
	return v
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
