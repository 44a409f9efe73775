// Package scoring ranks (strategy, focus node) pairs from detected signals.
//
// Every pair is scored as
//
//	final = (Σ weight × resolved) × phase_multiplier + phase_bonus − diversity_penalty
//
// where the penalty applies when the strategy was used within the recent
// window. Vetoed pairs are dropped before scoring.
package scoring

import (
	"sort"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/signals"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	DefaultDiversityPenalty = 0.3
	DefaultDiversityWindow  = 5
)

type Config struct {
	DiversityPenalty float64
	DiversityWindow  int
	// DefaultStrategy is used when no pair survives. Empty means the first
	// declared strategy.
	DefaultStrategy string
}

func DefaultConfig() Config {
	return Config{DiversityPenalty: DefaultDiversityPenalty, DiversityWindow: DefaultDiversityWindow}
}

type Engine struct {
	strategies []domain.StrategyConfig
	weightKeys [][]string
	index      map[string]int
	fallback   int
	cfg        Config
}

// NewEngine validates strategies against the signal registry. Declaration
// order is kept and used as a tie-break.
func NewEngine(strategies []domain.StrategyConfig, reg *signals.Registry, cfg Config) (*Engine, error) {
	if len(strategies) == 0 {
		return nil, domain.NewConfigurationError("scoring", "no strategies configured")
	}
	if cfg.DiversityWindow < 0 || cfg.DiversityPenalty < 0 {
		return nil, domain.NewConfigurationError("scoring", "diversity penalty and window must not be negative")
	}

	e := &Engine{
		strategies: make([]domain.StrategyConfig, len(strategies)),
		weightKeys: make([][]string, len(strategies)),
		index:      make(map[string]int, len(strategies)),
		cfg:        cfg,
	}
	copy(e.strategies, strategies)

	for i, s := range e.strategies {
		if s.ID == "" {
			return nil, domain.NewConfigurationError("scoring", "strategy %d has no id", i)
		}
		if _, dup := e.index[s.ID]; dup {
			return nil, domain.NewConfigurationError("scoring", "duplicate strategy id %q", s.ID)
		}
		e.index[s.ID] = i

		for key := range s.SignalWeights {
			if err := validateKey(reg, s.ID, key); err != nil {
				return nil, err
			}
		}
		for _, v := range s.Vetoes {
			if err := validateKey(reg, s.ID, v.Signal); err != nil {
				return nil, err
			}
			if v.Operator != "" && !domain.ValidVetoOperator(string(v.Operator)) {
				return nil, domain.NewConfigurationError("scoring", "strategy %q veto on %q has unknown operator %q", s.ID, v.Signal, v.Operator)
			}
		}
		for p := range s.Phases {
			if !domain.ValidPhase(string(p)) {
				return nil, domain.NewConfigurationError("scoring", "strategy %q has unknown phase %q", s.ID, p)
			}
		}

		keys := lo.Keys(s.SignalWeights)
		sort.Strings(keys)
		e.weightKeys[i] = keys
	}

	if cfg.DefaultStrategy != "" {
		idx, ok := e.index[cfg.DefaultStrategy]
		if !ok {
			return nil, domain.NewConfigurationError("scoring", "default strategy %q is not configured", cfg.DefaultStrategy)
		}
		e.fallback = idx
	}
	return e, nil
}

func validateKey(reg *signals.Registry, strategyID, key string) error {
	base, suffix, err := reg.ParseKey(key)
	if err != nil {
		return domain.NewConfigurationError("scoring", "strategy %q: %v", strategyID, err)
	}
	if suffix == "" {
		def, _ := reg.Get(base)
		if def.Kind == signals.KindCategory {
			return domain.NewConfigurationError("scoring", "strategy %q uses category signal %q without a literal", strategyID, key)
		}
	}
	return nil
}

// SignalKeys returns every key referenced by weights and vetoes, sorted.
func (e *Engine) SignalKeys() []string {
	var keys []string
	for _, s := range e.strategies {
		keys = append(keys, lo.Keys(s.SignalWeights)...)
		for _, v := range s.Vetoes {
			keys = append(keys, v.Signal)
		}
	}
	keys = lo.Uniq(keys)
	sort.Strings(keys)
	return keys
}

func (e *Engine) Strategies() []domain.StrategyConfig {
	out := make([]domain.StrategyConfig, len(e.strategies))
	copy(out, e.strategies)
	return out
}

func (e *Engine) Strategy(id string) (domain.StrategyConfig, bool) {
	i, ok := e.index[id]
	if !ok {
		return domain.StrategyConfig{}, false
	}
	return e.strategies[i], true
}

func (e *Engine) DefaultStrategy() domain.StrategyConfig {
	return e.strategies[e.fallback]
}

// NodeSignals is one focus candidate with its node-level values.
type NodeSignals struct {
	NodeID uuid.UUID
	Label  string
	Values signals.Values
}

type Input struct {
	Global signals.Values
	// Nodes are ranked in this order on full ties.
	Nodes []NodeSignals
	Phase domain.Phase
	// RecentStrategies lists strategies of previous turns, oldest first.
	RecentStrategies []string
}

type Selection struct {
	Strategy    domain.StrategyConfig
	FocusNodeID *uuid.UUID
	FocusLabel  string
	Score       float64
	Fallback    bool
	Ranked      []domain.ScoredCandidate
}

type ranked struct {
	candidate domain.ScoredCandidate
	uses      int
	strategy  int
	node      int
}

// Rank scores every surviving pair, best first.
func (e *Engine) Rank(in Input) []domain.ScoredCandidate {
	uses := e.recentUses(in.RecentStrategies)

	var pairs []ranked
	for si, s := range e.strategies {
		mod := s.PhaseModifierFor(in.Phase)
		penalty := 0.0
		if uses[s.ID] > 0 {
			penalty = e.cfg.DiversityPenalty
		}
		for ni, n := range in.Nodes {
			values := in.Global.Merge(n.Values)
			if e.vetoed(s, values) {
				continue
			}
			bd := e.breakdown(si, values, mod, penalty)
			pairs = append(pairs, ranked{
				candidate: domain.ScoredCandidate{
					StrategyID: s.ID,
					NodeID:     n.NodeID,
					NodeLabel:  n.Label,
					Score:      (bd.Base*bd.PhaseMultiplier + bd.PhaseBonus) - bd.DiversityPenalty,
					Breakdown:  bd,
				},
				uses:     uses[s.ID],
				strategy: si,
				node:     ni,
			})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.candidate.Score != b.candidate.Score {
			return a.candidate.Score > b.candidate.Score
		}
		if a.uses != b.uses {
			return a.uses < b.uses
		}
		if a.strategy != b.strategy {
			return a.strategy < b.strategy
		}
		return a.node < b.node
	})

	return lo.Map(pairs, func(p ranked, _ int) domain.ScoredCandidate { return p.candidate })
}

// Select ranks and picks the top pair, falling back to the default strategy
// with no focus when the graph is empty or every pair is vetoed.
func (e *Engine) Select(in Input) Selection {
	candidates := e.Rank(in)
	if len(candidates) == 0 {
		return Selection{Strategy: e.DefaultStrategy(), Fallback: true}
	}
	top := candidates[0]
	id := top.NodeID
	return Selection{
		Strategy:    e.strategies[e.index[top.StrategyID]],
		FocusNodeID: &id,
		FocusLabel:  top.NodeLabel,
		Score:       top.Score,
		Ranked:      candidates,
	}
}

func (e *Engine) vetoed(s domain.StrategyConfig, values signals.Values) bool {
	for _, v := range s.Vetoes {
		if Vetoed(v, values) {
			return true
		}
	}
	return false
}

func (e *Engine) breakdown(si int, values signals.Values, mod domain.PhaseModifier, penalty float64) domain.ScoreBreakdown {
	s := e.strategies[si]
	bd := domain.ScoreBreakdown{
		PhaseMultiplier:  mod.EffectiveMultiplier(),
		PhaseBonus:       mod.Bonus,
		DiversityPenalty: penalty,
		Terms:            make(map[string]float64, len(s.SignalWeights)),
	}
	for _, key := range e.weightKeys[si] {
		resolved, _ := Resolve(key, values)
		term := s.SignalWeights[key] * resolved
		bd.Terms[key] = term
		bd.Base += term
	}
	return bd
}

func (e *Engine) recentUses(recent []string) map[string]int {
	window := recent
	if n := e.cfg.DiversityWindow; len(window) > n {
		window = window[len(window)-n:]
	}
	return lo.CountValues(window)
}
