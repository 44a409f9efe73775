package signals

import (
	"github.com/Harshitk-cp/elicit/internal/domain"
)

// Signal keys of the built-in catalog.
const (
	GraphNodeCount    = "graph.node_count"
	GraphEdgeDensity  = "graph.edge_density"
	GraphOrphanRatio  = "graph.orphan_ratio"
	GraphTypeCoverage = "graph.type_coverage"
	GraphMaxLevel     = "graph.max_level"
	GraphHasTerminal  = "graph.has_terminal"
	GraphEmpty        = "graph.empty"
	GraphSize         = "graph.size"

	NodeExhausted          = "graph.node.exhausted"
	NodeExhaustionScore    = "graph.node.exhaustion_score"
	NodeYieldStagnation    = "graph.node.yield_stagnation"
	NodeFocusStreak        = "graph.node.focus_streak"
	NodeIsCurrentFocus     = "graph.node.is_current_focus"
	NodeRecencyScore       = "graph.node.recency_score"
	NodeIsOrphan           = "graph.node.is_orphan"
	NodeHasOutgoing        = "graph.node.has_outgoing"
	NodeIsTerminal         = "graph.node.is_terminal"
	NodeLevel              = "graph.node.level"
	NodeYieldRate          = "graph.node.yield_rate"
	NodeStrategyRepetition = "graph.node.strategy_repetition"

	LLMResponseDepth = "llm.response_depth"
	LLMSpecificity   = "llm.specificity"
	LLMCertainty     = "llm.certainty"
	LLMEngagement    = "llm.engagement"
	LLMValence       = "llm.valence"
	LLMRelevance     = "llm.relevance"
	LLMHedging       = "llm.hedging"

	TemporalTurnProgress       = "temporal.turn_progress"
	TemporalExtractionVelocity = "temporal.extraction_velocity"
	TemporalVelocityTrend      = "temporal.velocity_trend"
	TemporalStrategyRepetition = "temporal.strategy_repetition"
	TemporalLastStrategy       = "temporal.last_strategy"
	TemporalYieldStreak        = "temporal.yield_streak"

	MetaInterviewPhase    = "meta.interview.phase"
	MetaSaturation        = "meta.saturation"
	MetaSaturated         = "meta.saturated"
	MetaRespondentFatigue = "meta.respondent_fatigue"
	MetaNodeOpportunity   = "meta.node.opportunity"
)

const (
	nodeCountScale      = 30.0
	velocityScale       = 5.0
	trendDelta          = 0.1
	streakRepeatScale   = 3.0
	saturatedThreshold  = 0.75
	lateProgressCutover = 0.8
)

// Categories.
const (
	TrendRising  = "rising"
	TrendFlat    = "flat"
	TrendFalling = "falling"

	SizeEmpty  = "empty"
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"

	OpportunityFresh     = "fresh"
	OpportunityProbe     = "probe"
	OpportunityExhausted = "exhausted"

	NoStrategy = "none"
)

// DefaultRegistry builds the built-in catalog. strategyIDs become the
// categories of temporal.last_strategy besides NoStrategy.
func DefaultRegistry(strategyIDs []string) *Registry {
	r := NewRegistry()
	registerGraph(r)
	registerLLM(r)
	registerTemporal(r, strategyIDs)
	registerMeta(r)
	return r
}

func registerGraph(r *Registry) {
	r.MustRegister(
		Definition{Key: GraphNodeCount, Pool: PoolGraph, Kind: KindFloat, Neutral: Float(0),
			Global: func(tc TurnContext, _ Values) Value {
				return Float(float64(tc.Graph.NodeCount) / nodeCountScale)
			}},
		Definition{Key: GraphEdgeDensity, Pool: PoolGraph, Kind: KindFloat, Neutral: Float(0),
			Global: func(tc TurnContext, _ Values) Value {
				if tc.Graph.NodeCount < 2 {
					return Float(0)
				}
				return Float(float64(tc.Graph.EdgeCount) / float64(tc.Graph.NodeCount-1))
			}},
		Definition{Key: GraphOrphanRatio, Pool: PoolGraph, Kind: KindFloat, Neutral: Float(0),
			Global: func(tc TurnContext, _ Values) Value {
				return Float(ratio(tc.Graph.OrphanCount, tc.Graph.NodeCount))
			}},
		Definition{Key: GraphTypeCoverage, Pool: PoolGraph, Kind: KindFloat, Neutral: Float(0),
			Global: func(tc TurnContext, _ Values) Value {
				return Float(ratio(tc.Graph.TypesSeen, tc.Graph.TypesTotal))
			}},
		Definition{Key: GraphMaxLevel, Pool: PoolGraph, Kind: KindFloat, Neutral: Float(0),
			Global: func(tc TurnContext, _ Values) Value {
				return Float(ratio(tc.Graph.MaxLevelSeen, tc.Graph.MaxLevelTotal))
			}},
		Definition{Key: GraphHasTerminal, Pool: PoolGraph, Kind: KindBool, Neutral: Bool(false),
			Global: func(tc TurnContext, _ Values) Value {
				return Bool(tc.Graph.HasTerminal)
			}},
		Definition{Key: GraphEmpty, Pool: PoolGraph, Kind: KindBool, Neutral: Bool(true),
			Global: func(tc TurnContext, _ Values) Value {
				return Bool(tc.Graph.NodeCount == 0)
			}},
		Definition{Key: GraphSize, Pool: PoolGraph, Kind: KindCategory, Neutral: Category(SizeEmpty),
			Categories: []string{SizeEmpty, SizeSmall, SizeMedium, SizeLarge},
			Global: func(tc TurnContext, _ Values) Value {
				switch n := tc.Graph.NodeCount; {
				case n == 0:
					return Category(SizeEmpty)
				case n < 5:
					return Category(SizeSmall)
				case n < 15:
					return Category(SizeMedium)
				default:
					return Category(SizeLarge)
				}
			}},
	)

	node := func(key string, kind Kind, neutral Value, fn func(tc TurnContext, n domain.NodeState) Value) Definition {
		return Definition{Key: key, Pool: PoolGraph, Kind: kind, NodeLevel: true, Neutral: neutral,
			Node: func(tc TurnContext, n domain.NodeState, _, _ Values) Value { return fn(tc, n) }}
	}
	r.MustRegister(
		node(NodeExhausted, KindBool, Bool(false), func(_ TurnContext, n domain.NodeState) Value {
			return Bool(n.Exhausted())
		}),
		node(NodeExhaustionScore, KindFloat, Float(0), func(_ TurnContext, n domain.NodeState) Value {
			return Float(n.ExhaustionScore())
		}),
		node(NodeYieldStagnation, KindBool, Bool(false), func(_ TurnContext, n domain.NodeState) Value {
			return Bool(n.YieldStagnation())
		}),
		node(NodeIsCurrentFocus, KindBool, Bool(false), func(_ TurnContext, n domain.NodeState) Value {
			return Bool(n.IsCurrentFocus())
		}),
		node(NodeRecencyScore, KindFloat, Float(0), func(_ TurnContext, n domain.NodeState) Value {
			return Float(n.RecencyScore())
		}),
		node(NodeIsOrphan, KindBool, Bool(true), func(_ TurnContext, n domain.NodeState) Value {
			return Bool(n.IsOrphan())
		}),
		node(NodeHasOutgoing, KindBool, Bool(false), func(_ TurnContext, n domain.NodeState) Value {
			return Bool(n.HasOutgoing())
		}),
		node(NodeIsTerminal, KindBool, Bool(false), func(_ TurnContext, n domain.NodeState) Value {
			return Bool(n.IsTerminal)
		}),
		node(NodeLevel, KindFloat, Float(0), func(tc TurnContext, n domain.NodeState) Value {
			return Float(ratio(n.Level, tc.Methodology.MaxLevel()))
		}),
		node(NodeYieldRate, KindFloat, Float(0), func(_ TurnContext, n domain.NodeState) Value {
			return Float(n.YieldRate)
		}),
		node(NodeStrategyRepetition, KindFloat, Float(0), func(_ TurnContext, n domain.NodeState) Value {
			return Float(float64(n.ConsecutiveSameStrategy) / streakRepeatScale)
		}),
	)
	r.MustRegister(Definition{
		Key: NodeFocusStreak, Pool: PoolGraph, Kind: KindCategory, NodeLevel: true,
		Neutral:    Category(string(domain.StreakNone)),
		Categories: []string{string(domain.StreakNone), string(domain.StreakLow), string(domain.StreakMedium), string(domain.StreakHigh)},
		Node: func(_ TurnContext, n domain.NodeState, _, _ Values) Value {
			return Category(string(n.FocusStreakBucket()))
		},
	})
}

func registerLLM(r *Registry) {
	score := func(key string, pick func(*domain.RubricScores) float64) Definition {
		return Definition{Key: key, Pool: PoolLLM, Kind: KindFloat, Neutral: Float(0.5),
			Global: func(tc TurnContext, _ Values) Value {
				if tc.Rubric == nil {
					return Float(0.5)
				}
				return Float(pick(tc.Rubric))
			}}
	}
	r.MustRegister(
		score(LLMSpecificity, func(s *domain.RubricScores) float64 { return s.Specificity }),
		score(LLMCertainty, func(s *domain.RubricScores) float64 { return s.Certainty }),
		score(LLMEngagement, func(s *domain.RubricScores) float64 { return s.Engagement }),
		score(LLMValence, func(s *domain.RubricScores) float64 { return s.Valence }),
		score(LLMRelevance, func(s *domain.RubricScores) float64 { return s.Relevance }),
		Definition{Key: LLMHedging, Pool: PoolLLM, Kind: KindBool, Neutral: Bool(false),
			Global: func(tc TurnContext, _ Values) Value {
				if tc.Rubric == nil {
					return Bool(false)
				}
				return Bool(tc.Rubric.Hedging)
			}},
		Definition{Key: LLMResponseDepth, Pool: PoolLLM, Kind: KindCategory,
			Neutral: Category(string(domain.DepthModerate)),
			Categories: []string{string(domain.DepthSurface), string(domain.DepthShallow),
				string(domain.DepthModerate), string(domain.DepthDeep)},
			Global: func(tc TurnContext, _ Values) Value {
				if tc.Rubric == nil || !domain.ValidResponseDepth(string(tc.Rubric.ResponseDepth)) {
					return Category(string(domain.DepthModerate))
				}
				return Category(string(tc.Rubric.ResponseDepth))
			}},
	)
}

func registerTemporal(r *Registry, strategyIDs []string) {
	r.MustRegister(
		Definition{Key: TemporalTurnProgress, Pool: PoolTemporal, Kind: KindFloat, Neutral: Float(0),
			Global: func(tc TurnContext, _ Values) Value {
				if tc.MaxTurns <= 0 {
					return Float(0)
				}
				return Float(float64(tc.Turn) / float64(tc.MaxTurns))
			}},
		Definition{Key: TemporalExtractionVelocity, Pool: PoolTemporal, Kind: KindFloat, Neutral: Float(0.5),
			Global: func(tc TurnContext, _ Values) Value {
				if len(tc.Window) == 0 {
					return Float(0.5)
				}
				return Float(mean(turnYields(tc.Window)))
			}},
		Definition{Key: TemporalVelocityTrend, Pool: PoolTemporal, Kind: KindCategory, Neutral: Category(TrendFlat),
			Categories: []string{TrendRising, TrendFlat, TrendFalling},
			Global: func(tc TurnContext, _ Values) Value {
				y := turnYields(tc.Window)
				if len(y) < 2 {
					return Category(TrendFlat)
				}
				half := len(y) / 2
				diff := mean(y[len(y)-half:]) - mean(y[:half])
				switch {
				case diff > trendDelta:
					return Category(TrendRising)
				case diff < -trendDelta:
					return Category(TrendFalling)
				}
				return Category(TrendFlat)
			}},
		Definition{Key: TemporalStrategyRepetition, Pool: PoolTemporal, Kind: KindFloat, Neutral: Float(0),
			Global: func(tc TurnContext, _ Values) Value {
				used := usedStrategies(tc.Window)
				if len(used) == 0 {
					return Float(0)
				}
				last := used[len(used)-1]
				n := 0
				for _, s := range used {
					if s == last {
						n++
					}
				}
				return Float(float64(n) / float64(len(used)))
			}},
		Definition{Key: TemporalLastStrategy, Pool: PoolTemporal, Kind: KindCategory, Neutral: Category(NoStrategy),
			Categories: append([]string{NoStrategy}, strategyIDs...),
			Global: func(tc TurnContext, _ Values) Value {
				used := usedStrategies(tc.Window)
				if len(used) == 0 {
					return Category(NoStrategy)
				}
				return Category(used[len(used)-1])
			}},
		Definition{Key: TemporalYieldStreak, Pool: PoolTemporal, Kind: KindFloat, Neutral: Float(0),
			Global: func(tc TurnContext, _ Values) Value {
				if tc.Params.Window <= 0 {
					return Float(0)
				}
				streak := 0
				for i := len(tc.Window) - 1; i >= 0 && tc.Window[i].YieldNodes > 0; i-- {
					streak++
				}
				return Float(float64(streak) / float64(tc.Params.Window))
			}},
	)
}

func registerMeta(r *Registry) {
	r.MustRegister(
		Definition{Key: MetaInterviewPhase, Pool: PoolMeta, Kind: KindCategory,
			Neutral:    Category(string(domain.PhaseEarly)),
			Categories: []string{string(domain.PhaseEarly), string(domain.PhaseMid), string(domain.PhaseLate)},
			DependsOn:  []string{TemporalTurnProgress},
			Global: func(tc TurnContext, v Values) Value {
				return Category(string(phaseFor(tc.Turn, tc.Params, v[TemporalTurnProgress].Float)))
			}},
		Definition{Key: MetaSaturation, Pool: PoolMeta, Kind: KindFloat, Neutral: Float(0),
			DependsOn: []string{TemporalExtractionVelocity, TemporalVelocityTrend},
			Global: func(_ TurnContext, v Values) Value {
				s := (1 - v[TemporalExtractionVelocity].Float) * 0.7
				switch v[TemporalVelocityTrend].Category {
				case TrendFalling:
					s += 0.3
				case TrendFlat:
					s += 0.15
				}
				return Float(s)
			}},
		Definition{Key: MetaSaturated, Pool: PoolMeta, Kind: KindBool, Neutral: Bool(false),
			DependsOn: []string{MetaSaturation},
			Global: func(_ TurnContext, v Values) Value {
				return Bool(v[MetaSaturation].Float >= saturatedThreshold)
			}},
		Definition{Key: MetaRespondentFatigue, Pool: PoolMeta, Kind: KindFloat, Neutral: Float(0),
			DependsOn: []string{LLMEngagement, TemporalTurnProgress},
			Global: func(_ TurnContext, v Values) Value {
				return Float(0.5*(1-v[LLMEngagement].Float) + 0.5*v[TemporalTurnProgress].Float)
			}},
		Definition{Key: MetaNodeOpportunity, Pool: PoolMeta, Kind: KindCategory, NodeLevel: true,
			Neutral:    Category(OpportunityFresh),
			Categories: []string{OpportunityFresh, OpportunityProbe, OpportunityExhausted},
			DependsOn:  []string{NodeExhausted, NodeRecencyScore},
			Node: func(_ TurnContext, _ domain.NodeState, _, nv Values) Value {
				switch {
				case nv[NodeExhausted].Bool:
					return Category(OpportunityExhausted)
				case nv[NodeRecencyScore].Float == 0:
					return Category(OpportunityFresh)
				}
				return Category(OpportunityProbe)
			}},
	)
}

// phaseFor maps a turn onto the interview phase. Progress past the late
// cutover forces the late phase even before PhaseLateStart.
func phaseFor(turn int, p Params, progress float64) domain.Phase {
	switch {
	case turn >= p.PhaseLateStart || progress >= lateProgressCutover:
		return domain.PhaseLate
	case turn >= p.PhaseMidStart:
		return domain.PhaseMid
	}
	return domain.PhaseEarly
}

func turnYields(window []domain.TurnSummary) []float64 {
	out := make([]float64, len(window))
	for i, t := range window {
		out[i] = clamp(float64(t.NewNodes+t.NewEdges) / velocityScale)
	}
	return out
}

func usedStrategies(window []domain.TurnSummary) []string {
	var out []string
	for _, t := range window {
		if t.Strategy != "" {
			out = append(out, t.Strategy)
		}
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func ratio(a, b int) float64 {
	if b <= 0 {
		return 0
	}
	return float64(a) / float64(b)
}
