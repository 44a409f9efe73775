package scoring

import (
	"errors"
	"testing"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/signals"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func testRegistry() *signals.Registry {
	return signals.DefaultRegistry([]string{"deepen", "broaden", "clarify"})
}

func newEngine(t *testing.T, strategies []domain.StrategyConfig) *Engine {
	t.Helper()
	e, err := NewEngine(strategies, testRegistry(), DefaultConfig())
	require.NoError(t, err)
	return e
}

func node(label string, vals signals.Values) NodeSignals {
	return NodeSignals{NodeID: uuid.New(), Label: label, Values: vals}
}

func TestEngine_ExhaustedLiteralFavoursFreshNode(t *testing.T) {
	e := newEngine(t, []domain.StrategyConfig{{
		ID:            "deepen",
		SignalWeights: map[string]float64{signals.NodeExhausted + ".false": 1.0},
	}})

	a := node("a", signals.Values{signals.NodeExhausted: signals.Bool(true), signals.NodeRecencyScore: signals.Float(0.4)})
	b := node("b", signals.Values{signals.NodeExhausted: signals.Bool(false), signals.NodeRecencyScore: signals.Float(0.4)})

	ranked := e.Rank(Input{Nodes: []NodeSignals{a, b}, Phase: domain.PhaseEarly})
	require.Len(t, ranked, 2)

	scores := map[uuid.UUID]float64{}
	for _, c := range ranked {
		scores[c.NodeID] = c.Score
	}
	assert.Greater(t, scores[b.NodeID], scores[a.NodeID])
	assert.Equal(t, b.NodeID, ranked[0].NodeID)
}

func TestEngine_DiversityPenaltyIsExact(t *testing.T) {
	strategies := []domain.StrategyConfig{{
		ID:            "deepen",
		SignalWeights: map[string]float64{signals.LLMSpecificity: 0.8, signals.GraphNodeCount: 0.5},
		Phases:        map[domain.Phase]domain.PhaseModifier{domain.PhaseMid: {Multiplier: ptr(1.5), Bonus: 0.1}},
	}}
	e := newEngine(t, strategies)
	in := Input{
		Global: signals.Values{signals.LLMSpecificity: signals.Float(0.6), signals.GraphNodeCount: signals.Float(0.2)},
		Nodes:  []NodeSignals{node("n", nil)},
		Phase:  domain.PhaseMid,
	}

	clean := e.Rank(in)
	in.RecentStrategies = []string{"broaden", "deepen", "clarify", "broaden", "clarify"}
	penalized := e.Rank(in)

	require.Len(t, clean, 1)
	require.Len(t, penalized, 1)
	assert.InDelta(t, 0.3, clean[0].Score-penalized[0].Score, 1e-12)
	assert.Equal(t, 0.3, penalized[0].Breakdown.DiversityPenalty)
	assert.InDelta(t, (0.8*0.6+0.5*0.2)*1.5+0.1, clean[0].Score, 1e-12)
}

func TestEngine_PenaltyOnlyInsideWindow(t *testing.T) {
	e := newEngine(t, []domain.StrategyConfig{{ID: "deepen", SignalWeights: map[string]float64{signals.GraphEmpty: 1}}})
	in := Input{
		Global:           signals.Values{signals.GraphEmpty: signals.Bool(false)},
		Nodes:            []NodeSignals{node("n", nil)},
		RecentStrategies: []string{"deepen", "a", "b", "c", "d", "e"},
	}
	ranked := e.Rank(in)
	require.Len(t, ranked, 1)
	assert.Zero(t, ranked[0].Breakdown.DiversityPenalty)
}

func TestEngine_VetoExcludesPair(t *testing.T) {
	e := newEngine(t, []domain.StrategyConfig{
		{
			ID:            "deepen",
			SignalWeights: map[string]float64{signals.LLMSpecificity: 5},
			Vetoes:        []domain.VetoPredicate{{Signal: signals.NodeExhausted}},
		},
		{
			ID:            "broaden",
			SignalWeights: map[string]float64{signals.LLMSpecificity: 1},
			Vetoes: []domain.VetoPredicate{
				{Signal: signals.GraphNodeCount, Operator: domain.VetoLT, Value: ptr(0.1)},
			},
		},
	})
	tired := node("tired", signals.Values{signals.NodeExhausted: signals.Bool(true)})
	fresh := node("fresh", signals.Values{signals.NodeExhausted: signals.Bool(false)})

	ranked := e.Rank(Input{
		Global: signals.Values{signals.LLMSpecificity: signals.Float(0.9), signals.GraphNodeCount: signals.Float(0.5)},
		Nodes:  []NodeSignals{tired, fresh},
	})
	require.Len(t, ranked, 3)
	for _, c := range ranked {
		if c.StrategyID == "deepen" {
			assert.Equal(t, fresh.NodeID, c.NodeID)
		}
	}

	sel := e.Select(Input{
		Global: signals.Values{signals.LLMSpecificity: signals.Float(0.9), signals.GraphNodeCount: signals.Float(0.05)},
		Nodes:  []NodeSignals{tired},
	})
	assert.True(t, sel.Fallback)
	assert.Nil(t, sel.FocusNodeID)
	assert.Equal(t, "deepen", sel.Strategy.ID)
}

func TestEngine_EmptyGraphFallsBack(t *testing.T) {
	strategies := []domain.StrategyConfig{
		{ID: "deepen", SignalWeights: map[string]float64{signals.LLMSpecificity: 1}},
		{ID: "broaden", SignalWeights: map[string]float64{signals.LLMSpecificity: 1}},
	}
	e, err := NewEngine(strategies, testRegistry(), Config{DiversityPenalty: 0.3, DiversityWindow: 5, DefaultStrategy: "broaden"})
	require.NoError(t, err)

	sel := e.Select(Input{Global: signals.Values{signals.LLMSpecificity: signals.Float(1)}})
	assert.True(t, sel.Fallback)
	assert.Nil(t, sel.FocusNodeID)
	assert.Equal(t, "broaden", sel.Strategy.ID)
	assert.Empty(t, sel.Ranked)
}

func TestEngine_TieBreaks(t *testing.T) {
	strategies := []domain.StrategyConfig{
		{ID: "clarify", SignalWeights: map[string]float64{signals.GraphEmpty + ".false": 1}},
		{ID: "deepen", SignalWeights: map[string]float64{signals.GraphEmpty + ".false": 1}},
		{ID: "broaden", SignalWeights: map[string]float64{signals.GraphEmpty + ".false": 1}},
	}
	e, err := NewEngine(strategies, testRegistry(), Config{DiversityPenalty: 0, DiversityWindow: 5})
	require.NoError(t, err)

	first, second := node("first", nil), node("second", nil)
	ranked := e.Rank(Input{
		Global:           signals.Values{signals.GraphEmpty: signals.Bool(false)},
		Nodes:            []NodeSignals{first, second},
		RecentStrategies: []string{"clarify", "clarify", "deepen"},
	})
	require.Len(t, ranked, 6)

	got := make([]string, len(ranked))
	for i, c := range ranked {
		got[i] = c.StrategyID + "/" + c.NodeLabel
	}
	assert.Equal(t, []string{
		"broaden/first", "broaden/second",
		"deepen/first", "deepen/second",
		"clarify/first", "clarify/second",
	}, got)
}

func TestEngine_RankIsDeterministic(t *testing.T) {
	weights := map[string]float64{}
	for i, k := range []string{
		signals.LLMSpecificity, signals.LLMCertainty, signals.LLMEngagement, signals.GraphNodeCount,
		signals.GraphEdgeDensity, signals.GraphOrphanRatio, signals.NodeRecencyScore, signals.NodeYieldRate,
	} {
		weights[k] = 0.1 * float64(i+1)
	}
	e := newEngine(t, []domain.StrategyConfig{
		{ID: "deepen", SignalWeights: weights},
		{ID: "broaden", SignalWeights: weights},
	})
	in := Input{
		Global: signals.Values{
			signals.LLMSpecificity: signals.Float(0.1), signals.LLMCertainty: signals.Float(0.7),
			signals.LLMEngagement: signals.Float(0.3), signals.GraphNodeCount: signals.Float(0.9),
			signals.GraphEdgeDensity: signals.Float(0.11), signals.GraphOrphanRatio: signals.Float(0.33),
		},
		Nodes: []NodeSignals{
			node("a", signals.Values{signals.NodeRecencyScore: signals.Float(0.2), signals.NodeYieldRate: signals.Float(0.6)}),
			node("b", signals.Values{signals.NodeRecencyScore: signals.Float(0.6), signals.NodeYieldRate: signals.Float(0.2)}),
		},
		RecentStrategies: []string{"deepen"},
	}

	want := e.Rank(in)
	for i := 0; i < 50; i++ {
		assert.Equal(t, want, e.Rank(in))
	}
}

func TestNewEngine_RejectsMalformedStrategies(t *testing.T) {
	cases := map[string][]domain.StrategyConfig{
		"empty":            nil,
		"no id":            {{SignalWeights: map[string]float64{signals.LLMSpecificity: 1}}},
		"duplicate":        {{ID: "a"}, {ID: "a"}},
		"unknown key":      {{ID: "a", SignalWeights: map[string]float64{"llm.mood": 1}}},
		"bare category":    {{ID: "a", SignalWeights: map[string]float64{signals.LLMResponseDepth: 1}}},
		"bad veto op":      {{ID: "a", Vetoes: []domain.VetoPredicate{{Signal: signals.GraphEmpty, Operator: "!="}}}},
		"unknown veto key": {{ID: "a", Vetoes: []domain.VetoPredicate{{Signal: "graph.nope"}}}},
		"bad phase":        {{ID: "a", Phases: map[domain.Phase]domain.PhaseModifier{"finale": {}}}},
	}
	for name, strategies := range cases {
		_, err := NewEngine(strategies, testRegistry(), DefaultConfig())
		var cfgErr *domain.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr), name)
	}

	_, err := NewEngine([]domain.StrategyConfig{{ID: "a"}}, testRegistry(), Config{DefaultStrategy: "missing"})
	assert.Error(t, err)
}

func TestEngine_SignalKeys(t *testing.T) {
	e := newEngine(t, []domain.StrategyConfig{
		{ID: "a", SignalWeights: map[string]float64{signals.LLMSpecificity + ".high": 1, signals.GraphEmpty: 1}},
		{ID: "b", SignalWeights: map[string]float64{signals.GraphEmpty: 1}, Vetoes: []domain.VetoPredicate{{Signal: signals.NodeExhausted}}},
	})
	assert.Equal(t, []string{signals.GraphEmpty, signals.NodeExhausted, signals.LLMSpecificity + ".high"}, e.SignalKeys())
}
