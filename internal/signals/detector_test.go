package signals

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type fakeRubric struct {
	scores *domain.RubricScores
	err    error
	calls  atomic.Int32
	last   domain.RubricInput
}

func (f *fakeRubric) ScoreResponse(ctx context.Context, in domain.RubricInput) (*domain.RubricScores, error) {
	f.calls.Add(1)
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func testMethodology() domain.Methodology {
	return domain.Methodology{
		Name: "laddering",
		NodeTypes: []domain.NodeTypeSpec{
			{Name: "attribute", Level: 1},
			{Name: "consequence", Level: 2},
			{Name: "value", Level: 3, Terminal: true},
		},
	}
}

func allKeys(t *testing.T) []string {
	t.Helper()
	return DefaultRegistry(nil).Keys()
}

func newTestDetector(t *testing.T, keys []string, rubric domain.RubricScorer) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultRegistry([]string{"deepen", "broaden"}), keys, rubric, DefaultParams(), zap.NewNop())
	require.NoError(t, err)
	return d
}

func sampleNodes() []domain.NodeState {
	return []domain.NodeState{
		{NodeID: uuid.New(), Label: "price", NodeType: "attribute", Level: 1, RegisteredTurn: 1,
			FocusCount: 3, CurrentFocusStreak: 3, TurnsSinceLastYield: 4, EdgeCountOutgoing: 1,
			ResponseDepths: []domain.ResponseDepth{domain.DepthShallow, domain.DepthSurface}},
		{NodeID: uuid.New(), Label: "saves money", NodeType: "consequence", Level: 2, RegisteredTurn: 2,
			EdgeCountIncoming: 1},
		{NodeID: uuid.New(), Label: "security", NodeType: "value", Level: 3, IsTerminal: true, RegisteredTurn: 3},
	}
}

func TestDetector_AllFloatsInUnitRange(t *testing.T) {
	defer goleak.VerifyNone(t)

	rubric := &fakeRubric{scores: &domain.RubricScores{
		ResponseDepth: domain.DepthDeep, Specificity: 1.7, Certainty: -0.2, Engagement: 0.9, Valence: 0.4, Relevance: 1,
	}}
	d := newTestDetector(t, allKeys(t), rubric)

	res, err := d.Detect(context.Background(), Input{
		SessionID:   uuid.New(),
		Turn:        7,
		MaxTurns:    20,
		Methodology: testMethodology(),
		Nodes:       sampleNodes(),
		History: []domain.TurnSummary{
			{TurnNumber: 5, Strategy: "deepen", NewNodes: 9, NewEdges: 4, YieldNodes: 3},
			{TurnNumber: 6, Strategy: "deepen", NewNodes: 1, YieldNodes: 1},
		},
		Current:  &domain.TurnSummary{TurnNumber: 7, NewNodes: 0, YieldNodes: 0},
		Question: "why does price matter?",
		Response: "it just does",
	})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, int32(1), rubric.calls.Load())

	check := func(vals Values) {
		for k, v := range vals {
			if v.Kind == KindFloat {
				assert.GreaterOrEqual(t, v.Float, 0.0, k)
				assert.LessOrEqual(t, v.Float, 1.0, k)
			}
		}
	}
	check(res.Global)
	require.Len(t, res.Nodes, 3)
	for _, nv := range res.Nodes {
		check(nv)
	}

	assert.Equal(t, 1.0, res.Global[LLMSpecificity].Float)
	assert.Equal(t, 0.0, res.Global[LLMCertainty].Float)
	assert.Equal(t, "deep", res.Global[LLMResponseDepth].Category)
	assert.Equal(t, domain.PhaseMid, res.Phase)
	assert.Equal(t, "deepen", res.Global[TemporalLastStrategy].Category)
	assert.Equal(t, TrendFalling, res.Global[TemporalVelocityTrend].Category)
	assert.True(t, res.Global[GraphHasTerminal].Bool)
	assert.InDelta(t, 1.0, res.Global[GraphTypeCoverage].Float, 1e-9)
}

func TestDetector_RubricFailureUsesNeutralDefaults(t *testing.T) {
	defer goleak.VerifyNone(t)

	rubric := &fakeRubric{err: errors.New("model unavailable")}
	d := newTestDetector(t, []string{LLMSpecificity, LLMHedging, LLMResponseDepth, MetaRespondentFatigue}, rubric)

	res, err := d.Detect(context.Background(), Input{
		Turn: 1, MaxTurns: 10, Methodology: testMethodology(),
		Question: "q", Response: "r",
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, []Pool{PoolLLM}, res.DegradedPools)
	assert.Equal(t, 0.5, res.Global[LLMSpecificity].Float)
	assert.False(t, res.Global[LLMHedging].Bool)
	assert.Equal(t, string(domain.DepthModerate), res.Global[LLMResponseDepth].Category)
	// 0.5*(1-0.5) + 0.5*0.1
	assert.InDelta(t, 0.3, res.Global[MetaRespondentFatigue].Float, 1e-9)
}

func TestDetector_NilRubricScorerDegrades(t *testing.T) {
	d := newTestDetector(t, []string{LLMEngagement}, nil)

	res, err := d.Detect(context.Background(), Input{Turn: 1, MaxTurns: 10})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, 0.5, res.Global[LLMEngagement].Float)
}

func TestDetector_SkipsRubricWhenNoLLMSignalRequired(t *testing.T) {
	rubric := &fakeRubric{scores: &domain.RubricScores{}}
	d := newTestDetector(t, []string{GraphNodeCount, NodeExhausted}, rubric)

	res, err := d.Detect(context.Background(), Input{Turn: 2, MaxTurns: 10, Nodes: sampleNodes()})
	require.NoError(t, err)
	assert.Zero(t, rubric.calls.Load())
	assert.False(t, res.Degraded)
	_, hasLLM := res.Global[LLMEngagement]
	assert.False(t, hasLLM)
}

func TestDetector_TruncatesRubricInput(t *testing.T) {
	rubric := &fakeRubric{scores: &domain.RubricScores{ResponseDepth: domain.DepthShallow}}
	d := newTestDetector(t, []string{LLMRelevance}, rubric)

	long := make([]rune, 900)
	for i := range long {
		long[i] = 'é'
	}
	_, err := d.Detect(context.Background(), Input{Turn: 1, MaxTurns: 5, Question: string(long), Response: string(long)})
	require.NoError(t, err)
	assert.Len(t, []rune(rubric.last.Question), domain.RubricQuestionLimit)
	assert.Len(t, []rune(rubric.last.Response), domain.RubricResponseLimit)
}

func TestDetector_CanceledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	rubric := &fakeRubric{err: context.Canceled}
	d := newTestDetector(t, []string{LLMRelevance}, rubric)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Detect(ctx, Input{Turn: 1, MaxTurns: 5})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetector_NodeLevelSignals(t *testing.T) {
	d := newTestDetector(t, []string{MetaNodeOpportunity, NodeFocusStreak, NodeLevel}, nil)
	nodes := sampleNodes()

	res, err := d.Detect(context.Background(), Input{Turn: 5, MaxTurns: 20, Methodology: testMethodology(), Nodes: nodes})
	require.NoError(t, err)

	exhausted := res.Nodes[nodes[0].NodeID]
	assert.True(t, exhausted[NodeExhausted].Bool)
	assert.Equal(t, OpportunityExhausted, exhausted[MetaNodeOpportunity].Category)
	assert.Equal(t, string(domain.StreakMedium), exhausted[NodeFocusStreak].Category)

	fresh := res.Nodes[nodes[1].NodeID]
	assert.Equal(t, OpportunityFresh, fresh[MetaNodeOpportunity].Category)
	assert.InDelta(t, 2.0/3.0, fresh[NodeLevel].Float, 1e-9)

	merged := res.ForNode(nodes[1].NodeID)
	assert.Contains(t, merged, MetaInterviewPhase)
	assert.Contains(t, merged, NodeExhausted)
}

func TestDetector_PhaseBoundaries(t *testing.T) {
	d := newTestDetector(t, nil, nil)
	cases := []struct {
		turn, max int
		want      domain.Phase
	}{
		{1, 30, domain.PhaseEarly},
		{3, 30, domain.PhaseEarly},
		{4, 30, domain.PhaseMid},
		{11, 30, domain.PhaseMid},
		{12, 30, domain.PhaseLate},
		{4, 5, domain.PhaseLate},
	}
	for _, c := range cases {
		res, err := d.Detect(context.Background(), Input{Turn: c.turn, MaxTurns: c.max})
		require.NoError(t, err)
		assert.Equal(t, c.want, res.Phase, "turn %d of %d", c.turn, c.max)
	}
}

func TestDetector_Deterministic(t *testing.T) {
	rubric := &fakeRubric{scores: &domain.RubricScores{ResponseDepth: domain.DepthModerate, Engagement: 0.3}}
	d := newTestDetector(t, allKeys(t), rubric)
	in := Input{Turn: 3, MaxTurns: 12, Methodology: testMethodology(), Nodes: sampleNodes()}

	first, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := d.Detect(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, first.Global, again.Global)
		assert.Equal(t, first.Nodes, again.Nodes)
	}
}
