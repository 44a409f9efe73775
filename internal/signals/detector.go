package signals

import (
	"context"
	"time"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Input is what the turn pipeline hands the detector. Nodes must reflect the
// yield and focus updates of the turn being scored.
type Input struct {
	SessionID   uuid.UUID
	Turn        int
	MaxTurns    int
	Methodology domain.Methodology
	Nodes       []domain.NodeState
	History     []domain.TurnSummary
	Current     *domain.TurnSummary
	Question    string
	Response    string
}

type Result struct {
	Global Values
	Nodes  map[uuid.UUID]Values
	Phase  domain.Phase

	Degraded      bool
	DegradedPools []Pool
}

// ForNode merges the global values with the node's values.
func (r *Result) ForNode(id uuid.UUID) Values {
	return r.Global.Merge(r.Nodes[id])
}

type Detector struct {
	plan          *plan
	rubric        domain.RubricScorer
	params        Params
	rubricTimeout time.Duration
	logger        *zap.Logger
}

type DetectorOption func(*Detector)

func WithRubricTimeout(d time.Duration) DetectorOption {
	return func(det *Detector) { det.rubricTimeout = d }
}

// NewDetector resolves the closure of keys plus meta.interview.phase. Keys may
// carry a band or literal suffix as used in strategy weights.
func NewDetector(reg *Registry, keys []string, rubric domain.RubricScorer, params Params, logger *zap.Logger, opts ...DetectorOption) (*Detector, error) {
	if params.Window <= 0 {
		return nil, domain.NewConfigurationError("signals", "temporal window must be positive, got %d", params.Window)
	}
	if params.PhaseLateStart < params.PhaseMidStart {
		return nil, domain.NewConfigurationError("signals", "late phase start %d before mid phase start %d", params.PhaseLateStart, params.PhaseMidStart)
	}

	seen := map[string]bool{MetaInterviewPhase: true}
	bases := []string{MetaInterviewPhase}
	for _, k := range keys {
		base, _, err := reg.ParseKey(k)
		if err != nil {
			return nil, err
		}
		if !seen[base] {
			seen[base] = true
			bases = append(bases, base)
		}
	}
	p, err := reg.resolve(bases)
	if err != nil {
		return nil, err
	}

	d := &Detector{plan: p, rubric: rubric, params: params, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Keys lists every signal the detector computes, in evaluation order.
func (d *Detector) Keys() []string {
	keys := make([]string, 0, len(d.plan.global)+len(d.plan.node))
	for _, def := range d.plan.global {
		keys = append(keys, def.Key)
	}
	for _, def := range d.plan.node {
		keys = append(keys, def.Key)
	}
	return keys
}

func (d *Detector) Params() Params {
	return d.params
}

// Detect computes all signals for one turn. It never mutates its input. A
// failed rubric call degrades the llm pool to neutral values; only context
// cancellation is returned as an error.
func (d *Detector) Detect(ctx context.Context, in Input) (*Result, error) {
	tc := TurnContext{
		SessionID:   in.SessionID,
		Turn:        in.Turn,
		MaxTurns:    in.MaxTurns,
		Params:      d.params,
		Methodology: in.Methodology,
		Nodes:       in.Nodes,
		Window:      windowed(in.History, in.Current, d.params.Window),
		Question:    in.Question,
		Response:    in.Response,
	}

	var (
		rubric    *domain.RubricScores
		rubricErr error
		snap      GraphSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	if d.plan.pools[PoolLLM] {
		g.Go(func() error {
			rubric, rubricErr = d.fetchRubric(gctx, in.Question, in.Response)
			return nil
		})
	}
	g.Go(func() error {
		snap = BuildGraphSnapshot(in.Nodes, in.Methodology)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tc.Graph = snap
	tc.Rubric = rubric

	res := &Result{}
	if d.plan.pools[PoolLLM] && rubricErr != nil {
		res.Degraded = true
		res.DegradedPools = append(res.DegradedPools, PoolLLM)
		d.logger.Warn("rubric scoring failed, using neutral llm signals",
			zap.String("session_id", in.SessionID.String()),
			zap.Int("turn", in.Turn),
			zap.Error(rubricErr))
	}

	res.Global, res.Nodes = d.plan.evaluate(tc)
	res.Phase = domain.Phase(res.Global[MetaInterviewPhase].Category)
	return res, nil
}

func (d *Detector) fetchRubric(ctx context.Context, question, response string) (*domain.RubricScores, error) {
	if d.rubric == nil {
		return nil, domain.NewExternalCallError("rubric", errNoRubricScorer)
	}
	if d.rubricTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.rubricTimeout)
		defer cancel()
	}
	scores, err := d.rubric.ScoreResponse(ctx, domain.TruncatedRubricInput(question, response))
	if err != nil {
		return nil, domain.NewExternalCallError("rubric", err)
	}
	if scores == nil {
		return nil, domain.NewExternalCallError("rubric", errEmptyRubric)
	}
	return scores, nil
}
