package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/nodestate"
	"github.com/Harshitk-cp/elicit/internal/scoring"
	"github.com/Harshitk-cp/elicit/internal/signals"
	"github.com/Harshitk-cp/elicit/internal/store"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	DefaultMaxTurns        = 20
	DefaultRecentExchanges = 6
	// MaxReportedCandidates bounds the ranked candidates returned with a turn.
	MaxReportedCandidates = 5

	defaultOpeningQuestion = "To start, could you tell me what comes to mind when you think about this topic?"
	focusPlaceholder       = "{focus}"
)

// Degraded stage names reported on a turn.
const (
	StageEmbedding = "embedding"
	StageCanonical = "canonical"
	StageSignals   = "signals"
	StageQuestion  = "question"
)

type InterviewConfig struct {
	Methodology     domain.Methodology
	MaxTurns        int
	LLMTimeout      time.Duration
	RecentExchanges int
}

// InterviewDeps are the collaborators of the turn pipeline.
type InterviewDeps struct {
	Sessions   domain.SessionStore
	Utterances domain.UtteranceStore
	Graph      domain.SurfaceGraphStore
	NodeStates domain.NodeStateStore

	Surface   *SurfaceService
	Canonical *CanonicalService
	Detector  *signals.Detector
	Engine    *scoring.Engine

	Extractor domain.Extractor
	Questions domain.QuestionGenerator
}

type InterviewService struct {
	deps   InterviewDeps
	cfg    InterviewConfig
	logger *zap.Logger
}

func NewInterviewService(deps InterviewDeps, cfg InterviewConfig, logger *zap.Logger) *InterviewService {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.RecentExchanges <= 0 {
		cfg.RecentExchanges = DefaultRecentExchanges
	}
	return &InterviewService{deps: deps, cfg: cfg, logger: logger}
}

func (s *InterviewService) Methodology() domain.Methodology {
	return s.cfg.Methodology
}

func (s *InterviewService) Strategies() []domain.StrategyConfig {
	return s.deps.Engine.Strategies()
}

type SessionStart struct {
	Session  *domain.Session `json:"session"`
	Question string          `json:"question"`
}

// CreateSession persists a new session and returns its opening question,
// asked with the default strategy and no focus node.
func (s *InterviewService) CreateSession(ctx context.Context, topic string, maxTurns int, metadata map[string]any) (*SessionStart, error) {
	if maxTurns <= 0 {
		maxTurns = s.cfg.MaxTurns
	}
	sess := &domain.Session{
		Methodology: s.cfg.Methodology.Name,
		Topic:       strings.TrimSpace(topic),
		Status:      domain.SessionActive,
		MaxTurns:    maxTurns,
		Metadata:    metadata,
	}
	if err := s.deps.Sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	strategy := s.deps.Engine.DefaultStrategy()
	question, _ := s.question(ctx, sess, strategy, "", nil)

	sess.CurrentStrategy = strategy.ID
	sess.LastQuestion = question
	if err := s.deps.Sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if err := s.deps.Utterances.Create(ctx, &domain.Utterance{
		SessionID: sess.ID, TurnNumber: 0, Speaker: domain.SpeakerInterviewer, Text: question,
	}); err != nil {
		return nil, fmt.Errorf("persist opening question: %w", err)
	}

	s.logger.Info("session created",
		zap.String("session_id", sess.ID.String()),
		zap.String("strategy", strategy.ID),
		zap.Int("max_turns", sess.MaxTurns))
	return &SessionStart{Session: sess, Question: question}, nil
}

func (s *InterviewService) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	sess, err := s.deps.Sessions.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

type Graph struct {
	Nodes []domain.SurfaceNode `json:"nodes"`
	Edges []domain.SurfaceEdge `json:"edges"`
}

func (s *InterviewService) GetGraph(ctx context.Context, sessionID uuid.UUID) (*Graph, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	nodes, err := s.deps.Graph.ListNodes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	edges, err := s.deps.Graph.ListEdges(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Graph{Nodes: orEmpty(nodes), Edges: orEmpty(edges)}, nil
}

func (s *InterviewService) ListSlots(ctx context.Context, sessionID uuid.UUID, status *domain.SlotStatus) ([]domain.CanonicalSlot, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	slots, err := s.deps.Canonical.ListSlots(ctx, sessionID, status)
	return orEmpty(slots), err
}

func (s *InterviewService) ListNodeStates(ctx context.Context, sessionID uuid.UUID) ([]domain.NodeState, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	states, err := s.deps.NodeStates.ListBySession(ctx, sessionID)
	return orEmpty(states), err
}

type TurnResult struct {
	SessionID   uuid.UUID                `json:"session_id"`
	TurnNumber  int                      `json:"turn_number"`
	Question    string                   `json:"question"`
	Strategy    string                   `json:"strategy"`
	FocusNodeID *uuid.UUID               `json:"focus_node_id,omitempty"`
	FocusLabel  string                   `json:"focus_label,omitempty"`
	Score       float64                  `json:"score"`
	Fallback    bool                     `json:"fallback"`
	Phase       domain.Phase             `json:"phase"`
	Candidates  []domain.ScoredCandidate `json:"candidates"`
	NewNodes    int                      `json:"new_nodes"`
	NewEdges    int                      `json:"new_edges"`
	NewMappings int                      `json:"new_mappings"`
	Completed   bool                     `json:"completed"`
	Degraded    []string                 `json:"degraded,omitempty"`
}

// ProcessTurn runs one respondent answer through the pipeline and returns the
// next question. Each stage commits independently; a failed or cancelled turn
// keeps what earlier stages wrote.
func (s *InterviewService) ProcessTurn(ctx context.Context, sessionID uuid.UUID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrResponseEmpty
	}
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == domain.SessionCompleted {
		return nil, ErrSessionCompleted
	}

	turn := sess.TurnCount + 1
	log := s.logger.With(zap.String("session_id", sessionID.String()), zap.Int("turn", turn))
	res := &TurnResult{SessionID: sessionID, TurnNumber: turn}

	// 1. utterance
	utt := &domain.Utterance{SessionID: sessionID, TurnNumber: turn, Speaker: domain.SpeakerRespondent, Text: text}
	if err := s.deps.Utterances.Create(ctx, utt); err != nil {
		return nil, fmt.Errorf("persist utterance: %w", err)
	}

	// 2. extraction
	existing, err := s.deps.Graph.ListNodes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list surface nodes: %w", err)
	}
	extraction, err := s.extract(ctx, utt, existing)
	if err != nil {
		return nil, err
	}

	// 3. surface graph
	ingest, err := s.deps.Surface.IngestExtraction(ctx, sessionID, turn, extraction)
	if err != nil {
		return nil, fmt.Errorf("surface ingestion: %w", err)
	}
	if ingest.Degraded {
		res.Degraded = append(res.Degraded, StageEmbedding)
	}
	res.NewNodes = len(ingest.NewNodes)
	res.NewEdges = len(ingest.NewEdges)

	// 4. node state
	nodes, err := s.deps.Graph.ListNodes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list surface nodes: %w", err)
	}
	edges, err := s.deps.Graph.ListEdges(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list surface edges: %w", err)
	}
	states, err := s.deps.NodeStates.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load node states: %w", err)
	}
	tracker := nodestate.Restore(sessionID, states)
	if repaired := s.applyGraphChanges(tracker, turn, nodes, edges, ingest); repaired > 0 {
		log.Warn("registered nodes left without state by an earlier turn", zap.Int("nodes", repaired))
	}
	for _, id := range ingest.YieldedNodeIDs {
		if err := tracker.RecordYield(id, turn); err != nil {
			return nil, err
		}
	}
	if err := tracker.UpdateFocus(sess.FocusNodeID, turn, sess.CurrentStrategy); err != nil {
		return nil, err
	}

	// 5. canonical slots
	canonical, err := s.deps.Canonical.MapTurn(ctx, sessionID, turn, nodes)
	if err != nil {
		return nil, err
	}
	if canonical.Degraded {
		res.Degraded = append(res.Degraded, StageCanonical)
	}
	res.NewMappings = len(canonical.Mappings)

	// 6. signals
	summary := domain.TurnSummary{
		TurnNumber:  turn,
		Strategy:    sess.CurrentStrategy,
		FocusNodeID: sess.FocusNodeID,
		NewNodes:    len(ingest.NewNodes),
		NewEdges:    len(ingest.NewEdges),
		YieldNodes:  len(ingest.YieldedNodeIDs),
	}
	snapshot := tracker.Snapshot()
	detected, err := s.deps.Detector.Detect(ctx, signals.Input{
		SessionID:   sessionID,
		Turn:        turn,
		MaxTurns:    sess.MaxTurns,
		Methodology: s.cfg.Methodology,
		Nodes:       snapshot,
		History:     sess.History,
		Current:     &summary,
		Question:    sess.LastQuestion,
		Response:    text,
	})
	if err != nil {
		return nil, err
	}
	if detected.Degraded {
		res.Degraded = append(res.Degraded, StageSignals)
	}
	res.Phase = detected.Phase

	// 7. strategy selection
	sess.AppendHistory(summary)
	selection := s.deps.Engine.Select(scoring.Input{
		Global: detected.Global,
		Nodes: lo.Map(snapshot, func(ns domain.NodeState, _ int) scoring.NodeSignals {
			return scoring.NodeSignals{NodeID: ns.NodeID, Label: ns.Label, Values: detected.Nodes[ns.NodeID]}
		}),
		Phase:            detected.Phase,
		RecentStrategies: sess.RecentStrategies(0),
	})

	// 8. response depth for the node this answer was about
	if sess.FocusNodeID != nil && !detected.Degraded {
		if v, ok := detected.Global[signals.LLMResponseDepth]; ok {
			if err := tracker.RecordResponseDepth(*sess.FocusNodeID, domain.ResponseDepth(v.Category)); err != nil {
				return nil, err
			}
		}
	}

	// 9. next question
	question, generated := s.question(ctx, sess, selection.Strategy, selection.FocusLabel, utt)
	if !generated {
		res.Degraded = append(res.Degraded, StageQuestion)
	}

	// 10. persist
	if err := s.deps.NodeStates.UpsertMany(ctx, sessionID, tracker.Snapshot()); err != nil {
		return nil, fmt.Errorf("persist node states: %w", err)
	}
	sess.TurnCount = turn
	sess.FocusNodeID = selection.FocusNodeID
	sess.CurrentStrategy = selection.Strategy.ID
	sess.LastQuestion = question
	if turn >= sess.MaxTurns {
		sess.Status = domain.SessionCompleted
	}
	if err := s.deps.Sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if err := s.deps.Utterances.Create(ctx, &domain.Utterance{
		SessionID: sessionID, TurnNumber: turn, Speaker: domain.SpeakerInterviewer, Text: question,
	}); err != nil {
		return nil, fmt.Errorf("persist question: %w", err)
	}

	res.Question = question
	res.Strategy = selection.Strategy.ID
	res.FocusNodeID = selection.FocusNodeID
	res.FocusLabel = selection.FocusLabel
	res.Score = selection.Score
	res.Fallback = selection.Fallback
	res.Completed = sess.Status == domain.SessionCompleted
	res.Candidates = selection.Ranked
	if len(res.Candidates) > MaxReportedCandidates {
		res.Candidates = res.Candidates[:MaxReportedCandidates]
	}
	if res.Candidates == nil {
		res.Candidates = []domain.ScoredCandidate{}
	}

	log.Info("turn processed",
		zap.String("strategy", res.Strategy),
		zap.String("focus", res.FocusLabel),
		zap.Float64("score", res.Score),
		zap.Int("new_nodes", res.NewNodes),
		zap.Int("new_edges", res.NewEdges),
		zap.Strings("degraded", res.Degraded))
	return res, nil
}

func (s *InterviewService) extract(ctx context.Context, utt *domain.Utterance, existing []domain.SurfaceNode) (*domain.Extraction, error) {
	if s.deps.Extractor == nil {
		return nil, domain.NewExternalCallError("extraction", errors.New("no extractor configured"))
	}
	callCtx, cancel := s.withLLMTimeout(ctx)
	defer cancel()

	extraction, err := s.deps.Extractor.Extract(callCtx, domain.ExtractionInput{
		Text:         utt.Text,
		UtteranceID:  utt.ID.String(),
		NodeTypes:    s.cfg.Methodology.TypeNames(),
		RecentLabels: lo.Uniq(lo.Map(existing, func(n domain.SurfaceNode, _ int) string { return n.Label })),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.NewExternalCallError("extraction", err)
	}
	if extraction == nil {
		extraction = &domain.Extraction{}
	}

	// Drop concepts of types the methodology does not know.
	extraction.Concepts = lo.Filter(extraction.Concepts, func(c domain.ExtractedConcept, _ int) bool {
		_, ok := s.cfg.Methodology.NodeType(c.NodeType)
		return ok
	})
	return extraction, nil
}

// applyGraphChanges registers every stored node the tracker does not know yet
// and aligns edge counts with the stored graph. Surface writes commit before
// node states, so a turn that failed in between leaves nodes this picks up.
// It returns how many registered nodes were not created by this turn.
func (s *InterviewService) applyGraphChanges(t *nodestate.Tracker, turn int, nodes []domain.SurfaceNode, edges []domain.SurfaceEdge, ingest *IngestResult) int {
	created := lo.SliceToMap(ingest.NewNodes, func(n domain.SurfaceNode) (uuid.UUID, struct{}) { return n.ID, struct{}{} })
	repaired := 0
	for _, n := range nodes {
		nt, _ := s.cfg.Methodology.NodeType(n.NodeType)
		registered := t.RegisterNode(nodestate.Registration{
			NodeID:     n.ID,
			Label:      n.Label,
			NodeType:   n.NodeType,
			Turn:       turn,
			Depth:      nt.Level,
			Level:      nt.Level,
			IsTerminal: nt.Terminal,
		})
		if _, ok := created[n.ID]; registered && !ok {
			repaired++
		}
	}
	t.SyncEdgeCounts(edges)
	return repaired
}

// question asks the generator for the next question and falls back to the
// strategy's template. It reports false when a configured generator failed.
func (s *InterviewService) question(ctx context.Context, sess *domain.Session, strategy domain.StrategyConfig, focus string, latest *domain.Utterance) (string, bool) {
	if s.deps.Questions != nil {
		recent, err := s.deps.Utterances.ListRecent(ctx, sess.ID, s.cfg.RecentExchanges)
		if err != nil {
			s.logger.Warn("failed to load recent exchanges", zap.String("session_id", sess.ID.String()), zap.Error(err))
		}
		if latest != nil && !lo.ContainsBy(recent, func(u domain.Utterance) bool { return u.ID == latest.ID }) {
			recent = append(recent, *latest)
		}

		callCtx, cancel := s.withLLMTimeout(ctx)
		q, err := s.deps.Questions.GenerateQuestion(callCtx, domain.QuestionInput{
			Strategy:            strategy.ID,
			StrategyDescription: strategy.Description,
			FocusLabel:          focus,
			Topic:               sess.Topic,
			RecentExchanges:     recent,
		})
		cancel()
		if err == nil && strings.TrimSpace(q) != "" {
			return strings.TrimSpace(q), true
		}
		s.logger.Warn("question generation failed, using strategy template",
			zap.String("session_id", sess.ID.String()),
			zap.String("strategy", strategy.ID),
			zap.Error(err))
	}
	if s.deps.Questions == nil {
		return fallbackQuestion(strategy, focus), true
	}
	return fallbackQuestion(strategy, focus), false
}

func fallbackQuestion(strategy domain.StrategyConfig, focus string) string {
	q := strategy.FallbackQuestion
	if q == "" {
		return defaultOpeningQuestion
	}
	if focus == "" {
		focus = "that"
	}
	return strings.ReplaceAll(q, focusPlaceholder, focus)
}

func (s *InterviewService) withLLMTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.LLMTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.LLMTimeout)
	}
	return context.WithCancel(ctx)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
