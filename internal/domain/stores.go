package domain

import (
	"context"

	"github.com/google/uuid"
)

type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
}

type UtteranceStore interface {
	Create(ctx context.Context, u *Utterance) error
	ListRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]Utterance, error)
}

type SurfaceGraphStore interface {
	CreateNode(ctx context.Context, n *SurfaceNode) error
	GetNode(ctx context.Context, id uuid.UUID) (*SurfaceNode, error)
	// FindNodeByLabel matches label case-insensitively within (session, type).
	FindNodeByLabel(ctx context.Context, sessionID uuid.UUID, label string, nodeType string) (*SurfaceNode, error)
	// FindMostSimilarNode returns the best cosine match among same-type session nodes that
	// carry an embedding, earliest created first on equal scores. ErrNotFound when none exist.
	FindMostSimilarNode(ctx context.Context, sessionID uuid.UUID, nodeType string, embedding []float32) (*SurfaceNodeWithScore, error)
	AppendNodeSource(ctx context.Context, id uuid.UUID, utteranceID string) error
	ListNodes(ctx context.Context, sessionID uuid.UUID) ([]SurfaceNode, error)

	// CreateEdge reports false when an identical (source, target, relation) edge exists.
	CreateEdge(ctx context.Context, e *SurfaceEdge) (bool, error)
	ListEdges(ctx context.Context, sessionID uuid.UUID) ([]SurfaceEdge, error)
}

type CanonicalSlotStore interface {
	CreateSlot(ctx context.Context, s *CanonicalSlot) error
	GetSlot(ctx context.Context, id uuid.UUID) (*CanonicalSlot, error)
	FindSlotByLemma(ctx context.Context, sessionID uuid.UUID, lemma string) (*CanonicalSlot, error)
	// FindMostSimilarSlot searches active and candidate slots of the session.
	FindMostSimilarSlot(ctx context.Context, sessionID uuid.UUID, embedding []float32) (*CanonicalSlotWithScore, error)
	ListSlots(ctx context.Context, sessionID uuid.UUID, status *SlotStatus) ([]CanonicalSlot, error)
	// IncrementSupport adds delta (>0) and returns the new support count.
	IncrementSupport(ctx context.Context, id uuid.UUID, delta int) (int, error)
	// Promote moves a candidate slot to active; it reports false when the slot was already active.
	Promote(ctx context.Context, id uuid.UUID) (bool, error)

	// CreateMapping reports false when the surface node is already mapped.
	CreateMapping(ctx context.Context, m *SurfaceToSlotMapping) (bool, error)
	ListMappings(ctx context.Context, sessionID uuid.UUID) ([]SurfaceToSlotMapping, error)
	MappedNodeIDs(ctx context.Context, sessionID uuid.UUID, nodeIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

type NodeStateStore interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]NodeState, error)
	UpsertMany(ctx context.Context, sessionID uuid.UUID, states []NodeState) error
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Extractor turns a respondent utterance into concepts and relationships.
type Extractor interface {
	Extract(ctx context.Context, input ExtractionInput) (*Extraction, error)
}

// SlotProposer groups surface nodes into proposed canonical slots.
type SlotProposer interface {
	ProposeSlots(ctx context.Context, input SlotProposalInput) ([]SlotProposal, error)
}

// RubricScorer rates one (question, response) exchange on a fixed schema in one round trip.
type RubricScorer interface {
	ScoreResponse(ctx context.Context, input RubricInput) (*RubricScores, error)
}

type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, input QuestionInput) (string, error)
}

const (
	RubricQuestionLimit = 200
	RubricResponseLimit = 500
)

type RubricInput struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

// TruncatedRubricInput clips question and response to the collaborator limits.
func TruncatedRubricInput(question, response string) RubricInput {
	return RubricInput{
		Question: truncateRunes(question, RubricQuestionLimit),
		Response: truncateRunes(response, RubricResponseLimit),
	}
}

type RubricScores struct {
	ResponseDepth ResponseDepth `json:"response_depth"`
	Specificity   float64       `json:"specificity"`
	Certainty     float64       `json:"certainty"`
	Engagement    float64       `json:"engagement"`
	Valence       float64       `json:"valence"`
	Relevance     float64       `json:"relevance"`
	Hedging       bool          `json:"hedging"`
}

type QuestionInput struct {
	Strategy            string
	StrategyDescription string
	FocusLabel          string
	Topic               string
	RecentExchanges     []Utterance
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// LLMClient bundles the language-model collaborators of the turn pipeline.
type LLMClient interface {
	Extractor
	SlotProposer
	RubricScorer
	QuestionGenerator
}
