package llm

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/elicit/internal/domain"
)

// MockClient is a configurable LLM client for testing.
// Set the response fields to control what each method returns.
type MockClient struct {
	ExtractResponse          *domain.Extraction
	ExtractError             error
	ProposeSlotsResponse     []domain.SlotProposal
	ProposeSlotsError        error
	ScoreResponseResponse    *domain.RubricScores
	ScoreResponseError       error
	GenerateQuestionResponse string
	GenerateQuestionError    error

	// ProposeSlotsFunc, when set, derives proposals from the input.
	ProposeSlotsFunc func(domain.SlotProposalInput) []domain.SlotProposal

	mu sync.Mutex

	// Call tracking for assertions
	ExtractCalls          []domain.ExtractionInput
	ProposeSlotsCalls     []domain.SlotProposalInput
	ScoreResponseCalls    []domain.RubricInput
	GenerateQuestionCalls []domain.QuestionInput
}

func NewMockClient() *MockClient {
	return &MockClient{
		ExtractResponse: &domain.Extraction{
			Concepts:      []domain.ExtractedConcept{},
			Relationships: []domain.ExtractedRelationship{},
		},
		ProposeSlotsResponse: []domain.SlotProposal{},
		ScoreResponseResponse: &domain.RubricScores{
			ResponseDepth: domain.DepthModerate,
			Specificity:   0.5,
			Certainty:     0.5,
			Engagement:    0.5,
			Valence:       0.5,
			Relevance:     0.5,
		},
		GenerateQuestionResponse: "Mock question?",
	}
}

func (c *MockClient) Extract(ctx context.Context, input domain.ExtractionInput) (*domain.Extraction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ExtractCalls = append(c.ExtractCalls, input)
	if c.ExtractError != nil {
		return nil, c.ExtractError
	}
	out := &domain.Extraction{}
	for _, concept := range c.ExtractResponse.Concepts {
		if concept.SourceUtteranceID == "" {
			concept.SourceUtteranceID = input.UtteranceID
		}
		out.Concepts = append(out.Concepts, concept)
	}
	for _, rel := range c.ExtractResponse.Relationships {
		if rel.SourceUtteranceID == "" {
			rel.SourceUtteranceID = input.UtteranceID
		}
		out.Relationships = append(out.Relationships, rel)
	}
	return out, nil
}

func (c *MockClient) ProposeSlots(ctx context.Context, input domain.SlotProposalInput) ([]domain.SlotProposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ProposeSlotsCalls = append(c.ProposeSlotsCalls, input)
	if c.ProposeSlotsError != nil {
		return nil, c.ProposeSlotsError
	}
	if c.ProposeSlotsFunc != nil {
		return c.ProposeSlotsFunc(input), nil
	}
	return c.ProposeSlotsResponse, nil
}

func (c *MockClient) ScoreResponse(ctx context.Context, input domain.RubricInput) (*domain.RubricScores, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScoreResponseCalls = append(c.ScoreResponseCalls, input)
	if c.ScoreResponseError != nil {
		return nil, c.ScoreResponseError
	}
	scores := *c.ScoreResponseResponse
	return &scores, nil
}

func (c *MockClient) GenerateQuestion(ctx context.Context, input domain.QuestionInput) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GenerateQuestionCalls = append(c.GenerateQuestionCalls, input)
	if c.GenerateQuestionError != nil {
		return "", c.GenerateQuestionError
	}
	return c.GenerateQuestionResponse, nil
}

// Reset clears all call tracking.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ExtractCalls = nil
	c.ProposeSlotsCalls = nil
	c.ScoreResponseCalls = nil
	c.GenerateQuestionCalls = nil
}
