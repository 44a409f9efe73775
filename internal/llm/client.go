package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/google/uuid"
)

// completer is a single-prompt chat round trip against one provider.
type completer interface {
	complete(ctx context.Context, prompt string, temp float64) (string, error)
}

// Client implements the interview collaborators on top of any provider.
type Client struct {
	provider completer
}

func newClient(p completer) *Client {
	return &Client{provider: p}
}

func (c *Client) Extract(ctx context.Context, input domain.ExtractionInput) (*domain.Extraction, error) {
	recent := "(none)"
	if len(input.RecentLabels) > 0 {
		recent = strings.Join(input.RecentLabels, ", ")
	}
	prompt := fmt.Sprintf(extractPrompt, strings.Join(input.NodeTypes, ", "), recent, input.Text)

	text, err := c.provider.complete(ctx, prompt, 0.1)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	var raw domain.Extraction
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	allowed := make(map[string]bool, len(input.NodeTypes))
	for _, t := range input.NodeTypes {
		allowed[t] = true
	}

	out := &domain.Extraction{
		Concepts:      []domain.ExtractedConcept{},
		Relationships: []domain.ExtractedRelationship{},
	}
	for _, concept := range raw.Concepts {
		concept.Text = strings.TrimSpace(concept.Text)
		if concept.Text == "" || !allowed[concept.NodeType] {
			continue
		}
		concept.SourceUtteranceID = input.UtteranceID
		out.Concepts = append(out.Concepts, concept)
	}
	for _, rel := range raw.Relationships {
		rel.SourceText = strings.TrimSpace(rel.SourceText)
		rel.TargetText = strings.TrimSpace(rel.TargetText)
		if rel.SourceText == "" || rel.TargetText == "" {
			continue
		}
		if rel.RelationType == "" {
			rel.RelationType = domain.DefaultRelationType
		}
		rel.SourceUtteranceID = input.UtteranceID
		out.Relationships = append(out.Relationships, rel)
	}
	return out, nil
}

type slotProposalResponse struct {
	SlotName      string   `json:"slot_name"`
	Description   string   `json:"description"`
	MemberNodeIDs []string `json:"member_node_ids"`
}

func (c *Client) ProposeSlots(ctx context.Context, input domain.SlotProposalInput) ([]domain.SlotProposal, error) {
	types := make([]string, 0, len(input.Groups))
	for t := range input.Groups {
		types = append(types, t)
	}
	sort.Strings(types)

	var sb strings.Builder
	for _, t := range types {
		fmt.Fprintf(&sb, "[%s]\n", t)
		for _, n := range input.Groups[t] {
			fmt.Fprintf(&sb, "- %s: %s\n", n.ID, n.Label)
		}
	}
	active := "(none)"
	if len(input.ActiveSlotNames) > 0 {
		active = strings.Join(input.ActiveSlotNames, ", ")
	}
	prompt := fmt.Sprintf(slotProposalPrompt, active, sb.String())

	text, err := c.provider.complete(ctx, prompt, 0.2)
	if err != nil {
		return nil, fmt.Errorf("propose slots: %w", err)
	}

	var raw []slotProposalResponse
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, fmt.Errorf("parse slot proposal response: %w", err)
	}

	proposals := make([]domain.SlotProposal, 0, len(raw))
	for _, r := range raw {
		name := strings.TrimSpace(r.SlotName)
		if name == "" {
			continue
		}
		p := domain.SlotProposal{SlotName: name, Description: strings.TrimSpace(r.Description)}
		for _, s := range r.MemberNodeIDs {
			id, err := uuid.Parse(strings.TrimSpace(s))
			if err != nil {
				continue
			}
			p.MemberNodeIDs = append(p.MemberNodeIDs, id)
		}
		if len(p.MemberNodeIDs) > 0 {
			proposals = append(proposals, p)
		}
	}
	return proposals, nil
}

func (c *Client) ScoreResponse(ctx context.Context, input domain.RubricInput) (*domain.RubricScores, error) {
	prompt := fmt.Sprintf(rubricPrompt, input.Question, input.Response)

	text, err := c.provider.complete(ctx, prompt, 0)
	if err != nil {
		return nil, fmt.Errorf("score response: %w", err)
	}

	var scores domain.RubricScores
	if err := json.Unmarshal([]byte(stripFences(text)), &scores); err != nil {
		return nil, fmt.Errorf("parse rubric response: %w", err)
	}
	if !domain.ValidResponseDepth(string(scores.ResponseDepth)) {
		return nil, fmt.Errorf("invalid response_depth %q in rubric response", scores.ResponseDepth)
	}
	scores.Specificity = clampUnit(scores.Specificity)
	scores.Certainty = clampUnit(scores.Certainty)
	scores.Engagement = clampUnit(scores.Engagement)
	scores.Valence = clampUnit(scores.Valence)
	scores.Relevance = clampUnit(scores.Relevance)
	return &scores, nil
}

func (c *Client) GenerateQuestion(ctx context.Context, input domain.QuestionInput) (string, error) {
	var sb strings.Builder
	for _, u := range input.RecentExchanges {
		fmt.Fprintf(&sb, "%s: %s\n", u.Speaker, u.Text)
	}
	focus := input.FocusLabel
	if focus == "" {
		focus = "(no specific concept)"
	}
	topic := input.Topic
	if topic == "" {
		topic = "(unspecified)"
	}
	prompt := fmt.Sprintf(questionPrompt, topic, input.Strategy, input.StrategyDescription, focus, sb.String())

	text, err := c.provider.complete(ctx, prompt, 0.7)
	if err != nil {
		return "", fmt.Errorf("generate question: %w", err)
	}
	q := strings.Trim(strings.TrimSpace(text), `"`)
	if q == "" {
		return "", fmt.Errorf("empty question from provider")
	}
	return q, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
