package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SurfaceNode is a session-local, deduplicated concept the respondent actually said.
// Nodes are never deleted; the only mutation is appending source utterances.
type SurfaceNode struct {
	ID                 uuid.UUID `json:"id"`
	SessionID          uuid.UUID `json:"session_id"`
	Label              string    `json:"label"`
	NodeType           string    `json:"node_type"`
	Embedding          []float32 `json:"-"`
	SourceUtteranceIDs []string  `json:"source_utterance_ids"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasSource reports whether utteranceID is already recorded as provenance.
func (n *SurfaceNode) HasSource(utteranceID string) bool {
	for _, id := range n.SourceUtteranceIDs {
		if id == utteranceID {
			return true
		}
	}
	return false
}

type SurfaceNodeWithScore struct {
	SurfaceNode
	Score float64 `json:"score"`
}

const DefaultRelationType = "leads_to"

type SurfaceEdge struct {
	ID                uuid.UUID `json:"id"`
	SessionID         uuid.UUID `json:"session_id"`
	SourceNodeID      uuid.UUID `json:"source_node_id"`
	TargetNodeID      uuid.UUID `json:"target_node_id"`
	RelationType      string    `json:"relation_type"`
	SourceUtteranceID string    `json:"source_utterance_id"`
	CreatedAt         time.Time `json:"created_at"`
}

// NormalizeLabel is the comparison form used for exact (label, type) matching.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// ExtractedConcept is one concept returned by the extraction collaborator.
type ExtractedConcept struct {
	Text              string `json:"text"`
	NodeType          string `json:"node_type"`
	SourceUtteranceID string `json:"source_utterance_id"`
}

// ExtractedRelationship links two concepts by their text.
type ExtractedRelationship struct {
	SourceText        string `json:"source_text"`
	TargetText        string `json:"target_text"`
	RelationType      string `json:"relation_type,omitempty"`
	SourceUtteranceID string `json:"source_utterance_id"`
}

type Extraction struct {
	Concepts      []ExtractedConcept      `json:"concepts"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

type ExtractionInput struct {
	Text         string
	UtteranceID  string
	NodeTypes    []string
	RecentLabels []string
}
