package domain

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotCandidate SlotStatus = "candidate"
	SlotActive    SlotStatus = "active"
)

func ValidSlotStatus(s string) bool {
	switch SlotStatus(s) {
	case SlotCandidate, SlotActive:
		return true
	}
	return false
}

// CanonicalSlot is a reusable category that several surface expressions map into.
// SupportCount never decreases and Status only moves candidate -> active.
type CanonicalSlot struct {
	ID            uuid.UUID  `json:"id"`
	SessionID     uuid.UUID  `json:"session_id"`
	SlotName      string     `json:"slot_name"`
	Lemma         string     `json:"lemma"`
	NodeType      string     `json:"node_type"`
	Description   string     `json:"description"`
	Embedding     []float32  `json:"-"`
	Status        SlotStatus `json:"status"`
	SupportCount  int        `json:"support_count"`
	FirstSeenTurn int        `json:"first_seen_turn"`
	PromotedAt    *time.Time `json:"promoted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type CanonicalSlotWithScore struct {
	CanonicalSlot
	Score float64 `json:"score"`
}

type MatchKind string

const (
	MatchExact      MatchKind = "exact"
	MatchSimilarity MatchKind = "similarity"
	MatchNew        MatchKind = "new"
)

type SurfaceToSlotMapping struct {
	SurfaceNodeID uuid.UUID `json:"surface_node_id"`
	SlotID        uuid.UUID `json:"slot_id"`
	SessionID     uuid.UUID `json:"session_id"`
	TurnNumber    int       `json:"turn_number"`
	MatchKind     MatchKind `json:"match_kind"`
	Similarity    float64   `json:"similarity,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SlotProposal is one grouping suggested by the proposal collaborator.
type SlotProposal struct {
	SlotName      string      `json:"slot_name"`
	Description   string      `json:"description"`
	MemberNodeIDs []uuid.UUID `json:"member_node_ids"`
}

// SlotProposalNode is the view of a surface node sent to the proposal collaborator.
type SlotProposalNode struct {
	ID    uuid.UUID `json:"id"`
	Label string    `json:"label"`
}

type SlotProposalInput struct {
	// Groups maps node type to the unmapped nodes of that type.
	Groups          map[string][]SlotProposalNode
	ActiveSlotNames []string
}
