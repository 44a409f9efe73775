package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

func ValidSessionStatus(s string) bool {
	switch SessionStatus(s) {
	case SessionActive, SessionCompleted:
		return true
	}
	return false
}

// MaxTurnHistory bounds the per-session turn history kept on the session record.
const MaxTurnHistory = 20

// TurnSummary is the compact record of one completed turn, used by temporal signals.
type TurnSummary struct {
	TurnNumber  int        `json:"turn_number"`
	Strategy    string     `json:"strategy"`
	FocusNodeID *uuid.UUID `json:"focus_node_id,omitempty"`
	NewNodes    int        `json:"new_nodes"`
	NewEdges    int        `json:"new_edges"`
	YieldNodes  int        `json:"yield_nodes"`
}

type Session struct {
	ID              uuid.UUID      `json:"id"`
	Methodology     string         `json:"methodology"`
	Topic           string         `json:"topic,omitempty"`
	Status          SessionStatus  `json:"status"`
	TurnCount       int            `json:"turn_count"`
	MaxTurns        int            `json:"max_turns"`
	FocusNodeID     *uuid.UUID     `json:"focus_node_id,omitempty"`
	CurrentStrategy string         `json:"current_strategy,omitempty"`
	LastQuestion    string         `json:"last_question,omitempty"`
	History         []TurnSummary  `json:"history"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// AppendHistory records a turn summary, keeping at most MaxTurnHistory entries.
func (s *Session) AppendHistory(t TurnSummary) {
	s.History = append(s.History, t)
	if len(s.History) > MaxTurnHistory {
		s.History = s.History[len(s.History)-MaxTurnHistory:]
	}
}

// RecentStrategies returns the strategies used in the last n turns, oldest first.
func (s *Session) RecentStrategies(n int) []string {
	h := s.History
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]string, 0, len(h))
	for _, t := range h {
		out = append(out, t.Strategy)
	}
	return out
}

type Speaker string

const (
	SpeakerRespondent  Speaker = "respondent"
	SpeakerInterviewer Speaker = "interviewer"
)

type Utterance struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	TurnNumber int       `json:"turn_number"`
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
