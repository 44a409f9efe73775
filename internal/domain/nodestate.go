package domain

import (
	"time"

	"github.com/google/uuid"
)

type ResponseDepth string

const (
	DepthSurface  ResponseDepth = "surface"
	DepthShallow  ResponseDepth = "shallow"
	DepthModerate ResponseDepth = "moderate"
	DepthDeep     ResponseDepth = "deep"
)

func ValidResponseDepth(d string) bool {
	switch ResponseDepth(d) {
	case DepthSurface, DepthShallow, DepthModerate, DepthDeep:
		return true
	}
	return false
}

// IsShallow reports whether the depth counts against a node in exhaustion.
func (d ResponseDepth) IsShallow() bool {
	return d == DepthSurface || d == DepthShallow
}

type FocusStreakBucket string

const (
	StreakNone   FocusStreakBucket = "none"
	StreakLow    FocusStreakBucket = "low"
	StreakMedium FocusStreakBucket = "medium"
	StreakHigh   FocusStreakBucket = "high"
)

// Node state tuning constants.
const (
	MaxResponseDepthHistory = 5

	exhaustionYieldHorizon  = 5.0
	exhaustionStreakHorizon = 4.0
	exhaustionYieldWeight   = 0.4
	exhaustionStreakWeight  = 0.3
	exhaustionShallowWeight = 0.3
	ExhaustionThreshold     = 0.6

	YieldStagnationTurns = 3
	recencyHorizon       = 10.0
)

// NodeState is the per (session, node) exploration bookkeeping record.
type NodeState struct {
	SessionID uuid.UUID `json:"session_id"`
	NodeID    uuid.UUID `json:"node_id"`
	Label     string    `json:"label"`
	NodeType  string    `json:"node_type"`

	RegisteredTurn int  `json:"registered_turn"`
	Depth          int  `json:"depth"`
	Level          int  `json:"level"`
	IsTerminal     bool `json:"is_terminal"`

	FocusCount          int `json:"focus_count"`
	LastFocusTurn       int `json:"last_focus_turn"`
	CurrentFocusStreak  int `json:"current_focus_streak"`
	TurnsSinceLastFocus int `json:"turns_since_last_focus"`

	TurnsSinceLastYield int     `json:"turns_since_last_yield"`
	LastYieldTurn       int     `json:"last_yield_turn"`
	YieldCount          int     `json:"yield_count"`
	YieldRate           float64 `json:"yield_rate"`

	EdgeCountIncoming int `json:"edge_count_incoming"`
	EdgeCountOutgoing int `json:"edge_count_outgoing"`

	StrategyUsageCount      map[string]int `json:"strategy_usage_count"`
	LastStrategyUsed        string         `json:"last_strategy_used,omitempty"`
	ConsecutiveSameStrategy int            `json:"consecutive_same_strategy"`

	ResponseDepths []ResponseDepth `json:"response_depths"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so snapshots never alias tracker state.
func (s NodeState) Clone() NodeState {
	c := s
	if s.StrategyUsageCount != nil {
		c.StrategyUsageCount = make(map[string]int, len(s.StrategyUsageCount))
		for k, v := range s.StrategyUsageCount {
			c.StrategyUsageCount[k] = v
		}
	}
	c.ResponseDepths = append([]ResponseDepth(nil), s.ResponseDepths...)
	return c
}

func (s NodeState) Focused() bool {
	return s.FocusCount > 0
}

// ShallowRatio is the share of recorded response depths that were surface or shallow.
func (s NodeState) ShallowRatio() float64 {
	if len(s.ResponseDepths) == 0 {
		return 0
	}
	shallow := 0
	for _, d := range s.ResponseDepths {
		if d.IsShallow() {
			shallow++
		}
	}
	return float64(shallow) / float64(len(s.ResponseDepths))
}

// ExhaustionScore estimates how unlikely further probing is to yield new information.
// Nodes that were never focused are not exhausted.
func (s NodeState) ExhaustionScore() float64 {
	if !s.Focused() {
		return 0
	}
	yield := minFloat(float64(s.TurnsSinceLastYield)/exhaustionYieldHorizon, 1)
	streak := minFloat(float64(s.CurrentFocusStreak)/exhaustionStreakHorizon, 1)
	score := exhaustionYieldWeight*yield + exhaustionStreakWeight*streak + exhaustionShallowWeight*s.ShallowRatio()
	return clampUnit(score)
}

func (s NodeState) Exhausted() bool {
	return s.ExhaustionScore() >= ExhaustionThreshold
}

func (s NodeState) YieldStagnation() bool {
	return s.Focused() && s.TurnsSinceLastYield >= YieldStagnationTurns
}

func (s NodeState) FocusStreakBucket() FocusStreakBucket {
	switch {
	case s.CurrentFocusStreak <= 0:
		return StreakNone
	case s.CurrentFocusStreak == 1:
		return StreakLow
	case s.CurrentFocusStreak <= 3:
		return StreakMedium
	default:
		return StreakHigh
	}
}

// IsCurrentFocus is true for the node selected in the most recent focus update.
func (s NodeState) IsCurrentFocus() bool {
	return s.Focused() && s.TurnsSinceLastFocus == 0
}

func (s NodeState) RecencyScore() float64 {
	if !s.Focused() {
		return 0
	}
	return clampUnit(1 - minFloat(float64(s.TurnsSinceLastFocus)/recencyHorizon, 1))
}

func (s NodeState) IsOrphan() bool {
	return s.EdgeCountIncoming+s.EdgeCountOutgoing == 0
}

func (s NodeState) HasOutgoing() bool {
	return s.EdgeCountOutgoing > 0
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
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
