package signals

import (
	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/google/uuid"
)

// GraphSnapshot summarizes the surface graph as seen through node states.
type GraphSnapshot struct {
	NodeCount      int
	EdgeCount      int
	OrphanCount    int
	TypesSeen      int
	TypesTotal     int
	MaxLevelSeen   int
	MaxLevelTotal  int
	HasTerminal    bool
	CurrentFocusID *uuid.UUID
}

// BuildGraphSnapshot derives the snapshot from node states. Every edge is
// counted once through its source node's outgoing count.
func BuildGraphSnapshot(nodes []domain.NodeState, m domain.Methodology) GraphSnapshot {
	snap := GraphSnapshot{
		NodeCount:     len(nodes),
		TypesTotal:    len(m.NodeTypes),
		MaxLevelTotal: m.MaxLevel(),
	}
	known := make(map[string]bool, len(m.NodeTypes))
	for _, name := range m.TypeNames() {
		known[name] = false
	}
	for i := range nodes {
		n := &nodes[i]
		snap.EdgeCount += n.EdgeCountOutgoing
		if n.IsOrphan() {
			snap.OrphanCount++
		}
		if seen, ok := known[n.NodeType]; ok && !seen {
			known[n.NodeType] = true
			snap.TypesSeen++
		}
		if n.Level > snap.MaxLevelSeen {
			snap.MaxLevelSeen = n.Level
		}
		if n.IsTerminal {
			snap.HasTerminal = true
		}
		if n.IsCurrentFocus() {
			id := n.NodeID
			snap.CurrentFocusID = &id
		}
	}
	return snap
}

// Params are the detector's tuning knobs.
type Params struct {
	Window         int
	PhaseMidStart  int
	PhaseLateStart int
}

func DefaultParams() Params {
	return Params{Window: 5, PhaseMidStart: 4, PhaseLateStart: 12}
}

// TurnContext is everything a signal may read for one turn. It is built per
// turn and handed to compute functions by value.
type TurnContext struct {
	SessionID uuid.UUID
	Turn      int
	MaxTurns  int
	Params    Params

	Methodology domain.Methodology
	Graph       GraphSnapshot
	Nodes       []domain.NodeState

	// Window holds at most Params.Window summaries, oldest first, ending with
	// the current turn.
	Window []domain.TurnSummary

	Question string
	Response string
	// Rubric is nil when the rubric collaborator was not called or failed.
	Rubric *domain.RubricScores
}

// windowed returns the last n summaries of history followed by current.
func windowed(history []domain.TurnSummary, current *domain.TurnSummary, n int) []domain.TurnSummary {
	all := append([]domain.TurnSummary(nil), history...)
	if current != nil {
		all = append(all, *current)
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}
