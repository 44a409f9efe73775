// Package nodestate keeps per-concept exploration bookkeeping for one session.
//
// Within a turn the caller must run RecordYield for every yielding node before
// UpdateFocus, and both before the next signal detection reads the states.
// The tracker does not re-verify that order.
package nodestate

import (
	"sort"
	"time"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Tracker is not safe for concurrent use; a session has at most one turn in flight.
type Tracker struct {
	sessionID uuid.UUID
	states    map[uuid.UUID]*domain.NodeState
	now       func() time.Time
}

func NewTracker(sessionID uuid.UUID) *Tracker {
	return &Tracker{
		sessionID: sessionID,
		states:    make(map[uuid.UUID]*domain.NodeState),
		now:       time.Now,
	}
}

// Restore rebuilds a tracker from persisted states.
func Restore(sessionID uuid.UUID, states []domain.NodeState) *Tracker {
	t := NewTracker(sessionID)
	for _, s := range states {
		c := s.Clone()
		if c.StrategyUsageCount == nil {
			c.StrategyUsageCount = make(map[string]int)
		}
		t.states[c.NodeID] = &c
	}
	return t
}

type Registration struct {
	NodeID     uuid.UUID
	Label      string
	NodeType   string
	Turn       int
	Depth      int
	Level      int
	IsTerminal bool
}

// RegisterNode is idempotent: registering a tracked node is a no-op. It reports
// whether a new state was created.
func (t *Tracker) RegisterNode(r Registration) bool {
	if _, ok := t.states[r.NodeID]; ok {
		return false
	}
	t.states[r.NodeID] = &domain.NodeState{
		SessionID:          t.sessionID,
		NodeID:             r.NodeID,
		Label:              r.Label,
		NodeType:           r.NodeType,
		RegisteredTurn:     r.Turn,
		Depth:              r.Depth,
		Level:              r.Level,
		IsTerminal:         r.IsTerminal,
		StrategyUsageCount: make(map[string]int),
		UpdatedAt:          t.now(),
	}
	return true
}

func (t *Tracker) Has(nodeID uuid.UUID) bool {
	_, ok := t.states[nodeID]
	return ok
}

func (t *Tracker) Len() int {
	return len(t.states)
}

func (t *Tracker) lookup(nodeID uuid.UUID, op string) (*domain.NodeState, error) {
	s, ok := t.states[nodeID]
	if !ok {
		return nil, domain.NewDataIntegrityError("node_state", "%s on unregistered node %s", op, nodeID)
	}
	return s, nil
}

// SyncEdgeCounts sets the degree of every tracked node to what edges describe.
// Edges whose endpoints are not tracked are ignored.
func (t *Tracker) SyncEdgeCounts(edges []domain.SurfaceEdge) {
	incoming := lo.CountValuesBy(edges, func(e domain.SurfaceEdge) uuid.UUID { return e.TargetNodeID })
	outgoing := lo.CountValuesBy(edges, func(e domain.SurfaceEdge) uuid.UUID { return e.SourceNodeID })
	for id, s := range t.states {
		if s.EdgeCountIncoming == incoming[id] && s.EdgeCountOutgoing == outgoing[id] {
			continue
		}
		_ = t.UpdateEdgeCounts(id, incoming[id]-s.EdgeCountIncoming, outgoing[id]-s.EdgeCountOutgoing)
	}
}

// UpdateEdgeCounts applies edge deltas to a node. Counts never go below zero.
func (t *Tracker) UpdateEdgeCounts(nodeID uuid.UUID, incomingDelta, outgoingDelta int) error {
	s, err := t.lookup(nodeID, "update edge counts")
	if err != nil {
		return err
	}
	s.EdgeCountIncoming += incomingDelta
	s.EdgeCountOutgoing += outgoingDelta
	if s.EdgeCountIncoming < 0 {
		s.EdgeCountIncoming = 0
	}
	if s.EdgeCountOutgoing < 0 {
		s.EdgeCountOutgoing = 0
	}
	s.UpdatedAt = t.now()
	return nil
}

// RecordYield marks that extraction added information to the node this turn.
// It never touches the focus streak.
func (t *Tracker) RecordYield(nodeID uuid.UUID, turn int) error {
	s, err := t.lookup(nodeID, "record yield")
	if err != nil {
		return err
	}
	if s.LastYieldTurn == turn && s.YieldCount > 0 {
		return nil
	}
	s.TurnsSinceLastYield = 0
	s.LastYieldTurn = turn
	s.YieldCount++
	s.YieldRate = yieldRate(s.YieldCount, turn-s.RegisteredTurn+1)
	s.UpdatedAt = t.now()
	return nil
}

// UpdateFocus runs once per turn over every tracked node. selected may be nil when
// the turn had no focus node.
func (t *Tracker) UpdateFocus(selected *uuid.UUID, turn int, strategy string) error {
	if selected != nil {
		if _, err := t.lookup(*selected, "update focus"); err != nil {
			return err
		}
	}
	now := t.now()
	for id, s := range t.states {
		if selected != nil && id == *selected {
			if s.Focused() && s.LastFocusTurn == turn-1 {
				s.CurrentFocusStreak++
			} else {
				s.CurrentFocusStreak = 1
			}
			s.FocusCount++
			s.LastFocusTurn = turn
			s.TurnsSinceLastFocus = 0

			if strategy != "" {
				s.StrategyUsageCount[strategy]++
				if s.LastStrategyUsed == strategy {
					s.ConsecutiveSameStrategy++
				} else {
					s.ConsecutiveSameStrategy = 1
				}
				s.LastStrategyUsed = strategy
			}
		} else {
			s.TurnsSinceLastFocus++
			s.CurrentFocusStreak = 0
		}

		if s.LastYieldTurn != turn {
			s.TurnsSinceLastYield++
		}
		s.YieldRate = yieldRate(s.YieldCount, turn-s.RegisteredTurn+1)
		s.UpdatedAt = now
	}
	return nil
}

// RecordResponseDepth appends a depth observation, keeping the most recent few.
func (t *Tracker) RecordResponseDepth(nodeID uuid.UUID, depth domain.ResponseDepth) error {
	s, err := t.lookup(nodeID, "record response depth")
	if err != nil {
		return err
	}
	s.ResponseDepths = append(s.ResponseDepths, depth)
	if len(s.ResponseDepths) > domain.MaxResponseDepthHistory {
		s.ResponseDepths = s.ResponseDepths[len(s.ResponseDepths)-domain.MaxResponseDepthHistory:]
	}
	s.UpdatedAt = t.now()
	return nil
}

// Get returns a copy of the node's state.
func (t *Tracker) Get(nodeID uuid.UUID) (domain.NodeState, bool) {
	s, ok := t.states[nodeID]
	if !ok {
		return domain.NodeState{}, false
	}
	return s.Clone(), true
}

// Snapshot returns copies of all states ordered by registration turn, label, then id.
func (t *Tracker) Snapshot() []domain.NodeState {
	out := make([]domain.NodeState, 0, len(t.states))
	for _, s := range t.states {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredTurn != out[j].RegisteredTurn {
			return out[i].RegisteredTurn < out[j].RegisteredTurn
		}
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].NodeID.String() < out[j].NodeID.String()
	})
	return out
}

func yieldRate(yields, turnsTracked int) float64 {
	if turnsTracked <= 0 {
		turnsTracked = 1
	}
	r := float64(yields) / float64(turnsTracked)
	if r > 1 {
		return 1
	}
	return r
}
