package domain

import (
	"github.com/google/uuid"
)

type Phase string

const (
	PhaseEarly Phase = "early"
	PhaseMid   Phase = "mid"
	PhaseLate  Phase = "late"
)

func ValidPhase(p string) bool {
	switch Phase(p) {
	case PhaseEarly, PhaseMid, PhaseLate:
		return true
	}
	return false
}

// PhaseModifier adjusts a strategy's base score within one interview phase.
// A nil Multiplier means 1.0.
type PhaseModifier struct {
	Multiplier *float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	Bonus      float64  `json:"bonus,omitempty" yaml:"bonus,omitempty"`
}

func (m PhaseModifier) EffectiveMultiplier() float64 {
	if m.Multiplier == nil {
		return 1.0
	}
	return *m.Multiplier
}

type VetoOperator string

const (
	VetoGTE VetoOperator = ">="
	VetoLTE VetoOperator = "<="
	VetoGT  VetoOperator = ">"
	VetoLT  VetoOperator = "<"
	VetoEQ  VetoOperator = "=="
)

func ValidVetoOperator(op string) bool {
	switch VetoOperator(op) {
	case VetoGTE, VetoLTE, VetoGT, VetoLT, VetoEQ:
		return true
	}
	return false
}

// VetoPredicate compares a resolved signal key against Value. An empty Operator
// means ">=" and a zero Value with it means 1, so `{signal: graph.empty}` vetoes
// when the boolean is true.
type VetoPredicate struct {
	Signal   string       `json:"signal" yaml:"signal"`
	Operator VetoOperator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    *float64     `json:"value,omitempty" yaml:"value,omitempty"`
}

type StrategyConfig struct {
	ID               string                  `json:"id" yaml:"id"`
	Description      string                  `json:"description" yaml:"description"`
	SignalWeights    map[string]float64      `json:"signal_weights" yaml:"signal_weights"`
	Phases           map[Phase]PhaseModifier `json:"phases,omitempty" yaml:"phases,omitempty"`
	Vetoes           []VetoPredicate         `json:"vetoes,omitempty" yaml:"vetoes,omitempty"`
	FallbackQuestion string                  `json:"fallback_question,omitempty" yaml:"fallback_question,omitempty"`
}

// PhaseModifierFor returns the modifier for phase, or the identity modifier.
func (c StrategyConfig) PhaseModifierFor(p Phase) PhaseModifier {
	if m, ok := c.Phases[p]; ok {
		return m
	}
	return PhaseModifier{}
}

type ScoreBreakdown struct {
	Base             float64            `json:"base"`
	PhaseMultiplier  float64            `json:"phase_multiplier"`
	PhaseBonus       float64            `json:"phase_bonus"`
	DiversityPenalty float64            `json:"diversity_penalty"`
	Terms            map[string]float64 `json:"terms"`
}

// ScoredCandidate is a ranked (strategy, focus node) pair, produced and consumed within a turn.
type ScoredCandidate struct {
	StrategyID string         `json:"strategy_id"`
	NodeID     uuid.UUID      `json:"node_id"`
	NodeLabel  string         `json:"node_label,omitempty"`
	Score      float64        `json:"score"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
}

// NodeTypeSpec describes one node type of an interview methodology.
type NodeTypeSpec struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Level       int    `json:"level" yaml:"level"`
	Terminal    bool   `json:"terminal,omitempty" yaml:"terminal,omitempty"`
}

// Methodology is the node type ladder a session extracts into.
type Methodology struct {
	Name      string         `json:"name" yaml:"name"`
	NodeTypes []NodeTypeSpec `json:"node_types" yaml:"node_types"`
}

func (m Methodology) NodeType(name string) (NodeTypeSpec, bool) {
	for _, nt := range m.NodeTypes {
		if nt.Name == name {
			return nt, true
		}
	}
	return NodeTypeSpec{}, false
}

func (m Methodology) TypeNames() []string {
	names := make([]string, len(m.NodeTypes))
	for i, nt := range m.NodeTypes {
		names[i] = nt.Name
	}
	return names
}

func (m Methodology) MaxLevel() int {
	max := 0
	for _, nt := range m.NodeTypes {
		if nt.Level > max {
			max = nt.Level
		}
	}
	return max
}
