package memstore

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSurfaceNodeLabelUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewSurfaceGraphStore()
	sessionID := uuid.New()

	n := &domain.SurfaceNode{SessionID: sessionID, Label: "Price", NodeType: "attribute"}
	require.NoError(t, s.CreateNode(ctx, n))

	err := s.CreateNode(ctx, &domain.SurfaceNode{SessionID: sessionID, Label: "  price ", NodeType: "attribute"})
	assert.ErrorIs(t, err, store.ErrConflict)

	// Same label, different type is a different node.
	require.NoError(t, s.CreateNode(ctx, &domain.SurfaceNode{SessionID: sessionID, Label: "price", NodeType: "terminal_value"}))

	got, err := s.FindNodeByLabel(ctx, sessionID, "PRICE", "attribute")
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)

	_, err = s.FindNodeByLabel(ctx, uuid.New(), "price", "attribute")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindMostSimilarNodeKeepsEarliestOnTie(t *testing.T) {
	ctx := context.Background()
	s := NewSurfaceGraphStore()
	sessionID := uuid.New()

	first := &domain.SurfaceNode{SessionID: sessionID, Label: "a", NodeType: "attribute", Embedding: []float32{1, 0}}
	second := &domain.SurfaceNode{SessionID: sessionID, Label: "b", NodeType: "attribute", Embedding: []float32{1, 0}}
	noEmbedding := &domain.SurfaceNode{SessionID: sessionID, Label: "c", NodeType: "attribute"}
	otherType := &domain.SurfaceNode{SessionID: sessionID, Label: "d", NodeType: "terminal_value", Embedding: []float32{1, 0}}
	for _, n := range []*domain.SurfaceNode{first, second, noEmbedding, otherType} {
		require.NoError(t, s.CreateNode(ctx, n))
	}

	best, err := s.FindMostSimilarNode(ctx, sessionID, "attribute", []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, first.ID, best.ID)
	assert.InDelta(t, 1.0, best.Score, 1e-6)

	_, err = s.FindMostSimilarNode(ctx, sessionID, "instrumental_value", []float32{1, 0})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendNodeSourceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewSurfaceGraphStore()
	n := &domain.SurfaceNode{SessionID: uuid.New(), Label: "price", NodeType: "attribute"}
	require.NoError(t, s.CreateNode(ctx, n))

	require.NoError(t, s.AppendNodeSource(ctx, n.ID, "u1"))
	require.NoError(t, s.AppendNodeSource(ctx, n.ID, "u1"))
	require.NoError(t, s.AppendNodeSource(ctx, n.ID, "u2"))

	got, err := s.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, got.SourceUtteranceIDs)

	assert.ErrorIs(t, s.AppendNodeSource(ctx, uuid.New(), "u1"), store.ErrNotFound)
}

func TestCreateEdgeDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := NewSurfaceGraphStore()
	sessionID := uuid.New()
	a := &domain.SurfaceNode{SessionID: sessionID, Label: "a", NodeType: "attribute"}
	b := &domain.SurfaceNode{SessionID: sessionID, Label: "b", NodeType: "functional_consequence"}
	require.NoError(t, s.CreateNode(ctx, a))
	require.NoError(t, s.CreateNode(ctx, b))

	edge := func(rel string) *domain.SurfaceEdge {
		return &domain.SurfaceEdge{SessionID: sessionID, SourceNodeID: a.ID, TargetNodeID: b.ID, RelationType: rel}
	}
	created, err := s.CreateEdge(ctx, edge("leads_to"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateEdge(ctx, edge("leads_to"))
	require.NoError(t, err)
	assert.False(t, created)

	created, err = s.CreateEdge(ctx, edge("enables"))
	require.NoError(t, err)
	assert.True(t, created)

	_, err = s.CreateEdge(ctx, &domain.SurfaceEdge{SessionID: sessionID, SourceNodeID: a.ID, TargetNodeID: uuid.New(), RelationType: "leads_to"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	edges, err := s.ListEdges(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestStoredNodesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewSurfaceGraphStore()
	n := &domain.SurfaceNode{SessionID: uuid.New(), Label: "price", NodeType: "attribute", SourceUtteranceIDs: []string{"u1"}}
	require.NoError(t, s.CreateNode(ctx, n))

	got, err := s.GetNode(ctx, n.ID)
	require.NoError(t, err)
	got.SourceUtteranceIDs[0] = "mutated"

	again, err := s.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, again.SourceUtteranceIDs)
}

func TestCanonicalSlotLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewCanonicalSlotStore()
	sessionID := uuid.New()

	slot := &domain.CanonicalSlot{SessionID: sessionID, SlotName: "cost", Lemma: "cost", NodeType: "attribute", Embedding: []float32{1, 0}}
	require.NoError(t, s.CreateSlot(ctx, slot))
	assert.Equal(t, domain.SlotCandidate, slot.Status)
	assert.Equal(t, 1, slot.SupportCount)

	dup := &domain.CanonicalSlot{SessionID: sessionID, SlotName: "costs", Lemma: "cost", NodeType: "attribute", Embedding: []float32{1, 0}}
	assert.ErrorIs(t, s.CreateSlot(ctx, dup), store.ErrConflict)
	assert.Error(t, s.CreateSlot(ctx, &domain.CanonicalSlot{SessionID: sessionID, SlotName: "x", Lemma: "x"}))

	support, err := s.IncrementSupport(ctx, slot.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, support)

	promoted, err := s.Promote(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, promoted)
	promoted, err = s.Promote(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, promoted)

	active := domain.SlotActive
	slots, err := s.ListSlots(ctx, sessionID, &active)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.NotNil(t, slots[0].PromotedAt)

	candidate := domain.SlotCandidate
	slots, err = s.ListSlots(ctx, sessionID, &candidate)
	require.NoError(t, err)
	assert.Empty(t, slots)

	_, err = s.Promote(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindMostSimilarSlot(t *testing.T) {
	ctx := context.Background()
	s := NewCanonicalSlotStore()
	sessionID := uuid.New()

	_, err := s.FindMostSimilarSlot(ctx, sessionID, []float32{1, 0})
	assert.ErrorIs(t, err, store.ErrNotFound)

	near := &domain.CanonicalSlot{SessionID: sessionID, SlotName: "near", Lemma: "near", Embedding: []float32{0.9, 0.1}}
	far := &domain.CanonicalSlot{SessionID: sessionID, SlotName: "far", Lemma: "far", Embedding: []float32{0, 1}}
	require.NoError(t, s.CreateSlot(ctx, far))
	require.NoError(t, s.CreateSlot(ctx, near))

	best, err := s.FindMostSimilarSlot(ctx, sessionID, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, near.ID, best.ID)
}

func TestMappingsAreOnePerNode(t *testing.T) {
	ctx := context.Background()
	s := NewCanonicalSlotStore()
	sessionID := uuid.New()
	slot := &domain.CanonicalSlot{SessionID: sessionID, SlotName: "cost", Lemma: "cost", Embedding: []float32{1}}
	require.NoError(t, s.CreateSlot(ctx, slot))

	nodeID := uuid.New()
	m := &domain.SurfaceToSlotMapping{SurfaceNodeID: nodeID, SlotID: slot.ID, SessionID: sessionID, TurnNumber: 1, MatchKind: domain.MatchNew}
	created, err := s.CreateMapping(ctx, m)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateMapping(ctx, &domain.SurfaceToSlotMapping{SurfaceNodeID: nodeID, SlotID: slot.ID, SessionID: sessionID, TurnNumber: 2})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.CreateMapping(ctx, &domain.SurfaceToSlotMapping{SurfaceNodeID: uuid.New(), SlotID: uuid.New(), SessionID: sessionID})
	assert.ErrorIs(t, err, store.ErrNotFound)

	other := uuid.New()
	mapped, err := s.MappedNodeIDs(ctx, sessionID, []uuid.UUID{nodeID, other})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]bool{nodeID: true}, mapped)

	mappings, err := s.ListMappings(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, 1, mappings[0].TurnNumber)
}

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	sess := &domain.Session{Methodology: "laddering", MaxTurns: 5}
	require.NoError(t, s.Create(ctx, sess))
	assert.NotEqual(t, uuid.Nil, sess.ID)
	assert.Equal(t, domain.SessionActive, sess.Status)

	sess.TurnCount = 1
	sess.History = append(sess.History, domain.TurnSummary{TurnNumber: 1, Strategy: "deepen"})
	require.NoError(t, s.Update(ctx, sess))

	got, err := s.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount)
	require.Len(t, got.History, 1)

	got.History[0].Strategy = "mutated"
	again, err := s.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "deepen", again.History[0].Strategy)

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, &domain.Session{ID: uuid.New()}), store.ErrNotFound)
}

func TestUtteranceListRecent(t *testing.T) {
	ctx := context.Background()
	s := NewUtteranceStore()
	sessionID := uuid.New()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Create(ctx, &domain.Utterance{SessionID: sessionID, TurnNumber: i, Speaker: domain.SpeakerRespondent, Text: "x"}))
	}

	recent, err := s.ListRecent(ctx, sessionID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 3, recent[0].TurnNumber)
	assert.Equal(t, 4, recent[1].TurnNumber)
}

func TestNodeStateOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewNodeStateStore()
	sessionID := uuid.New()

	states := []domain.NodeState{
		{NodeID: uuid.New(), Label: "b", RegisteredTurn: 2},
		{NodeID: uuid.New(), Label: "z", RegisteredTurn: 1},
		{NodeID: uuid.New(), Label: "a", RegisteredTurn: 2},
	}
	require.NoError(t, s.UpsertMany(ctx, sessionID, states))

	got, err := s.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"z", "a", "b"}, []string{got[0].Label, got[1].Label, got[2].Label})
	for _, ns := range got {
		assert.Equal(t, sessionID, ns.SessionID)
	}
}
