// Package memstore holds in-memory implementations of the store interfaces.
// They back the test suites and STORE_DRIVER=memory.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/store"
	"github.com/google/uuid"
)

// Stores bundles one of each store.
type Stores struct {
	Sessions   *SessionStore
	Utterances *UtteranceStore
	Surface    *SurfaceGraphStore
	Slots      *CanonicalSlotStore
	NodeStates *NodeStateStore
}

func New() *Stores {
	return &Stores{
		Sessions:   NewSessionStore(),
		Utterances: NewUtteranceStore(),
		Surface:    NewSurfaceGraphStore(),
		Slots:      NewCanonicalSlotStore(),
		NodeStates: NewNodeStateStore(),
	}
}

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uuid.UUID]domain.Session)}
}

func (s *SessionStore) Create(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if _, ok := s.sessions[sess.ID]; ok {
		return store.ErrConflict
	}
	if sess.Status == "" {
		sess.Status = domain.SessionActive
	}
	now := time.Now()
	sess.CreatedAt, sess.UpdatedAt = now, now
	s.sessions[sess.ID] = copySession(*sess)
	return nil
}

func (s *SessionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := copySession(sess)
	return &c, nil
}

func (s *SessionStore) Update(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return store.ErrNotFound
	}
	sess.UpdatedAt = time.Now()
	s.sessions[sess.ID] = copySession(*sess)
	return nil
}

func copySession(s domain.Session) domain.Session {
	c := s
	c.History = append([]domain.TurnSummary(nil), s.History...)
	if s.FocusNodeID != nil {
		id := *s.FocusNodeID
		c.FocusNodeID = &id
	}
	return c
}

type UtteranceStore struct {
	mu         sync.RWMutex
	utterances map[uuid.UUID][]domain.Utterance
}

func NewUtteranceStore() *UtteranceStore {
	return &UtteranceStore{utterances: make(map[uuid.UUID][]domain.Utterance)}
}

func (s *UtteranceStore) Create(_ context.Context, u *domain.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	s.utterances[u.SessionID] = append(s.utterances[u.SessionID], *u)
	return nil
}

func (s *UtteranceStore) ListRecent(_ context.Context, sessionID uuid.UUID, limit int) ([]domain.Utterance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	all := s.utterances[sessionID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]domain.Utterance(nil), all...), nil
}

type SurfaceGraphStore struct {
	mu    sync.RWMutex
	nodes map[uuid.UUID]*domain.SurfaceNode
	// order keeps insertion order per session for earliest-created tie-breaks.
	order map[uuid.UUID][]uuid.UUID
	edges map[uuid.UUID][]domain.SurfaceEdge
}

func NewSurfaceGraphStore() *SurfaceGraphStore {
	return &SurfaceGraphStore{
		nodes: make(map[uuid.UUID]*domain.SurfaceNode),
		order: make(map[uuid.UUID][]uuid.UUID),
		edges: make(map[uuid.UUID][]domain.SurfaceEdge),
	}
}

func (s *SurfaceGraphStore) CreateNode(_ context.Context, n *domain.SurfaceNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NormalizeLabel(n.Label)
	for _, id := range s.order[n.SessionID] {
		existing := s.nodes[id]
		if existing.NodeType == n.NodeType && domain.NormalizeLabel(existing.Label) == key {
			return store.ErrConflict
		}
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.SourceUtteranceIDs == nil {
		n.SourceUtteranceIDs = []string{}
	}
	now := time.Now()
	n.CreatedAt, n.UpdatedAt = now, now
	c := copyNode(*n)
	s.nodes[n.ID] = &c
	s.order[n.SessionID] = append(s.order[n.SessionID], n.ID)
	return nil
}

func (s *SurfaceGraphStore) GetNode(_ context.Context, id uuid.UUID) (*domain.SurfaceNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := copyNode(*n)
	return &c, nil
}

func (s *SurfaceGraphStore) FindNodeByLabel(_ context.Context, sessionID uuid.UUID, label string, nodeType string) (*domain.SurfaceNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := domain.NormalizeLabel(label)
	for _, id := range s.order[sessionID] {
		n := s.nodes[id]
		if n.NodeType == nodeType && domain.NormalizeLabel(n.Label) == key {
			c := copyNode(*n)
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *SurfaceGraphStore) FindMostSimilarNode(_ context.Context, sessionID uuid.UUID, nodeType string, embedding []float32) (*domain.SurfaceNodeWithScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  *domain.SurfaceNode
		score float64
	)
	for _, id := range s.order[sessionID] {
		n := s.nodes[id]
		if n.NodeType != nodeType || len(n.Embedding) == 0 {
			continue
		}
		// Strictly greater keeps the earliest created node on ties.
		if sim := CosineSimilarity(n.Embedding, embedding); best == nil || sim > score {
			best, score = n, sim
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return &domain.SurfaceNodeWithScore{SurfaceNode: copyNode(*best), Score: score}, nil
}

func (s *SurfaceGraphStore) AppendNodeSource(_ context.Context, id uuid.UUID, utteranceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return store.ErrNotFound
	}
	if !n.HasSource(utteranceID) {
		n.SourceUtteranceIDs = append(n.SourceUtteranceIDs, utteranceID)
	}
	n.UpdatedAt = time.Now()
	return nil
}

func (s *SurfaceGraphStore) ListNodes(_ context.Context, sessionID uuid.UUID) ([]domain.SurfaceNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.order[sessionID]
	out := make([]domain.SurfaceNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyNode(*s.nodes[id]))
	}
	return out, nil
}

func (s *SurfaceGraphStore) CreateEdge(_ context.Context, e *domain.SurfaceEdge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[e.SourceNodeID]; !ok {
		return false, store.ErrNotFound
	}
	if _, ok := s.nodes[e.TargetNodeID]; !ok {
		return false, store.ErrNotFound
	}
	for _, existing := range s.edges[e.SessionID] {
		if existing.SourceNodeID == e.SourceNodeID && existing.TargetNodeID == e.TargetNodeID && existing.RelationType == e.RelationType {
			return false, nil
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	s.edges[e.SessionID] = append(s.edges[e.SessionID], *e)
	return true, nil
}

func (s *SurfaceGraphStore) ListEdges(_ context.Context, sessionID uuid.UUID) ([]domain.SurfaceEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SurfaceEdge(nil), s.edges[sessionID]...), nil
}

func copyNode(n domain.SurfaceNode) domain.SurfaceNode {
	c := n
	c.Embedding = append([]float32(nil), n.Embedding...)
	c.SourceUtteranceIDs = append([]string{}, n.SourceUtteranceIDs...)
	return c
}

type CanonicalSlotStore struct {
	mu       sync.RWMutex
	slots    map[uuid.UUID]*domain.CanonicalSlot
	order    map[uuid.UUID][]uuid.UUID
	mappings map[uuid.UUID]domain.SurfaceToSlotMapping
	byOrder  []uuid.UUID
}

func NewCanonicalSlotStore() *CanonicalSlotStore {
	return &CanonicalSlotStore{
		slots:    make(map[uuid.UUID]*domain.CanonicalSlot),
		order:    make(map[uuid.UUID][]uuid.UUID),
		mappings: make(map[uuid.UUID]domain.SurfaceToSlotMapping),
	}
}

func (s *CanonicalSlotStore) CreateSlot(_ context.Context, slot *domain.CanonicalSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(slot.Embedding) == 0 {
		return fmt.Errorf("canonical slot %q has no embedding", slot.SlotName)
	}
	for _, id := range s.order[slot.SessionID] {
		if s.slots[id].Lemma == slot.Lemma {
			return store.ErrConflict
		}
	}
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	if slot.Status == "" {
		slot.Status = domain.SlotCandidate
	}
	if slot.SupportCount < 1 {
		slot.SupportCount = 1
	}
	now := time.Now()
	slot.CreatedAt, slot.UpdatedAt = now, now
	c := copySlot(*slot)
	s.slots[slot.ID] = &c
	s.order[slot.SessionID] = append(s.order[slot.SessionID], slot.ID)
	return nil
}

func (s *CanonicalSlotStore) GetSlot(_ context.Context, id uuid.UUID) (*domain.CanonicalSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := copySlot(*slot)
	return &c, nil
}

func (s *CanonicalSlotStore) FindSlotByLemma(_ context.Context, sessionID uuid.UUID, lemma string) (*domain.CanonicalSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order[sessionID] {
		if slot := s.slots[id]; slot.Lemma == lemma {
			c := copySlot(*slot)
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *CanonicalSlotStore) FindMostSimilarSlot(_ context.Context, sessionID uuid.UUID, embedding []float32) (*domain.CanonicalSlotWithScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  *domain.CanonicalSlot
		score float64
	)
	for _, id := range s.order[sessionID] {
		slot := s.slots[id]
		if sim := CosineSimilarity(slot.Embedding, embedding); best == nil || sim > score {
			best, score = slot, sim
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return &domain.CanonicalSlotWithScore{CanonicalSlot: copySlot(*best), Score: score}, nil
}

func (s *CanonicalSlotStore) ListSlots(_ context.Context, sessionID uuid.UUID, status *domain.SlotStatus) ([]domain.CanonicalSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CanonicalSlot
	for _, id := range s.order[sessionID] {
		slot := s.slots[id]
		if status != nil && slot.Status != *status {
			continue
		}
		out = append(out, copySlot(*slot))
	}
	return out, nil
}

func (s *CanonicalSlotStore) IncrementSupport(_ context.Context, id uuid.UUID, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	if delta > 0 {
		slot.SupportCount += delta
		slot.UpdatedAt = time.Now()
	}
	return slot.SupportCount, nil
}

func (s *CanonicalSlotStore) Promote(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if slot.Status == domain.SlotActive {
		return false, nil
	}
	now := time.Now()
	slot.Status = domain.SlotActive
	slot.PromotedAt = &now
	slot.UpdatedAt = now
	return true, nil
}

func (s *CanonicalSlotStore) CreateMapping(_ context.Context, m *domain.SurfaceToSlotMapping) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[m.SlotID]; !ok {
		return false, store.ErrNotFound
	}
	if _, ok := s.mappings[m.SurfaceNodeID]; ok {
		return false, nil
	}
	m.CreatedAt = time.Now()
	s.mappings[m.SurfaceNodeID] = *m
	s.byOrder = append(s.byOrder, m.SurfaceNodeID)
	return true, nil
}

func (s *CanonicalSlotStore) ListMappings(_ context.Context, sessionID uuid.UUID) ([]domain.SurfaceToSlotMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SurfaceToSlotMapping
	for _, id := range s.byOrder {
		if m := s.mappings[id]; m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *CanonicalSlotStore) MappedNodeIDs(_ context.Context, sessionID uuid.UUID, nodeIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]bool)
	for _, id := range nodeIDs {
		if m, ok := s.mappings[id]; ok && m.SessionID == sessionID {
			out[id] = true
		}
	}
	return out, nil
}

func copySlot(s domain.CanonicalSlot) domain.CanonicalSlot {
	c := s
	c.Embedding = append([]float32(nil), s.Embedding...)
	if s.PromotedAt != nil {
		t := *s.PromotedAt
		c.PromotedAt = &t
	}
	return c
}

type NodeStateStore struct {
	mu     sync.RWMutex
	states map[uuid.UUID]map[uuid.UUID]domain.NodeState
}

func NewNodeStateStore() *NodeStateStore {
	return &NodeStateStore{states: make(map[uuid.UUID]map[uuid.UUID]domain.NodeState)}
}

func (s *NodeStateStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]domain.NodeState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.NodeState, 0, len(s.states[sessionID]))
	for _, ns := range s.states[sessionID] {
		out = append(out, ns.Clone())
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
	return out, nil
}

func (s *NodeStateStore) UpsertMany(_ context.Context, sessionID uuid.UUID, states []domain.NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.states[sessionID]
	if !ok {
		m = make(map[uuid.UUID]domain.NodeState)
		s.states[sessionID] = m
	}
	for _, ns := range states {
		c := ns.Clone()
		c.SessionID = sessionID
		m[ns.NodeID] = c
	}
	return nil
}

// CosineSimilarity returns 0 for mismatched or zero-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
