package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/store"
	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// DefaultCanonicalSimilarityThreshold is the minimum similarity for mapping into an existing slot.
	DefaultCanonicalSimilarityThreshold = 0.83
	// DefaultCanonicalMinSupportNodes is the support count at which a candidate slot becomes active.
	DefaultCanonicalMinSupportNodes = 1
)

type CanonicalConfig struct {
	SimilarityThreshold float64
	MinSupportNodes     int
	// MinTurns is accepted for configuration compatibility and not enforced.
	MinTurns         int
	ProposalTimeout  time.Duration
	EmbeddingTimeout time.Duration
}

func DefaultCanonicalConfig() CanonicalConfig {
	return CanonicalConfig{
		SimilarityThreshold: DefaultCanonicalSimilarityThreshold,
		MinSupportNodes:     DefaultCanonicalMinSupportNodes,
	}
}

type CanonicalService struct {
	store    domain.CanonicalSlotStore
	proposer domain.SlotProposer
	embedder domain.EmbeddingClient
	cfg      CanonicalConfig
	logger   *zap.Logger
}

func NewCanonicalService(store domain.CanonicalSlotStore, proposer domain.SlotProposer, embedder domain.EmbeddingClient, cfg CanonicalConfig, logger *zap.Logger) *CanonicalService {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultCanonicalSimilarityThreshold
	}
	if cfg.MinSupportNodes < 1 {
		cfg.MinSupportNodes = DefaultCanonicalMinSupportNodes
	}
	if cfg.MinTurns != 0 {
		logger.Info("canonical_min_turns is set but not enforced", zap.Int("canonical_min_turns", cfg.MinTurns))
	}
	return &CanonicalService{
		store:    store,
		proposer: proposer,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

type CanonicalResult struct {
	Mappings        []domain.SurfaceToSlotMapping
	CreatedSlots    []domain.CanonicalSlot
	PromotedSlotIDs []uuid.UUID
	Degraded        bool
}

// Lemmatize is the comparison form of a slot name: lower-cased, singularized
// tokens joined by underscores.
func Lemmatize(name string) string {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, t := range tokens {
		tokens[i] = inflection.Singular(t)
	}
	return strings.Join(tokens, "_")
}

// MapTurn maps the still-unmapped nodes among nodes into canonical slots.
// Collaborator failures degrade the result; only store errors are returned.
func (s *CanonicalService) MapTurn(ctx context.Context, sessionID uuid.UUID, turn int, nodes []domain.SurfaceNode) (*CanonicalResult, error) {
	res := &CanonicalResult{}
	if len(nodes) == 0 {
		return res, nil
	}

	ids := lo.Map(nodes, func(n domain.SurfaceNode, _ int) uuid.UUID { return n.ID })
	mapped, err := s.store.MappedNodeIDs(ctx, sessionID, ids)
	if err != nil {
		return nil, fmt.Errorf("load mapped nodes: %w", err)
	}
	unmapped := lo.Filter(nodes, func(n domain.SurfaceNode, _ int) bool { return !mapped[n.ID] })
	if len(unmapped) == 0 {
		return res, nil
	}
	byID := lo.KeyBy(unmapped, func(n domain.SurfaceNode) uuid.UUID { return n.ID })

	active := domain.SlotActive
	activeSlots, err := s.store.ListSlots(ctx, sessionID, &active)
	if err != nil {
		return nil, fmt.Errorf("list active slots: %w", err)
	}

	input := domain.SlotProposalInput{
		Groups: lo.MapValues(lo.GroupBy(unmapped, func(n domain.SurfaceNode) string { return n.NodeType }),
			func(group []domain.SurfaceNode, _ string) []domain.SlotProposalNode {
				return lo.Map(group, func(n domain.SurfaceNode, _ int) domain.SlotProposalNode {
					return domain.SlotProposalNode{ID: n.ID, Label: n.Label}
				})
			}),
		ActiveSlotNames: lo.Map(activeSlots, func(sl domain.CanonicalSlot, _ int) string { return sl.SlotName }),
	}

	proposals, err := s.propose(ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		res.Degraded = true
		s.logger.Warn("slot proposal failed, nodes stay unmapped",
			zap.String("session_id", sessionID.String()),
			zap.Int("turn", turn),
			zap.Int("unmapped", len(unmapped)),
			zap.Error(err))
		return res, nil
	}

	for _, p := range proposals {
		members := lo.Uniq(lo.Filter(p.MemberNodeIDs, func(id uuid.UUID, _ int) bool {
			_, ok := byID[id]
			return ok && !mapped[id]
		}))
		if len(members) == 0 {
			continue
		}
		lemma := Lemmatize(p.SlotName)
		if lemma == "" {
			continue
		}

		slot, kind, similarity, created, err := s.resolveSlot(ctx, sessionID, turn, p, lemma, byID[members[0]].NodeType)
		if err != nil {
			var extErr *domain.ExternalCallError
			if errors.As(err, &extErr) && ctx.Err() == nil {
				res.Degraded = true
				s.logger.Warn("slot embedding failed, skipping proposal",
					zap.String("session_id", sessionID.String()),
					zap.Int("turn", turn),
					zap.String("slot_name", p.SlotName),
					zap.Error(err))
				continue
			}
			return nil, err
		}
		if created {
			res.CreatedSlots = append(res.CreatedSlots, *slot)
		}

		newlyMapped := 0
		for _, id := range members {
			m := &domain.SurfaceToSlotMapping{
				SurfaceNodeID: id,
				SlotID:        slot.ID,
				SessionID:     sessionID,
				TurnNumber:    turn,
				MatchKind:     kind,
				Similarity:    similarity,
			}
			ok, err := s.store.CreateMapping(ctx, m)
			if err != nil {
				return nil, fmt.Errorf("create slot mapping: %w", err)
			}
			mapped[id] = true
			if ok {
				newlyMapped++
				res.Mappings = append(res.Mappings, *m)
			}
		}

		// A new slot already counts its first member.
		delta := newlyMapped
		if created && delta > 0 {
			delta--
		}
		support := slot.SupportCount
		if delta > 0 {
			support, err = s.store.IncrementSupport(ctx, slot.ID, delta)
			if err != nil {
				return nil, fmt.Errorf("increment slot support: %w", err)
			}
		}

		if slot.Status == domain.SlotCandidate && support >= s.cfg.MinSupportNodes {
			promoted, err := s.store.Promote(ctx, slot.ID)
			if err != nil {
				return nil, fmt.Errorf("promote slot: %w", err)
			}
			if promoted {
				res.PromotedSlotIDs = append(res.PromotedSlotIDs, slot.ID)
			}
		}
	}
	return res, nil
}

func (s *CanonicalService) resolveSlot(ctx context.Context, sessionID uuid.UUID, turn int, p domain.SlotProposal, lemma, nodeType string) (*domain.CanonicalSlot, domain.MatchKind, float64, bool, error) {
	slot, err := s.store.FindSlotByLemma(ctx, sessionID, lemma)
	if err == nil {
		return slot, domain.MatchExact, 1, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, "", 0, false, fmt.Errorf("find slot by lemma: %w", err)
	}

	embedding, err := s.embed(ctx, fmt.Sprintf("%s :: %s", p.SlotName, p.Description))
	if err != nil {
		return nil, "", 0, false, err
	}

	best, err := s.store.FindMostSimilarSlot(ctx, sessionID, embedding)
	switch {
	case err == nil && best.Score >= s.cfg.SimilarityThreshold:
		return &best.CanonicalSlot, domain.MatchSimilarity, best.Score, false, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, "", 0, false, fmt.Errorf("find similar slot: %w", err)
	}

	slot = &domain.CanonicalSlot{
		SessionID:     sessionID,
		SlotName:      p.SlotName,
		Lemma:         lemma,
		NodeType:      nodeType,
		Description:   p.Description,
		Embedding:     embedding,
		Status:        domain.SlotCandidate,
		SupportCount:  1,
		FirstSeenTurn: turn,
	}
	if err := s.store.CreateSlot(ctx, slot); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, "", 0, false, &domain.DataIntegrityError{
				Entity: "canonical_slot",
				Reason: fmt.Sprintf("slot with lemma %q already exists", lemma),
				Err:    err,
			}
		}
		return nil, "", 0, false, fmt.Errorf("create slot: %w", err)
	}
	return slot, domain.MatchNew, 0, true, nil
}

func (s *CanonicalService) propose(ctx context.Context, input domain.SlotProposalInput) ([]domain.SlotProposal, error) {
	if s.proposer == nil {
		return nil, domain.NewExternalCallError("slot_proposal", errors.New("no slot proposer configured"))
	}
	if s.cfg.ProposalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProposalTimeout)
		defer cancel()
	}
	proposals, err := s.proposer.ProposeSlots(ctx, input)
	if err != nil {
		return nil, domain.NewExternalCallError("slot_proposal", err)
	}
	return proposals, nil
}

func (s *CanonicalService) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, domain.NewExternalCallError("embedding", errors.New("no embedding client configured"))
	}
	if s.cfg.EmbeddingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.EmbeddingTimeout)
		defer cancel()
	}
	v, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, domain.NewExternalCallError("embedding", err)
	}
	if len(v) == 0 {
		return nil, domain.NewExternalCallError("embedding", errors.New("empty embedding"))
	}
	return v, nil
}

// ListSlots returns the session's slots, optionally filtered by status.
func (s *CanonicalService) ListSlots(ctx context.Context, sessionID uuid.UUID, status *domain.SlotStatus) ([]domain.CanonicalSlot, error) {
	return s.store.ListSlots(ctx, sessionID, status)
}
