package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/store"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// DefaultSurfaceSimilarityThreshold is the minimum cosine similarity for merging into an existing node.
	DefaultSurfaceSimilarityThreshold = 0.80
)

type NodeOutcome string

const (
	NodeCreated       NodeOutcome = "created"
	NodeMergedExact   NodeOutcome = "merged_exact"
	NodeMergedSimilar NodeOutcome = "merged_similar"
)

type AddResult struct {
	Node       domain.SurfaceNode
	Outcome    NodeOutcome
	Similarity float64
	// NewSource is true when the source utterance was not yet recorded on the node.
	NewSource bool
	// Degraded is set when the node was created without an embedding.
	Degraded bool
}

type SurfaceService struct {
	store        domain.SurfaceGraphStore
	embedder     domain.EmbeddingClient
	threshold    float64
	embedTimeout time.Duration
	logger       *zap.Logger
}

func NewSurfaceService(store domain.SurfaceGraphStore, embedder domain.EmbeddingClient, threshold float64, embedTimeout time.Duration, logger *zap.Logger) *SurfaceService {
	if threshold <= 0 {
		threshold = DefaultSurfaceSimilarityThreshold
	}
	return &SurfaceService{
		store:        store,
		embedder:     embedder,
		threshold:    threshold,
		embedTimeout: embedTimeout,
		logger:       logger,
	}
}

// AddOrGetNode returns the session node for label, merging into an exact or
// similar node of the same type before creating a new one.
func (s *SurfaceService) AddOrGetNode(ctx context.Context, sessionID uuid.UUID, label, nodeType, sourceUtteranceID string) (*AddResult, error) {
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return nil, ErrLabelEmpty
	}

	if res, err := s.mergeExact(ctx, sessionID, label, nodeType, sourceUtteranceID); err != nil || res != nil {
		return res, err
	}

	embedding, embedErr := s.embed(ctx, label)
	if embedErr != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embedding = nil
	}

	if embedding != nil {
		best, err := s.store.FindMostSimilarNode(ctx, sessionID, nodeType, embedding)
		switch {
		case err == nil && best.Score >= s.threshold:
			newSource, err := s.appendSource(ctx, &best.SurfaceNode, sourceUtteranceID)
			if err != nil {
				return nil, err
			}
			return &AddResult{Node: best.SurfaceNode, Outcome: NodeMergedSimilar, Similarity: best.Score, NewSource: newSource}, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	node := &domain.SurfaceNode{
		SessionID: sessionID,
		Label:     label,
		NodeType:  nodeType,
		Embedding: embedding,
	}
	if sourceUtteranceID != "" {
		node.SourceUtteranceIDs = []string{sourceUtteranceID}
	}
	if err := s.store.CreateNode(ctx, node); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another writer created the same label in between.
			if res, err := s.mergeExact(ctx, sessionID, label, nodeType, sourceUtteranceID); err != nil || res != nil {
				return res, err
			}
		}
		return nil, fmt.Errorf("create surface node: %w", err)
	}
	return &AddResult{Node: *node, Outcome: NodeCreated, NewSource: sourceUtteranceID != "", Degraded: embedErr != nil}, nil
}

func (s *SurfaceService) mergeExact(ctx context.Context, sessionID uuid.UUID, label, nodeType, sourceUtteranceID string) (*AddResult, error) {
	existing, err := s.store.FindNodeByLabel(ctx, sessionID, label, nodeType)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	newSource, err := s.appendSource(ctx, existing, sourceUtteranceID)
	if err != nil {
		return nil, err
	}
	return &AddResult{Node: *existing, Outcome: NodeMergedExact, Similarity: 1, NewSource: newSource}, nil
}

func (s *SurfaceService) appendSource(ctx context.Context, n *domain.SurfaceNode, utteranceID string) (bool, error) {
	if utteranceID == "" || n.HasSource(utteranceID) {
		return false, nil
	}
	if err := s.store.AppendNodeSource(ctx, n.ID, utteranceID); err != nil {
		return false, fmt.Errorf("append node source: %w", err)
	}
	n.SourceUtteranceIDs = append(n.SourceUtteranceIDs, utteranceID)
	return true, nil
}

func (s *SurfaceService) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, errors.New("no embedding client configured")
	}
	if s.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.embedTimeout)
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

// IngestResult summarizes one turn of surface graph changes.
type IngestResult struct {
	NewNodes    []domain.SurfaceNode
	MergedNodes []domain.SurfaceNode
	NewEdges    []domain.SurfaceEdge
	// YieldedNodeIDs lists nodes created, merged with new provenance, or touched by a new edge.
	YieldedNodeIDs       []uuid.UUID
	SkippedRelationships int
	Degraded             bool
}

// IngestExtraction adds every extracted concept and relationship to the session graph.
func (s *SurfaceService) IngestExtraction(ctx context.Context, sessionID uuid.UUID, turn int, ex *domain.Extraction) (*IngestResult, error) {
	res := &IngestResult{}
	if ex == nil {
		return res, nil
	}

	var yielded []uuid.UUID
	byText := make(map[string]uuid.UUID)
	seenNew := make(map[uuid.UUID]bool)
	for _, c := range ex.Concepts {
		added, err := s.AddOrGetNode(ctx, sessionID, c.Text, c.NodeType, c.SourceUtteranceID)
		if errors.Is(err, ErrLabelEmpty) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ingest concept %q: %w", c.Text, err)
		}
		if added.Degraded {
			res.Degraded = true
			s.logger.Warn("embedding failed, surface node stored without embedding",
				zap.String("session_id", sessionID.String()),
				zap.Int("turn", turn),
				zap.String("label", added.Node.Label))
		}
		// Relationships may name either the extracted text or the merged node's label.
		for _, key := range []string{domain.NormalizeLabel(c.Text), domain.NormalizeLabel(added.Node.Label)} {
			if _, ok := byText[key]; !ok {
				byText[key] = added.Node.ID
			}
		}

		switch {
		case added.Outcome == NodeCreated:
			res.NewNodes = append(res.NewNodes, added.Node)
			seenNew[added.Node.ID] = true
		case !seenNew[added.Node.ID]:
			res.MergedNodes = append(res.MergedNodes, added.Node)
		}
		if added.Outcome == NodeCreated || added.NewSource {
			yielded = append(yielded, added.Node.ID)
		}
	}
	res.MergedNodes = lo.UniqBy(res.MergedNodes, func(n domain.SurfaceNode) uuid.UUID { return n.ID })

	var existing map[string]uuid.UUID
	resolve := func(text string) (uuid.UUID, bool, error) {
		key := domain.NormalizeLabel(text)
		if id, ok := byText[key]; ok {
			return id, true, nil
		}
		if existing == nil {
			nodes, err := s.store.ListNodes(ctx, sessionID)
			if err != nil {
				return uuid.Nil, false, err
			}
			existing = make(map[string]uuid.UUID, len(nodes))
			for _, n := range nodes {
				if _, ok := existing[domain.NormalizeLabel(n.Label)]; !ok {
					existing[domain.NormalizeLabel(n.Label)] = n.ID
				}
			}
		}
		id, ok := existing[key]
		return id, ok, nil
	}

	for _, rel := range ex.Relationships {
		src, okSrc, err := resolve(rel.SourceText)
		if err != nil {
			return nil, fmt.Errorf("resolve relationship: %w", err)
		}
		tgt, okTgt, err := resolve(rel.TargetText)
		if err != nil {
			return nil, fmt.Errorf("resolve relationship: %w", err)
		}
		if !okSrc || !okTgt || src == tgt {
			res.SkippedRelationships++
			s.logger.Debug("skipping unresolved relationship",
				zap.String("session_id", sessionID.String()),
				zap.Int("turn", turn),
				zap.String("source", rel.SourceText),
				zap.String("target", rel.TargetText))
			continue
		}

		relation := rel.RelationType
		if relation == "" {
			relation = domain.DefaultRelationType
		}
		edge := &domain.SurfaceEdge{
			SessionID:         sessionID,
			SourceNodeID:      src,
			TargetNodeID:      tgt,
			RelationType:      relation,
			SourceUtteranceID: rel.SourceUtteranceID,
		}
		created, err := s.store.CreateEdge(ctx, edge)
		if errors.Is(err, store.ErrNotFound) {
			res.SkippedRelationships++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create surface edge: %w", err)
		}
		if created {
			res.NewEdges = append(res.NewEdges, *edge)
			yielded = append(yielded, src, tgt)
		}
	}

	res.YieldedNodeIDs = lo.Uniq(yielded)
	return res, nil
}
