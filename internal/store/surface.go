package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

type SurfaceGraphStore struct {
	db *pgxpool.Pool
}

func NewSurfaceGraphStore(db *pgxpool.Pool) *SurfaceGraphStore {
	return &SurfaceGraphStore{db: db}
}

// Embeddings are written but never read back; similarity runs in SQL.
const surfaceNodeColumns = `id, session_id, label, node_type, source_utterance_ids, created_at, updated_at`

func scanSurfaceNode(row pgx.Row, extra ...any) (*domain.SurfaceNode, error) {
	n := &domain.SurfaceNode{}
	dest := []any{&n.ID, &n.SessionID, &n.Label, &n.NodeType, &n.SourceUtteranceIDs, &n.CreatedAt, &n.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *SurfaceGraphStore) CreateNode(ctx context.Context, n *domain.SurfaceNode) error {
	var embedding *pgvector.Vector
	if len(n.Embedding) > 0 {
		v := pgvector.NewVector(n.Embedding)
		embedding = &v
	}
	if n.SourceUtteranceIDs == nil {
		n.SourceUtteranceIDs = []string{}
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO surface_nodes (session_id, label, label_key, node_type, embedding, source_utterance_ids)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		n.SessionID, n.Label, domain.NormalizeLabel(n.Label), n.NodeType, embedding, n.SourceUtteranceIDs,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *SurfaceGraphStore) GetNode(ctx context.Context, id uuid.UUID) (*domain.SurfaceNode, error) {
	n, err := scanSurfaceNode(s.db.QueryRow(ctx,
		`SELECT `+surfaceNodeColumns+` FROM surface_nodes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

func (s *SurfaceGraphStore) FindNodeByLabel(ctx context.Context, sessionID uuid.UUID, label string, nodeType string) (*domain.SurfaceNode, error) {
	n, err := scanSurfaceNode(s.db.QueryRow(ctx,
		`SELECT `+surfaceNodeColumns+` FROM surface_nodes
		 WHERE session_id = $1 AND label_key = $2 AND node_type = $3`,
		sessionID, domain.NormalizeLabel(label), nodeType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

func (s *SurfaceGraphStore) FindMostSimilarNode(ctx context.Context, sessionID uuid.UUID, nodeType string, embedding []float32) (*domain.SurfaceNodeWithScore, error) {
	vec := pgvector.NewVector(embedding)
	row := s.db.QueryRow(ctx,
		`SELECT `+surfaceNodeColumns+`, 1 - (embedding <=> $1) AS score
		 FROM surface_nodes
		 WHERE session_id = $2 AND node_type = $3 AND embedding IS NOT NULL
		 ORDER BY score DESC, created_at ASC
		 LIMIT 1`,
		vec, sessionID, nodeType,
	)
	var score float64
	n, err := scanSurfaceNode(row, &score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find similar surface node: %w", err)
	}
	return &domain.SurfaceNodeWithScore{SurfaceNode: *n, Score: score}, nil
}

// AppendNodeSource records provenance once per utterance.
func (s *SurfaceGraphStore) AppendNodeSource(ctx context.Context, id uuid.UUID, utteranceID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE surface_nodes
		 SET source_utterance_ids = CASE WHEN $2 = ANY(source_utterance_ids)
		         THEN source_utterance_ids
		         ELSE array_append(source_utterance_ids, $2) END,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, utteranceID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SurfaceGraphStore) ListNodes(ctx context.Context, sessionID uuid.UUID) ([]domain.SurfaceNode, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+surfaceNodeColumns+` FROM surface_nodes WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []domain.SurfaceNode
	for rows.Next() {
		n, err := scanSurfaceNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

func (s *SurfaceGraphStore) CreateEdge(ctx context.Context, e *domain.SurfaceEdge) (bool, error) {
	err := s.db.QueryRow(ctx,
		`INSERT INTO surface_edges (session_id, source_node_id, target_node_id, relation_type, source_utterance_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, source_node_id, target_node_id, relation_type) DO NOTHING
		 RETURNING id, created_at`,
		e.SessionID, e.SourceNodeID, e.TargetNodeID, e.RelationType, e.SourceUtteranceID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *SurfaceGraphStore) ListEdges(ctx context.Context, sessionID uuid.UUID) ([]domain.SurfaceEdge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, source_node_id, target_node_id, relation_type, source_utterance_id, created_at
		 FROM surface_edges WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.SurfaceEdge
	for rows.Next() {
		var e domain.SurfaceEdge
		if err := rows.Scan(&e.ID, &e.SessionID, &e.SourceNodeID, &e.TargetNodeID, &e.RelationType, &e.SourceUtteranceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
