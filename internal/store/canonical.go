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

type CanonicalSlotStore struct {
	db *pgxpool.Pool
}

func NewCanonicalSlotStore(db *pgxpool.Pool) *CanonicalSlotStore {
	return &CanonicalSlotStore{db: db}
}

const slotColumns = `id, session_id, slot_name, lemma, node_type, description, status, support_count,
	first_seen_turn, promoted_at, created_at, updated_at`

func scanSlot(row pgx.Row, extra ...any) (*domain.CanonicalSlot, error) {
	s := &domain.CanonicalSlot{}
	dest := []any{&s.ID, &s.SessionID, &s.SlotName, &s.Lemma, &s.NodeType, &s.Description, &s.Status, &s.SupportCount,
		&s.FirstSeenTurn, &s.PromotedAt, &s.CreatedAt, &s.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateSlot returns ErrConflict when the session already has a slot with the
// same lemma.
func (s *CanonicalSlotStore) CreateSlot(ctx context.Context, slot *domain.CanonicalSlot) error {
	if len(slot.Embedding) == 0 {
		return fmt.Errorf("canonical slot %q has no embedding", slot.SlotName)
	}
	if slot.Status == "" {
		slot.Status = domain.SlotCandidate
	}
	if slot.SupportCount < 1 {
		slot.SupportCount = 1
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO canonical_slots (session_id, slot_name, lemma, node_type, description, embedding,
			status, support_count, first_seen_turn)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		slot.SessionID, slot.SlotName, slot.Lemma, slot.NodeType, slot.Description, pgvector.NewVector(slot.Embedding),
		slot.Status, slot.SupportCount, slot.FirstSeenTurn,
	).Scan(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *CanonicalSlotStore) GetSlot(ctx context.Context, id uuid.UUID) (*domain.CanonicalSlot, error) {
	slot, err := scanSlot(s.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM canonical_slots WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return slot, err
}

func (s *CanonicalSlotStore) FindSlotByLemma(ctx context.Context, sessionID uuid.UUID, lemma string) (*domain.CanonicalSlot, error) {
	slot, err := scanSlot(s.db.QueryRow(ctx,
		`SELECT `+slotColumns+` FROM canonical_slots WHERE session_id = $1 AND lemma = $2`,
		sessionID, lemma))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return slot, err
}

func (s *CanonicalSlotStore) FindMostSimilarSlot(ctx context.Context, sessionID uuid.UUID, embedding []float32) (*domain.CanonicalSlotWithScore, error) {
	var score float64
	slot, err := scanSlot(s.db.QueryRow(ctx,
		`SELECT `+slotColumns+`, 1 - (embedding <=> $1) AS score
		 FROM canonical_slots
		 WHERE session_id = $2
		 ORDER BY score DESC, created_at ASC
		 LIMIT 1`,
		pgvector.NewVector(embedding), sessionID,
	), &score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find similar slot: %w", err)
	}
	return &domain.CanonicalSlotWithScore{CanonicalSlot: *slot, Score: score}, nil
}

func (s *CanonicalSlotStore) ListSlots(ctx context.Context, sessionID uuid.UUID, status *domain.SlotStatus) ([]domain.CanonicalSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM canonical_slots WHERE session_id = $1`
	args := []any{sessionID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []domain.CanonicalSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}

func (s *CanonicalSlotStore) IncrementSupport(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	if delta <= 0 {
		return 0, fmt.Errorf("support delta must be positive, got %d", delta)
	}
	var count int
	err := s.db.QueryRow(ctx,
		`UPDATE canonical_slots SET support_count = support_count + $2, updated_at = NOW()
		 WHERE id = $1 RETURNING support_count`,
		id, delta,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return count, err
}

func (s *CanonicalSlotStore) Promote(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE canonical_slots SET status = 'active', promoted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'candidate'`,
		id,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM canonical_slots WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *CanonicalSlotStore) CreateMapping(ctx context.Context, m *domain.SurfaceToSlotMapping) (bool, error) {
	err := s.db.QueryRow(ctx,
		`INSERT INTO surface_slot_mappings (surface_node_id, slot_id, session_id, turn_number, match_kind, similarity)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (surface_node_id) DO NOTHING
		 RETURNING created_at`,
		m.SurfaceNodeID, m.SlotID, m.SessionID, m.TurnNumber, m.MatchKind, m.Similarity,
	).Scan(&m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *CanonicalSlotStore) ListMappings(ctx context.Context, sessionID uuid.UUID) ([]domain.SurfaceToSlotMapping, error) {
	rows, err := s.db.Query(ctx,
		`SELECT surface_node_id, slot_id, session_id, turn_number, match_kind, similarity, created_at
		 FROM surface_slot_mappings WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SurfaceToSlotMapping
	for rows.Next() {
		var m domain.SurfaceToSlotMapping
		if err := rows.Scan(&m.SurfaceNodeID, &m.SlotID, &m.SessionID, &m.TurnNumber, &m.MatchKind, &m.Similarity, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *CanonicalSlotStore) MappedNodeIDs(ctx context.Context, sessionID uuid.UUID, nodeIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	mapped := make(map[uuid.UUID]bool)
	if len(nodeIDs) == 0 {
		return mapped, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT surface_node_id FROM surface_slot_mappings
		 WHERE session_id = $1 AND surface_node_id = ANY($2)`,
		sessionID, nodeIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		mapped[id] = true
	}
	return mapped, rows.Err()
}
