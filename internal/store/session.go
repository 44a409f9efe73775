package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	historyJSON, err := json.Marshal(historyOrEmpty(sess.History))
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if sess.Status == "" {
		sess.Status = domain.SessionActive
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO sessions (methodology, topic, status, turn_count, max_turns, focus_node_id,
			current_strategy, last_question, history, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		sess.Methodology, sess.Topic, sess.Status, sess.TurnCount, sess.MaxTurns, sess.FocusNodeID,
		sess.CurrentStrategy, sess.LastQuestion, historyJSON, sess.Metadata,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)
}

func (s *SessionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	sess := &domain.Session{}
	var historyJSON []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, methodology, topic, status, turn_count, max_turns, focus_node_id,
			current_strategy, last_question, history, metadata, created_at, updated_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.Methodology, &sess.Topic, &sess.Status, &sess.TurnCount, &sess.MaxTurns, &sess.FocusNodeID,
		&sess.CurrentStrategy, &sess.LastQuestion, &historyJSON, &sess.Metadata, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &sess.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return sess, nil
}

func (s *SessionStore) Update(ctx context.Context, sess *domain.Session) error {
	historyJSON, err := json.Marshal(historyOrEmpty(sess.History))
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`UPDATE sessions
		 SET status = $2, turn_count = $3, max_turns = $4, focus_node_id = $5, current_strategy = $6,
		     last_question = $7, history = $8, metadata = $9, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		sess.ID, sess.Status, sess.TurnCount, sess.MaxTurns, sess.FocusNodeID, sess.CurrentStrategy,
		sess.LastQuestion, historyJSON, sess.Metadata,
	).Scan(&sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func historyOrEmpty(h []domain.TurnSummary) []domain.TurnSummary {
	if h == nil {
		return []domain.TurnSummary{}
	}
	return h
}

type UtteranceStore struct {
	db *pgxpool.Pool
}

func NewUtteranceStore(db *pgxpool.Pool) *UtteranceStore {
	return &UtteranceStore{db: db}
}

func (s *UtteranceStore) Create(ctx context.Context, u *domain.Utterance) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO utterances (session_id, turn_number, speaker, text)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		u.SessionID, u.TurnNumber, u.Speaker, u.Text,
	).Scan(&u.ID, &u.CreatedAt)
}

// ListRecent returns the latest utterances of a session, oldest first.
func (s *UtteranceStore) ListRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.Utterance, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, turn_number, speaker, text, created_at FROM (
			SELECT id, session_id, turn_number, speaker, text, created_at
			FROM utterances WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		 ) recent ORDER BY created_at ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Utterance
	for rows.Next() {
		var u domain.Utterance
		if err := rows.Scan(&u.ID, &u.SessionID, &u.TurnNumber, &u.Speaker, &u.Text, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
