package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	mw "github.com/Harshitk-cp/elicit/internal/api/middleware"
	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionHandler struct {
	svc    *service.InterviewService
	locks  *sessionLocks
	logger *zap.Logger
}

func NewSessionHandler(svc *service.InterviewService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{svc: svc, locks: newSessionLocks(), logger: logger}
}

type createSessionRequest struct {
	Topic    string         `json:"topic"`
	MaxTurns int            `json:"max_turns"`
	Metadata map[string]any `json:"metadata"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	// An empty body starts a session with defaults.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxTurns < 0 {
		writeError(w, http.StatusBadRequest, "max_turns must not be negative")
		return
	}

	start, err := h.svc.CreateSession(r.Context(), req.Topic, req.MaxTurns, req.Metadata)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, start)
}

func (h *SessionHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type turnRequest struct {
	Text string `json:"text"`
}

func (h *SessionHandler) ProcessTurn(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	unlock := h.locks.Lock(id)
	defer unlock()

	res, err := h.svc.ProcessTurn(r.Context(), id, req.Text)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to process turn")
		return
	}
	mw.AddLogFields(r.Context(),
		zap.Int("turn", res.TurnNumber),
		zap.String("strategy", res.Strategy),
		zap.Bool("completed", res.Completed))
	writeJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) Graph(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	g, err := h.svc.GetGraph(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get graph")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type slotsResponse struct {
	Slots []domain.CanonicalSlot `json:"slots"`
	Count int                    `json:"count"`
}

func (h *SessionHandler) Slots(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var status *domain.SlotStatus
	if s := r.URL.Query().Get("status"); s != "" {
		if !domain.ValidSlotStatus(s) {
			writeError(w, http.StatusBadRequest, "status must be candidate or active")
			return
		}
		st := domain.SlotStatus(s)
		status = &st
	}
	slots, err := h.svc.ListSlots(r.Context(), id, status)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list slots")
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{Slots: slots, Count: len(slots)})
}

type nodeStatesResponse struct {
	NodeStates []domain.NodeState `json:"node_states"`
	Count      int                `json:"count"`
}

func (h *SessionHandler) NodeStates(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	states, err := h.svc.ListNodeStates(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list node states")
		return
	}
	writeJSON(w, http.StatusOK, nodeStatesResponse{NodeStates: states, Count: len(states)})
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}
