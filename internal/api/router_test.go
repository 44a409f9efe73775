package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Harshitk-cp/elicit/internal/config"
	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/embedding"
	"github.com/Harshitk-cp/elicit/internal/llm"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	app *App
	llm *llm.MockClient
}

func newTestServer(t *testing.T, maxTurns string, ping func(ctx context.Context) error) *testServer {
	t.Helper()
	t.Setenv("MAX_TURNS", maxTurns)
	t.Setenv("RATE_LIMIT_BURST", "1000")
	mock := llm.NewMockClient()
	mock.ExtractResponse = &domain.Extraction{
		Concepts: []domain.ExtractedConcept{
			{Text: "price", NodeType: "attribute"},
			{Text: "saves money", NodeType: "functional_consequence"},
		},
		Relationships: []domain.ExtractedRelationship{
			{SourceText: "price", TargetText: "saves money"},
		},
	}
	svc, err := NewInterviewService(MemoryBackend(), Clients{LLM: mock, Embedding: embedding.NewMockClient()}, config.DefaultDefinitions(), zap.NewNop())
	require.NoError(t, err)
	return &testServer{app: NewApp(svc, ping, zap.NewNop()), llm: mock}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type sessionStartBody struct {
	Session  domain.Session `json:"session"`
	Question string         `json:"question"`
}

func (s *testServer) createSession(t *testing.T) uuid.UUID {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/sessions", map[string]any{"topic": "coffee"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[sessionStartBody](t, rec).Session.ID
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestServer(t, "2", nil)

	rec := s.do(t, http.MethodPost, "/v1/sessions", map[string]any{"topic": "coffee", "max_turns": 5})
	require.Equal(t, http.StatusCreated, rec.Code)
	start := decode[sessionStartBody](t, rec)
	assert.Equal(t, "Mock question?", start.Question)
	assert.Equal(t, 5, start.Session.MaxTurns)
	assert.Equal(t, "laddering", start.Session.Methodology)

	rec = s.do(t, http.MethodGet, "/v1/sessions/"+start.Session.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.Session](t, rec)
	assert.Equal(t, start.Session.ID, got.ID)
	assert.Equal(t, "coffee", got.Topic)
}

func TestCreateSessionWithoutBody(t *testing.T) {
	s := newTestServer(t, "2", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	rec := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, decode[sessionStartBody](t, rec).Session.MaxTurns)
}

func TestProcessTurnFlow(t *testing.T) {
	s := newTestServer(t, "2", nil)
	id := s.createSession(t)
	base := "/v1/sessions/" + id.String()

	rec := s.do(t, http.MethodPost, base+"/turns", map[string]string{"text": "I buy it for the price, it saves money"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	turn := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, turn["turn_number"])
	assert.EqualValues(t, 2, turn["new_nodes"])
	assert.EqualValues(t, 1, turn["new_edges"])
	assert.Equal(t, false, turn["completed"])
	assert.NotEmpty(t, turn["strategy"])

	rec = s.do(t, http.MethodGet, base+"/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	graph := decode[struct {
		Nodes []domain.SurfaceNode `json:"nodes"`
		Edges []domain.SurfaceEdge `json:"edges"`
	}](t, rec)
	assert.Len(t, graph.Nodes, 2)
	assert.Len(t, graph.Edges, 1)

	rec = s.do(t, http.MethodGet, base+"/node-states", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["count"])

	rec = s.do(t, http.MethodGet, base+"/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode[map[string]any](t, rec)["count"])

	rec = s.do(t, http.MethodPost, base+"/turns", map[string]string{"text": "mostly the price"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["completed"])

	rec = s.do(t, http.MethodPost, base+"/turns", map[string]string{"text": "one more"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["turn_count"])
}

func TestSessionErrors(t *testing.T) {
	s := newTestServer(t, "2", nil)
	id := s.createSession(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad id", http.MethodGet, "/v1/sessions/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/v1/sessions/" + uuid.NewString(), nil, http.StatusNotFound},
		{"unknown session graph", http.MethodGet, "/v1/sessions/" + uuid.NewString() + "/graph", nil, http.StatusNotFound},
		{"empty text", http.MethodPost, "/v1/sessions/" + id.String() + "/turns", map[string]string{"text": ""}, http.StatusBadRequest},
		{"blank text", http.MethodPost, "/v1/sessions/" + id.String() + "/turns", map[string]string{"text": "   "}, http.StatusBadRequest},
		{"bad slot status", http.MethodGet, "/v1/sessions/" + id.String() + "/slots?status=retired", nil, http.StatusBadRequest},
		{"negative max turns", http.MethodPost, "/v1/sessions", map[string]any{"max_turns": -1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestExtractionFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t, "2", nil)
	id := s.createSession(t)
	s.llm.ExtractError = errors.New("provider down")

	rec := s.do(t, http.MethodPost, "/v1/sessions/"+id.String()+"/turns", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "extraction unavailable")
}

func TestConcurrentTurnsAreSerialized(t *testing.T) {
	s := newTestServer(t, "20", nil)
	id := s.createSession(t)

	const n = 6
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id.String()+"/turns", strings.NewReader(`{"text":"the price matters"}`))
			rec := httptest.NewRecorder()
			s.app.Router.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	for _, c := range codes {
		assert.Equal(t, http.StatusOK, c)
	}
	rec := s.do(t, http.MethodGet, "/v1/sessions/"+id.String(), nil)
	assert.Equal(t, n, decode[domain.Session](t, rec).TurnCount)
}

func TestStrategies(t *testing.T) {
	s := newTestServer(t, "2", nil)
	rec := s.do(t, http.MethodGet, "/v1/strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Methodology domain.Methodology      `json:"methodology"`
		Strategies  []domain.StrategyConfig `json:"strategies"`
	}](t, rec)
	assert.Equal(t, "laddering", body.Methodology.Name)
	assert.Equal(t, config.DefaultDefinitions().StrategyIDs(), strategyIDs(body.Strategies))
}

func strategyIDs(strategies []domain.StrategyConfig) []string {
	ids := make([]string, len(strategies))
	for i, st := range strategies {
		ids[i] = st.ID
	}
	return ids
}

func TestAPIKeyRequiredWhenConfigured(t *testing.T) {
	t.Setenv("API_KEY", "s3cret")
	s := newTestServer(t, "2", nil)

	rec := s.do(t, http.MethodGet, "/v1/strategies", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/strategies", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	ok := httptest.NewRecorder()
	s.app.Router.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	// Health stays open.
	rec = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "2", nil)
	rec := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	down := newTestServer(t, "2", func(context.Context) error { return errors.New("db down") })
	rec = down.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewInterviewServiceRejectsBadTuning(t *testing.T) {
	t.Setenv("PHASE_MID_START", "10")
	t.Setenv("PHASE_LATE_START", "3")
	_, err := NewInterviewService(MemoryBackend(), Clients{}, config.DefaultDefinitions(), zap.NewNop())
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
