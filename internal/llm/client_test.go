package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeProvider) complete(ctx context.Context, prompt string, temp float64) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func TestExtract_ParsesAndFilters(t *testing.T) {
	p := &fakeProvider{response: "```json\n" + `{"concepts":[{"text":" low sugar ","node_type":"attribute"},{"text":"x","node_type":"bogus"},{"text":"","node_type":"attribute"}],"relationships":[{"source_text":"low sugar","target_text":"health"}]}` + "\n```"}
	c := newClient(p)

	out, err := c.Extract(context.Background(), domain.ExtractionInput{
		Text:        "I like low sugar drinks",
		UtteranceID: "u1",
		NodeTypes:   []string{"attribute", "functional_consequence"},
	})
	require.NoError(t, err)
	require.Len(t, out.Concepts, 1)
	assert.Equal(t, "low sugar", out.Concepts[0].Text)
	assert.Equal(t, "u1", out.Concepts[0].SourceUtteranceID)
	require.Len(t, out.Relationships, 1)
	assert.Equal(t, domain.DefaultRelationType, out.Relationships[0].RelationType)
	assert.Contains(t, p.prompts[0], "attribute, functional_consequence")
}

func TestExtract_Errors(t *testing.T) {
	c := newClient(&fakeProvider{err: errors.New("boom")})
	_, err := c.Extract(context.Background(), domain.ExtractionInput{Text: "x"})
	assert.ErrorContains(t, err, "extract")

	c = newClient(&fakeProvider{response: "not json"})
	_, err = c.Extract(context.Background(), domain.ExtractionInput{Text: "x"})
	assert.ErrorContains(t, err, "parse extraction response")
}

func TestProposeSlots_SkipsInvalidIDs(t *testing.T) {
	id := uuid.New()
	resp := `[{"slot_name":"sugar_reduction","description":"less sugar","member_node_ids":["` + id.String() + `","nope"]},{"slot_name":"empty","member_node_ids":["nope"]}]`
	p := &fakeProvider{response: resp}
	c := newClient(p)

	got, err := c.ProposeSlots(context.Background(), domain.SlotProposalInput{
		Groups: map[string][]domain.SlotProposalNode{
			"attribute": {{ID: id, Label: "low sugar"}},
		},
		ActiveSlotNames: []string{"health"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sugar_reduction", got[0].SlotName)
	assert.Equal(t, []uuid.UUID{id}, got[0].MemberNodeIDs)
	assert.Contains(t, p.prompts[0], id.String()+": low sugar")
	assert.Contains(t, p.prompts[0], "health")
}

func TestScoreResponse(t *testing.T) {
	c := newClient(&fakeProvider{response: `{"response_depth":"deep","specificity":1.4,"certainty":0.7,"engagement":-0.2,"valence":0.5,"relevance":0.9,"hedging":true}`})
	scores, err := c.ScoreResponse(context.Background(), domain.RubricInput{Question: "q", Response: "r"})
	require.NoError(t, err)
	assert.Equal(t, domain.DepthDeep, scores.ResponseDepth)
	assert.Equal(t, 1.0, scores.Specificity)
	assert.Equal(t, 0.0, scores.Engagement)
	assert.True(t, scores.Hedging)

	c = newClient(&fakeProvider{response: `{"response_depth":"profound"}`})
	_, err = c.ScoreResponse(context.Background(), domain.RubricInput{})
	assert.Error(t, err)
}

func TestGenerateQuestion(t *testing.T) {
	p := &fakeProvider{response: ` "Why does that matter to you?" `}
	c := newClient(p)
	q, err := c.GenerateQuestion(context.Background(), domain.QuestionInput{
		Strategy:   "ladder_up",
		FocusLabel: "low sugar",
		RecentExchanges: []domain.Utterance{
			{Speaker: domain.SpeakerRespondent, Text: "I like low sugar"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Why does that matter to you?", q)
	assert.Contains(t, p.prompts[0], "respondent: I like low sugar")

	c = newClient(&fakeProvider{response: "  "})
	_, err = c.GenerateQuestion(context.Background(), domain.QuestionInput{})
	assert.Error(t, err)
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" hello "}}]}`))
	}))
	defer srv.Close()

	p := newOpenAIProvider("test-key", srv.URL+"/v1/", "test-model")
	out, err := p.complete(context.Background(), "hi", 0.2)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "test-model", gotModel)
}

func TestAnthropicProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"answer"}]}`))
	}))
	defer srv.Close()

	p := newAnthropicProvider("k", srv.URL, "")
	out, err := p.complete(context.Background(), "hi", 0)
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
}

func TestAnthropicProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	_, err := newAnthropicProvider("k", srv.URL, "").complete(context.Background(), "hi", 0)
	assert.ErrorContains(t, err, "status 429")
}

func TestGeminiProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+geminiModel+":generateContent", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	out, err := newGeminiProvider("k", srv.URL, "").complete(context.Background(), "hi", 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestNewClient(t *testing.T) {
	for _, p := range []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderCerebras} {
		_, err := NewClient(Config{Provider: p})
		assert.Error(t, err, p)
		c, err := NewClient(Config{Provider: p, APIKey: "k"})
		require.NoError(t, err, p)
		assert.NotNil(t, c)
	}
	_, err := NewClient(Config{Provider: "nope"})
	assert.ErrorContains(t, err, "unknown LLM provider")

	c, err := NewClient(Config{Provider: ProviderMock})
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, c)
}

func TestMockClient_TracksCalls(t *testing.T) {
	m := NewMockClient()
	m.ExtractResponse = &domain.Extraction{Concepts: []domain.ExtractedConcept{{Text: "a", NodeType: "attribute"}}}

	out, err := m.Extract(context.Background(), domain.ExtractionInput{UtteranceID: "u9"})
	require.NoError(t, err)
	assert.Equal(t, "u9", out.Concepts[0].SourceUtteranceID)
	assert.Len(t, m.ExtractCalls, 1)

	m.Reset()
	assert.Empty(t, m.ExtractCalls)
}
