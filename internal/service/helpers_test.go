package service

import (
	"math"
	"testing"

	"github.com/Harshitk-cp/elicit/internal/config"
	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/embedding"
	"github.com/Harshitk-cp/elicit/internal/llm"
	"github.com/Harshitk-cp/elicit/internal/scoring"
	"github.com/Harshitk-cp/elicit/internal/signals"
	"github.com/Harshitk-cp/elicit/internal/store/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// unitPair returns two unit vectors with the given cosine similarity.
func unitPair(similarity float64) ([]float32, []float32) {
	return []float32{1, 0}, []float32{float32(similarity), float32(math.Sqrt(1 - similarity*similarity))}
}

type testInterview struct {
	svc      *InterviewService
	stores   *memstore.Stores
	llm      *llm.MockClient
	embedder *embedding.MockClient
	defs     *config.Definitions
}

func newTestInterview(t *testing.T) *testInterview {
	t.Helper()
	logger := zap.NewNop()
	defs := config.DefaultDefinitions()
	stores := memstore.New()
	mock := llm.NewMockClient()
	embedder := embedding.NewMockClient()

	reg := signals.DefaultRegistry(defs.StrategyIDs())
	engine, err := scoring.NewEngine(defs.Strategies, reg, scoring.Config{
		DiversityPenalty: scoring.DefaultDiversityPenalty,
		DiversityWindow:  scoring.DefaultDiversityWindow,
		DefaultStrategy:  defs.DefaultStrategy,
	})
	require.NoError(t, err)
	detector, err := signals.NewDetector(reg, engine.SignalKeys(), mock, signals.DefaultParams(), logger)
	require.NoError(t, err)

	svc := NewInterviewService(InterviewDeps{
		Sessions:   stores.Sessions,
		Utterances: stores.Utterances,
		Graph:      stores.Surface,
		NodeStates: stores.NodeStates,
		Surface:    NewSurfaceService(stores.Surface, embedder, DefaultSurfaceSimilarityThreshold, 0, logger),
		Canonical:  NewCanonicalService(stores.Slots, mock, embedder, DefaultCanonicalConfig(), logger),
		Detector:   detector,
		Engine:     engine,
		Extractor:  mock,
		Questions:  mock,
	}, InterviewConfig{Methodology: defs.Methodology, MaxTurns: 3}, logger)

	return &testInterview{svc: svc, stores: stores, llm: mock, embedder: embedder, defs: defs}
}

// oneSlotPerNode proposes a slot named after every node it receives.
func oneSlotPerNode(in domain.SlotProposalInput) []domain.SlotProposal {
	var out []domain.SlotProposal
	for _, group := range in.Groups {
		for _, n := range group {
			out = append(out, domain.SlotProposal{SlotName: n.Label, Description: n.Label, MemberNodeIDs: []uuid.UUID{n.ID}})
		}
	}
	return out
}
