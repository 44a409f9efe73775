package api

import (
	"context"

	"github.com/Harshitk-cp/elicit/internal/config"
	"github.com/Harshitk-cp/elicit/internal/domain"
	"github.com/Harshitk-cp/elicit/internal/embedding"
	"github.com/Harshitk-cp/elicit/internal/llm"
	"github.com/Harshitk-cp/elicit/internal/scoring"
	"github.com/Harshitk-cp/elicit/internal/service"
	"github.com/Harshitk-cp/elicit/internal/signals"
	"github.com/Harshitk-cp/elicit/internal/store"
	"github.com/Harshitk-cp/elicit/internal/store/memstore"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Backend is the persistence the interview engine runs on.
type Backend struct {
	Sessions   domain.SessionStore
	Utterances domain.UtteranceStore
	Graph      domain.SurfaceGraphStore
	Slots      domain.CanonicalSlotStore
	NodeStates domain.NodeStateStore
	// Ping reports store health. Nil means always healthy.
	Ping func(ctx context.Context) error
}

func PostgresBackend(db *pgxpool.Pool) Backend {
	return Backend{
		Sessions:   store.NewSessionStore(db),
		Utterances: store.NewUtteranceStore(db),
		Graph:      store.NewSurfaceGraphStore(db),
		Slots:      store.NewCanonicalSlotStore(db),
		NodeStates: store.NewNodeStateStore(db),
		Ping:       db.Ping,
	}
}

func MemoryBackend() Backend {
	s := memstore.New()
	return Backend{
		Sessions:   s.Sessions,
		Utterances: s.Utterances,
		Graph:      s.Surface,
		Slots:      s.Slots,
		NodeStates: s.NodeStates,
	}
}

// Clients are the external collaborators. Either may be nil, in which case
// the stages that need it run degraded.
type Clients struct {
	LLM       domain.LLMClient
	Embedding domain.EmbeddingClient
}

// NewClients builds the LLM and embedding clients from the environment. A
// client that cannot be built is logged and left nil.
func NewClients(logger *zap.Logger) Clients {
	var c Clients

	llmProvider := config.LLMProvider()
	llmClient, err := llm.NewClient(llm.Config{
		Provider: llmProvider,
		APIKey:   config.LLMAPIKey(),
		BaseURL:  config.OpenAIBaseURL(),
		Model:    config.LLMModel(),
	})
	if err != nil {
		logger.Warn("LLM client initialization failed", zap.String("provider", llmProvider), zap.Error(err))
	} else {
		c.LLM = llmClient
		logger.Info("LLM client initialized", zap.String("provider", llmProvider))
	}

	embeddingProvider := config.EmbeddingProvider()
	embedder, err := embedding.NewClient(embedding.Config{
		Provider:   embeddingProvider,
		APIKey:     config.EmbeddingAPIKey(),
		BaseURL:    config.OpenAIBaseURL(),
		Model:      config.EmbeddingModel(),
		Dimensions: config.EmbeddingDimensions(),
	})
	if err != nil {
		logger.Warn("Embedding client initialization failed", zap.String("provider", embeddingProvider), zap.Error(err))
	} else {
		c.Embedding = embedder
		logger.Info("Embedding client initialized", zap.String("provider", embeddingProvider))
	}
	return c
}

// NewInterviewService assembles the turn pipeline. Invalid definitions or
// tuning values come back as a ConfigurationError.
func NewInterviewService(b Backend, c Clients, defs *config.Definitions, logger *zap.Logger) (*service.InterviewService, error) {
	reg := signals.DefaultRegistry(defs.StrategyIDs())
	engine, err := scoring.NewEngine(defs.Strategies, reg, scoring.Config{
		DiversityPenalty: config.DiversityPenalty(),
		DiversityWindow:  config.DiversityWindow(),
		DefaultStrategy:  defs.DefaultStrategy,
	})
	if err != nil {
		return nil, err
	}

	// Nil-safe conversions: a nil LLMClient stays a nil interface for each role.
	var (
		extractor domain.Extractor
		proposer  domain.SlotProposer
		rubric    domain.RubricScorer
		questions domain.QuestionGenerator
	)
	if c.LLM != nil {
		extractor, proposer, rubric, questions = c.LLM, c.LLM, c.LLM, c.LLM
	}

	detector, err := signals.NewDetector(reg, engine.SignalKeys(), rubric, signals.Params{
		Window:         config.TemporalWindow(),
		PhaseMidStart:  config.PhaseMidStart(),
		PhaseLateStart: config.PhaseLateStart(),
	}, logger, signals.WithRubricTimeout(config.LLMTimeout()))
	if err != nil {
		return nil, err
	}

	surface := service.NewSurfaceService(b.Graph, c.Embedding, config.SurfaceSimilarityThreshold(), config.EmbeddingTimeout(), logger)
	canonical := service.NewCanonicalService(b.Slots, proposer, c.Embedding, service.CanonicalConfig{
		SimilarityThreshold: config.CanonicalSimilarityThreshold(),
		MinSupportNodes:     config.CanonicalMinSupportNodes(),
		MinTurns:            config.CanonicalMinTurns(),
		ProposalTimeout:     config.LLMTimeout(),
		EmbeddingTimeout:    config.EmbeddingTimeout(),
	}, logger)

	return service.NewInterviewService(service.InterviewDeps{
		Sessions:   b.Sessions,
		Utterances: b.Utterances,
		Graph:      b.Graph,
		NodeStates: b.NodeStates,
		Surface:    surface,
		Canonical:  canonical,
		Detector:   detector,
		Engine:     engine,
		Extractor:  extractor,
		Questions:  questions,
	}, service.InterviewConfig{
		Methodology: defs.Methodology,
		MaxTurns:    config.MaxTurns(),
		LLMTimeout:  config.LLMTimeout(),
	}, logger), nil
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.SessionStore       = (*store.SessionStore)(nil)
	_ domain.UtteranceStore     = (*store.UtteranceStore)(nil)
	_ domain.SurfaceGraphStore  = (*store.SurfaceGraphStore)(nil)
	_ domain.CanonicalSlotStore = (*store.CanonicalSlotStore)(nil)
	_ domain.NodeStateStore     = (*store.NodeStateStore)(nil)
	_ domain.SessionStore       = (*memstore.SessionStore)(nil)
	_ domain.UtteranceStore     = (*memstore.UtteranceStore)(nil)
	_ domain.SurfaceGraphStore  = (*memstore.SurfaceGraphStore)(nil)
	_ domain.CanonicalSlotStore = (*memstore.CanonicalSlotStore)(nil)
	_ domain.NodeStateStore     = (*memstore.NodeStateStore)(nil)
	_ domain.EmbeddingClient    = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient    = (*embedding.MockClient)(nil)
	_ domain.LLMClient          = (*llm.Client)(nil)
	_ domain.LLMClient          = (*llm.MockClient)(nil)
)
