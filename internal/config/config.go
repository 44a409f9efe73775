package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by ELICIT_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("ELICIT_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// StoreDriver returns the storage backend.
// Defaults to "postgres" if not set.
// Valid values: postgres, memory
func StoreDriver() string {
	d := os.Getenv("STORE_DRIVER")
	if d == "" {
		return "postgres"
	}
	return d
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func OpenAIBaseURL() string {
	return os.Getenv("OPENAI_BASE_URL")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProvider returns the configured LLM provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, gemini, cerebras, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// LLMModel overrides the provider's default chat model when set.
func LLMModel() string {
	return os.Getenv("LLM_MODEL")
}

func EmbeddingModel() string {
	return os.Getenv("EMBEDDING_MODEL")
}

// EmbeddingDimensions must match the vector(384) columns of the schema.
func EmbeddingDimensions() int {
	return intOr("EMBEDDING_DIMENSIONS", 384)
}

// LLMTimeout bounds every language-model call. Defaults to 30s.
func LLMTimeout() time.Duration {
	return durationOr("LLM_TIMEOUT", 30*time.Second)
}

// EmbeddingTimeout bounds every embedding call. Defaults to 10s.
func EmbeddingTimeout() time.Duration {
	return durationOr("EMBEDDING_TIMEOUT", 10*time.Second)
}

// APIKey is the static bearer token for the HTTP API. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func SurfaceSimilarityThreshold() float64 {
	return floatOr("SURFACE_SIMILARITY_THRESHOLD", 0.80)
}

func CanonicalSimilarityThreshold() float64 {
	return floatOr("CANONICAL_SIMILARITY_THRESHOLD", 0.83)
}

func CanonicalMinSupportNodes() int {
	return intOr("CANONICAL_MIN_SUPPORT_NODES", 1)
}

// CanonicalMinTurns is read and passed through but not enforced.
func CanonicalMinTurns() int {
	n, err := strconv.Atoi(os.Getenv("CANONICAL_MIN_TURNS"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func DiversityPenalty() float64 {
	v, err := strconv.ParseFloat(os.Getenv("DIVERSITY_PENALTY"), 64)
	if err != nil || v < 0 {
		return 0.3
	}
	return v
}

func DiversityWindow() int {
	return intOr("DIVERSITY_WINDOW", 5)
}

func TemporalWindow() int {
	return intOr("TEMPORAL_WINDOW", 5)
}

func PhaseMidStart() int {
	return intOr("PHASE_MID_START", 4)
}

func PhaseLateStart() int {
	return intOr("PHASE_LATE_START", 12)
}

func MaxTurns() int {
	return intOr("MAX_TURNS", 20)
}

// StrategyConfigPath points at the YAML strategy and methodology definitions.
// A missing file falls back to the built-in definitions.
func StrategyConfigPath() string {
	p := os.Getenv("STRATEGY_CONFIG_PATH")
	if p == "" {
		return "config/strategies.yaml"
	}
	return p
}

func intOr(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func floatOr(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func durationOr(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
