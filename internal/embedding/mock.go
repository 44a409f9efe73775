package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// MockClient produces deterministic bag-of-words vectors so that texts sharing
// words are similar. Vectors set in Overrides win over the generated ones.
type MockClient struct {
	Dimensions int
	Overrides  map[string][]float32
	Err        error

	mu    sync.Mutex
	Calls []string
}

func NewMockClient() *MockClient {
	return &MockClient{Dimensions: DefaultDimensions, Overrides: make(map[string][]float32)}
}

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, text)
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	if v, ok := c.Overrides[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return hashVector(text, c.Dimensions), nil
}

func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

func hashVector(text string, dims int) []float32 {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	v := make([]float32, dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		v[h.Sum32()%uint32(dims)] += 1
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}
