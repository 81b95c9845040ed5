package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// MockProvider needs no network. Embeddings are derived from the input's hash
// so equal texts always map to the same unit vector.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 384
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) PreferredBatchSize() int { return 64 }

func (m *MockProvider) Embed(_ context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, len(req.Inputs))
	for i, input := range req.Inputs {
		vectors[i] = hashVector(input, dim)
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

const mockVisionJSON = `{"summary":"Mock photo review.","observations":["no visible concern in mock mode"],"possible_concerns":[],"red_flags":[],"confidence":"low"}`

const mockAnswer = "## Summary\n- Deterministic answer based on retrieved evidence [S1].\n\n" +
	"## Next steps\n- Mock output only; configure a real provider for clinical content."

func (m *MockProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	for _, msg := range req.Messages {
		if msg.HasImages() {
			return ChatResponse{Text: mockVisionJSON}, info, nil
		}
	}
	if strings.Contains(strings.ToLower(req.Operation), "answer") {
		return ChatResponse{Text: mockAnswer}, info, nil
	}
	return ChatResponse{Text: "Mock response."}, info, nil
}

// hashVector expands sha256(input || block) into dim values in [-1, 1) and
// scales the result to unit length.
func hashVector(input string, dim int) []float32 {
	if input == "" {
		input = "empty"
	}
	vec := make([]float32, dim)
	var block [4]byte
	var sum float64
	for i := 0; i < dim; i += 8 {
		binary.BigEndian.PutUint32(block[:], uint32(i/8))
		h := sha256.Sum256(append([]byte(input), block[:]...))
		for j := 0; j < 8 && i+j < dim; j++ {
			u := binary.BigEndian.Uint32(h[j*4 : j*4+4])
			x := float32(u)/float32(math.MaxUint32)*2 - 1
			vec[i+j] = x
			sum += float64(x) * float64(x)
		}
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
