package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"growthrag/internal/providers"
	"growthrag/internal/util"
)

// Builder constructs the underlying embedding provider. It runs at most once per Service.
type Builder func() (providers.EmbeddingProvider, error)

// Service embeds text into L2-normalized vectors. The provider is built lazily on
// first use and reused for the lifetime of the Service.
type Service struct {
	build     Builder
	dim       int
	batchSize int
	logger    *slog.Logger

	once     sync.Once
	provider providers.EmbeddingProvider
	initErr  error
}

func NewService(build Builder, dim, batchSize int) *Service {
	return &Service{build: build, dim: dim, batchSize: batchSize, logger: slog.Default()}
}

// FromManager wraps the manager's preferred embedding provider.
func FromManager(m *providers.Manager, dim, batchSize int) *Service {
	return NewService(func() (providers.EmbeddingProvider, error) {
		p, _ := m.EmbedProvider()
		return p, nil
	}, dim, batchSize)
}

func (s *Service) WithLogger(l *slog.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *Service) Dimension() int { return s.dim }

func (s *Service) init() (providers.EmbeddingProvider, error) {
	s.once.Do(func() {
		p, err := s.build()
		if err != nil {
			s.initErr = fmt.Errorf("init embedding provider: %w", err)
			return
		}
		s.provider = p
		if s.batchSize <= 0 {
			s.batchSize = 64
			if bs, ok := p.(providers.BatchSizer); ok && bs.PreferredBatchSize() > 0 {
				s.batchSize = bs.PreferredBatchSize()
			}
		}
		s.logger.Info("embedding provider ready", "dim", s.dim, "batch_size", s.batchSize)
	})
	return s.provider, s.initErr
}

// Embed returns one unit vector per input text, in input order.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p, err := s.init()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		vecs, info, err := p.Embed(ctx, providers.EmbedRequest{
			Operation: "embed",
			Inputs:    texts[start:end],
			Dimension: s.dim,
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d via %s: %w", start, end, info.Name, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", util.ErrLengthMismatch, len(vecs), end-start)
		}
		for _, v := range vecs {
			if len(v) == 0 {
				return nil, util.ErrEmptyEmbedding
			}
			out = append(out, Normalize(v))
		}
	}
	return out, nil
}

// EmbedOne embeds a single query string.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Normalize scales v to unit length in place. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
