package hybrid

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"growthrag/internal/models"
	"growthrag/internal/providers"
	"growthrag/internal/sources"
	"growthrag/internal/vector"
)

type constEmbedder struct{}

func (constEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

// memIndex returns its stored hits, nearest first.
type memIndex struct {
	mu      sync.Mutex
	hits    []models.Hit
	queries int
}

func (m *memIndex) Query(_ context.Context, _ []float32, k int, _ *vector.Filter) ([]models.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	out := append([]models.Hit(nil), m.hits...)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memIndex) add(h models.Hit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits = append(m.hits, h)
}

type stubConnector struct {
	name     models.Source
	metas    []models.PaperMeta
	searchFn func() error
	searches atomic.Int32
}

func (s *stubConnector) Name() models.Source { return s.name }

func (s *stubConnector) Search(context.Context, string, int) ([]string, error) {
	s.searches.Add(1)
	if s.searchFn != nil {
		if err := s.searchFn(); err != nil {
			return nil, err
		}
	}
	ids := make([]string, len(s.metas))
	for i, m := range s.metas {
		ids[i] = m.PaperID
	}
	return ids, nil
}

func (s *stubConnector) FetchSummary(context.Context, []string) ([]models.PaperMeta, error) {
	return s.metas, nil
}

// fakeIngester adds one hit per ingested paper to idx.
type fakeIngester struct {
	idx   *memIndex
	fail  map[string]error
	calls atomic.Int32
}

func (f *fakeIngester) IngestURL(_ context.Context, meta models.PaperMeta) (int, error) {
	f.calls.Add(1)
	if err := f.fail[meta.PaperID]; err != nil {
		return 0, err
	}
	d := 0.2
	f.idx.add(models.Hit{Text: "evidence from " + meta.Title, Meta: models.ChunkMeta{PaperMeta: meta}, Distance: &d})
	return 1, nil
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, providers.ProviderInfo, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(providers.ChatResponse), args.Get(1).(providers.ProviderInfo), args.Error(2)
}

type denyLocker struct{}

func (denyLocker) Acquire(context.Context, string, time.Duration) (bool, error) { return false, nil }
func (denyLocker) Release(context.Context, string) error                       { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func balita() models.Consultation {
	return models.Consultation{
		ID:              "c1",
		Mode:            models.ModeBalita,
		AgeValue:        30,
		AgeUnit:         "months",
		Sex:             "male",
		WeightKG:        11.2,
		HeightCM:        85,
		MeasurementType: "height",
		UserQuestion:    "Is my child stunted?",
	}
}

func paper(id, title string, year int, src models.Source) models.PaperMeta {
	y := year
	return models.PaperMeta{PaperID: id, Title: title, Year: &y, Source: src, PDFURL: "https://x/" + id + ".pdf"}
}

func hitFor(meta models.PaperMeta, dist float64, text string) models.Hit {
	d := dist
	return models.Hit{Text: text, Meta: models.ChunkMeta{PaperMeta: meta}, Distance: &d}
}

func TestBuildQuery_Template(t *testing.T) {
	c := balita()
	want := "Topic: stunting prevention and nutrition for children and adolescents.\n" +
		"Mode: balita.\n" +
		"Age: 30 months. Sex: male.\n" +
		"Weight: 11.2 kg. Height/length: 85.0 cm.\n" +
		"Question: Is my child stunted?\n"
	require.Equal(t, want, BuildQuery(c))

	c.VisionFindings = &models.VisionFindings{Summary: "thin", Confidence: "low"}
	require.True(t, strings.HasSuffix(BuildQuery(c),
		`Vision findings: {"summary":"thin","observations":null,"possible_concerns":null,"red_flags":null,"confidence":"low"}`+"\n"))
}

func TestTruncateQuery(t *testing.T) {
	require.Equal(t, "abc", TruncateQuery("abcdef", 3))
	require.Equal(t, "ab", TruncateQuery("ab", 3))
	require.Equal(t, "gizi", TruncateQuery("gizi anak", 4))
	require.Len(t, []rune(TruncateQuery(strings.Repeat("é", 500), 400)), 400)
}

func TestAnswer_ScenarioA_EmptyIndexTriggersAutofetch(t *testing.T) {
	idx := &memIndex{}
	ing := &fakeIngester{idx: idx}
	pmc := &stubConnector{name: models.SourcePMC, metas: []models.PaperMeta{paper("PMC1", "Feeding", 2019, models.SourcePMC)}}
	s2 := &stubConnector{name: models.SourceSemanticScholar, metas: []models.PaperMeta{paper("s2a", "Growth", 2020, models.SourceSemanticScholar)}}
	oa := &stubConnector{name: models.SourceOpenAlex}

	gen := new(mockGenerator)
	gen.On("Chat", mock.Anything, mock.MatchedBy(func(req providers.ChatRequest) bool {
		return req.MaxTokens == 1000 && len(req.Messages) == 2 &&
			req.Messages[0].Role == "system" && strings.Contains(req.Messages[1].Text, "[S1] Feeding (2019)")
	})).Return(providers.ChatResponse{Text: "Grounded answer [S1]."}, providers.ProviderInfo{Name: "mock"}, nil).Once()

	o := New(Deps{
		Embedder:   constEmbedder{},
		Index:      idx,
		Connectors: []sources.Connector{pmc, s2, oa},
		Ingester:   ing,
		Generator:  gen,
	}, DefaultOptions(), quietLogger())

	res, err := o.Answer(context.Background(), balita())
	require.NoError(t, err)
	require.True(t, res.DidAutofetch)
	require.GreaterOrEqual(t, len(res.Hits), 1)
	require.EqualValues(t, 1, pmc.searches.Load())
	require.EqualValues(t, 1, s2.searches.Load())
	require.EqualValues(t, 1, oa.searches.Load())
	require.EqualValues(t, 2, ing.calls.Load())
	require.Equal(t, 2, idx.queries)
	require.True(t, strings.HasPrefix(res.Answer, "Grounded answer [S1].\n\n### 4) Sources (automatic)\n[S1] Feeding | 2019 | SOURCE:pmc | URL:https://x/PMC1.pdf"))
	gen.AssertExpectations(t)
}

func TestAnswer_ScenarioB_StrongEvidenceSkipsConnectors(t *testing.T) {
	a := paper("p1", "A", 2018, models.SourceCore)
	b := paper("p2", "B", 2019, models.SourceCore)
	c := paper("p3", "C", 2020, models.SourceCore)
	idx := &memIndex{hits: []models.Hit{
		hitFor(a, 0.1, "a0"), hitFor(a, 0.12, "a1"), hitFor(b, 0.15, "b0"), hitFor(c, 0.2, "c0"), hitFor(c, 0.22, "c1"),
	}}
	conn := &stubConnector{name: models.SourcePMC}
	ing := &fakeIngester{idx: idx}
	gen := new(mockGenerator)
	gen.On("Chat", mock.Anything, mock.Anything).
		Return(providers.ChatResponse{Text: "ok"}, providers.ProviderInfo{Name: "mock"}, nil).Once()

	o := New(Deps{Embedder: constEmbedder{}, Index: idx, Connectors: []sources.Connector{conn}, Ingester: ing, Generator: gen},
		DefaultOptions(), quietLogger())
	res, err := o.Answer(context.Background(), balita())
	require.NoError(t, err)
	require.False(t, res.DidAutofetch)
	require.Len(t, res.Hits, 5)
	require.Zero(t, conn.searches.Load())
	require.Zero(t, ing.calls.Load())
	require.Equal(t, 1, idx.queries)
	gen.AssertExpectations(t)
}

func TestAnswer_EmptyContextShortCircuits(t *testing.T) {
	m := paper("p1", "A", 2018, models.SourceCore)
	idx := &memIndex{hits: []models.Hit{hitFor(m, 0.1, ""), hitFor(m, 0.2, "   ")}}
	gen := new(mockGenerator)
	opts := DefaultOptions()
	opts.AutofetchEnabled = false

	o := New(Deps{Embedder: constEmbedder{}, Index: idx, Generator: gen}, opts, quietLogger())
	res, err := o.Answer(context.Background(), balita())
	require.NoError(t, err)
	require.Equal(t, EmptyContextAnswer, res.Answer)
	require.Len(t, res.Hits, 2)
	require.False(t, res.DidAutofetch)
	gen.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestAnswer_NoHitsAndNoCandidates(t *testing.T) {
	idx := &memIndex{}
	noPDF := paper("x", "No PDF", 2020, models.SourceOpenAlex)
	noPDF.PDFURL = ""
	conn := &stubConnector{name: models.SourceOpenAlex, metas: []models.PaperMeta{noPDF}}
	ing := &fakeIngester{idx: idx}
	gen := new(mockGenerator)

	o := New(Deps{Embedder: constEmbedder{}, Index: idx, Connectors: []sources.Connector{conn}, Ingester: ing, Generator: gen},
		DefaultOptions(), quietLogger())
	res, err := o.Answer(context.Background(), balita())
	require.NoError(t, err)
	require.Equal(t, EmptyContextAnswer, res.Answer)
	require.Empty(t, res.Hits)
	require.NotNil(t, res.Hits)
	require.False(t, res.DidAutofetch)
	require.Zero(t, ing.calls.Load())
	gen.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestAutofetch_SkipsMissingPDFURLs(t *testing.T) {
	idx := &memIndex{}
	m1 := paper("a", "A", 2020, models.SourcePMC)
	m2 := paper("b", "B", 2020, models.SourcePMC)
	m1.PDFURL, m2.PDFURL = "", ""
	ing := &fakeIngester{idx: idx}
	o := New(Deps{
		Embedder:   constEmbedder{},
		Index:      idx,
		Connectors: []sources.Connector{&stubConnector{name: models.SourcePMC, metas: []models.PaperMeta{m1, m2}}},
		Ingester:   ing,
	}, DefaultOptions(), quietLogger())

	res := o.Autofetch(context.Background(), "query")
	require.Zero(t, res.Inserted)
	require.Equal(t, 2, res.Candidates)
	require.Zero(t, ing.calls.Load())
	require.Empty(t, idx.hits)
	for _, out := range res.Outcomes {
		require.Equal(t, "missing pdf_url", out.Skipped)
	}
}

func TestAutofetch_OneFailureDoesNotAbortOthers(t *testing.T) {
	idx := &memIndex{}
	bad := &stubConnector{name: models.SourcePMC, searchFn: func() error { return errors.New("timeout") }}
	good := &stubConnector{name: models.SourceOpenAlex, metas: []models.PaperMeta{
		paper("w1", "One", 2020, models.SourceOpenAlex),
		paper("w2", "Two", 2021, models.SourceOpenAlex),
	}}
	ing := &fakeIngester{idx: idx, fail: map[string]error{"w1": errors.New("404")}}
	o := New(Deps{Embedder: constEmbedder{}, Index: idx, Connectors: []sources.Connector{bad, good}, Ingester: ing},
		DefaultOptions(), quietLogger())

	res := o.Autofetch(context.Background(), strings.Repeat("q", 1000))
	require.Equal(t, 1, res.Inserted)
	require.Equal(t, 2, res.Candidates)
	require.Error(t, res.Batches[0].Failure)
	require.NoError(t, res.Batches[1].Failure)
	require.Error(t, res.Outcomes[0].Err)
	require.Equal(t, 1, res.Outcomes[1].Inserted)
}

func TestAutofetch_SkipsWhenLockHeld(t *testing.T) {
	conn := &stubConnector{name: models.SourcePMC, metas: []models.PaperMeta{paper("a", "A", 2020, models.SourcePMC)}}
	o := New(Deps{
		Embedder:   constEmbedder{},
		Index:      &memIndex{},
		Connectors: []sources.Connector{conn},
		Ingester:   &fakeIngester{idx: &memIndex{}},
		Locker:     denyLocker{},
	}, DefaultOptions(), quietLogger())

	res := o.Autofetch(context.Background(), "q")
	require.True(t, res.LockHeld)
	require.Zero(t, conn.searches.Load())
}

func TestAnswer_GenerationErrorIsWrapped(t *testing.T) {
	a := paper("p1", "A", 2018, models.SourceCore)
	b := paper("p2", "B", 2019, models.SourceCore)
	idx := &memIndex{hits: []models.Hit{hitFor(a, 0.1, "a"), hitFor(b, 0.1, "b"), hitFor(a, 0.2, "c"), hitFor(b, 0.2, "d")}}
	boom := errors.New("upstream 502")
	gen := new(mockGenerator)
	gen.On("Chat", mock.Anything, mock.Anything).Return(providers.ChatResponse{}, providers.ProviderInfo{}, boom)

	o := New(Deps{Embedder: constEmbedder{}, Index: idx, Generator: gen}, DefaultOptions(), quietLogger())
	_, err := o.Answer(context.Background(), balita())
	require.ErrorIs(t, err, ErrGeneration)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "upstream 502")
}
