package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/medtour/chatbot-service/models"
)

type fakeEmbedder struct {
	mu         sync.Mutex
	dims       int
	batchCalls int
	oneCalls   int
	failBatch  map[int]error // 1-based batch call number
	oneErr     error
	inputs     [][]string
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims, failBatch: map[int]error{}}
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	f.inputs = append(f.inputs, texts)
	if err, ok := f.failBatch[f.batchCalls]; ok {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector(float32(len(texts[i])))
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oneCalls++
	if f.oneErr != nil {
		return nil, f.oneErr
	}
	return f.vector(float32(len(text))), nil
}

func (f *fakeEmbedder) vector(seed float32) []float32 {
	v := make([]float32, f.dims)
	for i := range v {
		v[i] = seed + float32(i)
	}
	return v
}

func (f *fakeEmbedder) Dimensions() int   { return f.dims }
func (f *fakeEmbedder) ModelName() string { return "fake-embedding" }

func (f *fakeEmbedder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls + f.oneCalls
}

type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	system   string
	question string
}

func (f *fakeLLM) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.system = system
	f.question = user
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) ModelName() string { return "fake-llm" }

type fakeIndex struct {
	mu          sync.Mutex
	created     int
	vectorSize  int
	points      map[uint64]models.Point
	upserts     [][]models.Point
	existing    int
	createErr   error
	infoErr     error
	upsertErr   func(call int) error
	results     []models.SearchResult
	searchErr   error
	searchCalls int
	healthy     bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: map[uint64]models.Point{}, healthy: true}
}

func (f *fakeIndex) CreateCollection(_ context.Context, vectorSize int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.vectorSize = vectorSize
	return f.createErr
}

func (f *fakeIndex) Upsert(_ context.Context, points []models.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, points)
	if f.upsertErr != nil {
		if err := f.upsertErr(len(f.upserts)); err != nil {
			return err
		}
	}
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, limit int) ([]models.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *fakeIndex) CollectionInfo(_ context.Context) (models.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return models.CollectionInfo{}, f.infoErr
	}
	return models.CollectionInfo{
		Name:       "medical_documents",
		PointCount: f.existing + len(f.points),
		Status:     "green",
		VectorSize: f.vectorSize,
		Distance:   "Cosine",
	}, nil
}

func (f *fakeIndex) HealthCheck(context.Context) bool { return f.healthy }
func (f *fakeIndex) Close() error                     { return nil }

type fakeSource struct {
	docs    map[string]models.Document
	order   []string
	listErr error
	loadErr map[string]error
}

func newFakeSource(docs ...models.Document) *fakeSource {
	s := &fakeSource{docs: map[string]models.Document{}, loadErr: map[string]error{}}
	for _, d := range docs {
		s.docs[d.Name] = d
		s.order = append(s.order, d.Name)
	}
	return s
}

func (s *fakeSource) Discover() ([]string, error) {
	return s.order, s.listErr
}

func (s *fakeSource) Load(path string) (models.Document, error) {
	if err, ok := s.loadErr[path]; ok {
		return models.Document{}, err
	}
	d, ok := s.docs[path]
	if !ok {
		return models.Document{}, errors.New("no such document")
	}
	return d, nil
}

// docWithChunks builds a document whose pages each segment into exactly
// one chunk with a 100-character segmenter.
func docWithChunks(name string, n int) models.Document {
	doc := models.Document{Name: name}
	for i := 0; i < n; i++ {
		doc.Pages = append(doc.Pages, models.Page{Number: i, Text: fmt.Sprintf("%s page %d text", name, i)})
	}
	return doc
}
