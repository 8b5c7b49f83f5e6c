package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/medtour/chatbot-service/models"
)

// Memory keeps the collection in process. Nothing survives a restart, so
// every start re-ingests.
type Memory struct {
	mu         sync.RWMutex
	name       string
	vectorSize int
	created    bool
	points     map[uint64]models.Point
}

func NewMemory(collection string) *Memory {
	return &Memory{name: collection, points: make(map[uint64]models.Point)}
}

func (m *Memory) CreateCollection(_ context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return models.NewError(models.KindIndex, "create collection", fmt.Errorf("invalid vector size %d", vectorSize))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		m.created = true
		m.vectorSize = vectorSize
	}
	return nil
}

func (m *Memory) Upsert(_ context.Context, points []models.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return models.NewError(models.KindIndex, "upsert", fmt.Errorf("collection %q does not exist", m.name))
	}
	for _, p := range points {
		if len(p.Vector) != m.vectorSize {
			return models.NewError(models.KindIndex, "upsert",
				fmt.Errorf("point %d has %d dimensions, collection expects %d", p.ID, len(p.Vector), m.vectorSize))
		}
	}
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

func (m *Memory) Search(_ context.Context, vector []float32, limit int) ([]models.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || len(m.points) == 0 {
		return []models.SearchResult{}, nil
	}
	if len(vector) != m.vectorSize {
		return nil, models.NewError(models.KindIndex, "search",
			fmt.Errorf("query has %d dimensions, collection expects %d", len(vector), m.vectorSize))
	}
	scored := make([]scoredPoint, 0, len(m.points))
	for _, p := range m.points {
		scored = append(scored, scoredPoint{id: p.ID, payload: p.Payload, score: cosine(vector, p.Vector)})
	}
	return topK(scored, limit), nil
}

func (m *Memory) CollectionInfo(_ context.Context) (models.CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.created {
		return models.CollectionInfo{}, models.NewError(models.KindIndex, "collection info", fmt.Errorf("collection %q does not exist", m.name))
	}
	return models.CollectionInfo{
		Name:       m.name,
		PointCount: len(m.points),
		Status:     "green",
		VectorSize: m.vectorSize,
		Distance:   "Cosine",
	}, nil
}

func (m *Memory) HealthCheck(context.Context) bool { return true }
func (m *Memory) Close() error                     { return nil }

type scoredPoint struct {
	id      uint64
	payload models.Payload
	score   float64
}

// topK orders by descending score, ties by ascending id, and keeps limit.
func topK(scored []scoredPoint, limit int) []models.SearchResult {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].id < scored[j].id
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	results := make([]models.SearchResult, len(scored))
	for i, s := range scored {
		results[i] = models.SearchResult{
			Text:     s.payload.Text,
			Page:     s.payload.Page,
			Source:   s.payload.Source,
			Score:    s.score,
			Metadata: s.payload.PayloadMap(),
		}
	}
	return results
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// resultFromPayload builds a result from a decoded JSON payload.
func resultFromPayload(payload map[string]any, score float64) models.SearchResult {
	r := models.SearchResult{Score: score, Metadata: payload}
	if payload == nil {
		return r
	}
	if s, ok := payload["text"].(string); ok {
		r.Text = s
	}
	if s, ok := payload["source"].(string); ok {
		r.Source = s
	}
	r.Page = intValue(payload["page"])
	return r
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case float32:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case int32:
		return int(n)
	}
	return 0
}
