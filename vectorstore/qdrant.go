// Package vectorstore holds the vector index backends.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/medtour/chatbot-service/models"
)

const DefaultQdrantURL = "http://localhost:6333"

var errNotFound = errors.New("not found")

// QdrantConfig holds the connection details of a Qdrant server.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Qdrant is a REST client for a single Qdrant collection using cosine
// distance.
type Qdrant struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

func NewQdrant(cfg QdrantConfig) *Qdrant {
	if cfg.URL == "" {
		cfg.URL = DefaultQdrantURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type qdrantCollection struct {
	Status      string `json:"status"`
	PointsCount *int   `json:"points_count"`
	Config      struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type qdrantPoint struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload models.Payload `json:"payload"`
}

type qdrantHit struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (q *Qdrant) collectionURL(suffix string) string {
	return q.url + "/collections/" + url.PathEscape(q.collection) + suffix
}

// CreateCollection creates the collection unless it already exists.
func (q *Qdrant) CreateCollection(ctx context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return models.NewError(models.KindIndex, "create collection", fmt.Errorf("invalid vector size %d", vectorSize))
	}
	err := q.do(ctx, http.MethodGet, q.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errNotFound) {
		return models.NewError(models.KindIndex, "create collection", err)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, q.collectionURL(""), body, nil); err != nil {
		return models.NewError(models.KindIndex, "create collection", err)
	}
	return nil
}

// Upsert writes points and waits until they are applied.
func (q *Qdrant) Upsert(ctx context.Context, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}
	body := struct {
		Points []qdrantPoint `json:"points"`
	}{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		body.Points[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	if err := q.do(ctx, http.MethodPut, q.collectionURL("/points?wait=true"), body, nil); err != nil {
		return models.NewError(models.KindIndex, "upsert", err)
	}
	return nil
}

// Search returns the nearest points. A missing collection or an unreachable
// server has no results.
func (q *Qdrant) Search(ctx context.Context, vector []float32, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		return []models.SearchResult{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []qdrantHit `json:"result"`
	}
	err := q.do(ctx, http.MethodPost, q.collectionURL("/points/search"), req, &resp)
	if errors.Is(err, errNotFound) {
		return []models.SearchResult{}, nil
	}
	if err != nil {
		log.Warnf("QDRANT: search in '%s' failed: %v", q.collection, err)
		return []models.SearchResult{}, nil
	}
	results := make([]models.SearchResult, 0, len(resp.Result))
	for _, hit := range resp.Result {
		results = append(results, resultFromPayload(hit.Payload, hit.Score))
	}
	return results, nil
}

func (q *Qdrant) CollectionInfo(ctx context.Context) (models.CollectionInfo, error) {
	var resp struct {
		Result qdrantCollection `json:"result"`
	}
	if err := q.do(ctx, http.MethodGet, q.collectionURL(""), nil, &resp); err != nil {
		return models.CollectionInfo{}, models.NewError(models.KindIndex, "collection info", err)
	}
	info := models.CollectionInfo{
		Name:       q.collection,
		Status:     resp.Result.Status,
		VectorSize: resp.Result.Config.Params.Vectors.Size,
		Distance:   resp.Result.Config.Params.Vectors.Distance,
	}
	if resp.Result.PointsCount != nil {
		info.PointCount = *resp.Result.PointsCount
	}
	return info, nil
}

// HealthCheck lists collections, the cheapest authenticated call.
func (q *Qdrant) HealthCheck(ctx context.Context) bool {
	return q.do(ctx, http.MethodGet, q.url+"/collections", nil, nil) == nil
}

func (q *Qdrant) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

func (q *Qdrant) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("qdrant %s %s: %w", method, target, errNotFound)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, target, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
