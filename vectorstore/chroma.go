package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	log "github.com/sirupsen/logrus"

	"github.com/medtour/chatbot-service/models"
)

const DefaultChromaURL = "http://localhost:8000"

// Chroma stores the collection in a Chroma server. Vectors are always
// supplied by the caller, Chroma never embeds on its own.
type Chroma struct {
	client chromago.Client
	name   string

	mu         sync.Mutex
	collection chromago.Collection
	vectorSize int
}

func NewChroma(baseURL, collection string) (*Chroma, error) {
	if baseURL == "" {
		baseURL = DefaultChromaURL
	}
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, models.NewError(models.KindIndex, "create chroma client", err)
	}
	return &Chroma{client: client, name: collection}, nil
}

func (c *Chroma) CreateCollection(ctx context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return models.NewError(models.KindIndex, "create collection", fmt.Errorf("invalid vector size %d", vectorSize))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collection != nil {
		return nil
	}
	col, err := c.client.GetOrCreateCollection(ctx, c.name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "medical tourism reference documents"),
				chromago.NewIntAttribute("dimensions", int64(vectorSize)),
			),
		),
		chromago.WithHNSWSpaceCreate(embeddings.COSINE),
		chromago.WithEmbeddingFunctionCreate(suppliedVectors{}),
	)
	if err != nil {
		return models.NewError(models.KindIndex, "create collection", err)
	}
	c.collection = col
	c.vectorSize = vectorSize
	log.Infof("CHROMA: using collection '%s'", c.name)
	return nil
}

func (c *Chroma) Upsert(ctx context.Context, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}
	col, err := c.current(ctx)
	if err != nil {
		return models.NewError(models.KindIndex, "upsert", err)
	}
	ids := make([]chromago.DocumentID, len(points))
	texts := make([]string, len(points))
	vectors := make([]embeddings.Embedding, len(points))
	metas := make([]chromago.DocumentMetadata, len(points))
	for i, p := range points {
		ids[i] = chromago.DocumentID(strconv.FormatUint(p.ID, 10))
		texts[i] = p.Payload.Text
		vectors[i] = embeddings.NewEmbeddingFromFloat32(p.Vector)
		metas[i] = chromago.NewDocumentMetadata(
			chromago.NewStringAttribute("source", p.Payload.Source),
			chromago.NewIntAttribute("page", int64(p.Payload.Page)),
			chromago.NewIntAttribute("chunk_id", int64(p.Payload.ChunkID)),
		)
	}
	err = col.Upsert(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(vectors...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return models.NewError(models.KindIndex, "upsert", err)
	}
	return nil
}

// Search converts Chroma's cosine distance into a similarity score. A
// missing collection or an unreachable server has no results.
func (c *Chroma) Search(ctx context.Context, vector []float32, limit int) ([]models.SearchResult, error) {
	results := []models.SearchResult{}
	if limit <= 0 {
		return results, nil
	}
	col, err := c.current(ctx)
	if err != nil {
		log.Warnf("CHROMA: collection '%s' unavailable for search: %v", c.name, err)
		return results, nil
	}
	res, err := col.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(limit),
	)
	if err != nil {
		log.Warnf("CHROMA: search in '%s' failed: %v", c.name, err)
		return results, nil
	}

	docGroups := res.GetDocumentsGroups()
	metaGroups := res.GetMetadatasGroups()
	distGroups := res.GetDistancesGroups()
	if len(docGroups) == 0 {
		return results, nil
	}
	for i, doc := range docGroups[0] {
		var meta map[string]any
		if len(metaGroups) > 0 && i < len(metaGroups[0]) && metaGroups[0][i] != nil {
			meta = metadataMap(metaGroups[0][i])
		}
		var score float64
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			score = 1 - float64(distGroups[0][i])
		}
		r := resultFromPayload(meta, score)
		r.Text = doc.ContentString()
		results = append(results, r)
	}
	return results, nil
}

func (c *Chroma) CollectionInfo(ctx context.Context) (models.CollectionInfo, error) {
	col, err := c.current(ctx)
	if err != nil {
		return models.CollectionInfo{}, models.NewError(models.KindIndex, "collection info", err)
	}
	count, err := col.Count(ctx)
	if err != nil {
		return models.CollectionInfo{}, models.NewError(models.KindIndex, "collection info", err)
	}
	c.mu.Lock()
	size := c.vectorSize
	c.mu.Unlock()
	return models.CollectionInfo{
		Name:       c.name,
		PointCount: int(count),
		Status:     "green",
		VectorSize: size,
		Distance:   "Cosine",
	}, nil
}

func (c *Chroma) HealthCheck(ctx context.Context) bool {
	return c.client.Heartbeat(ctx) == nil
}

func (c *Chroma) Close() error {
	return c.client.Close()
}

// current returns the collection, looking it up if another process created it.
func (c *Chroma) current(ctx context.Context) (chromago.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collection != nil {
		return c.collection, nil
	}
	col, err := c.client.GetCollection(ctx, c.name, chromago.WithEmbeddingFunctionGet(suppliedVectors{}))
	if err != nil {
		return nil, err
	}
	c.collection = col
	return col, nil
}

// metadataMap flattens document metadata through JSON; the metadata type
// exposes no generic accessor.
func metadataMap(meta chromago.DocumentMetadata) map[string]any {
	data, err := json.Marshal(meta)
	if err != nil {
		log.Warnf("CHROMA: could not marshal metadata: %v", err)
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		log.Warnf("CHROMA: could not unmarshal metadata: %v", err)
		return map[string]any{}
	}
	return out
}

var errVectorsRequired = errors.New("chroma: vectors must be supplied with every request")

// suppliedVectors stands in for Chroma's embedding function. The client only
// calls it when a request carries text without vectors, which never happens
// here; without it the client would fall back to a downloaded local model.
type suppliedVectors struct{}

func (suppliedVectors) EmbedDocuments(context.Context, []string) ([]embeddings.Embedding, error) {
	return nil, errVectorsRequired
}

func (suppliedVectors) EmbedQuery(context.Context, string) (embeddings.Embedding, error) {
	return nil, errVectorsRequired
}
