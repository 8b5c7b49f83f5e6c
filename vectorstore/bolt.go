package vectorstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/medtour/chatbot-service/models"
)

// Vector sizes live in bucketMeta keyed by collection name; each collection's
// points live in a bucket of the same name nested under bucketPoints.
var (
	bucketMeta   = []byte("collections")
	bucketPoints = []byte("points")
)

// Bolt persists the collection in a local bbolt file and searches it by
// brute force. Suitable for small document sets without a Qdrant server.
type Bolt struct {
	db         *bbolt.DB
	collection []byte
}

type boltRecord struct {
	Vector  []float32      `json:"vector"`
	Payload models.Payload `json:"payload"`
}

func NewBolt(path, collection string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, models.NewError(models.KindIndex, "open bolt store", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketPoints} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, models.NewError(models.KindIndex, "open bolt store", err)
	}
	return &Bolt{db: db, collection: []byte(collection)}, nil
}

func (b *Bolt) CreateCollection(_ context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return models.NewError(models.KindIndex, "create collection", fmt.Errorf("invalid vector size %d", vectorSize))
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta.Get(b.collection) != nil {
			return nil
		}
		if _, err := tx.Bucket(bucketPoints).CreateBucketIfNotExists(b.collection); err != nil {
			return err
		}
		return meta.Put(b.collection, []byte(strconv.Itoa(vectorSize)))
	})
	if err != nil {
		return models.NewError(models.KindIndex, "create collection", err)
	}
	return nil
}

func (b *Bolt) Upsert(_ context.Context, points []models.Point) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		size, err := b.vectorSize(tx)
		if err != nil {
			return err
		}
		bucket := b.points(tx)
		for _, p := range points {
			if len(p.Vector) != size {
				return fmt.Errorf("point %d has %d dimensions, collection expects %d", p.ID, len(p.Vector), size)
			}
			data, err := json.Marshal(boltRecord{Vector: p.Vector, Payload: p.Payload})
			if err != nil {
				return err
			}
			if err := bucket.Put(idKey(p.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.NewError(models.KindIndex, "upsert", err)
	}
	return nil
}

func (b *Bolt) Search(_ context.Context, vector []float32, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		return []models.SearchResult{}, nil
	}
	var scored []scoredPoint
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := b.points(tx)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode point %x: %w", k, err)
			}
			scored = append(scored, scoredPoint{
				id:      binary.BigEndian.Uint64(k),
				payload: rec.Payload,
				score:   cosine(vector, rec.Vector),
			})
			return nil
		})
	})
	if err != nil {
		return nil, models.NewError(models.KindIndex, "search", err)
	}
	return topK(scored, limit), nil
}

func (b *Bolt) CollectionInfo(_ context.Context) (models.CollectionInfo, error) {
	info := models.CollectionInfo{Name: string(b.collection), Status: "green", Distance: "Cosine"}
	err := b.db.View(func(tx *bbolt.Tx) error {
		size, err := b.vectorSize(tx)
		if err != nil {
			return err
		}
		info.VectorSize = size
		info.PointCount = b.points(tx).Stats().KeyN
		return nil
	})
	if err != nil {
		return models.CollectionInfo{}, models.NewError(models.KindIndex, "collection info", err)
	}
	return info, nil
}

func (b *Bolt) HealthCheck(context.Context) bool {
	return b.db.View(func(tx *bbolt.Tx) error { return nil }) == nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) vectorSize(tx *bbolt.Tx) (int, error) {
	raw := tx.Bucket(bucketMeta).Get(b.collection)
	if raw == nil || b.points(tx) == nil {
		return 0, fmt.Errorf("collection %q does not exist", b.collection)
	}
	return strconv.Atoi(string(raw))
}

func (b *Bolt) points(tx *bbolt.Tx) *bbolt.Bucket {
	return tx.Bucket(bucketPoints).Bucket(b.collection)
}

func idKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}
