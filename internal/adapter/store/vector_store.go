package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"findit/internal/domain"
)

// BoltCollection is a single collection backed by BoltDB.
// Uses brute-force search over an in-memory copy of the vectors.
type BoltCollection struct {
	db   *bbolt.DB
	name string
	meta collectionMeta

	mu      sync.RWMutex
	vectors map[string]Entry
}

// Entry is a stored vector and its metadata.
type Entry struct {
	Vector   []float32
	Metadata map[string]string
}

type storedVector struct {
	Vector   []float32         `json:"v"`
	Metadata map[string]string `json:"m,omitempty"`
}

func newBoltCollection(db *bbolt.DB, name string, meta collectionMeta) *BoltCollection {
	return &BoltCollection{
		db:      db,
		name:    name,
		meta:    meta,
		vectors: make(map[string]Entry),
	}
}

func (c *BoltCollection) Name() string {
	return c.name
}

// loadVectors loads all vectors from BoltDB into memory.
func (c *BoltCollection) loadVectors() error {
	return c.db.View(func(tx *bbolt.Tx) error {
		b := collectionBucket(tx, c.name)
		if b == nil {
			return nil
		}
		items := b.Bucket(bucketItems)
		if items == nil {
			return nil
		}

		return items.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // Skip corrupted entries
			}
			c.vectors[string(k)] = Entry{
				Vector:   stored.Vector,
				Metadata: stored.Metadata,
			}
			return nil
		})
	})
}

// Upsert writes every item in one transaction. The in-memory copy is only
// updated after the transaction commits, so a failed call changes nothing.
func (c *BoltCollection) Upsert(ctx context.Context, ids []string, embeddings [][]float32, metadatas []map[string]string) error {
	if err := ValidateUpsert(c.meta.Dimension, ids, embeddings, metadatas); err != nil {
		return fmt.Errorf("collection %s: %w", c.name, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	staged := make(map[string]Entry, len(ids))
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := collectionBucket(tx, c.name)
		if b == nil {
			return fmt.Errorf("collection %s: %w", c.name, domain.ErrNotFound)
		}
		items := b.Bucket(bucketItems)

		for i, id := range ids {
			vec := make([]float32, len(embeddings[i]))
			copy(vec, embeddings[i])
			entry := Entry{Vector: vec, Metadata: copyMetadata(metadatas[i])}
			data, err := json.Marshal(storedVector{Vector: entry.Vector, Metadata: entry.Metadata})
			if err != nil {
				return err
			}
			if err := items.Put([]byte(id), data); err != nil {
				return err
			}
			staged[id] = entry
		}
		return nil
	})
	if err != nil {
		return err
	}

	for id, entry := range staged {
		c.vectors[id] = entry
	}
	return nil
}

// Query returns the k nearest vectors by cosine distance.
func (c *BoltCollection) Query(ctx context.Context, embedding []float32, k int) ([]domain.Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := ValidateQuery(c.meta.Dimension, embedding, k); err != nil {
		return nil, fmt.Errorf("collection %s: %w", c.name, err)
	}
	if len(c.vectors) == 0 {
		return nil, fmt.Errorf("collection %s: %w", c.name, domain.ErrEmptyCollection)
	}

	return Rank(embedding, c.vectors, k), nil
}

// Delete removes vectors by their IDs.
func (c *BoltCollection) Delete(ctx context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := collectionBucket(tx, c.name)
		if b == nil {
			return fmt.Errorf("collection %s: %w", c.name, domain.ErrNotFound)
		}
		items := b.Bucket(bucketItems)
		for _, id := range ids {
			if err := items.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		delete(c.vectors, id)
	}
	return nil
}

// Clear drops every item and recreates the empty items bucket.
func (c *BoltCollection) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := collectionBucket(tx, c.name)
		if b == nil {
			return fmt.Errorf("collection %s: %w", c.name, domain.ErrNotFound)
		}
		if b.Bucket(bucketItems) != nil {
			if err := b.DeleteBucket(bucketItems); err != nil {
				return err
			}
		}
		_, err := b.CreateBucket(bucketItems)
		return err
	})
	if err != nil {
		return err
	}

	c.vectors = make(map[string]Entry)
	return nil
}

// Count returns the number of vectors in the collection.
func (c *BoltCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors), nil
}

func (c *BoltCollection) Info(ctx context.Context) (domain.CollectionInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.CollectionInfo{
		Name:      c.name,
		Dimension: c.meta.Dimension,
		Distance:  c.meta.Distance,
		Count:     len(c.vectors),
		Metadata:  c.meta.Metadata,
	}, nil
}

// ValidateUpsert checks the argument shape shared by every backend.
func ValidateUpsert(dimension int, ids []string, embeddings [][]float32, metadatas []map[string]string) error {
	if len(ids) != len(embeddings) || len(ids) != len(metadatas) {
		return fmt.Errorf("upsert length mismatch: %d ids, %d embeddings, %d metadatas: %w",
			len(ids), len(embeddings), len(metadatas), domain.ErrInvalidArgument)
	}
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if id == "" {
			return fmt.Errorf("upsert item %d has empty id: %w", i, domain.ErrInvalidArgument)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("upsert id %q repeated in one call: %w", id, domain.ErrInvalidArgument)
		}
		seen[id] = struct{}{}
		if len(embeddings[i]) != dimension {
			return fmt.Errorf("vector dimension mismatch for %q: expected %d, got %d: %w",
				id, dimension, len(embeddings[i]), domain.ErrDimensionMismatch)
		}
	}
	return nil
}

// ValidateQuery checks query arguments shared by every backend.
func ValidateQuery(dimension int, embedding []float32, k int) error {
	if k <= 0 {
		return fmt.Errorf("k must be positive, got %d: %w", k, domain.ErrInvalidArgument)
	}
	if len(embedding) != dimension {
		return fmt.Errorf("query dimension mismatch: expected %d, got %d: %w",
			dimension, len(embedding), domain.ErrDimensionMismatch)
	}
	return nil
}

// Rank scores every entry against query and returns the k closest,
// ascending by cosine distance with ties broken by id.
func Rank(query []float32, entries map[string]Entry, k int) []domain.Match {
	scores := make([]domain.Match, 0, len(entries))
	for id, entry := range entries {
		scores = append(scores, domain.Match{
			ID:       id,
			Metadata: copyMetadata(entry.Metadata),
			Distance: CosineDistance(query, entry.Vector),
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Distance != scores[j].Distance {
			return scores[i].Distance < scores[j].Distance
		}
		return scores[i].ID < scores[j].ID
	})

	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k]
}

// CosineDistance returns 1 - cosine similarity. Zero vectors are at distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1
	}

	d := 1 - dotProduct/(math.Sqrt(normA)*math.Sqrt(normB))
	if d < 0 {
		return 0 // rounding
	}
	return d
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
