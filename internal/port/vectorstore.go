package port

import (
	"context"

	"findit/internal/domain"
)

// CollectionConfig is fixed when a collection is created.
type CollectionConfig struct {
	Dimension int
	Distance  string // only "cosine"
	Metadata  map[string]string
}

// VectorStore manages named collections of embeddings.
type VectorStore interface {
	// CreateCollection fails with domain.ErrAlreadyExists if name is taken.
	CreateCollection(ctx context.Context, name string, cfg CollectionConfig) (Collection, error)

	// GetCollection fails with domain.ErrNotFound if name is absent.
	GetCollection(ctx context.Context, name string) (Collection, error)

	// GetOrCreateCollection returns the existing collection or creates it.
	GetOrCreateCollection(ctx context.Context, name string, cfg CollectionConfig) (Collection, error)

	DeleteCollection(ctx context.Context, name string) error

	ListCollections(ctx context.Context) ([]domain.CollectionInfo, error)

	Close() error
}

// Collection stores one embedding + metadata per id.
type Collection interface {
	Name() string

	// Upsert adds or replaces items. The three slices must have equal length.
	// Either every item is applied or none is.
	Upsert(ctx context.Context, ids []string, embeddings [][]float32, metadatas []map[string]string) error

	// Query returns up to k nearest items ordered by ascending distance.
	// It fails with domain.ErrEmptyCollection when nothing is stored.
	Query(ctx context.Context, embedding []float32, k int) ([]domain.Match, error)

	Delete(ctx context.Context, ids []string) error

	// Clear removes every item but keeps the collection and its config.
	Clear(ctx context.Context) error

	Count(ctx context.Context) (int, error)

	Info(ctx context.Context) (domain.CollectionInfo, error)
}
