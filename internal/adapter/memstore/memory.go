package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"findit/internal/adapter/store"
	"findit/internal/domain"
	"findit/internal/port"
)

// MemoryStore is a non-persistent port.VectorStore.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*MemoryCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*MemoryCollection),
	}
}

func (s *MemoryStore) CreateCollection(ctx context.Context, name string, cfg port.CollectionConfig) (port.Collection, error) {
	if name == "" || cfg.Dimension <= 0 {
		return nil, fmt.Errorf("collection %q dimension %d: %w", name, cfg.Dimension, domain.ErrInvalidArgument)
	}
	if cfg.Distance == "" {
		cfg.Distance = domain.DistanceCosine
	}
	if cfg.Distance != domain.DistanceCosine {
		return nil, fmt.Errorf("collection %s: unsupported distance %q: %w", name, cfg.Distance, domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return nil, fmt.Errorf("collection %s: %w", name, domain.ErrAlreadyExists)
	}
	c := &MemoryCollection{
		name:    name,
		cfg:     cfg,
		entries: make(map[string]store.Entry),
	}
	s.collections[name] = c
	return c, nil
}

func (s *MemoryStore) GetCollection(ctx context.Context, name string) (port.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	return c, nil
}

func (s *MemoryStore) GetOrCreateCollection(ctx context.Context, name string, cfg port.CollectionConfig) (port.Collection, error) {
	if c, err := s.GetCollection(ctx, name); err == nil {
		return c, nil
	}
	return s.CreateCollection(ctx, name, cfg)
}

func (s *MemoryStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	delete(s.collections, name)
	return nil
}

func (s *MemoryStore) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]domain.CollectionInfo, 0, len(s.collections))
	for _, c := range s.collections {
		info, _ := c.Info(ctx)
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

type MemoryCollection struct {
	name string
	cfg  port.CollectionConfig

	mu      sync.RWMutex
	entries map[string]store.Entry
}

func (c *MemoryCollection) Name() string {
	return c.name
}

func (c *MemoryCollection) Upsert(ctx context.Context, ids []string, embeddings [][]float32, metadatas []map[string]string) error {
	if err := store.ValidateUpsert(c.cfg.Dimension, ids, embeddings, metadatas); err != nil {
		return fmt.Errorf("collection %s: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range ids {
		vec := make([]float32, len(embeddings[i]))
		copy(vec, embeddings[i])
		c.entries[id] = store.Entry{Vector: vec, Metadata: metadatas[i]}
	}
	return nil
}

func (c *MemoryCollection) Query(ctx context.Context, embedding []float32, k int) ([]domain.Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := store.ValidateQuery(c.cfg.Dimension, embedding, k); err != nil {
		return nil, fmt.Errorf("collection %s: %w", c.name, err)
	}
	if len(c.entries) == 0 {
		return nil, fmt.Errorf("collection %s: %w", c.name, domain.ErrEmptyCollection)
	}
	return store.Rank(embedding, c.entries, k), nil
}

func (c *MemoryCollection) Delete(ctx context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
	}
	return nil
}

func (c *MemoryCollection) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]store.Entry)
	return nil
}

func (c *MemoryCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

func (c *MemoryCollection) Info(ctx context.Context) (domain.CollectionInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.CollectionInfo{
		Name:      c.name,
		Dimension: c.cfg.Dimension,
		Distance:  c.cfg.Distance,
		Count:     len(c.entries),
		Metadata:  c.cfg.Metadata,
	}, nil
}
