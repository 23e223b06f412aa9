package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"findit/internal/domain"
	"findit/internal/port"
)

var (
	bucketCollections = []byte("collections")
	bucketSchema      = []byte("schema")
	bucketItems       = []byte("items")
	keyMeta           = []byte("meta")
)

// BoltStore is a persistent port.VectorStore. Each collection is a nested
// bucket under "collections" holding a "meta" key and an "items" bucket.
type BoltStore struct {
	db *bbolt.DB

	mu   sync.Mutex
	open map[string]*BoltCollection
}

type collectionMeta struct {
	Dimension int               `json:"dimension"`
	Distance  string            `json:"distance"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketCollections, bucketSchema} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, open: make(map[string]*BoltCollection)}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func collectionBucket(tx *bbolt.Tx, name string) *bbolt.Bucket {
	root := tx.Bucket(bucketCollections)
	if root == nil {
		return nil
	}
	return root.Bucket([]byte(name))
}

func validateConfig(name string, cfg port.CollectionConfig) (port.CollectionConfig, error) {
	if name == "" {
		return cfg, fmt.Errorf("collection name must not be empty: %w", domain.ErrInvalidArgument)
	}
	if cfg.Dimension <= 0 {
		return cfg, fmt.Errorf("collection %s: dimension must be positive: %w", name, domain.ErrInvalidArgument)
	}
	if cfg.Distance == "" {
		cfg.Distance = domain.DistanceCosine
	}
	if cfg.Distance != domain.DistanceCosine {
		return cfg, fmt.Errorf("collection %s: unsupported distance %q: %w", name, cfg.Distance, domain.ErrInvalidArgument)
	}
	return cfg, nil
}

// CreateCollection creates a new, empty collection.
func (s *BoltStore) CreateCollection(ctx context.Context, name string, cfg port.CollectionConfig) (port.Collection, error) {
	cfg, err := validateConfig(name, cfg)
	if err != nil {
		return nil, err
	}

	meta := collectionMeta{
		Dimension: cfg.Dimension,
		Distance:  cfg.Distance,
		Metadata:  cfg.Metadata,
		CreatedAt: time.Now().Unix(),
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketCollections)
		if root.Bucket([]byte(name)) != nil {
			return fmt.Errorf("collection %s: %w", name, domain.ErrAlreadyExists)
		}
		b, err := root.CreateBucket([]byte(name))
		if err != nil {
			return fmt.Errorf("failed to create collection bucket: %w", err)
		}
		if _, err := b.CreateBucket(bucketItems); err != nil {
			return fmt.Errorf("failed to create items bucket: %w", err)
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return b.Put(keyMeta, data)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := newBoltCollection(s.db, name, meta)
	s.open[name] = c
	return c, nil
}

// GetCollection opens an existing collection and loads its vectors into memory.
func (s *BoltStore) GetCollection(ctx context.Context, name string) (port.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.open[name]; ok {
		return c, nil
	}

	var meta collectionMeta
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := collectionBucket(tx, name)
		if b == nil {
			return fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
		}
		data := b.Get(keyMeta)
		if data == nil {
			return fmt.Errorf("collection %s has no metadata", name)
		}
		return json.Unmarshal(data, &meta)
	})
	if err != nil {
		return nil, err
	}

	c := newBoltCollection(s.db, name, meta)
	if err := c.loadVectors(); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	s.open[name] = c
	return c, nil
}

func (s *BoltStore) GetOrCreateCollection(ctx context.Context, name string, cfg port.CollectionConfig) (port.Collection, error) {
	c, err := s.GetCollection(ctx, name)
	if err == nil {
		return c, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return s.CreateCollection(ctx, name, cfg)
}

func (s *BoltStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketCollections)
		if root.Bucket([]byte(name)) == nil {
			return fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
		}
		return root.DeleteBucket([]byte(name))
	})
	if err != nil {
		return err
	}
	delete(s.open, name)
	return nil
}

func (s *BoltStore) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	var infos []domain.CollectionInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketCollections)
		return root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil // not a nested bucket
			}
			b := root.Bucket(k)
			var meta collectionMeta
			if data := b.Get(keyMeta); data != nil {
				if err := json.Unmarshal(data, &meta); err != nil {
					return err
				}
			}
			count := 0
			if items := b.Bucket(bucketItems); items != nil {
				count = items.Stats().KeyN
			}
			infos = append(infos, domain.CollectionInfo{
				Name:      string(k),
				Dimension: meta.Dimension,
				Distance:  meta.Distance,
				Count:     count,
				Metadata:  meta.Metadata,
			})
			return nil
		})
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, err
}
