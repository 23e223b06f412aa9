package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"findit/config"
	"findit/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 2

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")

	// v1 kept a single flat bucket of vectors with no collection metadata.
	bucketLegacyVectors = []byte("vectors")
)

// SchemaInfo stores schema version and configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSchema)
		if b == nil {
			return nil
		}

		if versionData := b.Get(keySchemaVersion); versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				info.Version = 1
			}
		}

		if hashData := b.Get(keyConfigHash); hashData != nil {
			info.ConfigHash = string(hashData)
		}

		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSchema)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}

		return b.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// ComputeConfigHash computes a hash of the configuration that determines
// the vector space. Changes to this hash mean stored vectors are stale.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		EmbProvider  string `json:"emb_provider"`
		EmbModel     string `json:"emb_model"`
		EmbDimension int    `json:"emb_dimension"`
		MaxImageSide int    `json:"max_image_side"`
	}{
		EmbProvider:  cfg.Embedding.Provider,
		EmbModel:     cfg.Embedding.Model,
		EmbDimension: cfg.Embedding.Dimension,
		MaxImageSide: cfg.Index.MaxImageSide,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	NeedsRebuild   bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// CheckMigration checks if migration or rebuild is needed.
func (s *BoltStore) CheckMigration(cfg *config.Config) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	newHash := ComputeConfigHash(cfg)
	if info.ConfigHash != "" && info.ConfigHash != newHash {
		result.NeedsRebuild = true
		result.Reason = "embedding configuration changed"
	}

	return result, nil
}

// Migrate performs any necessary schema migrations and records the
// configuration hash.
func (s *BoltStore) Migrate(cfg *config.Config) error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return err
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1, cfg.Store.Collection); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}

	return s.SetSchemaInfo(&SchemaInfo{
		Version:    CurrentSchemaVersion,
		ConfigHash: ComputeConfigHash(cfg),
	})
}

// runMigration runs a specific version migration.
func (s *BoltStore) runMigration(from, to int, collection string) error {
	switch {
	case from == 1 && to == 2:
		return s.db.Update(func(tx *bbolt.Tx) error {
			return migrateLegacyVectors(tx, collection)
		})
	default:
		return nil
	}
}

// migrateLegacyVectors moves the flat v1 "vectors" bucket into a collection,
// inferring the dimension from the first stored vector. It refuses buckets
// holding entries without image metadata.
func migrateLegacyVectors(tx *bbolt.Tx, collection string) error {
	legacy := tx.Bucket(bucketLegacyVectors)
	if legacy == nil {
		return nil
	}

	root := tx.Bucket(bucketCollections)
	if root.Bucket([]byte(collection)) != nil {
		return fmt.Errorf("collection %s: %w", collection, domain.ErrAlreadyExists)
	}

	// Only image entries can move. Anything else, such as text chunk
	// vectors, belongs to another tool and needs a fresh index.
	dimension := 0
	err := legacy.ForEach(func(k, v []byte) error {
		var stored storedVector
		if err := json.Unmarshal(v, &stored); err != nil {
			return nil
		}
		if stored.Metadata[domain.MetaImage] == "" {
			return fmt.Errorf("legacy vector %s has no %q metadata, delete the index and rebuild: %w",
				k, domain.MetaImage, domain.ErrInvalidArgument)
		}
		if dimension == 0 {
			dimension = len(stored.Vector)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if dimension == 0 {
		return tx.DeleteBucket(bucketLegacyVectors)
	}

	b, err := root.CreateBucket([]byte(collection))
	if err != nil {
		return err
	}
	items, err := b.CreateBucket(bucketItems)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(collectionMeta{
		Dimension: dimension,
		Distance:  domain.DistanceCosine,
		CreatedAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	if err := b.Put(keyMeta, meta); err != nil {
		return err
	}

	err = legacy.ForEach(func(k, v []byte) error {
		return items.Put(k, v)
	})
	if err != nil {
		return err
	}
	return tx.DeleteBucket(bucketLegacyVectors)
}

// NeedsRebuild checks if the index needs a full rebuild due to config changes.
func (s *BoltStore) NeedsRebuild(cfg *config.Config) (bool, string, error) {
	result, err := s.CheckMigration(cfg)
	if err != nil {
		return false, "", err
	}
	return result.NeedsRebuild, result.Reason, nil
}
