package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"findit/config"
	"findit/internal/adapter/cache"
	"findit/internal/adapter/caption"
	"findit/internal/adapter/embedding"
	"findit/internal/adapter/memstore"
	"findit/internal/adapter/modelhttp"
	"findit/internal/adapter/qdrant"
	"findit/internal/adapter/speech"
	"findit/internal/adapter/store"
	"findit/internal/port"
	"findit/internal/usecase"
)

// mockTranscript is what the mock transcriber hears in every recording.
const mockTranscript = "a photo"

// services holds the long-lived components shared by every command.
type services struct {
	cfg         *config.Config
	store       port.VectorStore
	bolt        *store.BoltStore // nil unless the bolt backend is selected
	embedder    port.Embedder
	cached      *cache.CachedEmbedder
	captioner   port.Captioner
	transcriber port.Transcriber
	synthesizer port.Synthesizer
	logger      *slog.Logger

	// rebuildReason is set when the stored index no longer matches the
	// configuration and must be rebuilt before it can be trusted.
	rebuildReason string
}

func buildServices(cfg *config.Config, dir string) (*services, error) {
	s := &services{cfg: cfg, logger: slog.Default()}

	if err := s.openStore(dir); err != nil {
		return nil, err
	}

	client := modelhttp.NewClient(cfg.HTTP)
	if err := s.buildModels(client); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// storeOnly opens the configured store without any model clients, for
// commands that manage collections directly.
func storeOnly(cfg *config.Config, dir string) (*services, error) {
	s := &services{cfg: cfg, logger: slog.Default()}
	if err := s.openStore(dir); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *services) openStore(dir string) error {
	cfg := s.cfg
	switch cfg.Store.Backend {
	case "bolt":
		if err := config.EnsureDataDir(dir, cfg); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		st, err := store.NewBoltStore(config.IndexDBPath(dir, cfg))
		if err != nil {
			return fmt.Errorf("failed to open index store: %w", err)
		}
		mr, err := st.CheckMigration(cfg)
		if err != nil {
			st.Close()
			return fmt.Errorf("failed to check migration: %w", err)
		}
		switch {
		case mr.NeedsRebuild:
			s.rebuildReason = mr.Reason
		case mr.NeedsMigration:
			s.logger.Info("running schema migration", "reason", mr.Reason)
			if err := st.Migrate(cfg); err != nil {
				st.Close()
				return fmt.Errorf("migration failed: %w", err)
			}
		}
		s.store, s.bolt = st, st
	case "memory":
		s.store = memstore.NewMemoryStore()
	case "qdrant":
		st, err := qdrant.New(cfg.Store.QdrantAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		s.store = st
	default:
		return fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
	return nil
}

func (s *services) buildModels(client *http.Client) error {
	cfg := s.cfg

	var embedder port.Embedder
	switch cfg.Embedding.Provider {
	case "jina":
		key, err := modelhttp.APIKey(cfg.Embedding.APIKeyEnv)
		if err != nil {
			return err
		}
		embedder, err = embedding.NewJinaEmbedder(client, embedding.JinaOptions{
			APIKey:       key,
			Model:        cfg.Embedding.Model,
			BaseURL:      cfg.Embedding.BaseURL,
			Dimension:    cfg.Embedding.Dimension,
			MaxImageSide: cfg.Index.MaxImageSide,
		})
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimension)
	default:
		return fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
	if cfg.Retrieve.CacheSize > 0 {
		s.cached = cache.NewCachedEmbedder(embedder, cache.NewEmbeddingCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL()))
		embedder = s.cached
	}
	s.embedder = embedder

	switch cfg.Caption.Provider {
	case "ollama":
		s.captioner = caption.NewOllamaCaptioner(client, cfg.Caption.BaseURL, cfg.Caption.Model, cfg.Caption.Prompt, cfg.Index.MaxImageSide)
	case "mock":
		s.captioner = caption.NewMockCaptioner()
	default:
		return fmt.Errorf("unsupported caption provider: %s", cfg.Caption.Provider)
	}

	switch cfg.Speech.Provider {
	case "openai":
		key, err := modelhttp.APIKey(cfg.Speech.APIKeyEnv)
		if err != nil {
			// Local speech servers usually run without a key.
			s.logger.Debug("speech API key not set", "env", cfg.Speech.APIKeyEnv)
		}
		s.transcriber = speech.NewWhisperTranscriber(client, cfg.Speech.BaseURL, key, cfg.Speech.STTModel, cfg.Speech.Language)
		s.synthesizer = speech.NewTTSSynthesizer(client, cfg.Speech.BaseURL, key, cfg.Speech.TTSModel)
	case "mock":
		s.transcriber = speech.NewMockTranscriber(mockTranscript)
		s.synthesizer = speech.NewMockSynthesizer()
	default:
		return fmt.Errorf("unsupported speech provider: %s", cfg.Speech.Provider)
	}
	return nil
}

// pipeline builds the per-turn retrieval pipeline.
func (s *services) pipeline(ctx context.Context) (*usecase.Pipeline, error) {
	if s.rebuildReason != "" {
		s.logger.Warn("index is stale, run 'findit index --rebuild'", "reason", s.rebuildReason)
	}
	return usecase.NewPipeline(ctx, s.store, s.cfg.Store.Collection, s.embedder, s.captioner, s.transcriber, s.synthesizer, usecase.PipelineOptions{
		DefaultTopK: s.cfg.Retrieve.TopK,
		VoicePreset: s.cfg.Speech.VoicePreset,
		Logger:      s.logger,
	})
}

func (s *services) indexer() *usecase.IndexUseCase {
	opts := usecase.IndexOptions{
		BatchSize: s.cfg.Index.BatchSize,
		Logger:    s.logger,
	}
	if s.cached != nil {
		opts.OnComplete = s.cached.Invalidate
	}
	return usecase.NewIndexUseCase(s.store, s.cfg.Store.Collection, s.embedder, opts)
}

// recordBuild stores the configuration hash after a successful build so the
// next run can tell whether the index is still valid.
func (s *services) recordBuild() error {
	if s.bolt == nil {
		return nil
	}
	if err := s.bolt.Migrate(s.cfg); err != nil {
		return fmt.Errorf("failed to update schema info: %w", err)
	}
	s.rebuildReason = ""
	return nil
}

func (s *services) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
