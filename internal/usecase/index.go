package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"time"

	"findit/internal/adapter/media"
	"findit/internal/domain"
	"findit/internal/observability"
	"findit/internal/port"
)

// DefaultBatchSize is the number of embeddings sent per upsert.
const DefaultBatchSize = 32

// IndexUseCase builds the image index from manifest rows.
type IndexUseCase struct {
	store      port.VectorStore
	collection string
	embedder   port.Embedder

	batchSize  int
	loadImage  func(path string) (image.Image, error)
	onComplete func()
	logger     *slog.Logger
}

// IndexOptions tunes an IndexUseCase. Zero values select defaults.
type IndexOptions struct {
	BatchSize int
	LoadImage func(path string) (image.Image, error)
	// OnComplete runs after a successful build, e.g. to drop cached query
	// embeddings.
	OnComplete func()
	Logger     *slog.Logger
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(store port.VectorStore, collection string, embedder port.Embedder, opts IndexOptions) *IndexUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.LoadImage == nil {
		opts.LoadImage = media.LoadImage
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &IndexUseCase{
		store:      store,
		collection: collection,
		embedder:   embedder,
		batchSize:  opts.BatchSize,
		loadImage:  opts.LoadImage,
		onComplete: opts.OnComplete,
		logger:     opts.Logger,
	}
}

// BuildOptions controls a single build.
type BuildOptions struct {
	// Rebuild clears the collection once every row has been embedded.
	Rebuild bool
	// SkipUnreadable records undecodable images in the result instead of
	// aborting the build.
	SkipUnreadable bool
	// Progress is called after each row with the number of rows processed.
	Progress func(done, total int, path string)
}

// SkippedRow is a manifest row left out of the index.
type SkippedRow struct {
	Row      int    `json:"row"`
	Filepath string `json:"filepath"`
	Reason   string `json:"reason"`
}

// BuildResult contains the results of an index build.
type BuildResult struct {
	Indexed  int           `json:"indexed"`
	Skipped  []SkippedRow  `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Build embeds every manifest row and upserts it under the row index as id.
// Nothing is written until every row has been embedded, so a row that aborts
// the build leaves the existing index untouched, even on rebuild.
func (u *IndexUseCase) Build(ctx context.Context, rows []domain.ManifestRow, opts BuildOptions) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{}

	coll, err := u.openCollection(ctx)
	if err != nil {
		return nil, err
	}

	var (
		ids   []string
		vecs  [][]float32
		metas []map[string]string
	)
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vec, err := u.embedRow(ctx, row)
		if err != nil {
			if opts.SkipUnreadable && errors.Is(err, domain.ErrDecode) {
				result.Skipped = append(result.Skipped, SkippedRow{Row: i, Filepath: row.Filepath, Reason: err.Error()})
				observability.ImagesSkippedTotal.Inc()
				u.logger.Warn("skipping unreadable image", "row", i, "path", row.Filepath, "error", err)
				if opts.Progress != nil {
					opts.Progress(i+1, len(rows), row.Filepath)
				}
				continue
			}
			return nil, fmt.Errorf("index: row %d: %w", i, err)
		}

		img := domain.IndexedImage{
			ID:           strconv.Itoa(i),
			Filepath:     row.Filepath,
			CaptionLabel: row.Filename,
			Embedding:    vec,
		}
		ids = append(ids, img.ID)
		vecs = append(vecs, img.Embedding)
		metas = append(metas, img.Metadata())

		if opts.Progress != nil {
			opts.Progress(i+1, len(rows), row.Filepath)
		}
	}

	if opts.Rebuild {
		if err := coll.Clear(ctx); err != nil {
			return nil, fmt.Errorf("index: clear %s: %w", u.collection, err)
		}
		u.logger.Info("collection cleared for rebuild", "collection", u.collection)
	}

	for lo := 0; lo < len(ids); lo += u.batchSize {
		hi := min(lo+u.batchSize, len(ids))
		if err := coll.Upsert(ctx, ids[lo:hi], vecs[lo:hi], metas[lo:hi]); err != nil {
			return nil, fmt.Errorf("index: upsert batch ending at row %s: %w", ids[hi-1], err)
		}
		result.Indexed += hi - lo
		observability.ImagesIndexedTotal.Add(float64(hi - lo))
	}

	if u.onComplete != nil {
		u.onComplete()
	}

	result.Duration = time.Since(start)
	u.logger.Info("index built",
		"collection", u.collection,
		"indexed", result.Indexed,
		"skipped", len(result.Skipped),
		"duration", result.Duration)
	return result, nil
}

func (u *IndexUseCase) embedRow(ctx context.Context, row domain.ManifestRow) ([]float32, error) {
	img, err := u.loadImage(row.Filepath)
	if err != nil {
		return nil, err
	}
	vec, err := u.embedder.EmbedImage(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", row.Filepath, err)
	}
	return vec, nil
}

// openCollection gets or creates the collection and checks that it can
// hold the embedder's vectors.
func (u *IndexUseCase) openCollection(ctx context.Context) (port.Collection, error) {
	coll, err := u.store.GetOrCreateCollection(ctx, u.collection, port.CollectionConfig{
		Dimension: u.embedder.Dimension(),
		Distance:  domain.DistanceCosine,
		Metadata:  map[string]string{"embedding_model": u.embedder.ModelName()},
	})
	if err != nil {
		return nil, fmt.Errorf("index: open collection %s: %w", u.collection, err)
	}

	info, err := coll.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	if info.Dimension != u.embedder.Dimension() {
		return nil, fmt.Errorf("index: collection %s has dimension %d, embedder %s produces %d: %w",
			u.collection, info.Dimension, u.embedder.ModelName(), u.embedder.Dimension(), domain.ErrDimensionMismatch)
	}
	return coll, nil
}
