package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"findit/internal/adapter/media"
	"findit/internal/domain"
	"findit/internal/observability"
	"findit/internal/port"
)

// DefaultTopK is the number of images a turn returns when none is requested.
const DefaultTopK = 3

// Pipeline stage names, used in error prefixes, spans and metrics.
const (
	StageTranscribe = "transcribe"
	StageEmbed      = "embed"
	StageSearch     = "search"
	StageCaption    = "caption"
	StageNarrate    = "narrate"
)

// Input is one query turn. Exactly one of Text and Audio must be set.
type Input struct {
	Text        string
	Audio       []byte
	AudioFormat port.AudioFormat
	Narrate     bool
	TopK        int    // 0 uses the pipeline default
	VoicePreset string // "" uses the pipeline default
}

// PipelineOptions tunes a Pipeline. Zero values select defaults.
type PipelineOptions struct {
	DefaultTopK int
	VoicePreset string
	LoadImage   func(path string) (image.Image, error)
	Logger      *slog.Logger
}

// Pipeline turns a typed or spoken query into ranked, captioned and
// optionally narrated images. Each turn runs its stages sequentially and
// any failure aborts the turn without a partial result.
type Pipeline struct {
	store       port.VectorStore
	collection  string
	embedder    port.Embedder
	captioner   port.Captioner
	transcriber port.Transcriber
	synthesizer port.Synthesizer

	defaultTopK int
	voicePreset string
	loadImage   func(path string) (image.Image, error)
	logger      *slog.Logger
}

// NewPipeline wires the services of a turn. If the collection already
// exists its dimension must match the embedder's. Transcriber and
// synthesizer may be nil, in which case audio input and narration fail.
func NewPipeline(
	ctx context.Context,
	store port.VectorStore,
	collection string,
	embedder port.Embedder,
	captioner port.Captioner,
	transcriber port.Transcriber,
	synthesizer port.Synthesizer,
	opts PipelineOptions,
) (*Pipeline, error) {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}
	if opts.LoadImage == nil {
		opts.LoadImage = media.LoadImage
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Pipeline{
		store:       store,
		collection:  collection,
		embedder:    embedder,
		captioner:   captioner,
		transcriber: transcriber,
		synthesizer: synthesizer,
		defaultTopK: opts.DefaultTopK,
		voicePreset: opts.VoicePreset,
		loadImage:   opts.LoadImage,
		logger:      opts.Logger,
	}

	if _, err := p.openCollection(ctx); err != nil && !errors.Is(err, domain.ErrIndexNotBuilt) {
		return nil, err
	}
	return p, nil
}

// openCollection resolves the collection on every turn so a rebuild made by
// another process is picked up without restarting.
func (p *Pipeline) openCollection(ctx context.Context) (port.Collection, error) {
	c, err := p.store.GetCollection(ctx, p.collection)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", domain.ErrIndexNotBuilt, err)
		}
		return nil, err
	}
	info, err := c.Info(ctx)
	if err != nil {
		return nil, err
	}
	if info.Dimension != p.embedder.Dimension() {
		return nil, fmt.Errorf("collection %s has dimension %d, embedder %s produces %d: %w",
			p.collection, info.Dimension, p.embedder.ModelName(), p.embedder.Dimension(), domain.ErrDimensionMismatch)
	}
	return c, nil
}

// Run executes one turn.
func (p *Pipeline) Run(ctx context.Context, in Input) (*domain.RetrievalResult, error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "pipeline.run")
	defer span.End()

	origin := domain.OriginTyped
	if len(in.Audio) > 0 {
		origin = domain.OriginTranscribed
	}

	result, err := p.run(ctx, in)

	outcome := observability.OutcomeOK
	if err != nil {
		outcome = observability.OutcomeError
		span.RecordError(err)
		p.logger.Warn("query turn failed", "origin", origin, "kind", domain.Kind(err), "error", err)
	} else {
		p.logger.Info("query turn",
			"origin", origin,
			"query", result.Query.Text,
			"images", len(result.Images),
			"narrated", result.Audio != nil,
			"duration", time.Since(start))
	}
	observability.TurnsTotal.WithLabelValues(string(origin), outcome).Inc()
	return result, err
}

func (p *Pipeline) run(ctx context.Context, in Input) (*domain.RetrievalResult, error) {
	query, err := p.resolveQuery(ctx, in)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("query resolved", "origin", query.Origin, "text", query.Text)

	k := in.TopK
	if k <= 0 {
		k = p.defaultTopK
	}

	vec, err := stage(ctx, StageEmbed, func(ctx context.Context) ([]float32, error) {
		return p.embedder.EmbedText(ctx, query.Text)
	})
	if err != nil {
		return nil, err
	}

	matches, err := stage(ctx, StageSearch, func(ctx context.Context) ([]domain.Match, error) {
		c, err := p.openCollection(ctx)
		if err != nil {
			return nil, err
		}
		matches, err := c.Query(ctx, vec, k)
		if errors.Is(err, domain.ErrEmptyCollection) {
			return nil, fmt.Errorf("%w: %w", domain.ErrIndexNotBuilt, err)
		}
		return matches, err
	}, attribute.Int("k", k))
	if err != nil {
		return nil, err
	}

	images, err := stage(ctx, StageCaption, func(ctx context.Context) ([]domain.RankedImage, error) {
		return p.caption(ctx, matches)
	}, attribute.Int("images", len(matches)))
	if err != nil {
		return nil, err
	}

	result := &domain.RetrievalResult{Query: query, Images: images}

	if in.Narrate {
		voice := in.VoicePreset
		if voice == "" {
			voice = p.voicePreset
		}
		audio, err := stage(ctx, StageNarrate, func(ctx context.Context) ([]domain.Narration, error) {
			return p.narrate(ctx, images, voice)
		}, attribute.String("voice", voice))
		if err != nil {
			return nil, err
		}
		result.Audio = audio
	}

	return result, nil
}

// StageError records which pipeline stage produced an error.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return "pipeline: " + e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage that produced err, or "" if it did not come
// from a pipeline stage.
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// stage runs fn inside a traced, timed stage and tags its error with the
// stage name.
func stage[T any](ctx context.Context, name string, fn func(context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	ctx, st := observability.StartStage(ctx, name, attrs...)
	out, err := fn(ctx)
	st.End(err)
	if err != nil {
		var zero T
		return zero, &StageError{Stage: name, Err: err}
	}
	return out, nil
}

func (p *Pipeline) resolveQuery(ctx context.Context, in Input) (domain.Query, error) {
	hasText := strings.TrimSpace(in.Text) != ""
	hasAudio := len(in.Audio) > 0

	switch {
	case hasText && hasAudio:
		return domain.Query{}, fmt.Errorf("pipeline: query has both text and audio: %w", domain.ErrInvalidArgument)
	case !hasText && !hasAudio:
		return domain.Query{}, fmt.Errorf("pipeline: empty query: %w", domain.ErrInvalidArgument)
	case hasText:
		return domain.Query{Text: strings.TrimSpace(in.Text), Origin: domain.OriginTyped}, nil
	}

	text, err := stage(ctx, StageTranscribe, func(ctx context.Context) (string, error) {
		if p.transcriber == nil {
			return "", fmt.Errorf("speech-to-text is not configured: %w", domain.ErrInvalidArgument)
		}
		text, err := p.transcriber.Transcribe(ctx, in.Audio, in.AudioFormat)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("empty transcript: %w", domain.ErrInvalidArgument)
		}
		return strings.TrimSpace(text), nil
	})
	if err != nil {
		return domain.Query{}, err
	}
	return domain.Query{Text: text, Origin: domain.OriginTranscribed}, nil
}

func (p *Pipeline) caption(ctx context.Context, matches []domain.Match) ([]domain.RankedImage, error) {
	images := make([]domain.RankedImage, 0, len(matches))
	for _, m := range matches {
		path := m.Metadata[domain.MetaImage]
		if path == "" {
			return nil, fmt.Errorf("item %s has no %q metadata: %w", m.ID, domain.MetaImage, domain.ErrNotFound)
		}

		img, err := p.loadImage(path)
		if err != nil {
			return nil, err
		}
		caption, err := p.captioner.Caption(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		images = append(images, domain.RankedImage{
			ID:           m.ID,
			Filepath:     path,
			Caption:      caption,
			CaptionLabel: m.Metadata[domain.MetaCaptionLabel],
			Distance:     m.Distance,
		})
	}
	return images, nil
}

func (p *Pipeline) narrate(ctx context.Context, images []domain.RankedImage, voice string) ([]domain.Narration, error) {
	if p.synthesizer == nil {
		return nil, fmt.Errorf("text-to-speech is not configured: %w", domain.ErrInvalidArgument)
	}
	audio := make([]domain.Narration, 0, len(images))
	for _, img := range images {
		n, err := p.synthesizer.Synthesize(ctx, img.Caption, voice)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", img.ID, err)
		}
		audio = append(audio, n)
	}
	return audio, nil
}
