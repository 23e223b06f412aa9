package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"findit/internal/adapter/memstore"
	"findit/internal/domain"
	"findit/internal/port"
)

type fixture struct {
	store       *memstore.MemoryStore
	embedder    *tableEmbedder
	captioner   *pathCaptioner
	transcriber *fakeTranscriber
	synthesizer *lengthSynthesizer
	pipeline    *Pipeline
}

func newFixture(t *testing.T, build bool) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:       memstore.NewMemoryStore(),
		embedder:    testEmbedder(),
		captioner:   &pathCaptioner{},
		transcriber: &fakeTranscriber{text: "tall trees"},
		synthesizer: &lengthSynthesizer{},
	}
	if build {
		uc := NewIndexUseCase(f.store, "images", f.embedder, IndexOptions{LoadImage: allImages.load, Logger: discardLogger()})
		if _, err := uc.Build(ctx, testRows(), BuildOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	p, err := NewPipeline(ctx, f.store, "images", f.embedder, f.captioner, f.transcriber, f.synthesizer, PipelineOptions{
		VoicePreset: "v2/en_speaker_6",
		LoadImage:   allImages.load,
		Logger:      discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	f.pipeline = p
	return f
}

func TestRunTypedQuery(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.pipeline.Run(context.Background(), Input{Text: "  sand and sea "})
	if err != nil {
		t.Fatal(err)
	}
	if res.Query != (domain.Query{Text: "sand and sea", Origin: domain.OriginTyped}) {
		t.Errorf("query = %+v", res.Query)
	}
	if len(res.Images) != DefaultTopK {
		t.Fatalf("expected %d images, got %d", DefaultTopK, len(res.Images))
	}

	// The query vector equals the beach image's vector.
	first := res.Images[0]
	if first.Filepath != "/img/beach.png" || first.Distance > 1e-6 || first.CaptionLabel != "beach.png" {
		t.Errorf("first = %+v", first)
	}
	for i := 1; i < len(res.Images); i++ {
		if res.Images[i].Distance < res.Images[i-1].Distance {
			t.Errorf("images not in ascending distance: %+v", res.Images)
		}
	}
	for i, img := range res.Images {
		if img.Caption != "caption of "+img.Filepath {
			t.Errorf("image %d caption = %q", i, img.Caption)
		}
		if f.captioner.calls[i] != img.Filepath {
			t.Errorf("captions not produced in rank order: %v", f.captioner.calls)
		}
	}
	if res.Audio != nil {
		t.Error("expected no audio without narration")
	}
}

func TestRunTopKLargerThanIndex(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.pipeline.Run(context.Background(), Input{Text: "tall trees", TopK: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Images) != 3 || res.Images[0].Filepath != "/img/forest.png" {
		t.Errorf("images = %+v", res.Images)
	}
}

func TestRunNarrationPairsWithCaptions(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.pipeline.Run(context.Background(), Input{Text: "sand and sea", Narrate: true, TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Audio) != len(res.Images) {
		t.Fatalf("audio %d != images %d", len(res.Audio), len(res.Images))
	}
	for i := range res.Images {
		if len(res.Audio[i].Samples) != len(res.Images[i].Caption) {
			t.Errorf("narration %d does not belong to caption %q", i, res.Images[i].Caption)
		}
	}
	for _, v := range f.synthesizer.voices {
		if v != "v2/en_speaker_6" {
			t.Errorf("voice = %q", v)
		}
	}
}

func TestRunVoiceQuery(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.pipeline.Run(context.Background(), Input{Audio: []byte("RIFF"), AudioFormat: port.AudioWAV})
	if err != nil {
		t.Fatal(err)
	}
	if res.Query.Origin != domain.OriginTranscribed || res.Query.Text != "tall trees" {
		t.Errorf("query = %+v", res.Query)
	}
	if res.Images[0].Filepath != "/img/forest.png" {
		t.Errorf("first = %+v", res.Images[0])
	}
}

func TestRunBadAudioAbortsTurn(t *testing.T) {
	f := newFixture(t, true)
	f.transcriber.err = domain.ErrUnsupportedFormat

	res, err := f.pipeline.Run(context.Background(), Input{Audio: []byte("not audio"), AudioFormat: port.AudioWAV})
	if res != nil {
		t.Error("expected no partial result")
	}
	if !errors.Is(err, domain.ErrUnsupportedFormat) || !strings.HasPrefix(err.Error(), "pipeline: transcribe:") {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.embedder.textCalls != 0 {
		t.Error("expected no embedding after failed transcription")
	}
}

func TestRunBlankTranscript(t *testing.T) {
	f := newFixture(t, true)
	f.transcriber.text = "   "
	if _, err := f.pipeline.Run(context.Background(), Input{Audio: []byte("x"), AudioFormat: port.AudioWAV}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRunInvalidInput(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	for name, in := range map[string]Input{
		"neither": {Text: "  "},
		"both":    {Text: "x", Audio: []byte("y")},
	} {
		if _, err := f.pipeline.Run(ctx, in); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestRunBeforeIndexBuilt(t *testing.T) {
	ctx := context.Background()

	// No collection at all.
	f := newFixture(t, false)
	if _, err := f.pipeline.Run(ctx, Input{Text: "sand and sea"}); !errors.Is(err, domain.ErrIndexNotBuilt) {
		t.Fatalf("missing collection: expected ErrIndexNotBuilt, got %v", err)
	}

	// Collection exists but is empty.
	f.store.CreateCollection(ctx, "images", port.CollectionConfig{Dimension: 3})
	_, err := f.pipeline.Run(ctx, Input{Text: "sand and sea"})
	if !errors.Is(err, domain.ErrIndexNotBuilt) || !errors.Is(err, domain.ErrEmptyCollection) {
		t.Fatalf("empty collection: expected ErrIndexNotBuilt wrapping ErrEmptyCollection, got %v", err)
	}
}

func TestRunCaptionFailureAbortsTurn(t *testing.T) {
	f := newFixture(t, true)
	f.captioner.fail = "/img/forest.png"

	res, err := f.pipeline.Run(context.Background(), Input{Text: "sand and sea", Narrate: true})
	if res != nil || err == nil || !strings.HasPrefix(err.Error(), "pipeline: caption:") {
		t.Fatalf("expected caption stage error, got %v", err)
	}
	if len(f.synthesizer.voices) != 0 {
		t.Error("expected no narration after caption failure")
	}
}

func TestNewPipelineDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	st := memstore.NewMemoryStore()
	st.CreateCollection(ctx, "images", port.CollectionConfig{Dimension: 8})

	_, err := NewPipeline(ctx, st, "images", testEmbedder(), &pathCaptioner{}, nil, nil, PipelineOptions{})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}
