package domain

import "time"

// Metadata keys stored alongside every indexed image.
const (
	MetaCaptionLabel = "caption_label"
	MetaImage        = "image"
	MetaRow          = "row"
)

// DistanceCosine is the only distance metric collections support.
const DistanceCosine = "cosine"

type IndexedImage struct {
	ID           string
	Filepath     string
	CaptionLabel string
	Embedding    []float32
}

// Metadata returns the metadata map persisted with the image's vector.
func (i IndexedImage) Metadata() map[string]string {
	return map[string]string{
		MetaCaptionLabel: i.CaptionLabel,
		MetaImage:        i.Filepath,
		MetaRow:          i.ID,
	}
}

type QueryOrigin string

const (
	OriginTyped       QueryOrigin = "typed"
	OriginTranscribed QueryOrigin = "transcribed"
)

type Query struct {
	Text   string      `json:"text"`
	Origin QueryOrigin `json:"origin"`
}

// Match is a single k-NN hit returned by a collection.
type Match struct {
	ID       string
	Metadata map[string]string
	Distance float64
}

type RankedImage struct {
	ID           string  `json:"id"`
	Filepath     string  `json:"filepath"`
	Caption      string  `json:"caption"`
	CaptionLabel string  `json:"caption_label,omitempty"`
	Distance     float64 `json:"distance"`
}

// Narration is mono PCM audio with samples in [-1, 1].
type Narration struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}

// Duration returns the playback length of the narration.
func (n Narration) Duration() time.Duration {
	if n.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(n.Samples)) * time.Second / time.Duration(n.SampleRate)
}

// RetrievalResult is produced once per query turn and never mutated afterwards.
// Audio is nil unless narration was requested; when present it pairs 1:1 with Images.
type RetrievalResult struct {
	Query  Query         `json:"query"`
	Images []RankedImage `json:"images"`
	Audio  []Narration   `json:"audio,omitempty"`
}

type ChatTurn struct {
	Query  Query
	Result *RetrievalResult
	Err    error
	At     time.Time
}

type ManifestRow struct {
	Filepath string
	Filename string
}

type CollectionInfo struct {
	Name      string            `json:"name"`
	Dimension int               `json:"dimension"`
	Distance  string            `json:"distance"`
	Count     int               `json:"count"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
