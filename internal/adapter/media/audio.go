package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"findit/internal/domain"
)

// SpeechSampleRate is the rate speech recognisers expect.
const SpeechSampleRate = 16000

// IsRIFFWave reports whether data starts with a RIFF/WAVE header.
func IsRIFFWave(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV decodes PCM WAV bytes into mono float samples in [-1, 1].
// Multi-channel input is downmixed by averaging channels.
func DecodeWAV(data []byte) (domain.Narration, error) {
	if !IsRIFFWave(data) {
		return domain.Narration{}, fmt.Errorf("decode wav: missing RIFF/WAVE header: %w", domain.ErrUnsupportedFormat)
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return domain.Narration{}, fmt.Errorf("decode wav: invalid file: %w", domain.ErrDecode)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return domain.Narration{}, fmt.Errorf("decode wav: %w: %v", domain.ErrDecode, err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate <= 0 {
		return domain.Narration{}, fmt.Errorf("decode wav: bad format: %w", domain.ErrDecode)
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	return domain.Narration{
		Samples:    downmix(buf.Data, buf.Format.NumChannels, depth),
		SampleRate: buf.Format.SampleRate,
	}, nil
}

func downmix(data []int, channels, depth int) []float32 {
	frames := len(data) / channels
	out := make([]float32, frames)

	scale := float64(int(1) << (depth - 1))
	offset := 0.0
	if depth == 8 {
		offset = 128 // 8-bit PCM is unsigned
	}

	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += (float64(data[i*channels+c]) - offset) / scale
		}
		out[i] = clamp(float32(sum / float64(channels)))
	}
	return out
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// Resample converts n to the target rate with linear interpolation.
func Resample(n domain.Narration, rate int) domain.Narration {
	if rate <= 0 || n.SampleRate == rate || len(n.Samples) == 0 {
		return n
	}

	ratio := float64(n.SampleRate) / float64(rate)
	size := int(math.Round(float64(len(n.Samples)) / ratio))
	out := make([]float32, size)
	last := len(n.Samples) - 1

	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = n.Samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = n.Samples[j]*(1-frac) + n.Samples[j+1]*frac
	}
	return domain.Narration{Samples: out, SampleRate: rate}
}

// EncodeWAV encodes n as 16-bit mono PCM WAV.
func EncodeWAV(n domain.Narration) ([]byte, error) {
	ws := &writeSeeker{}
	if err := encodeWAV(ws, n); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// WriteWAV writes n to path as 16-bit mono PCM WAV.
func WriteWAV(path string, n domain.Narration) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := encodeWAV(f, n); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func encodeWAV(w io.WriteSeeker, n domain.Narration) error {
	if n.SampleRate <= 0 {
		return fmt.Errorf("encode wav: sample rate %d: %w", n.SampleRate, domain.ErrInvalidArgument)
	}

	data := make([]int, len(n.Samples))
	for i, s := range n.Samples {
		data[i] = int(math.Round(float64(clamp(s)) * math.MaxInt16))
	}

	enc := wav.NewEncoder(w, n.SampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: n.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}

// NormalizeSpeechWAV re-encodes any PCM WAV as 16 kHz 16-bit mono.
func NormalizeSpeechWAV(data []byte) ([]byte, error) {
	n, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	return EncodeWAV(Resample(n, SpeechSampleRate))
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back
// to patch chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("seek: negative position")
	}
	w.pos = int(abs)
	return abs, nil
}
