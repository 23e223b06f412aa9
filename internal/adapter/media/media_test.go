package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"findit/internal/domain"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "red.png")

	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(4, 2, color.RGBA{255, 0, 0, 255})); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	img, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestLoadImageErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadImage(filepath.Join(dir, "missing.png")); !errors.Is(err, domain.ErrDecode) {
		t.Errorf("missing file: expected ErrDecode, got %v", err)
	}

	bad := filepath.Join(dir, "bad.jpg")
	os.WriteFile(bad, []byte("not an image"), 0644)
	_, err := LoadImage(bad)
	if !errors.Is(err, domain.ErrDecode) {
		t.Errorf("corrupt file: expected ErrDecode, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), bad) {
		t.Errorf("expected error to name the path, got %v", err)
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		w, h, max int
		wantW     int
		wantH     int
	}{
		{1024, 512, 512, 512, 256},
		{300, 900, 300, 100, 300},
		{100, 50, 512, 100, 50},
		{100, 50, 0, 100, 50},
	}
	for _, tt := range tests {
		got := Fit(solid(tt.w, tt.h, color.White), tt.max).Bounds()
		if got.Dx() != tt.wantW || got.Dy() != tt.wantH {
			t.Errorf("Fit(%dx%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.max, got.Dx(), got.Dy(), tt.wantW, tt.wantH)
		}
	}
}

func TestEncodePNGBase64RoundTrip(t *testing.T) {
	s, err := EncodePNGBase64(solid(3, 3, color.Black))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(s, "iVBORw0KGgo") {
		t.Errorf("expected base64 PNG signature, got %q", s[:min(len(s), 16)])
	}
}

func sine(rate int, seconds float64) domain.Narration {
	n := int(float64(rate) * seconds)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return domain.Narration{Samples: samples, SampleRate: rate}
}

func TestEncodeDecodeWAV(t *testing.T) {
	in := sine(22050, 0.1)
	data, err := EncodeWAV(in)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if !IsRIFFWave(data) {
		t.Fatal("expected RIFF/WAVE header")
	}

	out, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.SampleRate != 22050 || len(out.Samples) != len(in.Samples) {
		t.Fatalf("got rate %d len %d", out.SampleRate, len(out.Samples))
	}
	for i := range in.Samples {
		if math.Abs(float64(in.Samples[i]-out.Samples[i])) > 1e-3 {
			t.Fatalf("sample %d: got %f want %f", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	if _, err := DecodeWAV([]byte("ID3\x03 this is an mp3")); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("non-RIFF: expected ErrUnsupportedFormat, got %v", err)
	}

	corrupt := []byte("RIFF\x00\x00\x00\x00WAVEjunkjunkjunk")
	if _, err := DecodeWAV(corrupt); !errors.Is(err, domain.ErrDecode) {
		t.Errorf("corrupt RIFF: expected ErrDecode, got %v", err)
	}
}

func TestNormalizeSpeechWAV(t *testing.T) {
	data, err := EncodeWAV(sine(44100, 0.5))
	if err != nil {
		t.Fatal(err)
	}

	norm, err := NormalizeSpeechWAV(data)
	if err != nil {
		t.Fatalf("NormalizeSpeechWAV: %v", err)
	}
	out, err := DecodeWAV(norm)
	if err != nil {
		t.Fatal(err)
	}
	if out.SampleRate != SpeechSampleRate {
		t.Errorf("rate = %d", out.SampleRate)
	}
	if want := SpeechSampleRate / 2; len(out.Samples) != want {
		t.Errorf("len = %d, want %d", len(out.Samples), want)
	}
}

func TestDownmixAveragesChannels(t *testing.T) {
	got := downmix([]int{16384, -16384, 32767, 32767}, 2, 16)
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0] != 0 {
		t.Errorf("frame 0 = %f, want 0", got[0])
	}
	if math.Abs(float64(got[1])-1) > 1e-3 {
		t.Errorf("frame 1 = %f, want ~1", got[1])
	}
}

func TestWriteWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	if err := WriteWAV(path, sine(16000, 0.05)); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	n, err := DecodeWAV(data)
	if err != nil {
		t.Fatal(err)
	}
	if n.Duration().Milliseconds() != 50 {
		t.Errorf("duration = %v", n.Duration())
	}
}
