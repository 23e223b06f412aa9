package fs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"findit/internal/domain"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkerFindsImagesSorted(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.png"))
	touch(t, filepath.Join(root, "a", "c.JPG"))
	touch(t, filepath.Join(root, "a", "notes.txt"))
	touch(t, filepath.Join(root, ".findit", "thumb.png"))
	touch(t, filepath.Join(root, "z.webp"))

	files, err := NewWalker(nil, []string{"**/.findit/**", ".findit/**"}).Walk(root)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		got = append(got, filepath.ToSlash(rel))
	}
	want := []string{"a/c.JPG", "b.png", "z.webp"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Walk = %v, want %v", got, want)
	}
}

func TestReadManifest(t *testing.T) {
	in := "ID,FilePath,caption,FILENAME\n" +
		"0,imgs/dog.jpg,ignored,dog.jpg\n" +
		"1,/abs/cat.png,,cat.png\n"

	rows, err := ReadManifest(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0] != (domain.ManifestRow{Filepath: "imgs/dog.jpg", Filename: "dog.jpg"}) {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Filepath != "/abs/cat.png" {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestReadManifestErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing column": "filepath,caption\na.png,x\n",
		"empty path":     "filepath,filename\n,a.png\n",
		"short row":      "filename,other,filepath\na.png\n",
	}
	for name, in := range tests {
		if _, err := ReadManifest(strings.NewReader(in)); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestLoadManifestResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.csv")
	os.WriteFile(path, []byte("filepath,filename\nimgs/a.png,a.png\n"), 0644)

	rows, err := LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "imgs", "a.png"); rows[0].Filepath != want {
		t.Errorf("Filepath = %s, want %s", rows[0].Filepath, want)
	}
}

func TestWriteManifestRoundTrip(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "one.png"))
	touch(t, filepath.Join(root, "sub", "two, with comma.jpg"))

	files, err := NewWalker(nil, nil).Walk(root)
	if err != nil {
		t.Fatal(err)
	}
	rows := ManifestFromFiles(root, files)

	var buf bytes.Buffer
	if err := WriteManifest(&buf, rows); err != nil {
		t.Fatal(err)
	}
	back, err := ReadManifest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 || back[1].Filepath != "sub/two, with comma.jpg" || back[1].Filename != "two, with comma.jpg" {
		t.Errorf("round trip = %+v", back)
	}
}
