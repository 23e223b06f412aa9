package fs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"findit/internal/domain"
	"findit/internal/port"
)

const (
	columnFilepath = "filepath"
	columnFilename = "filename"
)

// ReadManifest parses a CSV manifest with a header row. The filepath and
// filename columns are located by name, case-insensitively; any other
// columns are ignored.
func ReadManifest(r io.Reader) ([]domain.ManifestRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest: missing header: %w", domain.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("manifest: %w", err)
	}

	pathCol, nameCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case columnFilepath:
			pathCol = i
		case columnFilename:
			nameCol = i
		}
	}
	if pathCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("manifest: header %v needs %q and %q columns: %w",
			header, columnFilepath, columnFilename, domain.ErrInvalidArgument)
	}

	var rows []domain.ManifestRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		if pathCol >= len(rec) || nameCol >= len(rec) {
			return nil, fmt.Errorf("manifest: line %d has %d fields: %w", line, len(rec), domain.ErrInvalidArgument)
		}

		path := strings.TrimSpace(rec[pathCol])
		if path == "" {
			return nil, fmt.Errorf("manifest: line %d: empty filepath: %w", line, domain.ErrInvalidArgument)
		}
		rows = append(rows, domain.ManifestRow{
			Filepath: path,
			Filename: strings.TrimSpace(rec[nameCol]),
		})
	}
	return rows, nil
}

// LoadManifest reads the manifest at path. Relative image paths are
// resolved against the manifest's directory.
func LoadManifest(path string) ([]domain.ManifestRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	defer f.Close()

	rows, err := ReadManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if !filepath.IsAbs(rows[i].Filepath) {
			rows[i].Filepath = filepath.Join(dir, filepath.FromSlash(rows[i].Filepath))
		}
	}
	return rows, nil
}

// WriteManifest writes rows with a filepath,filename header.
func WriteManifest(w io.Writer, rows []domain.ManifestRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{columnFilepath, columnFilename}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Filepath, r.Filename}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ManifestFromFiles builds manifest rows for walked files. Paths are made
// relative to base when possible so the manifest can move with the images.
func ManifestFromFiles(base string, files []port.FileInfo) []domain.ManifestRow {
	rows := make([]domain.ManifestRow, len(files))
	for i, f := range files {
		path := f.Path
		if base != "" {
			if rel, err := filepath.Rel(base, f.Path); err == nil && !strings.HasPrefix(rel, "..") {
				path = filepath.ToSlash(rel)
			}
		}
		rows[i] = domain.ManifestRow{
			Filepath: path,
			Filename: filepath.Base(f.Path),
		}
	}
	return rows
}
