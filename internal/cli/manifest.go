package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"findit/internal/adapter/fs"
)

var manifestOut string

var manifestCmd = &cobra.Command{
	Use:   "manifest [dir]",
	Short: "Write a manifest CSV listing every image under a directory",
	Long: `Walk a directory for images matching index.includes and write a manifest
with filepath and filename columns. When written to a file, paths are stored
relative to the manifest so the two can move together.

Examples:
  findit manifest ./photos -o photos.csv
  findit manifest ./photos > photos.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runManifest,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.Flags().StringVarP(&manifestOut, "output", "o", "", "output file (default stdout)")
}

func runManifest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	dir := GetRootDir()
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	files, err := fs.NewWalker(cfg.Index.Includes, cfg.Index.Excludes).Walk(dir)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	base := ""
	if manifestOut != "" {
		f, err := os.Create(manifestOut)
		if err != nil {
			return fmt.Errorf("failed to create manifest: %w", err)
		}
		defer f.Close()
		w = f
		if abs, err := filepath.Abs(manifestOut); err == nil {
			base = filepath.Dir(abs)
		}
	}

	if err := fs.WriteManifest(w, fs.ManifestFromFiles(base, files)); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if manifestOut != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d images to %s\n", len(files), manifestOut)
	}
	return nil
}
