package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"findit/internal/adapter/fs"
	"findit/internal/usecase"
)

var (
	indexManifest       string
	indexRebuild        bool
	indexSkipUnreadable bool
	indexNoProgress     bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed every image in a manifest into the vector store",
	Long: `Read a manifest CSV, embed each image and store the vectors with their
file path and caption label. Row numbers become image ids.

An unreadable image aborts the build unless --skip-unreadable is given.

Examples:
  findit index --manifest photos.csv
  findit index --manifest photos.csv --rebuild --skip-unreadable`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVarP(&indexManifest, "manifest", "m", "", "manifest CSV (required)")
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "clear the collection before indexing")
	indexCmd.Flags().BoolVar(&indexSkipUnreadable, "skip-unreadable", false, "skip images that cannot be decoded")
	indexCmd.Flags().BoolVar(&indexNoProgress, "no-progress", false, "disable the progress bar")
	indexCmd.MarkFlagRequired("manifest")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	rows, err := fs.LoadManifest(indexManifest)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	svc, err := buildServices(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer svc.Close()

	rebuild := indexRebuild
	if svc.rebuildReason != "" {
		fmt.Printf("Index rebuild required: %s\n", svc.rebuildReason)
		rebuild = true
	}

	opts := usecase.BuildOptions{
		Rebuild:        rebuild,
		SkipUnreadable: indexSkipUnreadable || cfg.Index.SkipUnreadable,
	}
	if !indexNoProgress {
		opts.Progress = newIndexProgress()
	}

	fmt.Printf("Indexing %d images from %s...\n", len(rows), indexManifest)
	result, err := svc.indexer().Build(cmd.Context(), rows, opts)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if err := svc.recordBuild(); err != nil {
		return err
	}

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Images indexed: %d\n", result.Indexed)
	fmt.Printf("  Images skipped: %d\n", len(result.Skipped))
	fmt.Printf("  Duration:       %s\n", formatDuration(result.Duration))

	if len(result.Skipped) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, s := range result.Skipped {
			fmt.Printf("  - row %d %s: %s\n", s.Row, s.Filepath, s.Reason)
		}
	}

	fmt.Printf("\nCollection: %s (%s)\n", cfg.Store.Collection, cfg.Store.Backend)
	return nil
}

// newIndexProgress returns a progress callback that draws a bar with an ETA.
// The bar is created lazily once the total is known.
func newIndexProgress() func(done, total int, path string) {
	var (
		bar       *progressbar.ProgressBar
		mu        sync.Mutex
		startTime time.Time
	)

	return func(done, total int, path string) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(done)

		if done > 0 {
			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
