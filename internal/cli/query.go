package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"findit/internal/adapter/media"
	"findit/internal/domain"
	"findit/internal/port"
	"findit/internal/usecase"
)

var (
	queryText     string
	queryAudio    string
	queryTopK     int
	queryNarrate  bool
	queryVoice    string
	queryVoiceOut string
	queryJSON     bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Find the images closest to a typed or spoken query",
	Long: `Embed a query, fetch the k nearest images, caption each one and optionally
narrate the captions.

Examples:
  findit query -q "a dog on the beach"
  findit query --audio question.wav --narrate --voice-out ./narration
  findit query -q "city at night" -k 5 --json`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "query text")
	queryCmd.Flags().StringVar(&queryAudio, "audio", "", "WAV recording of the query")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of images (default from config)")
	queryCmd.Flags().BoolVar(&queryNarrate, "narrate", false, "synthesize speech for every caption")
	queryCmd.Flags().StringVar(&queryVoice, "voice", "", "voice preset (default from config)")
	queryCmd.Flags().StringVar(&queryVoiceOut, "voice-out", "", "directory to write narration WAV files")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagsMutuallyExclusive("query", "audio")
	queryCmd.MarkFlagsOneRequired("query", "audio")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	in := usecase.Input{
		Text:        queryText,
		TopK:        queryTopK,
		Narrate:     queryNarrate || queryVoiceOut != "" || cfg.Retrieve.Narrate,
		VoicePreset: queryVoice,
	}
	if queryAudio != "" {
		audio, err := os.ReadFile(queryAudio)
		if err != nil {
			return fmt.Errorf("failed to read audio: %w", err)
		}
		in.Audio = audio
		in.AudioFormat = audioFormat(queryAudio)
	}

	svc, err := buildServices(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer svc.Close()

	p, err := svc.pipeline(cmd.Context())
	if err != nil {
		return err
	}
	res, err := p.Run(cmd.Context(), in)
	if err != nil {
		if domain.Kind(err) == "index_not_built" {
			return fmt.Errorf("%w. Run 'findit index' first", err)
		}
		return err
	}

	var files []string
	if queryVoiceOut != "" && len(res.Audio) > 0 {
		if files, err = saveNarrations(queryVoiceOut, res); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		// Samples are written to --voice-out, not inlined into the JSON.
		view := *res
		view.Audio = nil
		data, _ := json.MarshalIndent(view, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}
	printResult(out, res, files)
	return nil
}

// audioFormat derives the container format from a file extension.
func audioFormat(path string) port.AudioFormat {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "wave" {
		ext = "wav"
	}
	return port.AudioFormat(ext)
}

func printResult(w io.Writer, res *domain.RetrievalResult, narrationFiles []string) {
	if res.Query.Origin == domain.OriginTranscribed {
		fmt.Fprintf(w, "Heard: %q\n", res.Query.Text)
	}
	if len(res.Images) == 0 {
		fmt.Fprintln(w, "No images found.")
		return
	}
	fmt.Fprintf(w, "Found %d images for: %s\n\n", len(res.Images), res.Query.Text)
	for i, img := range res.Images {
		fmt.Fprintf(w, "--- [%d] %s (distance: %.4f) ---\n", i+1, img.Filepath, img.Distance)
		fmt.Fprintln(w, img.Caption)
		if i < len(res.Audio) {
			line := fmt.Sprintf("narration: %s", formatDuration(res.Audio[i].Duration()))
			if i < len(narrationFiles) {
				line += " -> " + narrationFiles[i]
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}
}

// saveNarrations writes one WAV per narration, named by rank.
func saveNarrations(dir string, res *domain.RetrievalResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create narration directory: %w", err)
	}
	files := make([]string, len(res.Audio))
	for i, n := range res.Audio {
		path := filepath.Join(dir, fmt.Sprintf("narration_%d.wav", i+1))
		if err := media.WriteWAV(path, n); err != nil {
			return nil, fmt.Errorf("failed to write narration: %w", err)
		}
		files[i] = path
	}
	return files, nil
}
