package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"findit/internal/adapter/fs"
	"findit/internal/server"
	"findit/internal/usecase"
)

var (
	serveAddr     string
	serveManifest string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP search API",
	Long: `Serve the retrieval pipeline over HTTP.

  POST /v1/search         JSON {"text", "top_k", "narrate", "voice"}
  POST /v1/search/voice   multipart "audio" file plus top_k, narrate, voice
  GET  /healthz
  GET  /metrics

With --manifest the collection is built before the server starts, which is
how the memory backend gets its data.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVarP(&serveManifest, "manifest", "m", "", "index this manifest before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer svc.Close()

	if serveManifest != "" {
		rows, err := fs.LoadManifest(serveManifest)
		if err != nil {
			return fmt.Errorf("failed to read manifest: %w", err)
		}
		result, err := svc.indexer().Build(ctx, rows, usecase.BuildOptions{
			Rebuild:        true,
			SkipUnreadable: cfg.Index.SkipUnreadable,
		})
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		if err := svc.recordBuild(); err != nil {
			return err
		}
		svc.logger.Info("index built", "indexed", result.Indexed, "skipped", len(result.Skipped))
	}

	p, err := svc.pipeline(ctx)
	if err != nil {
		return err
	}
	return server.New(p, cfg.Server, svc.logger).ListenAndServe(ctx)
}
