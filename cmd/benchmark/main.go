package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"findit/config"
	"findit/internal/adapter/embedding"
	"findit/internal/adapter/fs"
	"findit/internal/adapter/media"
	"findit/internal/adapter/modelhttp"
	"findit/internal/adapter/store"
	"findit/internal/domain"
	"findit/internal/port"
)

func main() {
	indexPath := flag.String("index", ".", "Path to the directory holding the index")
	manifest := flag.String("manifest", "", "Manifest the index was built from")
	query := flag.String("q", "", "Query to inspect instead of running the recall benchmark")
	topK := flag.Int("k", 5, "Number of results")
	limit := flag.Int("n", 0, "Benchmark at most n images (0 = all)")
	flag.Parse()

	if *manifest == "" && *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -index . -manifest photos.csv")
		fmt.Println("       go run ./cmd/benchmark -index . -q \"query\"")
		fmt.Println("\nTests:")
		fmt.Println("  1. Embedding infrastructure (model connection, vector store)")
		fmt.Println("  2. Self-retrieval: each image embedded again must find itself")
		fmt.Println("  3. Text query inspection with distance ratings")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*indexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewBoltStore(config.IndexDBPath(*indexPath, cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	embedder, coll, err := setupEmbedding(ctx, st, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search not available: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("IMAGE SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	count, _ := coll.Count(ctx)
	fmt.Printf("Images indexed: %d\n", count)
	fmt.Printf("Model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", embedder.Dimension())
	fmt.Println()

	if *query != "" {
		inspect(ctx, embedder, coll, *query, *topK)
		return
	}

	rows, err := fs.LoadManifest(*manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading manifest: %v\n", err)
		os.Exit(1)
	}
	if *limit > 0 && *limit < len(rows) {
		rows = rows[:*limit]
	}
	recall(ctx, embedder, coll, rows, *topK)
}

func setupEmbedding(ctx context.Context, st *store.BoltStore, cfg *config.Config) (port.Embedder, port.Collection, error) {
	var embedder port.Embedder
	switch cfg.Embedding.Provider {
	case "jina":
		key, err := modelhttp.APIKey(cfg.Embedding.APIKeyEnv)
		if err != nil {
			return nil, nil, err
		}
		embedder, err = embedding.NewJinaEmbedder(modelhttp.NewClient(cfg.HTTP), embedding.JinaOptions{
			APIKey:       key,
			Model:        cfg.Embedding.Model,
			BaseURL:      cfg.Embedding.BaseURL,
			Dimension:    cfg.Embedding.Dimension,
			MaxImageSide: cfg.Index.MaxImageSide,
		})
		if err != nil {
			return nil, nil, err
		}
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimension)
	default:
		return nil, nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}

	coll, err := st.GetCollection(ctx, cfg.Store.Collection)
	if err != nil {
		return nil, nil, fmt.Errorf("collection %s: %w", cfg.Store.Collection, err)
	}
	info, err := coll.Info(ctx)
	if err != nil {
		return nil, nil, err
	}
	if info.Dimension != embedder.Dimension() {
		return nil, nil, fmt.Errorf("collection has dimension %d, embedder %d: %w",
			info.Dimension, embedder.Dimension(), domain.ErrDimensionMismatch)
	}
	return embedder, coll, nil
}

// recall re-embeds every manifest image and checks where it ranks against
// the stored vectors. Row i was indexed under id i.
func recall(ctx context.Context, embedder port.Embedder, coll port.Collection, rows []domain.ManifestRow, k int) {
	fmt.Printf("Self-retrieval over %d images (k=%d)\n", len(rows), k)
	fmt.Println(strings.Repeat("-", 70))

	var (
		hits1, hitsK, evaluated int
		reciprocal              float64
		queryTime               time.Duration
	)
	for i, row := range rows {
		img, err := media.LoadImage(row.Filepath)
		if err != nil {
			fmt.Printf("  skip row %d: %v\n", i, err)
			continue
		}
		vec, err := embedder.EmbedImage(ctx, img)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
			os.Exit(1)
		}

		start := time.Now()
		matches, err := coll.Query(ctx, vec, k)
		queryTime += time.Since(start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		evaluated++

		want := fmt.Sprint(i)
		rank := 0
		for j, m := range matches {
			if m.ID == want {
				rank = j + 1
				break
			}
		}
		switch {
		case rank == 1:
			hits1++
			hitsK++
		case rank > 1:
			hitsK++
		default:
			fmt.Printf("  miss: %s\n", shortPath(row.Filepath))
		}
		if rank > 0 {
			reciprocal += 1 / float64(rank)
		}
	}

	if evaluated == 0 {
		fmt.Println("No images could be evaluated.")
		return
	}
	n := float64(evaluated)
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Recall@1:        %.3f\n", float64(hits1)/n)
	fmt.Printf("  Recall@%-2d       %.3f\n", k, float64(hitsK)/n)
	fmt.Printf("  MRR:             %.3f\n", reciprocal/n)
	fmt.Printf("  Avg query time:  %s\n", queryTime/time.Duration(evaluated))

	if float64(hits1)/n > 0.95 {
		fmt.Println("  Status: GOOD - index and embedder agree")
	} else {
		fmt.Println("  Status: POOR - index may be stale, try 'findit index --rebuild'")
	}
}

func inspect(ctx context.Context, embedder port.Embedder, coll port.Collection, query string, k int) {
	fmt.Printf("Query: \"%s\"\n", query)
	fmt.Println(strings.Repeat("-", 70))

	vec, err := embedder.EmbedText(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Query embedded: %d dimensions\n\n", len(vec))

	matches, err := coll.Query(ctx, vec, k)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Top %d matches:\n\n", len(matches))
	total := 0.0
	for i, m := range matches {
		similarity := 1 - m.Distance
		total += similarity

		// Text-to-image similarities in CLIP-style spaces sit well below
		// image-to-image ones.
		rating := "LOW"
		if similarity > 0.35 {
			rating = "HIGH"
		} else if similarity > 0.25 {
			rating = "GOOD"
		} else if similarity > 0.15 {
			rating = "OK"
		}
		fmt.Printf("%d. [%s %.3f] %s\n", i+1, rating, similarity, shortPath(m.Metadata[domain.MetaImage]))
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("  Average similarity: %.3f\n", total/float64(len(matches)))
}

func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) <= 3 {
		return path
	}
	return ".../" + strings.Join(parts[len(parts)-3:], "/")
}
