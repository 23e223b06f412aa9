package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"findit/internal/port"
)

var (
	collectionsJSON      bool
	collectionsDimension int
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Manage vector store collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := storeOnly(GetConfig(), GetRootDir())
		if err != nil {
			return err
		}
		defer svc.Close()

		infos, err := svc.store.ListCollections(cmd.Context())
		if err != nil {
			return err
		}
		if collectionsJSON {
			data, _ := json.MarshalIndent(infos, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tDIMENSION\tDISTANCE\tCOUNT")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\n", info.Name, info.Dimension, info.Distance, info.Count)
		}
		return tw.Flush()
	},
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		svc, err := storeOnly(cfg, GetRootDir())
		if err != nil {
			return err
		}
		defer svc.Close()

		dim := collectionsDimension
		if dim <= 0 {
			dim = cfg.Embedding.Dimension
		}
		_, err = svc.store.CreateCollection(cmd.Context(), args[0], port.CollectionConfig{
			Dimension: dim,
			Metadata:  map[string]string{"embedding_model": cfg.Embedding.Model},
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created collection %s (dimension %d)\n", args[0], dim)
		return nil
	},
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a collection and all its vectors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := storeOnly(GetConfig(), GetRootDir())
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.store.DeleteCollection(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted collection %s\n", args[0])
		return nil
	},
}

var collectionsInfoCmd = &cobra.Command{
	Use:   "info [name]",
	Short: "Show a collection's dimension, distance and size",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		name := cfg.Store.Collection
		if len(args) > 0 {
			name = args[0]
		}

		svc, err := storeOnly(cfg, GetRootDir())
		if err != nil {
			return err
		}
		defer svc.Close()

		c, err := svc.store.GetCollection(cmd.Context(), name)
		if err != nil {
			return err
		}
		info, err := c.Info(cmd.Context())
		if err != nil {
			return err
		}
		if collectionsJSON {
			data, _ := json.MarshalIndent(info, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Name:      %s\n", info.Name)
		fmt.Fprintf(out, "Dimension: %d\n", info.Dimension)
		fmt.Fprintf(out, "Distance:  %s\n", info.Distance)
		fmt.Fprintf(out, "Count:     %d\n", info.Count)
		for k, v := range info.Metadata {
			fmt.Fprintf(out, "  %s: %s\n", k, v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectionsCmd)
	collectionsCmd.AddCommand(collectionsListCmd, collectionsCreateCmd, collectionsDeleteCmd, collectionsInfoCmd)
	collectionsCmd.PersistentFlags().BoolVar(&collectionsJSON, "json", false, "output as JSON")
	collectionsCreateCmd.Flags().IntVar(&collectionsDimension, "dimension", 0, "vector dimension (default from embedding config)")
}
