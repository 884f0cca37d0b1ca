package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the reference gallery",
}

var galleryRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-encode every reference image and rewrite the cache",
	Long: `Re-encode every reference image in KNOWN_FACES_DIR with the embedding
service and rewrite the gallery cache. Images without a detectable face are
skipped with a warning.`,
	RunE: runGalleryRebuild,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered people",
	RunE:  runGalleryList,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryRebuildCmd)
	galleryCmd.AddCommand(galleryListCmd)
}

func runGalleryRebuild(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	store := newStore(cfg, rebuildProgress())

	ctx := context.Background()
	if _, err := store.Load(ctx, true); err != nil {
		return fmt.Errorf("gallery rebuild failed: %w", err)
	}

	g := store.Snapshot()
	fmt.Printf("Gallery rebuilt: %d embeddings of %d people\n", g.Len(), len(g.UniqueNames()))
	if g.Len() > 0 {
		fmt.Printf("Cache written to %s\n", cfg.Paths.CachePath())
	}
	return nil
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	store := newStore(cfg, rebuildProgress())

	if _, err := store.Load(context.Background(), false); err != nil {
		return fmt.Errorf("failed to load gallery: %w", err)
	}

	people := store.Snapshot().People()
	if len(people) == 0 {
		fmt.Println("No registered people")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTUDENT ID\tPHOTOS")
	for _, p := range people {
		id := p.ExternalID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", p.Name, id, p.Photos)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d people\n", len(people))
	return nil
}
