package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pricecat/internal/service"
)

var (
	vectorizeBatchSize int
	vectorizeForce     bool
)

var vectorizeCmd = &cobra.Command{
	Use:   "vectorize",
	Short: "Embed catalog entries that have no vector yet",
	Long: `Walk the whole catalog in batches and embed every entry without a
vector. Failed batches are reported and left for the next run.

Examples:
  pricecat vectorize
  pricecat vectorize --force          # Re-embed everything
  pricecat vectorize --batch-size 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		b, err := getBackend(ctx)
		if err != nil {
			return err
		}

		batchSize := vectorizeBatchSize
		if batchSize <= 0 {
			batchSize = cfg.BatchSize
		}
		summary, err := b.Vectorize(ctx, batchSize, vectorizeForce)
		if err != nil {
			return fmt.Errorf("vectorize: %w", err)
		}
		printSummary(os.Stdout, summary)
		if summary.FailedBatches > 0 {
			return fmt.Errorf("%d of %d batches failed", summary.FailedBatches, len(summary.Batches))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many catalog entries are stored and vectorized",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		b, err := getBackend(ctx)
		if err != nil {
			return err
		}
		stats, err := b.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		fmt.Printf("Items:      %d\n", stats.Items)
		fmt.Printf("Vectorized: %d\n", stats.Embedded)
		if stats.Items > stats.Embedded {
			fmt.Printf("Pending:    %d\n", stats.Items-stats.Embedded)
		}
		return nil
	},
}

func init() {
	vectorizeCmd.Flags().IntVar(&vectorizeBatchSize, "batch-size", 0, "items per embedding call (default from PRICECAT_BATCH_SIZE)")
	vectorizeCmd.Flags().BoolVar(&vectorizeForce, "force", false, "re-embed items that already have a vector")
}

func printSummary(w io.Writer, s *service.RunSummary) {
	fmt.Fprintf(w, "Processed %d/%d items, embedded %d\n", s.Processed, s.Total, s.Embedded)
	for _, b := range s.Batches {
		if !b.OK() {
			fmt.Fprintf(w, "  batch at offset %d failed: %v\n", b.Offset, b.Err)
		}
	}
}
