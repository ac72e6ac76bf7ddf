package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/raphaelgruber/pricecat/internal/service"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the catalog entries closest to a description",
	Long: `Embed the query and return the nearest catalog entries by cosine
distance. Only vectorized entries are searched; run 'pricecat vectorize'
after importing.

Examples:
  pricecat search "manual excavation in hard soil"
  pricecat search "reinforced concrete slab" -n 5`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var getCmd = &cobra.Command{
	Use:   "get <code>",
	Short: "Show the most recent edition of a catalog code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		b, err := getBackend(ctx)
		if err != nil {
			return err
		}
		item, err := b.GetItem(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if item == nil {
			return fmt.Errorf("item not found: %s", args[0])
		}
		printItem(os.Stdout, *item)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", service.DefaultSearchLimit, "max results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := getBackend(ctx)
	if err != nil {
		return err
	}

	results, err := b.Search(ctx, args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(results))
	for i, item := range results {
		fmt.Printf("%d. %s (%d)  %s\n", i+1, item.Code, item.Year, item.Description)
		fmt.Printf("   %s  %.2f", item.Unit, item.Total())
		if item.Chapter != "" {
			fmt.Printf("  [%s]", item.Chapter)
		}
		fmt.Println()
		if verbose && item.Page > 0 {
			fmt.Printf("   page %d\n", item.Page)
		}
		fmt.Println()
	}
	return nil
}

func printItem(w io.Writer, item models.CatalogItem) {
	fmt.Fprintf(w, "%s (%d)\n", item.Code, item.Year)
	fmt.Fprintf(w, "  Description: %s\n", item.Description)
	if item.Unit != "" {
		fmt.Fprintf(w, "  Unit: %s\n", item.Unit)
	}
	if item.PriceLabor != nil {
		fmt.Fprintf(w, "  Labor: %.2f\n", *item.PriceLabor)
	}
	if item.PriceMaterial != nil {
		fmt.Fprintf(w, "  Material: %.2f\n", *item.PriceMaterial)
	}
	if item.PriceTotal != nil {
		fmt.Fprintf(w, "  Total: %.2f\n", *item.PriceTotal)
	}
	if item.Chapter != "" {
		fmt.Fprintf(w, "  Chapter: %s\n", item.Chapter)
	}
	if item.Section != "" {
		fmt.Fprintf(w, "  Section: %s\n", item.Section)
	}
	if item.Page > 0 {
		fmt.Fprintf(w, "  Page: %d\n", item.Page)
	}
	fmt.Fprintf(w, "  Vectorized: %t\n", item.HasEmbedding())
}
