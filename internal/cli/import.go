package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pricecat/internal/service"
)

var (
	importSourceRef string
	importChunkSize int
	importVectorize bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load extracted catalog rows and track them as an ingestion job",
	Long: `Read extracted rows from a JSON array, JSON lines or YAML list and
upsert them into the catalog. Rows are keyed by year and code, so
importing the same file twice leaves one entry per row. Rows without a
year get PRICECAT_CURRENT_YEAR.

Examples:
  pricecat import catalog-2024.json
  pricecat import rows.yaml --source-ref s3://catalogs/2024.pdf
  pricecat import catalog-2024.jsonl --vectorize`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importSourceRef, "source-ref", "", "reference to the source document (default: the file path)")
	importCmd.Flags().IntVar(&importChunkSize, "chunk-size", 0, "rows per write (default from PRICECAT_BATCH_SIZE)")
	importCmd.Flags().BoolVar(&importVectorize, "vectorize", false, "vectorize new rows after importing")
}

func runImport(cmd *cobra.Command, args []string) error {
	if serverURL != "" {
		return errors.New("import writes to the store directly; drop --server")
	}
	path := args[0]
	ctx := context.Background()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	rows, err := service.DecodeRows(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	sourceRef := importSourceRef
	if sourceRef == "" {
		if abs, err := filepath.Abs(path); err == nil {
			sourceRef = abs
		}
	}
	chunkSize := importChunkSize
	if chunkSize <= 0 {
		chunkSize = cfg.BatchSize
	}

	job, err := a.Import.Import(ctx, rows, service.ImportOptions{
		FileName:  filepath.Base(path),
		SourceRef: sourceRef,
		ChunkSize: chunkSize,
	})
	if job != nil {
		printJob(os.Stdout, *job)
	}
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if importVectorize {
		fmt.Println()
		summary, err := a.Vectorize.Execute(ctx, service.VectorizeOptions{BatchSize: cfg.BatchSize})
		if err != nil {
			return fmt.Errorf("vectorize: %w", err)
		}
		printSummary(os.Stdout, summary)
	}
	return nil
}
