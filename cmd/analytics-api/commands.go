package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the analytics HTTP and gRPC servers",
		Long: `Start analytics-api.

The server will:
1. Load configuration (config.yaml, .env and environment)
2. Load the event snapshot from the configured storage driver
3. Start the ingest batcher and the Redis cache when enabled
4. Serve HTTP on server.port, metrics on metrics.addr and gRPC health on grpc.addr

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  analytics-api serve
  STORAGE_DRIVER=sqlite analytics-api serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildImportCmd() *cobra.Command {
	var (
		csvPath   string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a usage CSV into the configured database",
		Long: `Parse a usage export CSV and write its rows into the sqlite or postgres
storage selected by storage.driver. The csv driver has nothing to import into.`,
		Example: `  STORAGE_DRIVER=sqlite analytics-api import --csv ./data/events.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if csvPath == "" {
				return errors.New("--csv is required")
			}
			return runImport(cmd.Context(), csvPath, batchSize)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "Path to the CSV file")
	cmd.Flags().IntVar(&batchSize, "batch", 500, "Rows per write batch")
	return cmd
}
