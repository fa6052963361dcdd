// Команда analytics-api отдает агрегированную аналитику использования по HTTP,
// принимает новые события и держит gRPC health для оркестратора.
//
// Запуск сервера:
//
//	analytics-api serve
//
// Загрузка CSV в базу:
//
//	analytics-api import --csv ./data/events.csv
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Заполняется через ldflags при сборке.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "analytics-api",
		Short:        "Usage analytics API",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	serve := buildServeCmd()
	root.AddCommand(serve, buildImportCmd())

	// Без подкоманды запускаем сервер
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}
