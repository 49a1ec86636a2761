package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jiaming2012/tick-analytics/src/cmd/analytics/run"
	"github.com/jiaming2012/tick-analytics/src/config"
	"github.com/jiaming2012/tick-analytics/src/utils"
)

var rootCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Real-time tick analytics",
	Long:  `Samples trade ticks into fixed windows, computes rolling indicators, raises alerts and backtests window series.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envDir, err := cmd.Flags().GetString("env-dir")
		if err != nil {
			return err
		}

		return utils.InitEnvironmentVariables(envDir)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live pipeline and the HTTP read surface",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		utils.InitLogger(cfg.Log, cfg.Telemetry.Enabled)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := run.Serve(ctx, cfg); err != nil {
			log.Fatalf("serve: %v", err)
		}
	},
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a window series through the mean-reversion backtest",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		utils.InitLogger(cfg.Log, false)

		symbol, _ := cmd.Flags().GetString("symbol")
		csvPath, _ := cmd.Flags().GetString("csv")
		from, to := timeRange(cmd)

		result, err := run.Backtest(cmd.Context(), cfg, run.BacktestArgs{
			Symbol:  symbol,
			CSVPath: csvPath,
			From:    from,
			To:      to,
		})
		if err != nil {
			log.Fatalf("backtest: %v", err)
		}

		run.WriteBacktestReport(result, os.Stdout)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored snapshots or windows as CSV",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		utils.InitLogger(cfg.Log, false)

		symbol, _ := cmd.Flags().GetString("symbol")
		kind, _ := cmd.Flags().GetString("kind")
		outPath, _ := cmd.Flags().GetString("out")
		from, to := timeRange(cmd)

		out := os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				log.Fatalf("export: %v", err)
			}
			defer f.Close()
			out = f
		}

		if err := run.Export(cmd.Context(), cfg, run.ExportArgs{Symbol: symbol, Kind: kind, From: from, To: to}, out); err != nil {
			log.Fatalf("export: %v", err)
		}
	},
}

func loadConfig(cmd *cobra.Command) *config.Config {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		log.Fatalf("error getting config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	return cfg
}

func timeRange(cmd *cobra.Command) (time.Time, time.Time) {
	hours, _ := cmd.Flags().GetInt("hours")
	to := time.Now().UTC()
	return to.Add(-time.Duration(hours) * time.Hour), to
}

func main() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file.")
	rootCmd.PersistentFlags().String("env-dir", "", "Directory holding the .env.development / .env.production files.")

	backtestCmd.Flags().StringP("symbol", "s", "", "Symbol to backtest, e.g. BTCUSDT. This flag is required.")
	backtestCmd.Flags().String("csv", "", "Read windows from this CSV file instead of the store.")
	backtestCmd.Flags().Int("hours", 24, "How many hours of stored windows to replay.")
	backtestCmd.MarkFlagRequired("symbol")

	exportCmd.Flags().StringP("symbol", "s", "", "Symbol to export. This flag is required.")
	exportCmd.Flags().String("kind", "snapshots", "What to export: snapshots or windows.")
	exportCmd.Flags().Int("hours", 24, "How many hours back to export.")
	exportCmd.Flags().StringP("out", "o", "", "Output file; stdout when empty.")
	exportCmd.MarkFlagRequired("symbol")

	rootCmd.AddCommand(serveCmd, backtestCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
