package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jiaming2012/tick-analytics/src/backtester"
	"github.com/jiaming2012/tick-analytics/src/config"
	"github.com/jiaming2012/tick-analytics/src/models"
	"github.com/jiaming2012/tick-analytics/src/persistence"
)

type BacktestArgs struct {
	Symbol  string
	CSVPath string
	From    time.Time
	To      time.Time
}

// Backtest replays windows from a CSV file, or from the configured store when no file
// is given.
func Backtest(ctx context.Context, cfg *config.Config, args BacktestArgs) (*models.BacktestResult, error) {
	engine := backtester.NewEngine(cfg.Backtest)
	symbol := strings.ToUpper(args.Symbol)

	if args.CSVPath != "" {
		f, err := os.Open(args.CSVPath)
		if err != nil {
			return nil, fmt.Errorf("backtest: %w", err)
		}
		defer f.Close()

		windows, err := persistence.ImportWindowsCSV(f, symbol)
		if err != nil {
			return nil, fmt.Errorf("backtest: %w", err)
		}

		return engine.RunWindows(symbol, windows)
	}

	st, err := openStores(cfg)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	defer st.store.Close()

	return backtester.NewService(st.store, engine).Backtest(ctx, symbol, args.From, args.To)
}

// WriteBacktestReport renders the trades and a summary as tables.
func WriteBacktestReport(result *models.BacktestResult, w io.Writer) {
	p := message.NewPrinter(language.English)

	fmt.Fprintf(w, "Backtest %s: %d windows\n", result.Symbol, result.Windows)

	trades := tablewriter.NewWriter(w)
	trades.SetHeader([]string{"#", "Side", "Entry", "Exit", "Entry Px", "Exit Px", "PnL"})
	trades.SetAlignment(tablewriter.ALIGN_RIGHT)
	for i, tr := range result.Trades {
		trades.Append([]string{
			fmt.Sprintf("%d", i+1),
			string(tr.Side),
			tr.EntryTs.Format(time.RFC3339),
			tr.ExitTs.Format(time.RFC3339),
			p.Sprintf("%.4f", tr.EntryPrice),
			p.Sprintf("%.4f", tr.ExitPrice),
			p.Sprintf("%.4f", tr.PnL),
		})
	}
	trades.Render()

	summary := tablewriter.NewWriter(w)
	summary.SetColumnSeparator("")
	summary.Append([]string{"Trades", fmt.Sprintf("%d", result.TradeCount)})
	summary.Append([]string{"Wins / Losses", fmt.Sprintf("%d / %d", result.Wins, result.Losses)})
	summary.Append([]string{"Win rate", fmt.Sprintf("%.0f%%", result.WinRate*100)})
	summary.Append([]string{"Total PnL", p.Sprintf("%.4f", result.TotalPnL)})
	summary.Append([]string{"Avg PnL", p.Sprintf("%.4f", result.AvgPnL)})
	if op := result.OpenPosition; op != nil {
		summary.Append([]string{"Open position", p.Sprintf("%s @ %.4f since %s", op.Side, op.EntryPrice, op.EntryTs.Format(time.RFC3339))})
	}
	summary.Render()
}
