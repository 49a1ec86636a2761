package run

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/tick-analytics/src/config"
	"github.com/jiaming2012/tick-analytics/src/persistence"
)

type ExportArgs struct {
	Symbol string
	Kind   string
	From   time.Time
	To     time.Time
}

// Export writes stored snapshots or windows of a symbol as CSV.
func Export(ctx context.Context, cfg *config.Config, args ExportArgs, w io.Writer) error {
	st, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer st.store.Close()

	symbol := strings.ToUpper(args.Symbol)

	switch args.Kind {
	case "windows":
		windows, err := st.store.QueryWindows(ctx, symbol, args.From, args.To)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}

		log.Infof("exporting %d windows for %s", len(windows), symbol)
		return persistence.ExportWindowsCSV(windows, w)
	case "snapshots", "":
		snapshots, err := st.store.QuerySnapshots(ctx, symbol, args.From, args.To)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}

		log.Infof("exporting %d snapshots for %s", len(snapshots), symbol)
		return persistence.ExportSnapshotsCSV(snapshots, w)
	default:
		return fmt.Errorf("export: unknown kind %q", args.Kind)
	}
}
