package persistence

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/jiaming2012/tick-analytics/src/models"
)

type SnapshotCSVRow struct {
	Timestamp          string `csv:"timestamp"`
	Symbol             string `csv:"symbol"`
	Price              string `csv:"price"`
	Mean               string `csv:"mean"`
	Std                string `csv:"std"`
	ZScore             string `csv:"zscore"`
	SMA                string `csv:"sma"`
	EMA                string `csv:"ema"`
	RSI                string `csv:"rsi"`
	Volatility         string `csv:"volatility"`
	VolatilityFallback bool   `csv:"volatility_fallback"`
	ADFPValue          string `csv:"adf_pvalue"`
	ClusterID          string `csv:"cluster_id"`
	Trend              string `csv:"trend"`
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}

	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func NewSnapshotCSVRow(s *models.MetricsSnapshot) SnapshotCSVRow {
	row := SnapshotCSVRow{
		Timestamp:          s.Timestamp.UTC().Format(time.RFC3339Nano),
		Symbol:             s.Symbol,
		Price:              strconv.FormatFloat(s.Price, 'f', -1, 64),
		Mean:               formatOptional(s.Mean),
		Std:                formatOptional(s.Std),
		ZScore:             formatOptional(s.ZScore),
		SMA:                formatOptional(s.SMA),
		EMA:                formatOptional(s.EMA),
		RSI:                formatOptional(s.RSI),
		Volatility:         formatOptional(s.Volatility),
		VolatilityFallback: s.VolatilityFallback,
		ADFPValue:          formatOptional(s.ADFPValue),
	}

	if s.ClusterID != nil {
		row.ClusterID = strconv.Itoa(*s.ClusterID)
	}

	if s.Trend != nil {
		row.Trend = string(*s.Trend)
	}

	return row
}

// ExportSnapshotsCSV writes snapshots with a header row. Null values are empty cells.
func ExportSnapshotsCSV(snapshots []*models.MetricsSnapshot, w io.Writer) error {
	rows := make([]SnapshotCSVRow, len(snapshots))
	for i, s := range snapshots {
		rows[i] = NewSnapshotCSVRow(s)
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("ExportSnapshotsCSV: %w", err)
	}

	return nil
}

type WindowCSVRow struct {
	Symbol      string  `csv:"symbol"`
	WindowStart string  `csv:"window_start"`
	WindowEnd   string  `csv:"window_end"`
	VWAP        float64 `csv:"vwap"`
	Volume      float64 `csv:"volume"`
	TickCount   int     `csv:"tick_count"`
	Low         float64 `csv:"low"`
	High        float64 `csv:"high"`
	Synthetic   bool    `csv:"synthetic"`
}

func (r WindowCSVRow) ToWindow() (models.Window, error) {
	start, err := time.Parse(time.RFC3339Nano, r.WindowStart)
	if err != nil {
		return models.Window{}, fmt.Errorf("window_start: %w", err)
	}

	end, err := time.Parse(time.RFC3339Nano, r.WindowEnd)
	if err != nil {
		return models.Window{}, fmt.Errorf("window_end: %w", err)
	}

	low, high := r.Low, r.High
	if low == 0 && high == 0 {
		low, high = r.VWAP, r.VWAP
	}

	return models.Window{
		Symbol:      r.Symbol,
		WindowStart: start.UTC(),
		WindowEnd:   end.UTC(),
		VWAP:        r.VWAP,
		Volume:      r.Volume,
		TickCount:   r.TickCount,
		Low:         low,
		High:        high,
		Synthetic:   r.Synthetic,
	}, nil
}

func ExportWindowsCSV(windows []models.Window, w io.Writer) error {
	rows := make([]WindowCSVRow, len(windows))
	for i, win := range windows {
		rows[i] = WindowCSVRow{
			Symbol:      win.Symbol,
			WindowStart: win.WindowStart.UTC().Format(time.RFC3339Nano),
			WindowEnd:   win.WindowEnd.UTC().Format(time.RFC3339Nano),
			VWAP:        win.VWAP,
			Volume:      win.Volume,
			TickCount:   win.TickCount,
			Low:         win.Low,
			High:        win.High,
			Synthetic:   win.Synthetic,
		}
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("ExportWindowsCSV: %w", err)
	}

	return nil
}

// ImportWindowsCSV reads windows written by ExportWindowsCSV, keeping only symbol's
// rows when symbol is set.
func ImportWindowsCSV(r io.Reader, symbol string) ([]models.Window, error) {
	var rows []WindowCSVRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("ImportWindowsCSV: %w", err)
	}

	out := make([]models.Window, 0, len(rows))
	for i, row := range rows {
		if symbol != "" && row.Symbol != symbol {
			continue
		}

		w, err := row.ToWindow()
		if err != nil {
			return nil, fmt.Errorf("ImportWindowsCSV: row %d: %w", i+1, err)
		}

		out = append(out, w)
	}

	return out, nil
}
