package models

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

type Position string

const (
	PositionFlat  Position = "FLAT"
	PositionLong  Position = "LONG"
	PositionShort Position = "SHORT"
)

type BacktestTrade struct {
	EntryTs    time.Time `json:"entry_ts"`
	ExitTs     time.Time `json:"exit_ts"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	EntryZ     float64   `json:"entry_z"`
	ExitZ      float64   `json:"exit_z"`
	PnL        float64   `json:"pnl"`
}

type OpenPosition struct {
	EntryTs    time.Time `json:"entry_ts"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	EntryZ     float64   `json:"entry_z"`
}

// BacktestResult is built once per run and never mutated afterwards.
type BacktestResult struct {
	Symbol       string          `json:"symbol"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Windows      int             `json:"windows"`
	Trades       []BacktestTrade `json:"trades"`
	TradeCount   int             `json:"trade_count"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	WinRate      float64         `json:"win_rate"`
	TotalPnL     float64         `json:"total_pnl"`
	AvgPnL       float64         `json:"avg_pnl"`
	OpenPosition *OpenPosition   `json:"open_position,omitempty"`
}
