package models

import "time"

// Window is a closed sampling interval [WindowStart, WindowEnd) for one symbol.
// A synthetic window had no trades: it carries the previous VWAP with zero volume.
type Window struct {
	Symbol      string    `json:"symbol" csv:"symbol"`
	WindowStart time.Time `json:"window_start" csv:"window_start"`
	WindowEnd   time.Time `json:"window_end" csv:"window_end"`
	VWAP        float64   `json:"vwap" csv:"vwap"`
	Volume      float64   `json:"volume" csv:"volume"`
	TickCount   int       `json:"tick_count" csv:"tick_count"`
	Low         float64   `json:"low" csv:"low"`
	High        float64   `json:"high" csv:"high"`
	Synthetic   bool      `json:"synthetic" csv:"synthetic"`
}

func (w Window) Duration() time.Duration {
	return w.WindowEnd.Sub(w.WindowStart)
}
