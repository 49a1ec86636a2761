package models

import (
	"fmt"
	"math"
	"time"
)

type Tick struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
}

func (t Tick) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("%w: symbol is empty", InvalidTickErr)
	}

	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: %s: timestamp not set", InvalidTickErr, t.Symbol)
	}

	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return fmt.Errorf("%w: %s: price %v", InvalidTickErr, t.Symbol, t.Price)
	}

	if math.IsNaN(t.Quantity) || math.IsInf(t.Quantity, 0) || t.Quantity <= 0 {
		return fmt.Errorf("%w: %s: quantity %v", InvalidTickErr, t.Symbol, t.Quantity)
	}

	return nil
}
