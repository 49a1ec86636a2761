package indicators

// Ema is an exponential moving average seeded with the first full-period SMA.
type Ema struct {
	Period int
	alpha  float64
	value  *float64
}

func NewEma(period int) *Ema {
	return &Ema{
		Period: period,
		alpha:  2.0 / float64(period+1),
	}
}

// Update folds in the latest close. sma is the current full-period SMA, or nil if the
// history is still shorter than the period.
func (e *Ema) Update(close float64, sma *float64) *float64 {
	if e.value == nil {
		if sma == nil {
			return nil
		}

		seed := *sma
		e.value = &seed
		return e.Value()
	}

	next := e.alpha*close + (1-e.alpha)*(*e.value)
	e.value = &next
	return e.Value()
}

func (e *Ema) Value() *float64 {
	if e.value == nil {
		return nil
	}

	v := *e.value
	return &v
}
