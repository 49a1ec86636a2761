package indicators

import "math"

// Rsi is a Wilder-smoothed relative strength index over closes.
type Rsi struct {
	Period      int
	prevClose   *float64
	deltas      int
	sumGain     float64
	sumLoss     float64
	prevAvgGain *float64
	prevAvgLoss *float64
}

func NewRsi(period int) *Rsi {
	return &Rsi{
		Period: period,
	}
}

// Update returns nil until Period deltas have been observed.
func (r *Rsi) Update(close float64) *float64 {
	if r.prevClose == nil {
		r.prevClose = &close
		return nil
	}

	delta := close - *r.prevClose
	r.prevClose = &close

	var gain, loss float64
	if delta > 0 {
		gain = delta
	} else {
		loss = math.Abs(delta)
	}

	n := float64(r.Period)
	if r.prevAvgGain == nil {
		r.deltas++
		r.sumGain += gain
		r.sumLoss += loss
		if r.deltas < r.Period {
			return nil
		}

		avgGain := r.sumGain / n
		avgLoss := r.sumLoss / n
		r.prevAvgGain = &avgGain
		r.prevAvgLoss = &avgLoss
		return r.Value()
	}

	avgGain := ((*r.prevAvgGain)*(n-1) + gain) / n
	avgLoss := ((*r.prevAvgLoss)*(n-1) + loss) / n
	r.prevAvgGain = &avgGain
	r.prevAvgLoss = &avgLoss

	return r.Value()
}

func (r *Rsi) Value() *float64 {
	if r.prevAvgGain == nil {
		return nil
	}

	if *r.prevAvgLoss == 0 {
		v := 100.0
		return &v
	}

	rs := *r.prevAvgGain / *r.prevAvgLoss
	v := 100 - (100 / (1 + rs))
	v = math.Max(0, math.Min(100, v))
	return &v
}
