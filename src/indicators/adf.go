package indicators

import (
	"fmt"
	"math"
)

type AdfResult struct {
	Statistic float64
	PValue    float64
	Lags      int
	Nobs      int
}

// AdfTest runs an augmented Dickey-Fuller test with a constant and the given number of
// lagged differences, regressing dy[t] on 1, y[t-1] and dy[t-1..t-lags].
func AdfTest(series []float64, lags int) (AdfResult, error) {
	if lags < 0 {
		lags = 0
	}

	if len(series) < 2 {
		return AdfResult{}, fmt.Errorf("adf: series too short")
	}

	dy := make([]float64, len(series)-1)
	for i := range dy {
		dy[i] = series[i+1] - series[i]
	}

	k := 2 + lags
	nobs := len(dy) - lags
	if nobs < k+5 {
		return AdfResult{}, fmt.Errorf("adf: need more than %d observations, got %d", k+5, nobs)
	}

	x := make([][]float64, 0, nobs)
	y := make([]float64, 0, nobs)
	for t := lags; t < len(dy); t++ {
		row := make([]float64, k)
		row[0] = 1
		row[1] = series[t]
		for i := 1; i <= lags; i++ {
			row[1+i] = dy[t-i]
		}

		x = append(x, row)
		y = append(y, dy[t])
	}

	beta, xtxInv, err := ordinaryLeastSquares(x, y)
	if err != nil {
		return AdfResult{}, fmt.Errorf("adf: %w", err)
	}

	rss := 0.0
	for i, row := range x {
		fitted := 0.0
		for j, v := range row {
			fitted += v * beta[j]
		}

		resid := y[i] - fitted
		rss += resid * resid
	}

	s2 := rss / float64(nobs-k)
	se := math.Sqrt(s2 * xtxInv[1][1])
	if se == 0 || math.IsNaN(se) {
		return AdfResult{}, fmt.Errorf("adf: degenerate regression")
	}

	stat := beta[1] / se

	return AdfResult{
		Statistic: stat,
		PValue:    MacKinnonPValue(stat),
		Lags:      lags,
		Nobs:      nobs,
	}, nil
}

// MacKinnon (1994) approximate p-value coefficients for the constant-only case, one variable.
var (
	adfMaxStat  = 2.74
	adfMinStat  = -18.83
	adfStarStat = -1.61
	adfSmallP   = []float64{2.1659, 1.4412, 0.038269}
	adfLargeP   = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

func MacKinnonPValue(stat float64) float64 {
	if stat > adfMaxStat {
		return 1
	}

	if stat < adfMinStat {
		return 0
	}

	coefs := adfLargeP
	if stat <= adfStarStat {
		coefs = adfSmallP
	}

	poly, pow := 0.0, 1.0
	for _, c := range coefs {
		poly += c * pow
		pow *= stat
	}

	return standardNormalCDF(poly)
}

func standardNormalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// ordinaryLeastSquares solves (X'X) b = X'y and also returns (X'X)^-1.
func ordinaryLeastSquares(x [][]float64, y []float64) ([]float64, [][]float64, error) {
	k := len(x[0])
	xtx := make([][]float64, k)
	for i := range xtx {
		xtx[i] = make([]float64, k)
	}
	xty := make([]float64, k)

	for r, row := range x {
		for i := 0; i < k; i++ {
			xty[i] += row[i] * y[r]
			for j := 0; j < k; j++ {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}

	inv, err := invertMatrix(xtx)
	if err != nil {
		return nil, nil, err
	}

	beta := make([]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			beta[i] += inv[i][j] * xty[j]
		}
	}

	return beta, inv, nil
}

// invertMatrix uses Gauss-Jordan elimination with partial pivoting.
func invertMatrix(m [][]float64) ([][]float64, error) {
	n := len(m)
	a := make([][]float64, n)
	scale := 0.0
	for i := range m {
		a[i] = make([]float64, 2*n)
		copy(a[i], m[i])
		a[i][n+i] = 1
		for _, v := range m[i] {
			scale = math.Max(scale, math.Abs(v))
		}
	}

	eps := 1e-12 * math.Max(scale, 1)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}

		if math.Abs(a[pivot][col]) < eps {
			return nil, fmt.Errorf("singular matrix")
		}

		a[col], a[pivot] = a[pivot], a[col]

		p := a[col][col]
		for j := range a[col] {
			a[col][j] /= p
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}

			f := a[r][col]
			if f == 0 {
				continue
			}

			for j := range a[r] {
				a[r][j] -= f * a[col][j]
			}
		}
	}

	inv := make([][]float64, n)
	for i := range a {
		inv[i] = a[i][n:]
	}

	return inv, nil
}
