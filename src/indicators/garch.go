package indicators

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

var NotConvergedErr = fmt.Errorf("garch fit did not converge")

type GarchFitOptions struct {
	MinSamples     int
	MaxIterations  int
	Tolerance      float64
	MaxPersistence float64
}

func DefaultGarchFitOptions() GarchFitOptions {
	return GarchFitOptions{
		MinSamples:     20,
		MaxIterations:  500,
		Tolerance:      1e-5,
		MaxPersistence: 0.999,
	}
}

// Garch is a variance-targeted GARCH(1,1) model:
// sigma2[t+1] = omega + alpha*eps[t]^2 + beta*sigma2[t], omega = var*(1-alpha-beta).
type Garch struct {
	Omega         float64
	Alpha         float64
	Beta          float64
	Mean          float64
	LogLikelihood float64
	variance      float64
}

// FitGarch estimates the model by maximum likelihood over returns using a coarse grid
// followed by a compass search. The returned model is primed with the one-step-ahead
// variance after the last return.
func FitGarch(returns []float64, opts GarchFitOptions) (*Garch, error) {
	if len(returns) < opts.MinSamples || len(returns) < 3 {
		return nil, fmt.Errorf("garch: need %d returns, got %d: %w", opts.MinSamples, len(returns), NotConvergedErr)
	}

	mean, err := stats.Mean(returns)
	if err != nil {
		return nil, fmt.Errorf("garch: %w", err)
	}

	sampleVar, err := stats.SampleVariance(returns)
	if err != nil {
		return nil, fmt.Errorf("garch: %w", err)
	}

	if sampleVar <= 0 || math.IsNaN(sampleVar) {
		return nil, fmt.Errorf("garch: zero variance returns: %w", NotConvergedErr)
	}

	eps := make([]float64, len(returns))
	for i, r := range returns {
		eps[i] = r - mean
	}

	feasible := func(alpha, beta float64) bool {
		return alpha >= 0 && beta >= 0 && alpha+beta < opts.MaxPersistence
	}

	objective := func(alpha, beta float64) float64 {
		nll, _ := garchNegLogLikelihood(eps, sampleVar, alpha, beta)
		return nll
	}

	bestAlpha, bestBeta := 0.05, 0.9
	best := objective(bestAlpha, bestBeta)
	for alpha := 0.0; alpha <= 0.3; alpha += 0.02 {
		for beta := 0.0; beta <= 0.98; beta += 0.04 {
			if !feasible(alpha, beta) {
				continue
			}

			if v := objective(alpha, beta); v < best {
				best, bestAlpha, bestBeta = v, alpha, beta
			}
		}
	}

	step := 0.02
	converged := false
	for iter := 0; iter < opts.MaxIterations; iter++ {
		if step < opts.Tolerance {
			converged = true
			break
		}

		moved := false
		for _, d := range [][2]float64{{step, 0}, {-step, 0}, {0, step}, {0, -step}} {
			alpha, beta := bestAlpha+d[0], bestBeta+d[1]
			if !feasible(alpha, beta) {
				continue
			}

			if v := objective(alpha, beta); v < best {
				best, bestAlpha, bestBeta = v, alpha, beta
				moved = true
			}
		}

		if !moved {
			step /= 2
		}
	}

	if !converged {
		return nil, fmt.Errorf("garch: %d iterations exhausted: %w", opts.MaxIterations, NotConvergedErr)
	}

	if math.IsNaN(best) || math.IsInf(best, 0) {
		return nil, fmt.Errorf("garch: non-finite likelihood: %w", NotConvergedErr)
	}

	if bestAlpha+bestBeta >= opts.MaxPersistence-1e-4 {
		return nil, fmt.Errorf("garch: persistence %.4f at bound: %w", bestAlpha+bestBeta, NotConvergedErr)
	}

	nll, next := garchNegLogLikelihood(eps, sampleVar, bestAlpha, bestBeta)

	return &Garch{
		Omega:         sampleVar * (1 - bestAlpha - bestBeta),
		Alpha:         bestAlpha,
		Beta:          bestBeta,
		Mean:          mean,
		LogLikelihood: -nll,
		variance:      next,
	}, nil
}

// garchNegLogLikelihood returns the gaussian negative log-likelihood (constant dropped)
// and the conditional variance one step past the end of eps.
func garchNegLogLikelihood(eps []float64, targetVar, alpha, beta float64) (float64, float64) {
	omega := targetVar * (1 - alpha - beta)
	sigma2 := targetVar
	nll := 0.0
	for _, e := range eps {
		if sigma2 <= 0 {
			return math.Inf(1), sigma2
		}

		nll += math.Log(sigma2) + e*e/sigma2
		sigma2 = omega + alpha*e*e + beta*sigma2
	}

	return 0.5 * nll, sigma2
}

// Update rolls the forecast forward with the newest return and returns the new
// one-step-ahead volatility.
func (g *Garch) Update(r float64) float64 {
	e := r - g.Mean
	g.variance = g.Omega + g.Alpha*e*e + g.Beta*g.variance
	return g.Forecast()
}

// Forecast is the one-step-ahead conditional standard deviation.
func (g *Garch) Forecast() float64 {
	return math.Sqrt(math.Max(g.variance, 0))
}

func (g *Garch) Persistence() float64 {
	return g.Alpha + g.Beta
}

// RealizedVolatility is the sample standard deviation of returns.
func RealizedVolatility(returns []float64) (float64, error) {
	if len(returns) < 2 {
		return 0, fmt.Errorf("realized volatility: need at least 2 returns, got %d", len(returns))
	}

	sd, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return 0, fmt.Errorf("realized volatility: %w", err)
	}

	return sd, nil
}
