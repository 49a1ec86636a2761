package indicators

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacKinnonPValue(t *testing.T) {
	t.Run("critical values", func(t *testing.T) {
		assert.InDelta(t, 0.05, MacKinnonPValue(-2.86), 0.005)
		assert.InDelta(t, 0.01, MacKinnonPValue(-3.43), 0.002)
	})

	t.Run("clamped tails", func(t *testing.T) {
		assert.Equal(t, 0.0, MacKinnonPValue(-25))
		assert.Equal(t, 1.0, MacKinnonPValue(3))
	})

	t.Run("monotonic", func(t *testing.T) {
		prev := 0.0
		for stat := -18.0; stat < 2.7; stat += 0.1 {
			p := MacKinnonPValue(stat)
			assert.GreaterOrEqual(t, p, prev-1e-9)
			prev = p
		}
	})
}

func TestAdfTest(t *testing.T) {
	t.Run("mean reverting series is stationary", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		series := make([]float64, 300)
		for i := 1; i < len(series); i++ {
			series[i] = 0.2*series[i-1] + rng.NormFloat64()
		}

		result, err := AdfTest(series, 1)
		require.NoError(t, err)
		assert.Less(t, result.PValue, 0.01)
		assert.Equal(t, 1, result.Lags)
		assert.Equal(t, 298, result.Nobs)
	})

	t.Run("constant series", func(t *testing.T) {
		series := make([]float64, 50)
		for i := range series {
			series[i] = 10
		}

		_, err := AdfTest(series, 1)
		assert.Error(t, err)
	})

	t.Run("short series", func(t *testing.T) {
		_, err := AdfTest([]float64{1, 2, 3, 4}, 1)
		assert.Error(t, err)
	})
}
