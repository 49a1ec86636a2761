package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/tick-analytics/src/models"
)

func TestGeneratorSource(t *testing.T) {
	g := NewGeneratorSource(GeneratorConfig{
		Symbols:  []string{"AAA", "BBB"},
		Interval: time.Millisecond,
		Seed:     42,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := g.Start(ctx)

	var ticks []models.Tick
	for tick := range ch {
		ticks = append(ticks, tick)
		if len(ticks) == 10 {
			cancel()
			break
		}
	}

	require.Len(t, ticks, 10)
	for i, tick := range ticks {
		assert.NoError(t, tick.Validate())
		if i%2 == 0 {
			assert.Equal(t, "AAA", tick.Symbol)
		} else {
			assert.Equal(t, "BBB", tick.Symbol)
		}
	}

	for range ch {
	}
	assert.False(t, g.Connected())
}

func TestGeneratorSourceDeterministic(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	a := NewGeneratorSource(GeneratorConfig{Symbols: []string{"AAA"}, Seed: 7, Now: now})
	b := NewGeneratorSource(GeneratorConfig{Symbols: []string{"AAA"}, Seed: 7, Now: now})

	for i := 0; i < 5; i++ {
		assert.Equal(t, a.next("AAA"), b.next("AAA"))
	}
}
