package series

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicAssignsInArrivalOrder(t *testing.T) {
	a := NewDeterministicAssigner(3)

	assert.Equal(t, 0, a.ColorFor("a"))
	assert.Equal(t, 1, a.ColorFor("b"))
	assert.Equal(t, 2, a.ColorFor("c"))
	assert.Equal(t, 0, a.ColorFor("d"), "palette wraps, colors may be shared")
	assert.Equal(t, 1, a.ColorFor("b"))
}

func TestColorStability(t *testing.T) {
	strategies := map[string]ColorAssigner{
		"deterministic": NewDeterministicAssigner(7),
		"random":        NewRandomAssigner(7, nil),
	}
	for name, a := range strategies {
		t.Run(name, func(t *testing.T) {
			first := a.ColorFor("device-0")
			for i := 1; i < 50; i++ {
				a.ColorFor(fmt.Sprintf("device-%d", i))
				require.Equal(t, first, a.ColorFor("device-0"), "color changed after %d other devices", i)
			}
		})
	}
}

func TestRandomAssignerUsesSource(t *testing.T) {
	draws := []int{4, 2, 4}
	a := NewRandomAssigner(5, func(n int) (int, error) {
		assert.Equal(t, 5, n)
		v := draws[0]
		draws = draws[1:]
		return v, nil
	})

	assert.Equal(t, 4, a.ColorFor("a"))
	assert.Equal(t, 2, a.ColorFor("b"))
	assert.Equal(t, 4, a.ColorFor("a"), "no draw for a known device")
	assert.Equal(t, 4, a.ColorFor("c"))
	assert.Empty(t, draws)
}

func TestRandomAssignerFallsBackOnEntropyFailure(t *testing.T) {
	a := NewRandomAssigner(3, func(int) (int, error) { return 0, errors.New("no entropy") })

	assert.Equal(t, 0, a.ColorFor("a"))
	assert.Equal(t, 1, a.ColorFor("b"))
}

func TestCryptoIntnRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		v, err := CryptoIntn(7)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 7)
	}
}

func TestAssignerReset(t *testing.T) {
	a := NewDeterministicAssigner(4)
	a.ColorFor("a")
	a.ColorFor("b")
	a.Reset()

	assert.Equal(t, 0, a.ColorFor("b"), "numbering restarts after reset")
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("random")
	require.NoError(t, err)
	assert.Equal(t, StrategyRandom, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyDeterministic, s)

	_, err = ParseStrategy("rainbow")
	assert.Error(t, err)
}

func TestNewColorAssigner(t *testing.T) {
	a, err := NewColorAssigner(StrategyRandom, 7)
	require.NoError(t, err)
	assert.IsType(t, &RandomAssigner{}, a)

	a, err = NewColorAssigner(StrategyDeterministic, 7)
	require.NoError(t, err)
	assert.IsType(t, &DeterministicAssigner{}, a)

	_, err = NewColorAssigner(StrategyDeterministic, 0)
	assert.Error(t, err)

	_, err = NewColorAssigner("rainbow", 7)
	assert.Error(t, err)
}
