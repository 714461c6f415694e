package series

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Strategy selects how devices are mapped to palette colors.
type Strategy string

const (
	// StrategyDeterministic gives the Nth distinct device index N mod palette size.
	StrategyDeterministic Strategy = "deterministic"
	// StrategyRandom picks a uniformly random index on first sight.
	StrategyRandom Strategy = "random"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyDeterministic, StrategyRandom:
		return Strategy(s), nil
	case "":
		return StrategyDeterministic, nil
	}
	return "", fmt.Errorf("unknown color strategy %q", s)
}

// ColorAssigner maps device identifiers to palette indices. Once a device has
// an index it keeps it until Reset. Devices may share an index when there are
// more devices than colors.
type ColorAssigner interface {
	ColorFor(device string) int
	Reset()
}

// NewColorAssigner creates an assigner for the given strategy and palette size.
func NewColorAssigner(strategy Strategy, paletteSize int) (ColorAssigner, error) {
	if paletteSize < 1 {
		return nil, fmt.Errorf("palette size must be positive, got %d", paletteSize)
	}
	switch strategy {
	case StrategyDeterministic, "":
		return NewDeterministicAssigner(paletteSize), nil
	case StrategyRandom:
		return NewRandomAssigner(paletteSize, nil), nil
	}
	return nil, fmt.Errorf("unknown color strategy %q", strategy)
}

// DeterministicAssigner reproduces the same mapping for the same arrival order.
type DeterministicAssigner struct {
	size     int
	assigned map[string]int
}

// NewDeterministicAssigner creates a DeterministicAssigner.
func NewDeterministicAssigner(paletteSize int) *DeterministicAssigner {
	return &DeterministicAssigner{size: paletteSize, assigned: make(map[string]int)}
}

func (a *DeterministicAssigner) ColorFor(device string) int {
	if idx, ok := a.assigned[device]; ok {
		return idx
	}
	idx := len(a.assigned) % a.size
	a.assigned[device] = idx
	return idx
}

func (a *DeterministicAssigner) Reset() {
	clear(a.assigned)
}

// IntnFunc returns a uniform integer in [0, n).
type IntnFunc func(n int) (int, error)

// CryptoIntn draws from crypto/rand.
func CryptoIntn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// RandomAssigner picks a random index the first time a device is seen.
type RandomAssigner struct {
	size     int
	intn     IntnFunc
	assigned map[string]int
}

// NewRandomAssigner creates a RandomAssigner. A nil intn selects CryptoIntn.
func NewRandomAssigner(paletteSize int, intn IntnFunc) *RandomAssigner {
	if intn == nil {
		intn = CryptoIntn
	}
	return &RandomAssigner{size: paletteSize, intn: intn, assigned: make(map[string]int)}
}

func (a *RandomAssigner) ColorFor(device string) int {
	if idx, ok := a.assigned[device]; ok {
		return idx
	}
	idx, err := a.intn(a.size)
	if err != nil || idx < 0 || idx >= a.size {
		// Entropy failure must not fail an insert.
		idx = len(a.assigned) % a.size
	}
	a.assigned[device] = idx
	return idx
}

func (a *RandomAssigner) Reset() {
	clear(a.assigned)
}
