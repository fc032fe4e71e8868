package market

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	// MaxTickMove bounds how far one simulated tick may move toward its wave target, as a fraction of base.
	MaxTickMove = 0.0015
	// NoiseAmplitude bounds the random component of one tick, as a fraction of base.
	NoiseAmplitude = 0.0005
	// Band is the maximum distance from base a simulated price may drift, as a fraction of base.
	Band = 0.05

	fallbackBase = 100.0
)

// BasePrices anchors the simulation of each pair.
var BasePrices = map[string]float64{
	"BTC/USDT":   94500,
	"ETH/USDT":   3400,
	"BNB/USDT":   620,
	"SOL/USDT":   190,
	"XRP/USDT":   2.3,
	"ADA/USDT":   0.95,
	"DOGE/USDT":  0.32,
	"DOT/USDT":   7.2,
	"AVAX/USDT":  38,
	"LINK/USDT":  22,
	"LTC/USDT":   105,
	"MATIC/USDT": 0.5,

	"EUR/USD": 1.085,
	"GBP/USD": 1.27,
	"USD/JPY": 149.5,
	"AUD/USD": 0.655,
	"USD/CHF": 0.88,
	"USD/CAD": 1.36,
	"NZD/USD": 0.6,
	"EUR/GBP": 0.855,
}

// wave is one sinusoidal component of the simulated market.
type wave struct {
	period    time.Duration
	amplitude float64 // fraction of base
	phaseMul  float64
}

var waves = []wave{
	{period: time.Hour, amplitude: 0.025, phaseMul: 1},
	{period: 5 * time.Minute, amplitude: 0.01, phaseMul: 1.7},
	{period: 30 * time.Second, amplitude: 0.004, phaseMul: 2.3},
}

type simState struct {
	last  float64
	phase float64
}

// Simulator produces continuous, bounded prices for pairs without a live feed.
// State is kept per pair for the lifetime of the simulator.
type Simulator struct {
	mu     sync.Mutex
	states map[string]*simState
	rng    *rand.Rand
	now    func() time.Time
}

// NewSimulator creates a simulator. A nil clock means time.Now.
func NewSimulator(seed int64, now func() time.Time) *Simulator {
	if now == nil {
		now = time.Now
	}
	return &Simulator{
		states: make(map[string]*simState),
		rng:    rand.New(rand.NewSource(seed)),
		now:    now,
	}
}

// Base returns the anchor price of a pair.
func Base(pair string) float64 {
	if b, ok := BasePrices[pair]; ok {
		return b
	}
	return fallbackBase
}

// MaxStep is the largest difference between two consecutive simulated prices of a pair.
func MaxStep(pair string) float64 {
	return (MaxTickMove + NoiseAmplitude) * Base(pair)
}

// Price advances the simulation of pair by one tick and returns the new price.
func (s *Simulator) Price(pair string) float64 {
	base := Base(pair)

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[pair]
	if !ok {
		st = &simState{last: base, phase: s.rng.Float64() * 2 * math.Pi}
		s.states[pair] = st
	}

	secs := float64(s.now().UnixNano()) / float64(time.Second)
	target := base
	for _, w := range waves {
		target += base * w.amplitude * math.Sin(2*math.Pi*secs/w.period.Seconds()+st.phase*w.phaseMul)
	}

	maxMove := MaxTickMove * base
	step := math.Max(-maxMove, math.Min(maxMove, target-st.last))
	noise := (s.rng.Float64()*2 - 1) * NoiseAmplitude * base

	next := st.last + step + noise
	next = math.Max(base*(1-Band), math.Min(base*(1+Band), next))

	st.last = next
	return next
}

// Reset forgets the state of a pair so the next tick restarts from base.
func (s *Simulator) Reset(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, pair)
}
