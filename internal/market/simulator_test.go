package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testClock struct{ t time.Time }

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestSimulator_StaysWithinBand(t *testing.T) {
	for _, pair := range []string{"BTC/USDT", "EUR/USD", "USD/JPY", "UNKNOWN/PAIR"} {
		t.Run(pair, func(t *testing.T) {
			clock := newTestClock()
			sim := NewSimulator(42, clock.Now)
			base := Base(pair)

			for i := 0; i < 20000; i++ {
				clock.Advance(3 * time.Second)
				p := sim.Price(pair)
				assert.GreaterOrEqual(t, p, base*(1-Band))
				assert.LessOrEqual(t, p, base*(1+Band))
				if t.Failed() {
					return
				}
			}
		})
	}
}

func TestSimulator_IsContinuous(t *testing.T) {
	clock := newTestClock()
	sim := NewSimulator(7, clock.Now)
	pair := "ETH/USDT"
	limit := MaxStep(pair) + 1e-9

	prev := sim.Price(pair)
	assert.LessOrEqual(t, math.Abs(prev-Base(pair)), limit, "first tick starts from base")

	for i := 0; i < 5000; i++ {
		// Large clock jumps move the wave target far, the step must still be bounded.
		clock.Advance(time.Duration(i%97) * time.Minute)
		next := sim.Price(pair)
		assert.LessOrEqual(t, math.Abs(next-prev), limit)
		prev = next
	}
}

func TestSimulator_UnknownPairUsesFallbackBase(t *testing.T) {
	assert.Equal(t, 100.0, Base("FOO/BAR"))
	assert.Equal(t, 94500.0, Base("BTC/USDT"))
}

func TestSimulator_Reset(t *testing.T) {
	clock := newTestClock()
	sim := NewSimulator(1, clock.Now)

	for i := 0; i < 100; i++ {
		clock.Advance(time.Minute)
		sim.Price("EUR/USD")
	}
	sim.Reset("EUR/USD")

	p := sim.Price("EUR/USD")
	assert.InDelta(t, Base("EUR/USD"), p, MaxStep("EUR/USD")+1e-12)
}
