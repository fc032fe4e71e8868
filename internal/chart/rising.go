// Package chart renders display-only series. Nothing here carries monetary meaning.
package chart

import (
	"math"
	"math/rand"
	"time"
)

// Point is one sample of a display series. Time is unix seconds.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Rising produces count points ending at end that never decrease, starting at start.
// A non-positive start is drawn from 100.
func Rising(start float64, count int, interval time.Duration, end time.Time, rng *rand.Rand) []Point {
	if count <= 0 {
		return []Point{}
	}
	if start <= 0 || math.IsNaN(start) || math.IsInf(start, 0) {
		start = 100
	}
	if interval <= 0 {
		interval = time.Second
	}

	points := make([]Point, count)
	first := end.Add(-time.Duration(count-1) * interval)
	value := start
	for i := range points {
		if i > 0 {
			// Gentle wobble in the growth rate, never below zero.
			rate := 0.0005 + 0.0015*rng.Float64()
			rate *= 1 + 0.5*math.Sin(float64(i)/5)
			value += start * rate
		}
		points[i] = Point{Time: first.Add(time.Duration(i) * interval).Unix(), Value: value}
	}
	return points
}
