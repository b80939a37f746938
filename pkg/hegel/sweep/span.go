// Package sweep implements the measurement engines: sweeping a set
// device over a span of values while reading out other devices,
// recording devices at a fixed interval, and one-shot snapshots. Rows
// go to a trace writer so a run's data file is valid at any abort.
package sweep

import (
	"errors"
	"fmt"
	"math"
)

// ErrEmptySpan is returned when a span would hold no points.
var ErrEmptySpan = errors.New("span has no points")

// Span is the ordered list of values a sweep visits.
type Span struct {
	values []float64
}

// Linspace builds npts evenly spaced values from start to stop
// inclusive. npts of 1 yields just start.
func Linspace(start, stop float64, npts int) (Span, error) {
	if npts < 1 {
		return Span{}, ErrEmptySpan
	}
	vals := make([]float64, npts)
	if npts == 1 {
		vals[0] = start
		return Span{values: vals}, nil
	}
	step := (stop - start) / float64(npts-1)
	for i := range vals {
		vals[i] = start + float64(i)*step
	}
	vals[npts-1] = stop
	return Span{values: vals}, nil
}

// Logspace builds npts logarithmically spaced values from start to
// stop inclusive. Both endpoints must be nonzero and share a sign; a
// negative pair sweeps through negative values.
func Logspace(start, stop float64, npts int) (Span, error) {
	if npts < 1 {
		return Span{}, ErrEmptySpan
	}
	if start == 0 || stop == 0 {
		return Span{}, fmt.Errorf("logspace endpoints cannot be zero")
	}
	negative := false
	if start < 0 {
		negative = true
		start, stop = -start, -stop
	}
	if stop < 0 {
		return Span{}, fmt.Errorf("logspace endpoints must have the same sign")
	}
	exp, err := Linspace(math.Log10(start), math.Log10(stop), npts)
	if err != nil {
		return Span{}, err
	}
	vals := exp.values
	for i, e := range vals {
		vals[i] = math.Pow(10, e)
	}
	if negative {
		for i := range vals {
			vals[i] = -vals[i]
		}
	}
	return Span{values: vals}, nil
}

// List builds a span from explicit values.
func List(vals []float64) (Span, error) {
	if len(vals) == 0 {
		return Span{}, ErrEmptySpan
	}
	out := make([]float64, len(vals))
	copy(out, vals)
	return Span{values: out}, nil
}

// Points returns how many values the span holds.
func (s Span) Points() int { return len(s.values) }

// Start returns the first value.
func (s Span) Start() float64 { return s.values[0] }

// Stop returns the last value.
func (s Span) Stop() float64 { return s.values[len(s.values)-1] }

// Values returns a copy of the span values.
func (s Span) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Reversed returns the span walked backwards, for the return leg of an
// up-down sweep.
func (s Span) Reversed() Span {
	out := make([]float64, len(s.values))
	for i, v := range s.values {
		out[len(out)-1-i] = v
	}
	return Span{values: out}
}
