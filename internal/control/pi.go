package control

import (
	"errors"
	"fmt"
	"math"
)

// Default smoothing gains.
const (
	DefaultP = 0.8
	DefaultI = 0.3
)

// ErrInvalidGains is returned by Gains.Validate.
var ErrInvalidGains = errors.New("control: invalid gains")

// Gains holds the proportional and integral coefficients.
type Gains struct {
	P float64 `json:"p" yaml:"p"`
	I float64 `json:"i" yaml:"i"`
}

// DefaultGains returns P=0.8, I=0.3.
func DefaultGains() Gains {
	return Gains{P: DefaultP, I: DefaultI}
}

// Validate rejects non-finite or negative gains.
func (g Gains) Validate() error {
	for name, v := range map[string]float64{"p": g.P, "i": g.I} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidGains, name, v)
		}
	}
	return nil
}

// PI smooths a stream of target values.
//
// The zero value is not useful; construct with NewPI or NewPIWithGains.
// A PI is owned by a single action node and is not safe for concurrent use.
type PI[T Quantity[T]] struct {
	Gains

	value    T
	integral T
}

// NewPI returns a controller with the default gains.
func NewPI[T Quantity[T]]() *PI[T] {
	return NewPIWithGains[T](DefaultGains())
}

// NewPIWithGains returns a controller with the given gains.
func NewPIWithGains[T Quantity[T]](g Gains) *PI[T] {
	return &PI[T]{Gains: g}
}

// Update feeds a new target and returns the smoothed value.
// dt is the elapsed time since the previous update in seconds.
func (c *PI[T]) Update(target T, dt float64) T {
	err := target.Sub(c.value)
	c.integral = c.integral.Add(err.Scale(dt))
	c.value = target.Scale(c.P).Add(c.integral.Scale(c.I))
	return c.value
}

// CurrentValue returns the last smoothed value without updating.
func (c *PI[T]) CurrentValue() T {
	return c.value
}

// IntegralError returns the accumulated integral term.
func (c *PI[T]) IntegralError() T {
	return c.integral
}

// Reset clears the smoothed value and the integral.
func (c *PI[T]) Reset() {
	var zero T
	c.value = zero
	c.integral = zero
}
