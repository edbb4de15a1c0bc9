// Package fare prices rides. A Policy is a pure function from distance to
// the amount owed; the transaction path depends only on the interface so
// pricing can be swapped without touching it.
package fare

import (
	"errors"
	"fmt"
	"math"
)

// DefaultRate is the price of one unit of distance under the default policy.
const DefaultRate = 2

var ErrInvalidDistance = errors.New("invalid distance")

type Policy interface {
	CalculateFare(distance float64) (int64, error)
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(distance float64) (int64, error)

func (f PolicyFunc) CalculateFare(distance float64) (int64, error) {
	return f(distance)
}

// Distance charges Rate per unit of distance. Distances are taken with a
// precision of 1/100 of a unit and fractional fares are rounded up.
type Distance struct {
	Rate int64
}

func NewDistance(rate int64) Distance {
	return Distance{Rate: rate}
}

// Default returns the reference policy: distance × 2.
func Default() Distance {
	return Distance{Rate: DefaultRate}
}

func (d Distance) CalculateFare(distance float64) (int64, error) {
	hundredths, err := toHundredths(distance)
	if err != nil {
		return 0, err
	}

	if d.Rate > 0 && hundredths > math.MaxInt64/d.Rate {
		return 0, fmt.Errorf("%v at rate %d: fare out of range: %w", distance, d.Rate, ErrInvalidDistance)
	}

	return ceilDiv(hundredths*d.Rate, 100), nil
}

// Band prices every distance up to and including UpTo at Fare.
type Band struct {
	UpTo float64 `json:"up_to"`
	Fare int64   `json:"fare"`
}

// Zone is a flat-fare-per-zone policy. Bands must be sorted by UpTo;
// distances beyond the last band are charged Beyond.
type Zone struct {
	Bands  []Band
	Beyond int64
}

func (z Zone) CalculateFare(distance float64) (int64, error) {
	if _, err := toHundredths(distance); err != nil {
		return 0, err
	}

	for _, b := range z.Bands {
		if distance <= b.UpTo {
			return b.Fare, nil
		}
	}

	return z.Beyond, nil
}

func toHundredths(distance float64) (int64, error) {
	if math.IsNaN(distance) || math.IsInf(distance, 0) || distance < 0 {
		return 0, fmt.Errorf("%v: %w", distance, ErrInvalidDistance)
	}

	scaled := math.Round(distance * 100)
	if scaled >= math.MaxInt64 {
		return 0, fmt.Errorf("%v: out of range: %w", distance, ErrInvalidDistance)
	}
	return int64(scaled), nil
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}
