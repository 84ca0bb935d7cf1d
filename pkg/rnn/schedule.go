package rnn

import "math"

// Schedule tracks the learning rate across epochs. Once validation loss
// fails to improve by the tolerance, the rate shrinks on every subsequent
// observation, down to a floor proportional to the initial rate.
type Schedule struct {
	Initial     float64
	Shrink      float64
	MinFraction float64
	Tolerance   float64

	rate      float64
	shrinking bool
	prev      float64
}

// DefaultTolerance is the relative regression that triggers shrinking.
const DefaultTolerance = 0.001

func NewSchedule(lr, shrink, minFraction float64) *Schedule {
	return &Schedule{
		Initial:     lr,
		Shrink:      shrink,
		MinFraction: minFraction,
		Tolerance:   DefaultTolerance,
		rate:        lr,
		prev:        math.Inf(1),
	}
}

// Rate returns the current learning rate.
func (s *Schedule) Rate() float64 { return s.rate }

// Shrinking reports whether the schedule has started decaying.
func (s *Schedule) Shrinking() bool { return s.shrinking }

// Observe records the validation loss of the epoch just finished and reports
// whether the rate was reduced.
func (s *Schedule) Observe(loss float64) bool {
	shrunk := false
	if s.shrinking || (1+s.Tolerance)*loss-s.prev > 0 {
		s.rate /= s.Shrink
		if floor := s.MinFraction * s.Initial; s.rate < floor {
			s.rate = floor
		}
		s.shrinking = true
		shrunk = true
	}
	s.prev = loss
	return shrunk
}
