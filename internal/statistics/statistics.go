package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/lox/blackjack/internal/game"
)

// HandResult is one player's result for a single settled round
type HandResult struct {
	Player  string       // Player ID
	Seat    int          // Enrollment position, starting at 1
	Round   int          // Round number within the room
	Bet     int          // Chips staked
	Outcome game.Outcome // Verdict against the dealer
}

// Net returns the chips won or lost relative to the stake
func (r HandResult) Net() int {
	return r.Outcome.Payout(r.Bet) - r.Bet
}

// SeatStats tracks results for one table seat
type SeatStats struct {
	Hands   int
	SumNet  float64
	SumNet2 float64
}

// Statistics accumulates hand results across a simulation
type Statistics struct {
	Hands   int
	Wagered int
	SumNet  float64
	SumNet2 float64   // Sum of squares for variance calculation
	Values  []float64 // Every net result, for median and percentiles

	Outcomes   map[game.Outcome]int     // Hands per outcome
	OutcomeNet map[game.Outcome]float64 // Net chips per outcome

	Seats map[int]*SeatStats

	BiggestWin  int
	BiggestLoss int
}

// Mean returns the average net chips per hand
func (s *Statistics) Mean() float64 {
	if s.Hands == 0 {
		return 0
	}
	return s.SumNet / float64(s.Hands)
}

// Variance returns the sample variance of all results
func (s *Statistics) Variance() float64 {
	if s.Hands < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumNet2 - float64(s.Hands)*mean*mean) / float64(s.Hands-1)
}

// StdDev returns the sample standard deviation of all results
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean
func (s *Statistics) StdError() float64 {
	if s.Hands == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Hands))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// PlayerEdge is the players' return per chip wagered. Negative means the
// house is ahead.
func (s *Statistics) PlayerEdge() float64 {
	if s.Wagered == 0 {
		return 0
	}
	return s.SumNet / float64(s.Wagered)
}

// Add incorporates a hand result
func (s *Statistics) Add(result HandResult) {
	if s.Outcomes == nil {
		s.Outcomes = make(map[game.Outcome]int)
		s.OutcomeNet = make(map[game.Outcome]float64)
		s.Seats = make(map[int]*SeatStats)
	}

	net := result.Net()
	value := float64(net)

	s.Hands++
	s.Wagered += result.Bet
	s.SumNet += value
	s.SumNet2 += value * value
	s.Values = append(s.Values, value)

	s.Outcomes[result.Outcome]++
	s.OutcomeNet[result.Outcome] += value

	seat, ok := s.Seats[result.Seat]
	if !ok {
		seat = &SeatStats{}
		s.Seats[result.Seat] = seat
	}
	seat.Hands++
	seat.SumNet += value
	seat.SumNet2 += value * value

	if net > s.BiggestWin {
		s.BiggestWin = net
	}
	if net < s.BiggestLoss {
		s.BiggestLoss = net
	}
}

// Rate returns the share of hands that ended with outcome o
func (s *Statistics) Rate(o game.Outcome) float64 {
	if s.Hands == 0 {
		return 0
	}
	return float64(s.Outcomes[o]) / float64(s.Hands)
}

// Median returns the median net result
func (s *Statistics) Median() float64 {
	return s.Percentile(0.5)
}

// Percentile returns the value at the given percentile (0.0 to 1.0)
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// SeatMean returns the mean result for a seat, or 0 if it never played
func (s *Statistics) SeatMean(seat int) float64 {
	ps, ok := s.Seats[seat]
	if !ok || ps.Hands == 0 {
		return 0
	}
	return ps.SumNet / float64(ps.Hands)
}

// IsLedgerBalanced checks that the per-outcome totals add up to the overall net
func (s *Statistics) IsLedgerBalanced() bool {
	var sum float64
	for _, v := range s.OutcomeNet {
		sum += v
	}
	return math.Abs(s.SumNet-sum) <= 1e-6
}

// Validate checks the accumulated data is internally consistent
func (s *Statistics) Validate() error {
	if !s.IsLedgerBalanced() {
		return fmt.Errorf("ledger mismatch: net %.2f does not match outcome totals", s.SumNet)
	}

	if s.Hands <= 0 {
		return fmt.Errorf("invalid hands count: %d", s.Hands)
	}

	if len(s.Values) != s.Hands {
		return fmt.Errorf("values array length (%d) does not match hands count (%d)",
			len(s.Values), s.Hands)
	}

	outcomeHands := 0
	for _, n := range s.Outcomes {
		outcomeHands += n
	}
	if outcomeHands != s.Hands {
		return fmt.Errorf("outcome hands total (%d) does not match total hands (%d)", outcomeHands, s.Hands)
	}

	seatHands := 0
	for _, ps := range s.Seats {
		seatHands += ps.Hands
	}
	if seatHands != s.Hands {
		return fmt.Errorf("seat hands total (%d) does not match total hands (%d)", seatHands, s.Hands)
	}

	return nil
}
