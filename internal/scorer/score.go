// Package scorer computes the Hawker Opportunity Score: standardized
// demand, supply and accessibility signals blended into a composite,
// rescaled to [0,1] and dense-ranked.
package scorer

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/hscore/internal/config"
)

// Weights holds the composite and accessibility blend weights. Supply is
// stored as a magnitude and subtracted.
type Weights struct {
	Demand float64
	Supply float64
	Access float64
	MRT    float64
	Bus    float64
}

// DefaultWeights returns the published H-score weights.
func DefaultWeights() Weights {
	return Weights{
		Demand: 0.5,
		Supply: 0.3,
		Access: 0.2,
		MRT:    0.7,
		Bus:    0.3,
	}
}

// WeightsFromConfig builds Weights from the score config section.
func WeightsFromConfig(cfg config.ScoreConfig) Weights {
	return Weights{
		Demand: cfg.Weights.Demand,
		Supply: cfg.Weights.Supply,
		Access: cfg.Weights.Access,
		MRT:    cfg.Access.MRT,
		Bus:    cfg.Access.Bus,
	}
}

// Validate rejects negative or non-finite weights.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"demand": w.Demand, "supply": w.Supply, "access": w.Access,
		"mrt": w.MRT, "bus": w.Bus,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return eris.Errorf("scorer: weight %s must be a non-negative number, got %v", name, v)
		}
	}
	return nil
}

// Input is one subzone's raw signals.
type Input struct {
	Population int64
	Hawker     int
	MRT        int
	Bus        int
}

// Result is one subzone's scored output, index-aligned with the inputs.
type Result struct {
	// Dem, Sup and Acc are the standardized components.
	Dem float64
	Sup float64
	Acc float64

	AccRaw float64
	HRaw   float64
	HScore float64
	HRank  int
}

// Score standardizes the signals across all inputs and returns one Result
// per input in the same order.
func Score(inputs []Input, w Weights) []Result {
	n := len(inputs)
	pop := make([]float64, n)
	hawker := make([]float64, n)
	acc := make([]float64, n)
	for i, in := range inputs {
		pop[i] = float64(in.Population)
		hawker[i] = float64(in.Hawker)
		acc[i] = w.MRT*float64(in.MRT) + w.Bus*float64(in.Bus)
	}

	dem := Standardize(pop)
	sup := Standardize(hawker)
	accZ := Standardize(acc)

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = w.Demand*dem[i] - w.Supply*sup[i] + w.Access*accZ[i]
	}
	scores := Rescale(raw)
	ranks := DenseRank(scores)

	results := make([]Result, n)
	for i := range results {
		results[i] = Result{
			Dem:    dem[i],
			Sup:    sup[i],
			Acc:    accZ[i],
			AccRaw: acc[i],
			HRaw:   raw[i],
			HScore: scores[i],
			HRank:  ranks[i],
		}
	}
	return results
}

// Standardize returns population z-scores. A signal with fewer than two
// values, identical values or an undefined deviation standardizes to zero.
func Standardize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) <= 1 {
		return out
	}
	lo, hi, ok := bounds(values)
	if !ok || lo == hi {
		return out
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}

// Rescale maps values linearly onto [0,1]. When the range is empty or
// undefined every value becomes 0.5.
func Rescale(values []float64) []float64 {
	out := make([]float64, len(values))
	lo, hi, ok := bounds(values)
	if !ok || lo == hi {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	span := hi - lo
	for i, v := range values {
		s := (v - lo) / span
		switch {
		case math.IsNaN(s):
			s = 0.5
		case s < 0:
			s = 0
		case s > 1:
			s = 1
		}
		out[i] = s
	}
	return out
}

// DenseRank ranks values descending: the largest gets 1, equal values share
// a rank and no rank numbers are skipped. NaN ranks last.
func DenseRank(values []float64) []int {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return greater(values[order[a]], values[order[b]])
	})

	ranks := make([]int, len(values))
	rank := 0
	for i, idx := range order {
		if i == 0 || !same(values[idx], values[order[i-1]]) {
			rank++
		}
		ranks[idx] = rank
	}
	return ranks
}

// bounds returns the min and max over the finite values.
func bounds(values []float64) (lo, hi float64, ok bool) {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, ok
}

func greater(a, b float64) bool {
	if math.IsNaN(b) {
		return !math.IsNaN(a)
	}
	return a > b
}

func same(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}
