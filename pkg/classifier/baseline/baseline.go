package baseline

import (
	"context"
	"errors"
)

// Kind registry name of the majority classifier
const Kind = "baseline"

// Majority predicts the most frequent training label for every row.
// Ties go to the smaller label.
type Majority struct {
	Class  int  `json:"class"`
	Fitted bool `json:"fitted"`
}

// New creates an unfitted majority classifier
func New() *Majority {
	return &Majority{}
}

func (m *Majority) Kind() string {
	return Kind
}

func (m *Majority) Params() map[string]string {
	return map[string]string{"strategy": "most_frequent"}
}

func (m *Majority) Fit(ctx context.Context, X [][]float64, y []int) error {
	if len(y) == 0 {
		return errors.New("cannot fit on empty data")
	}
	counts := make(map[int]int)
	for _, v := range y {
		counts[v]++
	}
	best, bestCount := 0, -1
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	m.Class = best
	m.Fitted = true
	return nil
}

func (m *Majority) Predict(X [][]float64) ([]int, error) {
	if !m.Fitted {
		return nil, errors.New("classifier is not fitted")
	}
	out := make([]int, len(X))
	for i := range out {
		out[i] = m.Class
	}
	return out, nil
}
