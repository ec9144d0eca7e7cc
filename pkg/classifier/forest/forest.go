package forest

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	randomforest "github.com/malaschitz/randomForest"
)

// Kind registry name of the random forest
const Kind = "forest"

// Config random forest hyperparameters
type Config struct {
	NEstimators int   `json:"n_estimators"`
	Seed        int64 `json:"seed"`
}

// Forest wraps a randomForest.Forest. The library votes over classes
// 0..k-1, so labels are encoded into that range on Fit and decoded back on
// Predict. Tree growth draws from the global math/rand source, so Seed is
// recorded but does not make fitting reproducible.
type Forest struct {
	Config    Config
	Classes   []int
	NFeatures int

	model *randomforest.Forest
}

// state is the JSON form of a fitted forest. Trees travel as the gob
// encoding of the library's own struct.
type state struct {
	Config    Config `json:"config"`
	Classes   []int  `json:"classes"`
	NFeatures int    `json:"n_features"`
	Trees     []byte `json:"trees,omitempty"`
}

// New creates an unfitted forest
func New(cfg Config) *Forest {
	if cfg.NEstimators <= 0 {
		cfg.NEstimators = 100
	}
	return &Forest{Config: cfg}
}

// Kind implements interfaces.Classifier
func (f *Forest) Kind() string {
	return Kind
}

// Params implements interfaces.Classifier
func (f *Forest) Params() map[string]string {
	return map[string]string{
		"n_estimators": strconv.Itoa(f.Config.NEstimators),
		"max_features": "sqrt",
		"random_state": strconv.FormatInt(f.Config.Seed, 10),
	}
}

// Fit implements interfaces.Classifier
func (f *Forest) Fit(ctx context.Context, X [][]float64, y []int) error {
	if len(X) == 0 {
		return errors.New("cannot fit on empty data")
	}
	if len(X) != len(y) {
		return fmt.Errorf("X has %d rows but y has %d labels", len(X), len(y))
	}
	nFeatures := len(X[0])
	if nFeatures == 0 {
		return errors.New("cannot fit without features")
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), nFeatures)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	classes, encoded := encodeClasses(y)
	m := &randomforest.Forest{}
	m.Data = randomforest.ForestData{X: X, Class: encoded}
	m.Train(f.Config.NEstimators)
	// training rows are not part of the model
	m.Data = randomforest.ForestData{}

	f.Classes = classes
	f.NFeatures = nFeatures
	f.model = m
	return nil
}

// PredictProba returns the forest's vote shares. Columns follow f.Classes.
func (f *Forest) PredictProba(X [][]float64) ([][]float64, error) {
	if f.model == nil {
		return nil, errors.New("forest is not fitted")
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		if len(x) != f.NFeatures {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(x), f.NFeatures)
		}
		votes := f.model.Vote(x)
		p := make([]float64, len(f.Classes))
		copy(p, votes)
		out[i] = p
	}
	return out, nil
}

// Predict implements interfaces.Classifier. Ties go to the smaller class.
func (f *Forest) Predict(X [][]float64) ([]int, error) {
	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		best := 0
		for c := 1; c < len(p); c++ {
			if p[c] > p[best] {
				best = c
			}
		}
		out[i] = f.Classes[best]
	}
	return out, nil
}

// MarshalJSON implements json.Marshaler
func (f *Forest) MarshalJSON() ([]byte, error) {
	s := state{Config: f.Config, Classes: f.Classes, NFeatures: f.NFeatures}
	if f.model != nil {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(f.model); err != nil {
			return nil, fmt.Errorf("failed to encode trees: %w", err)
		}
		s.Trees = buf.Bytes()
	}
	return json.Marshal(&s)
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Forest) UnmarshalJSON(data []byte) error {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	f.Config = s.Config
	f.Classes = s.Classes
	f.NFeatures = s.NFeatures
	f.model = nil
	if len(s.Trees) == 0 {
		return nil
	}
	m := &randomforest.Forest{}
	if err := gob.NewDecoder(bytes.NewReader(s.Trees)).Decode(m); err != nil {
		return fmt.Errorf("failed to decode trees: %w", err)
	}
	f.model = m
	return nil
}

// encodeClasses maps labels to indices 0..k-1 in ascending label order.
func encodeClasses(y []int) ([]int, []int) {
	seen := make(map[int]struct{})
	for _, v := range y {
		seen[v] = struct{}{}
	}
	classes := make([]int, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Ints(classes)

	index := make(map[int]int, len(classes))
	for i, v := range classes {
		index[v] = i
	}
	encoded := make([]int, len(y))
	for i, v := range y {
		encoded[i] = index[v]
	}
	return classes, encoded
}
