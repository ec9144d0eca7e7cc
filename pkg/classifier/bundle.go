package classifier

import (
	"encoding/json"
	"fmt"

	"pdmflow/pkg/classifier/baseline"
	"pdmflow/pkg/classifier/forest"
	"pdmflow/pkg/config"
	"pdmflow/pkg/interfaces"
)

// New builds an unfitted classifier from training config
func New(cfg config.TrainingConfig) (interfaces.Classifier, error) {
	switch cfg.Classifier {
	case forest.Kind, "":
		return forest.New(forest.Config{NEstimators: cfg.NEstimators, Seed: cfg.Seed}), nil
	case baseline.Kind:
		return baseline.New(), nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", cfg.Classifier)
	}
}

func empty(kind string) (interfaces.Classifier, error) {
	switch kind {
	case forest.Kind:
		return &forest.Forest{}, nil
	case baseline.Kind:
		return &baseline.Majority{}, nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", kind)
	}
}

// Bundle is the serialized form of a trained model: classifier state plus
// everything needed to build its input rows.
type Bundle struct {
	Kind         string            `json:"kind"`
	FeatureNames []string          `json:"feature_names"`
	Categories   map[string]int    `json:"categories"`
	Params       map[string]string `json:"params"`
	State        json.RawMessage   `json:"state"`
}

// Model a decoded bundle ready for inference
type Model struct {
	Bundle
	Classifier interfaces.Classifier
}

// Marshal encodes a fitted classifier with its feature names and category mapping
func Marshal(c interfaces.Classifier, featureNames []string, categories map[string]int) ([]byte, error) {
	state, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode classifier state: %w", err)
	}
	return json.Marshal(&Bundle{
		Kind:         c.Kind(),
		FeatureNames: featureNames,
		Categories:   categories,
		Params:       c.Params(),
		State:        state,
	})
}

// Unmarshal decodes a bundle produced by Marshal
func Unmarshal(data []byte) (*Model, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode model bundle: %w", err)
	}
	c, err := empty(b.Kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b.State, c); err != nil {
		return nil, fmt.Errorf("failed to decode %s state: %w", b.Kind, err)
	}
	return &Model{Bundle: b, Classifier: c}, nil
}

// Vectorize orders record values by the model's feature names. Every
// feature must be present.
func (m *Model) Vectorize(records []map[string]float64) ([][]float64, error) {
	X := make([][]float64, len(records))
	for i, rec := range records {
		row := make([]float64, len(m.FeatureNames))
		for j, name := range m.FeatureNames {
			v, ok := rec[name]
			if !ok {
				return nil, fmt.Errorf("record %d is missing feature %q", i, name)
			}
			row[j] = v
		}
		X[i] = row
	}
	return X, nil
}

// PredictRecords vectorizes records and predicts them
func (m *Model) PredictRecords(records []map[string]float64) ([]int, error) {
	X, err := m.Vectorize(records)
	if err != nil {
		return nil, err
	}
	return m.Classifier.Predict(X)
}
