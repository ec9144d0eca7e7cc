package interfaces

import (
	"context"
)

// Classifier pluggable learning algorithm
// Implementations must be JSON serializable so a fitted model can be logged
// as an artifact and restored later through the classifier registry.
type Classifier interface {
	// Kind returns the registry name, e.g. "forest"
	Kind() string

	// Fit trains on X (rows of features) and labels y
	Fit(ctx context.Context, X [][]float64, y []int) error

	// Predict returns one label per row of X
	Predict(X [][]float64) ([]int, error)

	// Params returns hyperparameters for experiment tracking
	Params() map[string]string
}
