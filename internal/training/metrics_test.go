package training

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccuracyAndF1(t *testing.T) {
	yTrue := []int{1, 1, 0, 0}
	yPred := []int{1, 0, 0, 1}
	assert.InDelta(t, 0.5, Accuracy(yTrue, yPred), 1e-12)
	assert.InDelta(t, 0.5, F1(yTrue, yPred), 1e-12)

	assert.Equal(t, 0.0, Accuracy(nil, nil))
	// no positives anywhere
	assert.Equal(t, 0.0, F1([]int{0, 0}, []int{0, 0}))
	assert.Equal(t, 1.0, F1([]int{1, 0}, []int{1, 0}))
}

func TestClassificationReport(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1}
	yPred := []int{0, 0, 1, 1, 0}
	r := NewClassificationReport(yTrue, yPred)

	require.Contains(t, r.Classes, "0")
	require.Contains(t, r.Classes, "1")
	c0, c1 := r.Classes["0"], r.Classes["1"]

	assert.InDelta(t, 2.0/3, c0.Precision, 1e-12)
	assert.InDelta(t, 2.0/3, c0.Recall, 1e-12)
	assert.Equal(t, 3, c0.Support)
	assert.InDelta(t, 0.5, c1.Precision, 1e-12)
	assert.InDelta(t, 0.5, c1.Recall, 1e-12)
	assert.Equal(t, 2, c1.Support)

	assert.InDelta(t, 0.6, r.Accuracy, 1e-12)
	assert.InDelta(t, (2.0/3+0.5)/2, r.MacroAvg.F1, 1e-12)
	assert.InDelta(t, (2.0/3)*0.6+0.5*0.4, r.WeightedAvg.F1, 1e-12)
	assert.Equal(t, 5, r.MacroAvg.Support)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"macro avg"`)
	assert.Contains(t, string(data), `"f1-score"`)
}

func TestClassificationReport_PredictedOnlyLabel(t *testing.T) {
	r := NewClassificationReport([]int{0, 0}, []int{0, 1})
	require.Contains(t, r.Classes, "1")
	assert.Equal(t, 0, r.Classes["1"].Support)
	assert.Equal(t, 0.0, r.Classes["1"].F1)
	assert.False(t, math.IsNaN(r.MacroAvg.Precision))
}

func TestConfusionMatrix(t *testing.T) {
	cm := NewConfusionMatrix([]int{1, 1, 0, 0, 0}, []int{1, 0, 0, 1, 0}, []int{0, 1})
	assert.Equal(t, [][]int{{2, 1}, {1, 1}}, cm.Counts)

	// labels outside the matrix are ignored
	cm = NewConfusionMatrix([]int{2, 0}, []int{0, 0}, []int{0, 1})
	assert.Equal(t, [][]int{{1, 0}, {0, 0}}, cm.Counts)
}
