package training

import (
	"sort"
	"strconv"
)

// Accuracy fraction of matching labels, 0 for empty input
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	ok := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			ok++
		}
	}
	return float64(ok) / float64(len(yTrue))
}

// ClassScores precision, recall and F1 of one class
type ClassScores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// scoresFor computes one-vs-rest scores for label. Undefined ratios are 0.
func scoresFor(yTrue, yPred []int, label int) ClassScores {
	var tp, fp, fn int
	for i := range yTrue {
		switch {
		case yPred[i] == label && yTrue[i] == label:
			tp++
		case yPred[i] == label:
			fp++
		case yTrue[i] == label:
			fn++
		}
	}
	s := ClassScores{Support: tp + fn}
	if tp+fp > 0 {
		s.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		s.Recall = float64(tp) / float64(tp+fn)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

// F1 binary F1 score of the positive class 1
func F1(yTrue, yPred []int) float64 {
	return scoresFor(yTrue, yPred, 1).F1
}

// ClassificationReport per-class scores with macro and weighted averages
type ClassificationReport struct {
	Classes     map[string]ClassScores `json:"classes"`
	Accuracy    float64                `json:"accuracy"`
	MacroAvg    ClassScores            `json:"macro avg"`
	WeightedAvg ClassScores            `json:"weighted avg"`
}

// NewClassificationReport scores every label seen in yTrue or yPred
func NewClassificationReport(yTrue, yPred []int) *ClassificationReport {
	seen := make(map[int]struct{})
	for i := range yTrue {
		seen[yTrue[i]] = struct{}{}
		seen[yPred[i]] = struct{}{}
	}
	labels := make([]int, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	r := &ClassificationReport{
		Classes:  make(map[string]ClassScores, len(labels)),
		Accuracy: Accuracy(yTrue, yPred),
	}
	total := len(yTrue)
	for _, l := range labels {
		s := scoresFor(yTrue, yPred, l)
		r.Classes[strconv.Itoa(l)] = s

		n := float64(len(labels))
		r.MacroAvg.Precision += s.Precision / n
		r.MacroAvg.Recall += s.Recall / n
		r.MacroAvg.F1 += s.F1 / n
		if total > 0 {
			w := float64(s.Support) / float64(total)
			r.WeightedAvg.Precision += s.Precision * w
			r.WeightedAvg.Recall += s.Recall * w
			r.WeightedAvg.F1 += s.F1 * w
		}
	}
	r.MacroAvg.Support = total
	r.WeightedAvg.Support = total
	return r
}

// ConfusionMatrix counts[i][j] = rows of true labels[i] predicted as labels[j]
type ConfusionMatrix struct {
	Labels []int   `json:"labels"`
	Counts [][]int `json:"counts"`
}

// NewConfusionMatrix builds a confusion matrix over labels
func NewConfusionMatrix(yTrue, yPred []int, labels []int) *ConfusionMatrix {
	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	cm := &ConfusionMatrix{Labels: labels, Counts: make([][]int, len(labels))}
	for i := range cm.Counts {
		cm.Counts[i] = make([]int, len(labels))
	}
	for i := range yTrue {
		t, okT := pos[yTrue[i]]
		p, okP := pos[yPred[i]]
		if okT && okP {
			cm.Counts[t][p]++
		}
	}
	return cm
}
