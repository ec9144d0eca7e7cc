package training

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// StratifiedSplit partitions row indices into train and test sets keeping
// class proportions. Each class is shuffled with a source seeded once from
// seed and round(testSize*n_class) of its rows go to test. Both index lists
// are returned in ascending order.
func StratifiedSplit(y []int, testSize float64, seed int64) ([]int, []int, error) {
	if len(y) == 0 {
		return nil, nil, errors.New("cannot split an empty label vector")
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.New("test size must be in (0, 1)")
	}

	byClass := make(map[int][]int)
	for i, v := range y {
		byClass[v] = append(byClass[v], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	var train, test []int
	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(testSize * float64(len(idx))))
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	if len(train) == 0 {
		return nil, nil, errors.New("split left no training rows")
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}
