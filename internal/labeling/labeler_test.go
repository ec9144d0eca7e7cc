package labeling

import (
	"context"
	"errors"
	"testing"
	"time"

	"pdmflow/internal/model"
	"pdmflow/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2015, 1, 1, 6, 0, 0, 0, time.UTC)

func hourly(machineID, n int) []model.Reading {
	out := make([]model.Reading, n)
	for i := range out {
		out[i] = model.Reading{
			MachineID: machineID,
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Volt:      float64(i),
		}
	}
	return out
}

func labels(labeled []model.LabeledReading) []int {
	out := make([]int, len(labeled))
	for i := range labeled {
		out[i] = labeled[i].Label
	}
	return out
}

func newTestLabeler() *Labeler {
	return NewLabeler(Options{}, logger.NewNop())
}

func TestLabel_NoFailures(t *testing.T) {
	readings := hourly(1, 48)

	out, err := newTestLabeler().Label(context.Background(), readings, nil)
	require.NoError(t, err)

	require.Len(t, out, 48)
	for i := range out {
		assert.Equal(t, 0, out[i].Label)
		assert.Equal(t, readings[i], out[i].Reading)
	}
}

func TestLabel_WindowBoundaries(t *testing.T) {
	readings := hourly(1, 60)
	failAt := 40 // failure at reading index 40
	failures := []model.FailureEvent{{MachineID: 1, Timestamp: t0.Add(time.Duration(failAt) * time.Hour), Failure: "comp1"}}

	out, err := newTestLabeler().Label(context.Background(), readings, failures)
	require.NoError(t, err)

	for i := range out {
		// window {t..t+23h} contains the failure iff failAt-23 <= i <= failAt
		want := 0
		if i >= failAt-23 && i <= failAt {
			want = 1
		}
		assert.Equal(t, want, out[i].Label, "reading %d", i)
	}
}

func TestLabel_FailureOutsideWindow(t *testing.T) {
	readings := hourly(1, 1)
	failures := []model.FailureEvent{{MachineID: 1, Timestamp: t0.Add(25 * time.Hour)}}

	out, err := newTestLabeler().Label(context.Background(), readings, failures)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, labels(out))
}

func TestLabel_FailureAtT(t *testing.T) {
	readings := hourly(1, 3)
	failures := []model.FailureEvent{{MachineID: 1, Timestamp: t0}}

	out, err := newTestLabeler().Label(context.Background(), readings, failures)
	require.NoError(t, err)
	// past failures never leak into later readings
	assert.Equal(t, []int{1, 0, 0}, labels(out))
}

func TestLabel_OtherMachineFailureIgnored(t *testing.T) {
	readings := append(hourly(1, 5), hourly(2, 5)...)
	failures := []model.FailureEvent{{MachineID: 1, Timestamp: t0.Add(2 * time.Hour)}}

	out, err := newTestLabeler().Label(context.Background(), readings, failures)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 0, 0, 0, 0, 0, 0, 0}, labels(out))
}

func TestLabel_EndOfSeriesBoundary(t *testing.T) {
	// failure one step past the last reading still labels the tail
	readings := hourly(1, 5)
	failures := []model.FailureEvent{{MachineID: 1, Timestamp: t0.Add(5 * time.Hour)}}

	out, err := newTestLabeler().Label(context.Background(), readings, failures)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 1, 1}, labels(out))
}

func TestLabel_CustomHorizon(t *testing.T) {
	readings := hourly(1, 6)
	failures := []model.FailureEvent{{MachineID: 1, Timestamp: t0.Add(4 * time.Hour)}}

	l := NewLabeler(Options{Horizon: 2, Step: time.Hour}, logger.NewNop())
	out, err := l.Label(context.Background(), readings, failures)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 0}, labels(out))
}

func TestLabel_InterleavedMachinesIndexAligned(t *testing.T) {
	a := hourly(1, 3)
	b := hourly(2, 3)
	readings := []model.Reading{a[0], b[0], a[1], b[1], a[2], b[2]}
	failures := []model.FailureEvent{{MachineID: 2, Timestamp: t0.Add(2 * time.Hour)}}

	out, err := newTestLabeler().Label(context.Background(), readings, failures)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 1, 0, 1}, labels(out))
	for i := range readings {
		assert.Equal(t, readings[i].MachineID, out[i].MachineID)
	}
}

func TestLabel_DataQuality(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func([]model.Reading) []model.Reading
		contains string
	}{
		{
			name: "gap",
			mutate: func(r []model.Reading) []model.Reading {
				return append(r[:2], r[3:]...)
			},
			contains: "irregular spacing",
		},
		{
			name: "duplicate",
			mutate: func(r []model.Reading) []model.Reading {
				r[2].Timestamp = r[1].Timestamp
				return r
			},
			contains: "duplicate timestamp",
		},
		{
			name: "non-monotonic",
			mutate: func(r []model.Reading) []model.Reading {
				r[1].Timestamp = r[0].Timestamp.Add(-time.Hour)
				return r
			},
			contains: "non-monotonic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings := append(hourly(1, 5), tt.mutate(hourly(7, 5))...)

			out, err := newTestLabeler().Label(context.Background(), readings, nil)
			assert.Nil(t, out)

			var dqErr *DataQualityError
			require.True(t, errors.As(err, &dqErr))
			assert.Equal(t, 7, dqErr.MachineID)
			assert.Contains(t, err.Error(), "machine 7")
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLabel_DataQualityLowestMachineReported(t *testing.T) {
	bad := func(id int) []model.Reading {
		r := hourly(id, 3)
		r[2].Timestamp = r[1].Timestamp
		return r
	}
	readings := append(append(bad(9), hourly(4, 3)...), bad(5)...)

	l := NewLabeler(Options{Parallelism: 4}, logger.NewNop())
	_, err := l.Label(context.Background(), readings, nil)

	var dqErr *DataQualityError
	require.True(t, errors.As(err, &dqErr))
	assert.Equal(t, 5, dqErr.MachineID)
}

func TestLabel_Progress(t *testing.T) {
	readings := append(hourly(1, 4), hourly(2, 6)...)
	var last int
	calls := 0

	l := NewLabeler(Options{Parallelism: 1, Progress: func(done, total int) {
		calls++
		last = done
		assert.Equal(t, 10, total)
	}}, logger.NewNop())

	_, err := l.Label(context.Background(), readings, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 10, last)
}

func TestLabel_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestLabeler().Label(ctx, hourly(1, 5), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAttachMetadata(t *testing.T) {
	labeled := []model.LabeledReading{
		{Reading: model.Reading{MachineID: 1}},
		{Reading: model.Reading{MachineID: 2}},
	}

	AttachMetadata(labeled, []model.Machine{{MachineID: 1, Model: "model3", Age: 18}})

	assert.Equal(t, "model3", labeled[0].Model)
	assert.Equal(t, 18, labeled[0].Age)
	assert.True(t, labeled[0].HasMetadata)
	assert.Equal(t, "", labeled[1].Model)
	assert.Equal(t, 0, labeled[1].Age)
	assert.False(t, labeled[1].HasMetadata)
}

func TestSortReadings(t *testing.T) {
	readings := []model.Reading{
		{MachineID: 2, Timestamp: t0.Add(time.Hour)},
		{MachineID: 1, Timestamp: t0.Add(time.Hour)},
		{MachineID: 2, Timestamp: t0},
		{MachineID: 1, Timestamp: t0},
	}

	SortReadings(readings)

	assert.Equal(t, 1, readings[0].MachineID)
	assert.Equal(t, t0, readings[0].Timestamp)
	assert.Equal(t, 1, readings[1].MachineID)
	assert.Equal(t, 2, readings[2].MachineID)
	assert.Equal(t, t0, readings[2].Timestamp)
	assert.Equal(t, t0.Add(time.Hour), readings[3].Timestamp)
}
