package labeling

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"pdmflow/internal/model"
	"pdmflow/pkg/config"
	"pdmflow/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc receives the number of labeled readings so far and the total.
type ProgressFunc func(done, total int)

// Options labeling options
type Options struct {
	Horizon     int           // lookahead slots including t itself
	Step        time.Duration // spacing between consecutive readings
	Parallelism int           // machine partitions labeled concurrently
	Progress    ProgressFunc
}

// OptionsFromConfig builds options from the labeling config section
func OptionsFromConfig(cfg config.LabelingConfig) Options {
	return Options{
		Horizon:     cfg.Horizon,
		Step:        cfg.Step,
		Parallelism: cfg.Parallelism,
	}
}

// Labeler marks each reading with whether its machine fails within the
// lookahead window {t, t+step, ..., t+(horizon-1)*step}.
type Labeler struct {
	opts Options
	log  *logger.Logger
}

// NewLabeler creates a labeler. Zero options take the 24 x 1h defaults.
func NewLabeler(opts Options, log *logger.Logger) *Labeler {
	if opts.Horizon <= 0 {
		opts.Horizon = config.DefaultLabelHorizon
	}
	if opts.Step <= 0 {
		opts.Step = config.DefaultLabelStep
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Labeler{opts: opts, log: log}
}

// Label returns one labeled reading per input reading, index aligned with
// readings. Readings of each machine must appear in strictly increasing
// timestamp order, exactly one step apart; otherwise a *DataQualityError is
// returned for the lowest offending machine id.
func (l *Labeler) Label(ctx context.Context, readings []model.Reading, failures []model.FailureEvent) ([]model.LabeledReading, error) {
	failureSets := make(map[int]map[int64]struct{})
	for _, f := range failures {
		set, ok := failureSets[f.MachineID]
		if !ok {
			set = make(map[int64]struct{})
			failureSets[f.MachineID] = set
		}
		set[f.Timestamp.UnixNano()] = struct{}{}
	}

	parts := model.PartitionByMachine(len(readings), func(i int) int {
		return readings[i].MachineID
	})

	out := make([]model.LabeledReading, len(readings))
	errs := make([]error, len(parts))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Parallelism)
	for p := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			part := parts[p]
			if err := validate(part, readings, l.opts.Step); err != nil {
				errs[p] = err
				return nil
			}
			labelPartition(part, readings, failureSets[part.MachineID], l.opts, out)

			n := done.Add(int64(len(part.Indices)))
			if l.opts.Progress != nil {
				l.opts.Progress(int(n), len(readings))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	positives := 0
	for i := range out {
		positives += out[i].Label
	}
	l.log.InfoCtx(ctx, "Labeled %d readings across %d machines (%d positive, horizon=%d step=%s)",
		len(out), len(parts), positives, l.opts.Horizon, l.opts.Step)
	return out, nil
}

func validate(part model.Partition, readings []model.Reading, step time.Duration) error {
	for k := 1; k < len(part.Indices); k++ {
		prev := readings[part.Indices[k-1]].Timestamp
		cur := readings[part.Indices[k]].Timestamp
		if cur.Sub(prev) != step {
			return &DataQualityError{
				MachineID: part.MachineID,
				Previous:  prev,
				Current:   cur,
				Step:      step,
			}
		}
	}
	return nil
}

// labelPartition checks horizon slots per reading against the machine's
// failure set, so the cost is O(R*horizon + F) for the machine.
func labelPartition(part model.Partition, readings []model.Reading, failures map[int64]struct{}, opts Options, out []model.LabeledReading) {
	for _, idx := range part.Indices {
		rd := readings[idx]
		out[idx] = model.LabeledReading{Reading: rd}
		if len(failures) == 0 {
			continue
		}
		base := rd.Timestamp.UnixNano()
		for k := 0; k < opts.Horizon; k++ {
			if _, ok := failures[base+int64(k)*int64(opts.Step)]; ok {
				out[idx].Label = 1
				break
			}
		}
	}
}

// AttachMetadata joins machine metadata onto labeled readings in place.
// Readings of machines without metadata keep an empty model and age 0.
func AttachMetadata(labeled []model.LabeledReading, machines []model.Machine) {
	byID := make(map[int]model.Machine, len(machines))
	for _, m := range machines {
		byID[m.MachineID] = m
	}
	for i := range labeled {
		if m, ok := byID[labeled[i].MachineID]; ok {
			labeled[i].Model = m.Model
			labeled[i].Age = m.Age
			labeled[i].HasMetadata = true
		}
	}
}

// SortReadings orders readings by (machine id, timestamp) in place.
func SortReadings(readings []model.Reading) {
	sort.SliceStable(readings, func(a, b int) bool {
		if readings[a].MachineID != readings[b].MachineID {
			return readings[a].MachineID < readings[b].MachineID
		}
		return readings[a].Timestamp.Before(readings[b].Timestamp)
	})
}
