package features

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"pdmflow/internal/model"
	"pdmflow/pkg/config"
	"pdmflow/pkg/dataset"
	"pdmflow/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Column names of the assembled frame that never become features
const (
	ColMachineID = "machineID"
	ColDatetime  = "datetime"
	ColLabel     = "failure_in_next_24h"
	ColModel     = "model"
	ColAge       = "age"
	ColHour      = "hour"

	errorColumnPrefix = "error"
)

// Options feature derivation options
type Options struct {
	Window      int
	MinPeriods  int
	Parallelism int
	Channels    []string // telemetry channels to aggregate, defaults to all four
}

// OptionsFromConfig builds options from the features config section
func OptionsFromConfig(cfg config.FeaturesConfig) Options {
	return Options{
		Window:      cfg.Window,
		MinPeriods:  cfg.MinPeriods,
		Parallelism: cfg.Parallelism,
	}
}

// RowKey identifies the reading a matrix row was derived from
type RowKey struct {
	MachineID int
	Timestamp time.Time
}

// Matrix feature matrix X with label vector y, index aligned
type Matrix struct {
	Columns    []string
	Rows       [][]float64
	Labels     []int
	Keys       []RowKey
	Categories CategoryMap
}

// Len returns the number of rows
func (m *Matrix) Len() int {
	return len(m.Rows)
}

// Column returns the values of a named column, or nil if it does not exist.
func (m *Matrix) Column(name string) []float64 {
	idx := -1
	for i, c := range m.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		out[i] = row[idx]
	}
	return out
}

// Subset returns a matrix holding the given rows, sharing row storage.
func (m *Matrix) Subset(indices []int) *Matrix {
	sub := &Matrix{
		Columns:    m.Columns,
		Rows:       make([][]float64, len(indices)),
		Labels:     make([]int, len(indices)),
		Categories: m.Categories,
	}
	if m.Keys != nil {
		sub.Keys = make([]RowKey, len(indices))
	}
	for i, idx := range indices {
		sub.Rows[i] = m.Rows[idx]
		sub.Labels[i] = m.Labels[idx]
		if m.Keys != nil {
			sub.Keys[i] = m.Keys[idx]
		}
	}
	return sub
}

// Deriver computes per-machine rolling statistics and assembles X and y
type Deriver struct {
	opts Options
	log  *logger.Logger
}

// NewDeriver creates a deriver. Zero options take window 3, min periods 1.
func NewDeriver(opts Options, log *logger.Logger) *Deriver {
	if opts.Window <= 0 {
		opts.Window = config.DefaultRollingWindow
	}
	if opts.MinPeriods <= 0 {
		opts.MinPeriods = config.DefaultMinPeriods
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if len(opts.Channels) == 0 {
		opts.Channels = model.Channels
	}
	return &Deriver{opts: opts, log: log}
}

// Columns returns the feature column names in matrix order
func (d *Deriver) Columns() []string {
	return selectFeatureColumns(d.frameColumns())
}

// frameColumns lists every column of the assembled frame, identifiers and
// label included.
func (d *Deriver) frameColumns() []string {
	cols := []string{ColDatetime, ColMachineID}
	cols = append(cols, d.opts.Channels...)
	cols = append(cols, ColModel, ColAge)
	for _, ch := range d.opts.Channels {
		cols = append(cols,
			fmt.Sprintf("%s_rolling_mean_%d", ch, d.opts.Window),
			fmt.Sprintf("%s_rolling_std_%d", ch, d.opts.Window),
		)
	}
	return append(cols, ColLabel, ColHour)
}

func selectFeatureColumns(frame []string) []string {
	out := make([]string, 0, len(frame))
	for _, c := range frame {
		if c == ColMachineID || c == ColDatetime || c == ColLabel {
			continue
		}
		if strings.HasPrefix(c, errorColumnPrefix) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Derive sorts a copy of labeled by (machine id, timestamp) and returns the
// feature matrix in that order. Model codes are assigned lexicographically
// from the values present.
func (d *Deriver) Derive(ctx context.Context, labeled []model.LabeledReading) (*Matrix, error) {
	values := make([]string, 0, len(labeled))
	for i := range labeled {
		if labeled[i].HasMetadata {
			values = append(values, labeled[i].Model)
		}
	}
	return d.DeriveWithCategories(ctx, labeled, NewCategoryMap(values))
}

// DeriveWithCategories is Derive with a fixed category mapping, used when
// features must line up with a previously trained model.
func (d *Deriver) DeriveWithCategories(ctx context.Context, labeled []model.LabeledReading, categories CategoryMap) (*Matrix, error) {
	for _, ch := range d.opts.Channels {
		var probe model.Reading
		if _, ok := probe.Channel(ch); !ok {
			return nil, &dataset.SchemaError{Table: dataset.TableTelemetry, Column: ch}
		}
	}

	sorted := make([]model.LabeledReading, len(labeled))
	copy(sorted, labeled)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].MachineID != sorted[b].MachineID {
			return sorted[a].MachineID < sorted[b].MachineID
		}
		return sorted[a].Timestamp.Before(sorted[b].Timestamp)
	})

	columns := d.Columns()
	m := &Matrix{
		Columns:    columns,
		Rows:       make([][]float64, len(sorted)),
		Labels:     make([]int, len(sorted)),
		Keys:       make([]RowKey, len(sorted)),
		Categories: categories,
	}

	parts := model.PartitionByMachine(len(sorted), func(i int) int {
		return sorted[i].MachineID
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Parallelism)
	for _, part := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d.derivePartition(part, sorted, categories, m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.log.InfoCtx(ctx, "Derived feature matrix: rows=%d columns=%d machines=%d categories=%v",
		m.Len(), len(columns), len(parts), categories.Names())
	return m, nil
}

// derivePartition fills the rows of one machine. Rolling windows only ever
// see this machine's readings.
func (d *Deriver) derivePartition(part model.Partition, sorted []model.LabeledReading, categories CategoryMap, m *Matrix) {
	n := len(part.Indices)
	means := make([][]float64, len(d.opts.Channels))
	stds := make([][]float64, len(d.opts.Channels))
	series := make([]float64, n)
	for c, ch := range d.opts.Channels {
		for k, idx := range part.Indices {
			series[k], _ = sorted[idx].Channel(ch)
		}
		means[c] = RollingMean(series, d.opts.Window, d.opts.MinPeriods)
		stds[c] = RollingStd(series, d.opts.Window, d.opts.MinPeriods)
	}

	width := len(m.Columns)
	for k, idx := range part.Indices {
		lr := &sorted[idx]
		row := make([]float64, 0, width)
		for _, ch := range d.opts.Channels {
			v, _ := lr.Channel(ch)
			row = append(row, v)
		}

		code := MissingCategory
		if lr.HasMetadata {
			code = categories.Code(lr.Model)
		}
		row = append(row, float64(code), float64(lr.Age))

		for c := range d.opts.Channels {
			row = append(row, means[c][k], stds[c][k])
		}
		row = append(row, float64(lr.Timestamp.Hour()))

		for j, v := range row {
			if math.IsNaN(v) {
				row[j] = 0
			}
		}

		m.Rows[idx] = row
		m.Labels[idx] = lr.Label
		m.Keys[idx] = RowKey{MachineID: lr.MachineID, Timestamp: lr.Timestamp}
	}
}
