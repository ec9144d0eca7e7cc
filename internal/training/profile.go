package training

import (
	"math"
	"strconv"

	"pdmflow/internal/features"
	"pdmflow/internal/model"
)

// ColumnProfile summary statistics of one column
type ColumnProfile struct {
	Count   int     `json:"count"`
	Missing int     `json:"missing"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// DataProfile data validation report of the training frame
type DataProfile struct {
	NumRows           int                      `json:"num_rows"`
	NumColumns        int                      `json:"num_columns"`
	MissingValuesPct  float64                  `json:"missing_values_pct"`
	LabelDistribution map[string]int           `json:"label_distribution"`
	Columns           map[string]ColumnProfile `json:"columns"`
}

// Profile summarizes every feature column plus the label column.
func Profile(columns []string, rows [][]float64, labels []int, labelColumn string) *DataProfile {
	p := &DataProfile{
		NumRows:           len(rows),
		NumColumns:        len(columns) + 1,
		LabelDistribution: make(map[string]int),
		Columns:           make(map[string]ColumnProfile, len(columns)+1),
	}

	missing := 0
	values := make([]float64, len(rows))
	for j, name := range columns {
		for i, row := range rows {
			values[i] = row[j]
		}
		cp := profileColumn(values)
		missing += cp.Missing
		p.Columns[name] = cp
	}

	labelValues := make([]float64, len(labels))
	for i, l := range labels {
		labelValues[i] = float64(l)
		p.LabelDistribution[strconv.Itoa(l)]++
	}
	p.Columns[labelColumn] = profileColumn(labelValues)

	if cells := p.NumRows * p.NumColumns; cells > 0 {
		p.MissingValuesPct = 100 * float64(missing) / float64(cells)
	}
	return p
}

// ProfileFrame summarizes the labeled frame as it looks after the metadata
// join and before any feature work: datetime, machineID, the telemetry
// channels, the label, model and age. Readings of machines without a
// metadata row count as missing in model and age.
func ProfileFrame(labeled []model.LabeledReading) *DataProfile {
	n := len(labeled)
	p := &DataProfile{
		NumRows:           n,
		LabelDistribution: make(map[string]int),
		Columns:           make(map[string]ColumnProfile, len(model.Channels)+5),
	}

	withMetadata := 0
	for i := range labeled {
		if labeled[i].HasMetadata {
			withMetadata++
		}
	}
	p.Columns[features.ColDatetime] = ColumnProfile{Count: n}
	p.Columns[features.ColModel] = ColumnProfile{Count: withMetadata, Missing: n - withMetadata}

	values := make([]float64, n)
	numeric := func(name string, value func(r *model.LabeledReading) float64) {
		for i := range labeled {
			values[i] = value(&labeled[i])
		}
		p.Columns[name] = profileColumn(values)
	}
	numeric(features.ColMachineID, func(r *model.LabeledReading) float64 {
		return float64(r.MachineID)
	})
	for _, ch := range model.Channels {
		numeric(ch, func(r *model.LabeledReading) float64 {
			v, ok := r.Channel(ch)
			if !ok {
				return math.NaN()
			}
			return v
		})
	}
	numeric(features.ColLabel, func(r *model.LabeledReading) float64 {
		return float64(r.Label)
	})
	numeric(features.ColAge, func(r *model.LabeledReading) float64 {
		if !r.HasMetadata {
			return math.NaN()
		}
		return float64(r.Age)
	})

	for i := range labeled {
		p.LabelDistribution[strconv.Itoa(labeled[i].Label)]++
	}

	p.NumColumns = len(p.Columns)
	missing := 0
	for _, cp := range p.Columns {
		missing += cp.Missing
	}
	if cells := p.NumRows * p.NumColumns; cells > 0 {
		p.MissingValuesPct = 100 * float64(missing) / float64(cells)
	}
	return p
}

func profileColumn(values []float64) ColumnProfile {
	cp := ColumnProfile{Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for _, v := range values {
		if math.IsNaN(v) {
			cp.Missing++
			continue
		}
		cp.Count++
		sum += v
		cp.Min = math.Min(cp.Min, v)
		cp.Max = math.Max(cp.Max, v)
	}
	if cp.Count == 0 {
		cp.Min, cp.Max = 0, 0
		return cp
	}
	cp.Mean = sum / float64(cp.Count)
	if cp.Count > 1 {
		ss := 0.0
		for _, v := range values {
			if !math.IsNaN(v) {
				d := v - cp.Mean
				ss += d * d
			}
		}
		cp.Std = math.Sqrt(ss / float64(cp.Count-1))
	}
	return cp
}
