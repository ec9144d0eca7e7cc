package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pdmflow/internal/model"
	"pdmflow/pkg/config"
	"pdmflow/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Table names used in errors and logs
const (
	TableTelemetry   = "telemetry"
	TableErrors      = "errors"
	TableMaintenance = "maintenance"
	TableFailures    = "failures"
	TableMachines    = "machines"
)

// Column names of the PdM tables
const (
	ColDatetime  = "datetime"
	ColMachineID = "machineID"
	ColErrorID   = "errorID"
	ColComp      = "comp"
	ColFailure   = "failure"
	ColModel     = "model"
	ColAge       = "age"
)

// Loader reads the five PdM tables from a directory
type Loader struct {
	cfg config.DatasetConfig
	log *logger.Logger
}

// NewLoader creates a loader
func NewLoader(cfg config.DatasetConfig, log *logger.Logger) *Loader {
	return &Loader{cfg: cfg, log: log}
}

// Load reads all tables concurrently. The first failure cancels the rest and
// no dataset is returned.
func (l *Loader) Load(ctx context.Context) (*model.Dataset, error) {
	ds := &model.Dataset{}
	layouts := l.cfg.TimeLayouts
	if len(layouts) == 0 {
		layouts = config.DefaultTimeLayouts
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.readFile(gctx, TableTelemetry, l.cfg.Telemetry, func(r io.Reader) (err error) {
			ds.Telemetry, err = ReadTelemetry(r, layouts)
			return err
		})
	})
	g.Go(func() error {
		return l.readFile(gctx, TableErrors, l.cfg.Errors, func(r io.Reader) (err error) {
			ds.Errors, err = ReadErrors(r, layouts)
			return err
		})
	})
	g.Go(func() error {
		return l.readFile(gctx, TableMaintenance, l.cfg.Maintenance, func(r io.Reader) (err error) {
			ds.Maintenance, err = ReadMaintenance(r, layouts)
			return err
		})
	})
	g.Go(func() error {
		return l.readFile(gctx, TableFailures, l.cfg.Failures, func(r io.Reader) (err error) {
			ds.Failures, err = ReadFailures(r, layouts)
			return err
		})
	})
	g.Go(func() error {
		return l.readFile(gctx, TableMachines, l.cfg.Machines, func(r io.Reader) (err error) {
			ds.Machines, err = ReadMachines(r)
			return err
		})
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.log.InfoCtx(ctx, "Loaded dataset from %s: telemetry=%d errors=%d maintenance=%d failures=%d machines=%d",
		l.cfg.Dir, len(ds.Telemetry), len(ds.Errors), len(ds.Maintenance), len(ds.Failures), len(ds.Machines))
	return ds, nil
}

func (l *Loader) readFile(ctx context.Context, table, name string, read func(io.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(l.cfg.Dir, name)
	f, err := os.Open(path)
	if err != nil {
		return &LoadError{Table: table, File: path, Err: err}
	}
	defer f.Close()

	if err := read(f); err != nil {
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			return err
		}
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			loadErr.Table = table
			loadErr.File = path
			return loadErr
		}
		return &LoadError{Table: table, File: path, Err: err}
	}
	return nil
}

// table is a parsed CSV with a column index
type table struct {
	name    string
	columns map[string]int
	rows    [][]string
}

func readTable(r io.Reader, name string, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &LoadError{Table: name, Err: errors.New("empty file")}
	}
	if err != nil {
		return nil, &LoadError{Table: name, Err: err}
	}

	t := &table{name: name, columns: make(map[string]int, len(header))}
	for i, col := range header {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		t.columns[col] = i
	}
	for _, col := range required {
		if _, ok := t.columns[col]; !ok {
			return nil, &SchemaError{Table: name, Column: col}
		}
	}

	rows, err := cr.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &LoadError{Table: name, Row: parseErr.StartLine - 1, Err: err}
		}
		return nil, &LoadError{Table: name, Err: err}
	}
	t.rows = rows
	return t, nil
}

func (t *table) str(row []string, col string) string {
	return strings.TrimSpace(row[t.columns[col]])
}

func (t *table) parseInt(i int, row []string, col string) (int, error) {
	v, err := strconv.Atoi(t.str(row, col))
	if err != nil {
		return 0, &LoadError{Table: t.name, Row: i + 1, Err: fmt.Errorf("column %s: %w", col, err)}
	}
	return v, nil
}

func (t *table) parseFloat(i int, row []string, col string) (float64, error) {
	v, err := strconv.ParseFloat(t.str(row, col), 64)
	if err != nil {
		return 0, &LoadError{Table: t.name, Row: i + 1, Err: fmt.Errorf("column %s: %w", col, err)}
	}
	return v, nil
}

func (t *table) parseTime(i int, row []string, p *timeParser) (time.Time, error) {
	v, err := p.parse(t.str(row, ColDatetime))
	if err != nil {
		return time.Time{}, &LoadError{Table: t.name, Row: i + 1, Err: fmt.Errorf("column %s: %w", ColDatetime, err)}
	}
	return v, nil
}

// timeParser tries each layout, starting from the last one that matched.
type timeParser struct {
	layouts []string
	last    int
}

func newTimeParser(layouts []string) *timeParser {
	return &timeParser{layouts: layouts}
}

func (p *timeParser) parse(s string) (time.Time, error) {
	n := len(p.layouts)
	for k := 0; k < n; k++ {
		idx := (p.last + k) % n
		if ts, err := time.ParseInLocation(p.layouts[idx], s, time.UTC); err == nil {
			p.last = idx
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}

// ReadTelemetry parses the telemetry table
func ReadTelemetry(r io.Reader, layouts []string) ([]model.Reading, error) {
	required := append([]string{ColDatetime, ColMachineID}, model.Channels...)
	t, err := readTable(r, TableTelemetry, required...)
	if err != nil {
		return nil, err
	}

	tp := newTimeParser(layouts)
	out := make([]model.Reading, 0, len(t.rows))
	for i, row := range t.rows {
		var rd model.Reading
		if rd.Timestamp, err = t.parseTime(i, row, tp); err != nil {
			return nil, err
		}
		if rd.MachineID, err = t.parseInt(i, row, ColMachineID); err != nil {
			return nil, err
		}
		if rd.Volt, err = t.parseFloat(i, row, model.ChannelVolt); err != nil {
			return nil, err
		}
		if rd.Rotate, err = t.parseFloat(i, row, model.ChannelRotate); err != nil {
			return nil, err
		}
		if rd.Pressure, err = t.parseFloat(i, row, model.ChannelPressure); err != nil {
			return nil, err
		}
		if rd.Vibration, err = t.parseFloat(i, row, model.ChannelVibration); err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, nil
}

// ReadErrors parses the error events table
func ReadErrors(r io.Reader, layouts []string) ([]model.ErrorEvent, error) {
	t, err := readTable(r, TableErrors, ColDatetime, ColMachineID, ColErrorID)
	if err != nil {
		return nil, err
	}

	tp := newTimeParser(layouts)
	out := make([]model.ErrorEvent, 0, len(t.rows))
	for i, row := range t.rows {
		ev := model.ErrorEvent{ErrorID: t.str(row, ColErrorID)}
		if ev.Timestamp, err = t.parseTime(i, row, tp); err != nil {
			return nil, err
		}
		if ev.MachineID, err = t.parseInt(i, row, ColMachineID); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// ReadMaintenance parses the maintenance events table
func ReadMaintenance(r io.Reader, layouts []string) ([]model.MaintenanceEvent, error) {
	t, err := readTable(r, TableMaintenance, ColDatetime, ColMachineID, ColComp)
	if err != nil {
		return nil, err
	}

	tp := newTimeParser(layouts)
	out := make([]model.MaintenanceEvent, 0, len(t.rows))
	for i, row := range t.rows {
		ev := model.MaintenanceEvent{Component: t.str(row, ColComp)}
		if ev.Timestamp, err = t.parseTime(i, row, tp); err != nil {
			return nil, err
		}
		if ev.MachineID, err = t.parseInt(i, row, ColMachineID); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// ReadFailures parses the failure events table
func ReadFailures(r io.Reader, layouts []string) ([]model.FailureEvent, error) {
	t, err := readTable(r, TableFailures, ColDatetime, ColMachineID, ColFailure)
	if err != nil {
		return nil, err
	}

	tp := newTimeParser(layouts)
	out := make([]model.FailureEvent, 0, len(t.rows))
	for i, row := range t.rows {
		ev := model.FailureEvent{Failure: t.str(row, ColFailure)}
		if ev.Timestamp, err = t.parseTime(i, row, tp); err != nil {
			return nil, err
		}
		if ev.MachineID, err = t.parseInt(i, row, ColMachineID); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// ReadMachines parses the machine metadata table
func ReadMachines(r io.Reader) ([]model.Machine, error) {
	t, err := readTable(r, TableMachines, ColMachineID, ColModel, ColAge)
	if err != nil {
		return nil, err
	}

	out := make([]model.Machine, 0, len(t.rows))
	for i, row := range t.rows {
		m := model.Machine{Model: t.str(row, ColModel)}
		if m.MachineID, err = t.parseInt(i, row, ColMachineID); err != nil {
			return nil, err
		}
		if m.Age, err = t.parseInt(i, row, ColAge); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
