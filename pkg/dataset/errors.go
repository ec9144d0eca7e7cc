package dataset

import (
	"fmt"
)

// LoadError a table could not be read or parsed. No partial dataset is
// returned alongside it.
type LoadError struct {
	Table string
	File  string
	Row   int // 1-based data row, 0 when the failure is not row specific
	Err   error
}

func (e *LoadError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("failed to load %s table from %s (row %d): %v", e.Table, e.File, e.Row, e.Err)
	}
	return fmt.Sprintf("failed to load %s table from %s: %v", e.Table, e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SchemaError an expected column is missing
type SchemaError struct {
	Table  string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema validation failed: %s table is missing column %q", e.Table, e.Column)
}
