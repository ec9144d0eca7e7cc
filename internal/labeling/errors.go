package labeling

import (
	"fmt"
	"time"
)

// DataQualityError a machine's telemetry is not a strictly increasing
// sequence spaced exactly one step apart, so lookahead slots would not line
// up with rows.
type DataQualityError struct {
	MachineID int
	Previous  time.Time
	Current   time.Time
	Step      time.Duration
}

func (e *DataQualityError) Error() string {
	gap := e.Current.Sub(e.Previous)
	reason := "irregular spacing"
	switch {
	case gap == 0:
		reason = "duplicate timestamp"
	case gap < 0:
		reason = "non-monotonic timestamps"
	}
	return fmt.Sprintf("data quality check failed for machine %d: %s between %s and %s (gap %s, expected %s)",
		e.MachineID, reason,
		e.Previous.Format(time.RFC3339), e.Current.Format(time.RFC3339), gap, e.Step)
}
