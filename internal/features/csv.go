package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// WriteCSV writes the matrix with its row keys and label, one row per reading.
func WriteCSV(w io.Writer, m *Matrix) error {
	cw := csv.NewWriter(w)

	header := append([]string{ColMachineID, ColDatetime}, m.Columns...)
	header = append(header, ColLabel)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(header))
	for i, row := range m.Rows {
		record = record[:0]
		if i < len(m.Keys) {
			record = append(record, strconv.Itoa(m.Keys[i].MachineID), m.Keys[i].Timestamp.Format(time.DateTime))
		} else {
			record = append(record, "", "")
		}
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		record = append(record, strconv.Itoa(m.Labels[i]))
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
