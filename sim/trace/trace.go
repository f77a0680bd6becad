package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how rows are written by the CLI.
type OutputFormat string

const (
	// FormatNone writes no rows (summary only).
	FormatNone OutputFormat = "none"
	// FormatText renders one line per row.
	FormatText OutputFormat = "text"
	// FormatCSV writes rows as CSV.
	FormatCSV OutputFormat = "csv"
)

// validFormats maps accepted output format strings.
var validFormats = map[OutputFormat]bool{
	FormatNone: true,
	FormatText: true,
	FormatCSV:  true,
	"":         true, // empty defaults to none
}

// IsValidFormat returns true if the given format string is a recognized output format.
func IsValidFormat(format string) bool {
	return validFormats[OutputFormat(format)]
}

// CSV column headers.
var csvColumns = []string{"agent_id", "time", "mode", "changed", "state"}

// changedSep joins changed field names inside one CSV cell.
const changedSep = ";"

// WriteCSV writes rows, preceded by a header row, to w.
// Times use the shortest representation that round-trips exactly.
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, r := range rows {
		record := []string{
			r.AgentID,
			strconv.FormatFloat(r.Time, 'g', -1, 64),
			r.Mode,
			strings.Join(r.Changed, changedSep),
			r.State,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV parses rows written by WriteCSV.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvColumns)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading trace CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("reading trace CSV: missing header row")
	}
	for i, col := range csvColumns {
		if records[0][i] != col {
			return nil, fmt.Errorf("reading trace CSV: column %d is %q, want %q", i, records[0][i], col)
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		t, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("reading trace CSV: row %d: parsing time: %w", i+1, err)
		}
		var changed []string
		if rec[3] != "" {
			changed = strings.Split(rec[3], changedSep)
		}
		rows = append(rows, Row{AgentID: rec[0], Time: t, Mode: rec[2], Changed: changed, State: rec[4]})
	}
	return rows, nil
}

// Export writes the trace header (YAML) and rows (CSV) to separate files.
func Export(header *Header, rows []Row, headerPath, dataPath string) error {
	header.Rows = len(rows)
	headerData, err := yaml.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling trace header: %w", err)
	}
	if err := os.WriteFile(headerPath, headerData, 0644); err != nil {
		return fmt.Errorf("writing trace header: %w", err)
	}

	file, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("creating trace data file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := WriteCSV(file, rows); err != nil {
		return err
	}
	return file.Close()
}

// LoadHeader reads a trace header written by Export.
func LoadHeader(path string) (*Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trace header: %w", err)
	}
	var header Header
	if err := yaml.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("parsing trace header: %w", err)
	}
	return &header, nil
}

// WriteText renders rows one per line:
//
//	[t=12.500000] device_000 Working State -> [ cpu: 30 | sessions: 2 ] *(Events: cpu, sessions)*
//
// The first row of each agent is marked "Initial State".
func WriteText(w io.Writer, rows []Row) error {
	seen := make(map[string]bool)
	for _, r := range rows {
		events := "Initial State"
		if seen[r.AgentID] {
			events = "Events: " + strings.Join(r.Changed, ", ")
		}
		seen[r.AgentID] = true
		if _, err := fmt.Fprintf(w, "[t=%.6f] %s %s State -> [ %s ] *(%s)*\n",
			r.Time, r.AgentID, r.Mode, r.State, events); err != nil {
			return fmt.Errorf("writing trace text: %w", err)
		}
	}
	return nil
}
