package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"bilancio/internal/core"
)

// Accepted posted-date layouts, tried in order.
var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006-01-02T15:04:05Z07:00"}

// ParseCSV reads statement rows from a CSV stream into the shape the
// reconciler consumes. The expected columns are date, amount,
// description and an optional category hint; a header line matching
// those names is skipped. Amounts keep the statement's sign. Rows that
// fail to parse are returned as errors keyed by line so the caller can
// report them without losing the rest of the file.
func ParseCSV(r io.Reader) ([]core.ParsedRow, []error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []core.ParsedRow
	var errs []error
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if line == 1 && isHeader(record) {
			continue
		}
		row, err := parseRecord(record)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		rows = append(rows, row)
	}
	return rows, errs
}

func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "date")
}

func parseRecord(record []string) (core.ParsedRow, error) {
	if len(record) < 3 {
		return core.ParsedRow{}, fmt.Errorf("expected at least 3 columns, got %d", len(record))
	}

	var date time.Time
	var err error
	for _, layout := range dateLayouts {
		date, err = time.Parse(layout, strings.TrimSpace(record[0]))
		if err == nil {
			break
		}
	}
	if err != nil {
		return core.ParsedRow{}, fmt.Errorf("bad date %q: %w", record[0], core.ErrInvalidDate)
	}

	cents, err := core.ParseSignedCents(record[1])
	if err != nil {
		return core.ParsedRow{}, fmt.Errorf("bad amount %q: %w", record[1], err)
	}

	row := core.ParsedRow{
		Date:        date,
		Amount:      core.Money{Cents: cents},
		Description: strings.TrimSpace(record[2]),
	}
	if len(record) > 3 {
		row.CategoryHint = strings.TrimSpace(record[3])
	}
	return row, nil
}
