package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var statementDateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

// parseStatement reads a bank statement export into import rows,
// attaching category hints from the CLI config.
func parseStatement(path string, cfg *CLIConfig) ([]importRowDTO, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return parseXLSX(path, cfg)
	case ".csv":
		return parseCSVFile(path, cfg)
	default:
		return nil, fmt.Errorf("unsupported statement format %q", filepath.Ext(path))
	}
}

// parseXLSX reads the first sheet of an Excel statement export. The
// header row is located by its column titles; columns named Date,
// Amount and Description (case-insensitive) are required.
func parseXLSX(path string, cfg *CLIConfig) ([]importRowDTO, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in file")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}

	dateCol, amountCol, descCol := -1, -1, -1
	dataStartRow := -1
	for i, row := range rows {
		for j, cell := range row {
			switch strings.ToLower(strings.TrimSpace(cell)) {
			case "date":
				dateCol = j
			case "amount":
				amountCol = j
			case "description", "text", "memo":
				descCol = j
			}
		}
		if dateCol >= 0 && amountCol >= 0 && descCol >= 0 {
			dataStartRow = i + 1
			break
		}
		dateCol, amountCol, descCol = -1, -1, -1
	}
	if dataStartRow < 0 {
		return nil, fmt.Errorf("could not find required columns (date, amount, description)")
	}

	var out []importRowDTO
	for i := dataStartRow; i < len(rows); i++ {
		row := rows[i]
		maxCol := dateCol
		if amountCol > maxCol {
			maxCol = amountCol
		}
		if descCol > maxCol {
			maxCol = descCol
		}
		if len(row) <= maxCol {
			continue
		}
		parsed, ok := buildRow(row[dateCol], row[amountCol], row[descCol], cfg)
		if ok {
			out = append(out, parsed)
		}
	}
	return out, nil
}

// parseCSVFile reads a date,amount,description CSV, skipping a header
// row when present.
func parseCSVFile(path string, cfg *CLIConfig) ([]importRowDTO, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}

	var out []importRowDTO
	for i, record := range records {
		if len(record) < 3 {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(record[0]), "date") {
			continue
		}
		parsed, ok := buildRow(record[0], record[1], record[2], cfg)
		if ok {
			out = append(out, parsed)
		}
	}
	return out, nil
}

// buildRow normalizes one raw statement line. Rows with an unparseable
// date or empty fields are skipped; the server rejects anything else.
func buildRow(date, amount, description string, cfg *CLIConfig) (importRowDTO, bool) {
	date = strings.TrimSpace(date)
	amount = strings.TrimSpace(amount)
	description = strings.TrimSpace(description)
	if date == "" || amount == "" || description == "" {
		return importRowDTO{}, false
	}

	var normalized string
	for _, layout := range statementDateLayouts {
		if parsed, err := time.Parse(layout, date); err == nil {
			normalized = parsed.Format("2006-01-02")
			break
		}
	}
	if normalized == "" {
		return importRowDTO{}, false
	}

	return importRowDTO{
		Date:         normalized,
		Amount:       amount,
		Description:  description,
		CategoryHint: cfg.HintFor(description),
	}, true
}
