package http

import (
	"net/http"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/importer"
)

type importRow struct {
	Date         string `json:"date"`
	Amount       string `json:"amount"`
	Description  string `json:"description"`
	CategoryHint string `json:"category_hint,omitempty"`
}

func (row importRow) toParsed() (core.ParsedRow, error) {
	date, err := parseDate(row.Date)
	if err != nil {
		return core.ParsedRow{}, err
	}
	amount, err := parseAmount(row.Amount)
	if err != nil {
		return core.ParsedRow{}, err
	}
	return core.ParsedRow{
		Date:         date,
		Amount:       amount,
		Description:  row.Description,
		CategoryHint: row.CategoryHint,
	}, nil
}

// handleImport accepts either a JSON row batch or a raw CSV body,
// depending on Content-Type. CSV parse failures become rejected rows
// in the report rather than failing the whole batch.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var rows []core.ParsedRow
	var parseErrors []string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		parsed, errs := importer.ParseCSV(r.Body)
		rows = parsed
		for _, err := range errs {
			parseErrors = append(parseErrors, err.Error())
		}
	} else {
		var req struct {
			Rows []importRow `json:"rows"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		for _, raw := range req.Rows {
			row, err := raw.toParsed()
			if err != nil {
				parseErrors = append(parseErrors, err.Error())
				continue
			}
			rows = append(rows, row)
		}
	}

	report, err := s.deps.Importer.Reconcile(r.Context(), rows)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report":       report,
		"parse_errors": parseErrors,
	})
}

// handleImportAccept inserts a single row that a previous batch flagged
// as a conflict. Exact duplicates are still refused.
func (s *Server) handleImportAccept(w http.ResponseWriter, r *http.Request) {
	var req importRow
	if !decodeJSON(w, r, &req) {
		return
	}
	row, err := req.toParsed()
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.deps.Importer.Accept(row)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction_id": id})
}
