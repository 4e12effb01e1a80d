package http

import (
	"net/http"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"

	"github.com/google/uuid"
)

type transactionRequest struct {
	Amount     string `json:"amount"`
	Date       string `json:"date"`
	CategoryID string `json:"category_id"`
	Memo       string `json:"memo"`
}

type transactionResponse struct {
	ID         uuid.UUID       `json:"id"`
	Amount     string          `json:"amount"`
	Cents      int64           `json:"cents"`
	Date       string          `json:"date"`
	CategoryID uuid.UUID       `json:"category_id"`
	Memo       string          `json:"memo"`
	Source     core.SourceKind `json:"source"`
	Tombstoned bool            `json:"tombstoned,omitempty"`
}

func toTransactionResponse(txn core.Transaction, tombstoned bool) transactionResponse {
	return transactionResponse{
		ID:         txn.ID,
		Amount:     txn.Amount.String(),
		Cents:      txn.Amount.Cents,
		Date:       txn.Posted.Format(dateLayout),
		CategoryID: txn.CategoryID,
		Memo:       txn.Memo,
		Source:     txn.Source,
		Tombstoned: tombstoned,
	}
}

func (s *Server) handlePostTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	posted, err := parseDate(req.Date)
	if err != nil {
		writeError(w, err)
		return
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		writeError(w, core.ErrUnknownCategory)
		return
	}

	id, err := s.deps.Store.Post(core.Transaction{
		Amount:     amount,
		Posted:     posted,
		CategoryID: categoryID,
		Memo:       req.Memo,
		Source:     core.SourceManual,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	txn, _, _ := s.deps.Store.Get(id)
	writeJSON(w, http.StatusCreated, toTransactionResponse(txn, false))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ledger.Filter{
		Source:     core.SourceKind(query.Get("source")),
		Tombstoned: query.Get("tombstoned") == "true",
	}
	var err error
	if filter.From, err = parseOptionalDate(query.Get("from"), time.Time{}); err != nil {
		writeError(w, err)
		return
	}
	if filter.To, err = parseOptionalDate(query.Get("to"), time.Time{}); err != nil {
		writeError(w, err)
		return
	}
	if filter.Categories, err = parseCategorySet(query); err != nil {
		writeError(w, err)
		return
	}

	txns := s.deps.Store.List(filter)
	out := make([]transactionResponse, len(txns))
	for i, txn := range txns {
		out[i] = toTransactionResponse(txn, false)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	txn, tombstoned, err := s.deps.Store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(txn, tombstoned))
}

type amendRequest struct {
	CategoryID *string `json:"category_id"`
	Memo       *string `json:"memo"`
}

func (s *Server) handleAmendTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req amendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var categoryID *uuid.UUID
	if req.CategoryID != nil {
		parsed, err := uuid.Parse(*req.CategoryID)
		if err != nil {
			writeError(w, core.ErrUnknownCategory)
			return
		}
		categoryID = &parsed
	}
	if err := s.deps.Store.Amend(id, categoryID, req.Memo); err != nil {
		writeError(w, err)
		return
	}
	txn, _, _ := s.deps.Store.Get(id)
	writeJSON(w, http.StatusOK, toTransactionResponse(txn, false))
}

func (s *Server) handleTombstoneTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Store.Tombstone(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseOptionalDate(r.URL.Query().Get("as_of"), s.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	balance := s.deps.Store.BalanceAsOf(asOf)
	writeJSON(w, http.StatusOK, map[string]any{
		"as_of":   asOf.Format(dateLayout),
		"balance": balance.String(),
		"cents":   balance.Cents,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := s.deps.Store.Export(w); err != nil {
		writeError(w, err)
	}
}
