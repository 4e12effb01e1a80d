package http

import (
	"net/http"
	"time"

	"bilancio/internal/core"

	"github.com/google/uuid"
)

type periodRequest struct {
	Kind      string `json:"kind"`
	Zone      string `json:"zone,omitempty"`
	WeekStart int    `json:"week_start,omitempty"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
}

func (req periodRequest) toSpec() (core.PeriodSpec, error) {
	spec := core.PeriodSpec{
		Kind:      core.PeriodKind(req.Kind),
		Zone:      req.Zone,
		WeekStart: time.Weekday(req.WeekStart),
	}
	var err error
	if spec.Start, err = parseOptionalDate(req.Start, time.Time{}); err != nil {
		return core.PeriodSpec{}, err
	}
	if spec.End, err = parseOptionalDate(req.End, time.Time{}); err != nil {
		return core.PeriodSpec{}, err
	}
	return spec, nil
}

type budgetRequest struct {
	CategoryID string        `json:"category_id"`
	Rollup     bool          `json:"rollup,omitempty"`
	Period     periodRequest `json:"period"`
	Limit      string        `json:"limit"`
	Thresholds []int         `json:"thresholds"`
}

type budgetResponse struct {
	ID         uuid.UUID `json:"id"`
	CategoryID uuid.UUID `json:"category_id"`
	Rollup     bool      `json:"rollup,omitempty"`
	PeriodKind string    `json:"period_kind"`
	Limit      string    `json:"limit"`
	Thresholds []int     `json:"thresholds"`
	Active     bool      `json:"active"`
}

func toBudgetResponse(b core.Budget) budgetResponse {
	return budgetResponse{
		ID:         b.ID,
		CategoryID: b.CategoryID,
		Rollup:     b.Rollup,
		PeriodKind: string(b.Period.Kind),
		Limit:      b.Limit.String(),
		Thresholds: b.Thresholds,
		Active:     b.Active(),
	}
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		writeError(w, core.ErrUnknownCategory)
		return
	}
	limit, err := parseAmount(req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	period, err := req.Period.toSpec()
	if err != nil {
		writeError(w, err)
		return
	}

	b, err := s.deps.Budgets.Create(core.Budget{
		CategoryID: categoryID,
		Rollup:     req.Rollup,
		Period:     period,
		Limit:      limit.Abs(),
		Thresholds: req.Thresholds,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetResponse(b))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets := s.deps.Budgets.List()
	out := make([]budgetResponse, len(budgets))
	for i, b := range budgets {
		out[i] = toBudgetResponse(b)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := parseOptionalDate(r.URL.Query().Get("at"), s.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := s.deps.Budgets.Evaluate(id, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleEvaluateAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		At string `json:"at,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	at, err := parseOptionalDate(req.At, s.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	states, err := s.deps.Budgets.EvaluateAll(at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}
