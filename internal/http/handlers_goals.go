package http

import (
	"net/http"

	"bilancio/internal/core"
	"bilancio/internal/goal"

	"github.com/google/uuid"
)

type goalRequest struct {
	Name         string `json:"name"`
	Target       string `json:"target"`
	TargetDate   string `json:"target_date,omitempty"`
	SweepPercent int    `json:"sweep_percent,omitempty"`
}

type goalResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Target       string    `json:"target"`
	TargetDate   string    `json:"target_date,omitempty"`
	SweepPercent int       `json:"sweep_percent,omitempty"`
	CreatedAt    string    `json:"created_at"`
}

func toGoalResponse(g core.Goal) goalResponse {
	resp := goalResponse{
		ID:           g.ID,
		Name:         g.Name,
		Target:       g.Target.String(),
		SweepPercent: g.SweepPercent,
		CreatedAt:    g.CreatedAt.Format(dateLayout),
	}
	if !g.TargetDate.IsZero() {
		resp.TargetDate = g.TargetDate.Format(dateLayout)
	}
	return resp
}

type contributionResponse struct {
	ID     uuid.UUID  `json:"id"`
	GoalID uuid.UUID  `json:"goal_id"`
	TxnID  *uuid.UUID `json:"transaction_id,omitempty"`
	Amount string     `json:"amount,omitempty"`
	At     string     `json:"at"`
}

func toContributionResponse(c goal.Contribution) contributionResponse {
	resp := contributionResponse{
		ID:     c.ID,
		GoalID: c.GoalID,
		At:     c.At.Format(dateLayout),
	}
	if c.TxnID != uuid.Nil {
		txnID := c.TxnID
		resp.TxnID = &txnID
	} else {
		resp.Amount = c.Amount.String()
	}
	return resp
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target, err := parseAmount(req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	g := core.Goal{
		Name:         req.Name,
		Target:       target.Abs(),
		SweepPercent: req.SweepPercent,
	}
	if g.TargetDate, err = parseOptionalDate(req.TargetDate, g.TargetDate); err != nil {
		writeError(w, err)
		return
	}

	created, err := s.deps.Goals.Create(g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalResponse(created))
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals := s.deps.Goals.List()
	out := make([]goalResponse, len(goals))
	for i, g := range goals {
		out[i] = toGoalResponse(g)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	progress, err := s.deps.Goals.Progress(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleGoalLink(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	txnID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		writeError(w, core.ErrNotFound)
		return
	}
	contrib, err := s.deps.Goals.Link(id, txnID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContributionResponse(contrib))
}

func (s *Server) handleGoalContribute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Amount string `json:"amount"`
		Date   string `json:"date,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := parseOptionalDate(req.Date, s.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	contrib, err := s.deps.Goals.Contribute(id, amount, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContributionResponse(contrib))
}

func (s *Server) handleGoalSweep(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Surplus string `json:"surplus"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	surplus, err := parseAmount(req.Surplus)
	if err != nil {
		writeError(w, err)
		return
	}
	contrib, err := s.deps.Goals.Sweep(id, surplus, s.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	if contrib.ID == uuid.Nil {
		writeJSON(w, http.StatusOK, map[string]any{"swept": false})
		return
	}
	writeJSON(w, http.StatusCreated, toContributionResponse(contrib))
}
