package http

import (
	"net/http"
	"time"

	"bilancio/internal/core"

	"github.com/google/uuid"
)

type scheduleRequest struct {
	Unit          string `json:"unit"`
	Count         int    `json:"count"`
	AnchorDay     int    `json:"anchor_day,omitempty"`
	AnchorWeekday int    `json:"anchor_weekday,omitempty"`
	EndDate       string `json:"end_date,omitempty"`
	MaxOccurrence int    `json:"max_occurrence,omitempty"`
}

func (req scheduleRequest) toSchedule() (core.Schedule, error) {
	sched := core.Schedule{
		Unit:          core.IntervalUnit(req.Unit),
		Count:         req.Count,
		AnchorDay:     req.AnchorDay,
		AnchorWeekday: time.Weekday(req.AnchorWeekday),
		MaxOccurrence: req.MaxOccurrence,
	}
	if req.EndDate != "" {
		end, err := parseDate(req.EndDate)
		if err != nil {
			return core.Schedule{}, err
		}
		sched.EndDate = end
	}
	return sched, nil
}

type templateRequest struct {
	Amount     string          `json:"amount"`
	CategoryID string          `json:"category_id"`
	Memo       string          `json:"memo"`
	Schedule   scheduleRequest `json:"schedule"`
}

type templateResponse struct {
	ID          uuid.UUID `json:"id"`
	Amount      string    `json:"amount"`
	CategoryID  uuid.UUID `json:"category_id"`
	Memo        string    `json:"memo"`
	Unit        string    `json:"unit"`
	Count       int       `json:"count"`
	CreatedAt   string    `json:"created_at"`
	LastThrough string    `json:"last_through,omitempty"`
	Occurrences int       `json:"occurrences"`
	Ended       bool      `json:"ended"`
}

func (s *Server) toTemplateResponse(tpl core.Template) templateResponse {
	resp := templateResponse{
		ID:          tpl.ID,
		Amount:      tpl.Amount.String(),
		CategoryID:  tpl.CategoryID,
		Memo:        tpl.Memo,
		Unit:        string(tpl.Schedule.Unit),
		Count:       tpl.Schedule.Count,
		CreatedAt:   tpl.CreatedAt.Format(dateLayout),
		Occurrences: tpl.Occurrences,
		Ended:       tpl.Ended(s.clock()),
	}
	if !tpl.LastThrough.IsZero() {
		resp.LastThrough = tpl.LastThrough.Format(dateLayout)
	}
	return resp
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		writeError(w, core.ErrUnknownCategory)
		return
	}
	sched, err := req.Schedule.toSchedule()
	if err != nil {
		writeError(w, err)
		return
	}

	tpl, err := s.deps.Recurrence.Create(core.Template{
		Amount:     amount,
		CategoryID: categoryID,
		Memo:       req.Memo,
		Schedule:   sched,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toTemplateResponse(tpl))
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls := s.deps.Recurrence.List()
	out := make([]templateResponse, len(tpls))
	for i, tpl := range tpls {
		out[i] = s.toTemplateResponse(tpl)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tpl, ok := s.deps.Recurrence.Get(id)
	if !ok {
		writeError(w, core.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.toTemplateResponse(tpl))
}

type templateEditRequest struct {
	Amount   *string          `json:"amount"`
	Memo     *string          `json:"memo"`
	Schedule *scheduleRequest `json:"schedule"`
}

func (s *Server) handleEditTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req templateEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var amount *core.Money
	if req.Amount != nil {
		parsed, err := parseAmount(*req.Amount)
		if err != nil {
			writeError(w, err)
			return
		}
		amount = &parsed
	}
	var sched *core.Schedule
	if req.Schedule != nil {
		parsed, err := req.Schedule.toSchedule()
		if err != nil {
			writeError(w, err)
			return
		}
		sched = &parsed
	}

	tpl, err := s.deps.Recurrence.Edit(id, amount, req.Memo, sched)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toTemplateResponse(tpl))
}

type materializeRequest struct {
	Through string `json:"through,omitempty"`
}

func (s *Server) parseThrough(raw string) (time.Time, error) {
	return parseOptionalDate(raw, s.clock())
}

func (s *Server) handleMaterializeOne(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req materializeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	through, err := s.parseThrough(req.Through)
	if err != nil {
		writeError(w, err)
		return
	}

	posted, err := s.deps.Recurrence.Materialize(r.Context(), id, through)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]transactionResponse, len(posted))
	for i, txn := range posted {
		out[i] = toTransactionResponse(txn, false)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posted":       out,
		"posted_count": len(out),
	})
}

func (s *Server) handleMaterializeAll(w http.ResponseWriter, r *http.Request) {
	var req materializeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	through, err := s.parseThrough(req.Through)
	if err != nil {
		writeError(w, err)
		return
	}
	posted, err := s.deps.Recurrence.MaterializeAll(r.Context(), through)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posted_count": posted})
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	through, err := s.parseThrough(r.URL.Query().Get("through"))
	if err != nil {
		writeError(w, err)
		return
	}
	type upcomingResponse struct {
		TemplateID uuid.UUID `json:"template_id"`
		Date       string    `json:"date"`
		Amount     string    `json:"amount"`
		CategoryID uuid.UUID `json:"category_id"`
		Memo       string    `json:"memo"`
	}
	occurrences := s.deps.Recurrence.Upcoming(through)
	out := make([]upcomingResponse, len(occurrences))
	for i, occ := range occurrences {
		out[i] = upcomingResponse{
			TemplateID: occ.TemplateID,
			Date:       occ.Date.Format(dateLayout),
			Amount:     occ.Amount.String(),
			CategoryID: occ.CategoryID,
			Memo:       occ.Memo,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
