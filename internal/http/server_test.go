package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bilancio/internal/budget"
	"bilancio/internal/category"
	"bilancio/internal/core"
	"bilancio/internal/events"
	"bilancio/internal/goal"
	"bilancio/internal/importer"
	"bilancio/internal/ledger"
	"bilancio/internal/recurrence"

	"github.com/google/uuid"
)

func newTestServer(t *testing.T) (*Server, Deps) {
	t.Helper()
	bus := events.NewBus()
	cats := category.NewGraph()
	store := ledger.NewStore(cats)
	deps := Deps{
		Cats:       cats,
		Store:      store,
		Recurrence: recurrence.NewEngine(store, bus, 31*24*time.Hour),
		Budgets:    budget.NewEngine(store, cats, bus),
		Goals:      goal.NewTracker(store, bus),
		Importer:   importer.NewReconciler(store, cats, 3),
	}
	clock := func() time.Time {
		return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	}
	deps.Recurrence.SetClock(clock)
	deps.Budgets.SetClock(clock)
	deps.Goals.SetClock(clock)
	srv := NewServer(":0", deps)
	srv.clock = clock
	t.Cleanup(srv.rateLimiter.stop)
	return srv, deps
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func mustCategory(t *testing.T, srv *Server, name, kind string) uuid.UUID {
	t.Helper()
	rr := doJSON(t, srv, http.MethodPost, "/api/categories",
		fmt.Sprintf(`{"name":%q,"kind":%q}`, name, kind))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create category %s: status=%d body=%s", name, rr.Code, rr.Body.String())
	}
	var resp categoryResponse
	decodeBody(t, rr, &resp)
	return resp.ID
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	food := mustCategory(t, srv, "food", "expense")

	rr := doJSON(t, srv, http.MethodPost, "/api/transactions",
		fmt.Sprintf(`{"amount":"12.50","date":"2025-06-10","category_id":%q,"memo":"lunch"}`, food))
	if rr.Code != http.StatusCreated {
		t.Fatalf("post status=%d body=%s", rr.Code, rr.Body.String())
	}
	var txn transactionResponse
	decodeBody(t, rr, &txn)
	if txn.Cents != -1250 {
		t.Fatalf("expense not normalized negative: %d", txn.Cents)
	}

	rr = doJSON(t, srv, http.MethodPatch, "/api/transactions/"+txn.ID.String(),
		`{"memo":"team lunch"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("amend status=%d body=%s", rr.Code, rr.Body.String())
	}
	var amended transactionResponse
	decodeBody(t, rr, &amended)
	if amended.Memo != "team lunch" {
		t.Fatalf("memo = %q", amended.Memo)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/balance?as_of=2025-06-30", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("balance status=%d", rr.Code)
	}
	var balance struct {
		Cents int64 `json:"cents"`
	}
	decodeBody(t, rr, &balance)
	if balance.Cents != -1250 {
		t.Fatalf("balance cents = %d", balance.Cents)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/transactions/"+txn.ID.String(), nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("tombstone status=%d", rr.Code)
	}

	// Tombstoning twice conflicts.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/transactions/"+txn.ID.String(), nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second tombstone status=%d", rr.Code)
	}
}

func TestTransactionValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	food := mustCategory(t, srv, "food", "expense")

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad amount", fmt.Sprintf(`{"amount":"abc","date":"2025-06-10","category_id":%q}`, food), http.StatusBadRequest},
		{"zero amount", fmt.Sprintf(`{"amount":"0","date":"2025-06-10","category_id":%q}`, food), http.StatusBadRequest},
		{"bad date", fmt.Sprintf(`{"amount":"1.00","date":"June 10","category_id":%q}`, food), http.StatusBadRequest},
		{"unknown category", fmt.Sprintf(`{"amount":"1.00","date":"2025-06-10","category_id":%q}`, uuid.New()), http.StatusBadRequest},
		{"unknown field", `{"amount":"1.00","nope":true}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, srv, http.MethodPost, "/api/transactions", tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestTransactionMemoOptional(t *testing.T) {
	srv, _ := newTestServer(t)
	food := mustCategory(t, srv, "food", "expense")

	rr := doJSON(t, srv, http.MethodPost, "/api/transactions",
		fmt.Sprintf(`{"amount":"3.00","date":"2025-06-10","category_id":%q}`, food))
	if rr.Code != http.StatusCreated {
		t.Fatalf("memo-less post status=%d body=%s", rr.Code, rr.Body.String())
	}
	var txn transactionResponse
	decodeBody(t, rr, &txn)
	if txn.Memo != "" {
		t.Fatalf("memo = %q, want empty", txn.Memo)
	}
}

func TestUnknownTransactionIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/transactions/"+uuid.New().String(), nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}

	// Malformed IDs are indistinguishable from unknown ones.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/transactions/not-a-uuid", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("malformed id status=%d", rr.Code)
	}
}

func TestCategoryDeleteReassigns(t *testing.T) {
	srv, deps := newTestServer(t)
	food := mustCategory(t, srv, "food", "expense")

	rr := doJSON(t, srv, http.MethodPost, "/api/transactions",
		fmt.Sprintf(`{"amount":"5.00","date":"2025-06-01","category_id":%q}`, food))
	if rr.Code != http.StatusCreated {
		t.Fatalf("post status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/categories/"+food.String(), nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Fallback   uuid.UUID `json:"fallback"`
		Reassigned int       `json:"reassigned"`
	}
	decodeBody(t, rr, &resp)
	if resp.Reassigned != 1 {
		t.Fatalf("reassigned = %d", resp.Reassigned)
	}
	if resp.Fallback != deps.Cats.Uncategorized(core.KindExpense) {
		t.Fatalf("fallback = %s", resp.Fallback)
	}
}

func TestTemplateAndMaterialize(t *testing.T) {
	srv, _ := newTestServer(t)
	rent := mustCategory(t, srv, "rent", "expense")

	rr := doJSON(t, srv, http.MethodPost, "/api/templates",
		fmt.Sprintf(`{"amount":"800.00","category_id":%q,"memo":"rent","schedule":{"unit":"month","count":1,"anchor_day":1}}`, rent))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create template status=%d body=%s", rr.Code, rr.Body.String())
	}
	var tpl templateResponse
	decodeBody(t, rr, &tpl)

	rr = doJSON(t, srv, http.MethodPost, "/api/templates/"+tpl.ID.String()+"/materialize",
		`{"through":"2025-08-01"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("materialize status=%d body=%s", rr.Code, rr.Body.String())
	}
	var result struct {
		PostedCount int `json:"posted_count"`
	}
	decodeBody(t, rr, &result)
	if result.PostedCount == 0 {
		t.Fatalf("expected posted occurrences")
	}

	// Second run over the same horizon posts nothing.
	rr = doJSON(t, srv, http.MethodPost, "/api/templates/"+tpl.ID.String()+"/materialize",
		`{"through":"2025-08-01"}`)
	decodeBody(t, rr, &result)
	if result.PostedCount != 0 {
		t.Fatalf("re-materialize posted %d", result.PostedCount)
	}
}

func TestBudgetStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	food := mustCategory(t, srv, "food", "expense")

	rr := doJSON(t, srv, http.MethodPost, "/api/budgets",
		fmt.Sprintf(`{"category_id":%q,"period":{"kind":"monthly"},"limit":"500.00","thresholds":[80,100]}`, food))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create budget status=%d body=%s", rr.Code, rr.Body.String())
	}
	var b budgetResponse
	decodeBody(t, rr, &b)

	rr = doJSON(t, srv, http.MethodPost, "/api/transactions",
		fmt.Sprintf(`{"amount":"450.00","date":"2025-06-10","category_id":%q}`, food))
	if rr.Code != http.StatusCreated {
		t.Fatalf("post status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/budgets/"+b.ID.String()+"/status?at=2025-06-15", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var state struct {
		Percentage float64 `json:"percentage"`
		Status     string  `json:"status"`
		Fired      []int   `json:"fired_thresholds"`
	}
	decodeBody(t, rr, &state)
	if state.Status != "warning" {
		t.Fatalf("status = %q", state.Status)
	}
	if len(state.Fired) != 1 || state.Fired[0] != 80 {
		t.Fatalf("fired = %v", state.Fired)
	}
}

func TestGoalEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/api/goals",
		`{"name":"vacation","target":"1000.00","sweep_percent":30}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create goal status=%d body=%s", rr.Code, rr.Body.String())
	}
	var g goalResponse
	decodeBody(t, rr, &g)

	rr = doJSON(t, srv, http.MethodPost, "/api/goals/"+g.ID.String()+"/contribute",
		`{"amount":"250.00","date":"2025-06-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("contribute status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/goals/"+g.ID.String()+"/sweep",
		`{"surplus":"200.00"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("sweep status=%d body=%s", rr.Code, rr.Body.String())
	}
	var swept contributionResponse
	decodeBody(t, rr, &swept)
	if swept.Amount != "60.00" {
		t.Fatalf("swept amount = %q", swept.Amount)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/goals/"+g.ID.String()+"/progress", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("progress status=%d", rr.Code)
	}
	var progress goal.Progress
	decodeBody(t, rr, &progress)
	if progress.Accumulated.Cents != 31000 {
		t.Fatalf("accumulated = %d", progress.Accumulated.Cents)
	}
	if len(progress.Milestones) != 1 || progress.Milestones[0] != 25 {
		t.Fatalf("milestones = %v", progress.Milestones)
	}
}

func TestImportEndpointJSONAndCSV(t *testing.T) {
	srv, _ := newTestServer(t)
	mustCategory(t, srv, "groceries", "expense")

	body := `{"rows":[
		{"date":"2025-06-01","amount":"-12.00","description":"market","category_hint":"groceries"},
		{"date":"2025-06-01","amount":"-12.00","description":"market"}
	]}`
	rr := doJSON(t, srv, http.MethodPost, "/api/import", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Report importer.Report `json:"report"`
	}
	decodeBody(t, rr, &resp)
	if resp.Report.Inserted != 1 || resp.Report.Duplicates != 1 {
		t.Fatalf("report = %+v", resp.Report)
	}

	csv := "date,amount,description\n2025-06-02,-7.50,bakery\n"
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("csv import status=%d body=%s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &resp)
	if resp.Report.Inserted != 1 {
		t.Fatalf("csv report = %+v", resp.Report)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	srv.Handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q", got)
	}
}
