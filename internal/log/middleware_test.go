package log

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type capturedLine struct {
	msg   string
	attrs []slog.Attr
}

// captureHandler folds With-attached attributes into each captured
// record so tests can assert on the full attribute set.
type captureHandler struct {
	lines *[]capturedLine
	attrs []slog.Attr
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := append([]slog.Attr{}, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	*h.lines = append(*h.lines, capturedLine{msg: r.Message, attrs: attrs})
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &captureHandler{lines: h.lines, attrs: merged}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func TestAccessLogTagsComponentOnce(t *testing.T) {
	var lines []capturedLine
	logger := New(Config{Handler: &captureHandler{lines: &lines}})

	h := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/transactions?limit=5", nil))

	if len(lines) != 1 {
		t.Fatalf("logged %d lines, want 1", len(lines))
	}

	components := 0
	var status int64
	for _, a := range lines[0].attrs {
		switch a.Key {
		case FieldComponent:
			components++
			if got := a.Value.String(); got != ComponentHTTP {
				t.Errorf("component = %q, want %q", got, ComponentHTTP)
			}
		case FieldStatusCode:
			status = a.Value.Int64()
		}
	}
	if components != 1 {
		t.Errorf("component attribute appears %d times, want 1", components)
	}
	if status != http.StatusNoContent {
		t.Errorf("status_code = %d, want %d", status, http.StatusNoContent)
	}
}

func TestFromContextFallsBack(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("FromContext returned nil")
	}
	if logger.Component() != ComponentApp {
		t.Errorf("component = %q, want %q", logger.Component(), ComponentApp)
	}
}
