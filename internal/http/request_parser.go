package http

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"bilancio/internal/core"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// parseDate parses a plain calendar date, midnight UTC.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, core.ErrInvalidDate
	}
	return t, nil
}

// parseOptionalDate returns the fallback when the value is empty.
func parseOptionalDate(s string, fallback time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return parseDate(s)
}

// parseAmount converts a decimal string ("12.34", "-3,50") to Money.
func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseSignedCents(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

// pathID extracts and parses the {id} path segment.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, core.ErrNotFound
	}
	return id, nil
}

// parseCategorySet parses a comma-separated category id filter.
func parseCategorySet(query url.Values) (map[uuid.UUID]bool, error) {
	raw := strings.TrimSpace(query.Get("categories"))
	if raw == "" {
		return nil, nil
	}
	set := make(map[uuid.UUID]bool)
	for _, part := range strings.Split(raw, ",") {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, core.ErrUnknownCategory
		}
		set[id] = true
	}
	return set, nil
}
