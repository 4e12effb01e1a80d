package http

import (
	"net/http"

	"bilancio/internal/core"

	"github.com/google/uuid"
)

type categoryRequest struct {
	Name   string  `json:"name"`
	Kind   string  `json:"kind"`
	Parent *string `json:"parent,omitempty"`
}

type categoryResponse struct {
	ID      uuid.UUID  `json:"id"`
	Name    string     `json:"name"`
	Kind    core.Kind  `json:"kind"`
	Parent  *uuid.UUID `json:"parent,omitempty"`
	Deleted bool       `json:"deleted,omitempty"`
}

func toCategoryResponse(cat core.Category) categoryResponse {
	return categoryResponse{
		ID:      cat.ID,
		Name:    cat.Name,
		Kind:    cat.Kind,
		Parent:  cat.Parent,
		Deleted: cat.Deleted,
	}
}

func parseParent(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, core.ErrUnknownCategory
	}
	return &id, nil
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	parent, err := parseParent(req.Parent)
	if err != nil {
		writeError(w, err)
		return
	}
	cat, err := s.deps.Cats.Add(req.Name, core.Kind(req.Kind), parent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryResponse(cat))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats := s.deps.Cats.List()
	out := make([]categoryResponse, 0, len(cats))
	for _, cat := range cats {
		if cat.Deleted && r.URL.Query().Get("deleted") != "true" {
			continue
		}
		out = append(out, toCategoryResponse(cat))
	}
	writeJSON(w, http.StatusOK, out)
}

type reparentRequest struct {
	Parent *string `json:"parent"`
}

func (s *Server) handleReparentCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reparentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	parent, err := parseParent(req.Parent)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Cats.Reparent(id, parent); err != nil {
		writeError(w, err)
		return
	}
	cat, _ := s.deps.Cats.Get(id)
	writeJSON(w, http.StatusOK, toCategoryResponse(cat))
}

// handleDeleteCategory soft-deletes the category and reassigns its live
// transactions to the reserved fallback of the same kind.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	fallback, err := s.deps.Cats.SoftDelete(id)
	if err != nil {
		writeError(w, err)
		return
	}
	moved := s.deps.Store.ReassignCategory(id, fallback)
	writeJSON(w, http.StatusOK, map[string]any{
		"fallback":   fallback,
		"reassigned": moved,
	})
}
