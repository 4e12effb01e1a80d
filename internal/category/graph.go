// Package category maintains the hierarchy of spending and income
// categories. Nodes live in an arena keyed by id with the parent held
// as an id reference, so cycle checks are bounded ancestor walks and
// never chase pointers.
package category

import (
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"

	"bilancio/internal/core"

	"github.com/google/uuid"
)

// UncategorizedName is the reserved fallback category name, one per
// kind. Reserved categories cannot be deleted or reparented.
const UncategorizedName = "uncategorized"

// Graph is the category arena. All methods are safe for concurrent
// use; mutations take the write lock, traversals a read lock.
type Graph struct {
	mu       sync.RWMutex
	nodes    map[uuid.UUID]core.Category
	reserved map[core.Kind]uuid.UUID
}

// NewGraph creates a graph holding only the two reserved
// "uncategorized" categories.
func NewGraph() *Graph {
	g := &Graph{
		nodes:    make(map[uuid.UUID]core.Category),
		reserved: make(map[core.Kind]uuid.UUID),
	}
	for _, kind := range []core.Kind{core.KindExpense, core.KindIncome} {
		id := uuid.New()
		g.nodes[id] = core.Category{ID: id, Name: UncategorizedName, Kind: kind}
		g.reserved[kind] = id
	}
	return g
}

// Add creates a category. A parent, when given, must exist, not be
// deleted, and carry the same kind; the kind invariant then holds for
// the whole ancestor chain by induction.
func (g *Graph) Add(name string, kind core.Kind, parent *uuid.UUID) (core.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.ErrEmptyDescription
	}
	if !kind.Valid() {
		return core.Category{}, fmt.Errorf("%w: kind %q", core.ErrKindMismatch, kind)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if parent != nil {
		p, ok := g.nodes[*parent]
		if !ok {
			return core.Category{}, core.ErrUnknownCategory
		}
		if p.Deleted {
			return core.Category{}, core.ErrCategoryDeleted
		}
		if p.Kind != kind {
			return core.Category{}, fmt.Errorf("%w: parent is %s, child is %s", core.ErrKindMismatch, p.Kind, kind)
		}
	}

	cat := core.Category{ID: uuid.New(), Name: name, Kind: kind, Parent: parent}
	g.nodes[cat.ID] = cat
	return cat, nil
}

// Restore inserts a category loaded from the persistence collaborator,
// keeping its original id. Reserved categories replace the ones built
// by NewGraph.
func (g *Graph) Restore(cat core.Category) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cat.Name == UncategorizedName && cat.Parent == nil {
		delete(g.nodes, g.reserved[cat.Kind])
		g.reserved[cat.Kind] = cat.ID
	}
	if _, exists := g.nodes[cat.ID]; exists && cat.Name != UncategorizedName {
		return fmt.Errorf("restore category %s: duplicate id", cat.ID)
	}
	g.nodes[cat.ID] = cat
	return nil
}

// Get returns the category by id, including soft-deleted ones so that
// historic transactions always resolve.
func (g *Graph) Get(id uuid.UUID) (core.Category, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cat, ok := g.nodes[id]
	return cat, ok
}

// KindOf resolves a category's kind. Deleted categories still resolve;
// posting against them is rejected separately by Usable.
func (g *Graph) KindOf(id uuid.UUID) (core.Kind, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cat, ok := g.nodes[id]
	if !ok {
		return "", false
	}
	return cat.Kind, true
}

// Usable reports whether new transactions may reference the category.
func (g *Graph) Usable(id uuid.UUID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cat, ok := g.nodes[id]
	return ok && !cat.Deleted
}

// Uncategorized returns the reserved fallback category id for a kind.
func (g *Graph) Uncategorized(kind core.Kind) uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reserved[kind]
}

// FindByName returns the first non-deleted category with the given
// name and kind. Used to resolve import category hints.
func (g *Graph) FindByName(name string, kind core.Kind) (core.Category, bool) {
	name = core.NormalizeDescription(name)
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, cat := range g.nodes {
		if !cat.Deleted && cat.Kind == kind && core.NormalizeDescription(cat.Name) == name {
			return cat, true
		}
	}
	return core.Category{}, false
}

// Reparent moves a category under a new parent (nil makes it a root).
// The move is rejected when the target is the node itself or one of
// its descendants, detected by walking the target's ancestor chain.
func (g *Graph) Reparent(id uuid.UUID, newParent *uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cat, ok := g.nodes[id]
	if !ok {
		return core.ErrNotFound
	}
	if g.isReserved(id) {
		return core.ErrReserved
	}

	if newParent != nil {
		p, ok := g.nodes[*newParent]
		if !ok {
			return core.ErrUnknownCategory
		}
		if p.Deleted {
			return core.ErrCategoryDeleted
		}
		if p.Kind != cat.Kind {
			return fmt.Errorf("%w: parent is %s, node is %s", core.ErrKindMismatch, p.Kind, cat.Kind)
		}
		if *newParent == id || g.isAncestorLocked(id, *newParent) {
			return core.ErrCycle
		}
	}

	cat.Parent = newParent
	g.nodes[id] = cat
	return nil
}

// SoftDelete marks a category deleted and returns the reserved
// fallback category the caller must reassign dependent transactions
// to. Children are reparented to the deleted node's parent so the tree
// stays connected.
func (g *Graph) SoftDelete(id uuid.UUID) (fallback uuid.UUID, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cat, ok := g.nodes[id]
	if !ok {
		return uuid.Nil, core.ErrNotFound
	}
	if g.isReserved(id) {
		return uuid.Nil, core.ErrReserved
	}
	if cat.Deleted {
		return g.reserved[cat.Kind], nil
	}

	for childID, child := range g.nodes {
		if child.Parent != nil && *child.Parent == id {
			child.Parent = cat.Parent
			g.nodes[childID] = child
		}
	}

	cat.Deleted = true
	g.nodes[id] = cat
	return g.reserved[cat.Kind], nil
}

// Descendants yields the category's proper descendants. The sequence
// is finite, restartable and ordered by name for determinism.
func (g *Graph) Descendants(id uuid.UUID) iter.Seq[core.Category] {
	return func(yield func(core.Category) bool) {
		g.mu.RLock()
		children := make(map[uuid.UUID][]core.Category)
		for _, cat := range g.nodes {
			if cat.Parent != nil {
				children[*cat.Parent] = append(children[*cat.Parent], cat)
			}
		}
		g.mu.RUnlock()

		stack := append([]core.Category(nil), sortByName(children[id])...)
		for len(stack) > 0 {
			next := stack[0]
			stack = stack[1:]
			if !yield(next) {
				return
			}
			stack = append(stack, sortByName(children[next.ID])...)
		}
	}
}

// SubtreeIDs returns the id set of a category and all its descendants,
// the shape budget rollups consume.
func (g *Graph) SubtreeIDs(id uuid.UUID) map[uuid.UUID]bool {
	ids := map[uuid.UUID]bool{id: true}
	for cat := range g.Descendants(id) {
		ids[cat.ID] = true
	}
	return ids
}

// List returns all categories, deleted ones included, ordered by name.
func (g *Graph) List() []core.Category {
	g.mu.RLock()
	out := make([]core.Category, 0, len(g.nodes))
	for _, cat := range g.nodes {
		out = append(out, cat)
	}
	g.mu.RUnlock()
	return sortByName(out)
}

// isAncestorLocked reports whether node is an ancestor of target.
// Callers hold the lock. The walk is bounded by tree depth; a visited
// set guards against a corrupted arena looping forever.
func (g *Graph) isAncestorLocked(node, target uuid.UUID) bool {
	visited := make(map[uuid.UUID]bool)
	cur := target
	for {
		if visited[cur] {
			return true // defect: existing cycle, refuse the operation
		}
		visited[cur] = true
		cat, ok := g.nodes[cur]
		if !ok || cat.Parent == nil {
			return false
		}
		if *cat.Parent == node {
			return true
		}
		cur = *cat.Parent
	}
}

func (g *Graph) isReserved(id uuid.UUID) bool {
	for _, rid := range g.reserved {
		if rid == id {
			return true
		}
	}
	return false
}

func sortByName(cats []core.Category) []core.Category {
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Name == cats[j].Name {
			return cats[i].ID.String() < cats[j].ID.String()
		}
		return cats[i].Name < cats[j].Name
	})
	return cats
}
