package category

import (
	"errors"
	"testing"

	"bilancio/internal/core"

	"github.com/google/uuid"
)

func TestGraphAdd(t *testing.T) {
	g := NewGraph()

	food, err := g.Add("food", core.KindExpense, nil)
	if err != nil {
		t.Fatalf("Add(food) failed: %v", err)
	}

	t.Run("child inherits kind checks", func(t *testing.T) {
		if _, err := g.Add("groceries", core.KindExpense, &food.ID); err != nil {
			t.Errorf("Add(groceries) failed: %v", err)
		}
		if _, err := g.Add("salary", core.KindIncome, &food.ID); !errors.Is(err, core.ErrKindMismatch) {
			t.Errorf("mismatched child kind accepted: %v", err)
		}
	})

	t.Run("unknown parent", func(t *testing.T) {
		ghost := uuid.New()
		if _, err := g.Add("x", core.KindExpense, &ghost); !errors.Is(err, core.ErrUnknownCategory) {
			t.Errorf("Add under unknown parent = %v, want ErrUnknownCategory", err)
		}
	})

	t.Run("blank name", func(t *testing.T) {
		if _, err := g.Add("  ", core.KindExpense, nil); !errors.Is(err, core.ErrEmptyDescription) {
			t.Errorf("blank name accepted: %v", err)
		}
	})

	t.Run("deleted parent", func(t *testing.T) {
		dead, _ := g.Add("dead", core.KindExpense, nil)
		if _, err := g.SoftDelete(dead.ID); err != nil {
			t.Fatalf("SoftDelete failed: %v", err)
		}
		if _, err := g.Add("x", core.KindExpense, &dead.ID); !errors.Is(err, core.ErrCategoryDeleted) {
			t.Errorf("Add under deleted parent = %v, want ErrCategoryDeleted", err)
		}
	})
}

func TestGraphReparentCycleDetection(t *testing.T) {
	g := NewGraph()
	a, _ := g.Add("a", core.KindExpense, nil)
	b, _ := g.Add("b", core.KindExpense, &a.ID)
	c, _ := g.Add("c", core.KindExpense, &b.ID)

	if err := g.Reparent(a.ID, &c.ID); !errors.Is(err, core.ErrCycle) {
		t.Errorf("reparent under own descendant = %v, want ErrCycle", err)
	}
	if err := g.Reparent(a.ID, &a.ID); !errors.Is(err, core.ErrCycle) {
		t.Errorf("reparent under self = %v, want ErrCycle", err)
	}

	// A legal move: c becomes a root.
	if err := g.Reparent(c.ID, nil); err != nil {
		t.Errorf("reparent to root failed: %v", err)
	}
	// And back under a.
	if err := g.Reparent(c.ID, &a.ID); err != nil {
		t.Errorf("reparent under a failed: %v", err)
	}
}

func TestGraphDescendants(t *testing.T) {
	g := NewGraph()
	root, _ := g.Add("root", core.KindExpense, nil)
	kid1, _ := g.Add("kid1", core.KindExpense, &root.ID)
	g.Add("kid2", core.KindExpense, &root.ID)
	g.Add("grandkid", core.KindExpense, &kid1.ID)

	var names []string
	for cat := range g.Descendants(root.ID) {
		names = append(names, cat.Name)
	}
	if len(names) != 3 {
		t.Fatalf("got %d descendants %v, want 3", len(names), names)
	}

	// Restartable: a second traversal sees the same set.
	count := 0
	for range g.Descendants(root.ID) {
		count++
	}
	if count != 3 {
		t.Errorf("second traversal saw %d, want 3", count)
	}

	// Early break must not poison later traversals.
	for range g.Descendants(root.ID) {
		break
	}
	ids := g.SubtreeIDs(root.ID)
	if len(ids) != 4 {
		t.Errorf("SubtreeIDs returned %d ids, want 4 (root + 3)", len(ids))
	}
}

func TestGraphSoftDelete(t *testing.T) {
	g := NewGraph()
	parent, _ := g.Add("parent", core.KindExpense, nil)
	mid, _ := g.Add("mid", core.KindExpense, &parent.ID)
	child, _ := g.Add("child", core.KindExpense, &mid.ID)

	fallback, err := g.SoftDelete(mid.ID)
	if err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if fallback != g.Uncategorized(core.KindExpense) {
		t.Error("fallback is not the reserved expense category")
	}

	// Children are reparented to the deleted node's parent.
	got, _ := g.Get(child.ID)
	if got.Parent == nil || *got.Parent != parent.ID {
		t.Errorf("child parent = %v, want %s", got.Parent, parent.ID)
	}

	// The node still resolves for historic transactions.
	dead, ok := g.Get(mid.ID)
	if !ok || !dead.Deleted {
		t.Error("deleted category no longer resolvable")
	}
	if g.Usable(mid.ID) {
		t.Error("deleted category still usable for new postings")
	}

	// Tree stays acyclic after deletion.
	if err := g.Reparent(parent.ID, &child.ID); !errors.Is(err, core.ErrCycle) {
		t.Errorf("cycle check broken after delete: %v", err)
	}

	t.Run("reserved cannot be deleted", func(t *testing.T) {
		if _, err := g.SoftDelete(g.Uncategorized(core.KindIncome)); !errors.Is(err, core.ErrReserved) {
			t.Errorf("deleting reserved category = %v, want ErrReserved", err)
		}
	})
}

func TestSeedDefaults(t *testing.T) {
	g := NewGraph()
	if err := SeedDefaults(g); err != nil {
		t.Fatalf("SeedDefaults failed: %v", err)
	}

	food, ok := g.FindByName("food", core.KindExpense)
	if !ok {
		t.Fatal("seeded taxonomy missing food")
	}
	if len(g.SubtreeIDs(food.ID)) < 3 {
		t.Error("food subtree missing children")
	}
	if _, ok := g.FindByName("salary", core.KindIncome); !ok {
		t.Error("seeded taxonomy missing salary")
	}

	// Seeding twice must not duplicate.
	before := len(g.List())
	if err := SeedDefaults(g); err != nil {
		t.Fatalf("second SeedDefaults failed: %v", err)
	}
	if len(g.List()) != before {
		t.Error("second seed duplicated categories")
	}
}
