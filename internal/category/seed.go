package category

import (
	_ "embed"
	"fmt"

	"bilancio/internal/core"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

type seedNode struct {
	Name     string   `yaml:"name"`
	Children []string `yaml:"children,omitempty"`
}

// UnmarshalYAML accepts either a bare string or a {name, children}
// mapping, so the taxonomy file stays compact.
func (n *seedNode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		n.Name = value.Value
		return nil
	}
	type plain seedNode
	return value.Decode((*plain)(n))
}

type seedFile struct {
	Expense []seedNode `yaml:"expense"`
	Income  []seedNode `yaml:"income"`
}

// SeedDefaults populates an empty graph with the embedded default
// taxonomy. Graphs that already hold user categories are left alone.
func SeedDefaults(g *Graph) error {
	for _, cat := range g.List() {
		if cat.Name != UncategorizedName {
			return nil
		}
	}

	var file seedFile
	if err := yaml.Unmarshal(defaultTaxonomy, &file); err != nil {
		return fmt.Errorf("parse default taxonomy: %w", err)
	}

	plant := func(nodes []seedNode, kind core.Kind) error {
		for _, node := range nodes {
			parent, err := g.Add(node.Name, kind, nil)
			if err != nil {
				return fmt.Errorf("seed category %q: %w", node.Name, err)
			}
			for _, child := range node.Children {
				if _, err := g.Add(child, kind, &parent.ID); err != nil {
					return fmt.Errorf("seed category %q/%q: %w", node.Name, child, err)
				}
			}
		}
		return nil
	}

	if err := plant(file.Expense, core.KindExpense); err != nil {
		return err
	}
	return plant(file.Income, core.KindIncome)
}
