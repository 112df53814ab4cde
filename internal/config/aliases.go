package config

import (
	"fmt"

	"htmlinc/internal/alias"

	"gopkg.in/yaml.v3"
)

// Aliases is an ordered alias mapping. In YAML it is written as a mapping
// from prefix to directory; key order is match order.
type Aliases []alias.Entry

// UnmarshalYAML keeps the document order of the mapping keys.
func (a *Aliases) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: aliases must be a mapping", node.Line)
	}
	out := make(Aliases, 0, len(node.Content)/2)
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var prefix, dir string
		if err := node.Content[i].Decode(&prefix); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&dir); err != nil {
			return fmt.Errorf("alias %q: %w", prefix, err)
		}
		if seen[prefix] {
			return fmt.Errorf("line %d: duplicate alias %q", node.Content[i].Line, prefix)
		}
		seen[prefix] = true
		out = append(out, alias.Entry{Prefix: prefix, Dir: dir})
	}
	*a = out
	return nil
}

// MarshalYAML writes the aliases back as an ordered mapping.
func (a Aliases) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range a {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Prefix},
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Dir},
		)
	}
	return node, nil
}
