package artifact

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Node is one compiler AST node. The AST arrives as schemaless JSON; Node
// validates the fields the debugger relies on at decode time and keeps the
// rest available through child accessors.
type Node struct {
	NodeType   string
	Src        string
	Name       string
	TypeString string

	raw map[string]any
}

func decodeNode(m map[string]any) (*Node, error) {
	n := &Node{raw: m}

	if v, ok := m["nodeType"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("ast node has non-string nodeType %T", v)
		}

		n.NodeType = s
	}

	if v, ok := m["src"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("ast node has non-string src %T", v)
		}

		n.Src = s
	}

	if v, ok := m["name"].(string); ok {
		n.Name = v
	}

	if td, ok := m["typeDescriptions"].(map[string]any); ok {
		if ts, ok := td["typeString"].(string); ok {
			n.TypeString = ts
		}
	}

	return n, nil
}

// Child returns the named child node, when present and object-valued.
func (n *Node) Child(key string) (*Node, bool) {
	m, ok := n.raw[key].(map[string]any)
	if !ok {
		return nil, false
	}

	child, err := decodeNode(m)
	if err != nil {
		return nil, false
	}

	return child, true
}

// ChildList returns the named child list, skipping non-object entries.
func (n *Node) ChildList(key string) []*Node {
	items, ok := n.raw[key].([]any)
	if !ok {
		return nil
	}

	out := make([]*Node, 0, len(items))

	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		child, err := decodeNode(m)
		if err != nil {
			continue
		}

		out = append(out, child)
	}

	return out
}

// SrcTriple parses the node's "src" attribute into (start, length, file).
func (n *Node) SrcTriple() (start, length, file int, err error) {
	parts := strings.Split(n.Src, ":")
	if len(parts) < 3 {
		return 0, 0, 0, fmt.Errorf("malformed ast src %q", n.Src)
	}

	vals := make([]int, 3)

	for i := 0; i < 3; i++ {
		v, perr := strconv.Atoi(parts[i])
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("malformed ast src %q: %w", n.Src, perr)
		}

		vals[i] = v
	}

	return vals[0], vals[1], vals[2], nil
}

// AssignmentTarget returns the left-hand side of an assignment expression
// statement, when this node is one.
func (n *Node) AssignmentTarget() (*Node, bool) {
	expr, ok := n.Child("expression")
	if !ok || expr.NodeType != "Assignment" {
		return nil, false
	}

	return expr.Child("leftHandSide")
}

// FirstDeclaration returns the first declared variable of a variable
// declaration statement, when this node is one.
func (n *Node) FirstDeclaration() (*Node, bool) {
	decls := n.ChildList("declarations")
	if len(decls) == 0 || decls[0].NodeType != "VariableDeclaration" {
		return nil, false
	}

	return decls[0], true
}

// Parameters returns the declared parameters of a function definition.
func (n *Node) Parameters() []*Node {
	params, ok := n.Child("parameters")
	if !ok {
		return nil
	}

	return params.ChildList("parameters")
}

// ReturnParameters returns the declared return parameters of a function
// definition.
func (n *Node) ReturnParameters() []*Node {
	params, ok := n.Child("returnParameters")
	if !ok {
		return nil
	}

	return params.ChildList("parameters")
}

// SourceIndex maps, per compilation unit, a source range key "start:length:file"
// to every AST node occupying exactly that range.
type SourceIndex struct {
	units map[string]map[string][]*Node
}

// SrcKey formats a source range the way AST nodes carry it.
func SrcKey(start, length, file int) string {
	return fmt.Sprintf("%d:%d:%d", start, length, file)
}

// BuildSourceIndex walks every artifact's AST breadth-first and indexes nodes
// by their source range. Units sharing a source path are indexed once.
func BuildSourceIndex(list *List) (*SourceIndex, error) {
	idx := &SourceIndex{units: map[string]map[string][]*Node{}}

	for key, a := range list.All() {
		if _, ok := idx.units[a.UnitName]; ok {
			continue
		}

		if len(a.AST) == 0 {
			continue
		}

		var root map[string]any
		if err := json.Unmarshal(a.AST, &root); err != nil {
			return nil, fmt.Errorf("failed to parse ast for %s:%s: %w", key.UnitName, key.ContractName, err)
		}

		unitIndex := map[string][]*Node{}

		queue := []any{root}
		for len(queue) > 0 {
			item := queue[0]
			queue = queue[1:]

			switch v := item.(type) {
			case map[string]any:
				node, err := decodeNode(v)
				if err != nil {
					return nil, fmt.Errorf("invalid ast node in %s: %w", a.UnitName, err)
				}

				if node.Src != "" {
					unitIndex[node.Src] = append(unitIndex[node.Src], node)
				}

				for _, value := range v {
					switch cv := value.(type) {
					case map[string]any, []any:
						queue = append(queue, cv)
					}
				}
			case []any:
				for _, elem := range v {
					queue = append(queue, elem)
				}
			}
		}

		idx.units[a.UnitName] = unitIndex
	}

	return idx, nil
}

// Lookup returns all AST nodes of a unit mapped to exactly the given source
// range, keyed by node type. Later nodes of the same type win, matching the
// compiler's innermost-last ordering.
func (idx *SourceIndex) Lookup(unitName string, start, length, file int) map[string]*Node {
	out := map[string]*Node{}

	unitIndex, ok := idx.units[unitName]
	if !ok {
		return out
	}

	for _, node := range unitIndex[SrcKey(start, length, file)] {
		if node.NodeType != "" {
			out[node.NodeType] = node
		}
	}

	return out
}
