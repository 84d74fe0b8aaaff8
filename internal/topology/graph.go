package topology

import (
	"fmt"
	"sort"
)

// Graph is a read-only index over the device topology.
// Built once by NewGraph; all accessors are safe for concurrent use.
type Graph struct {
	nodes    map[string]Node
	children map[string][]string
}

// IntegrityError indicates an invalid topology: duplicate device ids,
// orphaned parent references, or cycles. It is fatal at load time; the
// engine must not start with an invalid graph.
type IntegrityError struct {
	message string
}

// Error returns the error message
func (e *IntegrityError) Error() string {
	return e.message
}

func newIntegrityError(format string, args ...interface{}) *IntegrityError {
	return &IntegrityError{message: fmt.Sprintf(format, args...)}
}

// NewGraph builds the topology index from a list of nodes.
// Returns an *IntegrityError if the nodes do not form a forest.
func NewGraph(nodes []Node) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[string]Node, len(nodes)),
		children: make(map[string][]string),
	}

	for _, n := range nodes {
		if n.ID == "" {
			return nil, newIntegrityError("node with empty id")
		}
		if _, exists := g.nodes[n.ID]; exists {
			return nil, newIntegrityError("duplicate device id %q", n.ID)
		}
		g.nodes[n.ID] = n
	}

	for _, n := range g.nodes {
		if n.ParentID == "" {
			continue
		}
		if n.ParentID == n.ID {
			return nil, newIntegrityError("device %q references itself as parent", n.ID)
		}
		if _, ok := g.nodes[n.ParentID]; !ok {
			return nil, newIntegrityError("device %q references unknown parent %q", n.ID, n.ParentID)
		}
		g.children[n.ParentID] = append(g.children[n.ParentID], n.ID)
	}

	// Sorted child lists keep downstream iteration deterministic.
	for _, ids := range g.children {
		sort.Strings(ids)
	}

	if err := g.checkCycles(); err != nil {
		return nil, err
	}

	return g, nil
}

// checkCycles walks every parent chain. A forest chain terminates at a root
// within len(nodes) hops; anything longer revisits a node.
func (g *Graph) checkCycles() error {
	for id := range g.nodes {
		seen := map[string]bool{id: true}
		current := id
		for {
			parent := g.nodes[current].ParentID
			if parent == "" {
				break
			}
			if seen[parent] {
				return newIntegrityError("cycle detected involving device %q", parent)
			}
			seen[parent] = true
			current = parent
		}
	}
	return nil
}

// Len returns the number of devices in the topology.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node for the given device id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// ParentID returns the parent device id, or "" if the device is a root
// or unknown.
func (g *Graph) ParentID(id string) string {
	return g.nodes[id].ParentID
}

// Children returns the sorted child ids of the given device.
func (g *Graph) Children(id string) []string {
	return g.children[id]
}

// Parents returns the sorted ids of all devices that have children.
func (g *Graph) Parents() []string {
	ids := make([]string, 0, len(g.children))
	for id := range g.children {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PSUCount returns the device's PSU count, or def when unknown.
func (g *Graph) PSUCount(id string, def int) int {
	n, ok := g.nodes[id]
	if !ok || n.Metadata.PSUCount == 0 {
		return def
	}
	return n.Metadata.PSUCount
}

// Metadata returns the device metadata. Unknown devices yield the zero value.
func (g *Graph) Metadata(id string) Metadata {
	return g.nodes[id].Metadata
}
