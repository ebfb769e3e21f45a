// Package workflow models the canvas graph, drives execution progression
// along it, and computes node layout.
package workflow

import (
	"fmt"
	"sync"

	"github.com/BaSui01/canvasflow/types"
)

// NodeType 节点类型
type NodeType string

const (
	NodeTypeRoot     NodeType = "root"
	NodeTypeInitial  NodeType = "initial" // pre-selection placeholder on a fresh canvas
	NodeTypeAgent    NodeType = "agent"
	NodeTypeApproval NodeType = "approval"
	NodeTypeDelivery NodeType = "delivery"
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one canvas node. Position is nil until the layout engine (or the
// user) places it.
type Node struct {
	ID       string    `json:"id"`
	Type     NodeType  `json:"type"`
	AgentID  string    `json:"agent_id,omitempty"`
	Position *Position `json:"position,omitempty"`
}

// Edge connects two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is a mutable workflow graph. Edits are validated: by default every
// node may have at most one outgoing edge, the root accepts no incoming
// edges, and cycles are rejected. Invalid edits leave the graph unchanged.
type Graph struct {
	mu            sync.RWMutex
	nodes         map[string]*Node
	nodeOrder     []string
	edges         map[string]*Edge
	edgeOrder     []string
	allowParallel bool
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithParallelBranches lifts the single-outgoing-edge restriction.
func WithParallelBranches() GraphOption {
	return func(g *Graph) { g.allowParallel = true }
}

// NewGraph creates an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func invalidEdit(format string, args ...any) *types.Error {
	return types.NewError(types.ErrInvalidGraphEdit, fmt.Sprintf(format, args...))
}

// AddNode inserts a node. Duplicate ids and second roots are rejected.
func (g *Graph) AddNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n.ID == "" {
		return invalidEdit("node id is required")
	}
	if _, exists := g.nodes[n.ID]; exists {
		return invalidEdit("duplicate node id: %s", n.ID)
	}
	if n.Type == NodeTypeRoot {
		for _, id := range g.nodeOrder {
			if g.nodes[id].Type == NodeTypeRoot {
				return invalidEdit("graph already has a root node")
			}
		}
	}

	node := n
	g.nodes[n.ID] = &node
	g.nodeOrder = append(g.nodeOrder, n.ID)
	return nil
}

// RemoveNode deletes a node and its incident edges.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return
	}
	delete(g.nodes, id)
	g.nodeOrder = remove(g.nodeOrder, id)

	for _, eid := range append([]string(nil), g.edgeOrder...) {
		e := g.edges[eid]
		if e.Source == id || e.Target == id {
			delete(g.edges, eid)
			g.edgeOrder = remove(g.edgeOrder, eid)
		}
	}
}

// AddEdge validates and inserts an edge.
func (g *Graph) AddEdge(e Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e.ID == "" {
		return invalidEdit("edge id is required")
	}
	if _, exists := g.edges[e.ID]; exists {
		return invalidEdit("duplicate edge id: %s", e.ID)
	}
	if e.Source == e.Target {
		return invalidEdit("self connections are not allowed")
	}
	if _, ok := g.nodes[e.Source]; !ok {
		return invalidEdit("source node not found: %s", e.Source)
	}
	target, ok := g.nodes[e.Target]
	if !ok {
		return invalidEdit("target node not found: %s", e.Target)
	}
	if target.Type == NodeTypeRoot {
		return invalidEdit("root node cannot be a connection target")
	}
	for _, eid := range g.edgeOrder {
		ex := g.edges[eid]
		if ex.Source == e.Source && ex.Target == e.Target {
			return invalidEdit("connection already exists: %s -> %s", e.Source, e.Target)
		}
		if !g.allowParallel && ex.Source == e.Source {
			return invalidEdit("node %s already has an outgoing connection", e.Source)
		}
	}
	if g.wouldCreateCycle(e.Source, e.Target) {
		return invalidEdit("connection would create a cycle")
	}

	edge := e
	g.edges[e.ID] = &edge
	g.edgeOrder = append(g.edgeOrder, e.ID)
	return nil
}

// RemoveEdge deletes an edge.
func (g *Graph) RemoveEdge(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.edges[id]; !ok {
		return
	}
	delete(g.edges, id)
	g.edgeOrder = remove(g.edgeOrder, id)
}

// wouldCreateCycle reports whether target can already reach source.
func (g *Graph) wouldCreateCycle(source, target string) bool {
	visited := map[string]bool{}
	stack := []string{target}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == source {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, eid := range g.edgeOrder {
			if e := g.edges[eid]; e.Source == cur {
				stack = append(stack, e.Target)
			}
		}
	}
	return false
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, *g.edges[id])
	}
	return out
}

// SetPosition stores a node's canvas position.
func (g *Graph) SetPosition(id string, pos Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return invalidEdit("node not found: %s", id)
	}
	p := pos
	n.Position = &p
	return nil
}

// Root returns the root node.
func (g *Graph) Root() (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range g.nodeOrder {
		if n := g.nodes[id]; n.Type == NodeTypeRoot {
			return *n, true
		}
	}
	return Node{}, false
}

// Next follows the outgoing edge of a node. With parallel branches
// disabled there is at most one.
func (g *Graph) Next(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, eid := range g.edgeOrder {
		if e := g.edges[eid]; e.Source == id {
			if n, ok := g.nodes[e.Target]; ok {
				return *n, true
			}
		}
	}
	return Node{}, false
}

// Children returns the targets of a node's outgoing edges, edge order.
func (g *Graph) Children(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, eid := range g.edgeOrder {
		if e := g.edges[eid]; e.Source == id {
			out = append(out, e.Target)
		}
	}
	return out
}

func remove(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
