package workflow

import "math"

// Canvas layout constants.
const (
	DefaultContainerHeight = 938.0
	DefaultContainerWidth  = 1680.0

	RootNodeX = 40.0
	RootNodeY = DefaultContainerHeight * 0.40

	NodeSpacingX = 500.0 // horizontal distance between a node and its children
	NodeSpacingY = 1000.0

	NodeWidth  = 288.0
	NodeHeight = 224.0

	rankSep = 50.0
	nodeSep = 50.0
)

// Layout computes positions for the graph's nodes and returns them keyed by
// node id. Two modes:
//
//   - A canvas holding only initial-choice nodes gets a layered top-to-bottom
//     layout recentered into the viewport.
//   - A workflow canvas keeps every stored position and only places nodes
//     that have none, anchored to their parent.
//
// The result is deterministic for a given graph.
func Layout(g *Graph, containerWidth, containerHeight float64) map[string]Position {
	if containerWidth <= 0 {
		containerWidth = DefaultContainerWidth
	}
	if containerHeight <= 0 {
		containerHeight = DefaultContainerHeight
	}

	nodes := g.Nodes()
	if len(nodes) == 0 {
		return map[string]Position{}
	}

	allInitial := true
	for _, n := range nodes {
		if n.Type != NodeTypeInitial {
			allInitial = false
			break
		}
	}
	if allInitial {
		return layeredLayout(nodes, g.Edges(), containerWidth, containerHeight)
	}
	return anchoredLayout(nodes, g.Edges())
}

// layeredLayout ranks nodes top-to-bottom by longest path from a source and
// spreads each rank horizontally, then shifts the block into the viewport.
func layeredLayout(nodes []Node, edges []Edge, containerWidth, containerHeight float64) map[string]Position {
	rank := make(map[string]int, len(nodes))
	for _, n := range nodes {
		rank[n.ID] = 0
	}

	// Longest-path ranking; the graph is acyclic so this settles.
	for changed := true; changed; {
		changed = false
		for _, e := range edges {
			if r := rank[e.Source] + 1; r > rank[e.Target] {
				rank[e.Target] = r
				changed = true
			}
		}
	}

	perRank := map[int]int{}
	out := make(map[string]Position, len(nodes))
	for _, n := range nodes {
		r := rank[n.ID]
		col := perRank[r]
		perRank[r]++

		// Center coordinates per rank/column, then viewport recentering.
		x := float64(col)*(NodeWidth+nodeSep) + NodeWidth/2
		y := float64(r)*(NodeHeight+rankSep) + NodeHeight/2
		out[n.ID] = Position{
			X: x + containerWidth/4.5,
			Y: y + containerHeight/3,
		}
	}
	return out
}

// anchoredLayout keeps stored positions and derives missing ones from the
// parent: fixed horizontal offset, first child level with the parent,
// later children distributed around it.
func anchoredLayout(nodes []Node, edges []Edge) map[string]Position {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	children := map[string][]string{}
	hasIncoming := map[string]bool{}
	parentOf := map[string]string{}
	for _, e := range edges {
		children[e.Source] = append(children[e.Source], e.Target)
		hasIncoming[e.Target] = true
		parentOf[e.Target] = e.Source
	}

	out := make(map[string]Position, len(nodes))

	var place func(id string)
	place = func(id string) {
		if _, done := out[id]; done {
			return
		}
		n, ok := byID[id]
		if !ok {
			return
		}

		if n.Position != nil {
			out[id] = *n.Position
		} else if parent, ok := parentOf[id]; ok {
			parentPos, placed := out[parent]
			if !placed {
				return
			}
			siblings := children[parent]
			index := 0
			for i, sib := range siblings {
				if sib == id {
					index = i
					break
				}
			}
			y := parentPos.Y
			if index > 0 {
				y += float64(index-int(math.Ceil(float64(len(siblings))/2))) * NodeSpacingY
			}
			out[id] = Position{X: parentPos.X + NodeSpacingX, Y: y}
		} else {
			out[id] = Position{X: RootNodeX, Y: RootNodeY}
		}

		for _, child := range children[id] {
			place(child)
		}
	}

	for _, n := range nodes {
		if !hasIncoming[n.ID] {
			place(n.ID)
		}
	}

	// Disconnected leftovers keep whatever they had.
	for _, n := range nodes {
		if _, done := out[n.ID]; !done {
			if n.Position != nil {
				out[n.ID] = *n.Position
			} else {
				out[n.ID] = Position{}
			}
		}
	}
	return out
}

// PlanChildPositions places a prospective new child of parent given the ids
// of its existing children, in order. The first child sits level with the
// parent; later children alternate above and below with shrinking spacing.
// The returned slice holds the existing children followed by the new node
// under the id "new-node".
func PlanChildPositions(parent Node, siblings []string) []PlannedPosition {
	if parent.Position == nil {
		parent.Position = &Position{}
	}
	base := *parent.Position
	verticalSpacing := math.Max(NodeHeight*0.8, NodeSpacingY)

	if len(siblings) == 0 {
		return []PlannedPosition{{
			ID:       "new-node",
			Position: Position{X: base.X + NodeSpacingX, Y: base.Y},
		}}
	}

	out := []PlannedPosition{{
		ID:       siblings[0],
		Position: Position{X: base.X + NodeSpacingX, Y: base.Y},
	}}

	spacingMultiplier := func(index int) float64 {
		return math.Max(0.4, 1-float64(index)*0.15)
	}

	rest := siblings[1:]
	for i, sib := range rest {
		offset := math.Ceil(float64(i+1)/2) * verticalSpacing * spacingMultiplier(i)
		y := base.Y + offset
		if i%2 == 0 {
			y = base.Y - offset
		}
		out = append(out, PlannedPosition{ID: sib, Position: Position{X: base.X + NodeSpacingX, Y: y}})
	}

	offset := math.Ceil(float64(len(rest)+1)/2) * verticalSpacing * spacingMultiplier(len(rest))
	y := base.Y + offset
	if len(rest)%2 == 0 {
		y = base.Y - offset
	}
	out = append(out, PlannedPosition{ID: "new-node", Position: Position{X: base.X + NodeSpacingX, Y: y}})
	return out
}

// PlannedPosition pairs a node id with its computed position.
type PlannedPosition struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}
