package workflow

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_InitialChoiceMode(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"i1", "i2", "i3"} {
		require.NoError(t, g.AddNode(Node{ID: id, Type: NodeTypeInitial}))
	}

	pos := Layout(g, DefaultContainerWidth, DefaultContainerHeight)
	require.Len(t, pos, 3)

	// All ranks are zero without edges, so nodes spread horizontally at one
	// recentered row.
	wantY := NodeHeight/2 + DefaultContainerHeight/3
	for _, id := range []string{"i1", "i2", "i3"} {
		assert.InDelta(t, wantY, pos[id].Y, 0.001, id)
	}
	assert.Less(t, pos["i1"].X, pos["i2"].X)
	assert.Less(t, pos["i2"].X, pos["i3"].X)
}

func TestLayout_InitialChoiceModeRanked(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode(Node{ID: "top", Type: NodeTypeInitial}))
	require.NoError(t, g.AddNode(Node{ID: "bottom", Type: NodeTypeInitial}))
	require.NoError(t, g.AddEdge(Edge{ID: "e1", Source: "top", Target: "bottom"}))

	pos := Layout(g, 0, 0)
	assert.Less(t, pos["top"].Y, pos["bottom"].Y)
}

func TestLayout_WorkflowModePlacesOnlyUnpositioned(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode(Node{ID: "root", Type: NodeTypeRoot, Position: &Position{X: 40, Y: 375.2}}))
	require.NoError(t, g.AddNode(Node{ID: "a", Type: NodeTypeAgent, Position: &Position{X: 700, Y: 100}}))
	require.NoError(t, g.AddNode(Node{ID: "b", Type: NodeTypeAgent}))
	require.NoError(t, g.AddEdge(Edge{ID: "e1", Source: "root", Target: "a"}))
	require.NoError(t, g.AddEdge(Edge{ID: "e2", Source: "a", Target: "b"}))

	pos := Layout(g, 0, 0)

	// Stored positions are untouched.
	assert.Equal(t, Position{X: 40, Y: 375.2}, pos["root"])
	assert.Equal(t, Position{X: 700, Y: 100}, pos["a"])

	// The new node anchors to its parent: fixed x offset, level as the
	// first (only) child.
	assert.Equal(t, Position{X: 700 + NodeSpacingX, Y: 100}, pos["b"])
}

func TestLayout_WorkflowModeRootFallback(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode(Node{ID: "root", Type: NodeTypeRoot}))

	pos := Layout(g, 0, 0)
	assert.Equal(t, Position{X: RootNodeX, Y: RootNodeY}, pos["root"])
}

func TestLayout_WorkflowModeSiblingDistribution(t *testing.T) {
	g := NewGraph(WithParallelBranches())
	require.NoError(t, g.AddNode(Node{ID: "p", Type: NodeTypeAgent, Position: &Position{X: 0, Y: 0}}))
	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, g.AddNode(Node{ID: id, Type: NodeTypeAgent}))
		require.NoError(t, g.AddEdge(Edge{ID: "e-" + id, Source: "p", Target: id}))
	}

	pos := Layout(g, 0, 0)

	// First child is level with the parent; the rest spread around it.
	assert.Equal(t, 0.0, pos["c1"].Y)
	for _, id := range []string{"c1", "c2", "c3"} {
		assert.Equal(t, NodeSpacingX, pos[id].X)
	}
	assert.NotEqual(t, pos["c2"].Y, pos["c3"].Y)
}

func TestPlanChildPositions_FirstChild(t *testing.T) {
	parent := Node{ID: "p", Position: &Position{X: 100, Y: 200}}

	planned := PlanChildPositions(parent, nil)
	require.Len(t, planned, 1)
	assert.Equal(t, "new-node", planned[0].ID)
	assert.Equal(t, Position{X: 100 + NodeSpacingX, Y: 200}, planned[0].Position)
}

func TestPlanChildPositions_AlternatingSiblings(t *testing.T) {
	parent := Node{ID: "p", Position: &Position{X: 0, Y: 0}}

	planned := PlanChildPositions(parent, []string{"c1", "c2"})
	require.Len(t, planned, 3)

	// First child keeps the parent's y.
	assert.Equal(t, 0.0, planned[0].Position.Y)
	// Second existing sibling goes above.
	assert.Less(t, planned[1].Position.Y, 0.0)
	// The new node lands on the opposite side.
	assert.Greater(t, planned[2].Position.Y, 0.0)
}

func TestPlanChildPositions_SpacingShrinks(t *testing.T) {
	parent := Node{ID: "p", Position: &Position{X: 0, Y: 0}}

	many := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8"}
	planned := PlanChildPositions(parent, many)

	// Spacing multiplier bottoms out at 0.4 of the base spacing.
	last := planned[len(planned)-1]
	maxOffset := math.Ceil(float64(len(many))/2) * NodeSpacingY
	assert.LessOrEqual(t, math.Abs(last.Position.Y), maxOffset)
}

// Property: layout is a pure function of the graph — identical inputs give
// identical outputs, and nodes with stored positions are never moved.
func TestLayout_DeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	buildGraph := func(chainLen int, positioned []bool) *Graph {
		g := NewGraph()
		_ = g.AddNode(Node{ID: "root", Type: NodeTypeRoot, Position: &Position{X: RootNodeX, Y: RootNodeY}})
		prev := "root"
		for i := 0; i < chainLen; i++ {
			id := string(rune('a' + i))
			n := Node{ID: id, Type: NodeTypeAgent}
			if i < len(positioned) && positioned[i] {
				n.Position = &Position{X: float64(i) * 100, Y: float64(i) * 50}
			}
			_ = g.AddNode(n)
			_ = g.AddEdge(Edge{ID: "e-" + id, Source: prev, Target: id})
			prev = id
		}
		return g
	}

	properties.Property("identical inputs yield identical layouts", prop.ForAll(
		func(chainLen int, positioned []bool) bool {
			a := Layout(buildGraph(chainLen, positioned), 0, 0)
			b := Layout(buildGraph(chainLen, positioned), 0, 0)
			if len(a) != len(b) {
				return false
			}
			for id, pos := range a {
				if b[id] != pos {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("stored positions survive layout", prop.ForAll(
		func(chainLen int) bool {
			positioned := make([]bool, chainLen)
			for i := range positioned {
				positioned[i] = i%2 == 0
			}
			g := buildGraph(chainLen, positioned)
			layout := Layout(g, 0, 0)
			for _, n := range g.Nodes() {
				if n.Position != nil && layout[n.ID] != *n.Position {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
