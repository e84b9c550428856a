// Package graph projects an agent configuration onto the architecture
// diagram the builder UI renders while a build is in flight. The
// projection is pure: the same connection list always yields the same
// nodes and edges in the same order, so re-rendering an unchanged
// configuration never reshuffles the diagram.
package graph

import (
	"github.com/shirisha-ilura/UL/internal/catalog"
	"github.com/shirisha-ilura/UL/pkg/models"
)

// Core node IDs present in every diagram.
const (
	ReasoningNodeID = "reasoning"
	MemoryNodeID    = "memory"
)

// Builder derives architecture diagrams from OAuth connection lists.
type Builder struct {
	registry *catalog.Registry
}

// New returns a Builder backed by the given integration registry.
func New(registry *catalog.Registry) *Builder {
	return &Builder{registry: registry}
}

// Build constructs the diagram for a connection list. Every diagram
// carries a reasoning node and a memory node. Each recognized
// connection contributes one integration node, in input order, wired
// to both core nodes. Unrecognized connections are omitted rather than
// rendered as generic nodes, and duplicates collapse into one node.
func (b *Builder) Build(connections []string) models.ArchitectureGraph {
	g := models.ArchitectureGraph{
		Nodes: []models.GraphNode{
			{ID: ReasoningNodeID, Kind: models.NodeReasoning, Label: "Reasoning Engine"},
			{ID: MemoryNodeID, Kind: models.NodeMemory, Label: "Memory"},
		},
		Edges: []models.GraphEdge{},
	}

	for _, in := range b.registry.Recognized(connections) {
		g.Nodes = append(g.Nodes, in.Node())
		g.Edges = append(g.Edges,
			models.GraphEdge{From: in.NodeID(), To: ReasoningNodeID},
			models.GraphEdge{From: in.NodeID(), To: MemoryNodeID},
		)
	}
	return g
}

// FromConfig builds the diagram for a proposed or finalized
// configuration. A nil configuration yields the bare core diagram.
func (b *Builder) FromConfig(cfg *models.AgentConfiguration) models.ArchitectureGraph {
	if cfg == nil {
		return b.Build(nil)
	}
	return b.Build(cfg.Connections())
}
