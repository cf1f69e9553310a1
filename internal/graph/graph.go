// Package graph defines the agent handoff topology for a session. The
// graph is built once at session start from explicit adjacency data and is
// immutable afterwards, so every permitted transfer can be validated and
// the full topology serialized for inspection.
package graph

import (
	"errors"
	"fmt"
	"sort"
)

// ===== ERRORS =====

var (
	// ErrUnknownAgent is returned when a transfer references an agent that
	// is not a node in the graph.
	ErrUnknownAgent = errors.New("agent not present in handoff graph")
	// ErrTransferNotAllowed is returned when the graph has no edge from the
	// source to the target agent.
	ErrTransferNotAllowed = errors.New("transfer not permitted by handoff graph")
)

// ===== GRAPH =====

// Graph is an immutable directed adjacency over agent names. Entry is the
// agent that receives the first user message; Reporter is the only agent
// allowed to author the final investigation report.
type Graph struct {
	edges    map[string][]string
	entry    string
	reporter string
}

// Spec is the serializable form a graph is built from.
type Spec struct {
	Entry    string              `json:"entry" yaml:"entry"`
	Reporter string              `json:"reporter" yaml:"reporter"`
	Edges    map[string][]string `json:"edges" yaml:"edges"`
}

// DefaultSpec returns the standard investigation topology: an orchestrator
// that can hand off to each specialist, each specialist returning to the
// orchestrator.
func DefaultSpec() Spec {
	return Spec{
		Entry:    "InvestigationAgent",
		Reporter: "InvestigationAgent",
		Edges: map[string][]string{
			"InvestigationAgent": {"ComputeSpecialist", "StorageSpecialist", "NetworkSpecialist"},
			"ComputeSpecialist":  {"InvestigationAgent"},
			"StorageSpecialist":  {"InvestigationAgent"},
			"NetworkSpecialist":  {"InvestigationAgent"},
		},
	}
}

// New builds a graph from a spec, validating that entry, reporter and
// every edge endpoint are declared nodes.
func New(spec Spec) (*Graph, error) {
	if len(spec.Edges) == 0 {
		return nil, errors.New("handoff graph has no edges")
	}
	nodes := map[string]bool{}
	for from, targets := range spec.Edges {
		nodes[from] = true
		for _, to := range targets {
			nodes[to] = true
		}
	}
	if spec.Entry == "" {
		return nil, errors.New("handoff graph entry agent not set")
	}
	if !nodes[spec.Entry] {
		return nil, fmt.Errorf("entry agent %q: %w", spec.Entry, ErrUnknownAgent)
	}
	if spec.Reporter == "" {
		spec.Reporter = spec.Entry
	}
	if !nodes[spec.Reporter] {
		return nil, fmt.Errorf("reporter agent %q: %w", spec.Reporter, ErrUnknownAgent)
	}

	edges := make(map[string][]string, len(nodes))
	for name := range nodes {
		targets := append([]string(nil), spec.Edges[name]...)
		sort.Strings(targets)
		edges[name] = targets
	}
	return &Graph{edges: edges, entry: spec.Entry, reporter: spec.Reporter}, nil
}

// Entry returns the agent that receives the first user message.
func (g *Graph) Entry() string { return g.entry }

// Reporter returns the sole agent permitted to author the final report.
func (g *Graph) Reporter() string { return g.reporter }

// Contains reports whether the named agent is a node in the graph.
func (g *Graph) Contains(name string) bool {
	_, ok := g.edges[name]
	return ok
}

// CanTransfer reports whether an edge exists from one agent to another.
func (g *Graph) CanTransfer(from, to string) bool {
	for _, t := range g.edges[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ValidateTransfer returns a descriptive error when the transfer is not
// permitted, distinguishing unknown agents from missing edges.
func (g *Graph) ValidateTransfer(from, to string) error {
	if !g.Contains(from) {
		return fmt.Errorf("source %q: %w", from, ErrUnknownAgent)
	}
	if !g.Contains(to) {
		return fmt.Errorf("target %q: %w", to, ErrUnknownAgent)
	}
	if !g.CanTransfer(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrTransferNotAllowed)
	}
	return nil
}

// Targets returns the sorted list of agents reachable from the given agent.
func (g *Graph) Targets(from string) []string {
	return append([]string(nil), g.edges[from]...)
}

// Agents returns every node name in sorted order.
func (g *Graph) Agents() []string {
	names := make([]string, 0, len(g.edges))
	for name := range g.edges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Adjacency returns a deep copy of the edge map for serialization.
func (g *Graph) Adjacency() map[string][]string {
	out := make(map[string][]string, len(g.edges))
	for name, targets := range g.edges {
		out[name] = append([]string(nil), targets...)
	}
	return out
}
