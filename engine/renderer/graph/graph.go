// Package graph schedules the passes of a frame. Passes run strictly in
// registration order on the frame's primary command buffer; the caller
// registers them in an order consistent with their resource dependencies and
// each producing pass issues the barriers its consumers need.
package graph

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
)

// RecordFunc records the commands of a pass between Begin and End of its
// context.
type RecordFunc func(f *pass.Frame, ctx *pass.Context) error

type node struct {
	name   string
	record RecordFunc
	ctx    *pass.Context
}

type Graph struct {
	nodes []*node
	index map[string]int
	// LabelColor tints the debug labels opened around every pass.
	LabelColor [4]float32
}

func New() *Graph {
	return &Graph{
		index:      make(map[string]int),
		LabelColor: [4]float32{0.4, 0.6, 1, 1},
	}
}

// AddPass appends a pass. Its context defaults to one without attachments
// until SetPassContext replaces it. Names must be unique.
func (g *Graph) AddPass(name string, record RecordFunc) *Graph {
	if _, ok := g.index[name]; ok {
		panic(errors.AssertionFailedf("render graph: pass %q registered twice", name))
	}
	if record == nil {
		panic(errors.AssertionFailedf("render graph: pass %q has no record callback", name))
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, &node{name: name, record: record, ctx: pass.New(name)})
	return g
}

func (g *Graph) SetPassContext(name string, ctx *pass.Context) error {
	i, ok := g.index[name]
	if !ok {
		return errors.Wrapf(core.ErrNotFound, "render graph: pass %q", name)
	}
	g.nodes[i].ctx = ctx
	return nil
}

// Context returns the context bound to a pass, or nil.
func (g *Graph) Context(name string) *pass.Context {
	if i, ok := g.index[name]; ok {
		return g.nodes[i].ctx
	}
	return nil
}

// Passes returns the pass names in execution order.
func (g *Graph) Passes() []string {
	names := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		names[i] = n.name
	}
	return names
}

func (g *Graph) RemovePass(name string) bool {
	i, ok := g.index[name]
	if !ok {
		return false
	}
	g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
	delete(g.index, name)
	for j := i; j < len(g.nodes); j++ {
		g.index[g.nodes[j].name] = j
	}
	return true
}

// Execute records every pass into f.Cmd. The first failing pass stops the
// execution; the scope it opened is still closed so the command buffer stays
// consistent, and the frame is expected to be dropped by the caller.
func (g *Graph) Execute(f *pass.Frame) error {
	for _, n := range g.nodes {
		if err := g.run(n, f); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) run(n *node, f *pass.Frame) error {
	f.Cmd.BeginLabel(n.name, g.LabelColor)
	defer f.Cmd.EndLabel()

	n.ctx.Bind(f)
	// a failed Begin has already closed whatever it opened
	if err := n.ctx.Begin(); err != nil {
		return errors.Wrapf(err, "beginning pass %q", n.name)
	}
	recErr := n.record(f, n.ctx)
	if err := n.ctx.End(); err != nil {
		return errors.CombineErrors(recErr, errors.Wrapf(err, "ending pass %q", n.name))
	}
	if recErr != nil {
		return errors.Wrapf(recErr, "recording pass %q", n.name)
	}
	return nil
}
