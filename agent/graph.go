package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/tool"
)

// Names of the distinguished nodes every strategy has.
const (
	StartNodeName  = "__start__"
	FinishNodeName = "__finish__"
)

// NodeFunc is the work function of a node.
type NodeFunc[I, O any] func(ctx context.Context, ac *Context, in I) (O, error)

// Condition decides whether an edge accepts a node output. An error is fatal
// to the run.
type Condition[O any] func(ctx context.Context, ac *Context, out O) (bool, error)

// Transform maps a node output to the input of the edge target. An error is
// fatal to the run.
type Transform[O, T any] func(ctx context.Context, ac *Context, out O) (T, error)

// Vertex is the type erased view of a node used by the execution engine.
type Vertex interface {
	Name() string
	// IsFinish reports whether the vertex is the finish node.
	IsFinish() bool
	// Execute runs the work function with in, which must have the node's
	// input type.
	Execute(ctx context.Context, ac *Context, in any) (any, error)
	// Next selects the first outgoing edge accepting out and returns its
	// target with the transformed input.
	Next(ctx context.Context, ac *Context, out any) (Vertex, any, error)
}

// Node is a typed handle to a node of a strategy under construction.
type Node[I, O any] struct {
	v *vertex
}

// Name returns the node name.
func (n *Node[I, O]) Name() string { return n.v.name }

type edge struct {
	to      *vertex
	resolve func(ctx context.Context, ac *Context, out any) (any, bool, error)
}

type vertex struct {
	name   string
	owner  *StrategyBuilder
	finish bool
	run    func(ctx context.Context, ac *Context, in any) (any, error)
	edges  []edge
}

func (v *vertex) Name() string   { return v.name }
func (v *vertex) IsFinish() bool { return v.finish }

func (v *vertex) Execute(ctx context.Context, ac *Context, in any) (any, error) {
	return v.run(ctx, ac, in)
}

func (v *vertex) Next(ctx context.Context, ac *Context, out any) (Vertex, any, error) {
	for _, e := range v.edges {
		next, ok, err := e.resolve(ctx, ac, out)
		if err != nil {
			return nil, nil, fmt.Errorf("edge %s -> %s: %w", v.name, e.to.name, err)
		}
		if ok {
			return e.to, next, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: node %s produced %T", core.ErrNoMatchingEdge, v.name, out)
}

// ToolSelection narrows the registered tools to those offered to the model.
type ToolSelection func(all []tool.Descriptor) []tool.Descriptor

// AllTools offers every registered tool.
func AllTools() ToolSelection {
	return func(all []tool.Descriptor) []tool.Descriptor { return slices.Clone(all) }
}

// NoTools offers no tool.
func NoTools() ToolSelection {
	return func([]tool.Descriptor) []tool.Descriptor { return nil }
}

// ToolsNamed offers only the named tools, in registration order.
func ToolsNamed(names ...string) ToolSelection {
	return func(all []tool.Descriptor) []tool.Descriptor {
		var out []tool.Descriptor
		for _, d := range all {
			if slices.Contains(names, d.Name) {
				out = append(out, d)
			}
		}
		return out
	}
}

// StrategyOptions configure a strategy.
type StrategyOptions struct {
	ToolSelection ToolSelection
}

// StrategyBuilder assembles the graph of a Strategy. It is not safe for
// concurrent use. Construction errors are collected and reported by Build.
type StrategyBuilder struct {
	name   string
	opts   StrategyOptions
	start  *Node[string, string]
	finish *Node[string, string]
	order  []*vertex
	names  map[string]struct{}
	errs   []error
	sealed bool
}

// NewStrategy starts building a strategy called name.
func NewStrategy(name string, optFns ...func(o *StrategyOptions)) *StrategyBuilder {
	opts := StrategyOptions{ToolSelection: AllTools()}
	for _, fn := range optFns {
		fn(&opts)
	}

	b := &StrategyBuilder{name: name, opts: opts, names: make(map[string]struct{})}
	b.start = &Node[string, string]{v: b.add(StartNodeName, identity)}
	b.finish = &Node[string, string]{v: b.add(FinishNodeName, identity)}
	b.finish.v.finish = true
	return b
}

func identity(_ context.Context, _ *Context, in any) (any, error) { return in, nil }

// Start returns the start node. It passes the run input through.
func (b *StrategyBuilder) Start() *Node[string, string] { return b.start }

// Finish returns the finish node. The value delivered to it is the run result.
func (b *StrategyBuilder) Finish() *Node[string, string] { return b.finish }

func (b *StrategyBuilder) add(name string, run func(ctx context.Context, ac *Context, in any) (any, error)) *vertex {
	if b.sealed {
		panic("agent: strategy " + b.name + " already built")
	}
	if name == "" {
		b.errs = append(b.errs, errors.New("node name must not be empty"))
	} else if _, dup := b.names[name]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate node %s", name))
	}
	b.names[name] = struct{}{}

	v := &vertex{name: name, owner: b, run: run}
	b.order = append(b.order, v)
	return v
}

// AddNode registers a node running fn and returns its handle.
func AddNode[I, O any](b *StrategyBuilder, name string, fn NodeFunc[I, O]) *Node[I, O] {
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("node %s: nil work function", name))
	}
	v := b.add(name, func(ctx context.Context, ac *Context, in any) (any, error) {
		typed, ok := in.(I)
		if !ok && in != nil {
			return nil, fmt.Errorf("%w: node %s got %T", core.ErrNodeInputMismatch, name, in)
		}
		return fn(ctx, ac, typed)
	})
	return &Node[I, O]{v: v}
}

// AddEdge connects from to to. The edge is taken when cond accepts the
// output of from (a nil cond always accepts); transform then produces the
// input of to. Edges are tried in the order they were added and the first
// accepting edge wins.
func AddEdge[FI, FO, TI, TO any](b *StrategyBuilder, from *Node[FI, FO], to *Node[TI, TO], cond Condition[FO], transform Transform[FO, TI]) {
	if b.sealed {
		panic("agent: strategy " + b.name + " already built")
	}
	if err := b.checkEdge(from.v, to.v); err != nil {
		b.errs = append(b.errs, err)
		return
	}
	if transform == nil {
		b.errs = append(b.errs, fmt.Errorf("edge %s -> %s: nil transform", from.v.name, to.v.name))
		return
	}
	if cond == nil {
		cond = Always[FO]()
	}

	from.v.edges = append(from.v.edges, edge{
		to: to.v,
		resolve: func(ctx context.Context, ac *Context, out any) (any, bool, error) {
			typed, _ := out.(FO)
			ok, err := cond(ctx, ac, typed)
			if err != nil || !ok {
				return nil, false, err
			}
			next, err := transform(ctx, ac, typed)
			if err != nil {
				return nil, false, err
			}
			return next, true, nil
		},
	})
}

// Forward connects from to to without transforming the output.
func Forward[FI, O, TO any](b *StrategyBuilder, from *Node[FI, O], to *Node[O, TO], cond Condition[O]) {
	AddEdge(b, from, to, cond, Identity[O]())
}

func (b *StrategyBuilder) checkEdge(from, to *vertex) error {
	switch {
	case from.owner != b || to.owner != b:
		return fmt.Errorf("edge %s -> %s: node belongs to another strategy", from.name, to.name)
	case from.finish:
		return fmt.Errorf("edge %s -> %s: finish node has no outgoing edges", from.name, to.name)
	case to == b.start.v:
		return fmt.Errorf("edge %s -> %s: start node has no incoming edges", from.name, to.name)
	}
	return nil
}

// Build validates the graph and returns the immutable Strategy. The builder
// must not be used afterwards.
func (b *StrategyBuilder) Build() (*Strategy, error) {
	errs := slices.Clone(b.errs)
	if len(b.start.v.edges) == 0 {
		errs = append(errs, fmt.Errorf("start node has no outgoing edges"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", b.name, err)
	}

	b.sealed = true
	names := make([]string, len(b.order))
	for i, v := range b.order {
		names[i] = v.name
	}
	return &Strategy{
		name:          b.name,
		start:         b.start.v,
		nodes:         names,
		toolSelection: b.opts.ToolSelection,
	}, nil
}

// MustBuild is like Build but panics on error.
func (b *StrategyBuilder) MustBuild() *Strategy {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// Strategy is the immutable graph definition of an agent. It may be executed
// concurrently by many runs.
type Strategy struct {
	name          string
	start         *vertex
	nodes         []string
	toolSelection ToolSelection
}

// Name returns the strategy name.
func (s *Strategy) Name() string { return s.name }

// Start returns the start vertex.
func (s *Strategy) Start() Vertex { return s.start }

// Nodes returns the node names in registration order.
func (s *Strategy) Nodes() []string { return slices.Clone(s.nodes) }

// SelectTools applies the strategy's tool selection to the registered tools.
func (s *Strategy) SelectTools(all []tool.Descriptor) []tool.Descriptor {
	if s.toolSelection == nil {
		return slices.Clone(all)
	}
	return s.toolSelection(all)
}
