package tree

import (
	"sort"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

// Builder assembles a Forest one unit at a time. Build is the usual entry
// point; Builder exists for callers that receive units incrementally.
type Builder struct {
	forest *Forest
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{forest: newForest()}
}

// Build sorts units by depth then dotted name and assembles them into a forest.
func Build(units []unit.Unit) (*Forest, error) {
	sorted := make([]unit.Unit, len(units))
	copy(sorted, units)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i].Depth(), sorted[j].Depth()
		if di != dj {
			return di < dj
		}
		return sorted[i].DottedName < sorted[j].DottedName
	})

	b := NewBuilder()
	for _, u := range sorted {
		if err := b.Add(u); err != nil {
			return nil, err
		}
	}
	return b.Forest(), nil
}

// Forest returns the forest built so far.
func (b *Builder) Forest() *Forest { return b.forest }

// Add attaches u, synthesizing any missing intermediate packages.
func (b *Builder) Add(u unit.Unit) error {
	if err := u.Validate(); err != nil {
		return errors.ValidationError("invalid unit").
			WithCause(err).
			WithContext("unit", u.DottedName).
			WithContext("source", u.Location()).
			Build()
	}

	segs := u.Segments()
	var parent *ModuleNode
	for i := 1; i < len(segs); i++ {
		prefix := unit.Join(segs[:i]...)
		n, ok := b.forest.index[prefix]
		if !ok {
			n = newNode(prefix, unit.Package)
			n.Synthetic = true
			n.Root = u.Root
			b.attach(parent, n)
		}
		parent = n
	}

	if existing, ok := b.forest.index[u.DottedName]; ok {
		if existing.Synthetic && u.Kind == unit.Package {
			existing.Synthetic = false
			fill(existing, u)
			return nil
		}
		msg := "dotted name claimed twice"
		if existing.Synthetic {
			msg = "unit kind conflicts with synthesized package"
		}
		return errors.AmbiguityError(msg).
			WithContext("dotted_name", u.DottedName).
			WithContext("first", describe(existing)).
			WithContext("second", u.Location()+" ("+string(u.Kind)+")").
			Build()
	}

	n := newNode(u.DottedName, u.Kind)
	fill(n, u)
	b.attach(parent, n)
	return nil
}

func (b *Builder) attach(parent, n *ModuleNode) {
	b.forest.index[n.DottedName] = n
	if parent == nil {
		b.forest.roots[n.ShortName] = n
		return
	}
	n.Parent = parent
	parent.Children[n.ShortName] = n
}

func fill(n *ModuleNode, u unit.Unit) {
	n.Kind = u.Kind
	n.Docstring = u.Docstring
	n.Signature = u.Signature
	n.Root = u.Root
	n.SourcePath = u.SourcePath
	n.Line = u.Line
}

func describe(n *ModuleNode) string {
	if n.Synthetic {
		return "synthetic package " + n.DottedName
	}
	return unit.Unit{SourcePath: n.SourcePath, Line: n.Line}.Location() + " (" + string(n.Kind) + ")"
}
