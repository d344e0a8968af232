package ast

import "github.com/donaldong/sorbet/core"

// Node is the tagged sum of tree shapes the server cares about. Anything the
// parser does not model structurally is preserved as a RawExpr so that body
// content still participates in the usages hash.
type Node interface {
	Range() core.Range
	DeepCopy() Node
}

// Root is the top-level sequence of a parsed file.
type Root struct {
	Body []Node
}

func (n *Root) Range() core.Range {
	if len(n.Body) == 0 {
		return core.Range{}
	}
	return core.Range{Start: n.Body[0].Range().Start, End: n.Body[len(n.Body)-1].Range().End}
}

func (n *Root) DeepCopy() Node {
	return &Root{Body: deepCopyAll(n.Body)}
}

// ClassDef is a class or module definition. Singleton marks a synthetic
// `class << self` block; every method inside one belongs to the class object
// itself rather than its instances.
type ClassDef struct {
	Rng       core.Range
	Name      string
	IsModule  bool
	Singleton bool
	Ancestors []string
	Body      []Node
}

func (n *ClassDef) Range() core.Range { return n.Rng }

func (n *ClassDef) DeepCopy() Node {
	return &ClassDef{
		Rng:       n.Rng,
		Name:      n.Name,
		IsModule:  n.IsModule,
		Singleton: n.Singleton,
		Ancestors: append([]string(nil), n.Ancestors...),
		Body:      deepCopyAll(n.Body),
	}
}

// MethodDef is a method definition. Self marks `def self.name`.
type MethodDef struct {
	Rng    core.Range
	Name   string
	Params []string
	Self   bool
	Body   []Node
}

func (n *MethodDef) Range() core.Range { return n.Rng }

func (n *MethodDef) DeepCopy() Node {
	return &MethodDef{
		Rng:    n.Rng,
		Name:   n.Name,
		Params: append([]string(nil), n.Params...),
		Self:   n.Self,
		Body:   deepCopyAll(n.Body),
	}
}

// Send is a bare method call at definition level: a `sig` block, a
// visibility modifier (possibly wrapping a method definition), or an
// `include`/`extend`. BlockSrc preserves an attached block's raw text.
type Send struct {
	Rng      core.Range
	Fun      string
	Args     []Node
	ArgSrc   string
	BlockSrc string
}

func (n *Send) Range() core.Range { return n.Rng }

func (n *Send) DeepCopy() Node {
	return &Send{
		Rng:      n.Rng,
		Fun:      n.Fun,
		Args:     deepCopyAll(n.Args),
		ArgSrc:   n.ArgSrc,
		BlockSrc: n.BlockSrc,
	}
}

// ConstAssign is a constant assignment at class or top-level scope.
type ConstAssign struct {
	Rng      core.Range
	Name     string
	ValueSrc string
}

func (n *ConstAssign) Range() core.Range { return n.Rng }

func (n *ConstAssign) DeepCopy() Node {
	cp := *n
	return &cp
}

// RawExpr is any expression the parser does not model structurally. Its
// source text feeds the usages hash.
type RawExpr struct {
	Rng core.Range
	Src string
}

func (n *RawExpr) Range() core.Range { return n.Rng }

func (n *RawExpr) DeepCopy() Node {
	cp := *n
	return &cp
}

// EmptyTree replaces a node that was moved elsewhere.
type EmptyTree struct {
	Rng core.Range
}

func (n *EmptyTree) Range() core.Range { return n.Rng }

func (n *EmptyTree) DeepCopy() Node {
	cp := *n
	return &cp
}

// IsEmpty reports whether n is an EmptyTree (or nil).
func IsEmpty(n Node) bool {
	if n == nil {
		return true
	}
	_, ok := n.(*EmptyTree)
	return ok
}

func deepCopyAll(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.DeepCopy()
	}
	return out
}

// ParsedFile pairs an indexed tree with the file it came from. The tree is
// owned by whoever holds the ParsedFile; DeepCopy before stashing a second
// reference.
type ParsedFile struct {
	Tree *Root
	File core.FileRef
	// Err carries the parse failure for files indexed with an invalid hash.
	Err error
}

// DeepCopy clones the tree, keeping the file ref and parse error.
func (p ParsedFile) DeepCopy() ParsedFile {
	cp := p
	if p.Tree != nil {
		cp.Tree = p.Tree.DeepCopy().(*Root)
	}
	return cp
}
