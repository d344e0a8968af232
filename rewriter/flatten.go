// Package rewriter holds AST normalization passes that run between parsing
// and fingerprinting.
package rewriter

import (
	"fmt"

	"github.com/donaldong/sorbet/ast"
	"github.com/donaldong/sorbet/core"
)

// Flatten hoists nested method definitions so that once a traversal reaches
// a non-definition node it knows no MethodDefs lurk deeper in the tree. Sigs
// and visibility-modifier sends wrapping a method travel with it, and the
// static-ness of hoisted methods is restamped from the nesting context: a
// file like
//
//	class A
//	  def self.foo
//	    def bar; end
//	  end
//	end
//
// becomes
//
//	class A
//	  def self.foo; end
//	  def self.bar; end
//	end
//
// because `bar` was defined while `foo`'s static context was live. Chains of
// nested `def self.` accumulate levels; methods at level two and above are
// emitted inside a synthetic `class << self` block.
//
// The pass works by keeping, per class scope, a move queue and a stack of
// reservations. Everything movable reserves a queue slot on entry and is
// moved into it on exit, leaving an EmptyTree behind; leaving a class scope
// drains the queue back into the class body. The move test is purely
// syntactic: a user redefinition of `private` would still be treated as a
// modifier, which we do not attempt to detect.
func Flatten(root *ast.Root) *ast.Root {
	w := &flattenWalk{skip: make(map[ast.Node]bool)}
	w.pushScope()
	body := w.walkBody(root.Body)
	// Top-level drain: methods hoisted out of top-level defs are appended to
	// the file body without singleton-class placement.
	for _, item := range w.popScope() {
		body = append(body, item.node)
	}
	if len(w.scopes) != 0 {
		panic("rewriter: unbalanced method scopes after flatten")
	}
	return &ast.Root{Body: body}
}

// frame is a reservation on the move stack: the queue slot an in-progress
// node will occupy (-1 when the node is not nested and stays put) and the
// staticness level of its context.
type frame struct {
	idx         int
	staticLevel int
}

type movedItem struct {
	node        ast.Node
	staticLevel int
}

type methodSet struct {
	moved []movedItem
	stack []frame
}

type flattenWalk struct {
	scopes []methodSet
	// skip marks methods wrapped by a modifier send: the send moves as a
	// unit, so the inner method must not reserve its own slot.
	skip map[ast.Node]bool
}

func (w *flattenWalk) pushScope() {
	w.scopes = append(w.scopes, methodSet{})
}

func (w *flattenWalk) curScope() *methodSet {
	if len(w.scopes) == 0 {
		panic("rewriter: no current method scope")
	}
	return &w.scopes[len(w.scopes)-1]
}

func (w *flattenWalk) popScope() []movedItem {
	cur := w.curScope()
	if len(cur.stack) != 0 {
		panic(fmt.Sprintf("rewriter: %d unresolved reservations at scope exit", len(cur.stack)))
	}
	moved := cur.moved
	w.scopes = w.scopes[:len(w.scopes)-1]
	return moved
}

// reserve pushes a frame for a movable node. Nodes at depth 0 are not
// nested, so they record slot -1 and stay in place.
func (w *flattenWalk) reserve(staticLevel int) {
	cur := w.curScope()
	if len(cur.stack) == 0 {
		cur.stack = append(cur.stack, frame{idx: -1, staticLevel: staticLevel})
		return
	}
	cur.stack = append(cur.stack, frame{idx: len(cur.moved), staticLevel: staticLevel})
	cur.moved = append(cur.moved, movedItem{})
}

// release pops the top frame and either leaves the node in place (slot -1)
// or moves it into its reserved slot, returning an EmptyTree replacement.
func (w *flattenWalk) release(n ast.Node) ast.Node {
	cur := w.curScope()
	top := cur.stack[len(cur.stack)-1]
	cur.stack = cur.stack[:len(cur.stack)-1]
	if top.idx == -1 {
		return n
	}
	if cur.moved[top.idx].node != nil {
		panic("rewriter: move queue slot filled twice")
	}
	cur.moved[top.idx] = movedItem{node: n, staticLevel: top.staticLevel}
	return &ast.EmptyTree{Rng: n.Range()}
}

func (w *flattenWalk) staticLevelFor(m *ast.MethodDef) int {
	cur := w.curScope()
	prev := 0
	if len(cur.stack) > 0 {
		prev = cur.stack[len(cur.stack)-1].staticLevel
	}
	if m.Self {
		return prev + 1
	}
	return prev
}

// isMethodModifier reports whether the send is a Ruby visibility modifier
// applied directly to a method definition.
func isMethodModifier(s *ast.Send) bool {
	switch s.Fun {
	case "private", "protected", "public", "private_class_method":
	default:
		return false
	}
	if len(s.Args) != 1 {
		return false
	}
	_, ok := s.Args[0].(*ast.MethodDef)
	return ok
}

func (w *flattenWalk) walkBody(body []ast.Node) []ast.Node {
	for i, n := range body {
		body[i] = w.walkNode(n)
	}
	return body
}

func (w *flattenWalk) walkNode(n ast.Node) ast.Node {
	switch node := n.(type) {
	case *ast.ClassDef:
		w.pushScope()
		node.Body = w.walkBody(node.Body)
		node.Body = placeMoved(node.Body, w.popScope(), node.Rng)
		return node

	case *ast.MethodDef:
		if w.skip[n] {
			node.Body = w.walkBody(node.Body)
			return node
		}
		w.reserve(w.staticLevelFor(node))
		node.Body = w.walkBody(node.Body)
		return w.release(node)

	case *ast.Send:
		if node.Fun == "sig" && len(node.Args) == 0 {
			w.reserve(0)
			return w.release(node)
		}
		if isMethodModifier(node) {
			inner := node.Args[0].(*ast.MethodDef)
			w.skip[inner] = true
			w.reserve(w.staticLevelFor(inner))
			node.Args[0] = w.walkNode(inner)
			return w.release(node)
		}
		return node

	default:
		return n
	}
}

// placeMoved drains queue items back into a class body, distributing them
// across staticness levels: levels 0 and 1 inline into the body, levels >= 2
// (nested `def self.` chains) are emitted as synthetic singleton-class
// blocks. A sig immediately preceding a method inherits the method's level
// so the pair stays together.
func placeMoved(body []ast.Node, moved []movedItem, rng core.Range) []ast.Node {
	if len(moved) == 0 {
		return body
	}
	if len(moved) == 1 && len(body) == 1 && ast.IsEmpty(body[0]) {
		// It was only one method to begin with; put it back.
		restamp(moved[0])
		return []ast.Node{moved[0].node}
	}

	highest := 0
	for i := range moved {
		if moved[i].staticLevel > highest {
			highest = moved[i].staticLevel
		}
		if i > 0 {
			if send, ok := moved[i-1].node.(*ast.Send); ok && send.Fun == "sig" {
				moved[i-1].staticLevel = moved[i].staticLevel
			}
		}
	}

	var nested [][]ast.Node
	for level := 2; level <= highest; level++ {
		nested = append(nested, nil)
	}

	for _, item := range moved {
		restamp(item)
		if item.staticLevel >= 2 {
			nested[item.staticLevel-2] = append(nested[item.staticLevel-2], item.node)
		} else {
			body = append(body, item.node)
		}
	}

	for _, blockBody := range nested {
		body = append(body, &ast.ClassDef{
			Rng:       rng,
			Singleton: true,
			Body:      blockBody,
		})
	}
	return body
}

// restamp rewrites a hoisted method's static-ness from its computed level.
func restamp(item movedItem) {
	if m, ok := item.node.(*ast.MethodDef); ok {
		m.Self = item.staticLevel > 0
	}
}
