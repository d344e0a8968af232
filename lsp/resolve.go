package lsp

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/donaldong/sorbet/ast"
	"github.com/donaldong/sorbet/core"
)

// builtinConstants are ancestor names that resolve without a workspace
// definition.
var builtinConstants = map[string]bool{
	"Object": true, "BasicObject": true, "Kernel": true,
	"Comparable": true, "Enumerable": true, "Module": true,
	"Exception": true, "StandardError": true, "RuntimeError": true,
	"ArgumentError": true, "TypeError": true, "KeyError": true,
	"Struct": true, "Hash": true, "Array": true, "String": true,
	"Integer": true, "Float": true, "Numeric": true, "Symbol": true,
	"T::Struct": true, "T::Enum": true, "T::InexactStruct": true,
}

var symbolListPattern = regexp.MustCompile(`:(\w+[!?=]?)`)

// resolver walks flattened trees and enters symbols into a GlobalState,
// collecting diagnostics along the way.
type resolver struct {
	gs    *core.GlobalState
	fref  core.FileRef
	diags []Diagnostic
}

// resolveFile enters every symbol defined by pf into gs and returns the
// file's local diagnostics (syntax errors, duplicate definitions).
func resolveFile(gs *core.GlobalState, pf ast.ParsedFile) []Diagnostic {
	r := &resolver{gs: gs, fref: pf.File}
	if pf.Err != nil {
		r.diags = append(r.diags, Diagnostic{
			Range:    Range{},
			Severity: DiagnosticError,
			Source:   "sorbet",
			Message:  pf.Err.Error(),
		})
		return r.diags
	}
	if pf.Tree != nil {
		r.resolveBody(pf.Tree.Body, "", core.NoSymbol, false)
	}
	return r.diags
}

func joinFQN(owner, name string) string {
	if owner == "" || strings.Contains(name, "::") {
		return name
	}
	return owner + "::" + name
}

func (r *resolver) resolveBody(nodes []ast.Node, ownerFQN string, ownerRef core.SymbolRef, singleton bool) {
	visibility := "public"
	pendingSig := ""
	seen := make(map[string]core.Range)

	for _, n := range nodes {
		switch node := n.(type) {
		case *ast.ClassDef:
			if node.Singleton {
				// `class << self`: methods inside belong to the class object.
				r.resolveBody(node.Body, ownerFQN, ownerRef, true)
				continue
			}
			fqn := joinFQN(ownerFQN, node.Name)
			kind := core.SymbolClass
			if node.IsModule {
				kind = core.SymbolModule
			}
			ref := r.gs.EnterSymbol(core.Symbol{
				Name:      r.gs.Names.Enter(node.Name),
				FQN:       fqn,
				Kind:      kind,
				Owner:     ownerRef,
				File:      r.fref,
				Loc:       node.Rng,
				Ancestors: append([]string(nil), node.Ancestors...),
			})
			r.resolveBody(node.Body, fqn, ref, false)

		case *ast.MethodDef:
			r.enterMethod(node, ownerFQN, ownerRef, visibility, singleton, &pendingSig, seen)

		case *ast.Send:
			switch {
			case len(node.Args) == 1 && isVisibilityName(node.Fun):
				if m, ok := node.Args[0].(*ast.MethodDef); ok {
					r.enterMethod(m, ownerFQN, ownerRef, node.Fun, singleton, &pendingSig, seen)
				}
			case len(node.Args) == 0 && node.ArgSrc == "" && isVisibilityName(node.Fun):
				visibility = node.Fun
			case node.Fun == "sig":
				pendingSig = node.BlockSrc
			case node.Fun == "include" || node.Fun == "extend" || node.Fun == "prepend":
				if owner := r.gs.Symbol(ownerRef); owner != nil {
					owner.Ancestors = append(owner.Ancestors, strings.TrimSpace(node.ArgSrc))
				}
			case strings.HasPrefix(node.Fun, "attr_"):
				for _, m := range symbolListPattern.FindAllStringSubmatch(node.ArgSrc, -1) {
					r.enterAttr(node, m[1], ownerFQN, ownerRef, visibility)
				}
			}

		case *ast.ConstAssign:
			r.gs.EnterSymbol(core.Symbol{
				Name:  r.gs.Names.Enter(node.Name),
				FQN:   joinFQN(ownerFQN, node.Name),
				Kind:  core.SymbolConstant,
				Owner: ownerRef,
				File:  r.fref,
				Loc:   node.Rng,
			})
		}
	}
}

func isVisibilityName(fun string) bool {
	switch fun {
	case "private", "protected", "public", "private_class_method":
		return true
	}
	return false
}

func (r *resolver) enterMethod(m *ast.MethodDef, ownerFQN string, ownerRef core.SymbolRef,
	visibility string, singleton bool, pendingSig *string, seen map[string]core.Range) {
	self := m.Self || singleton
	sep := "#"
	if self {
		sep = "."
	}
	key := sep + m.Name
	if prev, dup := seen[key]; dup {
		r.diags = append(r.diags, Diagnostic{
			Range:    fromCoreRange(m.Rng),
			Severity: DiagnosticError,
			Source:   "sorbet",
			Message: fmt.Sprintf("Method `%s` redefined; first defined on line %d",
				m.Name, prev.Start.Line+1),
		})
	}
	seen[key] = m.Rng

	fqn := m.Name
	if ownerFQN != "" {
		fqn = ownerFQN + sep + m.Name
	}
	r.gs.EnterSymbol(core.Symbol{
		Name:       r.gs.Names.Enter(m.Name),
		FQN:        fqn,
		Kind:       core.SymbolMethod,
		Owner:      ownerRef,
		File:       r.fref,
		Loc:        m.Rng,
		Visibility: visibility,
		Self:       self,
		Arity:      len(m.Params),
		Sig:        *pendingSig,
	})
	*pendingSig = ""
}

func (r *resolver) enterAttr(node *ast.Send, name, ownerFQN string, ownerRef core.SymbolRef, visibility string) {
	fqn := name
	if ownerFQN != "" {
		fqn = ownerFQN + "#" + name
	}
	r.gs.EnterSymbol(core.Symbol{
		Name:       r.gs.Names.Enter(name),
		FQN:        fqn,
		Kind:       core.SymbolMethod,
		Owner:      ownerRef,
		File:       r.fref,
		Loc:        node.Rng,
		Visibility: visibility,
		Arity:      0,
	})
}

// checkAncestors verifies that every class's named ancestors resolve to a
// class or module somewhere in the workspace, or to a builtin. Unresolved
// ancestors are appended to diags, keyed by file.
func checkAncestors(gs *core.GlobalState, diags map[core.FileRef][]Diagnostic) {
	gs.EachSymbol(func(_ core.SymbolRef, sym *core.Symbol) bool {
		if !sym.Exists() || (sym.Kind != core.SymbolClass && sym.Kind != core.SymbolModule) {
			return true
		}
		for _, anc := range sym.Ancestors {
			if anc == "" || builtinConstants[anc] {
				continue
			}
			if resolvesToType(gs, anc) {
				continue
			}
			diags[sym.File] = append(diags[sym.File], Diagnostic{
				Range:    fromCoreRange(sym.Loc),
				Severity: DiagnosticError,
				Source:   "sorbet",
				Message:  fmt.Sprintf("Unable to resolve constant `%s`", anc),
			})
		}
		return true
	})
}

func resolvesToType(gs *core.GlobalState, name string) bool {
	short := name
	if i := strings.LastIndex(name, "::"); i >= 0 {
		short = name[i+2:]
	}
	for _, ref := range gs.LookupSymbols(short) {
		sym := gs.Symbol(ref)
		if sym == nil || !sym.Exists() {
			continue
		}
		if sym.Kind == core.SymbolClass || sym.Kind == core.SymbolModule {
			if sym.FQN == name || sym.FQN == short || strings.HasSuffix(sym.FQN, "::"+short) {
				return true
			}
		}
	}
	return false
}
