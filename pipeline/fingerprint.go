package pipeline

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/donaldong/sorbet/ast"
	"github.com/donaldong/sorbet/core"
	"github.com/donaldong/sorbet/parser"
	"github.com/donaldong/sorbet/rewriter"
)

// ComputeFileHash parses, flattens and fingerprints one file. Parse failures
// yield the INVALID sentinel so the path selector forces a slow path. Runs
// after the flattener so hoisted methods participate in the definitions
// hash. Pure function of its input; invoked in parallel from the worker
// pool.
func ComputeFileHash(file *core.File, p parser.Parser) core.FileHash {
	tree, err := p.Parse(file)
	if err != nil {
		return core.InvalidFileHash()
	}
	return Fingerprint(rewriter.Flatten(tree))
}

// Fingerprint derives the two-part hash of a flattened tree: one stream
// visits only declarations (class names, ancestors, method names and
// arities, sigs, visibility, static-ness) in tree order, the other visits
// method bodies and other expression content.
func Fingerprint(root *ast.Root) core.FileHash {
	defs := xxh3.New()
	uses := xxh3.New()
	hashNodes(root.Body, defs, uses)
	return core.FileHash{
		Definitions: core.DefinitionsHash{HierarchyHash: core.GuardHash(defs.Sum64())},
		Usages:      core.UsagesHash{Hash: core.GuardHash(uses.Sum64())},
	}
}

func hashNodes(nodes []ast.Node, defs, uses *xxh3.Hasher) {
	for _, n := range nodes {
		hashNode(n, defs, uses)
	}
}

func hashNode(n ast.Node, defs, uses *xxh3.Hasher) {
	switch node := n.(type) {
	case *ast.ClassDef:
		kind := "class"
		if node.IsModule {
			kind = "module"
		}
		if node.Singleton {
			kind = "singleton"
		}
		defs.WriteString(kind)
		defs.WriteString("\x00")
		defs.WriteString(node.Name)
		defs.WriteString("<")
		defs.WriteString(strings.Join(node.Ancestors, ","))
		defs.WriteString(";")
		hashNodes(node.Body, defs, uses)
		defs.WriteString("\x00end;")

	case *ast.MethodDef:
		defs.WriteString("def\x00")
		defs.WriteString(node.Name)
		if node.Self {
			defs.WriteString("\x00self")
		}
		defs.WriteString(fmt.Sprintf("/%d(", len(node.Params)))
		defs.WriteString(strings.Join(node.Params, ","))
		defs.WriteString(");")
		// The body never contains further definitions after flattening;
		// everything below feeds the usages stream.
		hashBody(node.Body, uses)

	case *ast.Send:
		// Declaration-level sends: sigs, visibility modifiers, mixins,
		// attribute macros. All shape the external surface.
		defs.WriteString("send\x00")
		defs.WriteString(node.Fun)
		defs.WriteString("\x00")
		defs.WriteString(node.ArgSrc)
		defs.WriteString("\x00")
		defs.WriteString(node.BlockSrc)
		defs.WriteString(";")
		hashNodes(node.Args, defs, uses)

	case *ast.ConstAssign:
		defs.WriteString("const\x00")
		defs.WriteString(node.Name)
		defs.WriteString(";")
		uses.WriteString(node.ValueSrc)
		uses.WriteString(";")

	case *ast.RawExpr:
		uses.WriteString(node.Src)
		uses.WriteString(";")

	case *ast.EmptyTree:
		// moved elsewhere; nothing to contribute
	}
}

// hashBody folds expression content inside a method body into the usages
// stream only.
func hashBody(nodes []ast.Node, uses *xxh3.Hasher) {
	for _, n := range nodes {
		switch node := n.(type) {
		case *ast.RawExpr:
			uses.WriteString(node.Src)
			uses.WriteString(";")
		case *ast.Send:
			uses.WriteString(node.Fun)
			uses.WriteString(node.ArgSrc)
			uses.WriteString(node.BlockSrc)
			uses.WriteString(";")
			hashBody(node.Args, uses)
		case *ast.ConstAssign:
			uses.WriteString(node.Name)
			uses.WriteString("=")
			uses.WriteString(node.ValueSrc)
			uses.WriteString(";")
		case *ast.ClassDef:
			hashBody(node.Body, uses)
		case *ast.MethodDef:
			// does not occur after flattening
			uses.WriteString(node.Name)
			hashBody(node.Body, uses)
		case *ast.EmptyTree:
		}
	}
}
