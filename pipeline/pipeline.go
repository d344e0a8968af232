// Package pipeline drives file-level work: reading and registering source
// files, parsing and flattening them into indexed trees, and computing file
// fingerprints in parallel over a worker pool.
package pipeline

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/donaldong/sorbet/ast"
	"github.com/donaldong/sorbet/core"
	"github.com/donaldong/sorbet/parser"
	"github.com/donaldong/sorbet/rewriter"
)

// Options configures the pipeline's worker pool and parser.
type Options struct {
	Parser  parser.Parser
	Workers int
	Logger  *log.Logger
}

func (o Options) parser() parser.Parser {
	if o.Parser != nil {
		return o.Parser
	}
	return parser.Default()
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// Directories never indexed during a workspace walk.
var skipDirs = map[string]bool{
	"vendor":       true,
	"node_modules": true,
	".git":         true,
	"tmp":          true,
	"log":          true,
	".bundle":      true,
	"coverage":     true,
	"sorbet":       true,
}

// WorkspaceFiles walks root and returns every .rb path, skipping generated
// and vendored directories.
func WorkspaceFiles(root string) []string {
	var paths []string
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".rb" {
			paths = append(paths, path)
		}
		return nil
	})
	sort.Strings(paths)
	return paths
}

// ReserveFiles reads paths from disk and registers them in gs, returning
// their refs in input order. Unreadable files are registered with empty
// content; their syntax state sorts itself out at fingerprint time.
func ReserveFiles(gs *core.GlobalState, paths []string, opts Options) []core.FileRef {
	access := core.NewUnfreezeFileTable(gs)
	defer access.Release()
	refs := make([]core.FileRef, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil && opts.Logger != nil {
			opts.Logger.Printf("could not read %s: %v", path, err)
		}
		file := core.NewFile(path, string(content))
		fref := gs.FindFileByPath(path)
		if fref.Exists() {
			gs.ReplaceFile(fref, file)
		} else {
			fref = gs.EnterFile(file)
		}
		refs = append(refs, fref)
	}
	return refs
}

type hashResult struct {
	idx  int
	hash core.FileHash
}

// ComputeStateHashes fingerprints files in parallel. Workers drain a bounded
// queue of file indexes and push (index, hash) pairs to a result queue; nil
// slots produce the zero FileHash. The returned slice is parallel to files.
func ComputeStateHashes(opts Options, files []*core.File) []core.FileHash {
	res := make([]core.FileHash, len(files))
	if len(files) == 0 {
		return res
	}

	fileq := make(chan int, len(files))
	for i := range files {
		fileq <- i
	}
	close(fileq)

	resultq := make(chan hashResult, len(files))
	p := opts.parser()
	var g errgroup.Group
	for w := 0; w < opts.workers(); w++ {
		g.Go(func() error {
			for i := range fileq {
				if files[i] == nil {
					resultq <- hashResult{idx: i}
					continue
				}
				resultq <- hashResult{idx: i, hash: ComputeFileHash(files[i], p)}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(resultq)
	for r := range resultq {
		res[r.idx] = r.hash
	}
	return res
}

// Index parses and flattens the given files in parallel. The result is
// sorted by FileRef, mirroring how the file table orders them; callers that
// need edit order scatter the trees back themselves.
func Index(gs *core.GlobalState, frefs []core.FileRef, opts Options) []ast.ParsedFile {
	out := make([]ast.ParsedFile, len(frefs))
	if len(frefs) == 0 {
		return out
	}

	fileq := make(chan int, len(frefs))
	for i := range frefs {
		fileq <- i
	}
	close(fileq)

	p := opts.parser()
	var g errgroup.Group
	for w := 0; w < opts.workers(); w++ {
		g.Go(func() error {
			for i := range fileq {
				out[i] = indexOne(gs, frefs[i], p)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

func indexOne(gs *core.GlobalState, fref core.FileRef, p parser.Parser) ast.ParsedFile {
	file := gs.File(fref)
	if file == nil {
		return ast.ParsedFile{Tree: &ast.Root{}, File: fref}
	}
	tree, err := p.Parse(file)
	if err != nil {
		return ast.ParsedFile{Tree: &ast.Root{}, File: fref, Err: err}
	}
	return ast.ParsedFile{Tree: rewriter.Flatten(tree), File: fref}
}
