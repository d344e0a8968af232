package lsp

import (
	"sync/atomic"

	"github.com/donaldong/sorbet/ast"
	"github.com/donaldong/sorbet/core"
)

// Typechecker owns the one authoritative typechecked snapshot. Only the
// coordinator's thread may touch it: the main loop never calls these methods
// directly, it submits jobs via SyncRun/AsyncRun.
type Typechecker struct {
	config *Config
	output Output

	gs      *core.GlobalState
	indexed []ast.ParsedFile // indexed by FileRef id; slot 0 unused
	hashes  []core.FileHash

	// diagnosedFiles remembers which files currently have published
	// diagnostics so stale ones can be cleared.
	diagnosedFiles map[core.FileRef]bool

	typecheckCount atomic.Int64
}

// NewTypechecker builds an empty typechecker; Initialize installs state.
func NewTypechecker(config *Config, output Output) *Typechecker {
	return &Typechecker{
		config:         config,
		output:         output,
		diagnosedFiles: make(map[core.FileRef]bool),
	}
}

// Initialize installs the initial cloned state and runs the first full
// resolve. Initialization is not cancelable; it runs via SyncRun.
func (tc *Typechecker) Initialize(gs *core.GlobalState, indexed []ast.ParsedFile, hashes []core.FileHash) {
	tc.gs = gs
	tc.indexed = make([]ast.ParsedFile, len(gs.Files()))
	for _, pf := range indexed {
		if pf.File.Exists() && int(pf.File) < len(tc.indexed) {
			tc.indexed[pf.File] = pf
		}
	}
	tc.hashes = append([]core.FileHash(nil), hashes...)

	diags := tc.resolveAll(tc.gs, tc.indexed, 0, false)
	tc.publishDiagnostics(diags)
	tc.typecheckCount.Add(1)
}

// Typecheck applies a committed update to the typechecked state. Returns
// true iff the update was a slow path that got cancelled before completion;
// in that case no counters are reported and the committed state is
// unchanged.
func (tc *Typechecker) Typecheck(updates *FileUpdates) bool {
	if updates.CanTakeFastPath {
		tc.fastPath(updates)
		return false
	}
	return tc.slowPath(updates)
}

// fastPath swaps new file bodies into the existing state without rebuilding
// the symbol table. Precondition: not interruptible, so it only ever runs
// via SyncRun.
func (tc *Typechecker) fastPath(updates *FileUpdates) {
	tc.config.debugf("typechecking epoch %d on the fast path (%d files)", updates.Epoch, len(updates.UpdatedFiles))
	diags := make(map[core.FileRef][]Diagnostic)

	access := core.NewUnfreezeFileTable(tc.gs)
	for i, file := range updates.UpdatedFiles {
		fref := tc.gs.FindFileByPath(file.Path())
		if !fref.Exists() {
			panic("fast path update for a file missing from the typechecked state: " + file.Path())
		}
		tc.gs.ReplaceFile(fref, file)
		tc.growTo(int(fref) + 1)
		tc.indexed[fref] = updates.UpdatedFileIndexes[i]
		tc.hashes[fref] = updates.UpdatedFileHashes[i]

		tc.gs.DropFileSymbols(fref)
		diags[fref] = resolveFile(tc.gs, tc.indexed[fref])
	}
	access.Release()

	checkAncestors(tc.gs, diags)
	tc.publishDiagnostics(diags)
	tc.gs.Epoch = updates.Epoch
	tc.typecheckCount.Add(1)
}

// slowPath rebuilds the full symbol table against the cloned GlobalState
// carried by the update, polling for cooperative cancellation between
// files. Returns true if cancelled.
func (tc *Typechecker) slowPath(updates *FileUpdates) bool {
	epoch := updates.Epoch
	newGS := updates.UpdatedGS
	if newGS == nil {
		panic("slow path update carries no cloned GlobalState")
	}
	tc.config.debugf("typechecking epoch %d on the slow path (%d files changed)", epoch, len(updates.UpdatedFiles))

	newIndexed := make([]ast.ParsedFile, len(newGS.Files()))
	copy(newIndexed, tc.indexed)
	for _, pf := range updates.UpdatedFileIndexes {
		if pf.File.Exists() && int(pf.File) < len(newIndexed) {
			newIndexed[pf.File] = pf
		}
	}

	newGS.ClearSymbols()
	diags := tc.resolveAll(newGS, newIndexed, epoch, true)
	if diags == nil {
		tc.config.debugf("slow path epoch %d cancelled during resolution", epoch)
		// The fence fails for a cancelled epoch but clears its running marker.
		newGS.TryCommitEpoch(epoch)
		return true
	}

	// Final commit fence: after this point cancelation loses.
	if !newGS.TryCommitEpoch(epoch) {
		tc.config.debugf("slow path epoch %d cancelled at commit fence", epoch)
		return true
	}

	newHashes := make([]core.FileHash, len(newGS.Files()))
	copy(newHashes, tc.hashes)
	for i, file := range updates.UpdatedFiles {
		fref := newGS.FindFileByPath(file.Path())
		if fref.Exists() && int(fref) < len(newHashes) {
			newHashes[fref] = updates.UpdatedFileHashes[i]
		}
	}

	tc.gs = newGS
	tc.indexed = newIndexed
	tc.hashes = newHashes
	tc.gs.Epoch = epoch
	tc.publishDiagnostics(diags)
	tc.typecheckCount.Add(1)
	return false
}

// resolveAll rebuilds symbols for every indexed file. When cancelable, a
// cancellation observed between files aborts and returns nil.
func (tc *Typechecker) resolveAll(gs *core.GlobalState, indexed []ast.ParsedFile, epoch uint32, cancelable bool) map[core.FileRef][]Diagnostic {
	diags := make(map[core.FileRef][]Diagnostic)
	for id := 1; id < len(indexed); id++ {
		if cancelable && gs.SlowPathCancelled(epoch) {
			return nil
		}
		pf := indexed[id]
		if pf.File != core.FileRef(id) {
			pf = ast.ParsedFile{Tree: &ast.Root{}, File: core.FileRef(id)}
		}
		if fileDiags := resolveFile(gs, pf); len(fileDiags) > 0 {
			diags[pf.File] = fileDiags
		}
	}
	if cancelable && gs.SlowPathCancelled(epoch) {
		return nil
	}
	checkAncestors(gs, diags)
	return diags
}

// publishDiagnostics pushes the new diagnostic sets and clears files whose
// diagnostics disappeared since the last publish.
func (tc *Typechecker) publishDiagnostics(diags map[core.FileRef][]Diagnostic) {
	next := make(map[core.FileRef]bool, len(diags))
	for fref, list := range diags {
		file := tc.gs.File(fref)
		if file == nil || len(list) == 0 {
			continue
		}
		next[fref] = true
		tc.output.WriteNotification(MethodPublishDiagnostics, PublishDiagnosticsParams{
			URI:         pathToURI(file.Path()),
			Diagnostics: list,
		})
	}
	for fref := range tc.diagnosedFiles {
		if next[fref] {
			continue
		}
		if file := tc.gs.File(fref); file != nil {
			tc.output.WriteNotification(MethodPublishDiagnostics, PublishDiagnosticsParams{
				URI:         pathToURI(file.Path()),
				Diagnostics: []Diagnostic{},
			})
		}
	}
	tc.diagnosedFiles = next
}

func (tc *Typechecker) growTo(n int) {
	for len(tc.indexed) < n {
		tc.indexed = append(tc.indexed, ast.ParsedFile{})
	}
	for len(tc.hashes) < n {
		tc.hashes = append(tc.hashes, core.FileHash{})
	}
}

// GS exposes the authoritative state to query handlers running on the
// typechecker thread.
func (tc *Typechecker) GS() *core.GlobalState { return tc.gs }

// Indexed returns the flattened tree for fref, if any.
func (tc *Typechecker) Indexed(fref core.FileRef) *ast.Root {
	if !fref.Exists() || int(fref) >= len(tc.indexed) {
		return nil
	}
	return tc.indexed[fref].Tree
}

// TypecheckCount reports how many times typechecking has committed. For
// tests.
func (tc *Typechecker) TypecheckCount() int {
	return int(tc.typecheckCount.Load())
}
