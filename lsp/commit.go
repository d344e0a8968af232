package lsp

import (
	"fmt"

	"github.com/donaldong/sorbet/ast"
	"github.com/donaldong/sorbet/core"
	"github.com/donaldong/sorbet/pipeline"
)

// FileUpdates is a self-contained, canonicalized edit batch ready for the
// typechecker: parallel arrays of file snapshots, fingerprints and indexed
// trees, the path-selector verdict, and (slow path only) an owned clone of
// GlobalState to typecheck against.
type FileUpdates struct {
	// Epoch is the monotonically increasing id assigned by the preprocessor.
	Epoch uint32
	// EditCount is the number of original editor edits folded in (>= 1).
	EditCount int

	UpdatedFiles       []*core.File
	UpdatedFileHashes  []core.FileHash
	UpdatedFileIndexes []ast.ParsedFile

	HasNewFiles     bool
	CanTakeFastPath bool

	// UpdatedGS is present only on the slow path.
	UpdatedGS *core.GlobalState
}

func (u *FileUpdates) sanityCheck() {
	if len(u.UpdatedFiles) != len(u.UpdatedFileHashes) || len(u.UpdatedFiles) != len(u.UpdatedFileIndexes) {
		panic(fmt.Sprintf("update arrays out of sync: %d files, %d hashes, %d indexes",
			len(u.UpdatedFiles), len(u.UpdatedFileHashes), len(u.UpdatedFileIndexes)))
	}
}

// findHash looks up a file's previous hash, preferring the overriding map.
// The overriding map exists so a merged update compares against the hashes
// the older update overwrote, not the ones it installed.
func findHash(id int, globalStateHashes []core.FileHash, overriding map[int]core.FileHash) core.FileHash {
	if h, ok := overriding[id]; ok {
		return h
	}
	return globalStateHashes[id]
}

// canTakeFastPath decides whether updates can be re-typechecked locally.
// Rules are checked in order; the first hit wins.
func (l *Loop) canTakeFastPath(updates *FileUpdates, overriding map[int]core.FileHash) bool {
	if l.config.DisableFastPath {
		l.config.debugf("taking slow path because the fast path is disabled")
		l.counterInc("lsp.slow_path_reason", "fast_path_disabled")
		return false
	}
	if updates.HasNewFiles {
		l.config.debugf("taking slow path because update has a new file")
		l.counterInc("lsp.slow_path_reason", "new_file")
		return false
	}
	for i, f := range updates.UpdatedFiles {
		fref := l.initialGS.FindFileByPath(f.Path())
		if !fref.Exists() {
			l.config.debugf("taking slow path because %s is a new file", f.Path())
			l.counterInc("lsp.slow_path_reason", "new_file")
			return false
		}
		oldHash := findHash(fref.ID(), l.globalStateHashes, overriding)
		if !oldHash.Computed() {
			panic("old hash for " + f.Path() + " was never computed")
		}
		newHash := updates.UpdatedFileHashes[i]
		if newHash.Invalid() {
			l.config.debugf("taking slow path because %s has a syntax error", f.Path())
			l.counterInc("lsp.slow_path_reason", "syntax_error")
			return false
		}
		if newHash.Definitions.HierarchyHash != oldHash.Definitions.HierarchyHash {
			l.config.debugf("taking slow path because %s has changed definitions", f.Path())
			l.counterInc("lsp.slow_path_reason", "changed_definition")
			return false
		}
	}
	l.config.debugf("taking fast path")
	return true
}

// mergeUpdates folds two update batches into one, deduplicating by path with
// the newer batch winning. The merged fast-path verdict is recomputed
// against the combined eviction map: for a file both batches touched, the
// older eviction records the pre-slow-path hash, so it wins the collision.
// Retained trees are deep-copied because both the older update (still owned
// by the slow-path record) and the merged update may outlive this call.
func (l *Loop) mergeUpdates(older *FileUpdates, olderEvictions map[int]core.FileHash,
	newer *FileUpdates, newerEvictions map[int]core.FileHash) (*FileUpdates, map[int]core.FileHash) {
	older.sanityCheck()
	newer.sanityCheck()

	merged := &FileUpdates{
		Epoch:       newer.Epoch,
		EditCount:   older.EditCount + newer.EditCount,
		HasNewFiles: older.HasNewFiles || newer.HasNewFiles,
	}

	encountered := make(map[string]bool)
	for i, f := range newer.UpdatedFiles {
		encountered[f.Path()] = true
		merged.UpdatedFiles = append(merged.UpdatedFiles, f)
		merged.UpdatedFileHashes = append(merged.UpdatedFileHashes, newer.UpdatedFileHashes[i])
		merged.UpdatedFileIndexes = append(merged.UpdatedFileIndexes, newer.UpdatedFileIndexes[i].DeepCopy())
	}
	for i, f := range older.UpdatedFiles {
		if encountered[f.Path()] {
			continue
		}
		encountered[f.Path()] = true
		merged.UpdatedFiles = append(merged.UpdatedFiles, f)
		merged.UpdatedFileHashes = append(merged.UpdatedFileHashes, older.UpdatedFileHashes[i])
		merged.UpdatedFileIndexes = append(merged.UpdatedFileIndexes, older.UpdatedFileIndexes[i].DeepCopy())
	}

	combinedEvictions := make(map[int]core.FileHash, len(olderEvictions)+len(newerEvictions))
	for id, h := range newerEvictions {
		combinedEvictions[id] = h
	}
	for id, h := range olderEvictions {
		combinedEvictions[id] = h
	}
	merged.CanTakeFastPath = l.canTakeFastPath(merged, combinedEvictions)
	return merged, combinedEvictions
}

// commitEdit applies a canonicalized edit to initialGS: fingerprint every
// file in parallel, path-select, swap the new snapshots into the file table
// (evicting old hashes), index the files, and — if a slow path is in flight
// — possibly merge with it and cancel it. If the final verdict is slow, the
// update receives a fresh clone of initialGS and becomes the new slow-path
// record.
func (l *Loop) commitEdit(edit *WorkspaceEditParams) *FileUpdates {
	update := &FileUpdates{
		Epoch:             edit.Epoch,
		EditCount:         edit.MergeCount + 1,
		UpdatedFiles:      edit.Updates,
		UpdatedFileHashes: pipeline.ComputeStateHashes(l.pipelineOpts(), edit.Updates),
	}
	update.CanTakeFastPath = l.canTakeFastPath(update, nil)

	// Swap new snapshots into the file table, remembering what they evict.
	frefs := make([]core.FileRef, 0, len(update.UpdatedFiles))
	evictedHashes := make(map[int]core.FileHash, len(update.UpdatedFiles))
	{
		access := core.NewUnfreezeFileTable(l.initialGS)
		for i, file := range update.UpdatedFiles {
			fref := l.initialGS.FindFileByPath(file.Path())
			if fref.Exists() {
				l.initialGS.ReplaceFile(fref, file)
			} else {
				update.HasNewFiles = true
				fref = l.initialGS.EnterFile(file)
			}
			for len(l.globalStateHashes) <= fref.ID() {
				l.globalStateHashes = append(l.globalStateHashes, core.FileHash{})
			}
			evictedHashes[fref.ID()] = l.globalStateHashes[fref.ID()]
			l.globalStateHashes[fref.ID()] = update.UpdatedFileHashes[i]
			frefs = append(frefs, fref)
		}
		access.Release()
	}

	// Index the files. The pipeline sorts output by FileRef; scatter the
	// trees back into edit order.
	fileToPos := make(map[core.FileRef]int, len(frefs))
	for i, fref := range frefs {
		if _, dup := fileToPos[fref]; dup {
			panic("duplicate file in canonicalized edit: " + l.initialGS.File(fref).Path())
		}
		fileToPos[fref] = i
	}
	trees := pipeline.Index(l.initialGS, frefs, l.pipelineOpts())
	update.UpdatedFileIndexes = make([]ast.ParsedFile, len(trees))
	for _, pf := range trees {
		update.UpdatedFileIndexes[fileToPos[pf.File]] = pf
	}
	update.sanityCheck()

	if runningEpoch, running := l.initialGS.RunningSlowPath(); running {
		if runningEpoch != l.lastSlowPathUpdate.Epoch {
			panic(fmt.Sprintf("running slow path epoch %d does not match last slow-path record %d",
				runningEpoch, l.lastSlowPathUpdate.Epoch))
		}
		// Check whether cancelling pays off before cloning anything: cancel
		// if old + new together take the fast path, or if the new update
		// takes the slow path anyway.
		merged, combinedEvictions := l.mergeUpdates(l.lastSlowPathUpdate, l.lastSlowPathEvictedStateHashes, update, evictedHashes)
		if (merged.CanTakeFastPath || !update.CanTakeFastPath) && l.initialGS.TryCancelSlowPath(merged.Epoch) {
			update = merged
			evictedHashes = combinedEvictions
		}
	}

	if !update.CanTakeFastPath {
		update.UpdatedGS = l.initialGS.DeepCopy()
		l.lastSlowPathUpdate = snapshotUpdate(update)
		l.lastSlowPathEvictedStateHashes = evictedHashes
	}

	l.initialGS.Epoch = update.Epoch
	return update
}

// snapshotUpdate copies an update for the slow-path record, deep-copying
// each indexed tree since the typechecker may mutate its copy.
func snapshotUpdate(u *FileUpdates) *FileUpdates {
	cp := &FileUpdates{
		Epoch:             u.Epoch,
		EditCount:         u.EditCount,
		UpdatedFiles:      append([]*core.File(nil), u.UpdatedFiles...),
		UpdatedFileHashes: append([]core.FileHash(nil), u.UpdatedFileHashes...),
		HasNewFiles:       u.HasNewFiles,
		CanTakeFastPath:   u.CanTakeFastPath,
	}
	cp.UpdatedFileIndexes = make([]ast.ParsedFile, len(u.UpdatedFileIndexes))
	for i, pf := range u.UpdatedFileIndexes {
		cp.UpdatedFileIndexes[i] = pf.DeepCopy()
	}
	return cp
}
