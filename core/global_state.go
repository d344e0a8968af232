package core

import "fmt"

// FileRef is a small dense integer identifying a file within a workspace.
// Ref 0 never exists; newly introduced files get a fresh ref. A ref stays
// stable across edits to its file.
type FileRef int

// Exists reports whether the ref points at a registered file.
func (f FileRef) Exists() bool { return f > 0 }

// ID returns the dense integer id.
func (f FileRef) ID() int { return int(f) }

// GlobalState is the authoritative symbol table for one workspace: interned
// names, resolved symbols and the file table, plus the shared epoch state
// used for slow-path cancellation.
//
// The main thread keeps one GlobalState up to date with edits (initialGS)
// but never typechecks against it; slow paths typecheck against a DeepCopy.
// The Epochs pointer is shared across copies so that cancellation written on
// one copy is visible from all of them.
type GlobalState struct {
	Names *NameTable

	files      []*File // indexed by FileRef; slot 0 is nil
	fileByPath map[string]FileRef

	symbols *symbolTable

	epochs *Epochs

	// Epoch of the last committed edit batch; strictly increasing.
	Epoch uint32

	fileTableFrozen bool
}

// NewGlobalState returns an empty state with a frozen file table.
func NewGlobalState() *GlobalState {
	return &GlobalState{
		Names:           NewNameTable(),
		files:           []*File{nil},
		fileByPath:      make(map[string]FileRef),
		symbols:         newSymbolTable(),
		epochs:          &Epochs{},
		fileTableFrozen: true,
	}
}

// FindFileByPath resolves a path to its FileRef, if registered.
func (gs *GlobalState) FindFileByPath(path string) FileRef {
	return gs.fileByPath[path]
}

// File returns the current content snapshot for fref.
func (gs *GlobalState) File(fref FileRef) *File {
	if !fref.Exists() || int(fref) >= len(gs.files) {
		return nil
	}
	return gs.files[fref]
}

// Files returns the file table, indexed by FileRef. Slot 0 is nil.
func (gs *GlobalState) Files() []*File {
	return gs.files
}

// FileCount returns the number of registered files.
func (gs *GlobalState) FileCount() int {
	return len(gs.files) - 1
}

// EnterFile registers a new file and returns its fresh ref. The file table
// must be unfrozen.
func (gs *GlobalState) EnterFile(file *File) FileRef {
	if gs.fileTableFrozen {
		panic(fmt.Sprintf("file table is frozen; cannot enter %s", file.Path()))
	}
	if existing := gs.fileByPath[file.Path()]; existing.Exists() {
		panic(fmt.Sprintf("file %s already entered as %d", file.Path(), existing))
	}
	fref := FileRef(len(gs.files))
	gs.files = append(gs.files, file)
	gs.fileByPath[file.Path()] = fref
	return fref
}

// ReplaceFile swaps in new content for an existing ref. The file table must
// be unfrozen.
func (gs *GlobalState) ReplaceFile(fref FileRef, file *File) {
	if gs.fileTableFrozen {
		panic(fmt.Sprintf("file table is frozen; cannot replace %s", file.Path()))
	}
	old := gs.File(fref)
	if old == nil {
		panic(fmt.Sprintf("no file registered at ref %d", fref))
	}
	if old.Path() != file.Path() {
		panic(fmt.Sprintf("replaceFile path mismatch: %s vs %s", old.Path(), file.Path()))
	}
	gs.files[fref] = file
}

// DeepCopy yields an independent mutable clone. File snapshots are immutable
// and shared; the name table, symbol table and file index are copied. The
// epoch state is shared so cancellation crosses copies.
func (gs *GlobalState) DeepCopy() *GlobalState {
	cp := &GlobalState{
		Names:           gs.Names.deepCopy(),
		files:           append([]*File(nil), gs.files...),
		fileByPath:      make(map[string]FileRef, len(gs.fileByPath)),
		symbols:         gs.symbols.deepCopy(),
		epochs:          gs.epochs,
		Epoch:           gs.Epoch,
		fileTableFrozen: true,
	}
	for k, v := range gs.fileByPath {
		cp.fileByPath[k] = v
	}
	return cp
}

// StartCommitEpoch marks the start of a cancelable slow path at epoch.
func (gs *GlobalState) StartCommitEpoch(epoch uint32) {
	gs.epochs.StartCommit(epoch)
}

// RunningSlowPath returns the epoch of the in-flight slow path, if any.
func (gs *GlobalState) RunningSlowPath() (uint32, bool) {
	return gs.epochs.RunningSlowPath()
}

// TryCancelSlowPath attempts to cancel the in-flight slow path in favor of
// an update at newEpoch.
func (gs *GlobalState) TryCancelSlowPath(newEpoch uint32) bool {
	return gs.epochs.TryCancel(newEpoch)
}

// SlowPathCancelled reports whether the slow path at epoch was cancelled or
// superseded; polled from the typechecker's inner loops.
func (gs *GlobalState) SlowPathCancelled(epoch uint32) bool {
	return gs.epochs.Cancelled(epoch)
}

// TryCommitEpoch is the typechecker's final commit fence for epoch.
func (gs *GlobalState) TryCommitEpoch(epoch uint32) bool {
	return gs.epochs.TryCommit(epoch)
}

// UnfreezeFileTable grants scoped write access to the file table. Only the
// main thread may hold it, and only while replacing or entering files.
type UnfreezeFileTable struct {
	gs *GlobalState
}

// NewUnfreezeFileTable unfreezes the table until Release.
func NewUnfreezeFileTable(gs *GlobalState) *UnfreezeFileTable {
	if !gs.fileTableFrozen {
		panic("file table is already unfrozen")
	}
	gs.fileTableFrozen = false
	return &UnfreezeFileTable{gs: gs}
}

// Release refreezes the table.
func (u *UnfreezeFileTable) Release() {
	u.gs.fileTableFrozen = true
}
