package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnterAndFindFile(t *testing.T) {
	gs := NewGlobalState()
	access := NewUnfreezeFileTable(gs)
	fref := gs.EnterFile(NewFile("a.rb", "class A; end"))
	access.Release()

	assert.True(t, fref.Exists())
	assert.Equal(t, fref, gs.FindFileByPath("a.rb"))
	assert.Equal(t, "class A; end", gs.File(fref).Source())
	assert.False(t, gs.FindFileByPath("missing.rb").Exists())
}

func TestFileTableFrozenByDefault(t *testing.T) {
	gs := NewGlobalState()
	assert.Panics(t, func() {
		gs.EnterFile(NewFile("a.rb", ""))
	})
}

func TestReplaceFileKeepsRef(t *testing.T) {
	gs := NewGlobalState()
	access := NewUnfreezeFileTable(gs)
	fref := gs.EnterFile(NewFile("a.rb", "old"))
	gs.ReplaceFile(fref, NewFile("a.rb", "new"))
	access.Release()

	assert.Equal(t, "new", gs.File(fref).Source())
	assert.Equal(t, fref, gs.FindFileByPath("a.rb"))
}

func TestReplaceFilePathMismatchPanics(t *testing.T) {
	gs := NewGlobalState()
	access := NewUnfreezeFileTable(gs)
	defer access.Release()
	fref := gs.EnterFile(NewFile("a.rb", "old"))
	assert.Panics(t, func() {
		gs.ReplaceFile(fref, NewFile("b.rb", "new"))
	})
}

func TestDeepCopyIsIndependent(t *testing.T) {
	gs := NewGlobalState()
	access := NewUnfreezeFileTable(gs)
	fref := gs.EnterFile(NewFile("a.rb", "class A; end"))
	access.Release()
	gs.EnterSymbol(Symbol{
		Name: gs.Names.Enter("A"),
		FQN:  "A",
		Kind: SymbolClass,
		File: fref,
	})

	cp := gs.DeepCopy()

	// Mutating the copy's symbol table must not leak into the original.
	cp.EnterSymbol(Symbol{
		Name: cp.Names.Enter("B"),
		FQN:  "B",
		Kind: SymbolClass,
		File: fref,
	})
	assert.Len(t, cp.LookupSymbols("B"), 1)
	assert.Empty(t, gs.LookupSymbols("B"))

	// New files entered into the copy do not appear in the original.
	cpAccess := NewUnfreezeFileTable(cp)
	cp.EnterFile(NewFile("b.rb", ""))
	cpAccess.Release()
	assert.False(t, gs.FindFileByPath("b.rb").Exists())
	assert.Equal(t, 1, gs.FileCount())
	assert.Equal(t, 2, cp.FileCount())
}

func TestDeepCopySharesEpochState(t *testing.T) {
	gs := NewGlobalState()
	cp := gs.DeepCopy()

	gs.StartCommitEpoch(7)
	epoch, running := cp.RunningSlowPath()
	require.True(t, running, "epoch state must be shared across copies")
	assert.Equal(t, uint32(7), epoch)

	require.True(t, cp.TryCancelSlowPath(8))
	assert.True(t, gs.SlowPathCancelled(7))
}

func TestDropFileSymbols(t *testing.T) {
	gs := NewGlobalState()
	access := NewUnfreezeFileTable(gs)
	f1 := gs.EnterFile(NewFile("a.rb", ""))
	f2 := gs.EnterFile(NewFile("b.rb", ""))
	access.Release()

	gs.EnterSymbol(Symbol{Name: gs.Names.Enter("A"), FQN: "A", Kind: SymbolClass, File: f1})
	gs.EnterSymbol(Symbol{Name: gs.Names.Enter("B"), FQN: "B", Kind: SymbolClass, File: f2})

	gs.DropFileSymbols(f1)
	assert.Empty(t, gs.LookupSymbols("A"))
	assert.Len(t, gs.LookupSymbols("B"), 1)
	assert.Empty(t, gs.SymbolsInFile(f1))
}

func TestEpochsCancellation(t *testing.T) {
	var e Epochs

	// Nothing running: cancel fails.
	assert.False(t, e.TryCancel(1))

	e.StartCommit(3)
	epoch, running := e.RunningSlowPath()
	require.True(t, running)
	assert.Equal(t, uint32(3), epoch)
	assert.False(t, e.Cancelled(3))

	// A stale epoch cannot cancel.
	assert.False(t, e.TryCancel(3))

	require.True(t, e.TryCancel(4))
	assert.True(t, e.Cancelled(3))
	// Second cancel fails: already cancelled.
	assert.False(t, e.TryCancel(5))

	// The cancelled job's commit fence fails and clears the state.
	assert.False(t, e.TryCommit(3))
	_, running = e.RunningSlowPath()
	assert.False(t, running)
}

func TestEpochsCancelLosesAfterCommit(t *testing.T) {
	var e Epochs
	e.StartCommit(3)

	// The typechecker commits first; the racing cancel must fail.
	require.True(t, e.TryCommit(3))
	assert.False(t, e.TryCancel(4))
	_, running := e.RunningSlowPath()
	assert.False(t, running)
}

func TestEpochsSupersededJobSeesCancellation(t *testing.T) {
	var e Epochs
	e.StartCommit(3)
	require.True(t, e.TryCancel(4))

	// A new slow path starts before the old job drains.
	e.StartCommit(4)
	assert.True(t, e.Cancelled(3), "superseded epoch must read as cancelled")
	assert.False(t, e.Cancelled(4))

	// The old job's fence is a no-op; the new epoch still commits.
	assert.False(t, e.TryCommit(3))
	assert.True(t, e.TryCommit(4))
}

func TestStrictLevelSniffing(t *testing.T) {
	cases := []struct {
		source string
		want   StrictLevel
	}{
		{"# typed: true\nclass A; end", StrictLevelTrue},
		{"# typed: strict\n", StrictLevelStrict},
		{"#  typed: ignore\n", StrictLevelIgnore},
		{"class A; end", StrictLevelNone},
		{"# frozen_string_literal: true\n# typed: false\nclass A; end", StrictLevelFalse},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NewFile("a.rb", tc.source).Strict(), "source: %q", tc.source)
	}
}
