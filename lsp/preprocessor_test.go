package lsp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldong/sorbet/store"
)

func newTestPreprocessor() *Preprocessor {
	return NewPreprocessor(testConfig(), store.New())
}

func initialized(p *Preprocessor) {
	p.PreprocessAndEnqueue(request(1, MethodInitialize, InitializeParams{}))
	// drain the initialize message so later assertions see a clean queue
	p.DrainPending()
}

func TestPreprocessorRejectsRequestsBeforeInitialize(t *testing.T) {
	p := newTestPreprocessor()

	p.PreprocessAndEnqueue(request(5, MethodHover, TextDocumentPositionParams{}))
	msgs := p.DrainPending()
	require.Len(t, msgs, 1)
	assert.Equal(t, CodeServerNotInitialized, msgs[0].RejectCode)
}

func TestPreprocessorDropsNotificationsBeforeInitialize(t *testing.T) {
	p := newTestPreprocessor()

	p.PreprocessAndEnqueue(notification(MethodDidOpen, DidOpenTextDocumentParams{}))
	assert.Empty(t, p.DrainPending())

	// exit is always allowed through.
	p.PreprocessAndEnqueue(notification(MethodExit, nil))
	msgs := p.DrainPending()
	require.Len(t, msgs, 1)
	assert.Equal(t, MethodExit, msgs[0].Method)
}

func TestPreprocessorRejectsDuplicateInitialize(t *testing.T) {
	p := newTestPreprocessor()
	initialized(p)

	p.PreprocessAndEnqueue(request(2, MethodInitialize, InitializeParams{}))
	msgs := p.DrainPending()
	require.Len(t, msgs, 1)
	assert.Equal(t, CodeInvalidRequest, msgs[0].RejectCode)
}

func TestPreprocessorCanonicalizesDidOpen(t *testing.T) {
	p := newTestPreprocessor()
	initialized(p)

	p.PreprocessAndEnqueue(didOpen("/ws", "a.rb", "class A; end"))
	msgs := p.DrainPending()
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, MethodSorbetWorkspaceEdit, msg.Method)
	require.NotNil(t, msg.EditParams)
	require.Len(t, msg.EditParams.Updates, 1)
	assert.Equal(t, "/ws/a.rb", msg.EditParams.Updates[0].Path())
	assert.Equal(t, "class A; end", msg.EditParams.Updates[0].Source())
	assert.Equal(t, 0, msg.EditParams.MergeCount)
	assert.NotZero(t, msg.EditParams.Epoch)
}

func TestPreprocessorCoalescesEdits(t *testing.T) {
	p := newTestPreprocessor()
	initialized(p)

	p.PreprocessAndEnqueue(didOpen("/ws", "a.rb", "class A; end"))
	p.PreprocessAndEnqueue(didChange("/ws", "a.rb", "class A; def f; end; end"))
	p.PreprocessAndEnqueue(didOpen("/ws", "b.rb", "class B; end"))

	msgs := p.DrainPending()
	require.Len(t, msgs, 1, "successive edits collapse into one pending edit")
	edit := msgs[0].EditParams
	require.NotNil(t, edit)
	assert.Equal(t, 2, edit.MergeCount, "three originals coalesced")
	require.Len(t, edit.Updates, 2)

	byPath := make(map[string]string)
	for _, f := range edit.Updates {
		byPath[f.Path()] = f.Source()
	}
	assert.Equal(t, "class A; def f; end; end", byPath["/ws/a.rb"], "newer content wins")
	assert.Equal(t, "class B; end", byPath["/ws/b.rb"])
}

func TestPreprocessorEditEpochsIncrease(t *testing.T) {
	p := newTestPreprocessor()
	initialized(p)

	p.PreprocessAndEnqueue(didOpen("/ws", "a.rb", "1"))
	first := p.DrainPending()[0].EditParams.Epoch

	p.PreprocessAndEnqueue(didChange("/ws", "a.rb", "2"))
	second := p.DrainPending()[0].EditParams.Epoch
	assert.Greater(t, second, first)
}

func TestPreprocessorMergedEditTakesNewestEpoch(t *testing.T) {
	p := newTestPreprocessor()
	initialized(p)

	p.PreprocessAndEnqueue(didOpen("/ws", "a.rb", "1"))
	p.PreprocessAndEnqueue(didChange("/ws", "a.rb", "2"))
	msgs := p.DrainPending()
	require.Len(t, msgs, 1)
	assert.Equal(t, msgs[0].Epoch, msgs[0].EditParams.Epoch)
	assert.Equal(t, uint32(3), msgs[0].EditParams.Epoch, "initialize consumed epoch 1")
}

func TestPreprocessorCancelMarksQueuedRequest(t *testing.T) {
	p := newTestPreprocessor()
	initialized(p)

	p.PreprocessAndEnqueue(request(7, MethodHover, TextDocumentPositionParams{}))
	p.PreprocessAndEnqueue(notification(MethodCancelRequest, map[string]interface{}{"id": 7}))

	msgs := p.DrainPending()
	require.Len(t, msgs, 1, "cancellation does not remove the request")
	assert.True(t, msgs[0].Canceled)
}

func TestPreprocessorCancelForUnknownIdIsDropped(t *testing.T) {
	p := newTestPreprocessor()
	initialized(p)

	p.PreprocessAndEnqueue(notification(MethodCancelRequest, map[string]interface{}{"id": 99}))
	assert.Empty(t, p.DrainPending())
}

func TestPreprocessorPausePanicsInSingleThreadedMode(t *testing.T) {
	p := newTestPreprocessor()
	initialized(p)

	p.PreprocessAndEnqueue(&Message{Method: MethodPause})
	assert.Panics(t, func() { p.DrainPending() })

	p.PreprocessAndEnqueue(&Message{Method: MethodResume})
	assert.NotPanics(t, func() { p.DrainPending() })
}

func TestPreprocessorDidCloseRevertsToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.rb")
	require.NoError(t, os.WriteFile(path, []byte("on disk"), 0o644))

	p := newTestPreprocessor()
	initialized(p)

	p.PreprocessAndEnqueue(didOpen(dir, "a.rb", "in editor"))
	p.DrainPending()

	p.PreprocessAndEnqueue(notification(MethodDidClose, DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "a.rb")},
	}))
	msgs := p.DrainPending()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].EditParams.Updates, 1)
	assert.Equal(t, "on disk", msgs[0].EditParams.Updates[0].Source())
}

func TestPreprocessorWatchmanSkipsOpenDocuments(t *testing.T) {
	dir := t.TempDir()
	openPath := filepath.Join(dir, "open.rb")
	closedPath := filepath.Join(dir, "closed.rb")
	require.NoError(t, os.WriteFile(openPath, []byte("disk open"), 0o644))
	require.NoError(t, os.WriteFile(closedPath, []byte("disk closed"), 0o644))

	p := newTestPreprocessor()
	initialized(p)

	p.PreprocessAndEnqueue(didOpen(dir, "open.rb", "editor view"))
	p.DrainPending()

	p.PreprocessAndEnqueue(notification(MethodSorbetWatchmanFileChange, WatchmanFileChangeParams{
		Files: []string{openPath, closedPath},
	}))
	msgs := p.DrainPending()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].EditParams.Updates, 1, "open documents keep the editor's view")
	assert.Equal(t, closedPath, msgs[0].EditParams.Updates[0].Path())
	assert.Equal(t, "disk closed", msgs[0].EditParams.Updates[0].Source())
}

func TestCancelParamsDecoding(t *testing.T) {
	var params CancelParams
	require.NoError(t, json.Unmarshal([]byte(`{"id":42}`), &params))
	assert.Equal(t, json.RawMessage("42"), params.ID)
}
