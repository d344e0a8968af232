package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeReportsCapabilities(t *testing.T) {
	_, out, _ := newTestLoop(t, map[string]string{"a.rb": bodyV1})

	resp, ok := findResponse(out, 1)
	require.True(t, ok, "initialize must be answered")
	result, ok := resp.Result.(InitializeResult)
	require.True(t, ok)

	caps := result.Capabilities
	assert.Equal(t, TextDocumentSyncFull, caps.TextDocumentSync)
	assert.True(t, caps.DefinitionProvider)
	assert.True(t, caps.TypeDefinitionProvider)
	assert.True(t, caps.HoverProvider)
	assert.True(t, caps.ReferencesProvider)
	assert.True(t, caps.WorkspaceSymbolProvider)
	require.NotNil(t, caps.CompletionProvider)
	assert.Equal(t, []string{"."}, caps.CompletionProvider.TriggerCharacters)
	require.NotNil(t, caps.SignatureHelpProvider)
	assert.Equal(t, []string{"(", ","}, caps.SignatureHelpProvider.TriggerCharacters)
	require.NotNil(t, caps.CodeActionProvider)
	assert.Equal(t, []string{"quickfix"}, caps.CodeActionProvider.CodeActionKinds)
}

func TestCapabilityTogglesRespected(t *testing.T) {
	cfg := testConfig()
	cfg.SignatureHelpEnabled = false
	cfg.QuickFixEnabled = false
	cfg.DocumentSymbolEnabled = false
	out := NewBufferOutput()
	l := NewLoop(cfg, out)
	t.Cleanup(l.Shutdown)

	l.ProcessRequests([]*Message{request(1, MethodInitialize, InitializeParams{})})
	resp, ok := findResponse(out, 1)
	require.True(t, ok)
	caps := resp.Result.(InitializeResult).Capabilities
	assert.Nil(t, caps.SignatureHelpProvider)
	assert.Nil(t, caps.CodeActionProvider)
	assert.False(t, caps.DocumentSymbolProvider)
}

func TestRequestBeforeInitializeRejected(t *testing.T) {
	cfg := testConfig()
	out := NewBufferOutput()
	l := NewLoop(cfg, out)
	t.Cleanup(l.Shutdown)

	l.ProcessRequests([]*Message{request(9, MethodHover, TextDocumentPositionParams{})})
	resp, ok := findResponse(out, 9)
	require.True(t, ok)
	assert.Equal(t, CodeServerNotInitialized, resp.Code)
}

func TestFastPathEndToEnd(t *testing.T) {
	// S1 end to end: one fast typecheck, slow-path record untouched.
	l, _, dir := newTestLoop(t, map[string]string{"a.rb": bodyV1})
	require.Equal(t, 1, l.TypecheckCount(), "initialization commits once")

	l.ProcessRequests([]*Message{didChange(dir, "a.rb", bodyV2)})
	assert.Equal(t, 2, l.TypecheckCount())
	assert.Nil(t, l.lastSlowPathUpdate)
}

func TestSlowPathEndToEnd(t *testing.T) {
	// S2 end to end: the async slow path commits and updates the record.
	l, _, dir := newTestLoop(t, map[string]string{"a.rb": bodyV1})

	l.ProcessRequests([]*Message{didChange(dir, "a.rb", sigChange)})
	assert.Equal(t, 2, l.TypecheckCount(), "TypecheckCount waits for the async job")
	require.NotNil(t, l.lastSlowPathUpdate)

	// The slow path has drained; nothing is left running.
	_, running := l.initialGS.RunningSlowPath()
	assert.False(t, running)
}

func TestFenceAfterEdits(t *testing.T) {
	// S6: the fence echoes back only after both edits have been typechecked.
	l, out, dir := newTestLoop(t, map[string]string{"a.rb": bodyV1})

	l.ProcessRequests([]*Message{
		didChange(dir, "a.rb", bodyV2),
		notification(MethodSorbetFence, 42),
	})
	// didChange and the fence are processed in queue order; after processing, the
	// fence must have been echoed and both typechecks committed.
	fences := findNotifications(out, MethodSorbetFence)
	require.Len(t, fences, 1)
	assert.GreaterOrEqual(t, l.TypecheckCount(), 2)

	l.ProcessRequests([]*Message{
		didChange(dir, "a.rb", sigChange),
		notification(MethodSorbetFence, 43),
	})
	fences = findNotifications(out, MethodSorbetFence)
	require.Len(t, fences, 2)
	assert.Equal(t, 3, l.TypecheckCount(), "fence drains the async slow path too")
}

func TestCancelledRequestGetsRequestCancelled(t *testing.T) {
	l, out, dir := newTestLoop(t, map[string]string{"a.rb": bodyV1})

	hover := request(21, MethodHover, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "a.rb")},
		Position:     Position{Line: 0, Character: 6},
	})
	cancel := notification(MethodCancelRequest, map[string]interface{}{"id": 21})
	l.ProcessRequests([]*Message{hover, cancel})

	resp, ok := findResponse(out, 21)
	require.True(t, ok, "a cancelled request still gets a response")
	assert.Equal(t, CodeRequestCancelled, resp.Code)
}

func TestUnknownMethodGetsMethodNotFound(t *testing.T) {
	l, out, _ := newTestLoop(t, map[string]string{"a.rb": bodyV1})

	l.ProcessRequests([]*Message{request(31, "textDocument/rename", nil)})
	resp, ok := findResponse(out, 31)
	require.True(t, ok)
	assert.Equal(t, CodeMethodNotFound, resp.Code)
}

func TestShutdownAndExit(t *testing.T) {
	l, out, _ := newTestLoop(t, map[string]string{"a.rb": bodyV1})

	l.ProcessRequests([]*Message{
		request(41, MethodShutdown, nil),
		notification(MethodExit, nil),
	})
	resp, ok := findResponse(out, 41)
	require.True(t, ok)
	assert.Nil(t, resp.Result)
	assert.True(t, l.exited)
}

func TestSyntaxErrorPublishesDiagnostics(t *testing.T) {
	// S4: the file is committed with an INVALID hash and diagnostics flow
	// out of the slow path.
	l, out, dir := newTestLoop(t, map[string]string{"a.rb": bodyV1})

	l.ProcessRequests([]*Message{didChange(dir, "a.rb", badSyntax)})
	require.Equal(t, 2, l.TypecheckCount())

	diags := findNotifications(out, MethodPublishDiagnostics)
	require.NotEmpty(t, diags)
	last := diags[len(diags)-1].Params.(PublishDiagnosticsParams)
	assert.Equal(t, fileURI(dir, "a.rb"), last.URI)
	require.NotEmpty(t, last.Diagnostics)
	assert.Equal(t, DiagnosticError, last.Diagnostics[0].Severity)
}

func TestDiagnosticsClearedAfterFix(t *testing.T) {
	l, out, dir := newTestLoop(t, map[string]string{"a.rb": bodyV1})

	l.ProcessRequests([]*Message{didChange(dir, "a.rb", badSyntax)})
	require.Equal(t, 2, l.TypecheckCount())
	l.ProcessRequests([]*Message{didChange(dir, "a.rb", bodyV1)})
	require.Equal(t, 3, l.TypecheckCount())

	diags := findNotifications(out, MethodPublishDiagnostics)
	require.NotEmpty(t, diags)
	last := diags[len(diags)-1].Params.(PublishDiagnosticsParams)
	assert.Empty(t, last.Diagnostics, "fixing the file clears its diagnostics")
}

func TestReadFileReturnsServerView(t *testing.T) {
	l, out, dir := newTestLoop(t, map[string]string{"a.rb": bodyV1})

	l.ProcessRequests([]*Message{didChange(dir, "a.rb", bodyV2)})
	require.Equal(t, 2, l.TypecheckCount())

	l.ProcessRequests([]*Message{request(51, MethodSorbetReadFile, TextDocumentIdentifier{
		URI: fileURI(dir, "a.rb"),
	})})
	resp, ok := findResponse(out, 51)
	require.True(t, ok)
	item, ok := resp.Result.(TextDocumentItem)
	require.True(t, ok)
	assert.Equal(t, bodyV2, item.Text, "readFile reflects the committed edit")
}

func TestReadFileUnknownURI(t *testing.T) {
	l, out, _ := newTestLoop(t, map[string]string{"a.rb": bodyV1})

	l.ProcessRequests([]*Message{request(52, MethodSorbetReadFile, TextDocumentIdentifier{
		URI: "file:///nope.rb",
	})})
	resp, ok := findResponse(out, 52)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidParams, resp.Code)
}

func TestNewFileEndToEnd(t *testing.T) {
	// S5: opening a previously-unseen file forces the slow path and the file
	// becomes queryable.
	l, _, dir := newTestLoop(t, map[string]string{"a.rb": bodyV1})

	l.ProcessRequests([]*Message{didOpen(dir, "b.rb", "class B\n  def g\n  end\nend\n")})
	require.Equal(t, 2, l.TypecheckCount())
	require.NotNil(t, l.lastSlowPathUpdate)
	assert.True(t, l.lastSlowPathUpdate.HasNewFiles)

	var count int
	l.coordinator.SyncRun(func(tc *Typechecker) {
		count = len(tc.GS().LookupSymbols("B"))
	})
	assert.Equal(t, 1, count)
}
