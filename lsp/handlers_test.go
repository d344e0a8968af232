package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fooSource = `class Foo
  sig {params(name: String).returns(String)}
  def greet(name)
    name
  end
end
`

const barSource = `class Bar < Foo
  def use
    greet("hi")
  end
end
`

func newQueryLoop(t *testing.T) (*Loop, *BufferOutput, string) {
	return newTestLoop(t, map[string]string{
		"foo.rb": fooSource,
		"bar.rb": barSource,
	})
}

func queryResult(t *testing.T, l *Loop, out *BufferOutput, id int64, method string, params interface{}) interface{} {
	t.Helper()
	l.ProcessRequests([]*Message{request(id, method, params)})
	resp, ok := findResponse(out, id)
	require.True(t, ok, "query %s must be answered", method)
	require.Zero(t, resp.Code, "query %s failed: %s", method, resp.Err)
	return resp.Result
}

func TestDefinitionQuery(t *testing.T) {
	l, out, dir := newQueryLoop(t)

	// Cursor on the `greet` call inside bar.rb.
	result := queryResult(t, l, out, 100, MethodDefinition, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "bar.rb")},
		Position:     Position{Line: 2, Character: 5},
	})
	locations, ok := result.([]Location)
	require.True(t, ok)
	require.NotEmpty(t, locations)
	assert.Equal(t, fileURI(dir, "foo.rb"), locations[0].URI)
	assert.Equal(t, 2, locations[0].Range.Start.Line, "definition points at `def greet`")
}

func TestTypeDefinitionFiltersToTypes(t *testing.T) {
	l, out, dir := newQueryLoop(t)

	result := queryResult(t, l, out, 101, MethodTypeDefinition, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "bar.rb")},
		Position:     Position{Line: 0, Character: 13},
	})
	locations, ok := result.([]Location)
	require.True(t, ok)
	require.Len(t, locations, 1)
	assert.Equal(t, fileURI(dir, "foo.rb"), locations[0].URI)
}

func TestHoverShowsSignature(t *testing.T) {
	l, out, dir := newQueryLoop(t)

	result := queryResult(t, l, out, 102, MethodHover, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "bar.rb")},
		Position:     Position{Line: 2, Character: 5},
	})
	hover, ok := result.(Hover)
	require.True(t, ok)
	assert.Contains(t, hover.Contents.Value, "greet")
	assert.Contains(t, hover.Contents.Value, "params(name: String)")
}

func TestCompletionPrefixSearch(t *testing.T) {
	l, out, dir := newQueryLoop(t)

	// Introduce a partial word to complete against.
	l.ProcessRequests([]*Message{didChange(dir, "bar.rb",
		"class Bar < Foo\n  def use\n    gre\n  end\nend\n")})
	require.Equal(t, 2, l.TypecheckCount())

	result := queryResult(t, l, out, 103, MethodCompletion, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "bar.rb")},
		Position:     Position{Line: 2, Character: 7},
	})
	list, ok := result.(CompletionList)
	require.True(t, ok)
	require.NotEmpty(t, list.Items)
	assert.Equal(t, "greet", list.Items[0].Label)
}

func TestReferencesAcrossFiles(t *testing.T) {
	l, out, dir := newQueryLoop(t)

	result := queryResult(t, l, out, 104, MethodReferences, ReferenceParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "foo.rb")},
			Position:     Position{Line: 2, Character: 8},
		},
		Context: ReferenceContext{IncludeDeclaration: true},
	})
	locations, ok := result.([]Location)
	require.True(t, ok)
	uris := make(map[string]int)
	for _, loc := range locations {
		uris[loc.URI]++
	}
	assert.Positive(t, uris[fileURI(dir, "foo.rb")], "declaration site found")
	assert.Positive(t, uris[fileURI(dir, "bar.rb")], "call site found")
}

func TestDocumentSymbols(t *testing.T) {
	l, out, dir := newQueryLoop(t)

	result := queryResult(t, l, out, 105, MethodDocumentSymbol, DocumentSymbolParams{
		TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "foo.rb")},
	})
	symbols, ok := result.([]SymbolInformation)
	require.True(t, ok)

	names := make([]string, 0, len(symbols))
	for _, s := range symbols {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "Foo")
	assert.Contains(t, names, "greet")
}

func TestWorkspaceSymbolSearch(t *testing.T) {
	l, out, _ := newQueryLoop(t)

	result := queryResult(t, l, out, 106, MethodWorkspaceSymbol, WorkspaceSymbolParams{Query: "gre"})
	symbols, ok := result.([]SymbolInformation)
	require.True(t, ok)
	require.NotEmpty(t, symbols)
	assert.Equal(t, "Foo#greet", symbols[0].Name)
}

func TestDocumentHighlight(t *testing.T) {
	l, out, dir := newQueryLoop(t)

	result := queryResult(t, l, out, 107, MethodDocumentHighlight, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "foo.rb")},
		Position:     Position{Line: 2, Character: 8},
	})
	highlights, ok := result.([]DocumentHighlight)
	require.True(t, ok)
	assert.NotEmpty(t, highlights)
}

func TestSignatureHelp(t *testing.T) {
	l, out, dir := newQueryLoop(t)

	// Cursor just after the open paren of `greet(`.
	result := queryResult(t, l, out, 108, MethodSignatureHelp, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "bar.rb")},
		Position:     Position{Line: 2, Character: 10},
	})
	help, ok := result.(SignatureHelp)
	require.True(t, ok)
	require.NotEmpty(t, help.Signatures)
	assert.Contains(t, help.Signatures[0].Label, "greet")
	assert.Len(t, help.Signatures[0].Parameters, 1)
}

func TestCodeActionOffersSigilQuickfix(t *testing.T) {
	l, out, dir := newQueryLoop(t)

	result := queryResult(t, l, out, 109, MethodCodeAction, CodeActionParams{
		TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "foo.rb")},
	})
	actions, ok := result.([]CodeAction)
	require.True(t, ok)
	require.NotEmpty(t, actions, "file without a sigil gets the quickfix")
	assert.Equal(t, "quickfix", actions[0].Kind)
	require.NotNil(t, actions[0].Edit)
}

func TestCodeActionAbsentWhenSigilPresent(t *testing.T) {
	l, out, dir := newTestLoop(t, map[string]string{
		"typed.rb": "# typed: true\nclass T\nend\n",
	})

	result := queryResult(t, l, out, 110, MethodCodeAction, CodeActionParams{
		TextDocument: TextDocumentIdentifier{URI: fileURI(dir, "typed.rb")},
	})
	actions, ok := result.([]CodeAction)
	require.True(t, ok)
	assert.Empty(t, actions)
}

func TestWordAt(t *testing.T) {
	assert.Equal(t, "greet", wordAt("    greet(\"hi\")", 0, 5))
	assert.Equal(t, "greet", wordAt("    greet(\"hi\")", 0, 4))
	assert.Equal(t, "Foo", wordAt("class Bar < Foo", 0, 13))
	assert.Equal(t, "", wordAt("", 0, 0))
	assert.Equal(t, "", wordAt("x", 5, 0))
}
