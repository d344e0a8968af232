package lsp

import (
	"encoding/json"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/donaldong/sorbet/core"
)

// ErrorCode is a JSON-RPC / LSP error code.
type ErrorCode int

const (
	CodeParseError           ErrorCode = -32700
	CodeInvalidRequest       ErrorCode = -32600
	CodeMethodNotFound       ErrorCode = -32601
	CodeInvalidParams        ErrorCode = -32602
	CodeInternalError        ErrorCode = -32603
	CodeServerNotInitialized ErrorCode = -32002
	CodeRequestCancelled     ErrorCode = -32800
)

// LSP methods handled by the loop, plus the custom sorbet/* extensions.
const (
	MethodInitialize         = "initialize"
	MethodInitialized        = "initialized"
	MethodShutdown           = "shutdown"
	MethodExit               = "exit"
	MethodCancelRequest      = "$/cancelRequest"
	MethodDidOpen            = "textDocument/didOpen"
	MethodDidChange          = "textDocument/didChange"
	MethodDidClose           = "textDocument/didClose"
	MethodDidSave            = "textDocument/didSave"
	MethodDefinition         = "textDocument/definition"
	MethodTypeDefinition     = "textDocument/typeDefinition"
	MethodHover              = "textDocument/hover"
	MethodCompletion         = "textDocument/completion"
	MethodReferences         = "textDocument/references"
	MethodDocumentSymbol     = "textDocument/documentSymbol"
	MethodDocumentHighlight  = "textDocument/documentHighlight"
	MethodSignatureHelp      = "textDocument/signatureHelp"
	MethodCodeAction         = "textDocument/codeAction"
	MethodWorkspaceSymbol    = "workspace/symbol"
	MethodPublishDiagnostics = "textDocument/publishDiagnostics"

	MethodSorbetFence              = "sorbet/fence"
	MethodSorbetReadFile           = "sorbet/readFile"
	MethodSorbetWatchmanFileChange = "sorbet/watchmanFileChange"
	MethodSorbetWorkspaceEdit      = "sorbet/workspaceEdit"
	MethodSorbetError              = "sorbet/error"

	// Debug controls for tests.
	MethodPause  = "__PAUSE__"
	MethodResume = "__RESUME__"
)

// Message is one canonicalized queue entry: a raw protocol message after the
// preprocessor has rewritten, merged, or rejected it.
type Message struct {
	ID     jsonrpc2.ID
	HasID  bool
	Method string
	Params json.RawMessage

	// Epoch tags the message's position in the total order.
	Epoch uint32

	// Canceled is set by $/cancelRequest while the message is still queued.
	Canceled bool

	// RejectCode, when nonzero, instructs the loop to reply with this error
	// instead of dispatching (handshake violations and the like).
	RejectCode ErrorCode
	RejectMsg  string

	// EditParams carries the payload of a canonicalized workspace edit.
	EditParams *WorkspaceEditParams
}

// IsNotification reports whether the message expects no response.
func (m *Message) IsNotification() bool { return !m.HasID }

// WorkspaceEditParams is the internal sorbet/workspaceEdit payload: a batch
// of file snapshots plus how many original editor edits were folded in.
type WorkspaceEditParams struct {
	Epoch      uint32
	MergeCount int
	Updates    []*core.File
}

// --- Wire structures ---

type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type InitializeParams struct {
	RootURI  string          `json:"rootUri,omitempty"`
	RootPath string          `json:"rootPath,omitempty"`
	Caps     json.RawMessage `json:"capabilities,omitempty"`
}

type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters"`
}

type SignatureHelpOptions struct {
	TriggerCharacters []string `json:"triggerCharacters"`
}

type CodeActionOptions struct {
	CodeActionKinds []string `json:"codeActionKinds"`
}

type ServerCapabilities struct {
	TextDocumentSync          int                   `json:"textDocumentSync"`
	DefinitionProvider        bool                  `json:"definitionProvider"`
	TypeDefinitionProvider    bool                  `json:"typeDefinitionProvider"`
	HoverProvider             bool                  `json:"hoverProvider"`
	ReferencesProvider        bool                  `json:"referencesProvider"`
	WorkspaceSymbolProvider   bool                  `json:"workspaceSymbolProvider"`
	DocumentSymbolProvider    bool                  `json:"documentSymbolProvider,omitempty"`
	DocumentHighlightProvider bool                  `json:"documentHighlightProvider,omitempty"`
	CompletionProvider        *CompletionOptions    `json:"completionProvider,omitempty"`
	SignatureHelpProvider     *SignatureHelpOptions `json:"signatureHelpProvider,omitempty"`
	CodeActionProvider        *CodeActionOptions    `json:"codeActionProvider,omitempty"`
}

// TextDocumentSyncFull asks the client to send whole-document contents on
// every change.
const TextDocumentSyncFull = 1

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type WatchmanFileChangeParams struct {
	Files []string `json:"files"`
}

type CancelParams struct {
	ID json.RawMessage `json:"id"`
}

type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

type ReferenceParams struct {
	TextDocumentPositionParams
	Context ReferenceContext `json:"context"`
}

type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type WorkspaceSymbolParams struct {
	Query string `json:"query"`
}

type CodeActionContext struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Context      CodeActionContext      `json:"context"`
}

type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"`
	Source   string `json:"source"`
	Message  string `json:"message"`
}

const (
	DiagnosticError   = 1
	DiagnosticWarning = 2
)

type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type Hover struct {
	Contents MarkupContent `json:"contents"`
}

type CompletionItem struct {
	Label  string `json:"label"`
	Kind   int    `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

type SymbolInformation struct {
	Name          string   `json:"name"`
	Kind          int      `json:"kind"`
	Location      Location `json:"location"`
	ContainerName string   `json:"containerName,omitempty"`
}

type DocumentHighlight struct {
	Range Range `json:"range"`
	Kind  int   `json:"kind"`
}

type ParameterInformation struct {
	Label string `json:"label"`
}

type SignatureInformation struct {
	Label         string                 `json:"label"`
	Documentation string                 `json:"documentation,omitempty"`
	Parameters    []ParameterInformation `json:"parameters"`
}

type SignatureHelp struct {
	Signatures      []SignatureInformation `json:"signatures"`
	ActiveSignature int                    `json:"activeSignature"`
	ActiveParameter int                    `json:"activeParameter"`
}

type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

type WorkspaceEdit struct {
	Changes map[string][]TextEdit `json:"changes"`
}

type CodeAction struct {
	Title string         `json:"title"`
	Kind  string         `json:"kind"`
	Edit  *WorkspaceEdit `json:"edit,omitempty"`
}

type SorbetErrorParams struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fromCoreRange converts an internal range to the wire shape.
func fromCoreRange(r core.Range) Range {
	return Range{
		Start: Position{Line: r.Start.Line, Character: r.Start.Character},
		End:   Position{Line: r.End.Line, Character: r.End.Character},
	}
}
