package lsp

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/donaldong/sorbet/core"
	"github.com/donaldong/sorbet/pipeline"
	"github.com/donaldong/sorbet/store"
)

// Loop is the main LSP loop: it drains the preprocessor queue and routes
// each canonicalized message to an edit commit or to the typechecker
// coordinator. It is the sole owner of initialGS, globalStateHashes and the
// slow-path bookkeeping; all of those are touched only from the thread
// running Run (or ProcessRequests in single-threaded mode).
type Loop struct {
	config       *Config
	output       Output
	store        *store.Store
	preprocessor *Preprocessor
	coordinator  *TypecheckerCoordinator

	// initialGS is kept up to date with every edit but never typechecked
	// against; slow paths clone it.
	initialGS *core.GlobalState
	// globalStateHashes holds the fingerprint of every file registered in
	// initialGS, indexed by FileRef id.
	globalStateHashes []core.FileHash

	// Slow-path record: the last committed slow-path update plus the hashes
	// it evicted, both needed to build a coalesced, still-cancelable update
	// when further edits arrive while the slow path runs.
	lastSlowPathUpdate             *FileUpdates
	lastSlowPathEvictedStateHashes map[int]core.FileHash

	countersMu      sync.Mutex
	counters        map[string]int
	lastMetricFlush time.Time

	exited bool
}

// NewLoop wires up a server instance around the given output.
func NewLoop(config *Config, output Output) *Loop {
	st := store.New()
	l := &Loop{
		config:          config,
		output:          output,
		store:           st,
		preprocessor:    NewPreprocessor(config, st),
		initialGS:       core.NewGlobalState(),
		counters:        make(map[string]int),
		lastMetricFlush: time.Now(),
	}
	l.coordinator = NewTypecheckerCoordinator(NewTypechecker(config, output))
	return l
}

// Preprocessor exposes the queue for the transport layer.
func (l *Loop) Preprocessor() *Preprocessor { return l.preprocessor }

// Enqueue hands a raw message to the preprocessor. Safe from any goroutine.
func (l *Loop) Enqueue(msg *Message) {
	l.preprocessor.PreprocessAndEnqueue(msg)
}

// Run drains the queue until an exit message arrives or the preprocessor
// shuts down, then quiesces the typechecker thread.
func (l *Loop) Run() {
	for !l.exited {
		msg, ok := l.preprocessor.Dequeue()
		if !ok {
			break
		}
		l.processRequestInternal(msg)
		l.maybeFlushCounters()
	}
	l.coordinator.Shutdown()
}

// ProcessRequests enqueues messages and drains the queue synchronously.
// Single-threaded mode; used by tests and by single-shot tooling.
func (l *Loop) ProcessRequests(msgs []*Message) {
	for _, msg := range msgs {
		l.preprocessor.PreprocessAndEnqueue(msg)
	}
	for _, msg := range l.preprocessor.DrainPending() {
		l.processRequestInternal(msg)
	}
}

// Shutdown quiesces the coordinator without waiting for an exit message.
func (l *Loop) Shutdown() {
	l.preprocessor.Shutdown()
	l.coordinator.Shutdown()
}

func (l *Loop) pipelineOpts() pipeline.Options {
	return pipeline.Options{
		Parser:  l.config.parser(),
		Workers: l.config.workers(),
		Logger:  l.config.Logger,
	}
}

func (l *Loop) processRequestInternal(msg *Message) {
	if msg.RejectCode != 0 {
		if msg.HasID {
			l.output.WriteError(msg.ID, msg.RejectCode, msg.RejectMsg)
		} else {
			l.config.debugf("dropping rejected notification %s: %s", msg.Method, msg.RejectMsg)
		}
		return
	}

	if msg.IsNotification() {
		switch msg.Method {
		case MethodSorbetWorkspaceEdit:
			l.handleWorkspaceEdit(msg)
		case MethodInitialized:
			l.handleInitialized()
		case MethodExit:
			l.counterInc("lsp.messages.processed", "exit")
			l.exited = true
		case MethodSorbetFence:
			// Barrier: echo the fence back once every prior message has
			// finished processing, including in-flight typechecks.
			params := msg.Params
			l.coordinator.SyncRun(func(tc *Typechecker) {
				l.output.WriteNotification(MethodSorbetFence, json.RawMessage(params))
			})
		case MethodSorbetError:
			var params SorbetErrorParams
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				l.config.logf("malformed sorbet/error: %v", err)
				return
			}
			if params.Code == int(CodeMethodNotFound) {
				// Not an error; a notification type we don't care about.
				l.config.debugf("%s", params.Message)
			} else {
				l.config.logf("sorbet/error: %s", params.Message)
			}
		default:
			l.config.debugf("ignoring notification %s", msg.Method)
		}
		return
	}

	if msg.Canceled {
		l.counterInc("lsp.messages", "canceled")
		l.output.WriteError(msg.ID, CodeRequestCancelled, "Request was canceled")
		return
	}

	switch msg.Method {
	case MethodInitialize:
		l.handleInitialize(msg)
	case MethodShutdown:
		l.counterInc("lsp.messages.processed", "shutdown")
		l.output.WriteResponse(msg.ID, nil)
	case MethodDefinition:
		l.positionQuery(msg, handleDefinition)
	case MethodTypeDefinition:
		l.positionQuery(msg, handleTypeDefinition)
	case MethodHover:
		l.positionQuery(msg, handleHover)
	case MethodCompletion:
		l.positionQuery(msg, handleCompletion)
	case MethodSignatureHelp:
		l.positionQuery(msg, handleSignatureHelp)
	case MethodReferences:
		var params ReferenceParams
		if !l.decodeParams(msg, &params) {
			return
		}
		l.coordinator.SyncRun(func(tc *Typechecker) {
			l.output.WriteResponse(msg.ID, handleReferences(tc, params))
		})
	case MethodDocumentSymbol:
		var params DocumentSymbolParams
		if !l.decodeParams(msg, &params) {
			return
		}
		l.coordinator.SyncRun(func(tc *Typechecker) {
			l.output.WriteResponse(msg.ID, handleDocumentSymbol(tc, params))
		})
	case MethodWorkspaceSymbol:
		var params WorkspaceSymbolParams
		if !l.decodeParams(msg, &params) {
			return
		}
		l.coordinator.SyncRun(func(tc *Typechecker) {
			l.output.WriteResponse(msg.ID, handleWorkspaceSymbol(tc, params))
		})
	case MethodDocumentHighlight:
		l.positionQuery(msg, handleDocumentHighlight)
	case MethodCodeAction:
		var params CodeActionParams
		if !l.decodeParams(msg, &params) {
			return
		}
		l.coordinator.SyncRun(func(tc *Typechecker) {
			l.output.WriteResponse(msg.ID, handleCodeAction(tc, params))
		})
	case MethodSorbetError:
		var params SorbetErrorParams
		if !l.decodeParams(msg, &params) {
			return
		}
		l.output.WriteError(msg.ID, ErrorCode(params.Code), params.Message)
	case MethodSorbetReadFile:
		var params TextDocumentIdentifier
		if !l.decodeParams(msg, &params) {
			return
		}
		l.coordinator.SyncRun(func(tc *Typechecker) {
			item, ok := handleReadFile(tc, params)
			if ok {
				l.output.WriteResponse(msg.ID, item)
			} else {
				l.output.WriteError(msg.ID, CodeInvalidParams, "did not find file at uri "+params.URI)
			}
		})
	default:
		l.output.WriteError(msg.ID, CodeMethodNotFound, "method not found: "+msg.Method)
	}
	l.counterInc("lsp.messages.processed", msg.Method)
}

// positionQuery runs a textDocument/position-shaped handler under SyncRun.
func (l *Loop) positionQuery(msg *Message, handler func(tc *Typechecker, params TextDocumentPositionParams) interface{}) {
	var params TextDocumentPositionParams
	if !l.decodeParams(msg, &params) {
		return
	}
	l.coordinator.SyncRun(func(tc *Typechecker) {
		l.output.WriteResponse(msg.ID, handler(tc, params))
	})
}

func (l *Loop) decodeParams(msg *Message, v interface{}) bool {
	if err := json.Unmarshal(msg.Params, v); err != nil {
		l.output.WriteError(msg.ID, CodeInvalidParams, "invalid params: "+err.Error())
		return false
	}
	return true
}

func (l *Loop) handleInitialize(msg *Message) {
	l.counterInc("lsp.messages.processed", "initialize")
	var params InitializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			l.output.WriteError(msg.ID, CodeInvalidParams, "invalid initialize params: "+err.Error())
			return
		}
	}
	if l.config.RootPath == "" {
		if params.RootURI != "" {
			l.config.RootPath = uriToPath(params.RootURI)
		} else if params.RootPath != "" {
			l.config.RootPath = params.RootPath
		}
	}

	caps := ServerCapabilities{
		TextDocumentSync:          TextDocumentSyncFull,
		DefinitionProvider:        true,
		TypeDefinitionProvider:    true,
		HoverProvider:             true,
		ReferencesProvider:        true,
		WorkspaceSymbolProvider:   true,
		DocumentSymbolProvider:    l.config.DocumentSymbolEnabled,
		DocumentHighlightProvider: l.config.DocumentHighlightEnabled,
		CompletionProvider:        &CompletionOptions{TriggerCharacters: []string{"."}},
	}
	if l.config.SignatureHelpEnabled {
		caps.SignatureHelpProvider = &SignatureHelpOptions{TriggerCharacters: []string{"(", ","}}
	}
	if l.config.QuickFixEnabled {
		caps.CodeActionProvider = &CodeActionOptions{CodeActionKinds: []string{"quickfix"}}
	}

	l.output.WriteResponse(msg.ID, InitializeResult{
		Capabilities: caps,
		ServerInfo:   ServerInfo{Name: "sorbet-lsp", Version: "0.1.0"},
	})
}

// handleInitialized indexes the workspace from the file system, computes the
// initial hashes and hands the typechecker its starting state. Blocking:
// initialization is not cancelable.
func (l *Loop) handleInitialized() {
	l.counterInc("lsp.messages.processed", "initialized")
	opts := l.pipelineOpts()

	var paths []string
	if l.config.RootPath != "" {
		paths = pipeline.WorkspaceFiles(l.config.RootPath)
	}
	l.config.logf("indexing workspace: %d files", len(paths))

	frefs := pipeline.ReserveFiles(l.initialGS, paths, opts)
	indexed := pipeline.Index(l.initialGS, frefs, opts)
	l.globalStateHashes = pipeline.ComputeStateHashes(opts, l.initialGS.Files())

	gs := l.initialGS.DeepCopy()
	hashes := append([]core.FileHash(nil), l.globalStateHashes...)
	l.coordinator.SyncRun(func(tc *Typechecker) {
		tc.Initialize(gs, indexed, hashes)
	})
}

// handleWorkspaceEdit commits the edit and dispatches the typecheck: fast
// paths run blocking, slow paths run async so a later edit can cancel them.
func (l *Loop) handleWorkspaceEdit(msg *Message) {
	if msg.EditParams == nil {
		// sorbet/workspaceEdit is an internal message type; only the
		// preprocessor constructs its payload.
		l.config.debugf("ignoring workspace edit with no canonicalized payload")
		return
	}
	updates := l.commitEdit(msg.EditParams)
	if updates.CanTakeFastPath {
		l.coordinator.SyncRun(func(tc *Typechecker) {
			merged := updates.EditCount - 1
			if !tc.Typecheck(updates) {
				l.counterInc("lsp.messages.processed", "sorbet/workspaceEdit")
				l.counterAdd("lsp.messages.processed", "sorbet/mergedEdits", merged)
			}
		})
		return
	}
	// Slow path: tell the global state a cancelable commit is starting
	// before handing off the job.
	l.initialGS.StartCommitEpoch(updates.Epoch)
	l.coordinator.AsyncRun(func(tc *Typechecker) {
		merged := updates.EditCount - 1
		if !tc.Typecheck(updates) {
			l.counterInc("lsp.messages.processed", "sorbet/workspaceEdit")
			l.counterAdd("lsp.messages.processed", "sorbet/mergedEdits", merged)
		}
	})
}

// TypecheckCount reports the number of committed typechecks; it waits for
// in-flight jobs. For tests.
func (l *Loop) TypecheckCount() int {
	var count int
	l.coordinator.SyncRun(func(tc *Typechecker) {
		count = tc.TypecheckCount()
	})
	return count
}

func (l *Loop) counterInc(category, key string) {
	l.counterAdd(category, key, 1)
}

func (l *Loop) counterAdd(category, key string, n int) {
	l.countersMu.Lock()
	l.counters[category+"."+key] += n
	l.countersMu.Unlock()
}

// maybeFlushCounters writes accumulated counters through the logger once per
// five minutes of wall time.
func (l *Loop) maybeFlushCounters() {
	if time.Since(l.lastMetricFlush) < 5*time.Minute {
		return
	}
	l.lastMetricFlush = time.Now()
	l.countersMu.Lock()
	keys := make([]string, 0, len(l.counters))
	for k := range l.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		l.config.logf("counter %s = %d", k, l.counters[k])
	}
	l.countersMu.Unlock()
}
