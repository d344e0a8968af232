package lsp

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/donaldong/sorbet/core"
	"github.com/donaldong/sorbet/store"
)

// QueueState is the preprocessor's totally-ordered message queue plus the
// debug pause flag. Guarded by the preprocessor's mutex.
type QueueState struct {
	pendingRequests []*Message
	paused          bool
}

// Preprocessor canonicalizes the raw protocol stream into the queue the LSP
// loop drains: it enforces the initialize handshake, rewrites document
// notifications into workspace edits, coalesces successive edits into one
// batch, and marks queued requests cancelled.
type Preprocessor struct {
	config *Config
	store  *store.Store

	mu    sync.Mutex
	cond  *sync.Cond
	state QueueState

	initialized bool
	terminated  bool

	// nextEpoch tags every enqueued message; workspace edits use it as
	// their edit epoch.
	nextEpoch uint32
}

// NewPreprocessor builds a preprocessor over the open-document store.
func NewPreprocessor(config *Config, st *store.Store) *Preprocessor {
	p := &Preprocessor{config: config, store: st}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// PreprocessAndEnqueue canonicalizes one raw message and appends (or merges)
// it into the queue. Safe to call from the transport goroutine.
func (p *Preprocessor) PreprocessAndEnqueue(msg *Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch msg.Method {
	case MethodPause:
		p.state.paused = true
		return
	case MethodResume:
		p.state.paused = false
		p.cond.Broadcast()
		return
	case MethodCancelRequest:
		p.cancelQueued(msg)
		return
	}

	if !p.initialized {
		if msg.Method == MethodInitialize && msg.HasID {
			p.initialized = true
			p.enqueueLocked(msg)
			return
		}
		if msg.Method == MethodExit {
			p.enqueueLocked(msg)
			return
		}
		if msg.HasID {
			msg.RejectCode = CodeServerNotInitialized
			msg.RejectMsg = "server not initialized"
			p.enqueueLocked(msg)
		} else {
			p.config.debugf("dropping %s notification sent before initialize", msg.Method)
		}
		return
	}

	if msg.Method == MethodInitialize {
		msg.RejectCode = CodeInvalidRequest
		msg.RejectMsg = "server is already initialized"
		p.enqueueLocked(msg)
		return
	}

	switch msg.Method {
	case MethodDidOpen, MethodDidChange, MethodDidClose, MethodSorbetWatchmanFileChange:
		if edit := p.canonicalizeEdit(msg); edit != nil {
			p.mergeOrEnqueueEdit(edit)
		}
		return
	case MethodDidSave:
		// Full sync already delivered the content via didChange.
		p.config.debugf("ignoring %s", msg.Method)
		return
	}

	p.enqueueLocked(msg)
}

// cancelQueued marks the queued request with a matching id as cancelled. The
// message stays in the queue: a response must still be sent.
func (p *Preprocessor) cancelQueued(msg *Message) {
	var params CancelParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		p.config.debugf("malformed $/cancelRequest: %v", err)
		return
	}
	for _, pending := range p.state.pendingRequests {
		if pending.HasID && idMatches(pending.ID, params.ID) {
			pending.Canceled = true
			return
		}
	}
	p.config.debugf("cancel for request not in queue")
}

func idMatches(id jsonrpc2.ID, raw json.RawMessage) bool {
	enc, err := json.Marshal(id)
	if err != nil {
		return false
	}
	return bytes.Equal(bytes.TrimSpace(enc), bytes.TrimSpace(raw))
}

// canonicalizeEdit rewrites a document notification into a workspace-edit
// message carrying file snapshots.
func (p *Preprocessor) canonicalizeEdit(msg *Message) *Message {
	var updates []*core.File

	switch msg.Method {
	case MethodDidOpen:
		var params DidOpenTextDocumentParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			p.config.logf("malformed didOpen: %v", err)
			return nil
		}
		path := uriToPath(params.TextDocument.URI)
		p.store.Open(params.TextDocument.URI, path, params.TextDocument.Text,
			params.TextDocument.Version, params.TextDocument.LanguageID)
		updates = append(updates, core.NewFile(path, params.TextDocument.Text))

	case MethodDidChange:
		var params DidChangeTextDocumentParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			p.config.logf("malformed didChange: %v", err)
			return nil
		}
		if len(params.ContentChanges) == 0 {
			return nil
		}
		// Full document sync: the final change wins.
		text := params.ContentChanges[len(params.ContentChanges)-1].Text
		path := uriToPath(params.TextDocument.URI)
		p.store.Update(params.TextDocument.URI, text, params.TextDocument.Version)
		updates = append(updates, core.NewFile(path, text))

	case MethodDidClose:
		var params DidCloseTextDocumentParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			p.config.logf("malformed didClose: %v", err)
			return nil
		}
		path := uriToPath(params.TextDocument.URI)
		p.store.Close(params.TextDocument.URI)
		updates = append(updates, core.NewFile(path, readDisk(path)))

	case MethodSorbetWatchmanFileChange:
		var params WatchmanFileChangeParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			p.config.logf("malformed watchman notification: %v", err)
			return nil
		}
		for _, path := range params.Files {
			if p.store.IsOpen(pathToURI(path)) {
				// The editor's buffer is authoritative while open.
				continue
			}
			updates = append(updates, core.NewFile(path, readDisk(path)))
		}
		if len(updates) == 0 {
			return nil
		}
	}

	p.nextEpoch++
	return &Message{
		Method: MethodSorbetWorkspaceEdit,
		Epoch:  p.nextEpoch,
		EditParams: &WorkspaceEditParams{
			Epoch:   p.nextEpoch,
			Updates: updates,
		},
	}
}

// readDisk returns the file's on-disk content; missing or unreadable files
// read as empty.
func readDisk(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(content)
}

// mergeOrEnqueueEdit merges the new edit into a pending workspace edit if
// one is queued, keeping its queue position; otherwise the edit is appended.
func (p *Preprocessor) mergeOrEnqueueEdit(edit *Message) {
	for _, pending := range p.state.pendingRequests {
		if pending.Method != MethodSorbetWorkspaceEdit {
			continue
		}
		mergeEditParams(pending.EditParams, edit.EditParams)
		pending.Epoch = edit.Epoch
		p.cond.Broadcast()
		return
	}
	p.enqueueLocked(edit)
}

// mergeEditParams folds newer into older in place: union of touched files
// with the newer batch winning on path collision, newest epoch, and a merge
// count recording how many originals were coalesced.
func mergeEditParams(older, newer *WorkspaceEditParams) {
	byPath := make(map[string]int, len(older.Updates))
	for i, f := range older.Updates {
		byPath[f.Path()] = i
	}
	for _, f := range newer.Updates {
		if i, ok := byPath[f.Path()]; ok {
			older.Updates[i] = f
		} else {
			byPath[f.Path()] = len(older.Updates)
			older.Updates = append(older.Updates, f)
		}
	}
	older.Epoch = newer.Epoch
	older.MergeCount += newer.MergeCount + 1
}

func (p *Preprocessor) enqueueLocked(msg *Message) {
	if msg.Epoch == 0 {
		p.nextEpoch++
		msg.Epoch = p.nextEpoch
	}
	p.state.pendingRequests = append(p.state.pendingRequests, msg)
	p.cond.Broadcast()
}

// Dequeue blocks until a message is available (and the queue is unpaused),
// returning false after Shutdown drains the queue.
func (p *Preprocessor) Dequeue() (*Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for (len(p.state.pendingRequests) == 0 || p.state.paused) && !p.terminated {
		p.cond.Wait()
	}
	if len(p.state.pendingRequests) == 0 {
		return nil, false
	}
	msg := p.state.pendingRequests[0]
	p.state.pendingRequests = p.state.pendingRequests[1:]
	return msg, true
}

// DrainPending empties the queue synchronously for single-threaded
// processing. Single-threaded mode must never observe a paused queue.
func (p *Preprocessor) DrainPending() []*Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.paused {
		panic("__PAUSE__ not supported in single-threaded mode")
	}
	msgs := p.state.pendingRequests
	p.state.pendingRequests = nil
	return msgs
}

// Shutdown wakes any blocked Dequeue once the queue empties.
func (p *Preprocessor) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = true
	p.cond.Broadcast()
}
