package lsp

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testConfig() *Config {
	cfg := NewConfig(testLogger())
	cfg.Workers = 2
	return cfg
}

// newTestLoop writes files into a temp workspace, spins up a loop and runs
// the initialize handshake.
func newTestLoop(t *testing.T, files map[string]string) (*Loop, *BufferOutput, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	cfg := testConfig()
	cfg.RootPath = dir
	out := NewBufferOutput()
	l := NewLoop(cfg, out)
	t.Cleanup(l.Shutdown)

	l.ProcessRequests([]*Message{
		request(1, MethodInitialize, InitializeParams{RootURI: "file://" + dir}),
		notification(MethodInitialized, nil),
	})
	return l, out, dir
}

func request(id int64, method string, params interface{}) *Message {
	return &Message{
		ID:     jsonrpc2.ID{Num: uint64(id)},
		HasID:  true,
		Method: method,
		Params: marshal(params),
	}
}

func notification(method string, params interface{}) *Message {
	return &Message{
		Method: method,
		Params: marshal(params),
	}
}

func marshal(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func fileURI(dir, name string) string {
	return "file://" + filepath.Join(dir, name)
}

func didChange(dir, name, text string) *Message {
	return notification(MethodDidChange, DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: fileURI(dir, name), Version: 2},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: text}},
	})
}

func didOpen(dir, name, text string) *Message {
	return notification(MethodDidOpen, DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        fileURI(dir, name),
			LanguageID: "ruby",
			Version:    1,
			Text:       text,
		},
	})
}

// findResponse returns the recorded response for the given request id.
func findResponse(out *BufferOutput, id int64) (RecordedResponse, bool) {
	for _, e := range out.Entries() {
		if e.Method == "" && e.ID.Num == uint64(id) {
			return e, true
		}
	}
	return RecordedResponse{}, false
}

// findNotifications returns every recorded notification with the method.
func findNotifications(out *BufferOutput, method string) []RecordedResponse {
	var found []RecordedResponse
	for _, e := range out.Entries() {
		if e.Method == method {
			found = append(found, e)
		}
	}
	return found
}
