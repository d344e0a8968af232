package lsp

import (
	"context"
	"log"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
)

// Output is where the loop and the typechecker write responses and
// notifications. Implementations must be safe for use from both the main
// thread and the typechecker thread.
type Output interface {
	WriteResponse(id jsonrpc2.ID, result interface{})
	WriteError(id jsonrpc2.ID, code ErrorCode, message string)
	WriteNotification(method string, params interface{})
}

// connOutput writes to a live jsonrpc2 connection.
type connOutput struct {
	conn   *jsonrpc2.Conn
	logger *log.Logger
}

// NewConnOutput wraps a jsonrpc2 connection as an Output.
func NewConnOutput(conn *jsonrpc2.Conn, logger *log.Logger) Output {
	return &connOutput{conn: conn, logger: logger}
}

func (o *connOutput) WriteResponse(id jsonrpc2.ID, result interface{}) {
	if err := o.conn.Reply(context.Background(), id, result); err != nil {
		o.logger.Printf("error writing response: %v", err)
	}
}

func (o *connOutput) WriteError(id jsonrpc2.ID, code ErrorCode, message string) {
	rpcErr := &jsonrpc2.Error{Code: int64(code), Message: message}
	if err := o.conn.ReplyWithError(context.Background(), id, rpcErr); err != nil {
		o.logger.Printf("error writing error response: %v", err)
	}
}

func (o *connOutput) WriteNotification(method string, params interface{}) {
	if err := o.conn.Notify(context.Background(), method, params); err != nil {
		o.logger.Printf("error writing notification: %v", err)
	}
}

// RecordedResponse is one captured write, for tests.
type RecordedResponse struct {
	ID     jsonrpc2.ID
	Result interface{}
	Code   ErrorCode
	Err    string

	Method string
	Params interface{}
}

// BufferOutput records writes in order; used by tests in place of a
// connection.
type BufferOutput struct {
	mu      sync.Mutex
	entries []RecordedResponse
}

func NewBufferOutput() *BufferOutput {
	return &BufferOutput{}
}

func (o *BufferOutput) WriteResponse(id jsonrpc2.ID, result interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, RecordedResponse{ID: id, Result: result})
}

func (o *BufferOutput) WriteError(id jsonrpc2.ID, code ErrorCode, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, RecordedResponse{ID: id, Code: code, Err: message})
}

func (o *BufferOutput) WriteNotification(method string, params interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, RecordedResponse{Method: method, Params: params})
}

// Entries returns a snapshot of everything written so far.
func (o *BufferOutput) Entries() []RecordedResponse {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]RecordedResponse(nil), o.entries...)
}
