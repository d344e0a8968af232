package lsp

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sourcegraph/jsonrpc2"
	wsstream "github.com/sourcegraph/jsonrpc2/websocket"
)

// stdrwc adapts stdin/stdout into the ReadWriteCloser jsonrpc2 wants.
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdrwc) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

// queueHandler feeds every incoming jsonrpc2 message straight into the
// preprocessor; replies are written by the loop through its Output.
type queueHandler struct {
	ready chan struct{}

	mu   sync.Mutex
	loop *Loop
}

func newQueueHandler() *queueHandler {
	return &queueHandler{ready: make(chan struct{})}
}

func (h *queueHandler) bind(loop *Loop) {
	h.mu.Lock()
	h.loop = loop
	h.mu.Unlock()
	close(h.ready)
}

func (h *queueHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	<-h.ready
	msg := &Message{
		ID:     req.ID,
		HasID:  !req.Notif,
		Method: req.Method,
	}
	if req.Params != nil {
		msg.Params = *req.Params
	}
	h.mu.Lock()
	loop := h.loop
	h.mu.Unlock()
	loop.Enqueue(msg)
}

// RunStdio serves the language server over stdin/stdout with Content-Length
// framing, blocking until the client disconnects or sends exit.
func RunStdio(ctx context.Context, config *Config) error {
	handler := newQueueHandler()
	stream := jsonrpc2.NewBufferedStream(stdrwc{}, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, handler)
	defer conn.Close()

	loop := NewLoop(config, NewConnOutput(conn, config.Logger))
	handler.bind(loop)

	go func() {
		<-conn.DisconnectNotify()
		loop.Preprocessor().Shutdown()
	}()

	config.logf("serving over stdio")
	loop.Run()
	return nil
}

// ListenAndServeWebsocket serves one language-server session per websocket
// connection on addr.
func ListenAndServeWebsocket(ctx context.Context, config *Config, addr string) error {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			config.logf("websocket upgrade failed: %v", err)
			return
		}
		handler := newQueueHandler()
		conn := jsonrpc2.NewConn(ctx, wsstream.NewObjectStream(wsConn), handler)
		defer conn.Close()

		// Each connection gets its own session state.
		sessionConfig := *config
		loop := NewLoop(&sessionConfig, NewConnOutput(conn, config.Logger))
		handler.bind(loop)

		go func() {
			<-conn.DisconnectNotify()
			loop.Preprocessor().Shutdown()
		}()
		loop.Run()
	})

	config.logf("listening on ws://%s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		return errors.Wrap(err, "websocket listener failed")
	}
	return nil
}
