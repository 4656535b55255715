package ndjson

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// WSWriter adapts a coder/websocket connection to io.Writer so a Writer
// can fan lines out to a remote monitoring
// dashboard or a headless client connected over the network instead of
// (or in addition to) stdout. One text message per line, matching the
// protocol's "one JSON object per line" contract — a consumer reading
// WebSocket messages sees exactly the lines it would see on stdout.
type WSWriter struct {
	ctx  context.Context
	conn *websocket.Conn
}

// NewWSWriter wraps an already-accepted or already-dialed connection.
// ctx bounds every Write call; callers typically pass the connection's
// owning request or session context.
func NewWSWriter(ctx context.Context, conn *websocket.Conn) *WSWriter {
	return &WSWriter{ctx: ctx, conn: conn}
}

// Write sends p as one WebSocket text message. NDJSON lines never embed
// raw newlines, so a full line fits in one message with no
// framing ambiguity; Writer.Emit already appends the trailing '\n'
// itself, which Write strips since the message boundary already marks
// the line end.
func (w *WSWriter) Write(p []byte) (int, error) {
	line := p
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if err := w.conn.Write(w.ctx, websocket.MessageText, line); err != nil {
		return 0, err
	}
	return len(p), nil
}

// AcceptWriter upgrades an incoming HTTP request to a WebSocket and
// returns a Writer bound to it, for a remote headless consumer. Callers
// are responsible for closing the returned *websocket.Conn once the
// session ends (websocket.StatusNormalClosure on a clean finish).
func AcceptWriter(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) (*Writer, *websocket.Conn, error) {
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, nil, err
	}
	return NewWriter(NewWSWriter(r.Context(), conn)), conn, nil
}
