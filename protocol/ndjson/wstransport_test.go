package ndjson

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

func TestAcceptWriter_EmitsOverWebSocket(t *testing.T) {
	var srvConn *websocket.Conn
	accepted := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writer, conn, err := AcceptWriter(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		require.NoError(t, err)
		srvConn = conn
		close(accepted)

		require.NoError(t, writer.Emit(Envelope{Event: EventSessionStarted, SessionID: "s1", RequestID: "r1"}, nil))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientConn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	defer clientConn.Close(websocket.StatusNormalClosure, "")

	<-accepted
	defer srvConn.Close(websocket.StatusNormalClosure, "")

	typ, data, err := clientConn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	require.Contains(t, string(data), `"session.started"`)
	require.NotContains(t, string(data), "\n")
}
