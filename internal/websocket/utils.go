package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single outbound frame; a taker whose network
	// cannot drain a tick in this window is disconnected.
	writeWait = 10 * time.Second

	// readWait is the idle limit between inbound frames. Clients are
	// expected to ping well inside it.
	readWait = 5 * time.Minute
)

// WriteTyped sends a strongly-typed event payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// ReadRaw reads one inbound frame under the idle deadline and returns
// its bytes. Callers decode the envelope and the typed request from the
// same bytes.
func ReadRaw(conn *websocket.Conn) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := conn.ReadMessage()
	return data, err
}
