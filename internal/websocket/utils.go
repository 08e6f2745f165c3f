package websocket

import (
	"time"

	gorilla "github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 5 * time.Minute
)

// writeWithDeadline sends a payload over the connection. Real gorilla
// connections get a write deadline; fakes skip it.
func writeWithDeadline(conn Conn, v interface{}) error {
	if wc, ok := conn.(*gorilla.Conn); ok {
		_ = wc.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	return conn.WriteJSON(v)
}

// WriteTyped sends a strongly-typed payload over the connection. Pass a
// handle returned by Hub.Connect for registered connections; raw gorilla
// connections are only safe here while a single goroutine owns them.
func WriteTyped(conn Conn, v interface{}) error {
	return writeWithDeadline(conn, v)
}

// WriteError sends a typed error frame.
func WriteError(conn Conn, msg string) error {
	return WriteTyped(conn, ErrorMessage{Type: TypeError, Message: msg})
}

// ReadJSON reads and decodes the next frame with a read deadline. The
// deadline doubles as the idle timeout: clients must heartbeat within it.
func ReadJSON(conn *gorilla.Conn, v interface{}) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	return conn.ReadJSON(v)
}
