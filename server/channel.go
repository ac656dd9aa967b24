package server

import (
	"bufio"
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/aidenhq/aiden/core"
)

// EventChannel relays a turn's stream events to one connected client in
// emission order. Send must report delivery failure so the producer can stop;
// implementations must not reorder, merge or drop events.
type EventChannel interface {
	Send(ev core.StreamEvent) error
}

// ndjsonChannel writes one JSON object per line to a streaming HTTP response.
// Each event is flushed before the next is accepted, giving the transport
// natural backpressure: a stalled client stalls the producer instead of
// growing a buffer.
type ndjsonChannel struct {
	w *bufio.Writer
}

func newNDJSONChannel(w *bufio.Writer) *ndjsonChannel {
	return &ndjsonChannel{w: w}
}

func (c *ndjsonChannel) Send(ev core.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := c.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return c.w.Flush()
}

// wsChannel delivers events as JSON text messages over a websocket. The
// write mutex lets event delivery share the connection with other writers
// (voice audio frames, pings).
type wsChannel struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

func (c *wsChannel) Send(ev core.StreamEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(ev)
}

// SendBinary writes a binary frame (synthesized audio) on the same
// connection.
func (c *wsChannel) SendBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// SendJSON writes an arbitrary JSON message, for out-of-band frames like
// voice state transitions.
func (c *wsChannel) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}
