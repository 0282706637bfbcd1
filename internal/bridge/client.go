package bridge

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/cogconvo/captioner/pkg/streaming"
)

const writeWait = 10 * time.Second

// client is one connected host with a single write goroutine.
type client struct {
	conn     *ws.Conn
	sendCh   chan []byte
	done     chan struct{} // closed on shutdown
	finished chan struct{} // closed when the write loop returns
	once     sync.Once
	logger   *slog.Logger
}

func newClient(conn *ws.Conn, queueSize int, logger *slog.Logger) *client {
	return &client{
		conn:     conn,
		sendCh:   make(chan []byte, queueSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		logger:   logger,
	}
}

// send queues data for the write loop. Non-blocking; drops if the queue is full.
func (c *client) send(data []byte) {
	select {
	case <-c.done:
	case c.sendCh <- data:
	default:
		c.logger.Warn("Viewer send queue full, dropping message")
	}
}

func (c *client) writeLoop() {
	defer close(c.finished)
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			_ = c.conn.Close()
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				_ = c.conn.Close()
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				_ = c.conn.Close()
				return
			}
		}
	}
}

// readLoop decodes envelopes until the connection fails. Bad messages are
// logged and skipped.
func (c *client) readLoop(handle func(streaming.Envelope) error) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					c.logger.Warn("WebSocket read error", "error", err)
				}
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Debug("Malformed viewer message", "raw", string(message))
			continue
		}
		if err := handle(env); err != nil {
			c.logger.Debug("Viewer input rejected", "type", env.Type, "error", err)
		}
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}
