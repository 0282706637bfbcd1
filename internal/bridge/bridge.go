// Package bridge connects a browser rendering host to a viewing session over
// WebSocket. Scene patches flow out; key, click, leave, position and camera
// input flows in and is dispatched as commands.
package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	ws "github.com/gorilla/websocket"

	"github.com/cogconvo/captioner/internal/dispatcher"
	"github.com/cogconvo/captioner/internal/input"
	"github.com/cogconvo/captioner/internal/scene"
	"github.com/cogconvo/captioner/pkg/streaming"
)

const defaultQueueSize = 256

// Snapshotter supplies the full scene state for newly connected hosts.
type Snapshotter interface {
	Snapshot() []scene.Patch
}

// Bridge is the WebSocket endpoint of a viewing session. It implements
// scene.Sink so every store write is broadcast to connected hosts.
type Bridge struct {
	d         *dispatcher.Dispatcher
	snap      Snapshotter
	queueSize int
	logger    *slog.Logger
	upgrader  ws.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithQueueSize sets the per-client send queue size.
func WithQueueSize(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// New creates a bridge dispatching input to d and greeting hosts with snap.
func New(d *dispatcher.Dispatcher, snap Snapshotter, opts ...Option) *Bridge {
	b := &Bridge{
		d:         d,
		snap:      snap,
		queueSize: defaultQueueSize,
		logger:    slog.Default(),
		upgrader:  ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:   make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler returns the HTTP routes: /ws and /healthcheck.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.serveWS)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Clients returns the number of connected hosts.
func (b *Bridge) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Push broadcasts a patch to every connected host.
func (b *Bridge) Push(p scene.Patch) {
	data, err := streaming.Marshal(streaming.TypePatch, p)
	if err != nil {
		b.logger.Error("Failed to encode patch", "entity", p.Entity, "error", err)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		c.send(data)
	}
}

// Close disconnects every host.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
		<-c.finished
	}
}

func (b *Bridge) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	c := newClient(conn, b.queueSize, b.logger.With("remote", r.RemoteAddr))

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	// queue the snapshot before the client can see any live patch
	if b.snap != nil {
		if data, err := streaming.Marshal(streaming.TypeSnapshot, b.snap.Snapshot()); err == nil {
			c.send(data)
		}
	}
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	c.logger.Info("Viewer host connected")
	go c.writeLoop()
	c.readLoop(b.handle)

	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	c.close()
	<-c.finished
	c.logger.Info("Viewer host disconnected")
}

// handle turns an input envelope into a dispatcher command.
func (b *Bridge) handle(env streaming.Envelope) error {
	e, err := toEvent(env)
	if err != nil {
		return err
	}
	_, err = b.d.Dispatch(e)
	return err
}

func toEvent(env streaming.Envelope) (dispatcher.Event, error) {
	switch env.Type {
	case streaming.TypeKey:
		var p streaming.KeyPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return dispatcher.Event{}, fmt.Errorf("decode key: %w", err)
		}
		return dispatcher.Event{Command: input.CmdKey, Args: []string{p.Key}}, nil

	case streaming.TypeClick:
		var p streaming.ClickPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return dispatcher.Event{}, fmt.Errorf("decode click: %w", err)
		}
		return dispatcher.Event{Command: input.CmdClick, Args: []string{string(p.Speaker)}}, nil

	case streaming.TypeLeave:
		return dispatcher.Event{Command: input.CmdLeave}, nil

	case streaming.TypePosition:
		var p streaming.PositionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return dispatcher.Event{}, fmt.Errorf("decode position: %w", err)
		}
		args := append([]string{string(p.Speaker)}, formatFloats(p.Local[:])...)
		args = append(args, formatFloats(p.Parent[:])...)
		return dispatcher.Event{Command: input.CmdPosition, Args: args}, nil

	case streaming.TypeGone:
		var p streaming.GonePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return dispatcher.Event{}, fmt.Errorf("decode gone: %w", err)
		}
		return dispatcher.Event{Command: input.CmdGone, Args: []string{string(p.Speaker)}}, nil

	case streaming.TypeCamera:
		var p streaming.CameraPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return dispatcher.Event{}, fmt.Errorf("decode camera: %w", err)
		}
		return dispatcher.Event{Command: input.CmdCamera, Args: formatFloats(p.Position[:])}, nil
	}
	return dispatcher.Event{}, fmt.Errorf("unknown message type %q", env.Type)
}

func formatFloats(v []float64) []string {
	out := make([]string, len(v))
	for i, f := range v {
		out[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return out
}
