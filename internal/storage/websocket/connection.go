package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/cogconvo/captioner/pkg/streaming"
)

const (
	outboxSize   = 10_000
	ackQueueSize = 16
	maxRedials   = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

var errLinkClosed = errors.New("observer link closed")

// link is the dashboard connection. One supervisor goroutine owns the
// socket: it serves it until it fails, then redials with backoff and
// replays the session greeting before records flow again.
type link struct {
	target string
	logger *slog.Logger
	dialer *ws.Dialer

	outbox  chan []byte
	acks    chan streaming.AckMessage
	dropped atomic.Int64

	mu       sync.Mutex
	greeting []byte
	cancel   context.CancelFunc
	done     chan struct{}
}

func newLink(logger *slog.Logger) *link {
	return &link{
		logger: logger,
		dialer: &ws.Dialer{HandshakeTimeout: writeWait},
		outbox: make(chan []byte, outboxSize),
		acks:   make(chan streaming.AckMessage, ackQueueSize),
	}
}

// open dials once and hands the socket to the supervisor. Only the first
// dial is synchronous; later failures are handled by redialing.
func (l *link) open(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	l.target = u.String()

	ctx, cancel := context.WithCancel(context.Background())
	conn, err := l.dial(ctx)
	if err != nil {
		cancel()
		return err
	}

	l.mu.Lock()
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.supervise(ctx, conn)
	return nil
}

func (l *link) dial(ctx context.Context) (*ws.Conn, error) {
	conn, _, err := l.dialer.DialContext(ctx, l.target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (l *link) supervise(ctx context.Context, conn *ws.Conn) {
	defer close(l.done)
	for conn != nil {
		err := l.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("Observer connection lost", "error", err)
		conn = l.redial(ctx)
	}
}

// serve pumps the outbox to conn and routes acks until either side fails or
// ctx is done, in which case a close frame is sent.
func (l *link) serve(ctx context.Context, conn *ws.Conn) error {
	defer conn.Close()

	g, gctx := errgroup.WithContext(ctx)
	// unblock the reader without closing, so the writer can still say goodbye
	stop := context.AfterFunc(gctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				if ctx.Err() != nil {
					_ = conn.WriteControl(ws.CloseMessage,
						ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
						time.Now().Add(writeWait))
				}
				return gctx.Err()
			case data := <-l.outbox:
				if err := write(conn, data); err != nil {
					return err
				}
			}
		}
	})
	g.Go(func() error {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("read: %w", err)
			}
			l.route(msg)
		}
	})
	return g.Wait()
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (l *link) route(msg []byte) {
	var ack streaming.AckMessage
	if err := json.Unmarshal(msg, &ack); err != nil || ack.Type != "ack" {
		l.logger.Debug("Ignoring observer message", "raw", string(msg))
		return
	}
	select {
	case l.acks <- ack:
	default:
		l.logger.Debug("Ack queue full, dropping", "for", ack.For)
	}
}

// redial reconnects with exponential backoff and replays the greeting. It
// returns nil when ctx is done or every attempt failed.
func (l *link) redial(ctx context.Context) *ws.Conn {
	backoff := time.Second
	for attempt := 1; attempt <= maxRedials; attempt++ {
		l.logger.Info("Reconnecting to observer", "attempt", attempt, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)

		conn, err := l.dial(ctx)
		if err != nil {
			l.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			continue
		}
		if greeting := l.greetingMsg(); greeting != nil {
			if err := write(conn, greeting); err != nil {
				l.logger.Warn("Failed to replay session start", "error", err)
				conn.Close()
				continue
			}
		}
		l.logger.Info("Observer reconnected", "attempt", attempt)
		return conn
	}
	l.logger.Error("Observer reconnect failed", "attempts", maxRedials)
	return nil
}

func (l *link) setGreeting(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.greeting = data
}

func (l *link) greetingMsg() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.greeting
}

// closed reports whether close was called or the supervisor gave up.
func (l *link) closed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return l.done
}

// send queues data for the writer, dropping it when the outbox is full.
func (l *link) send(data []byte) {
	select {
	case l.outbox <- data:
	default:
		if l.dropped.Add(1) == 1 {
			l.logger.Warn("Observer outbox full, dropping records")
		}
	}
}

// request sends data and waits for the matching ack.
func (l *link) request(data []byte, ackFor string, timeout time.Duration) error {
	done := l.closed()
	select {
	case <-done:
		return fmt.Errorf("%w while sending %q", errLinkClosed, ackFor)
	default:
	}
	l.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-l.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-done:
			return fmt.Errorf("%w while waiting for ack of %q", errLinkClosed, ackFor)
		}
	}
}

// close stops the supervisor and waits for the socket to be closed.
func (l *link) close() error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
