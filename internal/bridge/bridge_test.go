package bridge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogconvo/captioner/internal/dispatcher"
	"github.com/cogconvo/captioner/internal/input"
	"github.com/cogconvo/captioner/internal/scene"
	"github.com/cogconvo/captioner/pkg/streaming"
)

// Compile-time interface check.
var _ scene.Sink = (*Bridge)(nil)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type received struct {
	mu     sync.Mutex
	events []dispatcher.Event
}

func (r *received) add(e dispatcher.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *received) all() []dispatcher.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatcher.Event(nil), r.events...)
}

func setup(t *testing.T) (*Bridge, *scene.Store, *received, string) {
	t.Helper()
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	rec := &received{}
	for _, cmd := range []string{input.CmdKey, input.CmdClick, input.CmdLeave, input.CmdPosition, input.CmdCamera, input.CmdGone} {
		d.Register(cmd, func(e dispatcher.Event) (any, error) {
			rec.add(e)
			return nil, nil
		})
	}

	store := scene.NewStore()
	store.Set("caption", scene.AttrOpacity, 1.0)
	b := New(d, store)
	store.AddSink(b)

	srv := httptest.NewServer(b.Handler())
	t.Cleanup(func() {
		b.Close()
		srv.Close()
	})
	return b, store, rec, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *ws.Conn {
	t.Helper()
	c, _, err := ws.DefaultDialer.Dial(url+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readEnvelope(t *testing.T, c *ws.Conn) streaming.Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := c.ReadMessage()
	require.NoError(t, err)
	var env streaming.Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestBridge_SnapshotThenPatches(t *testing.T) {
	b, store, _, url := setup(t)
	c := dial(t, url)

	env := readEnvelope(t, c)
	require.Equal(t, streaming.TypeSnapshot, env.Type)
	var snap []scene.Patch
	require.NoError(t, json.Unmarshal(env.Payload, &snap))
	require.Len(t, snap, 1)
	assert.Equal(t, "caption", snap[0].Entity)
	assert.Equal(t, 1.0, snap[0].Value)

	require.Eventually(t, func() bool { return b.Clients() == 1 }, time.Second, 5*time.Millisecond)
	store.Set("ringA", scene.AttrColor, "#FF0000")

	env = readEnvelope(t, c)
	require.Equal(t, streaming.TypePatch, env.Type)
	var p scene.Patch
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, scene.Patch{Entity: "ringA", Attribute: scene.AttrColor, Value: "#FF0000"}, p)
}

func TestBridge_InputDispatched(t *testing.T) {
	_, _, rec, url := setup(t)
	c := dial(t, url)
	readEnvelope(t, c)

	send := func(typ string, payload any) {
		data, err := streaming.Marshal(typ, payload)
		require.NoError(t, err)
		require.NoError(t, c.WriteMessage(ws.TextMessage, data))
	}
	send(streaming.TypeKey, streaming.KeyPayload{Key: "2"})
	send(streaming.TypeClick, streaming.ClickPayload{Speaker: "juror-c"})
	send(streaming.TypeLeave, nil)
	send(streaming.TypePosition, streaming.PositionPayload{Speaker: "juror-a", Local: [3]float64{0, 1, 0}, Parent: [3]float64{2, 0, 2.5}})
	send(streaming.TypeCamera, streaming.CameraPayload{Position: [3]float64{0, 1.6, 0}})
	send(streaming.TypeGone, streaming.GonePayload{Speaker: "juror-b"})
	require.NoError(t, c.WriteMessage(ws.TextMessage, []byte("not json")))
	send("dance", nil)

	require.Eventually(t, func() bool { return len(rec.all()) == 6 }, 2*time.Second, 5*time.Millisecond)
	got := rec.all()
	assert.Equal(t, input.CmdKey, got[0].Command)
	assert.Equal(t, []string{"2"}, got[0].Args)
	assert.Equal(t, []string{"juror-c"}, got[1].Args)
	assert.Equal(t, input.CmdLeave, got[2].Command)
	assert.Equal(t, []string{"juror-a", "0", "1", "0", "2", "0", "2.5"}, got[3].Args)
	assert.Equal(t, []string{"0", "1.6", "0"}, got[4].Args)
	assert.Equal(t, input.CmdGone, got[5].Command)
	assert.Equal(t, []string{"juror-b"}, got[5].Args)
}

func TestBridge_Healthcheck(t *testing.T) {
	_, _, _, url := setup(t)
	resp, err := http.Get("http" + strings.TrimPrefix(url, "ws") + "/healthcheck")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBridge_DisconnectRemovesClient(t *testing.T) {
	b, _, _, url := setup(t)
	c := dial(t, url)
	readEnvelope(t, c)
	require.Eventually(t, func() bool { return b.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, "")))
	_ = c.Close()
	assert.Eventually(t, func() bool { return b.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestToEvent_Errors(t *testing.T) {
	_, err := toEvent(streaming.Envelope{Type: streaming.TypeKey, Payload: json.RawMessage(`{"key":`)})
	assert.Error(t, err)
	_, err = toEvent(streaming.Envelope{Type: streaming.TypeGone, Payload: json.RawMessage(`[]`)})
	assert.Error(t, err)
	_, err = toEvent(streaming.Envelope{Type: "unknown"})
	assert.Error(t, err)
}
