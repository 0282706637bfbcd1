package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cogconvo/captioner/internal/caption"
	"github.com/cogconvo/captioner/internal/indicator"
	"github.com/cogconvo/captioner/internal/scene"
	"github.com/cogconvo/captioner/internal/speaker"
	"github.com/cogconvo/captioner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type counter struct {
	inits, ticks atomic.Int32
	updates      []any
	err          error
}

func (c *counter) OnInit(*Context) error {
	c.inits.Add(1)
	return c.err
}
func (c *counter) OnTick(*Context, time.Duration) { c.ticks.Add(1) }
func (c *counter) OnUpdate(_ *Context, data any) { c.updates = append(c.updates, data) }

func newContext() (*Context, *scene.Store) {
	store := scene.NewStore()
	set := caption.NewSet(
		caption.NewSurface("caption", caption.ActiveTarget, false, store.Text("caption")),
		caption.NewSurface("ambientCaption", caption.ActiveTarget, true, store.Text("ambientCaption")),
	)
	return NewContext(speaker.NewRegistry(core.Jurors[:]...), set, nil), store
}

func TestNewContext_UniqueIDs(t *testing.T) {
	a, _ := newContext()
	b, _ := newContext()
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestContext_RotateWraps(t *testing.T) {
	ctx, _ := newContext()
	ctx.Rotate(-5)
	assert.InDelta(t, 355, ctx.Yaw(), 1e-9)
	ctx.Rotate(10)
	assert.InDelta(t, 5, ctx.Yaw(), 1e-9)
}

func TestLoop_AddInitsAndRejects(t *testing.T) {
	ctx, _ := newContext()
	l := NewLoop(ctx)

	ok := &counter{}
	require.NoError(t, l.Add(NewEntity("ok", ok)))
	assert.EqualValues(t, 1, ok.inits.Load())

	bad := &counter{err: errors.New("boom")}
	err := l.Add(NewEntity("bad", bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init bad")
	_, found := l.Entity("bad")
	assert.False(t, found)
}

func TestLoop_StepAndUpdate(t *testing.T) {
	ctx, _ := newContext()
	l := NewLoop(ctx)
	a, b := &counter{}, &counter{}
	require.NoError(t, l.Add(NewEntity("a", a)))
	require.NoError(t, l.Add(NewEntity("b", b)))

	l.Step(time.Millisecond)
	l.Step(time.Millisecond)
	assert.EqualValues(t, 2, a.ticks.Load())
	assert.EqualValues(t, 2, b.ticks.Load())
	assert.EqualValues(t, 2, l.Frames())

	require.NoError(t, l.Update("a", "hello"))
	assert.Equal(t, []any{"hello"}, a.updates)
	assert.Empty(t, b.updates)
	assert.Error(t, l.Update("missing", 1))

	l.Broadcast(42)
	assert.Equal(t, []any{"hello", 42}, a.updates)
	assert.Equal(t, []any{42}, b.updates)
}

func TestLoop_Run(t *testing.T) {
	ctx, _ := newContext()
	l := NewLoop(ctx)
	c := &counter{}
	require.NoError(t, l.Add(NewEntity("c", c)))

	run, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(run, 200) }()

	assert.Eventually(t, func() bool { return c.ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Error(t, l.Run(context.Background(), 0))
}

func TestLoop_FrameExcludesInput(t *testing.T) {
	ctx, _ := newContext()
	l := NewLoop(ctx)
	require.NoError(t, l.Add(NewEntity("c", &counter{})))

	ctx.Frame.Lock()
	stepped := make(chan struct{})
	go func() {
		l.Step(time.Millisecond)
		close(stepped)
	}()

	select {
	case <-stepped:
		t.Fatal("frame ran while input held the frame lock")
	case <-time.After(20 * time.Millisecond):
	}
	ctx.Frame.Unlock()
	<-stepped
}

func TestCaptionBehavior(t *testing.T) {
	ctx, store := newContext()
	l := NewLoop(ctx)
	surface, _ := ctx.Captions.Get("caption")
	require.NoError(t, l.Add(NewEntity("caption", &CaptionBehavior{Surface: surface})))

	b := core.JurorB
	require.NoError(t, l.Update("caption", CaptionUpdate{Speaker: &b, Target: &b}))
	v, ok := store.Get("caption", scene.AttrOpacity)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	require.NoError(t, l.Update("caption", core.Caption{SpeakerID: core.JurorA}))
	v, _ = store.Get("caption", scene.AttrOpacity)
	assert.Equal(t, 0.0, v)

	assert.Error(t, NewEntity("x", &CaptionBehavior{}).Init(ctx))
}

func TestCaptionBehavior_ReappliedEveryFrame(t *testing.T) {
	ctx, store := newContext()
	l := NewLoop(ctx)
	surface, _ := ctx.Captions.Get("caption")
	require.NoError(t, l.Add(NewEntity("caption", &CaptionBehavior{Surface: surface})))

	// nothing to write while speaker and target are unset
	l.Step(time.Millisecond)
	_, ok := store.Get("caption", scene.AttrOpacity)
	assert.False(t, ok)

	c := core.JurorC
	require.NoError(t, l.Update("caption", CaptionUpdate{Speaker: &c, Target: &c}))

	// something else overwrote the element; the next frame restores it
	store.Set("caption", scene.AttrOpacity, 0.5)
	l.Step(time.Millisecond)
	v, _ := store.Get("caption", scene.AttrOpacity)
	assert.Equal(t, 1.0, v)

	l.Step(time.Millisecond)
	assert.False(t, store.Set("caption", scene.AttrOpacity, 1.0), "frame left the value in place")
}

func TestIndicatorBehavior(t *testing.T) {
	ctx, store := newContext()
	l := NewLoop(ctx)

	ctx.Speakers.SetPosition(core.JurorA, core.Vec3{0, 0.7, 5})
	ctx.Speakers.SetActive(core.JurorA)
	u := indicator.NewUpdater(store.Marker("ringA"), indicator.Follow(core.JurorA, ctx.Speakers),
		indicator.OffsetNone, indicator.ColorsGold, ctx.Logger)

	require.NoError(t, l.Add(NewEntity("ringA",
		&StayBelow{Height: 0.7, Anchor: true},
		&IndicatorBehavior{Updater: u},
	)))
	l.Step(time.Millisecond)

	_, ok := store.Get("ringA", scene.AttrRotation)
	assert.True(t, ok)
	color, _ := store.Get("ringA", scene.AttrColor)
	assert.Equal(t, indicator.ColorsGold.Active, color)

	assert.Error(t, NewEntity("x", &IndicatorBehavior{}).Init(ctx))
}

func TestStayBelowAndRotateQE(t *testing.T) {
	ctx, store := newContext()
	l := NewLoop(ctx)
	el := store.Anchored("hud")
	require.NoError(t, l.Add(NewEntity("hud",
		&StayBelow{Element: el, Height: 0.7, Anchor: true},
		&RotateQE{Element: el},
	)))

	ctx.SetCamera(core.Vec3{1, 1.6, -2})
	ctx.Rotate(5)
	l.Step(time.Millisecond)

	pos, _ := store.Get("hud", scene.AttrPosition)
	assert.Equal(t, core.Vec3{1, 0.7, -2}, pos)
	assert.Equal(t, core.Vec3{1, 0.7, -2}, ctx.Anchor())
	yaw, _ := store.Get("hud", scene.AttrYaw)
	assert.Equal(t, 5.0, yaw)
}
