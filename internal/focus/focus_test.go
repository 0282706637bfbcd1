package focus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/internal/wire"
	"github.com/cogconvo/captioner/pkg/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu  sync.Mutex
	ids []core.JurorID
}

func (c *collector) emit(id core.JurorID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
}

func (c *collector) all() []core.JurorID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.JurorID(nil), c.ids...)
}

func TestParseSerialLine(t *testing.T) {
	tests := []struct {
		line string
		want core.JurorID
		ok   bool
	}{
		{"0", core.JurorA, true},
		{"1\r", core.JurorB, true},
		{" 2 ", core.JurorC, true},
		{"3", core.JuryForeman, true},
		{"9", core.JurorNone, true},
		{"4", core.JurorNone, false},
		{"", core.JurorNone, false},
		{"12", core.JurorNone, false},
		{"x", core.JurorNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseSerialLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerialSource_ReadsUntilEOF(t *testing.T) {
	s := NewSerialSource("/dev/null", 9600, slog.Default())
	s.open = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("0\n7\n3\n9\n")), nil
	}

	c := &collector{}
	require.NoError(t, s.Run(context.Background(), c.emit))
	// an unknown code clears the focus like 9 does
	assert.Equal(t, []core.JurorID{core.JurorA, core.JurorNone, core.JuryForeman, core.JurorNone}, c.all())
}

func TestSerialSource_OpenError(t *testing.T) {
	s := NewSerialSource("/dev/none", 9600, slog.Default())
	s.open = func() (io.ReadCloser, error) { return nil, errors.New("no device") }
	assert.Error(t, s.Run(context.Background(), func(core.JurorID) {}))
}

func TestSerialSource_StopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	s := NewSerialSource("/dev/null", 9600, slog.Default())
	s.open = func() (io.ReadCloser, error) { return r, nil }

	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, c.emit) }()

	_, err := w.Write([]byte("1\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	_ = w.Close()
}

func TestMockSource(t *testing.T) {
	m := NewMockSource(time.Millisecond, 3*time.Millisecond, 42)
	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, c.emit) }()

	require.Eventually(t, func() bool { return len(c.all()) >= 20 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for _, id := range c.all() {
		assert.True(t, id == core.JurorNone || id.Valid(), id)
	}
}

func TestMockSource_SeedIsDeterministic(t *testing.T) {
	a := NewMockSource(DefaultMockMin, DefaultMockMax, 7)
	b := NewMockSource(DefaultMockMin, DefaultMockMax, 7)
	for i := 0; i < 10; i++ {
		wa, ia := a.next()
		wb, ib := b.next()
		assert.Equal(t, wa, wb)
		assert.Equal(t, ia, ib)
		assert.GreaterOrEqual(t, wa, DefaultMockMin)
		assert.Less(t, wa, DefaultMockMax)
	}
}

func TestAzimuthFilter(t *testing.T) {
	f := NewAzimuthFilter(3)
	assert.Zero(t, f.Average())

	f.Add(10)
	f.Add(20)
	assert.Equal(t, 2, f.Len())
	assert.InDelta(t, 15, f.Average(), 1e-9)

	f.Add(30)
	f.Add(40)
	assert.Equal(t, 3, f.Len())
	assert.InDelta(t, 30, f.Average(), 1e-9, "oldest sample evicted")

	assert.Len(t, NewAzimuthFilter(0).samples, DefaultWindow)
}

func TestRelativeAndClassify(t *testing.T) {
	assert.InDelta(t, 0, Relative(180, 180), 1e-9)
	assert.InDelta(t, -170, Relative(10, 180), 1e-9)
	assert.InDelta(t, 180, Relative(0, 180), 1e-9)
	assert.InDelta(t, 20, Relative(10, 350), 1e-9)

	sectors, err := ParseSectors([]config.Sector{
		{Juror: "juror-a", From: -60, To: -30},
		{Juror: "juror-b", From: -30, To: 0},
		{Juror: "juror-c", From: 0, To: 30},
		{Juror: "jury-foreman", From: 30, To: 60},
	})
	require.NoError(t, err)

	assert.Equal(t, core.JurorA, Classify(130, 180, sectors))
	assert.Equal(t, core.JurorB, Classify(179, 180, sectors))
	assert.Equal(t, core.JurorC, Classify(180, 180, sectors))
	assert.Equal(t, core.JuryForeman, Classify(239.9, 180, sectors))
	assert.Equal(t, core.JurorNone, Classify(240, 180, sectors))
	assert.Equal(t, core.JurorNone, Classify(0, 180, sectors))
}

func TestParseSectors_Errors(t *testing.T) {
	_, err := ParseSectors([]config.Sector{{Juror: "judge", From: 0, To: 10}})
	assert.ErrorIs(t, err, core.ErrUnknownJuror)
	_, err = ParseSectors([]config.Sector{{Juror: "", From: 0, To: 10}})
	assert.ErrorIs(t, err, core.ErrUnknownJuror)
	_, err = ParseSectors([]config.Sector{{Juror: "juror-a", From: 10, To: 10}})
	assert.Error(t, err)
}

func TestOrientationSource_Read(t *testing.T) {
	sectors := []Sector{{Juror: core.JurorA, From: -10, To: 10}}
	o := NewOrientationSource("", NewAzimuthFilter(2), 180, sectors, slog.Default())

	client, server := net.Pipe()
	c := &collector{}
	done := make(chan error, 1)
	go func() { done <- o.Read(context.Background(), server, c.emit) }()

	enc := wire.NewEncoder(client, wire.DefaultMaxFrameSize)
	require.NoError(t, enc.Encode(core.OrientationMessage{Azimuth: 175}))
	require.NoError(t, enc.Encode(core.OrientationMessage{Azimuth: 185}))
	require.NoError(t, enc.Encode(core.OrientationMessage{Azimuth: 300}))
	require.NoError(t, client.Close())

	require.NoError(t, <-done)
	// averages: 175, 180, 242.5
	assert.Equal(t, []core.JurorID{core.JurorA, core.JurorA, core.JurorNone}, c.all())

	g, ok := o.Gaze()
	require.True(t, ok)
	assert.Equal(t, 242.5, g.Azimuth)
	assert.Equal(t, 62.5, g.Relative)
	assert.False(t, g.InView)
	assert.Greater(t, g.Pixel, AngleToPixel(math.Pi))
}

func TestOrientationSource_NoGazeBeforeFirstSample(t *testing.T) {
	o := NewOrientationSource("", NewAzimuthFilter(1), 0, nil, slog.Default())
	_, ok := o.Gaze()
	assert.False(t, ok)
	var _ GazeReporter = o
}

func TestNewGaze(t *testing.T) {
	centre := NewGaze(180, 180)
	assert.Zero(t, centre.Relative)
	assert.True(t, centre.InView)
	assert.Equal(t, AngleToPixel(math.Pi), centre.Pixel)

	right := NewGaze(190, 180)
	assert.True(t, right.InView)
	assert.Greater(t, right.Pixel, centre.Pixel)

	wrapped := NewGaze(5, 350)
	assert.Equal(t, 15.0, wrapped.Relative)
	assert.True(t, wrapped.InView)
}

func TestOrientationSource_Run(t *testing.T) {
	o := NewOrientationSource("127.0.0.1:0", NewAzimuthFilter(1), 0, []Sector{{Juror: core.JurorB, From: -5, To: 5}}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, o.Run(ctx, func(core.JurorID) {}))
}

func TestTracker_DistinctUntilChanged(t *testing.T) {
	var notified []core.JurorID
	tr := NewTracker(func(id core.JurorID) { notified = append(notified, id) })

	_, seen := tr.Current()
	assert.False(t, seen)

	ch := tr.Changed()
	assert.True(t, tr.Set(core.JurorNone), "first value counts")
	select {
	case <-ch:
	default:
		t.Fatal("changed channel not closed")
	}

	assert.False(t, tr.Set(core.JurorNone))
	assert.True(t, tr.Set(core.JurorA))
	assert.False(t, tr.Set(core.JurorA))
	assert.True(t, tr.Set(core.JurorB))

	cur, seen := tr.Current()
	assert.True(t, seen)
	assert.Equal(t, core.JurorB, cur)
	assert.Equal(t, []core.JurorID{core.JurorNone, core.JurorA, core.JurorB}, notified)
}

func TestNew(t *testing.T) {
	cfg := config.FocusConfig{Source: "mock"}
	src, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MockSource{}, src)

	cfg.Source = "serial"
	src, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &SerialSource{}, src)

	cfg.Source = "orientation"
	cfg.Orientation.Sectors = []config.Sector{{Juror: "juror-a", From: 0, To: 10}}
	src, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &OrientationSource{}, src)

	cfg.Orientation.Sectors = []config.Sector{{Juror: "judge", From: 0, To: 10}}
	_, err = New(cfg, nil)
	assert.Error(t, err)

	cfg.Source = "telepathy"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestAngleToPixel(t *testing.T) {
	assert.Equal(t, int(ScreenInchWidth/2*PixelsPerInch), AngleToPixel(math.Pi))
	assert.Equal(t, OffScreen, AngleToPixel(-100))
	assert.Equal(t, OffScreen, AngleToPixel(100))
	assert.Greater(t, AngleToPixel(math.Pi+0.1), AngleToPixel(math.Pi))

	assert.True(t, InView(15))
	assert.True(t, InView(-20))
	assert.False(t, InView(25))
	assert.True(t, InView(350))
}
