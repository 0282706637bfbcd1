package focus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"sync"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/internal/wire"
	"github.com/cogconvo/captioner/pkg/core"
)

// DefaultWindow is the number of azimuth samples averaged.
const DefaultWindow = 3000

// AzimuthFilter is a moving average over the most recent azimuth samples.
type AzimuthFilter struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
	sum     float64
}

// NewAzimuthFilter creates a filter averaging up to size samples.
func NewAzimuthFilter(size int) *AzimuthFilter {
	if size <= 0 {
		size = DefaultWindow
	}
	return &AzimuthFilter{samples: make([]float64, size)}
}

// Add records a sample, evicting the oldest once the window is full.
func (f *AzimuthFilter) Add(azimuth float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		f.sum -= f.samples[f.next]
	}
	f.samples[f.next] = azimuth
	f.sum += azimuth
	f.next++
	if f.next == len(f.samples) {
		f.next = 0
		f.full = true
	}
}

// Len returns the number of samples held.
func (f *AzimuthFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return len(f.samples)
	}
	return f.next
}

// Average returns the mean azimuth, or 0 with no samples.
func (f *AzimuthFilter) Average() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.next
	if f.full {
		n = len(f.samples)
	}
	if n == 0 {
		return 0
	}
	return f.sum / float64(n)
}

// Sector is an azimuth range in degrees, relative to the centre azimuth,
// that puts a juror in focus. From is inclusive, To exclusive.
type Sector struct {
	Juror    core.JurorID
	From, To float64
}

// ParseSectors validates configured sectors.
func ParseSectors(raw []config.Sector) ([]Sector, error) {
	out := make([]Sector, 0, len(raw))
	for i, s := range raw {
		id, err := core.ParseJurorID(s.Juror)
		if err != nil || !id.IsSet() {
			return nil, fmt.Errorf("sector %d: %w: %q", i, core.ErrUnknownJuror, s.Juror)
		}
		if s.From >= s.To {
			return nil, fmt.Errorf("sector %d: empty range [%v, %v)", i, s.From, s.To)
		}
		out = append(out, Sector{Juror: id, From: s.From, To: s.To})
	}
	return out, nil
}

// Relative returns azimuth relative to center, in (-180, 180].
func Relative(azimuth, center float64) float64 {
	d := math.Mod(azimuth-center, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// Classify returns the juror whose sector holds azimuth, or JurorNone.
func Classify(azimuth, center float64, sectors []Sector) core.JurorID {
	rel := Relative(azimuth, center)
	for _, s := range sectors {
		if rel >= s.From && rel < s.To {
			return s.Juror
		}
	}
	return core.JurorNone
}

// OrientationSource accepts one orientation stream and classifies the
// smoothed azimuth into a focused juror.
type OrientationSource struct {
	addr    string
	filter  *AzimuthFilter
	center  float64
	sectors []Sector
	logger  *slog.Logger

	mu   sync.Mutex
	gaze Gaze
	seen bool
}

// NewOrientationSource creates a source listening on addr.
func NewOrientationSource(addr string, filter *AzimuthFilter, center float64, sectors []Sector, logger *slog.Logger) *OrientationSource {
	return &OrientationSource{addr: addr, filter: filter, center: center, sectors: sectors, logger: logger}
}

// Filter returns the azimuth filter.
func (o *OrientationSource) Filter() *AzimuthFilter { return o.filter }

// Gaze returns the latest smoothed gaze, if any sample has arrived.
func (o *OrientationSource) Gaze() (Gaze, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gaze, o.seen
}

// Run listens on the configured address, accepts a single device and reads
// it until ctx is done or the device disconnects.
func (o *OrientationSource) Run(ctx context.Context, emit func(core.JurorID)) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", o.addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("listen for orientation on %s: %w", o.addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	o.logger.Info("Waiting for orientation device", "addr", ln.Addr().String())
	conn, err := ln.Accept()
	_ = ln.Close()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("accept orientation device: %w", err)
	}
	o.logger.Info("Orientation device connected", "remote", conn.RemoteAddr().String())
	return o.Read(ctx, conn, emit)
}

// Read consumes framed orientation messages from rc.
func (o *OrientationSource) Read(ctx context.Context, rc io.ReadCloser, emit func(core.JurorID)) error {
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer func() {
		if stop() {
			_ = rc.Close()
		}
	}()

	dec := wire.NewDecoder(rc, wire.DefaultMaxFrameSize)
	for {
		var msg core.OrientationMessage
		if err := dec.Decode(&msg); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read orientation: %w", err)
		}
		o.filter.Add(msg.Azimuth)
		avg := o.filter.Average()
		o.mu.Lock()
		o.gaze, o.seen = NewGaze(avg, o.center), true
		o.mu.Unlock()
		emit(Classify(avg, o.center, o.sectors))
	}
}
