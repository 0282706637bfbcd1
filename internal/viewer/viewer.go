// Package viewer assembles a headless viewing session: caption surfaces, the
// direction indicator and the HUD anchor run in a frame loop, and every scene
// write is bridged to the browser host, whose input comes back through the
// dispatcher.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cogconvo/captioner/internal/bridge"
	"github.com/cogconvo/captioner/internal/caption"
	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/internal/dispatcher"
	"github.com/cogconvo/captioner/internal/indicator"
	"github.com/cogconvo/captioner/internal/input"
	"github.com/cogconvo/captioner/internal/scene"
	"github.com/cogconvo/captioner/internal/session"
	"github.com/cogconvo/captioner/internal/speaker"
	"github.com/cogconvo/captioner/internal/storage"
	"github.com/cogconvo/captioner/internal/timeline"
	"github.com/cogconvo/captioner/pkg/core"
)

// Scene entity ids shared with the browser host.
const (
	EntityCaption        = "caption"
	EntityAmbientCaption = "ambientCaption"
	EntityIndicator      = "indicator"
	EntityAnchor         = "anchor"
)

// SpeakerIndicator is the entity id of the marker that follows id.
func SpeakerIndicator(id core.JurorID) string {
	return EntityIndicator + "-" + string(id)
}

// DefaultSampleInterval is how often speaker positions are recorded.
const DefaultSampleInterval = time.Second

// Viewer is one viewing session wired to its host bridge.
type Viewer struct {
	cfg    config.ViewerConfig
	logger *slog.Logger

	Store      *scene.Store
	Session    *session.Context
	Loop       *session.Loop
	Dispatcher *dispatcher.Dispatcher
	Controller *input.Controller
	Bridge     *bridge.Bridge

	recorder storage.Backend
	method   core.RenderingMethod
	sample   time.Duration
}

// Option configures a Viewer.
type Option func(*Viewer)

// WithRecorder records target changes and speaker positions as a session
// with the given rendering method.
func WithRecorder(b storage.Backend, method core.RenderingMethod) Option {
	return func(v *Viewer) {
		v.recorder = b
		v.method = method
	}
}

// WithSampleInterval sets how often speaker positions are recorded.
func WithSampleInterval(d time.Duration) Option {
	return func(v *Viewer) {
		if d > 0 {
			v.sample = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Viewer) { v.logger = l }
}

// New validates cfg and assembles the session.
func New(cfg config.ViewerConfig, dlog dispatcher.Logger, opts ...Option) (*Viewer, error) {
	v := &Viewer{cfg: cfg, logger: slog.Default(), sample: DefaultSampleInterval}
	for _, opt := range opts {
		opt(v)
	}

	field, err := caption.ParseTargetField(cfg.TargetField)
	if err != nil {
		return nil, err
	}
	offset, err := indicator.ParseOffset(cfg.IndicatorOffset)
	if err != nil {
		return nil, err
	}
	colors, err := indicator.ParseColors(cfg.Colors)
	if err != nil {
		return nil, err
	}
	keys, err := input.NewKeyMap(cfg.Keys)
	if err != nil {
		return nil, err
	}
	ids := make([]core.JurorID, 0, len(cfg.Speakers))
	for _, s := range cfg.Speakers {
		id, err := core.ParseJurorID(s)
		if err != nil {
			return nil, fmt.Errorf("viewer speakers: %w", err)
		}
		ids = append(ids, id)
	}

	v.Store = scene.NewStore()
	primary := caption.NewSurface(EntityCaption, field, false, v.Store.Text(EntityCaption))
	ambient := caption.NewSurface(EntityAmbientCaption, field, true, v.Store.Text(EntityAmbientCaption))
	v.Session = session.NewContext(speaker.NewRegistry(ids...), caption.NewSet(primary, ambient), v.logger)
	v.Loop = session.NewLoop(v.Session)

	anchor := v.Store.Anchored(EntityAnchor)
	updater := indicator.NewUpdater(v.Store.Marker(EntityIndicator), primary, offset, colors, v.Session.Logger)
	// the anchor entity goes first so indicators aim from this frame's anchor
	entities := []*session.Entity{
		session.NewEntity(EntityAnchor,
			&session.StayBelow{Element: anchor, Height: cfg.AnchorHeight, Anchor: true},
			&session.RotateQE{Element: anchor}),
		session.NewEntity(EntityCaption, &session.CaptionBehavior{Surface: primary}),
		session.NewEntity(EntityAmbientCaption, &session.CaptionBehavior{Surface: ambient}),
		session.NewEntity(EntityIndicator, &session.IndicatorBehavior{Updater: updater}),
	}
	// one marker per juror, each aimed at its own speaker
	for _, id := range ids {
		marker := SpeakerIndicator(id)
		u := indicator.NewUpdater(v.Store.Marker(marker), indicator.Follow(id, v.Session.Speakers), offset, colors, v.Session.Logger)
		entities = append(entities, session.NewEntity(marker, &session.IndicatorBehavior{Updater: u}))
	}
	for _, e := range entities {
		if err := v.Loop.Add(e); err != nil {
			return nil, err
		}
	}

	v.Dispatcher, err = dispatcher.New(dlog)
	if err != nil {
		return nil, err
	}
	v.Controller = input.NewController(keys, v.Session.Captions, v.Session.Speakers,
		input.WithRig(v.Session, cfg.RotateStep),
		input.WithCamera(v.Session),
		input.WithLogger(v.Session.Logger),
		input.OnTarget(v.recordTarget),
	)
	v.Controller.Register(v.Dispatcher, &v.Session.Frame)

	v.Bridge = bridge.New(v.Dispatcher, v.Store,
		bridge.WithQueueSize(cfg.SendQueueSize),
		bridge.WithLogger(v.Session.Logger))
	v.Store.AddSink(v.Bridge)
	return v, nil
}

// ShowCaption makes c the caption currently spoken.
func (v *Viewer) ShowCaption(c core.Caption) {
	v.Loop.Broadcast(c)
}

// Serve runs the bridge on ln, the frame loop and, when captions are given,
// the caption timeline until ctx is done.
func (v *Viewer) Serve(ctx context.Context, ln net.Listener, captions []core.Caption) error {
	if v.recorder != nil {
		s := &core.Session{
			UUID:            v.Session.ID,
			RenderingMethod: v.method,
			FocusSource:     "viewer",
			StartTime:       time.Now(),
		}
		if err := v.recorder.StartSession(s); err != nil {
			return fmt.Errorf("starting session: %w", err)
		}
	}

	srv := &http.Server{Handler: v.Bridge.Handler(), ReadHeaderTimeout: 10 * time.Second}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("viewer bridge: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// hijacked WebSocket connections are not closed by Shutdown
		v.Bridge.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return v.Loop.Run(gctx, v.cfg.FPS)
	})
	if len(captions) > 0 {
		player := timeline.NewPlayer(captions, timeline.OnCaption(v.ShowCaption), timeline.WithLogger(v.logger))
		g.Go(func() error {
			if err := player.Run(gctx, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if v.recorder != nil {
		g.Go(func() error {
			v.samplePositions(gctx)
			return nil
		})
	}

	v.logger.Info("Viewer bridge listening", "addr", ln.Addr().String(), "session", v.Session.ID)
	err := g.Wait()
	v.Dispatcher.Close()

	if v.recorder != nil {
		if endErr := v.recorder.EndSession(); endErr != nil {
			err = errors.Join(err, fmt.Errorf("ending session: %w", endErr))
		}
	}
	return err
}

func (v *Viewer) recordTarget(target core.JurorID, source string) {
	if v.recorder == nil {
		return
	}
	err := v.recorder.RecordTarget(&core.TargetRecord{Time: time.Now(), Target: target, Input: source})
	if err != nil {
		v.logger.Warn("Failed to record target", "error", err)
	}
}

// samplePositions records every resolved speaker whose position moved since
// the last sample.
func (v *Viewer) samplePositions(ctx context.Context) {
	ticker := time.NewTicker(v.sample)
	defer ticker.Stop()

	last := make(map[core.JurorID]core.Vec3)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, s := range v.Session.Speakers.All() {
				pos, ok := v.Session.Speakers.Resolve(s.ID)
				if !ok {
					continue
				}
				if prev, seen := last[s.ID]; seen && prev == pos {
					continue
				}
				last[s.ID] = pos
				err := v.recorder.RecordSpeakerPosition(&core.SpeakerPositionRecord{Time: now, Speaker: s.ID, Position: pos})
				if err != nil {
					v.logger.Warn("Failed to record speaker position", "speaker", s.ID, "error", err)
				}
			}
		}
	}
}
