// Package server runs a caption session for one pair of glasses: it plays
// the caption timeline, tracks the viewer's focus and streams caption
// messages over TCP while the juror videos play.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/internal/focus"
	"github.com/cogconvo/captioner/internal/monitor"
	"github.com/cogconvo/captioner/internal/storage"
	"github.com/cogconvo/captioner/internal/streaming"
	"github.com/cogconvo/captioner/internal/timeline"
	"github.com/cogconvo/captioner/internal/wire"
	"github.com/cogconvo/captioner/pkg/core"
)

const instrumentationName = "github.com/cogconvo/captioner/internal/server"

// Uploader sends an exported session file to the observer dashboard.
type Uploader interface {
	Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error
}

// Playback is the video playback started together with the captions, either
// a playback.Launcher or a playback.Rotation.
type Playback interface {
	Prepare(ctx context.Context) error
	Release() error
	Wait() error
}

// Server serves a single glasses client.
type Server struct {
	cfg      config.ServerConfig
	method   core.RenderingMethod
	captions []core.Caption
	source   focus.Source
	srcName  string
	backend  storage.Backend

	launcher Playback
	uploader Uploader
	operator io.Reader
	out      io.Writer
	logger   *slog.Logger

	sessions metric.Int64Counter
}

// Option configures a Server.
type Option func(*Server)

// WithPlayback plays the juror videos alongside the captions.
func WithPlayback(l Playback) Option {
	return func(s *Server) { s.launcher = l }
}

// WithUploader uploads the session export once the session ends.
func WithUploader(u Uploader) Option {
	return func(s *Server) { s.uploader = u }
}

// WithOperator reads the operator start signal from r.
func WithOperator(r io.Reader) Option {
	return func(s *Server) { s.operator = r }
}

// WithOutput sets where prompts and the QR code are printed.
func WithOutput(w io.Writer) Option {
	return func(s *Server) { s.out = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New validates the configuration and creates a server. sourceName labels
// focus records, e.g. "serial" or "mock".
func New(cfg config.ServerConfig, captions []core.Caption, src focus.Source, sourceName string, backend storage.Backend, opts ...Option) (*Server, error) {
	method, err := core.ParseRenderingMethod(cfg.RenderingMethod)
	if err != nil {
		return nil, err
	}
	if len(captions) == 0 {
		return nil, timeline.ErrNoCaptions
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = wire.DefaultMaxFrameSize
	}

	s := &Server{
		cfg:      cfg,
		method:   method,
		captions: captions,
		source:   src,
		srcName:  sourceName,
		backend:  backend,
		out:      io.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sessions, err = otel.Meter(instrumentationName).Int64Counter(
		"server.sessions",
		metric.WithDescription("Caption sessions served"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}
	return s, nil
}

// ListenAndServe listens on the configured address, shows the connection
// QR code and serves one client.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}

	host := s.cfg.Host
	if host == "" || host == "0.0.0.0" {
		host = OutboundIP()
	}
	conn := ConnectionString(host, s.cfg.Port, s.method)
	s.logger.Info("Waiting for glasses", "address", conn, "method", s.method.String())
	if err := RenderQR(s.out, conn, s.cfg.QRFile); err != nil {
		ln.Close()
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts one client from ln and runs the session. ln is closed once
// the client is connected.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	conn, err := accept(ctx, ln)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.logger.Info("Glasses connected", "remote", conn.RemoteAddr().String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.launcher != nil {
		if err := s.launcher.Prepare(ctx); err != nil {
			return err
		}
	}
	if s.cfg.WaitForOperator && s.operator != nil {
		if err := s.waitForOperator(ctx); err != nil {
			cancel()
			s.waitLauncher()
			return err
		}
	}

	session := &core.Session{
		UUID:            uuid.NewString(),
		RenderingMethod: s.method,
		CaptionsFile:    s.cfg.CaptionsFile,
		FocusSource:     s.srcName,
		ClientAddr:      conn.RemoteAddr().String(),
		StartTime:       time.Now(),
	}
	if err := s.backend.StartSession(session); err != nil {
		cancel()
		s.waitLauncher()
		return fmt.Errorf("starting session: %w", err)
	}
	s.sessions.Add(ctx, 1)

	runErr := s.run(ctx, cancel, conn, session)
	cancel()
	s.waitLauncher()

	if err := s.backend.EndSession(); err != nil {
		s.logger.Error("Failed to end session", "error", err)
		runErr = errors.Join(runErr, err)
	}
	s.upload(context.WithoutCancel(ctx))

	s.logger.Info("Session finished", "session", session.UUID)
	return runErr
}

// run streams captions until the timeline and videos are done, the client
// disconnects or ctx is cancelled.
func (s *Server) run(ctx context.Context, cancel context.CancelFunc, conn net.Conn, session *core.Session) error {
	start := session.StartTime
	if s.launcher != nil {
		if err := s.launcher.Release(); err != nil {
			return err
		}
	}

	player := timeline.NewPlayer(s.captions, timeline.WithLogger(s.logger))
	tracker := focus.NewTracker(func(id core.JurorID) {
		err := s.backend.RecordFocus(&core.FocusRecord{Time: time.Now(), Focused: id, Source: s.srcName})
		if err != nil {
			s.logger.Warn("Failed to record focus", "error", err)
		}
	})
	streamer, err := streaming.New(player, tracker,
		streaming.WithRecorder(s.backend),
		streaming.WithStart(start),
		streaming.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	// a failing member also stops the video players
	stop := context.AfterFunc(gctx, cancel)
	defer stop()

	g.Go(func() error {
		if err := player.Run(gctx, start); err != nil {
			return ignoreCanceled(err)
		}
		if s.launcher != nil {
			// playback errors are logged once the session is torn down
			_ = s.launcher.Wait()
		}
		cancel()
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(tracker.Run(gctx, s.source))
	})
	g.Go(func() error {
		return streamer.Run(gctx, wire.NewEncoder(conn, s.cfg.MaxFrameSize))
	})
	if s.cfg.StatusFile != "" {
		mon := monitor.NewService(s.cfg.StatusFile, monitor.DefaultInterval, func() monitor.Status {
			st := monitor.Status{
				Time:         time.Now(),
				Session:      session.UUID,
				Method:       s.method.String(),
				Elapsed:      time.Since(start).Truncate(time.Second).String(),
				CaptionsSent: streamer.Sent(),
			}
			if c, ok := player.Current(); ok {
				st.Caption, st.Speaker = c.Text, c.SpeakerID
			}
			st.Focused, _ = tracker.Current()
			if gr, ok := s.source.(focus.GazeReporter); ok {
				if g, ok := gr.Gaze(); ok {
					st.Gaze = &g
				}
			}
			return st
		}, s.logger)
		g.Go(func() error {
			if err := mon.Run(gctx); err != nil {
				s.logger.Warn("Status monitor stopped", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		watchClient(gctx, conn)
		if gctx.Err() == nil {
			s.logger.Info("Glasses disconnected")
			cancel()
		}
		return nil
	})

	err = g.Wait()
	s.logger.Info("Captions sent", "messages", streamer.Sent())
	return err
}

// waitForOperator blocks until the operator sends an empty line. A reader
// that is also an io.Closer is closed when ctx ends so the scanning
// goroutine returns; any other reader keeps it parked until its next line.
func (s *Server) waitForOperator(ctx context.Context) error {
	closer, closable := s.operator.(io.Closer)
	if closable {
		stop := context.AfterFunc(ctx, func() { closer.Close() })
		defer stop()
	}

	lines := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(s.operator)
		fmt.Fprint(s.out, "Press ENTER to begin the experiment.")
		for sc.Scan() {
			if strings.TrimRight(sc.Text(), "\r") == "" {
				lines <- nil
				return
			}
			fmt.Fprint(s.out, "Invalid character received. Press ENTER to begin the experiment.")
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		lines <- fmt.Errorf("waiting for operator: %w", err)
	}()

	select {
	case <-ctx.Done():
		if closable {
			<-lines
		}
		return ctx.Err()
	case err := <-lines:
		return err
	}
}

func (s *Server) waitLauncher() {
	if s.launcher == nil {
		return
	}
	if err := s.launcher.Wait(); err != nil {
		s.logger.Warn("Video playback failed", "error", err)
	}
}

func (s *Server) upload(ctx context.Context) {
	if s.uploader == nil {
		return
	}
	up, ok := s.backend.(storage.Uploadable)
	if !ok {
		s.logger.Debug("Storage backend has no export to upload")
		return
	}
	path := up.GetExportedFilePath()
	if path == "" {
		return
	}
	if err := s.uploader.Upload(ctx, path, up.GetExportMetadata()); err != nil {
		s.logger.Error("Failed to upload session", "file", path, "error", err)
		return
	}
	s.logger.Info("Session uploaded", "file", path)
}

// accept waits for one client, giving up when ctx is done.
func accept(ctx context.Context, ln net.Listener) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	return conn, nil
}

// watchClient drains the connection until the client goes away or ctx is
// done. The read deadline unblocks it without closing the connection, so the
// streamer can still flush.
func watchClient(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()
	_, _ = io.Copy(io.Discard, conn)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
