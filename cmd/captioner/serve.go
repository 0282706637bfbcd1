package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/internal/focus"
	"github.com/cogconvo/captioner/internal/playback"
	"github.com/cogconvo/captioner/internal/server"
	"github.com/cogconvo/captioner/internal/timeline"
	"github.com/cogconvo/captioner/pkg/core"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve captions to one pair of glasses",
	Long: `Loads the caption script, prints the connection QR code and waits for
the glasses to connect. Once the operator presses ENTER the juror videos
start together with the caption timeline.

Rendering methods:
  1 monitor only          5 who said what
  2 global only           6 monitor and global with direction indicators
  3 monitor and global    8 focused speaker only
  4 global with direction indicators
  9 focused speaker and global`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "TCP port (default from config)")
	serveCmd.Flags().IntP("method", "m", 0, "Rendering method")
	serveCmd.Flags().String("captions", "", "Caption script")
	serveCmd.Flags().Bool("no-wait", false, "Start without waiting for the operator")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.renderingMethod", serveCmd.Flags().Lookup("method"))
	_ = viper.BindPFlag("server.captionsFile", serveCmd.Flags().Lookup("captions"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.GetServerConfig()
	if noWait, _ := cmd.Flags().GetBool("no-wait"); noWait {
		cfg.WaitForOperator = false
	}

	captions, err := timeline.Load(cfg.CaptionsFile)
	if err != nil {
		return err
	}
	Logger.Info("Loaded captions", "file", cfg.CaptionsFile, "count", len(captions))

	focusCfg, err := config.GetFocusConfig()
	if err != nil {
		return err
	}
	src, err := focus.New(focusCfg, Logger.With("component", "focus"))
	if err != nil {
		return err
	}
	srcName := focusCfg.Source
	if srcName == "" {
		srcName = "mock"
	}

	backend, err := openStorage()
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}()

	opts := []server.Option{
		server.WithOperator(os.Stdin),
		server.WithOutput(cmd.OutOrStdout()),
		server.WithLogger(Logger.With("component", "server")),
	}
	pb, err := newPlayback(config.GetPlaybackConfig(), captions)
	if err != nil {
		return err
	}
	if pb != nil {
		opts = append(opts, server.WithPlayback(pb))
	}
	if up := newUploader(); up != nil {
		checkDashboard(ctx, up)
		opts = append(opts, server.WithUploader(up))
	}

	srv, err := server.New(cfg, captions, src, srcName, backend, opts...)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// newPlayback builds the configured video playback, or nil when disabled.
func newPlayback(cfg config.PlaybackConfig, captions []core.Caption) (server.Playback, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	logger := Logger.With("component", "playback")

	switch cfg.Mode {
	case "rotation":
		sched, err := playback.NewSchedule(cfg.VideosDir, playback.Blocks(captions), 0)
		if err != nil {
			return nil, err
		}
		return playback.NewRotation(cfg.Player, cfg.Args, cfg.LoopArgs, sched, logger), nil
	case "jurors", "":
		files := make([]string, 0, len(core.Jurors))
		for _, id := range core.Jurors {
			name := string(id) + ".mp4"
			if cfg.Section > 0 {
				name = fmt.Sprintf("%s.%d.mp4", id, cfg.Section)
			}
			files = append(files, filepath.Join(cfg.VideosDir, name))
		}
		return playback.NewLauncher(cfg.Player, cfg.Args, files, logger), nil
	default:
		return nil, fmt.Errorf("unknown playback mode: %s", cfg.Mode)
	}
}
