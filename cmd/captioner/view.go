package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/internal/logging"
	"github.com/cogconvo/captioner/internal/timeline"
	"github.com/cogconvo/captioner/internal/viewer"
	"github.com/cogconvo/captioner/pkg/core"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Run the caption scene for a browser host",
	Long: `Runs the headless caption scene and serves it over WebSocket at /ws.
The browser host renders the scene, reports speaker and camera positions
and forwards keyboard, mouse and gaze input.

With --captions the caption script drives the scene; otherwise captions
arrive from the host.`,
	Args: cobra.NoArgs,
	RunE: runView,
}

func init() {
	viewCmd.Flags().String("addr", "", "Listen address (default from config)")
	viewCmd.Flags().String("captions", "", "Caption script to play")
	viewCmd.Flags().Bool("record", true, "Record targets and speaker positions")
	viewCmd.Flags().IntP("method", "m", int(core.GlobalWithDirectionIndicators), "Rendering method stored with the recording")

	_ = viper.BindPFlag("viewer.addr", viewCmd.Flags().Lookup("addr"))
}

func runView(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.GetViewerConfig()

	var captions []core.Caption
	if path, _ := cmd.Flags().GetString("captions"); path != "" {
		var err error
		if captions, err = timeline.Load(path); err != nil {
			return err
		}
	}

	opts := []viewer.Option{viewer.WithLogger(Logger.With("component", "viewer"))}
	if record, _ := cmd.Flags().GetBool("record"); record {
		m, _ := cmd.Flags().GetInt("method")
		method, err := core.ParseRenderingMethod(m)
		if err != nil {
			return err
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
		opts = append(opts, viewer.WithRecorder(backend, method))
	}

	dlog := logging.NewDispatcherLogger(logging.NewZerolog(logOutput(), viper.GetString("logLevel"), "dispatcher"))
	v, err := viewer.New(cfg, dlog, opts...)
	if err != nil {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Viewer listening on ws://%s/ws\n", ln.Addr())
	return v.Serve(ctx, ln, captions)
}
