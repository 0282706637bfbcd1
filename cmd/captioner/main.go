package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/cogconvo/captioner/internal/api"
	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/internal/logging"
	intOtel "github.com/cogconvo/captioner/internal/otel"
)

// build info, set via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"

	AppName = "captioner"
)

var (
	// Global flags
	configDir string
	logLevel  string

	SessionStartTime = time.Now()

	SlogManager  *logging.SlogManager
	Logger       *slog.Logger
	OTelProvider *intOtel.Provider
	LogFile      *os.File
)

var rootCmd = &cobra.Command{
	Use:   "captioner",
	Short: "Caption server and viewer for the jury deliberation study",
	Long: `captioner streams a timed deliberation transcript to AR glasses,
tracks which juror the participant is looking at, and records every
session for later analysis.

The viewer subcommand runs the headless caption scene for a browser host.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", ".", "Directory containing "+config.FileName)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(mergeVTTCmd)
	rootCmd.AddCommand(partitionVTTCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (built %s)\n", AppName, Version, BuildDate)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config and brings up logging. Stderr is used until the
// log file is open.
func setup(cmd *cobra.Command) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		config.LoadDefaults()
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}
	if logLevel != "" {
		viper.Set("logLevel", logLevel)
	}

	var err error
	LogFile, err = logging.OpenLogFile(viper.GetString("logsDir"), AppName, SessionStartTime)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err)
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled && LogFile != nil {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    LogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
			Attributes:   map[string]string{"command": cmd.Name()},
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else if otelCfg.Endpoint != "" {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGelfWriter(gl.Address)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "address", gl.Address, "error", err)
		} else {
			extra = append(extra, logging.NewGelfHandler(w, SlogManager))
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logOutput(), viper.GetString("logLevel"), otelLogProvider, extra...)
	SlogManager.SetSessionAttrs(slog.String("command", cmd.Name()), slog.String("version", Version))
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	if LogFile != nil {
		Logger.Info("Logging to file", "path", LogFile.Name())
	}

	config.Watch(func(level string) {
		if logLevel != "" {
			return
		}
		SlogManager.SetLevel(level)
	})
	return nil
}

func logOutput() io.Writer {
	if LogFile != nil {
		return LogFile
	}
	return os.Stderr
}

func teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if SlogManager != nil {
		_ = SlogManager.Flush(ctx)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "otel shutdown: %v\n", err)
		}
	}
	if LogFile != nil {
		LogFile.Close()
	}
}

// checkDashboard logs whether the observer dashboard is reachable.
func checkDashboard(ctx context.Context, client *api.Client) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Info("Observer dashboard is offline", "error", err)
		return
	}
	Logger.Info("Observer dashboard is online")
}
