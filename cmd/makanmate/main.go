// Command makanmate is the terminal front end for MakanMate, a Malaysian food
// finder backed by Gemini.
//
// It has three modes:
//
//	makanmate find [prompt]   one-shot place search, optionally by voice
//	makanmate chat            text or voice conversation
//	makanmate live            full-duplex voice conversation
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/makanmate/makanmate/internal/app"
	"github.com/makanmate/makanmate/internal/config"
	"github.com/makanmate/makanmate/internal/observe"
	"github.com/makanmate/makanmate/internal/ui"
	"github.com/makanmate/makanmate/pkg/audio/portaudio"
)

// version is set at build time.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "makanmate: %v\n", err)
		}
		return 1
	}
	return 0
}

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	envFile    string
	plain      bool
	width      int
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "makanmate",
		Short:         "MakanMate - find great Malaysian food",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `MakanMate helps you decide what to eat. Ask for places in one shot,
chat about dishes, or talk to it live with your microphone.

API keys are read from the config file or from GEMINI_API_KEY / API_KEY,
which may also be set in a .env file.`,
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "makanmate.yaml", "path to the YAML configuration file")
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file to load before reading the config")
	pf.BoolVar(&flags.plain, "plain", false, "disable colours and terminal styling")
	pf.IntVar(&flags.width, "width", 80, "wrap width for rendered output")

	cmd.AddCommand(
		newFindCmd(flags),
		newChatCmd(flags),
		newLiveCmd(flags),
	)
	return cmd
}

// ── Environment ───────────────────────────────────────────────────────────────

// env is the per-invocation state built from the flags and config.
type env struct {
	cfg     *config.Config
	app     *app.App
	ui      *ui.Renderer
	out     io.Writer
	log     *slog.Logger
	metrics *observe.Metrics
	tel     *observe.Telemetry
}

// kinds selects which providers a subcommand needs.
type kinds struct {
	live, search, chat bool
}

// setup loads configuration, telemetry and the providers named by need. extra
// options are applied to the app after the defaults. The returned env must be
// closed.
func setup(ctx context.Context, cmd *cobra.Command, flags *rootFlags, need kinds, extra ...app.Option) (*env, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", flags.envFile, err)
		}
	}

	cfg, err := loadConfig(cmd, flags.configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	shutdown := tel.Shutdown
	metrics, err := observe.NewMetrics(tel.MeterProvider)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, logger)
	providers, err := buildProviders(cfg, reg, need, logger)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	devices := portaudio.New(
		portaudio.WithCaptureFrames(cfg.Audio.FrameSize),
		portaudio.WithLogger(logger),
	)
	appOpts := []app.Option{
		app.WithDevices(devices),
		app.WithLogger(logger),
		app.WithMetrics(metrics),
	}
	a, err := app.New(cfg, providers, append(appOpts, extra...)...)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	var uiOpts []ui.Option
	if flags.plain {
		uiOpts = append(uiOpts, ui.WithPlain())
	}
	uiOpts = append(uiOpts, ui.WithWidth(flags.width))
	r, err := ui.New(uiOpts...)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	slog.Debug("makanmate starting",
		"config", flags.configPath,
		"log_level", cfg.Server.LogLevel,
		"listen_addr", cfg.Server.ListenAddr,
	)
	return &env{
		cfg:     cfg,
		app:     a,
		ui:      r,
		out:     cmd.OutOrStdout(),
		log:     logger,
		metrics: metrics,
		tel:     tel,
	}, nil
}

// loadConfig reads path. A missing file is fine when --config was left at its
// default; the built-in defaults are used instead.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg = config.Default()
		return cfg, config.Validate(cfg)
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found", path)
	}
	return nil, err
}

// close flushes telemetry.
func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.tel.Shutdown(ctx); err != nil {
		e.log.Warn("telemetry shutdown", "err", err)
	}
}

// println writes s followed by a newline.
func (e *env) println(s string) {
	fmt.Fprintln(e.out, s)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
