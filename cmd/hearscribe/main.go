// Command hearscribe attributes transcribed hearing segments to speakers and
// writes an annotated transcript.
//
// Segments come from a text file or stdin (one segment per line), or from a
// directory of recorded audio files that are transcribed remotely first:
//
//	hearscribe -config hearscribe.yaml -input segments.txt
//	hearscribe -input - < segments.txt
//	hearscribe -config hearscribe.yaml   # uses transcription.audio_dir
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/hearscribe/internal/app"
	"github.com/MrWong99/hearscribe/internal/config"
	"github.com/MrWong99/hearscribe/internal/observe"
	"github.com/MrWong99/hearscribe/internal/segment"
	"github.com/MrWong99/hearscribe/pkg/provider/stt"
	oaistt "github.com/MrWong99/hearscribe/pkg/provider/stt/openai"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "hearscribe.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	input := flag.String("input", "", `text file with one segment per line, "-" for stdin; overrides transcription.audio_dir`)
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath, flagSet("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hearscribe: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("hearscribe starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(tel.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Segment source ────────────────────────────────────────────────────────
	src, closeSrc, err := buildSource(cfg, *input, reg, metrics)
	if err != nil {
		slog.Error("failed to open segment source", "err", err)
		return 1
	}
	defer closeSrc()

	printStartupSummary(cfg, *input)

	application, err := app.New(ctx, cfg,
		app.WithSource(src),
		app.WithMetrics(metrics),
		app.WithMetricsHandler(tel.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	// The speaker memory is flushed here even when Run failed.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	return code
}

// loadConfig reads the config at path. A missing file at the default path is
// not an error: hearscribe then runs on built-in defaults.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && !explicit {
		cfg = config.Default()
		if verr := config.Validate(cfg); verr != nil {
			return nil, verr
		}
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found", path)
	}
	return nil, err
}

// flagSet reports whether the named flag was given on the command line.
func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// registerBuiltinProviders registers all transcription providers shipped with
// hearscribe.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("openai", func(c config.TranscriptionConfig) (stt.Provider, error) {
		var opts []oaistt.Option
		if c.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(c.BaseURL))
		}
		if c.Language != "" {
			opts = append(opts, oaistt.WithLanguage(c.Language))
		}
		if c.TimeoutSeconds > 0 {
			opts = append(opts, oaistt.WithTimeout(c.Timeout()))
		}
		if c.MaxRetries > 0 {
			opts = append(opts, oaistt.WithMaxRetries(c.MaxRetries))
		}
		return oaistt.New(c.APIKey, c.Model, opts...)
	})
}

// buildSource picks the segment source: the -input flag wins, then the
// configured audio directory, then stdin. The returned func releases any
// opened file.
func buildSource(cfg *config.Config, input string, reg *config.Registry, m *observe.Metrics) (segment.Source, func(), error) {
	noop := func() {}
	switch {
	case input == "-":
		return segment.NewLineSource("stdin", os.Stdin), noop, nil
	case input != "":
		f, err := os.Open(input)
		if err != nil {
			return nil, noop, fmt.Errorf("open input: %w", err)
		}
		return segment.NewLineSource(input, f), func() { _ = f.Close() }, nil
	case cfg.Transcription.AudioDir != "":
		p, err := app.NewTranscriber(reg, cfg.Transcription, m)
		if err != nil {
			return nil, noop, err
		}
		return segment.NewAudioSource(cfg.Transcription.AudioDir, p), noop, nil
	default:
		return segment.NewLineSource("stdin", os.Stdin), noop, nil
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, input string) {
	printSummary(os.Stderr, cfg, input)
}

func printSummary(w io.Writer, cfg *config.Config, input string) {
	source := "stdin"
	switch {
	case input == "-":
	case input != "":
		source = input
	case cfg.Transcription.AudioDir != "":
		source = cfg.Transcription.AudioDir + " (" + cfg.Transcription.Provider + " / " + cfg.Transcription.Model + ")"
	}
	fmt.Fprintln(w, "╔═══════════════════════════════════════════╗")
	fmt.Fprintln(w, "║         hearscribe: startup summary       ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════════╣")
	printRow(w, "Source", source)
	if cfg.Transcription.AudioDir != "" && input == "" {
		printRow(w, "Fallbacks", fmt.Sprint(len(cfg.Transcription.Fallbacks)))
	}
	printRow(w, "Memory file", cfg.Attribution.MemoryFile)
	printRow(w, "Segment length", cfg.Attribution.SegmentDuration().String())
	roles := "built-in"
	if n := len(cfg.Attribution.Roles); n > 0 {
		roles = fmt.Sprintf("%d configured", n)
	}
	printRow(w, "Roles", roles)
	printRow(w, "Phonetic match", fmt.Sprint(cfg.Attribution.PhoneticMatch))
	printRow(w, "Log file", cfg.Output.LogFile)
	printRow(w, "Document", cfg.Output.DocumentFile)
	printRow(w, "Metrics addr", cfg.Server.MetricsAddr)
	fmt.Fprintln(w, "╚═══════════════════════════════════════════╝")
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 23 {
		value = string(r[:22]) + "…"
	}
	fmt.Fprintf(w, "║  %-14s : %-23s ║\n", label, value)
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
