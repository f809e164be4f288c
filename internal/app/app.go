// Package app wires the hearscribe subsystems into a running application.
//
// The App owns the full lifecycle: New builds the role lexicon, opens the
// speaker memory, and assembles the attribution engine and output sinks;
// Run pulls segments from the source until it is exhausted or the context
// is cancelled; Shutdown flushes the speaker memory and closes the sinks.
//
// For testing, inject doubles via functional options (WithMemoryStore,
// WithSinks, WithMetrics, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hearscribe/internal/attribution"
	"github.com/MrWong99/hearscribe/internal/classify"
	"github.com/MrWong99/hearscribe/internal/config"
	"github.com/MrWong99/hearscribe/internal/health"
	"github.com/MrWong99/hearscribe/internal/lexicon"
	"github.com/MrWong99/hearscribe/internal/observe"
	"github.com/MrWong99/hearscribe/internal/output"
	"github.com/MrWong99/hearscribe/internal/segment"
	"github.com/MrWong99/hearscribe/internal/speakermem"
	"github.com/MrWong99/hearscribe/internal/transcript"
	"github.com/MrWong99/hearscribe/internal/transcript/phonetic"
)

// serverShutdownTimeout bounds the graceful stop of the metrics listener.
const serverShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes and runs the attribution pipeline.
type App struct {
	cfg *config.Config

	source     segment.Source
	store      speakermem.Store
	memory     *speakermem.Memory
	engine     *attribution.Engine
	structurer *transcript.Structurer
	sinks      []output.Sink

	metrics     *observe.Metrics
	metricsHTTP http.Handler
	handler     http.Handler
	now         func() time.Time

	processed atomic.Int64
	running   atomic.Bool
	finished  atomic.Bool

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource sets the segment source. Required.
func WithSource(src segment.Source) Option {
	return func(a *App) { a.source = src }
}

// WithMemoryStore injects a speaker memory store instead of the file store
// at cfg.Attribution.MemoryFile.
func WithMemoryStore(s speakermem.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSinks injects output sinks instead of opening the configured files.
// The app takes ownership and closes them on Shutdown.
func WithSinks(sinks ...output.Sink) Option {
	return func(a *App) { a.sinks = sinks }
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler served at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHTTP = h }
}

// WithClock overrides the time source of the attribution engine.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New creates an App from cfg. The config is expected to be validated and
// have defaults applied.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	if a.source == nil {
		return nil, errors.New("app: no segment source configured")
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initAttribution(ctx); err != nil {
		return nil, err
	}
	if err := a.initSinks(); err != nil {
		return nil, err
	}
	a.initHTTP()
	return a, nil
}

func (a *App) initAttribution(ctx context.Context) error {
	lex := lexicon.Default()
	if len(a.cfg.Attribution.Roles) > 0 {
		lex = lexicon.New(a.cfg.Attribution.Roles)
	}

	if a.store == nil {
		a.store = speakermem.NewFileStore(a.cfg.Attribution.MemoryFile)
	}
	mem, err := speakermem.Open(ctx, a.store)
	if err != nil {
		return fmt.Errorf("app: open speaker memory: %w", err)
	}
	a.memory = mem
	slog.Info("speaker memory loaded", "references", mem.Len())

	var resolver attribution.NameResolver
	if a.cfg.Attribution.PhoneticMatch {
		resolver = phonetic.New(lex)
	}

	a.engine = attribution.New(
		classify.New(lex),
		mem,
		attribution.NewFormatter(lex, mem, resolver),
		attribution.WithClock(a.now),
		attribution.WithSegmentDuration(a.cfg.Attribution.SegmentDuration()),
	)
	a.structurer = transcript.NewStructurer(a.engine)
	return nil
}

func (a *App) initSinks() error {
	if a.sinks == nil {
		if config.Enabled(a.cfg.Output.LogFile) {
			l, err := output.OpenRawLog(a.cfg.Output.LogFile)
			if err != nil {
				return fmt.Errorf("app: %w", err)
			}
			a.sinks = append(a.sinks, l)
		}
		if config.Enabled(a.cfg.Output.DocumentFile) {
			d, err := output.OpenDocument(a.cfg.Output.DocumentFile, a.now(),
				output.WithTitle(a.cfg.Output.DocumentTitle))
			if err != nil {
				for _, s := range a.sinks {
					_ = s.Close()
				}
				return fmt.Errorf("app: %w", err)
			}
			a.sinks = append(a.sinks, d)
		}
	}
	for _, s := range a.sinks {
		a.closers = append(a.closers, s.Close)
	}
	return nil
}

func (a *App) initHTTP() {
	mux := http.NewServeMux()
	if a.metricsHTTP != nil {
		mux.Handle("GET /metrics", a.metricsHTTP)
	}
	health.New(
		health.Checker{Name: "memory", Check: a.checkMemory},
		health.Checker{Name: "session", Check: a.checkSession},
	).Register(mux)
	a.handler = observe.Middleware(a.metrics)(mux)
}

// Handler returns the HTTP handler serving /metrics, /healthz and /readyz.
func (a *App) Handler() http.Handler { return a.handler }

// Processed returns the number of segments attributed so far.
func (a *App) Processed() int64 { return a.processed.Load() }

// Engine exposes the attribution engine, mainly for inspection of its state.
func (a *App) Engine() *attribution.Engine { return a.engine }

// Memory exposes the speaker memory.
func (a *App) Memory() *speakermem.Memory { return a.memory }

// checkMemory verifies that the directory holding the memory file still
// exists, so the next save can succeed.
func (a *App) checkMemory(context.Context) error {
	fs, ok := a.store.(*speakermem.FileStore)
	if !ok {
		return nil
	}
	info, err := os.Stat(filepath.Dir(fs.Path()))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", filepath.Dir(fs.Path()))
	}
	return nil
}

// checkSession reports ready while segments are being processed.
func (a *App) checkSession(context.Context) error {
	switch {
	case a.finished.Load():
		return errors.New("input exhausted")
	case !a.running.Load():
		return errors.New("not started")
	}
	return nil
}

// Run processes segments until the source is exhausted (returns nil), ctx
// is cancelled (returns ctx.Err()), or a segment fails fatally. When
// cfg.Server.MetricsAddr is enabled, the HTTP listener runs alongside the
// loop and stops with it.
func (a *App) Run(ctx context.Context) error {
	a.metrics.ActiveSessions.Add(ctx, 1)
	defer a.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(loopCtx)

	if addr := a.cfg.Server.MetricsAddr; config.Enabled(addr) {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", addr, err)
		}
		srv := &http.Server{Handler: a.handler, ReadHeaderTimeout: 5 * time.Second}
		slog.Info("metrics listener started", "addr", ln.Addr().String())

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), serverShutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		// Ending the loop stops the listener as well.
		defer stop()
		return a.loop(gctx)
	})

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (a *App) loop(ctx context.Context) error {
	a.running.Store(true)
	defer a.running.Store(false)

	slog.Info("app running", "segment_duration", a.cfg.Attribution.SegmentDuration())
	for {
		seg, err := a.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			a.finished.Store(true)
			slog.Info("input exhausted", "segments", a.processed.Load())
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("app: next segment: %w", err)
		}
		if err := a.process(ctx, seg); err != nil {
			return err
		}
	}
}

// process attributes one segment and hands the record to every sink.
func (a *App) process(ctx context.Context, seg segment.Segment) error {
	ctx, span := observe.StartSegmentSpan(ctx, seg.Origin)
	defer span.End()
	log := observe.Logger(ctx)

	if segment.Skippable(seg.Text) {
		reason := "transcription_error"
		if strings.TrimSpace(seg.Text) == "" {
			reason = "blank"
		}
		a.metrics.RecordSkipped(ctx, reason)
		log.Debug("segment skipped", "origin", seg.Origin, "reason", reason)
		return nil
	}

	start := time.Now()
	rec, err := a.structurer.Structure(ctx, seg.Text)
	a.metrics.AttributionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordMemoryWrite(ctx, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "attribution failed")
		log.Error("speaker memory write failed", "origin", seg.Origin, "err", err)
		return fmt.Errorf("app: attribute %s: %w", seg.Origin, err)
	}
	if rec.Rule == attribution.RuleReference {
		a.metrics.RecordMemoryWrite(ctx, "ok")
	}
	a.metrics.RecordSegment(ctx, rec.Rule.String(), rec.Changed)
	a.processed.Add(1)

	log.Info("segment attributed",
		"origin", seg.Origin,
		"speaker", rec.Speaker,
		"rule", rec.Rule.String(),
		"changed", rec.Changed,
	)

	for _, s := range a.sinks {
		if err := s.Append(rec, seg.Time); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "output failed")
			return fmt.Errorf("app: write %s: %w", seg.Origin, err)
		}
	}
	return nil
}

// Shutdown flushes the speaker memory and closes all sinks. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned. The memory flush
// always runs first.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		var errs []error
		if err := a.memory.Flush(ctx); err != nil {
			slog.Error("speaker memory flush failed", "err", err)
			errs = append(errs, fmt.Errorf("app: flush speaker memory: %w", err))
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, ctx.Err())
				shutdownErr = errors.Join(errs...)
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}

		shutdownErr = errors.Join(errs...)
		slog.Info("shutdown complete", "segments", a.processed.Load())
	})
	return shutdownErr
}
