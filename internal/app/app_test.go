package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/hearscribe/internal/app"
	"github.com/MrWong99/hearscribe/internal/attribution"
	"github.com/MrWong99/hearscribe/internal/config"
	"github.com/MrWong99/hearscribe/internal/observe"
	"github.com/MrWong99/hearscribe/internal/segment"
	"github.com/MrWong99/hearscribe/internal/speakermem"
	"github.com/MrWong99/hearscribe/internal/transcript"
	"github.com/MrWong99/hearscribe/pkg/provider/stt"
	"github.com/MrWong99/hearscribe/pkg/provider/stt/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

var fixed = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixed }

// testConfig returns defaults with every file output and the listener off.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.MetricsAddr = config.Disabled
	cfg.Output.LogFile = config.Disabled
	cfg.Output.DocumentFile = config.Disabled
	return cfg
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func counter(t *testing.T, reader *sdkmetric.ManualReader, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", name)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
					return dp.Value
				}
			}
		}
	}
	return 0
}

// recordingSink captures appended records.
type recordingSink struct {
	mu      sync.Mutex
	records []transcript.Record
	times   []time.Time
	closed  bool
	err     error
}

func (s *recordingSink) Append(rec transcript.Record, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	s.times = append(s.times, at)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.String()
	}
	return out
}

// blockingSource yields nothing until its context is cancelled.
type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) (segment.Segment, error) {
	<-ctx.Done()
	return segment.Segment{}, ctx.Err()
}

const hearing = `Chairman Smith: the hearing will come to order.
[Request Error: Transcription failed]
The chair recognizes the senator from Ohio.

Thank you, I have concerns about the budget.
Why was the program delayed?
`

func lines(text string) segment.Source {
	return segment.NewLineSource("test", strings.NewReader(text), segment.WithClock(clock))
}

func shutdown(t *testing.T, a *app.App) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.Shutdown(ctx)
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestNew_RequiresSource(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(), app.WithMemoryStore(speakermem.NewMemStore()))
	if err == nil {
		t.Fatal("expected error without a segment source")
	}
}

func TestApp_RunToCompletion(t *testing.T) {
	t.Parallel()

	store := speakermem.NewMemStore()
	sink := &recordingSink{}
	m, reader := newTestMetrics(t)

	a, err := app.New(context.Background(), testConfig(),
		app.WithSource(lines(hearing)),
		app.WithMemoryStore(store),
		app.WithSinks(sink),
		app.WithMetrics(m),
		app.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"**Chairman Smith:** Chairman Smith: the hearing will come to order.",
		"**Senator From Ohio:** The chair recognizes the senator from Ohio.",
		"**Senator From Ohio:** Thank you, I have concerns about the budget.",
		"**Chairman Smith:** Why was the program delayed?",
	}
	got := sink.lines()
	if len(got) != len(want) {
		t.Fatalf("records = %d, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %q, want %q", i, got[i], want[i])
		}
	}
	if sink.times[0] != fixed {
		t.Errorf("record time = %v, want segment time %v", sink.times[0], fixed)
	}
	if a.Processed() != 4 {
		t.Errorf("Processed() = %d, want 4", a.Processed())
	}
	if name, ok := a.Memory().Lookup("senator from ohio"); !ok || name != "Senator From Ohio" {
		t.Errorf("memory Lookup = (%q, %v)", name, ok)
	}

	if got := counter(t, reader, "hearscribe.segments.skipped", "reason", "transcription_error"); got != 1 {
		t.Errorf("skipped transcription errors = %d, want 1", got)
	}
	if got := counter(t, reader, "hearscribe.segments", "rule", "carry_over"); got != 1 {
		t.Errorf("carry_over segments = %d, want 1", got)
	}
	if got := counter(t, reader, "hearscribe.memory.writes", "status", "ok"); got != 1 {
		t.Errorf("memory writes = %d, want 1", got)
	}

	savesBefore := store.Saves()
	if err := shutdown(t, a); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if store.Saves() != savesBefore+1 {
		t.Errorf("Shutdown did not flush memory: saves %d -> %d", savesBefore, store.Saves())
	}
	if !sink.closed {
		t.Error("sink not closed on Shutdown")
	}
	if err := shutdown(t, a); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestApp_PersistenceFailureStops(t *testing.T) {
	t.Parallel()

	store := speakermem.NewMemStore()
	store.SaveErr = errors.New("read-only file system")
	sink := &recordingSink{}
	m, reader := newTestMetrics(t)

	a, err := app.New(context.Background(), testConfig(),
		app.WithSource(lines(hearing)),
		app.WithMemoryStore(store),
		app.WithSinks(sink),
		app.WithMetrics(m),
		app.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = a.Run(context.Background())
	if !errors.Is(err, store.SaveErr) {
		t.Fatalf("Run error = %v, want wrapped %v", err, store.SaveErr)
	}
	if n := len(sink.lines()); n != 1 {
		t.Errorf("records before failure = %d, want 1", n)
	}
	if got := counter(t, reader, "hearscribe.memory.writes", "status", "error"); got != 1 {
		t.Errorf("failed memory writes = %d, want 1", got)
	}

	if err := shutdown(t, a); !errors.Is(err, store.SaveErr) {
		t.Errorf("Shutdown error = %v, want flush failure", err)
	}
	if !sink.closed {
		t.Error("sink not closed after failed flush")
	}
}

func TestApp_SinkFailureStops(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{err: errors.New("disk full")}
	a, err := app.New(context.Background(), testConfig(),
		app.WithSource(lines(hearing)),
		app.WithMemoryStore(speakermem.NewMemStore()),
		app.WithSinks(sink),
		app.WithMetrics(func() *observe.Metrics { m, _ := newTestMetrics(t); return m }()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Run(context.Background()); !errors.Is(err, sink.err) {
		t.Fatalf("Run error = %v, want %v", err, sink.err)
	}
}

func TestApp_CancelledRunFlushesOnShutdown(t *testing.T) {
	t.Parallel()

	store := speakermem.NewMemStore()
	m, _ := newTestMetrics(t)
	a, err := app.New(context.Background(), testConfig(),
		app.WithSource(blockingSource{}),
		app.WithMemoryStore(store),
		app.WithSinks(),
		app.WithMetrics(m),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return within 5s after cancellation")
	}

	if err := shutdown(t, a); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if store.Saves() != 1 {
		t.Errorf("Saves() = %d, want 1 (flush on shutdown)", store.Saves())
	}
}

func TestApp_Handler(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	a, err := app.New(context.Background(), testConfig(),
		app.WithSource(lines("")),
		app.WithMemoryStore(speakermem.NewMemStore()),
		app.WithSinks(),
		app.WithMetrics(m),
		app.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("hearscribe_segments_total 0\n"))
		})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/readyz", http.StatusServiceUnavailable, "not started"},
		{"/metrics", http.StatusOK, "hearscribe_segments_total"},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", tc.path, nil))
		if rec.Code != tc.wantStatus {
			t.Errorf("%s status = %d, want %d", tc.path, rec.Code, tc.wantStatus)
		}
		if !strings.Contains(rec.Body.String(), tc.wantBody) {
			t.Errorf("%s body = %q, want it to contain %q", tc.path, rec.Body.String(), tc.wantBody)
		}
	}

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if !strings.Contains(rec.Body.String(), "input exhausted") {
		t.Errorf("/readyz after Run = %q, want input exhausted", rec.Body.String())
	}
}

func TestApp_FileOutputsAndListener(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := testConfig()
	cfg.Server.MetricsAddr = "127.0.0.1:0"
	cfg.Attribution.MemoryFile = filepath.Join(dir, "speaker_memory.txt")
	cfg.Output.LogFile = filepath.Join(dir, "conversation_log.txt")
	cfg.Output.DocumentFile = filepath.Join(dir, "transcript.md")

	m, _ := newTestMetrics(t)
	a, err := app.New(context.Background(), cfg,
		app.WithSource(lines(hearing)),
		app.WithMetrics(m),
		app.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the input was exhausted")
	}
	if err := shutdown(t, a); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	memData, err := os.ReadFile(cfg.Attribution.MemoryFile)
	if err != nil {
		t.Fatalf("read memory: %v", err)
	}
	if !strings.Contains(string(memData), "senator from ohio: Senator From Ohio\n") {
		t.Errorf("memory file missing new reference:\n%s", memData)
	}
	if !strings.Contains(string(memData), "chairman: Chairman Smith\n") {
		t.Errorf("memory file missing default reference:\n%s", memData)
	}

	logData, err := os.ReadFile(cfg.Output.LogFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	logLines := strings.Split(strings.TrimSpace(string(logData)), "\n")
	if len(logLines) != 4 {
		t.Fatalf("log lines = %d, want 4:\n%s", len(logLines), logData)
	}
	if want := "[2025-03-04 10:00:00] **Chairman Smith:** Chairman Smith: the hearing will come to order."; logLines[0] != want {
		t.Errorf("log line 0 = %q, want %q", logLines[0], want)
	}

	docData, err := os.ReadFile(cfg.Output.DocumentFile)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if !strings.Contains(string(docData), "**Chairman Smith:** Why was the program delayed?\n\n") {
		t.Errorf("document missing last record:\n%s", docData)
	}
}

func TestApp_RolesFromConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Attribution.Roles = []string{"witness"}
	sink := &recordingSink{}
	m, _ := newTestMetrics(t)

	a, err := app.New(context.Background(), cfg,
		app.WithSource(lines("Witness Jones: I was there.\nSenator Cramer: thank you.\n")),
		app.WithMemoryStore(speakermem.NewMemStore()),
		app.WithSinks(sink),
		app.WithMetrics(m),
		app.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sink.records[0]; got.Speaker != "Witness Jones" || got.Rule != attribution.RuleExplicit {
		t.Errorf("record 0 = %+v, want explicit Witness Jones", got)
	}
}

func TestInstrumentSTT(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	inner := &mock.Provider{Responses: []stt.Transcript{{Text: "hello"}}}
	p := app.InstrumentSTT(inner, "openai", m)

	tr, err := p.Transcribe(context.Background(), strings.NewReader("audio"), "a.wav")
	if err != nil || tr.Text != "hello" {
		t.Fatalf("Transcribe = (%+v, %v)", tr, err)
	}
	inner.Err = errors.New("boom")
	if _, err := p.Transcribe(context.Background(), strings.NewReader("audio"), "b.wav"); err == nil {
		t.Fatal("expected error from wrapped provider")
	}

	if got := counter(t, reader, "hearscribe.provider.requests", "status", "ok"); got != 1 {
		t.Errorf("ok requests = %d, want 1", got)
	}
	if got := counter(t, reader, "hearscribe.provider.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
}

func TestNewTranscriber_FailsOverToFallback(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	providers := map[string]*mock.Provider{
		"https://primary.example/v1":  {Err: errors.New("503 service unavailable")},
		"https://fallback.example/v1": {Responses: []stt.Transcript{{Text: "Senator Warren: thank you."}}},
	}
	reg := config.NewRegistry()
	reg.RegisterSTT("openai", func(c config.TranscriptionConfig) (stt.Provider, error) {
		p, ok := providers[c.BaseURL]
		if !ok {
			return nil, errors.New("unexpected endpoint " + c.BaseURL)
		}
		return p, nil
	})

	cfg := config.TranscriptionConfig{
		Provider:        "openai",
		BaseURL:         "https://primary.example/v1",
		MaxFailures:     1,
		CooldownSeconds: 60,
		Fallbacks: []config.TranscriptionConfig{
			{Provider: "openai", BaseURL: "https://fallback.example/v1"},
		},
	}
	chain, err := app.NewTranscriber(reg, cfg, m)
	if err != nil {
		t.Fatalf("NewTranscriber: %v", err)
	}
	want := []string{"openai@https://primary.example/v1", "openai@https://fallback.example/v1"}
	if got := chain.Names(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Names = %v, want %v", got, want)
	}

	for _, name := range []string{"segment-001.wav", "segment-002.wav"} {
		tr, err := chain.Transcribe(context.Background(), strings.NewReader("RIFF"), name)
		if err != nil {
			t.Fatalf("Transcribe(%s): %v", name, err)
		}
		if tr.Text != "Senator Warren: thank you." {
			t.Errorf("Text = %q", tr.Text)
		}
	}

	// The primary's circuit opened after one failure, so the second segment
	// went straight to the fallback.
	if got := providers["https://primary.example/v1"].CallCount(); got != 1 {
		t.Errorf("primary calls = %d, want 1", got)
	}
	if got := counter(t, reader, "hearscribe.provider.requests", "provider", want[1]); got != 2 {
		t.Errorf("fallback requests = %d, want 2", got)
	}
}

func TestNewTranscriber_UnknownProvider(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	_, err := app.NewTranscriber(config.NewRegistry(), config.TranscriptionConfig{Provider: "whisper-local"}, m)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}
