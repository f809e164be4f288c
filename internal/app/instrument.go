package app

import (
	"context"
	"io"
	"time"

	"github.com/MrWong99/hearscribe/internal/observe"
	"github.com/MrWong99/hearscribe/pkg/provider/stt"
)

// instrumentedSTT records latency and request outcomes of a transcription
// provider.
type instrumentedSTT struct {
	next    stt.Provider
	name    string
	metrics *observe.Metrics
}

var _ stt.Provider = (*instrumentedSTT)(nil)

// InstrumentSTT wraps p so every Transcribe call is timed, counted, and
// traced under the provider name.
func InstrumentSTT(p stt.Provider, name string, m *observe.Metrics) stt.Provider {
	return &instrumentedSTT{next: p, name: name, metrics: m}
}

// Transcribe implements stt.Provider.
func (s *instrumentedSTT) Transcribe(ctx context.Context, audio io.Reader, filename string) (stt.Transcript, error) {
	ctx, span := observe.StartSpan(ctx, "stt.transcribe")
	defer span.End()

	start := time.Now()
	tr, err := s.next.Transcribe(ctx, audio, filename)
	s.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	s.metrics.RecordProviderRequest(ctx, s.name, status)
	return tr, err
}
