package app

import (
	"fmt"

	"github.com/MrWong99/hearscribe/internal/config"
	"github.com/MrWong99/hearscribe/internal/observe"
	"github.com/MrWong99/hearscribe/internal/resilience"
)

// NewTranscriber builds the transcription chain for cfg: the primary endpoint
// followed by its fallbacks, each instrumented under its endpoint name and
// guarded by a circuit breaker tuned by cfg.
func NewTranscriber(reg *config.Registry, cfg config.TranscriptionConfig, m *observe.Metrics) (*resilience.STTFallback, error) {
	primary, err := reg.CreateSTT(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: transcription endpoint %q: %w", cfg.Name(), err)
	}
	breaker := resilience.BreakerConfig{
		MaxFailures: cfg.MaxFailures,
		Cooldown:    cfg.Cooldown(),
	}
	chain := resilience.NewSTTFallback(InstrumentSTT(primary, cfg.Name(), m), cfg.Name(), breaker)

	for i, fb := range cfg.Fallbacks {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, fmt.Errorf("app: transcription fallback %d %q: %w", i, fb.Name(), err)
		}
		chain.AddFallback(fb.Name(), InstrumentSTT(p, fb.Name(), m))
	}
	return chain, nil
}
