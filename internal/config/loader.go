package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the known transcription provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"openai"}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. An empty document yields the defaults.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its default value.
// Roles is left empty; an empty role list selects the built-in lexicon.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = DefaultMetricsAddr
	}
	if cfg.Attribution.SegmentDurationSeconds == 0 {
		cfg.Attribution.SegmentDurationSeconds = DefaultSegmentDuration
	}
	if cfg.Attribution.MemoryFile == "" {
		cfg.Attribution.MemoryFile = DefaultMemoryFile
	}
	t := &cfg.Transcription
	if t.Provider == "" {
		t.Provider = DefaultProvider
	}
	if t.BaseURL == "" {
		t.BaseURL = DefaultBaseURL
	}
	if t.Model == "" {
		t.Model = DefaultModel
	}
	if t.Language == "" {
		t.Language = DefaultLanguage
	}
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if t.APIKey == "" {
		t.APIKey = os.Getenv(APIKeyEnv)
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = DefaultMaxRetries
	}
	if t.MaxFailures == 0 {
		t.MaxFailures = DefaultMaxFailures
	}
	if t.CooldownSeconds == 0 {
		t.CooldownSeconds = DefaultCooldownSeconds
	}
	for i := range t.Fallbacks {
		inheritEndpoint(&t.Fallbacks[i], *t)
	}
	if cfg.Output.LogFile == "" {
		cfg.Output.LogFile = DefaultLogFile
	}
	if cfg.Output.DocumentFile == "" {
		cfg.Output.DocumentFile = DefaultDocumentFile
	}
	if cfg.Output.DocumentTitle == "" {
		cfg.Output.DocumentTitle = DefaultDocumentTitle
	}
}

// inheritEndpoint copies the connection settings of parent into every unset
// field of fb.
func inheritEndpoint(fb *TranscriptionConfig, parent TranscriptionConfig) {
	if fb.Provider == "" {
		fb.Provider = parent.Provider
	}
	if fb.APIKey == "" {
		fb.APIKey = parent.APIKey
	}
	if fb.BaseURL == "" {
		fb.BaseURL = parent.BaseURL
	}
	if fb.Model == "" {
		fb.Model = parent.Model
	}
	if fb.Language == "" {
		fb.Language = parent.Language
	}
	if fb.TimeoutSeconds == 0 {
		fb.TimeoutSeconds = parent.TimeoutSeconds
	}
	if fb.MaxRetries == 0 {
		fb.MaxRetries = parent.MaxRetries
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Attribution
	if d := cfg.Attribution.SegmentDurationSeconds; d <= 0 || d > maxSegmentDuration {
		errs = append(errs, fmt.Errorf("attribution.segment_duration_seconds %d is out of range [1, %d]", d, maxSegmentDuration))
	}
	if strings.TrimSpace(cfg.Attribution.MemoryFile) == "" {
		errs = append(errs, errors.New("attribution.memory_file is required"))
	}
	seen := make(map[string]int, len(cfg.Attribution.Roles))
	for i, role := range cfg.Attribution.Roles {
		key := strings.ToLower(strings.TrimSpace(role))
		if key == "" {
			errs = append(errs, fmt.Errorf("attribution.roles[%d] is empty", i))
			continue
		}
		if strings.Contains(key, ":") {
			errs = append(errs, fmt.Errorf("attribution.roles[%d] %q must not contain ':'", i, role))
		}
		if prev, ok := seen[key]; ok {
			slog.Warn("duplicate role in attribution.roles", "role", role, "index", i, "first", prev)
			continue
		}
		seen[key] = i
	}

	// Transcription
	t := cfg.Transcription
	validateProviderName(t.Provider)
	if t.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("transcription.timeout_seconds %d must not be negative", t.TimeoutSeconds))
	}
	if t.MaxRetries < -1 || t.MaxRetries > maxRetriesLimit {
		errs = append(errs, fmt.Errorf("transcription.max_retries %d is out of range [-1, %d]", t.MaxRetries, maxRetriesLimit))
	}
	if t.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("transcription.max_failures %d must not be negative", t.MaxFailures))
	}
	if t.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("transcription.cooldown_seconds %d must not be negative", t.CooldownSeconds))
	}
	names := map[string]int{t.Name(): -1}
	for i, fb := range t.Fallbacks {
		validateProviderName(fb.Provider)
		if fb.AudioDir != "" || fb.MaxFailures != 0 || fb.CooldownSeconds != 0 || len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("transcription.fallbacks[%d] may only set provider, api_key, base_url, model, language, timeout_seconds, and max_retries", i))
		}
		if fb.TimeoutSeconds < 0 {
			errs = append(errs, fmt.Errorf("transcription.fallbacks[%d].timeout_seconds %d must not be negative", i, fb.TimeoutSeconds))
		}
		if fb.MaxRetries < -1 || fb.MaxRetries > maxRetriesLimit {
			errs = append(errs, fmt.Errorf("transcription.fallbacks[%d].max_retries %d is out of range [-1, %d]", i, fb.MaxRetries, maxRetriesLimit))
		}
		if _, dup := names[fb.Name()]; dup {
			errs = append(errs, fmt.Errorf("transcription.fallbacks[%d] duplicates endpoint %q", i, fb.Name()))
		}
		names[fb.Name()] = i
	}
	if t.AudioDir != "" {
		if t.APIKey == "" {
			errs = append(errs, fmt.Errorf("transcription.api_key is required when transcription.audio_dir is set (or set $%s)", APIKeyEnv))
		}
		if t.Model == "" {
			errs = append(errs, errors.New("transcription.model is required when transcription.audio_dir is set"))
		}
	}

	// Output
	if Enabled(cfg.Output.LogFile) && cfg.Output.LogFile == cfg.Output.DocumentFile {
		errs = append(errs, fmt.Errorf("output.log_file and output.document_file must differ; both are %q", cfg.Output.LogFile))
	}
	if Enabled(cfg.Output.DocumentFile) && cfg.Output.DocumentFile == cfg.Attribution.MemoryFile {
		errs = append(errs, fmt.Errorf("output.document_file must not be the speaker memory file %q", cfg.Attribution.MemoryFile))
	}
	if Enabled(cfg.Output.LogFile) && cfg.Output.LogFile == cfg.Attribution.MemoryFile {
		errs = append(errs, fmt.Errorf("output.log_file must not be the speaker memory file %q", cfg.Attribution.MemoryFile))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown transcription provider name, may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
