// Package config provides the configuration schema, loader, and transcription
// provider registry for hearscribe.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default values applied by [ApplyDefaults].
const (
	DefaultMetricsAddr      = ":9464"
	DefaultSegmentDuration  = 30
	DefaultMemoryFile       = "speaker_memory.txt"
	DefaultProvider         = "openai"
	DefaultBaseURL          = "https://api.groq.com/openai/v1"
	DefaultModel            = "whisper-large-v3-turbo"
	DefaultLanguage         = "en"
	DefaultLogFile          = "conversation_log.txt"
	DefaultDocumentFile     = "transcript.md"
	DefaultTimeoutSeconds   = 60
	DefaultMaxFailures      = 5
	DefaultMaxRetries       = 3
	maxRetriesLimit         = 10
	DefaultCooldownSeconds  = 30
	APIKeyEnv               = "HEARSCRIBE_API_KEY"
	DefaultDocumentTitle    = "Hearing Transcript"
	maxSegmentDuration      = 3600
)

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Attribution   AttributionConfig   `yaml:"attribution"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Output        OutputConfig        `yaml:"output"`
}

// ServerConfig holds logging and metrics settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving /metrics (e.g., ":9464").
	// Set to "off" to disable the metrics endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AttributionConfig tunes the speaker attribution engine.
type AttributionConfig struct {
	// SegmentDurationSeconds is the nominal length of one recording
	// interval. A speaker that has not changed for more than twice this
	// long is considered stale.
	SegmentDurationSeconds int `yaml:"segment_duration_seconds"`

	// MemoryFile is the path of the persistent speaker reference memory.
	MemoryFile string `yaml:"memory_file"`

	// Roles replaces the built-in role lexicon when non-empty.
	Roles []string `yaml:"roles"`

	// PhoneticMatch enables sound-alike resolution of speaker labels that
	// have no substring match in the memory (e.g., "Kramer" for "Cramer").
	PhoneticMatch bool `yaml:"phonetic_match"`
}

// SegmentDuration returns SegmentDurationSeconds as a [time.Duration].
func (a AttributionConfig) SegmentDuration() time.Duration {
	return time.Duration(a.SegmentDurationSeconds) * time.Second
}

// TranscriptionConfig selects the remote speech-to-text backend used for
// audio input. The Provider field is looked up in the [Registry].
type TranscriptionConfig struct {
	// Provider selects the registered provider implementation (e.g., "openai").
	Provider string `yaml:"provider"`

	// APIKey authenticates against the provider. When empty the value of
	// the HEARSCRIBE_API_KEY environment variable is used.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's API endpoint. Any OpenAI-compatible
	// endpoint works; the default targets Groq.
	BaseURL string `yaml:"base_url"`

	// Model selects the transcription model.
	Model string `yaml:"model"`

	// Language is the ISO-639-1 hint sent with every request.
	Language string `yaml:"language"`

	// TimeoutSeconds bounds a single transcription request.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxRetries is how often a request is retried, with backoff, after a
	// rate limit, a server error, or a connection failure. Failover to the
	// fallbacks starts only once the retries are used up. -1 disables
	// retries.
	MaxRetries int `yaml:"max_retries"`

	// AudioDir is the directory of recorded segments to transcribe. Empty
	// means segments are read as text instead.
	AudioDir string `yaml:"audio_dir"`

	// MaxFailures is the number of consecutive failed requests after which
	// an endpoint is skipped for CooldownSeconds.
	MaxFailures int `yaml:"max_failures"`

	// CooldownSeconds is how long a failing endpoint is skipped before it
	// is probed again.
	CooldownSeconds int `yaml:"cooldown_seconds"`

	// Fallbacks are tried in order when this endpoint fails. Unset fields
	// are inherited from the enclosing entry; audio_dir, max_failures,
	// cooldown_seconds, and nested fallbacks are not allowed here.
	Fallbacks []TranscriptionConfig `yaml:"fallbacks"`
}

// Cooldown returns CooldownSeconds as a [time.Duration].
func (t TranscriptionConfig) Cooldown() time.Duration {
	return time.Duration(t.CooldownSeconds) * time.Second
}

// Name labels the endpoint in logs and metrics: the provider name, plus the
// base URL when one is set.
func (t TranscriptionConfig) Name() string {
	if t.BaseURL == "" {
		return t.Provider
	}
	return t.Provider + "@" + t.BaseURL
}

// Timeout returns TimeoutSeconds as a [time.Duration].
func (t TranscriptionConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// OutputConfig names the files the annotated transcript is written to.
type OutputConfig struct {
	// LogFile receives one timestamped line per record. "off" disables it.
	LogFile string `yaml:"log_file"`

	// DocumentFile is the Markdown transcript rewritten after every record.
	// "off" disables it.
	DocumentFile string `yaml:"document_file"`

	// DocumentTitle is the heading of the Markdown transcript.
	DocumentTitle string `yaml:"document_title"`
}

// Disabled is the value that switches off an optional address or file.
const Disabled = "off"

// Enabled reports whether an optional address or file setting is in use.
func Enabled(v string) bool {
	return v != "" && v != Disabled
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
