// Package openai provides a batch STT provider backed by the OpenAI audio
// transcription API.
//
// Any OpenAI-compatible endpoint works, including Groq's hosted Whisper
// models:
//
//	p, err := openai.New(apiKey, "whisper-large-v3-turbo",
//	    openai.WithBaseURL("https://api.groq.com/openai/v1/"),
//	    openai.WithLanguage("en"),
//	)
//	tr, err := p.Transcribe(ctx, f, "segment-0001.wav")
package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/hearscribe/pkg/provider/stt"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI audio transcription API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	language   string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 language hint sent with every request
// (e.g., "en"). Empty lets the service detect the language.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often a request is retried after a rate limit,
// a server error, or a connection failure. The client backs off between
// attempts and honours Retry-After headers. Default: 0.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = max(n, 0)
	}
}

// New constructs a new OpenAI STT Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		base := cfg.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio io.Reader, filename string) (stt.Transcript, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai: read audio %q: %w", filename, err)
	}
	if len(data) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(data), filename, contentType(filename)),
		Model:          oai.AudioModel(p.model),
		ResponseFormat: oai.AudioResponseFormatJSON,
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai: transcribe %q: %w", filename, err)
	}
	return stt.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: p.language,
	}, nil
}

// contentType guesses the MIME type from the file extension.
func contentType(filename string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".wav"):
		return "audio/wav"
	case strings.HasSuffix(strings.ToLower(filename), ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(strings.ToLower(filename), ".flac"):
		return "audio/flac"
	case strings.HasSuffix(strings.ToLower(filename), ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(strings.ToLower(filename), ".m4a"):
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
