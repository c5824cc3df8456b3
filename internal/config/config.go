// Package config provides the configuration schema and loader for the
// subpipe subtitle-acquisition server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the subpipe server.
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

// Config is the root configuration structure for subpipe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Tokens      TokensConfig      `yaml:"tokens"`
	DeepLX      DeepLXConfig      `yaml:"deeplx"`
	Translation TranslationConfig `yaml:"translation"`
	Servers     ServersConfig     `yaml:"servers"`
	Cookies     string            `yaml:"cookies"`
	App         AppConfig         `yaml:"app"`
	Hotwords    HotwordConfig     `yaml:"hotwords"`
}

// ServerConfig holds network and logging settings for the subpipe server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// TokensConfig groups credentials for external services.
type TokensConfig struct {
	// Readwise is the Bearer token for the Readwise egress. Empty disables it.
	Readwise string `yaml:"readwise"`

	// OpenAI lists named OpenAI-compatible endpoints usable as translation
	// providers (referenced by translation.services[].config_name).
	OpenAI []OpenAIEndpoint `yaml:"openai"`

	// DeepL is an optional auth header value for DeepL-protocol endpoints.
	DeepL string `yaml:"deepl"`
}

// OpenAIEndpoint describes one named OpenAI-compatible chat endpoint.
type OpenAIEndpoint struct {
	// Name is the identifier referenced from the translation provider chain.
	Name string `yaml:"name"`

	// APIKey is the authentication key for the endpoint.
	APIKey string `yaml:"api_key"`

	// APIEndpoint overrides the default OpenAI base URL. Leave empty to use
	// the provider's built-in default.
	APIEndpoint string `yaml:"api_endpoint"`

	// Model selects the chat model (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Prompt overrides the default system prompt template. The placeholder
	// {target_lang} is replaced with the target language name.
	Prompt string `yaml:"prompt"`
}

// DeepLXConfig holds DeepLX-protocol endpoint addresses.
type DeepLXConfig struct {
	APIURL   string `yaml:"api_url"`
	APIV2URL string `yaml:"api_v2_url"`
}

// TranslationConfig configures the translation provider chain and its
// retry/backoff behaviour.
type TranslationConfig struct {
	// Services is the ordered provider chain, tried by ascending priority.
	Services []TranslationService `yaml:"services"`

	// MaxRetries is the per-provider attempt limit. Default: 3.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay is the linear backoff unit between attempts. Default: 3s.
	BaseDelay time.Duration `yaml:"base_delay"`

	// RequestInterval is the minimum spacing between chunk requests. Default: 1s.
	RequestInterval time.Duration `yaml:"request_interval"`

	// ChunkSize is the target chunk length in characters. Default: 2000,
	// valid range [1000, 4000].
	ChunkSize int `yaml:"chunk_size"`
}

// UnmarshalYAML decodes the duration knobs from strings like "3s" or "500ms".
func (c *TranslationConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Services        []TranslationService `yaml:"services"`
		MaxRetries      int                  `yaml:"max_retries"`
		BaseDelay       string               `yaml:"base_delay"`
		RequestInterval string               `yaml:"request_interval"`
		ChunkSize       int                  `yaml:"chunk_size"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	baseDelay, err := parseDuration("translation.base_delay", raw.BaseDelay)
	if err != nil {
		return err
	}
	interval, err := parseDuration("translation.request_interval", raw.RequestInterval)
	if err != nil {
		return err
	}
	*c = TranslationConfig{
		Services:        raw.Services,
		MaxRetries:      raw.MaxRetries,
		BaseDelay:       baseDelay,
		RequestInterval: interval,
		ChunkSize:       raw.ChunkSize,
	}
	return nil
}

// TranslationService selects one provider in the chain.
type TranslationService struct {
	// Name is the provider kind: "deeplx", "deeplx_v2", or "openai".
	Name string `yaml:"name"`

	// Enabled toggles the provider without removing it from the file.
	Enabled bool `yaml:"enabled"`

	// Priority orders the chain; lower values are tried first.
	Priority int `yaml:"priority"`

	// ConfigName references a tokens.openai entry for "openai" providers.
	ConfigName string `yaml:"config_name"`
}

// ServersConfig groups backend service pools.
type ServersConfig struct {
	Transcribe TranscribeConfig `yaml:"transcribe"`
}

// TranscribeConfig configures the ASR backend pool.
type TranscribeConfig struct {
	// Servers is the backend pool, ranked by ascending priority.
	Servers []TranscribeServer `yaml:"servers"`

	// Timeout is the per-chunk recognition deadline. Default: 300s.
	Timeout time.Duration `yaml:"timeout"`

	// DefaultURL is used when the pool is empty.
	DefaultURL string `yaml:"default_url"`
}

// UnmarshalYAML decodes the per-chunk timeout from strings like "300s".
func (c *TranscribeConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Servers    []TranscribeServer `yaml:"servers"`
		Timeout    string             `yaml:"timeout"`
		DefaultURL string             `yaml:"default_url"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	timeout, err := parseDuration("servers.transcribe.timeout", raw.Timeout)
	if err != nil {
		return err
	}
	*c = TranscribeConfig{
		Servers:    raw.Servers,
		Timeout:    timeout,
		DefaultURL: raw.DefaultURL,
	}
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// TranscribeServer describes one ASR backend.
type TranscribeServer struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Priority int    `yaml:"priority"`
}

// AppConfig holds filesystem roots and upload limits.
type AppConfig struct {
	// UploadFolder receives raw uploads and downloaded media.
	UploadFolder string `yaml:"upload_folder"`

	// OutputFolder receives generated subtitle artifacts.
	OutputFolder string `yaml:"output_folder"`

	// MaxFileSize caps accepted uploads in bytes. Zero means no limit.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// HotwordConfig tunes hotword generation and post-correction.
type HotwordConfig struct {
	// SettingsPath is the JSON file holding runtime hotword settings.
	SettingsPath string `yaml:"settings_path"`

	// SimilarityThreshold is the minimum post-correction match score.
	// Default: 0.82.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// Replacements is the curated literal-replacement table applied after
	// similarity matching (known phonetic confusions).
	Replacements map[string]string `yaml:"replacements"`

	// CategoryFiles maps category names to word-list file paths consumed by
	// the hotword generator.
	CategoryFiles map[string]string `yaml:"category_files"`
}
