package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPaths lists the config file locations probed by [Find], in order.
// The containerised location is preferred over the local fallback.
var DefaultPaths = []string{
	"/app/config/config.yaml",
	"config/config.yaml",
}

// knownTranslationProviders lists the provider kinds the translation router
// can construct. Used by [Validate] to warn about unrecognised names.
var knownTranslationProviders = []string{"deeplx", "deeplx_v2", "openai"}

// Find returns the first existing path from [DefaultPaths], or an error when
// no config file is present at any known location.
func Find() (string, error) {
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("config: no config file found (tried %v): %w", DefaultPaths, os.ErrNotExist)
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
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
// validates the result. Useful in tests where configs are constructed from
// string literals.
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

// ApplyDefaults fills zero-valued tuning knobs with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Translation.MaxRetries <= 0 {
		cfg.Translation.MaxRetries = 3
	}
	if cfg.Translation.BaseDelay <= 0 {
		cfg.Translation.BaseDelay = 3 * time.Second
	}
	if cfg.Translation.RequestInterval <= 0 {
		cfg.Translation.RequestInterval = time.Second
	}
	if cfg.Translation.ChunkSize == 0 {
		cfg.Translation.ChunkSize = 2000
	}
	if cfg.Servers.Transcribe.Timeout <= 0 {
		cfg.Servers.Transcribe.Timeout = 300 * time.Second
	}
	if cfg.App.UploadFolder == "" {
		cfg.App.UploadFolder = "uploads"
	}
	if cfg.App.OutputFolder == "" {
		cfg.App.OutputFolder = "outputs"
	}
	if cfg.Hotwords.SimilarityThreshold == 0 {
		cfg.Hotwords.SimilarityThreshold = 0.82
	}
	if cfg.Hotwords.SettingsPath == "" {
		cfg.Hotwords.SettingsPath = "hotword_settings.json"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Translation.ChunkSize < 1000 || cfg.Translation.ChunkSize > 4000 {
		errs = append(errs, fmt.Errorf("translation.chunk_size %d is out of range [1000, 4000]", cfg.Translation.ChunkSize))
	}

	// Named OpenAI endpoints: duplicates break config_name resolution.
	openaiSeen := make(map[string]int, len(cfg.Tokens.OpenAI))
	for i, ep := range cfg.Tokens.OpenAI {
		prefix := fmt.Sprintf("tokens.openai[%d]", i)
		if ep.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := openaiSeen[ep.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tokens.openai[%d]", prefix, ep.Name, prev))
		}
		openaiSeen[ep.Name] = i
	}

	for i, svc := range cfg.Translation.Services {
		prefix := fmt.Sprintf("translation.services[%d]", i)
		if svc.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if !knownProvider(svc.Name) {
			slog.Warn("unknown translation provider name — may be a typo",
				"name", svc.Name,
				"known", knownTranslationProviders,
			)
		}
		// A missing config_name is a skip at chain-build time, not an error.
		if svc.Name == "openai" && svc.Enabled {
			if _, ok := openaiSeen[svc.ConfigName]; !ok {
				slog.Warn("openai translation service references an unknown tokens.openai entry; it will be skipped",
					"config_name", svc.ConfigName,
				)
			}
		}
		if svc.Name == "deeplx" && svc.Enabled && cfg.DeepLX.APIURL == "" {
			errs = append(errs, fmt.Errorf("%s: deeplx is enabled but deeplx.api_url is not set", prefix))
		}
		if svc.Name == "deeplx_v2" && svc.Enabled && cfg.DeepLX.APIV2URL == "" {
			errs = append(errs, fmt.Errorf("%s: deeplx_v2 is enabled but deeplx.api_v2_url is not set", prefix))
		}
	}

	for i, srv := range cfg.Servers.Transcribe.Servers {
		prefix := fmt.Sprintf("servers.transcribe.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required", prefix))
		} else if u, err := url.Parse(srv.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s.url %q is not an absolute URL", prefix, srv.URL))
		}
	}
	if len(cfg.Servers.Transcribe.Servers) == 0 && cfg.Servers.Transcribe.DefaultURL == "" {
		slog.Warn("no ASR backends configured; transcription requests will fail")
	}

	if cfg.App.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("app.max_file_size %d must not be negative", cfg.App.MaxFileSize))
	}

	if cfg.Hotwords.SimilarityThreshold < 0 || cfg.Hotwords.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("hotwords.similarity_threshold %.2f is out of range [0, 1]", cfg.Hotwords.SimilarityThreshold))
	}

	return errors.Join(errs...)
}

func knownProvider(name string) bool {
	for _, k := range knownTranslationProviders {
		if name == k {
			return true
		}
	}
	return false
}

// OpenAIEndpointByName returns the named tokens.openai entry, or false when
// no entry matches.
func (c *Config) OpenAIEndpointByName(name string) (OpenAIEndpoint, bool) {
	for _, ep := range c.Tokens.OpenAI {
		if ep.Name == name {
			return ep, true
		}
	}
	return OpenAIEndpoint{}, false
}
