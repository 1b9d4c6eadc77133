package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSTTProviders lists the STT backend names shipped with the server.
// [Validate] warns (but does not fail) on other names, which may belong to
// third-party backends registered at runtime.
var ValidSTTProviders = []string{"deepgram", "whisper", "mock"}

// validTermCategories mirrors the enhancer's category set for validating
// enhancement.extra_terms keys.
var validTermCategories = []string{"anatomy", "symptoms", "medications", "procedures", "conditions"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// STT backend
	if cfg.STT.Provider == "" {
		errs = append(errs, errors.New("stt.provider is required"))
	} else if !slices.Contains(ValidSTTProviders, cfg.STT.Provider) {
		slog.Warn("unknown stt provider name, may be a typo or third-party backend",
			"name", cfg.STT.Provider,
			"known", ValidSTTProviders,
		)
	}
	switch cfg.STT.Provider {
	case "deepgram":
		if cfg.STT.APIKey == "" {
			errs = append(errs, errors.New("stt.api_key is required for the deepgram backend"))
		}
	case "whisper":
		if cfg.STT.BaseURL == "" {
			errs = append(errs, errors.New("stt.base_url is required for the whisper backend"))
		}
	}
	if cfg.STT.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("stt.sample_rate %d must not be negative", cfg.STT.SampleRate))
	}
	for i, fb := range cfg.STT.Fallbacks {
		prefix := fmt.Sprintf("stt.fallbacks[%d]", i)
		switch fb.Provider {
		case "":
			errs = append(errs, fmt.Errorf("%s.provider is required", prefix))
		case "deepgram":
			if fb.APIKey == "" {
				errs = append(errs, fmt.Errorf("%s.api_key is required for the deepgram backend", prefix))
			}
		case "whisper":
			if fb.BaseURL == "" {
				errs = append(errs, fmt.Errorf("%s.base_url is required for the whisper backend", prefix))
			}
		}
	}
	for i, kw := range cfg.STT.Keywords {
		prefix := fmt.Sprintf("stt.keywords[%d]", i)
		if kw.Keyword == "" {
			errs = append(errs, fmt.Errorf("%s.keyword is required", prefix))
		}
		if kw.Boost != 0 && (kw.Boost < 1 || kw.Boost > 10) {
			errs = append(errs, fmt.Errorf("%s.boost %.1f is out of range [1, 10]", prefix, kw.Boost))
		}
	}

	// Audio ingest
	if cfg.Audio.Codec != "" && !cfg.Audio.Codec.IsValid() {
		errs = append(errs, fmt.Errorf("audio.codec %q is invalid; valid values: pcm, opus", cfg.Audio.Codec))
	}

	// Quality strategy
	if src := cfg.Quality.Source; src != "" && src != "amplitude" && src != "confidence" {
		errs = append(errs, fmt.Errorf("quality.source %q is invalid; valid values: amplitude, confidence", src))
	}

	// Enhancement extensions
	for cat := range cfg.Enhancement.ExtraTerms {
		if !slices.Contains(validTermCategories, cat) {
			errs = append(errs, fmt.Errorf("enhancement.extra_terms key %q is not a term category; valid keys: %v", cat, validTermCategories))
		}
	}

	// Archive availability
	if cfg.Archive.PostgresDSN == "" {
		slog.Warn("archive.postgres_dsn is empty; transcripts will not be archived")
	}

	return errors.Join(errs...)
}
