package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "whisper", "deepgram"},
	"tts": {"openai", "elevenlabs", "coqui"},
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %q: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. ${VAR} references are expanded from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies environment fallbacks and defaults, and validates the
// result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), os.Getenv)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills unset secrets and mail settings from the environment
// variables the widget has always used.
func applyEnv(cfg *Config) {
	setIfEmpty := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	for _, p := range []*ProviderEntry{&cfg.Providers.LLM, &cfg.Providers.STT, &cfg.Providers.TTS} {
		switch p.Name {
		case "openai":
			setIfEmpty(&p.APIKey, "OPENAI_API_KEY")
		case "elevenlabs":
			setIfEmpty(&p.APIKey, "ELEVENLABS_API_KEY")
		}
	}

	n := &cfg.Notify
	setIfEmpty(&n.AdminEmail, "ADMIN_EMAIL")
	setIfEmpty(&n.SMTP.Host, "SMTP_HOST")
	setIfEmpty(&n.SMTP.Username, "SMTP_USER")
	setIfEmpty(&n.SMTP.Password, "SMTP_PASS")
	setIfEmpty(&n.SMTP.From, "SMTP_FROM")
	if n.SMTP.Port == 0 {
		if port, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil {
			n.SMTP.Port = port
		}
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all failures.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; voice input will always fall back")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; replies will not be spoken")
	}

	a := cfg.Assistant
	if _, ok := SupportedLanguages[a.DefaultLanguage]; a.DefaultLanguage != "" && !ok {
		errs = append(errs, fmt.Errorf("assistant.default_language %q is not supported", a.DefaultLanguage))
	}
	if _, ok := SupportedLanguages[a.Locale]; a.Locale != "" && !ok {
		errs = append(errs, fmt.Errorf("assistant.locale %q is not supported", a.Locale))
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		errs = append(errs, fmt.Errorf("assistant.temperature %.2f is out of range [0, 2]", a.Temperature))
	}
	for lang := range a.Texts {
		if _, ok := SupportedLanguages[lang]; !ok {
			errs = append(errs, fmt.Errorf("assistant.texts: language %q is not supported", lang))
		}
	}

	if cfg.Notify.AdminEmail == "" {
		slog.Warn("notify.admin_email is empty; lead notifications are disabled")
	} else if cfg.Notify.SMTP.Host == "" {
		errs = append(errs, errors.New("notify.smtp.host is required when notify.admin_email is set"))
	}

	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not a known provider.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
