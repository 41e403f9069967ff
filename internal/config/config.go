// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry of the widget backend.
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

// SupportedLanguages lists the ISO 639-1 codes the assistant can be asked to
// answer in, mapped to the English language name used in prompts.
var SupportedLanguages = map[string]string{
	"pt": "Portuguese",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"nl": "Dutch",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Render     RenderConfig     `yaml:"render"`
	Notify     NotifyConfig     `yaml:"notify"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins are the origin patterns accepted for the /ws upgrade,
	// e.g. "example.com" or "*.example.com". Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxUploadBytes caps request bodies and recordings. Default 10 MiB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the provider implementation for each upstream.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider kinds. Name
// is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation, e.g. "openai".
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// Voice is the default TTS voice. Ignored by other kinds.
	Voice string `yaml:"voice"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// AssistantConfig shapes what the assistant says.
type AssistantConfig struct {
	// Persona is the opening line of the system prompt.
	Persona string `yaml:"persona"`

	// Instructions and Knowledge are document sources: a file path or an
	// http(s) URL. Missing documents degrade to empty text.
	Instructions string `yaml:"instructions"`
	Knowledge    string `yaml:"knowledge"`

	// DefaultLanguage is used when detection fails. Default "pt".
	DefaultLanguage string `yaml:"default_language"`

	// Locale is the UI language of the widget. Default: DefaultLanguage.
	Locale string `yaml:"locale"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Texts overrides the localized fallback texts per language code.
	Texts map[string]LocaleTexts `yaml:"texts"`
}

// LocaleTexts holds the localized strings the controller falls back to.
type LocaleTexts struct {
	// Greeting is shown when the welcome message cannot be generated.
	Greeting string `yaml:"greeting"`

	// Error is the assistant message for any failed turn.
	Error string `yaml:"error"`

	// GreetingPrompt asks the model for a welcome message. %s is replaced
	// with the language name.
	GreetingPrompt string `yaml:"greeting_prompt"`
}

// RenderConfig tunes the typewriter reveal.
type RenderConfig struct {
	// Speed is the delay between reveal frames. Default 50ms.
	Speed time.Duration `yaml:"speed"`

	// StartDelay is the delay before the first frame. Default 100ms.
	StartDelay time.Duration `yaml:"start_delay"`
}

// NotifyConfig configures the lead notification mail.
type NotifyConfig struct {
	// AdminEmail receives notifications. Required for the endpoint to work;
	// may come from ADMIN_EMAIL.
	AdminEmail string `yaml:"admin_email"`

	SMTP SMTPConfig `yaml:"smtp"`

	// Timeout bounds one notification attempt. Default 15s.
	Timeout time.Duration `yaml:"timeout"`
}

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// ResilienceConfig tunes the per-upstream circuit breakers.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// RequestTimeout bounds every upstream call. Default 60s.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 10 << 20
	}
	if c.Assistant.DefaultLanguage == "" {
		c.Assistant.DefaultLanguage = "pt"
	}
	if c.Assistant.Locale == "" {
		c.Assistant.Locale = c.Assistant.DefaultLanguage
	}
	if c.Assistant.Temperature == 0 {
		c.Assistant.Temperature = 0.8
	}
	if c.Assistant.MaxTokens <= 0 {
		c.Assistant.MaxTokens = 1000
	}
	if c.Render.Speed <= 0 {
		c.Render.Speed = 50 * time.Millisecond
	}
	if c.Render.StartDelay <= 0 {
		c.Render.StartDelay = 100 * time.Millisecond
	}
	if c.Notify.Timeout <= 0 {
		c.Notify.Timeout = 15 * time.Second
	}
	if c.Notify.SMTP.Port == 0 {
		c.Notify.SMTP.Port = 587
	}
	if c.Resilience.RequestTimeout <= 0 {
		c.Resilience.RequestTimeout = 60 * time.Second
	}
}

// defaultTexts are the built-in fallback texts.
var defaultTexts = map[string]LocaleTexts{
	"en": {
		Greeting:       "Hello! How can I help you today?",
		Error:          "Sorry, something went wrong. Please try again.",
		GreetingPrompt: "Generate a warm and original greeting for a new user in %s. Use the INSTRUCTIONS to define the tone and the KNOWLEDGE BASE to mention what we can help with. Keep it very short (1-2 sentences).",
	},
	"pt": {
		Greeting:       "Olá! Como posso ajudar hoje?",
		Error:          "Desculpe, ocorreu um erro. Por favor, tente novamente.",
		GreetingPrompt: "Generate a warm and original greeting for a new user in %s. Use the INSTRUCTIONS to define the tone and the KNOWLEDGE BASE to mention what we can help with. Keep it very short (1-2 sentences).",
	},
}

// TextsFor returns the fallback texts for lang. Fields missing from the
// configured texts fall back to the built-in texts of lang, then English.
func (a AssistantConfig) TextsFor(lang string) LocaleTexts {
	out := a.Texts[lang]
	builtin, ok := defaultTexts[lang]
	if !ok {
		builtin = defaultTexts["en"]
	}
	if out.Greeting == "" {
		out.Greeting = builtin.Greeting
	}
	if out.Error == "" {
		out.Error = builtin.Error
	}
	if out.GreetingPrompt == "" {
		out.GreetingPrompt = builtin.GreetingPrompt
	}
	return out
}
