package config

// ConfigDiff describes what changed between two configs. Only fields that
// are safe to apply to a running server are tracked; everything else needs
// a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DocumentsChanged is set when the instruction or knowledge source
	// moved; the gateway reloads its documents.
	DocumentsChanged bool

	// AssistantChanged is set when the persona, language defaults, sampling
	// parameters or localized texts changed. New sessions pick them up.
	AssistantChanged bool

	// RenderChanged is set when the typewriter pacing changed.
	RenderChanged bool

	// RestartRequired lists top-level sections whose changes are ignored
	// until restart.
	RestartRequired []string
}

// Empty reports whether nothing hot-reloadable or restart-relevant changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.DocumentsChanged && !d.AssistantChanged &&
		!d.RenderChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oa, na := old.Assistant, new.Assistant
	d.DocumentsChanged = oa.Instructions != na.Instructions || oa.Knowledge != na.Knowledge
	d.AssistantChanged = oa.Persona != na.Persona ||
		oa.DefaultLanguage != na.DefaultLanguage ||
		oa.Locale != na.Locale ||
		oa.Temperature != na.Temperature ||
		oa.MaxTokens != na.MaxTokens ||
		!textsEqual(oa.Texts, na.Texts)
	d.RenderChanged = old.Render != new.Render

	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providerEqual(old.Providers.LLM, new.Providers.LLM) ||
		!providerEqual(old.Providers.STT, new.Providers.STT) ||
		!providerEqual(old.Providers.TTS, new.Providers.TTS) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Notify != new.Notify {
		d.RestartRequired = append(d.RestartRequired, "notify")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	return d
}

func textsEqual(a, b map[string]LocaleTexts) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// providerEqual ignores Options, which may hold uncomparable values; an
// options-only change is picked up on the next restart anyway.
func providerEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && a.Voice == b.Voice
}
