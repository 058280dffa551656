package config

// ConfigDiff describes what changed between two configs.
// Only the log level is applied at runtime; every other tracked change needs a
// restart and is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the sections whose changes take effect only after
	// a restart ("server.listen_addr", "speech", "storage" ...).
	RestartRequired []string
}

// Changed reports whether anything tracked differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.Environment != new.Server.Environment {
		d.RestartRequired = append(d.RestartRequired, "server.environment")
	}
	if old.Server.DevBypass != new.Server.DevBypass {
		d.RestartRequired = append(d.RestartRequired, "server.dev_bypass")
	}
	if old.Speech != new.Speech {
		d.RestartRequired = append(d.RestartRequired, "speech")
	}
	if !samePremium(old.Premium, new.Premium) {
		d.RestartRequired = append(d.RestartRequired, "premium")
	}
	if !sameGenerate(old.Generate, new.Generate) {
		d.RestartRequired = append(d.RestartRequired, "generate")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func samePremium(a, b PremiumConfig) bool {
	return a.Endpoint == b.Endpoint &&
		a.Voice == b.Voice &&
		a.MaxTextLength == b.MaxTextLength &&
		a.Player == b.Player &&
		sameEntry(a.Synthesizer, b.Synthesizer) &&
		sameEntries(a.Fallbacks, b.Fallbacks)
}

func sameGenerate(a, b GenerateConfig) bool {
	return a.Temperature == b.Temperature &&
		a.RetryTemperature == b.RetryTemperature &&
		a.MaxTokens == b.MaxTokens &&
		sameEntry(a.Provider, b.Provider) &&
		sameEntries(a.Fallbacks, b.Fallbacks)
}

// sameEntry ignores Options; provider-specific tuning is not tracked.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

func sameEntries(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameEntry(a[i], b[i]) {
			return false
		}
	}
	return true
}
