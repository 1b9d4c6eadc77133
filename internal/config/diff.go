package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; backend or
// transport changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// KeywordsChanged is true when the engine keyword boost list changed.
	// The new list can be pushed to live recognition streams.
	KeywordsChanged bool
	NewKeywords     []KeywordConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.STT.Keywords, new.STT.Keywords) {
		d.KeywordsChanged = true
		d.NewKeywords = new.STT.Keywords
	}

	return d
}
