// Package appinfo reports which build of badgehub is running and where.
package appinfo

import (
	"os"
	"runtime/debug"
	"strings"
)

// Name is the product name used in user agents and logs.
const Name = "badgehub"

const unknownVersion = "0.0.0-unknown"

var environmentAliases = map[string]string{
	"":            "development",
	"dev":         "development",
	"development": "development",
	"test":        "test",
	"testing":     "test",
	"stage":       "staging",
	"staging":     "staging",
	"prod":        "production",
	"production":  "production",
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// GetEnvironment reads ENVIRONMENT or GO_ENV and folds the usual short
// forms onto development, test, staging and production. Unknown names are
// returned as given.
func GetEnvironment() string {
	raw := firstEnv("ENVIRONMENT", "GO_ENV")
	if env, ok := environmentAliases[strings.ToLower(raw)]; ok {
		return env
	}
	return raw
}

// GetVersion prefers VERSION or APP_VERSION, then the module version
// stamped into the binary, then a short VCS revision.
func GetVersion() string {
	if v := firstEnv("VERSION", "APP_VERSION"); v != "" {
		return v
	}
	if v := buildVersion(); v != "" {
		return v
	}
	return unknownVersion
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	for _, s := range info.Settings {
		if s.Key != "vcs.revision" || s.Value == "" {
			continue
		}
		rev := s.Value
		if len(rev) > 12 {
			rev = rev[:12]
		}
		return rev
	}
	return ""
}

// UserAgent is sent on outbound HTTP requests.
func UserAgent() string {
	return Name + "/" + GetVersion()
}
