package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"badgehub/internal/relay"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// RelayFile is the on-disk relay list.
type RelayFile struct {
	Relays []RelayEntry `yaml:"relays"`
}

// RelayEntry is one relay of a relay file.
type RelayEntry struct {
	URL string `yaml:"url"`
}

// LoadRelayFile reads relay URLs from a YAML file.
func LoadRelayFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file RelayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	urls := make([]string, 0, len(file.Relays))
	for _, r := range file.Relays {
		urls = append(urls, r.URL)
	}
	return mergeRelays(nil, urls), nil
}

// SaveRelayFile writes relay URLs to a YAML file, creating parent
// directories as needed.
func SaveRelayFile(path string, urls []string) error {
	file := RelayFile{}
	for _, u := range mergeRelays(nil, urls) {
		file.Relays = append(file.Relays, RelayEntry{URL: u})
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// mergeRelays appends extra to base, dropping blanks and duplicates while
// keeping order. Trailing slashes are ignored when comparing.
func mergeRelays(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, u := range list {
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			key := strings.TrimRight(strings.ToLower(u), "/")
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

// NewSource opens the relay source selected by Mode. Memory mode serves an
// empty in-process store for offline runs.
func (r RelayConfig) NewSource(logger *zap.Logger) relay.Source {
	if r.Mode == RelayModeMemory {
		return relay.NewMemorySource()
	}
	return relay.NewPool(r.URLs, relay.PoolOptions{
		DialTimeout:    r.DialTimeout,
		PublishTimeout: r.PublishTimeout,
	}, logger)
}
