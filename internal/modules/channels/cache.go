package channels

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const ruleCacheVersion = 1

type ruleCacheFile struct {
	Version     int    `msgpack:"version"`
	Fingerprint string `msgpack:"fingerprint"`
	Rules       []Rule `msgpack:"rules"`
}

// RuleCache persists a generated rule dictionary as msgpack. Entries are tied
// to a catalogue fingerprint so a changed catalogue invalidates the file.
type RuleCache struct {
	path string
	log  zerolog.Logger
}

// NewRuleCache creates a cache backed by a file path
func NewRuleCache(path string, log zerolog.Logger) *RuleCache {
	return &RuleCache{
		path: path,
		log:  log.With().Str("component", "rule_cache").Logger(),
	}
}

// Load returns cached rules for a fingerprint. A missing or stale file is a
// miss, not an error.
func (c *RuleCache) Load(fingerprint string) ([]Rule, bool, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rule cache: %w", err)
	}

	var file ruleCacheFile
	if err := msgpack.Unmarshal(data, &file); err != nil {
		return nil, false, fmt.Errorf("failed to decode rule cache: %w", err)
	}
	if file.Version != ruleCacheVersion || file.Fingerprint != fingerprint {
		c.log.Debug().Str("path", c.path).Msg("Rule cache is stale")
		return nil, false, nil
	}
	return file.Rules, true, nil
}

// Save writes rules for a fingerprint, replacing the file atomically
func (c *RuleCache) Save(fingerprint string, rules []Rule) error {
	data, err := msgpack.Marshal(ruleCacheFile{
		Version:     ruleCacheVersion,
		Fingerprint: fingerprint,
		Rules:       rules,
	})
	if err != nil {
		return fmt.Errorf("failed to encode rule cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create rule cache directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write rule cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace rule cache: %w", err)
	}

	c.log.Debug().Str("path", c.path).Int("rules", len(rules)).Msg("Saved rule cache")
	return nil
}

// Fingerprint hashes the catalogue content and extra overrides that rules
// are generated from
func Fingerprint(entities []Entity, extra []Rule) string {
	h := sha256.New()
	fmt.Fprintf(h, "v%d\x1e", ruleCacheVersion)
	for _, e := range entities {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%s\x1e", e.Code, e.Name, e.EnAcronym, e.FrAcronym)
	}
	for _, r := range overrideRules {
		fmt.Fprintf(h, "%s\x1f%v\x1e", r.Code, r.Patterns)
	}
	for _, r := range extra {
		fmt.Fprintf(h, "%s\x1f%v\x1e", r.Code, r.Patterns)
	}
	return hex.EncodeToString(h.Sum(nil))
}
