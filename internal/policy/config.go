// Package policy holds the runtime-mutable moderation policy: the link
// whitelist, the banned keyword list and the escalation thresholds. A single
// Store is shared by the moderation pipeline (reader) and the admin command
// surface (writer).
package policy

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default policy values.
const (
	DefaultMaxMessagesPerWindow = 6
	DefaultWindow               = 10 * time.Second
	DefaultWarnThresholdForMute = 2
	DefaultWarnThresholdForBan  = 3
	DefaultMuteDuration         = 30 * time.Minute
)

// DefaultWhitelistDomains are the apex domains links may point to.
var DefaultWhitelistDomains = []string{
	"t.me",
	"telegram.me",
	"play.google.com",
	"github.com",
	"github.io",
}

// DefaultBannedKeywords is the starting keyword list; admins extend it at runtime.
var DefaultBannedKeywords = []string{
	"xxx",
	"porn",
	"sex",
	"18+",
	"địt",
	"đụ",
	"lồn",
	"cặc",
}

// Config is the full moderation policy.
type Config struct {
	WhitelistDomains     []string
	BannedKeywords       []string
	MaxMessagesPerWindow int
	Window               time.Duration
	WarnThresholdForMute int
	WarnThresholdForBan  int
	MuteDuration         time.Duration
}

// DefaultConfig returns the built-in policy.
func DefaultConfig() Config {
	return Config{
		WhitelistDomains:     append([]string(nil), DefaultWhitelistDomains...),
		BannedKeywords:       append([]string(nil), DefaultBannedKeywords...),
		MaxMessagesPerWindow: DefaultMaxMessagesPerWindow,
		Window:               DefaultWindow,
		WarnThresholdForMute: DefaultWarnThresholdForMute,
		WarnThresholdForBan:  DefaultWarnThresholdForBan,
		MuteDuration:         DefaultMuteDuration,
	}
}

// Validate rejects policies the engine cannot act on.
func (c Config) Validate() error {
	var errs []error
	if c.MaxMessagesPerWindow <= 0 {
		errs = append(errs, fmt.Errorf("max_messages_per_window must be positive, got %d", c.MaxMessagesPerWindow))
	}
	if c.Window <= 0 {
		errs = append(errs, fmt.Errorf("window_seconds must be positive, got %s", c.Window))
	}
	if c.WarnThresholdForMute <= 0 {
		errs = append(errs, fmt.Errorf("warn_threshold_for_mute must be positive, got %d", c.WarnThresholdForMute))
	}
	if c.WarnThresholdForBan <= 0 {
		errs = append(errs, fmt.Errorf("warn_threshold_for_ban must be positive, got %d", c.WarnThresholdForBan))
	}
	if c.MuteDuration <= 0 {
		errs = append(errs, fmt.Errorf("mute_duration_seconds must be positive, got %s", c.MuteDuration))
	}
	if len(errs) > 0 {
		return fmt.Errorf("policy: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// fileConfig is the YAML layout of a policy file. Pointer fields distinguish
// "omitted" from zero so omitted values keep their defaults.
type fileConfig struct {
	WhitelistDomains     []string `yaml:"whitelist_domains"`
	BannedKeywords       []string `yaml:"banned_keywords"`
	MaxMessagesPerWindow *int     `yaml:"max_messages_per_window"`
	WindowSeconds        *int     `yaml:"window_seconds"`
	WarnThresholdForMute *int     `yaml:"warn_threshold_for_mute"`
	WarnThresholdForBan  *int     `yaml:"warn_threshold_for_ban"`
	MuteDurationSeconds  *int     `yaml:"mute_duration_seconds"`
}

// LoadFile reads a YAML policy file on top of DefaultConfig and validates the
// result.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML policy document on top of DefaultConfig.
func Parse(raw []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, fmt.Errorf("policy: decode yaml: %w", err)
	}

	cfg := DefaultConfig()
	if fc.WhitelistDomains != nil {
		cfg.WhitelistDomains = fc.WhitelistDomains
	}
	if fc.BannedKeywords != nil {
		cfg.BannedKeywords = fc.BannedKeywords
	}
	if fc.MaxMessagesPerWindow != nil {
		cfg.MaxMessagesPerWindow = *fc.MaxMessagesPerWindow
	}
	if fc.WindowSeconds != nil {
		cfg.Window = time.Duration(*fc.WindowSeconds) * time.Second
	}
	if fc.WarnThresholdForMute != nil {
		cfg.WarnThresholdForMute = *fc.WarnThresholdForMute
	}
	if fc.WarnThresholdForBan != nil {
		cfg.WarnThresholdForBan = *fc.WarnThresholdForBan
	}
	if fc.MuteDurationSeconds != nil {
		cfg.MuteDuration = time.Duration(*fc.MuteDurationSeconds) * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
