// Package config loads and validates the node's YAML configuration
// file: gopkg.in/yaml.v3 unmarshalled onto a struct that already
// carries defaults, so any key absent from the file keeps its default
// value and any key present overrides it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
)

// LoRa holds the lora sub-block, only meaningful when "lora" is one of
// the enabled transports.
type LoRa struct {
	Channel int    `yaml:"channel"`
	Region  string `yaml:"region"`
}

// Config mirrors every option spec.md §6 enumerates under
// "Configuration (recognized options, enumerated)".
type Config struct {
	EnabledTransports       []string `yaml:"enabled_transports"`
	DTNEnabled              bool     `yaml:"dtn_enabled"`
	DTNBudgetBytes          int      `yaml:"dtn_budget_bytes"`
	DTNDefaultTTLMs         int      `yaml:"dtn_default_ttl_ms"`
	MessageTTL              int      `yaml:"message_ttl"`
	PeerIdleEvictionMs      int      `yaml:"peer_idle_eviction_ms"`
	SyncDebounceMs          int      `yaml:"sync_debounce_ms"`
	SyncDeadlineMs          int      `yaml:"sync_deadline_ms"`
	TrustMode               string   `yaml:"trust_mode"`
	LoRa                    *LoRa    `yaml:"lora,omitempty"`
	KeyDerivationWorkFactor int      `yaml:"key_derivation_work_factor"`
}

// validTransports is the closed set spec.md §4.4 names.
var validTransports = map[string]bool{"ble": true, "local-net": true, "lora": true}

// Default returns the documented defaults (spec.md §6, the same
// figures pkg/mesh, pkg/bundle and pkg/syncer hardcode as their own
// DefaultConfig values).
func Default() Config {
	return Config{
		EnabledTransports:       []string{"local-net"},
		DTNEnabled:              true,
		DTNBudgetBytes:          8 << 20,
		DTNDefaultTTLMs:         int(72 * time.Hour / time.Millisecond),
		MessageTTL:              8,
		PeerIdleEvictionMs:      int(10 * time.Minute / time.Millisecond),
		SyncDebounceMs:          200,
		SyncDeadlineMs:          10_000,
		TrustMode:               "tofu",
		KeyDerivationWorkFactor: 1 << 15,
	}
}

// Load reads and validates a YAML config file at path, filling in
// Default() for every key the file omits.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, meshcoreerr.New(meshcoreerr.KindStorage, "config-read-failed", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, meshcoreerr.New(meshcoreerr.KindValidation, "config-parse-failed", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a config spec.md §7 would classify as an
// input/validation error, before the caller ever tries to use it.
func (c Config) Validate() error {
	if len(c.EnabledTransports) == 0 {
		return meshcoreerr.New(meshcoreerr.KindValidation, "no-transports", fmt.Errorf("config: enabled_transports must name at least one transport"))
	}
	loraEnabled := false
	for _, t := range c.EnabledTransports {
		if !validTransports[t] {
			return meshcoreerr.New(meshcoreerr.KindValidation, "bad-transport", fmt.Errorf("config: unknown transport %q", t))
		}
		if t == "lora" {
			loraEnabled = true
		}
	}
	if loraEnabled && c.LoRa == nil {
		return meshcoreerr.New(meshcoreerr.KindValidation, "missing-lora-block", fmt.Errorf("config: lora is enabled but the lora: block is missing"))
	}
	switch c.TrustMode {
	case "tofu", "strict":
	default:
		return meshcoreerr.New(meshcoreerr.KindValidation, "bad-trust-mode", fmt.Errorf("config: trust_mode must be %q or %q, got %q", "tofu", "strict", c.TrustMode))
	}
	if c.DTNBudgetBytes <= 0 {
		return meshcoreerr.New(meshcoreerr.KindValidation, "bad-dtn-budget", fmt.Errorf("config: dtn_budget_bytes must be positive"))
	}
	if c.MessageTTL <= 0 || c.MessageTTL > 255 {
		return meshcoreerr.New(meshcoreerr.KindValidation, "bad-message-ttl", fmt.Errorf("config: message_ttl must be in 1..255"))
	}
	if c.KeyDerivationWorkFactor <= 0 || c.KeyDerivationWorkFactor&(c.KeyDerivationWorkFactor-1) != 0 {
		return meshcoreerr.New(meshcoreerr.KindValidation, "bad-kdf-work-factor", fmt.Errorf("config: key_derivation_work_factor must be a power of two"))
	}
	return nil
}

// HasTransport reports whether name is in EnabledTransports.
func (c Config) HasTransport(name string) bool {
	for _, t := range c.EnabledTransports {
		if t == name {
			return true
		}
	}
	return false
}

// DTNDefaultTTL is DTNDefaultTTLMs as a time.Duration.
func (c Config) DTNDefaultTTL() time.Duration { return time.Duration(c.DTNDefaultTTLMs) * time.Millisecond }

// PeerIdleEviction is PeerIdleEvictionMs as a time.Duration.
func (c Config) PeerIdleEviction() time.Duration {
	return time.Duration(c.PeerIdleEvictionMs) * time.Millisecond
}

// SyncDebounce is SyncDebounceMs as a time.Duration.
func (c Config) SyncDebounce() time.Duration { return time.Duration(c.SyncDebounceMs) * time.Millisecond }

// SyncDeadline is SyncDeadlineMs as a time.Duration.
func (c Config) SyncDeadline() time.Duration { return time.Duration(c.SyncDeadlineMs) * time.Millisecond }
