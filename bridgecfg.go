// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the ambient, file-loadable configuration for a Bridge: whether
// cyclic graphs are tolerated (§5, §8 scenario 3), plus MaxFixupDepth and
// ClassMemoTTL, which are decoded but not consulted anywhere (Options
// translates AllowCycles only; ApplyFixups has no depth limit). It is decoded
// the same way hector's config loader decodes its top-level Config: YAML
// primary, JSON accepted as a side effect of YAML being a JSON superset.
type Config struct {
	AllowCycles   bool `yaml:"allowCycles" json:"allowCycles"`
	MaxFixupDepth int  `yaml:"maxFixupDepth" json:"maxFixupDepth"`

	// ClassMemoTTL is accepted and decoded but not yet enforced: the
	// classdata.go memo is always-on and never evicted in v1. The field
	// exists so a config file written against a future eviction policy
	// decodes cleanly today instead of failing on an unknown key.
	ClassMemoTTL time.Duration `yaml:"classMemoTTL" json:"classMemoTTL"`
}

// defaultConfig mirrors the zero-option behavior of NewBridge: cycles
// tolerated, no fixup depth cap, no memo eviction.
func defaultConfig() Config {
	return Config{AllowCycles: true, MaxFixupDepth: 0, ClassMemoTTL: 0}
}

// LoadConfig decodes data (YAML, with JSON accepted since YAML is a JSON
// superset) into a Config, applying defaults for unset fields.
func LoadConfig(data []byte) (Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parsing bridge config: %w", err)
	}

	cfg := defaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, fmt.Errorf("building bridge config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decoding bridge config: %w", err)
	}
	return cfg, nil
}

// Options translates Config into the BridgeOptions NewBridge expects.
func (c Config) Options() []BridgeOption {
	return []BridgeOption{WithAllowCycles(c.AllowCycles)}
}
