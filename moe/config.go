package moe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
)

// Environment surface read by Resolve. MOELOG_PATH empty or unset disables
// recording; MOELOG_LAYER selects which MoE layer is captured (default 0).
const (
	envPrefix = "MOELOG_"
	keyPath   = "path"
	keyLayer  = "layer"
)

// RecorderConfig is the resolved, immutable recorder configuration. It is
// read once at process start and injected into NewRecorder; the hot-path
// enabled/layer checks are plain field reads.
type RecorderConfig struct {
	Enabled bool   // false when no output destination is configured
	Path    string // capture log destination
	Layer   int    // which MoE layer's decisions are captured
}

// Disabled returns a config under which every Record call is a no-op.
func Disabled() RecorderConfig {
	return RecorderConfig{}
}

// ConfigError reports a malformed value on the environment surface. It is
// recoverable: callers should fall back to disabled recording rather than
// abort inference.
type ConfigError struct {
	Key   string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("moe: invalid %s%s value %q: %v", envPrefix, strings.ToUpper(e.Key), e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Resolve reads the environment surface and returns the recorder
// configuration. An absent or empty MOELOG_PATH yields a disabled config and
// no error. A malformed MOELOG_LAYER yields a disabled config and a
// *ConfigError.
func Resolve() (RecorderConfig, error) {
	k := koanf.New(".")
	provider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(provider, nil); err != nil {
		return Disabled(), fmt.Errorf("moe: loading env config: %w", err)
	}

	path := strings.TrimSpace(k.String(keyPath))
	if path == "" {
		return Disabled(), nil
	}

	layer := 0
	// An empty layer value is treated the same as an absent one.
	if raw := strings.TrimSpace(k.String(keyLayer)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Disabled(), &ConfigError{Key: keyLayer, Value: raw, Err: err}
		}
		if n < 0 {
			return Disabled(), &ConfigError{Key: keyLayer, Value: raw, Err: fmt.Errorf("layer must be non-negative")}
		}
		layer = n
	}

	return RecorderConfig{Enabled: true, Path: path, Layer: layer}, nil
}

// ResolveOrDisabled resolves the environment surface and never fails: a
// malformed layer value logs a warning and disables recording, so inference
// is never aborted by a capture misconfiguration.
func ResolveOrDisabled() RecorderConfig {
	cfg, err := Resolve()
	if err != nil {
		logrus.Warnf("MoE capture disabled: %v", err)
		return Disabled()
	}
	return cfg
}
