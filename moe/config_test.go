package moe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_NoPath_Disabled(t *testing.T) {
	t.Setenv("MOELOG_PATH", "")
	t.Setenv("MOELOG_LAYER", "")

	cfg, err := Resolve()

	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.Path)
}

func TestResolve_PathOnly_DefaultsLayerZero(t *testing.T) {
	t.Setenv("MOELOG_PATH", "/tmp/moe_routes.jsonl")
	t.Setenv("MOELOG_LAYER", "")

	cfg, err := Resolve()

	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "/tmp/moe_routes.jsonl", cfg.Path)
	assert.Equal(t, 0, cfg.Layer)
}

func TestResolve_PathAndLayer(t *testing.T) {
	t.Setenv("MOELOG_PATH", "/tmp/moe_routes.jsonl")
	t.Setenv("MOELOG_LAYER", "7")

	cfg, err := Resolve()

	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 7, cfg.Layer)
}

func TestResolve_NonNumericLayer_ConfigError(t *testing.T) {
	t.Setenv("MOELOG_PATH", "/tmp/moe_routes.jsonl")
	t.Setenv("MOELOG_LAYER", "first")

	cfg, err := Resolve()

	require.Error(t, err)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "first", cfgErr.Value)
	assert.False(t, cfg.Enabled, "malformed layer must yield a disabled config")
}

func TestResolve_NegativeLayer_ConfigError(t *testing.T) {
	t.Setenv("MOELOG_PATH", "/tmp/moe_routes.jsonl")
	t.Setenv("MOELOG_LAYER", "-3")

	_, err := Resolve()

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestResolveOrDisabled_FallsBackOnBadLayer(t *testing.T) {
	t.Setenv("MOELOG_PATH", "/tmp/moe_routes.jsonl")
	t.Setenv("MOELOG_LAYER", "not-a-number")

	cfg := ResolveOrDisabled()

	assert.False(t, cfg.Enabled, "resolver must never abort inference, only disable capture")
}

func TestDisabled_ZeroValue(t *testing.T) {
	cfg := Disabled()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 0, cfg.Layer)
}
