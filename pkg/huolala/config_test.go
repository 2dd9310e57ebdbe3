package huolala_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/huolala/pkg/huolala"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := huolala.NewConfig("AK1", "S1")

	assert.Equal(t, "AK1", cfg.AppKey())
	assert.Equal(t, "S1", cfg.AppSecret())
	assert.Equal(t, "1.0", cfg.APIVersion())
	assert.False(t, cfg.Sandbox())
}

func TestNewConfig_Options(t *testing.T) {
	cfg := huolala.NewConfig("AK1", "S1", huolala.WithAPIVersion("2.0"), huolala.WithSandbox(true))

	assert.Equal(t, "2.0", cfg.APIVersion())
	assert.True(t, cfg.Sandbox())
}

func TestConfigFromMap(t *testing.T) {
	cfg, err := huolala.ConfigFromMap(map[string]any{
		"appKey":    "AK1",
		"appSecret": "S1",
		"sandbox":   true,
		"unknown":   "ignored",
		"timeout":   30,
	})
	require.NoError(t, err)

	assert.Equal(t, "AK1", cfg.AppKey())
	assert.Equal(t, "S1", cfg.AppSecret())
	assert.Equal(t, "1.0", cfg.APIVersion())
	assert.True(t, cfg.Sandbox())
}

func TestConfigFromMap_NilKeepsDefaults(t *testing.T) {
	cfg, err := huolala.ConfigFromMap(map[string]any{
		"appKey":     "AK1",
		"apiVersion": nil,
		"sandbox":    nil,
	})
	require.NoError(t, err)

	assert.Equal(t, "1.0", cfg.APIVersion())
	assert.False(t, cfg.Sandbox())
	assert.Equal(t, "", cfg.AppSecret())
}

func TestConfigFromMap_WrongType(t *testing.T) {
	_, err := huolala.ConfigFromMap(map[string]any{"sandbox": []string{"yes"}})
	assert.Error(t, err)
}

func TestConfig_JSONIncludesAllFields(t *testing.T) {
	cfg := huolala.NewConfig("AK1", "S1", huolala.WithSandbox(true))

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"appKey":"AK1","appSecret":"S1","apiVersion":"1.0","sandbox":true}`, string(data))
	assert.JSONEq(t, string(data), cfg.String())

	assert.Equal(t, map[string]any{
		"appKey":     "AK1",
		"appSecret":  "S1",
		"apiVersion": "1.0",
		"sandbox":    true,
	}, cfg.ToMap())
}

func TestConfig_RoundTripThroughMap(t *testing.T) {
	original := huolala.NewConfig("AK1", "S1", huolala.WithAPIVersion("1.1"), huolala.WithSandbox(true))

	restored, err := huolala.ConfigFromMap(original.ToMap())
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}
