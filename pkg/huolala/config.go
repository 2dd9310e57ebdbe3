// Package huolala is a client for the Huolala (货拉拉) logistics open platform.
//
// It covers the authenticated request pipeline: access-token lifecycle,
// deterministic MD5 request signing and the call orchestration that ties
// them together. Business endpoints are thin shims over Client.Call.
package huolala

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DefaultAPIVersion is used when no api version is configured.
const DefaultAPIVersion = "1.0"

// Config holds application credentials and environment selection.
// It is immutable once constructed. Its JSON form includes the secret,
// so it must not be logged.
type Config struct {
	appKey     string
	appSecret  string
	apiVersion string
	sandbox    bool
}

// ConfigOption customizes a Config at construction.
type ConfigOption func(*Config)

// WithAPIVersion overrides the default api version.
func WithAPIVersion(version string) ConfigOption {
	return func(c *Config) {
		c.apiVersion = version
	}
}

// WithSandbox selects the sandbox environment.
func WithSandbox(sandbox bool) ConfigOption {
	return func(c *Config) {
		c.sandbox = sandbox
	}
}

// NewConfig creates a Config. Credentials are not validated; bad ones fail remotely.
func NewConfig(appKey, appSecret string, opts ...ConfigOption) Config {
	cfg := Config{
		appKey:     appKey,
		appSecret:  appSecret,
		apiVersion: DefaultAPIVersion,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// configAttributes is the named attribute set accepted by ConfigFromMap.
type configAttributes struct {
	AppKey     string `mapstructure:"appKey" json:"appKey"`
	AppSecret  string `mapstructure:"appSecret" json:"appSecret"`
	APIVersion string `mapstructure:"apiVersion" json:"apiVersion"`
	Sandbox    bool   `mapstructure:"sandbox" json:"sandbox"`
}

// ConfigFromMap builds a Config from named attributes (appKey, appSecret,
// apiVersion, sandbox). Unknown keys are ignored and nil values keep defaults.
func ConfigFromMap(attrs map[string]any) (Config, error) {
	out := configAttributes{APIVersion: DefaultAPIVersion}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &out,
		ErrorUnused: false,
	})
	if err != nil {
		return Config{}, fmt.Errorf("creating config decoder: %w", err)
	}
	if err := decoder.Decode(attrs); err != nil {
		return Config{}, fmt.Errorf("decoding config attributes: %w", err)
	}

	return NewConfig(out.AppKey, out.AppSecret,
		WithAPIVersion(out.APIVersion),
		WithSandbox(out.Sandbox),
	), nil
}

// AppKey returns the application key.
func (c Config) AppKey() string { return c.appKey }

// AppSecret returns the application secret.
func (c Config) AppSecret() string { return c.appSecret }

// APIVersion returns the api version sent with every call.
func (c Config) APIVersion() string { return c.apiVersion }

// Sandbox reports whether the sandbox environment is selected.
func (c Config) Sandbox() bool { return c.sandbox }

// ToMap returns the full field set, secret included.
func (c Config) ToMap() map[string]any {
	return map[string]any{
		"appKey":     c.appKey,
		"appSecret":  c.appSecret,
		"apiVersion": c.apiVersion,
		"sandbox":    c.sandbox,
	}
}

// MarshalJSON implements json.Marshaler.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configAttributes{
		AppKey:     c.appKey,
		AppSecret:  c.appSecret,
		APIVersion: c.apiVersion,
		Sandbox:    c.sandbox,
	})
}

// String returns the JSON form of the config.
func (c Config) String() string {
	b, err := c.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}
