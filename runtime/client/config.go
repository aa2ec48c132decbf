package client

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"goa.design/goa-temporal/runtime/rpc"
)

// Environment variables overriding the configuration file.
const (
	EnvAddress   = "WFCLIENT_ADDRESS"
	EnvNamespace = "WFCLIENT_NAMESPACE"
)

// Defaults applied by LoadConfig.
const (
	DefaultAddress   = "127.0.0.1:7233"
	DefaultNamespace = "default"
)

//go:embed schema.json
var configSchema []byte

type (
	// Config is the file based client configuration.
	Config struct {
		Address      string            `yaml:"address"`
		Namespace    string            `yaml:"namespace"`
		Identity     string            `yaml:"identity"`
		Timeout      time.Duration     `yaml:"timeout"`
		WaitForReady bool              `yaml:"wait_for_ready"`
		Metadata     map[string]string `yaml:"metadata"`
		TLS          *TLSConfig        `yaml:"tls"`
		Retry        *RetryConfig      `yaml:"retry"`
	}

	// TLSConfig is the TLS section of Config.
	TLSConfig struct {
		CAFile     string `yaml:"ca_file"`
		CertFile   string `yaml:"cert_file"`
		KeyFile    string `yaml:"key_file"`
		ServerName string `yaml:"server_name"`
	}

	// RetryConfig is the retry section of Config.
	RetryConfig struct {
		InitialInterval    time.Duration `yaml:"initial_interval"`
		BackoffCoefficient *float64      `yaml:"backoff_coefficient"`
		MaximumInterval    time.Duration `yaml:"maximum_interval"`
		MaximumAttempts    int           `yaml:"maximum_attempts"`
	}
)

// LoadConfig reads the YAML configuration at path, validates it and applies
// environment overrides and defaults. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("client: read config: %w", err)
		}
		parsed, err := ParseConfig(data)
		if err != nil {
			return nil, fmt.Errorf("client: %s: %w", path, err)
		}
		cfg = *parsed
	}
	cfg.Address = envOr(EnvAddress, cfg.Address)
	cfg.Namespace = envOr(EnvNamespace, cfg.Namespace)
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	return &cfg, nil
}

// ParseConfig validates data against the configuration schema and decodes it.
func ParseConfig(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if doc != nil {
		if err := validateConfig(doc); err != nil {
			return nil, err
		}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// validateConfig validates a decoded YAML document. The document goes through
// a JSON round trip so numbers have the representation the validator expects.
func validateConfig(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config is not representable as JSON: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(configSchema))
	if err != nil {
		return fmt.Errorf("unmarshal config schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", schemaDoc); err != nil {
		return fmt.Errorf("add config schema: %w", err)
	}
	schema, err := c.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// CallContext returns the call context described by the configuration,
// derived from base. The timeout is converted into a deadline relative to
// now, so a fresh context should be built for every call.
func (c *Config) CallContext(base *rpc.CallContext) *rpc.CallContext {
	cc := rpc.OrDefault(base)
	if c.Timeout > 0 {
		cc = cc.WithTimeout(c.Timeout)
	}
	for k, v := range c.Metadata {
		cc = cc.WithMetadataValue(k, v)
	}
	if c.WaitForReady {
		cc = cc.WithOption(rpc.OptionWaitForReady, true)
	}
	if c.Retry != nil {
		cc = cc.WithRetryOptions(c.Retry.options())
	}
	return cc
}

func (r *RetryConfig) options() rpc.RetryOptions {
	o := rpc.DefaultRetryOptions().
		WithMaximumInterval(r.MaximumInterval).
		WithMaximumAttempts(r.MaximumAttempts)
	if r.InitialInterval > 0 {
		o = o.WithInitialInterval(r.InitialInterval)
	}
	if r.BackoffCoefficient != nil {
		o = o.WithBackoffCoefficient(*r.BackoffCoefficient)
	}
	return o
}

// DialConfig connects to the server described by cfg. Namespace and identity
// from cfg override those in opts.
func DialConfig(cfg *Config, opts Options) (*Client, error) {
	opts.Namespace = cfg.Namespace
	if cfg.Identity != "" {
		opts.Identity = cfg.Identity
	}
	if cfg.TLS == nil {
		return Dial(cfg.Address, opts)
	}
	return DialTLS(cfg.Address, TLSOptions{
		CAFile:     cfg.TLS.CAFile,
		CertFile:   cfg.TLS.CertFile,
		KeyFile:    cfg.TLS.KeyFile,
		ServerName: cfg.TLS.ServerName,
	}, opts)
}

// envOr returns the environment variable value or a default.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
