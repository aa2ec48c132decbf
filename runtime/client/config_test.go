package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/goa-temporal/runtime/rpc"
)

const sampleConfig = `
address: temporal.internal:7233
namespace: orders
identity: billing-api
timeout: 10s
wait_for_ready: true
metadata:
  authorization: Bearer token
tls:
  ca_file: /etc/ssl/ca.pem
  server_name: temporal.internal
retry:
  initial_interval: 200ms
  backoff_coefficient: 50
  maximum_interval: 2s
  maximum_attempts: 5
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "temporal.internal:7233", cfg.Address)
	assert.Equal(t, "orders", cfg.Namespace)
	assert.Equal(t, "billing-api", cfg.Identity)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.True(t, cfg.WaitForReady)
	assert.Equal(t, map[string]string{"authorization": "Bearer token"}, cfg.Metadata)
	require.NotNil(t, cfg.TLS)
	assert.Equal(t, "/etc/ssl/ca.pem", cfg.TLS.CAFile)
	assert.Equal(t, "temporal.internal", cfg.TLS.ServerName)
	require.NotNil(t, cfg.Retry)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, 5, cfg.Retry.MaximumAttempts)
}

func TestParseConfigRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "adress: localhost:7233\n",
		"bad duration":     "timeout: soon\n",
		"numeric timeout":  "timeout: 10\n",
		"negative budget":  "retry:\n  maximum_attempts: -1\n",
		"cert without key": "tls:\n  cert_file: c.pem\n",
		"not yaml":         "address: [unterminated\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAddress, cfg.Address)
	assert.Equal(t, DefaultNamespace, cfg.Namespace)

	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	t.Setenv(EnvAddress, "override:7233")

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "override:7233", cfg.Address)
	assert.Equal(t, "orders", cfg.Namespace)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfigCallContext(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	before := time.Now()
	cc := cfg.CallContext(nil)

	deadline, ok := cc.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, before.Add(10*time.Second), deadline, time.Second)
	assert.Equal(t, []string{"Bearer token"}, cc.Metadata().Get("authorization"))
	v, _ := cc.Option(rpc.OptionWaitForReady)
	assert.Equal(t, true, v)
	assert.Equal(t, rpc.RetryOptions{
		InitialInterval:    200 * time.Millisecond,
		BackoffCoefficient: 50,
		MaximumInterval:    2 * time.Second,
		MaximumAttempts:    5,
	}, cc.RetryOptions())

	_, ok = rpc.Default().Deadline()
	assert.False(t, ok)
}

func TestRetryConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("retry:\n  maximum_attempts: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, rpc.DefaultRetryOptions().WithMaximumAttempts(2), cfg.CallContext(nil).RetryOptions())
}
