package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(vars map[string]string) func(string) string {
	return func(key string) string {
		return vars[key]
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(fakeEnv(map[string]string{
		EnvDeviceID: "bridge-01",
	}))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8087/api/v1alpha1/commands/poll", cfg.Endpoint)
	assert.Equal(t, "bridge-01", cfg.DeviceID.String())
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 30*time.Second, cfg.ExecTimeout)
	assert.NotEmpty(t, cfg.Bridge.BridgeCommand)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(fakeEnv(map[string]string{
		EnvEndpoint:       "http://fleet.internal:9000/poll",
		EnvDeviceID:       "bridge-02",
		EnvPollIntervalMs: "5000",
		EnvFetchTimeoutMs: "1500",
		EnvExecTimeoutMs:  "60000",
		EnvBridgeCmd:      "/usr/local/bin/serialbridged --config /etc/bridge.json",
	}))
	require.NoError(t, err)

	assert.Equal(t, "http://fleet.internal:9000/poll", cfg.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.FetchTimeout)
	assert.Equal(t, time.Minute, cfg.ExecTimeout)
	assert.Equal(t, []string{"/usr/local/bin/serialbridged", "--config", "/etc/bridge.json"}, cfg.Bridge.BridgeCommand)
}

func TestFromEnv_HostnameFallback(t *testing.T) {
	cfg, err := FromEnv(fakeEnv(nil))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.DeviceID.String())
}

func TestFromEnv_MalformedInterval(t *testing.T) {
	_, err := FromEnv(fakeEnv(map[string]string{
		EnvPollIntervalMs: "sixty seconds",
	}))
	require.Error(t, err)

	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, EnvPollIntervalMs, cerr.Key)
}

func TestFromEnv_NonPositiveTimeout(t *testing.T) {
	for _, raw := range []string{"0", "-100"} {
		_, err := FromEnv(fakeEnv(map[string]string{
			EnvFetchTimeoutMs: raw,
		}))

		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, EnvFetchTimeoutMs, cerr.Key)
	}
}
