package agent

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bridgefleet/bridgefleet/pkg/bridgectl"
	"github.com/bridgefleet/bridgefleet/pkg/ident"
)

// Env vars read once at startup. Everything has a default except the device
// identity, which falls back to the hostname.
const (
	EnvEndpoint       = "BRIDGEFLEET_ENDPOINT"
	EnvDeviceID       = "BRIDGEFLEET_DEVICE_ID"
	EnvPollIntervalMs = "BRIDGEFLEET_POLL_INTERVAL_MS"
	EnvFetchTimeoutMs = "BRIDGEFLEET_FETCH_TIMEOUT_MS"
	EnvExecTimeoutMs  = "BRIDGEFLEET_EXEC_TIMEOUT_MS"
	EnvBridgeCmd      = "BRIDGEFLEET_BRIDGE_CMD"
	EnvStopCmd        = "BRIDGEFLEET_STOP_CMD"
	EnvUpdateCmd      = "BRIDGEFLEET_UPDATE_CMD"
)

const (
	defaultEndpoint     = "http://127.0.0.1:8087/api/v1alpha1/commands/poll"
	defaultPollInterval = time.Minute
	defaultFetchTimeout = 10 * time.Second
	defaultExecTimeout  = 30 * time.Second
)

// ConfigError is fatal: the agent refuses to start on a malformed
// configuration rather than run with undefined behavior.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config is constructed once at startup and never mutated; it is shared
// read-only by the scheduler, transport and executor.
type Config struct {
	Endpoint     string
	DeviceID     ident.DeviceID
	PollInterval time.Duration
	FetchTimeout time.Duration
	ExecTimeout  time.Duration

	Bridge bridgectl.Config
}

// FromEnv builds the agent configuration from the environment. getenv is a
// parameter so tests can inject a fake environment.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Endpoint: defaultEndpoint,
		Bridge:   bridgectl.DefaultConfig(),
	}
	if v := strings.TrimSpace(getenv(EnvEndpoint)); v != "" {
		cfg.Endpoint = v
	}

	// "auto-mac" asks for a MAC-derived identity instead of a literal one;
	// useful on images where every device boots with the same hostname.
	var id ident.DeviceID
	var err error
	if strings.TrimSpace(getenv(EnvDeviceID)) == "auto-mac" {
		id, err = ident.FromMac(sha256.New())
	} else {
		id, err = ident.Resolve(getenv(EnvDeviceID))
	}
	if err != nil {
		return Config{}, &ConfigError{Key: EnvDeviceID, Err: err}
	}
	cfg.DeviceID = id

	cfg.PollInterval, err = durationMsFromEnv(getenv, EnvPollIntervalMs, defaultPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.FetchTimeout, err = durationMsFromEnv(getenv, EnvFetchTimeoutMs, defaultFetchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ExecTimeout, err = durationMsFromEnv(getenv, EnvExecTimeoutMs, defaultExecTimeout)
	if err != nil {
		return Config{}, err
	}

	if v := strings.TrimSpace(getenv(EnvBridgeCmd)); v != "" {
		cfg.Bridge.BridgeCommand = strings.Fields(v)
	}
	if v := strings.TrimSpace(getenv(EnvStopCmd)); v != "" {
		cfg.Bridge.StopCommand = strings.Fields(v)
	}
	if v := strings.TrimSpace(getenv(EnvUpdateCmd)); v != "" {
		cfg.Bridge.UpdateCommand = strings.Fields(v)
	}
	return cfg, nil
}

func durationMsFromEnv(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigError{Key: key, Err: err}
	}
	if ms <= 0 {
		return 0, &ConfigError{Key: key, Err: fmt.Errorf("must be positive, got %d", ms)}
	}
	return time.Duration(ms) * time.Millisecond, nil
}
