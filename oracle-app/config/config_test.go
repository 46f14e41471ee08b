package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// A valid secp256k1 key for tests only.
const testKeyHex = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func writeTestABI(t *testing.T) string {
	t.Helper()
	// The repo asset is the reference ABI; tests point at it directly.
	path, err := filepath.Abs("../../assets/oracle.json")
	require.NoError(t, err)
	return path
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WS_URL_RELAY", "wss://relay.example:9944")
	t.Setenv("WS_URL_PARA", "wss://para.example:8546")
	t.Setenv("CONTRACT_ADDRESS", "0x000000000000000000000000000000000000dEaD")
	t.Setenv("ORACLE_PRIVATE_KEY", testKeyHex)
	t.Setenv("ABI_PATH", writeTestABI(t))
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, []string{"wss://relay.example:9944"}, cfg.WSURLRelay)
	require.Equal(t, uint64(10_000_000), cfg.GasLimit)
	require.Equal(t, 180*time.Second, cfg.FrequencyOfRequests)
	require.Equal(t, uint32(10), cfg.MaxNumberOfFailureRequests)
	require.Equal(t, 60*time.Second, cfg.Timeout)
	require.Equal(t, uint16(2), cfg.SS58Format)
	require.Equal(t, "kusama", cfg.TypeRegistryPreset)
	require.Equal(t, uint32(999), cfg.ParaID)
	require.Equal(t, 8000, cfg.RESTAPIServerPort)
	require.Equal(t, "normal", cfg.OracleMode)
	require.False(t, cfg.DebugMode())
	require.Equal(t, 600*time.Second, cfg.WaitingTimeBeforeShutdown)

	key, err := cfg.PrivateKey()
	require.NoError(t, err)
	require.NotNil(t, key)
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WS_URL_RELAY", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadCommaSeparatedURLs(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WS_URL_RELAY", "wss://a.example:9944, wss://b.example:9944")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"wss://a.example:9944", "wss://b.example:9944"}, cfg.WSURLRelay)
}

func TestLoadKeyFromFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ORACLE_PRIVATE_KEY", "")

	keyPath := filepath.Join(t.TempDir(), "oracle.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(testKeyHex+"\n"), 0o600))
	t.Setenv("ORACLE_PRIVATE_KEY_PATH", keyPath)

	cfg, err := Load()
	require.NoError(t, err)

	key, err := cfg.PrivateKey()
	require.NoError(t, err)
	require.NotNil(t, key)
}

func TestLoadRejectsBothKeySources(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ORACLE_PRIVATE_KEY_PATH", "/tmp/whatever")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsMismatchedMetricsPort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROMETHEUS_METRICS_PORT", "8001")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadAcceptsMatchingMetricsPort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROMETHEUS_METRICS_PORT", "8000")

	_, err := Load()
	require.NoError(t, err)
}

func TestLoadDebugMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ORACLE_MODE", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.DebugMode())
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ORACLE_MODE", "sideways")

	_, err := Load()
	require.Error(t, err)
}

func TestWatchdogPeriodDerivation(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ERA_DURATION_IN_SECONDS", "180")
	t.Setenv("WATCHDOG_DELAY", "5")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 185*time.Second, cfg.TrackerConfig().WatchdogPeriod)
}
