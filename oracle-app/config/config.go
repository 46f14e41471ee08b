package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"

	"github.com/stakebridge/relay-oracle/server/api"
	eratracker "github.com/stakebridge/relay-oracle/x/era-tracker"
	arbiter "github.com/stakebridge/relay-oracle/x/failure-arbiter"
	"github.com/stakebridge/relay-oracle/x/parachain"
	"github.com/stakebridge/relay-oracle/x/relayclient"
	"github.com/stakebridge/relay-oracle/x/reporter"
	"github.com/stakebridge/relay-oracle/x/submitter"
)

// ModeDebug builds reports without ever submitting them.
const ModeDebug = "DEBUG"

// Config is the daemon configuration, read entirely from environment
// variables. Names match the deployment contract exactly.
type Config struct {
	WSURLRelay []string
	WSURLPara  []string

	ContractAddress string
	ABIPath         string

	privateKeyHex string

	GasLimit             uint64
	MaxPriorityFeePerGas uint64

	FrequencyOfRequests        time.Duration
	MaxNumberOfFailureRequests uint32
	Timeout                    time.Duration

	EraDurationInSeconds time.Duration
	EraDurationInBlocks  uint64
	InitialBlockNumber   uint64
	WatchdogDelay        time.Duration

	SS58Format         uint16
	TypeRegistryPreset string
	ParaID             uint32

	RESTAPIServerIPAddress string
	RESTAPIServerPort      int

	LogLevelStdout string
	OracleMode     string

	EraUpdateDelay            time.Duration
	EraDelayTime              time.Duration
	WaitingTimeBeforeShutdown time.Duration

	JournalPath string
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ABI_PATH", "assets/oracle.json")
	v.SetDefault("GAS_LIMIT", 10_000_000)
	v.SetDefault("MAX_PRIORITY_FEE_PER_GAS", 0)
	v.SetDefault("FREQUENCY_OF_REQUESTS", 180)
	v.SetDefault("MAX_NUMBER_OF_FAILURE_REQUESTS", 10)
	v.SetDefault("TIMEOUT", 60)
	v.SetDefault("ERA_DURATION_IN_SECONDS", 180)
	v.SetDefault("ERA_DURATION_IN_BLOCKS", 30)
	v.SetDefault("INITIAL_BLOCK_NUMBER", 1)
	v.SetDefault("WATCHDOG_DELAY", 5)
	v.SetDefault("SS58_FORMAT", 2)
	v.SetDefault("TYPE_REGISTRY_PRESET", "kusama")
	v.SetDefault("PARA_ID", 999)
	v.SetDefault("REST_API_SERVER_IP_ADDRESS", "0.0.0.0")
	v.SetDefault("REST_API_SERVER_PORT", 8000)
	v.SetDefault("LOG_LEVEL_STDOUT", "INFO")
	v.SetDefault("ORACLE_MODE", "normal")
	v.SetDefault("ERA_UPDATE_DELAY", 360)
	v.SetDefault("ERA_DELAY_TIME", 600)
	v.SetDefault("WAITING_TIME_BEFORE_SHUTDOWN", 600)
	v.SetDefault("JOURNAL_PATH", "")

	cfg := &Config{
		WSURLRelay:                 splitURLs(v.GetString("WS_URL_RELAY")),
		WSURLPara:                  splitURLs(v.GetString("WS_URL_PARA")),
		ContractAddress:            v.GetString("CONTRACT_ADDRESS"),
		ABIPath:                    v.GetString("ABI_PATH"),
		GasLimit:                   v.GetUint64("GAS_LIMIT"),
		MaxPriorityFeePerGas:       v.GetUint64("MAX_PRIORITY_FEE_PER_GAS"),
		FrequencyOfRequests:        time.Duration(v.GetInt64("FREQUENCY_OF_REQUESTS")) * time.Second,
		MaxNumberOfFailureRequests: v.GetUint32("MAX_NUMBER_OF_FAILURE_REQUESTS"),
		Timeout:                    time.Duration(v.GetInt64("TIMEOUT")) * time.Second,
		EraDurationInSeconds:       time.Duration(v.GetInt64("ERA_DURATION_IN_SECONDS")) * time.Second,
		EraDurationInBlocks:        v.GetUint64("ERA_DURATION_IN_BLOCKS"),
		InitialBlockNumber:         v.GetUint64("INITIAL_BLOCK_NUMBER"),
		WatchdogDelay:              time.Duration(v.GetInt64("WATCHDOG_DELAY")) * time.Second,
		SS58Format:                 uint16(v.GetUint32("SS58_FORMAT")),
		TypeRegistryPreset:         v.GetString("TYPE_REGISTRY_PRESET"),
		ParaID:                     v.GetUint32("PARA_ID"),
		RESTAPIServerIPAddress:     v.GetString("REST_API_SERVER_IP_ADDRESS"),
		RESTAPIServerPort:          v.GetInt("REST_API_SERVER_PORT"),
		LogLevelStdout:             v.GetString("LOG_LEVEL_STDOUT"),
		OracleMode:                 v.GetString("ORACLE_MODE"),
		EraUpdateDelay:             time.Duration(v.GetInt64("ERA_UPDATE_DELAY")) * time.Second,
		EraDelayTime:               time.Duration(v.GetInt64("ERA_DELAY_TIME")) * time.Second,
		WaitingTimeBeforeShutdown:  time.Duration(v.GetInt64("WAITING_TIME_BEFORE_SHUTDOWN")) * time.Second,
		JournalPath:                v.GetString("JOURNAL_PATH"),
	}

	// One HTTP surface serves both routes; a diverging metrics port is a
	// configuration error rather than a silent second listener.
	if v.IsSet("PROMETHEUS_METRICS_PORT") {
		if p := v.GetInt("PROMETHEUS_METRICS_PORT"); p != cfg.RESTAPIServerPort {
			return nil, fmt.Errorf("PROMETHEUS_METRICS_PORT (%d) must match REST_API_SERVER_PORT (%d): both routes share one listener", p, cfg.RESTAPIServerPort)
		}
	}

	key, err := resolvePrivateKey(v)
	if err != nil {
		return nil, err
	}
	cfg.privateKeyHex = key

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitURLs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// resolvePrivateKey loads the oracle key from ORACLE_PRIVATE_KEY or from the
// file at ORACLE_PRIVATE_KEY_PATH; exactly one must be configured.
func resolvePrivateKey(v *viper.Viper) (string, error) {
	inline := strings.TrimSpace(v.GetString("ORACLE_PRIVATE_KEY"))
	path := strings.TrimSpace(v.GetString("ORACLE_PRIVATE_KEY_PATH"))

	switch {
	case inline != "" && path != "":
		return "", fmt.Errorf("set either ORACLE_PRIVATE_KEY or ORACLE_PRIVATE_KEY_PATH, not both")
	case inline != "":
		return inline, nil
	case path != "":
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading ORACLE_PRIVATE_KEY_PATH: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	default:
		return "", fmt.Errorf("one of ORACLE_PRIVATE_KEY or ORACLE_PRIVATE_KEY_PATH is required")
	}
}

// PrivateKey parses the configured key. The hex value never leaves this
// package through logs or the health surface.
func (c *Config) PrivateKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid oracle private key: %w", err)
	}
	return key, nil
}

// Validate applies the startup sanity checks. Failures here are fatal.
func (c *Config) Validate() error {
	if len(c.WSURLRelay) == 0 {
		return fmt.Errorf("WS_URL_RELAY is required")
	}
	if len(c.WSURLPara) == 0 {
		return fmt.Errorf("WS_URL_PARA is required")
	}
	if strings.TrimSpace(c.ContractAddress) == "" {
		return fmt.Errorf("CONTRACT_ADDRESS is required")
	}
	if _, err := os.Stat(c.ABIPath); err != nil {
		return fmt.Errorf("ABI file not found: %s", c.ABIPath)
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("GAS_LIMIT must be positive")
	}
	if c.EraDurationInSeconds <= 0 || c.EraDurationInBlocks == 0 {
		return fmt.Errorf("era durations must be positive")
	}
	if c.FrequencyOfRequests <= 0 {
		return fmt.Errorf("FREQUENCY_OF_REQUESTS must be positive")
	}
	if c.RESTAPIServerPort <= 0 || c.RESTAPIServerPort > 65535 {
		return fmt.Errorf("REST_API_SERVER_PORT out of range: %d", c.RESTAPIServerPort)
	}
	if mode := c.OracleMode; mode != "normal" && mode != ModeDebug {
		return fmt.Errorf("ORACLE_MODE must be normal or DEBUG, got %q", mode)
	}
	if _, err := c.PrivateKey(); err != nil {
		return err
	}
	if err := c.RelayConfig().Validate(); err != nil {
		return err
	}
	if err := c.ParaConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// DebugMode reports whether report submission is disabled.
func (c *Config) DebugMode() bool {
	return c.OracleMode == ModeDebug
}

func (c *Config) RelayConfig() relayclient.Config {
	cfg := relayclient.DefaultConfig()
	cfg.URLs = c.WSURLRelay
	cfg.SS58Format = c.SS58Format
	cfg.TypeRegistryPreset = c.TypeRegistryPreset
	return cfg
}

func (c *Config) ParaConfig() parachain.Config {
	cfg := parachain.DefaultConfig()
	cfg.URLs = c.WSURLPara
	return cfg
}

func (c *Config) ArbiterConfig() arbiter.Config {
	return arbiter.Config{
		MaxFailures: c.MaxNumberOfFailureRequests,
		Cooldown:    c.Timeout,
	}
}

func (c *Config) TrackerConfig() eratracker.Config {
	return eratracker.Config{
		EraDurationInBlocks: c.EraDurationInBlocks,
		InitialBlockNumber:  c.InitialBlockNumber,
		EraUpdateDelay:      c.EraUpdateDelay,
		EraDelayTime:        c.EraDelayTime,
		WatchdogPeriod:      c.EraDurationInSeconds + c.WatchdogDelay,
	}
}

func (c *Config) SubmitterConfig() submitter.Config {
	cfg := submitter.DefaultConfig()
	cfg.GasLimit = c.GasLimit
	cfg.MaxPriorityFeePerGas = c.MaxPriorityFeePerGas
	cfg.DebugMode = c.DebugMode()
	return cfg
}

func (c *Config) ReporterConfig() reporter.Config {
	return reporter.Config{
		Frequency:          c.FrequencyOfRequests,
		ParaID:             c.ParaID,
		DebugMode:          c.DebugMode(),
		WaitBeforeShutdown: c.WaitingTimeBeforeShutdown,
	}
}

func (c *Config) APIConfig() api.Config {
	cfg := api.DefaultConfig()
	cfg.ListenAddr = fmt.Sprintf("%s:%d", c.RESTAPIServerIPAddress, c.RESTAPIServerPort)
	return cfg
}
