package submitter

import (
	"fmt"
	"time"
)

// Config holds transaction composition parameters.
type Config struct {
	// GasLimit is the fixed gas limit attached to every report.
	GasLimit uint64 `mapstructure:"gas_limit" yaml:"gas_limit"`

	// MaxPriorityFeePerGas is the EIP-1559 tip in wei.
	MaxPriorityFeePerGas uint64 `mapstructure:"max_priority_fee_per_gas" yaml:"max_priority_fee_per_gas"`

	// ReceiptPollInterval paces the waitMined loop.
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval" yaml:"receipt_poll_interval"`

	// ReceiptTimeout bounds how long one submission waits to be mined.
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout" yaml:"receipt_timeout"`

	// DebugMode builds and logs reports without ever signing or sending.
	DebugMode bool `mapstructure:"debug_mode" yaml:"debug_mode"`
}

func DefaultConfig() Config {
	return Config{
		GasLimit:             10_000_000,
		MaxPriorityFeePerGas: 0,
		ReceiptPollInterval:  3 * time.Second,
		ReceiptTimeout:       5 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.GasLimit == 0 {
		return fmt.Errorf("gas limit must be positive")
	}
	if c.ReceiptPollInterval <= 0 {
		return fmt.Errorf("receipt poll interval must be positive")
	}
	if c.ReceiptTimeout <= 0 {
		return fmt.Errorf("receipt timeout must be positive")
	}
	return nil
}
