package reporter

import (
	"fmt"
	"time"
)

// Config holds the orchestrator's pacing and shutdown parameters.
type Config struct {
	// Frequency is the monitoring tick interval.
	Frequency time.Duration `mapstructure:"frequency" yaml:"frequency"`

	// ParaID selects the parachain sovereign account whose relay balance
	// is sampled each era.
	ParaID uint32 `mapstructure:"para_id" yaml:"para_id"`

	// DebugMode keeps the reporter from advancing its last-reported era;
	// the submitter builds but never broadcasts.
	DebugMode bool `mapstructure:"debug_mode" yaml:"debug_mode"`

	// WaitBeforeShutdown is the grace between a fatal skew detection and
	// process exit.
	WaitBeforeShutdown time.Duration `mapstructure:"wait_before_shutdown" yaml:"wait_before_shutdown"`
}

func DefaultConfig() Config {
	return Config{
		Frequency:          180 * time.Second,
		ParaID:             999,
		WaitBeforeShutdown: 600 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.Frequency <= 0 {
		return fmt.Errorf("monitoring frequency must be positive")
	}
	if c.WaitBeforeShutdown < 0 {
		return fmt.Errorf("shutdown grace must not be negative")
	}
	return nil
}
