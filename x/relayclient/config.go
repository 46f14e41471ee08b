package relayclient

import (
	"fmt"
	"strings"
)

// EndpointName is the arbiter endpoint key for the relay chain session.
const EndpointName = "relay"

// Config holds relay chain connection parameters.
type Config struct {
	// URLs are the candidate websocket endpoints, tried in order.
	URLs []string `mapstructure:"urls" yaml:"urls"`

	// SS58Format of the relay chain addresses (0 polkadot, 2 kusama, 42 generic).
	SS58Format uint16 `mapstructure:"ss58_format" yaml:"ss58_format"`

	// TypeRegistryPreset names the chain preset used for validation and
	// balance formatting.
	TypeRegistryPreset string `mapstructure:"type_registry_preset" yaml:"type_registry_preset"`

	// MaxReconnects is the internal transparent-reconnect cap per call;
	// past it a Transport error surfaces to the caller.
	MaxReconnects int `mapstructure:"max_reconnects" yaml:"max_reconnects"`
}

func DefaultConfig() Config {
	return Config{
		SS58Format:         2,
		TypeRegistryPreset: "kusama",
		MaxReconnects:      2,
	}
}

func (c Config) Validate() error {
	valid := 0
	for _, u := range c.URLs {
		if strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://") {
			valid++
		}
	}
	if valid == 0 {
		return fmt.Errorf("no valid ws:// relay urls configured")
	}
	switch c.SS58Format {
	case 0, 2, 42:
	default:
		return fmt.Errorf("unsupported ss58 format %d", c.SS58Format)
	}
	if _, err := LoadPreset(c.TypeRegistryPreset); err != nil {
		return err
	}
	return nil
}
