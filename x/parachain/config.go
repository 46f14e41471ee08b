package parachain

import (
	"fmt"
	"strings"
)

// EndpointName is the arbiter endpoint key for the parachain session.
const EndpointName = "para"

// Config holds parachain connection parameters.
type Config struct {
	// URLs are the candidate websocket endpoints, tried in order.
	URLs []string `mapstructure:"urls" yaml:"urls"`

	// MaxReconnects is the transparent-reconnect cap per call.
	MaxReconnects int `mapstructure:"max_reconnects" yaml:"max_reconnects"`
}

func DefaultConfig() Config {
	return Config{MaxReconnects: 2}
}

func (c Config) Validate() error {
	for _, u := range c.URLs {
		if strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://") {
			return nil
		}
	}
	return fmt.Errorf("no valid ws:// parachain urls configured")
}
