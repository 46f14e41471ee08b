package relayclient

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// Preset describes a known relay chain: its address format and token, used
// to sanity-check configuration and to render balances in logs.
type Preset struct {
	Name          string `yaml:"name"`
	SS58Format    uint16 `yaml:"ss58_format"`
	TokenSymbol   string `yaml:"token_symbol"`
	TokenDecimals uint8  `yaml:"token_decimals"`
}

// LoadPreset reads the named chain preset bundled with the binary.
func LoadPreset(name string) (Preset, error) {
	raw, err := presetFS.ReadFile("presets/" + name + ".yaml")
	if err != nil {
		return Preset{}, fmt.Errorf("unknown type registry preset %q", name)
	}

	var p Preset
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Preset{}, fmt.Errorf("parsing preset %q: %w", name, err)
	}
	return p, nil
}
