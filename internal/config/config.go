package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ForceEntry pins a connector's reported status before discovery.
type ForceEntry struct {
	Connector string `yaml:"connector"` // e.g. HDMI-A-1
	State     string `yaml:"state"`     // on | digital | off | detect
	AltEDID   bool   `yaml:"alt_edid,omitempty"`
}

type Monitor struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // e.g. :8089
}

type Config struct {
	Driver string `yaml:"driver"` // "drm" | "sim"
	Device string `yaml:"device"` // card node for the drm driver

	Style   string   `yaml:"style"` // "legacy" | "universal"
	Pattern string   `yaml:"pattern"`
	Color   uint32   `yaml:"color"`
	Checks  []string `yaml:"checks"`

	Force []ForceEntry `yaml:"force,omitempty"`

	Monitor Monitor `yaml:"monitor"`
}

// Default is the configuration a fresh harness runs with.
func Default() *Config {
	return &Config{
		Driver:  "drm",
		Device:  "/dev/dri/card0",
		Style:   "universal",
		Pattern: "bars",
		Color:   0xFF2060C0,
		Checks:  []string{"modeset_each"},
		Monitor: Monitor{Addr: ":8089"},
	}
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
