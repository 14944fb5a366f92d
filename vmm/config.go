package vmm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ymjing/cloud-hypervisor/mshv"
)

// Config describes one guest to construct.
type Config struct {
	// Image is the path to the IGVM boot image.
	Image string `yaml:"image"`

	// CommandLine is the kernel command line, free of null bytes.
	CommandLine string `yaml:"cmdline"`

	// HostData is the hex-encoded 32-byte measurement salt. Empty means
	// an all-zero salt.
	HostData string `yaml:"host_data"`

	// Device is the hypervisor device node.
	Device string `yaml:"device"`

	// NCPUs is the virtual processor count.
	NCPUs int `yaml:"cpus"`

	// MemSize is the main RAM size in bytes.
	MemSize int `yaml:"memory"`

	// Debug enables entry-point disassembly after load.
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the defaults flags and config files override.
func DefaultConfig() Config {
	return Config{
		Device:  mshv.DevicePath,
		NCPUs:   1,
		MemSize: 1 << 30,
	}
}

// LoadConfig reads a yaml config file over the defaults.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}

	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}

	return c, nil
}

// Validate rejects configurations the loader cannot serve.
func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("no boot image configured")
	}

	if c.NCPUs < 1 {
		return fmt.Errorf("cpu count %d: need at least one", c.NCPUs)
	}

	if c.MemSize <= 0 || c.MemSize%0x1000 != 0 {
		return fmt.Errorf("memory size 0x%x: must be a positive page multiple", c.MemSize)
	}

	return nil
}
