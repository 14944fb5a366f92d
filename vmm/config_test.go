package vmm_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ymjing/cloud-hypervisor/vmm"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "guest.yaml")
	yaml := `image: /var/lib/guests/fw.igvm
cmdline: "console=ttyS0 root=/dev/vda"
cpus: 4
memory: 2147483648
`

	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := vmm.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if c.Image != "/var/lib/guests/fw.igvm" {
		t.Errorf("Image = %q", c.Image)
	}

	if c.NCPUs != 4 || c.MemSize != 1<<31 {
		t.Errorf("NCPUs = %d MemSize = %d", c.NCPUs, c.MemSize)
	}

	// Fields the file does not set keep their defaults.
	if c.Device != vmm.DefaultConfig().Device {
		t.Errorf("Device = %q, want default", c.Device)
	}

	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*vmm.Config)
	}{
		{"no image", func(c *vmm.Config) { c.Image = "" }},
		{"zero cpus", func(c *vmm.Config) { c.NCPUs = 0 }},
		{"negative memory", func(c *vmm.Config) { c.MemSize = -1 }},
		{"misaligned memory", func(c *vmm.Config) { c.MemSize = 0x1800 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := vmm.DefaultConfig()
			c.Image = "fw.igvm"
			tt.mutate(&c)

			if err := c.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}
