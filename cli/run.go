package cli

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/ymjing/cloud-hypervisor/vmm"
)

var (
	runConfigPath string
	runInfoOut    string
	runProfile    bool

	runFlags vmm.Config
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load a boot image and finalize the isolated guest",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runProfile {
			defer profile.Start(profile.ProfilePath(".")).Stop()
		}

		cfg := vmm.DefaultConfig()

		if runConfigPath != "" {
			c, err := vmm.LoadConfig(runConfigPath)
			if err != nil {
				return err
			}

			cfg = c
		}

		applyFlagOverrides(cmd, &cfg)

		if err := cfg.Validate(); err != nil {
			return err
		}

		v := vmm.New(cfg)

		if err := v.Init(); err != nil {
			return err
		}
		defer v.Close()

		if err := v.Load(); err != nil {
			return err
		}

		if runInfoOut != "" {
			data, err := v.Loaded.EncodeCBOR()
			if err != nil {
				return err
			}

			if err := os.WriteFile(runInfoOut, data, 0o644); err != nil {
				return fmt.Errorf("write loaded info: %w", err)
			}
		}

		return nil
	},
}

// applyFlagOverrides copies explicitly set flags over the config file
// values.
func applyFlagOverrides(cmd *cobra.Command, cfg *vmm.Config) {
	if cmd.Flags().Changed("image") {
		cfg.Image = runFlags.Image
	}

	if cmd.Flags().Changed("cmdline") {
		cfg.CommandLine = runFlags.CommandLine
	}

	if cmd.Flags().Changed("host-data") {
		cfg.HostData = runFlags.HostData
	}

	if cmd.Flags().Changed("device") {
		cfg.Device = runFlags.Device
	}

	if cmd.Flags().Changed("cpus") {
		cfg.NCPUs = runFlags.NCPUs
	}

	if cmd.Flags().Changed("memory") {
		cfg.MemSize = runFlags.MemSize
	}

	if cmd.Flags().Changed("debug") {
		cfg.Debug = runFlags.Debug
	}
}

func init() {
	f := runCmd.Flags()

	f.StringVar(&runConfigPath, "config", "", "yaml config file")
	f.StringVarP(&runFlags.Image, "image", "i", "", "igvm boot image path")
	f.StringVarP(&runFlags.CommandLine, "cmdline", "p", "", "kernel command line")
	f.StringVar(&runFlags.HostData, "host-data", "", "hex-encoded 32-byte measurement salt")
	f.StringVarP(&runFlags.Device, "device", "D", "", "hypervisor device path")
	f.IntVarP(&runFlags.NCPUs, "cpus", "c", 1, "number of virtual processors")
	f.IntVarP(&runFlags.MemSize, "memory", "m", 1<<30, "guest RAM size in bytes")
	f.BoolVar(&runFlags.Debug, "debug", false, "disassemble the entry point after load")
	f.StringVar(&runInfoOut, "info-out", "", "write the loaded-image record as CBOR to this file")
	f.BoolVar(&runProfile, "profile", false, "write a CPU profile to the current directory")
}
