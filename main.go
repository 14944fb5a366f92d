package main

import (
	"fmt"
	"os"

	"github.com/ymjing/cloud-hypervisor/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "igvm-boot:", err)
		os.Exit(1)
	}
}
