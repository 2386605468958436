// netplan — declarative network configuration compiler
//
// Usage:
//
//	netplan generate [--root-dir /] [--ignore-errors] [--validate-only]
//	netplan get [network.ethernets.eth0.dhcp4]
//	netplan set network.ethernets.eth0.dhcp4=true
//	netplan info
//
// The heavy lifting lives in the library packages; this binary only
// parses arguments and maps them onto the pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/netplan-go/netplan/pkg/util"
	"github.com/netplan-go/netplan/pkg/version"
)

var (
	rootDirFlag string
	verboseFlag bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "netplan",
		Short: "Declarative network configuration for systemd-networkd and NetworkManager",
		Long: `Netplan reads layered YAML network descriptions from
{lib,etc,run}/netplan/*.yaml, validates them, and compiles native
configuration for a renderer backend (systemd-networkd, NetworkManager
or OpenVSwitch).`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verboseFlag {
				util.SetLogLevel("debug")
			}
			if !term.IsTerminal(int(os.Stderr.Fd())) {
				util.Logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&rootDirFlag, "root-dir", "/", "Read YAML below and write generated files below this directory")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output")
	rootCmd.Version = version.Version

	rootCmd.AddCommand(
		newGenerateCmd(),
		newGetCmd(),
		newSetCmd(),
		newInfoCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "netplan: %v\n", err)
		os.Exit(1)
	}
}
