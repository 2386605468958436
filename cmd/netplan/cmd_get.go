package main

import (
	"bytes"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netplan-go/netplan/pkg/emit"
	"github.com/netplan-go/netplan/pkg/netplan"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [path]",
		Short: "Print the merged configuration, or a subtree of it",
		Long: `Get merges the YAML hierarchy and prints it in canonical form. An
optional dotted path ("ethernets.eth0.dhcp4") restricts the output to
that subtree; scalar leaves print as plain values.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := netplan.Load(rootDirFlag, 0)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := emit.DumpState(st, &buf); err != nil {
				return err
			}
			path := "network"
			if len(args) == 1 && args[0] != "all" {
				path = args[0]
				if !strings.HasPrefix(path, "network") {
					path = "network." + path
				}
			}
			return emit.DumpSubtree(path, &buf, os.Stdout)
		},
	}
	return cmd
}
