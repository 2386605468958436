package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netplan-go/netplan/pkg/netplan"
	"github.com/netplan-go/netplan/pkg/version"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the accepted YAML format version and available backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("netplan %s\n", version.Version)
			fmt.Println("format: 2")
			fmt.Println("backends:")
			for _, b := range netplan.Backends() {
				fmt.Printf("  - %s\n", b)
			}
			return nil
		},
	}
}
