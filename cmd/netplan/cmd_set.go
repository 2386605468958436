package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/netplan-go/netplan/pkg/emit"
	"github.com/netplan-go/netplan/pkg/util"
)

const defaultSetFile = "70-netplan-set.yaml"

func newSetCmd() *cobra.Command {
	var originHint string

	cmd := &cobra.Command{
		Use:   "set <path>=<value>",
		Short: "Write a configuration value into the YAML hierarchy",
		Long: `Set merges one key=value assignment into a file under etc/netplan.
The value is parsed as YAML, so mappings and sequences are accepted;
assigning null removes the key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eq := strings.Index(args[0], "=")
			if eq < 0 {
				return fmt.Errorf("expected <path>=<value>, got '%s'", args[0])
			}
			path, payload := args[0][:eq], args[0][eq+1:]
			if !strings.HasPrefix(path, "network") {
				path = "network." + path
			}

			var patchBuf bytes.Buffer
			if err := emit.CreatePatch(path, payload, &patchBuf); err != nil {
				return err
			}
			var patch yaml.Node
			if err := yaml.Unmarshal(patchBuf.Bytes(), &patch); err != nil {
				return err
			}

			target := filepath.Join(rootDirFlag, "etc/netplan", originHint)
			var base yaml.Node
			if data, err := os.ReadFile(target); err == nil {
				if err := yaml.Unmarshal(data, &base); err != nil {
					return fmt.Errorf("%w: %s: %v", util.ErrParse, target, err)
				}
			}
			var baseRoot *yaml.Node
			if len(base.Content) > 0 {
				baseRoot = base.Content[0]
			}
			merged := emit.MergeDocuments(baseRoot, patch.Content[0])
			ensureVersion(merged)

			var out bytes.Buffer
			enc := yaml.NewEncoder(&out)
			enc.SetIndent(2)
			if err := enc.Encode(merged); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
			return util.AtomicWrite(target, out.String(), util.SecretMode)
		},
	}
	cmd.Flags().StringVar(&originHint, "origin-hint", defaultSetFile, "Basename of the etc/netplan file receiving the change")
	return cmd
}

// ensureVersion guarantees the written file stays loadable: every
// netplan file must declare format version 2.
func ensureVersion(root *yaml.Node) {
	if root.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "network" {
			continue
		}
		network := root.Content[i+1]
		if network.Kind != yaml.MappingNode {
			return
		}
		for j := 0; j+1 < len(network.Content); j += 2 {
			if network.Content[j].Value == "version" {
				return
			}
		}
		network.Content = append(network.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "version"},
			&yaml.Node{Kind: yaml.ScalarNode, Value: "2"})
		return
	}
}
