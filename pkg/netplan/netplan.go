// Package netplan ties the pipeline together: layered parsing, state
// import and the cleanup-then-generate renderer pass. The command line
// frontend is a thin shim over this package.
package netplan

import (
	"path/filepath"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/parser"
	"github.com/netplan-go/netplan/pkg/render/networkd"
	"github.com/netplan-go/netplan/pkg/render/nm"
	"github.com/netplan-go/netplan/pkg/render/ovs"
	"github.com/netplan-go/netplan/pkg/render/sriov"
	"github.com/netplan-go/netplan/pkg/state"
	"github.com/netplan-go/netplan/pkg/util"
)

// Load parses the layered YAML hierarchy under rootdir and imports it
// into a fresh State.
func Load(rootdir string, flags parser.Flags) (*state.State, error) {
	p := parser.New()
	p.SetFlags(flags)
	if err := p.LoadYAMLHierarchy(rootdir); err != nil {
		return nil, err
	}
	st := state.New()
	if err := st.Import(p); err != nil {
		return nil, err
	}
	return st, nil
}

// Generate runs the full pipeline: load, validate, then let every
// renderer clean up its previously generated files and write fresh
// ones. With the ValidationOnly flag no file is touched.
func Generate(rootdir string, flags parser.Flags) (*state.State, error) {
	st, err := Load(rootdir, flags)
	if err != nil {
		return nil, err
	}
	if st.ValidationOnly() {
		return st, nil
	}
	if err := CleanupAll(rootdir); err != nil {
		return nil, err
	}
	if err := networkd.WriteState(st, rootdir); err != nil {
		return nil, err
	}
	if err := nm.WriteState(st, rootdir); err != nil {
		return nil, err
	}
	if err := ovs.WriteState(st, rootdir); err != nil {
		return nil, err
	}
	if err := sriov.Finish(st, rootdir); err != nil {
		return nil, err
	}
	util.Logger.WithField("netdefs", st.Len()).Debug("generation finished")
	return st, nil
}

// CleanupAll removes every generated artifact of every renderer.
// Deletion is idempotent and bounded by the renderers' documented
// globs.
func CleanupAll(rootdir string) error {
	if err := networkd.Cleanup(rootdir); err != nil {
		return err
	}
	if err := nm.Cleanup(rootdir); err != nil {
		return err
	}
	if err := ovs.Cleanup(rootdir); err != nil {
		return err
	}
	return sriov.Cleanup(rootdir)
}

// DeleteConnection removes the generated artifacts of a single
// definition across all renderers.
func DeleteConnection(id, rootdir string) error {
	if err := nm.DeleteConnection(id, rootdir); err != nil {
		return err
	}
	globs := []string{
		"run/systemd/network/10-netplan-" + util.URIEscape(id) + ".*",
		"run/udev/rules.d/99-netplan-" + id + ".rules",
		"run/netplan/wpa-" + id + ".conf",
		"run/systemd/system/netplan-wpa-" + util.SystemdEscape(id) + ".service",
	}
	for _, g := range globs {
		if err := util.CleanupGlob(filepath.Join(rootdir, g)); err != nil {
			return err
		}
	}
	return nil
}

// Backends lists the renderer backends a definition may target.
func Backends() []string {
	return []string{
		netdef.BackendNetworkd.String(),
		netdef.BackendNM.String(),
		netdef.BackendOVS.String(),
	}
}
