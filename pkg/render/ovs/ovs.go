// Package ovs renders OpenVSwitch-managed definitions into systemd
// oneshot units driving ovs-vsctl, ordered so bridges exist before the
// bonds and ports that attach to them, plus a global finalization unit
// for the open_vswitch table.
package ovs

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/state"
	"github.com/netplan-go/netplan/pkg/util"
)

const vsctl = "/usr/bin/ovs-vsctl"

// Cleanup removes every unit a previous generation pass produced.
func Cleanup(rootdir string) error {
	globs := []string{
		"run/systemd/system/netplan-ovs-*.service",
		"run/systemd/system/systemd-networkd.service.wants/netplan-ovs-*.service",
	}
	for _, g := range globs {
		if err := util.CleanupGlob(filepath.Join(rootdir, g)); err != nil {
			return err
		}
	}
	return nil
}

// WriteState renders every OVS-managed definition plus the global
// finalization unit.
func WriteState(st *state.State, rootdir string) error {
	wroteAny := false
	for _, d := range st.NetDefs() {
		if d.Backend != netdef.BackendOVS {
			continue
		}
		if err := Write(st, d, rootdir); err != nil {
			return err
		}
		wroteAny = true
	}
	if wroteAny || st.OVS() != nil {
		return Finish(st, rootdir)
	}
	return nil
}

// unitName returns the oneshot unit for a definition.
func unitName(id string) string {
	return "netplan-ovs-" + util.SystemdEscape(id) + ".service"
}

// Write renders the per-definition unit.
func Write(st *state.State, d *netdef.NetDef, rootdir string) error {
	if err := validate(st, d); err != nil {
		return err
	}
	var deps []string
	if d.Type.IsPhysical() {
		deps = append(deps, "sys-subsystem-net-devices-"+util.SystemdEscape(d.ID)+".device")
	}
	for _, dep := range ovsDependencies(st, d) {
		deps = append(deps, unitName(dep))
	}

	starts, stops, err := commands(st, d)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("[Unit]\n")
	fmt.Fprintf(&sb, "Description=OpenVSwitch configuration for %s\n", d.ID)
	sb.WriteString("DefaultDependencies=no\n")
	sb.WriteString("Wants=ovsdb-server.service\nAfter=ovsdb-server.service\n")
	for _, dep := range deps {
		fmt.Fprintf(&sb, "Requires=%s\nAfter=%s\n", dep, dep)
	}
	sb.WriteString("Before=network.target\nWants=network.target\n\n")
	sb.WriteString("[Service]\nType=oneshot\nTimeoutStartSec=10s\n")
	for _, c := range starts {
		fmt.Fprintf(&sb, "ExecStart=%s %s\n", vsctl, c)
	}
	for _, c := range stops {
		fmt.Fprintf(&sb, "ExecStop=%s %s\n", vsctl, c)
	}

	unit := unitName(d.ID)
	path := filepath.Join(rootdir, "run/systemd/system", unit)
	if err := util.AtomicWrite(path, sb.String(), util.ConfigMode); err != nil {
		return err
	}
	return util.EnableUnit(rootdir, unit, "systemd-networkd.service.wants")
}

// ovsDependencies lists other OVS definitions that must be configured
// first: a bond, patch port or member needs its bridge, and a bond
// member its bond. A patch port's peer is not a dependency.
func ovsDependencies(st *state.State, d *netdef.NetDef) []string {
	var deps []string
	if d.BridgeID != "" {
		deps = append(deps, d.BridgeID)
	}
	if d.BondID != "" {
		deps = append(deps, d.BondID)
	}
	return deps
}

var ovsBondModes = map[string]bool{
	"active-backup": true,
	"balance-tcp":   true,
	"balance-slb":   true,
}

func validate(st *state.State, d *netdef.NetDef) error {
	switch d.Type {
	case netdef.TypeBond:
		parent := d.BridgeLink()
		if parent == nil || parent.Backend != netdef.BackendOVS {
			return util.NewSemanticError(d.ID, "OpenVSwitch bond needs to be a member of an OpenVSwitch bridge")
		}
		if len(bondMembers(st, d)) < 2 {
			return util.NewSemanticError(d.ID, "OpenVSwitch bond needs at least two member interfaces")
		}
		if m := d.BondParams.Mode; m != "" && !ovsBondModes[m] {
			return util.NewSemanticError(d.ID, "bond mode '%s' is not supported by OpenVSwitch", m)
		}
	case netdef.TypePort:
		if d.PeerID == "" {
			return util.NewSemanticError(d.ID, "OpenVSwitch patch port needs a 'peer'")
		}
	}
	if d.OVS != nil && d.OVS.Controller != nil {
		for _, target := range d.OVS.Controller.Addresses {
			if err := checkControllerTarget(d, target); err != nil {
				return err
			}
		}
		if hasSSLTarget(d.OVS.Controller.Addresses) {
			global := st.OVS()
			if global == nil || global.SSL == nil ||
				global.SSL.CACert == "" || global.SSL.ClientCert == "" || global.SSL.ClientKey == "" {
				return util.NewSemanticError(d.ID, "'ssl:' controller targets need the global openvswitch ssl configuration")
			}
		}
	}
	return nil
}

func hasSSLTarget(targets []string) bool {
	for _, t := range targets {
		if strings.HasPrefix(t, "ssl:") || strings.HasPrefix(t, "pssl:") {
			return true
		}
	}
	return false
}

func checkControllerTarget(d *netdef.NetDef, target string) error {
	for _, prefix := range []string{"tcp:", "ssl:", "unix:", "ptcp:", "pssl:", "punix:"} {
		if strings.HasPrefix(target, prefix) {
			rest := strings.TrimPrefix(target, prefix)
			if rest == "" && (prefix == "ptcp:" || prefix == "pssl:") {
				// listening targets accept a bare default port
				return nil
			}
			if rest == "" {
				return util.NewSemanticError(d.ID, "invalid controller target '%s'", target)
			}
			return nil
		}
	}
	return util.NewSemanticError(d.ID, "invalid controller target '%s'", target)
}

func bondMembers(st *state.State, bond *netdef.NetDef) []string {
	var out []string
	for _, d := range st.NetDefs() {
		if d.BondID == bond.ID {
			out = append(out, d.ID)
		}
	}
	return out
}

// commands builds the ExecStart/ExecStop ovs-vsctl argument lines.
func commands(st *state.State, d *netdef.NetDef) (starts, stops []string, err error) {
	switch d.Type {
	case netdef.TypeBridge:
		starts = append(starts, "--may-exist add-br "+d.ID)
		stops = append(stops, "del-br "+d.ID)
		// plain members are attached here; bonds and patch ports run
		// their own units ordered after this one
		for _, m := range st.NetDefs() {
			if m.BridgeID == d.ID && m.Type != netdef.TypeBond && m.Type != netdef.TypePort {
				starts = append(starts, fmt.Sprintf("--may-exist add-port %s %s", d.ID, m.ID))
			}
		}
		if o := d.OVS; o != nil {
			if o.FailMode != "" {
				starts = append(starts, fmt.Sprintf("set-fail-mode %s %s", d.ID, o.FailMode))
			}
			if o.McastSnooping.IsSet() {
				starts = append(starts, fmt.Sprintf("set Bridge %s mcast_snooping_enable=%v", d.ID, o.McastSnooping.Value()))
			}
			if o.RSTP.IsSet() {
				starts = append(starts, fmt.Sprintf("set Bridge %s rstp_enable=%v", d.ID, o.RSTP.Value()))
			}
			if len(o.Protocols) > 0 {
				starts = append(starts, fmt.Sprintf("set Bridge %s protocols=%s", d.ID, strings.Join(o.Protocols, ",")))
			}
			if o.Controller != nil && len(o.Controller.Addresses) > 0 {
				starts = append(starts, fmt.Sprintf("set-controller %s %s", d.ID, strings.Join(o.Controller.Addresses, " ")))
				if o.Controller.ConnectionMode != "" {
					starts = append(starts, fmt.Sprintf("set Controller %s connection-mode=%s", d.ID, o.Controller.ConnectionMode))
				}
				stops = append(stops, "del-controller "+d.ID)
			}
			starts = append(starts, settingsCommands("Bridge", d.ID, o)...)
		}
	case netdef.TypeBond:
		bridge := d.BridgeID
		members := bondMembers(st, d)
		starts = append(starts, fmt.Sprintf("--may-exist add-bond %s %s %s", bridge, d.ID, strings.Join(members, " ")))
		stops = append(stops, fmt.Sprintf("del-port %s %s", bridge, d.ID))
		if o := d.OVS; o != nil {
			if o.LACP != "" {
				starts = append(starts, fmt.Sprintf("set Port %s lacp=%s", d.ID, o.LACP))
			}
			starts = append(starts, settingsCommands("Port", d.ID, o)...)
		}
		if m := d.BondParams.Mode; m != "" {
			starts = append(starts, fmt.Sprintf("set Port %s bond_mode=%s", d.ID, m))
		}
	case netdef.TypePort:
		bridge := d.BridgeID
		if bridge == "" {
			return nil, nil, util.NewSemanticError(d.ID, "OpenVSwitch patch port needs to be a member of a bridge or bond")
		}
		starts = append(starts,
			fmt.Sprintf("--may-exist add-port %s %s -- set Interface %s type=patch options:peer=%s",
				bridge, d.ID, d.ID, d.PeerID))
		stops = append(stops, fmt.Sprintf("del-port %s %s", bridge, d.ID))
		if o := d.OVS; o != nil {
			starts = append(starts, settingsCommands("Port", d.ID, o)...)
		}
	default:
		// a physical interface enslaved to an OVS bridge
		if d.BridgeID == "" {
			return nil, nil, util.NewSemanticError(d.ID, "OpenVSwitch definition must be a bridge, bond, patch port or bridge member")
		}
		starts = append(starts, fmt.Sprintf("--may-exist add-port %s %s", d.BridgeID, d.ID))
		stops = append(stops, fmt.Sprintf("del-port %s %s", d.BridgeID, d.ID))
		if o := d.OVS; o != nil {
			starts = append(starts, settingsCommands("Port", d.ID, o)...)
		}
	}
	return starts, stops, nil
}

// settingsCommands emits one set command per external-ids/other-config
// entry, in sorted key order for deterministic units.
func settingsCommands(table, row string, o *netdef.OVSSettings) []string {
	var out []string
	for _, k := range sortedKeys(o.ExternalIDs) {
		out = append(out, fmt.Sprintf("set %s %s external-ids:%s=%s", table, row, k, o.ExternalIDs[k]))
	}
	for _, k := range sortedKeys(o.OtherConfig) {
		out = append(out, fmt.Sprintf("set %s %s other-config:%s=%s", table, row, k, o.OtherConfig[k]))
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Finish writes the global finalization unit applying open_vswitch
// table settings and the SSL configuration.
func Finish(st *state.State, rootdir string) error {
	var starts []string
	if o := st.OVS(); o != nil {
		if o.SSL != nil {
			starts = append(starts, fmt.Sprintf("set-ssl %s %s %s",
				o.SSL.ClientKey, o.SSL.ClientCert, o.SSL.CACert))
		}
		for _, k := range sortedKeys(o.ExternalIDs) {
			starts = append(starts, fmt.Sprintf("set open_vswitch . external-ids:%s=%s", k, o.ExternalIDs[k]))
		}
		for _, k := range sortedKeys(o.OtherConfig) {
			starts = append(starts, fmt.Sprintf("set open_vswitch . other-config:%s=%s", k, o.OtherConfig[k]))
		}
	}
	if len(starts) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("[Unit]\n")
	sb.WriteString("Description=OpenVSwitch global configuration\n")
	sb.WriteString("DefaultDependencies=no\n")
	sb.WriteString("Wants=ovsdb-server.service\nAfter=ovsdb-server.service\n")
	for _, d := range st.NetDefs() {
		if d.Backend == netdef.BackendOVS {
			unit := unitName(d.ID)
			fmt.Fprintf(&sb, "After=%s\n", unit)
		}
	}
	sb.WriteString("Before=network.target\nWants=network.target\n\n")
	sb.WriteString("[Service]\nType=oneshot\nTimeoutStartSec=10s\n")
	for _, c := range starts {
		fmt.Fprintf(&sb, "ExecStart=%s %s\n", vsctl, c)
	}

	path := filepath.Join(rootdir, "run/systemd/system/netplan-ovs-global.service")
	if err := util.AtomicWrite(path, sb.String(), util.ConfigMode); err != nil {
		return err
	}
	return util.EnableUnit(rootdir, "netplan-ovs-global.service", "systemd-networkd.service.wants")
}
