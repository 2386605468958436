// Package sriov renders the systemd units applying SR-IOV virtual
// function configuration at boot and optionally rebinding delayed VF
// drivers once the physical functions are up.
package sriov

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/state"
	"github.com/netplan-go/netplan/pkg/util"
)

// Cleanup removes every unit and rule a previous generation pass
// produced.
func Cleanup(rootdir string) error {
	globs := []string{
		"run/udev/rules.d/*-sriov-netplan-*.rules",
		"run/systemd/system/netplan-sriov-*.service",
		"run/systemd/system/multi-user.target.wants/netplan-sriov-*.service",
	}
	for _, g := range globs {
		if err := util.CleanupGlob(filepath.Join(rootdir, g)); err != nil {
			return err
		}
	}
	return nil
}

// pfName returns the interface name a physical function answers to.
func pfName(d *netdef.NetDef) string {
	if d.SetName != "" {
		return d.SetName
	}
	if d.HasMatch && d.Match.OriginalName != "" && !util.HasGlobChars(d.Match.OriginalName) {
		return d.Match.OriginalName
	}
	if !d.HasMatch {
		return d.ID
	}
	return ""
}

// Finish renders netplan-sriov-apply.service, and
// netplan-sriov-rebind.service when at least one physical function
// delays its VF driver rebind. With no SR-IOV use in the state nothing
// is written.
func Finish(st *state.State, rootdir string) error {
	var pfs []*netdef.NetDef
	for _, d := range st.NetDefs() {
		if d.IsSRIOVPF {
			pfs = append(pfs, d)
		}
	}
	if len(pfs) == 0 {
		return nil
	}

	var deviceUnits []string
	var rebindNames []string
	rebind := false
	for _, pf := range pfs {
		if name := pfName(pf); name != "" {
			deviceUnits = append(deviceUnits,
				"sys-subsystem-net-devices-"+util.SystemdEscape(name)+".device")
			if pf.DelayVFRebind {
				rebindNames = append(rebindNames, name)
			}
		}
		if pf.DelayVFRebind {
			rebind = true
		}
	}

	var sb strings.Builder
	sb.WriteString("[Unit]\n")
	sb.WriteString("Description=Apply SR-IOV virtual function configuration\n")
	sb.WriteString("DefaultDependencies=no\n")
	sb.WriteString("Before=network-pre.target\n")
	for _, u := range deviceUnits {
		fmt.Fprintf(&sb, "After=%s\n", u)
	}
	sb.WriteString("\n[Service]\nType=oneshot\n")
	sb.WriteString("ExecStart=/usr/sbin/netplan apply --sriov-only\n")

	path := filepath.Join(rootdir, "run/systemd/system/netplan-sriov-apply.service")
	if err := util.AtomicWrite(path, sb.String(), util.ConfigMode); err != nil {
		return err
	}
	if err := util.EnableUnit(rootdir, "netplan-sriov-apply.service", "multi-user.target.wants"); err != nil {
		return err
	}
	if !rebind {
		return nil
	}

	sb.Reset()
	sb.WriteString("[Unit]\n")
	sb.WriteString("Description=Rebind delayed SR-IOV virtual function drivers\n")
	sb.WriteString("DefaultDependencies=no\n")
	sb.WriteString("After=netplan-sriov-apply.service\n")
	for _, u := range deviceUnits {
		fmt.Fprintf(&sb, "After=%s\n", u)
	}
	sb.WriteString("\n[Service]\nType=oneshot\n")
	fmt.Fprintf(&sb, "ExecStart=/usr/sbin/netplan rebind %s\n", strings.Join(rebindNames, " "))

	path = filepath.Join(rootdir, "run/systemd/system/netplan-sriov-rebind.service")
	if err := util.AtomicWrite(path, sb.String(), util.ConfigMode); err != nil {
		return err
	}
	return util.EnableUnit(rootdir, "netplan-sriov-rebind.service", "multi-user.target.wants")
}
