package sriov

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/netplan-go/netplan/pkg/parser"
	"github.com/netplan-go/netplan/pkg/state"
)

func importString(t *testing.T, content string) *state.State {
	t.Helper()
	p := parser.New()
	path := filepath.Join(t.TempDir(), "01-test.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if err := p.LoadYAML(path); err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	st := state.New()
	if err := st.Import(p); err != nil {
		t.Fatalf("Import: %v", err)
	}
	return st
}

func TestApplyUnit(t *testing.T) {
	st := importString(t, `
network:
  version: 2
  ethernets:
    enp1: {virtual-function-count: 4}
    vf0: {link: enp1}
`)
	root := t.TempDir()
	if err := Finish(st, root); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "run/systemd/system/netplan-sriov-apply.service"))
	if err != nil {
		t.Fatal(err)
	}
	unit := string(data)
	for _, want := range []string{
		"Before=network-pre.target\n",
		"After=sys-subsystem-net-devices-enp1.device\n",
		"ExecStart=/usr/sbin/netplan apply --sriov-only\n",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("apply unit missing %q:\n%s", want, unit)
		}
	}
	if _, err := os.Lstat(filepath.Join(root, "run/systemd/system/multi-user.target.wants/netplan-sriov-apply.service")); err != nil {
		t.Errorf("enablement link missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "run/systemd/system/netplan-sriov-rebind.service")); !os.IsNotExist(err) {
		t.Error("rebind unit must only exist when a PF delays the rebind")
	}
}

func TestRebindUnit(t *testing.T) {
	st := importString(t, `
network:
  version: 2
  ethernets:
    enp1:
      virtual-function-count: 2
      delay-virtual-functions-rebind: true
    enp2:
      embedded-switch-mode: switchdev
`)
	root := t.TempDir()
	if err := Finish(st, root); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "run/systemd/system/netplan-sriov-rebind.service"))
	if err != nil {
		t.Fatal(err)
	}
	unit := string(data)
	for _, want := range []string{
		"After=netplan-sriov-apply.service\n",
		"After=sys-subsystem-net-devices-enp1.device\n",
		"ExecStart=/usr/sbin/netplan rebind enp1\n",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("rebind unit missing %q:\n%s", want, unit)
		}
	}
}

func TestNoUnitsWithoutSRIOV(t *testing.T) {
	st := importString(t, `
network: {version: 2, ethernets: {eth0: {dhcp4: true}}}
`)
	root := t.TempDir()
	if err := Finish(st, root); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "run/systemd/system/netplan-sriov-apply.service")); !os.IsNotExist(err) {
		t.Error("no SR-IOV use, no units")
	}
}
