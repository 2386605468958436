package ovs

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

func render(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	if err := WriteState(importString(t, content), root); err != nil {
		t.Fatalf("WriteState: %v", err)
	}
	return root
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestBridgeUnit(t *testing.T) {
	root := render(t, `
network:
  version: 2
  bridges:
    br0:
      openvswitch:
        fail-mode: secure
        mcast-snooping: true
        external-ids: {iface-id: myhost}
      interfaces: [eth0]
  ethernets:
    eth0: {}
`)
	unit := readFile(t, root, "run/systemd/system/netplan-ovs-br0.service")
	for _, want := range []string{
		"Description=OpenVSwitch configuration for br0\n",
		"DefaultDependencies=no\n",
		"Before=network.target\nWants=network.target\n",
		"ExecStart=/usr/bin/ovs-vsctl --may-exist add-br br0\n",
		"ExecStart=/usr/bin/ovs-vsctl --may-exist add-port br0 eth0\n",
		"ExecStart=/usr/bin/ovs-vsctl set-fail-mode br0 secure\n",
		"ExecStart=/usr/bin/ovs-vsctl set Bridge br0 mcast_snooping_enable=true\n",
		"ExecStart=/usr/bin/ovs-vsctl set Bridge br0 external-ids:iface-id=myhost\n",
		"ExecStop=/usr/bin/ovs-vsctl del-br br0\n",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("bridge unit missing %q:\n%s", want, unit)
		}
	}
	if _, err := os.Lstat(filepath.Join(root, "run/systemd/system/systemd-networkd.service.wants/netplan-ovs-br0.service")); err != nil {
		t.Errorf("enablement link missing: %v", err)
	}
}

func TestBondUnitAndOrdering(t *testing.T) {
	root := render(t, `
network:
  version: 2
  bridges:
    br0:
      openvswitch: {}
      interfaces: [bond0]
  bonds:
    bond0:
      openvswitch: {lacp: active}
      interfaces: [eth0, eth1]
      parameters: {mode: balance-tcp}
  ethernets:
    eth0: {}
    eth1: {}
`)
	unit := readFile(t, root, "run/systemd/system/netplan-ovs-bond0.service")
	for _, want := range []string{
		"Requires=netplan-ovs-br0.service\nAfter=netplan-ovs-br0.service\n",
		"ExecStart=/usr/bin/ovs-vsctl --may-exist add-bond br0 bond0 eth0 eth1\n",
		"ExecStart=/usr/bin/ovs-vsctl set Port bond0 lacp=active\n",
		"ExecStart=/usr/bin/ovs-vsctl set Port bond0 bond_mode=balance-tcp\n",
		"ExecStop=/usr/bin/ovs-vsctl del-port br0 bond0\n",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("bond unit missing %q:\n%s", want, unit)
		}
	}
}

func TestPatchPortPair(t *testing.T) {
	root := render(t, `
network:
  version: 2
  bridges:
    br0:
      openvswitch: {}
      interfaces: [patch0-1]
    br1:
      openvswitch: {}
      interfaces: [patch1-0]
  _ovs-ports:
    patch0-1: {peer: patch1-0}
    patch1-0: {peer: patch0-1}
`)
	unit := readFile(t, root, "run/systemd/system/netplan-ovs-patch0\\x2d1.service")
	want := "ExecStart=/usr/bin/ovs-vsctl --may-exist add-port br0 patch0-1 -- set Interface patch0-1 type=patch options:peer=patch1-0\n"
	if !strings.Contains(unit, want) {
		t.Errorf("patch unit missing %q:\n%s", want, unit)
	}
}

func TestOVSBondValidation(t *testing.T) {
	st := importString(t, `
network:
  version: 2
  bridges:
    br0:
      openvswitch: {}
      interfaces: [bond0]
  bonds:
    bond0:
      openvswitch: {}
      interfaces: [eth0]
  ethernets:
    eth0: {}
`)
	if err := WriteState(st, t.TempDir()); err == nil || !strings.Contains(err.Error(), "two member") {
		t.Errorf("single-member OVS bond must fail: %v", err)
	}

	st = importString(t, `
network:
  version: 2
  bridges:
    br0:
      openvswitch: {}
      interfaces: [bond0]
  bonds:
    bond0:
      openvswitch: {}
      interfaces: [eth0, eth1]
      parameters: {mode: 802.3ad}
  ethernets:
    eth0: {}
    eth1: {}
`)
	if err := WriteState(st, t.TempDir()); err == nil || !strings.Contains(err.Error(), "802.3ad") {
		t.Errorf("unsupported OVS bond mode must fail: %v", err)
	}
}

func TestControllerValidation(t *testing.T) {
	st := importString(t, `
network:
  version: 2
  bridges:
    br0:
      openvswitch:
        controller:
          addresses: ["tcp:127.0.0.1:6653"]
`)
	if err := WriteState(st, t.TempDir()); err != nil {
		t.Errorf("valid tcp controller rejected: %v", err)
	}

	st = importString(t, `
network:
  version: 2
  bridges:
    br0:
      openvswitch:
        controller:
          addresses: ["ssl:10.0.0.1:6653"]
`)
	if err := WriteState(st, t.TempDir()); err == nil || !strings.Contains(err.Error(), "ssl") {
		t.Errorf("ssl target without global ssl config must fail: %v", err)
	}

	st = importString(t, `
network:
  version: 2
  bridges:
    br0:
      openvswitch:
        controller:
          addresses: ["carrier-pigeon:coop1"]
`)
	if err := WriteState(st, t.TempDir()); err == nil {
		t.Error("bogus controller scheme must fail")
	}
}

func TestGlobalFinishUnit(t *testing.T) {
	root := render(t, `
network:
  version: 2
  openvswitch:
    external-ids: {owner: netplan}
    other-config: {disable-in-band: "true"}
    ssl:
      ca-cert: /etc/ssl/ca.pem
      certificate: /etc/ssl/client.pem
      private-key: /etc/ssl/client.key
  bridges:
    br0:
      openvswitch: {}
`)
	unit := readFile(t, root, "run/systemd/system/netplan-ovs-global.service")
	for _, want := range []string{
		"ExecStart=/usr/bin/ovs-vsctl set-ssl /etc/ssl/client.key /etc/ssl/client.pem /etc/ssl/ca.pem\n",
		"ExecStart=/usr/bin/ovs-vsctl set open_vswitch . external-ids:owner=netplan\n",
		"ExecStart=/usr/bin/ovs-vsctl set open_vswitch . other-config:disable-in-band=true\n",
		"After=netplan-ovs-br0.service\n",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("global unit missing %q:\n%s", want, unit)
		}
	}
}

func TestCleanupBound(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "run/systemd/system")
	os.MkdirAll(dir, 0755)
	owned := filepath.Join(dir, "netplan-ovs-br0.service")
	foreign := filepath.Join(dir, "ssh.service")
	os.WriteFile(owned, nil, 0640)
	os.WriteFile(foreign, nil, 0640)
	if err := Cleanup(root); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(owned); !os.IsNotExist(err) {
		t.Error("owned unit should be deleted")
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Error("foreign unit must survive")
	}
}
