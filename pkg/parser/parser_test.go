package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/util"
)

// writeYAML drops a config file into dir and returns its path.
func writeYAML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func loadString(t *testing.T, content string) *Parser {
	t.Helper()
	p := New()
	path := writeYAML(t, t.TempDir(), "01-test.yaml", content)
	if err := p.LoadYAML(path); err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	return p
}

func defByID(t *testing.T, p *Parser, id string) *netdef.NetDef {
	t.Helper()
	for _, d := range p.Defs() {
		if d.ID == id {
			return d
		}
	}
	t.Fatalf("definition %q not found", id)
	return nil
}

func TestBasicEthernet(t *testing.T) {
	p := loadString(t, `
network:
  version: 2
  renderer: networkd
  ethernets:
    eth0:
      dhcp4: true
      dhcp6: no
      addresses: ["10.0.0.2/24", "2001:db8::2/64"]
      gateway4: 10.0.0.1
      nameservers:
        search: [lab, home]
        addresses: [8.8.8.8, "2001:4860:4860::8888"]
      mtu: 9000
`)
	if p.GlobalBackend() != netdef.BackendNetworkd {
		t.Errorf("global backend = %v", p.GlobalBackend())
	}
	d := defByID(t, p, "eth0")
	if d.Type != netdef.TypeEthernet || !d.DHCP4 || d.DHCP6 {
		t.Error("addressing flags wrong")
	}
	if len(d.Addresses) != 2 || d.Addresses[0] != "10.0.0.2/24" {
		t.Errorf("addresses = %v", d.Addresses)
	}
	if d.Gateway4 != "10.0.0.1" || d.MTU != 9000 {
		t.Error("scalars wrong")
	}
	if len(d.Nameservers) != 2 || len(d.SearchDomains) != 2 {
		t.Error("nameservers wrong")
	}
	if !d.IsDirty("dhcp4") || d.IsDirty("wakeonlan") {
		t.Error("dirty tracking wrong")
	}
}

func TestBooleanForms(t *testing.T) {
	p := loadString(t, `
network:
  version: 2
  ethernets:
    a: {dhcp4: yes}
    b: {dhcp4: "no", optional: on}
`)
	if !defByID(t, p, "a").DHCP4 {
		t.Error("yes should parse as true")
	}
	b := defByID(t, p, "b")
	if b.DHCP4 || !b.Optional {
		t.Error("no/on forms wrong")
	}
}

func TestRoutesAndPolicy(t *testing.T) {
	p := loadString(t, `
network:
  version: 2
  ethernets:
    eth0:
      routes:
        - to: default
          via: 10.0.0.1
          metric: 100
        - to: 192.168.5.0/24
          via: 10.0.0.254
          table: 102
          on-link: true
      routing-policy:
        - from: 10.0.0.0/8
          table: 102
          priority: 5
`)
	d := defByID(t, p, "eth0")
	if len(d.Routes) != 2 {
		t.Fatalf("routes = %v", d.Routes)
	}
	r := d.Routes[0]
	if !r.IsDefault() || r.Family != util.AFInet || r.Metric != 100 {
		t.Errorf("default route wrong: %+v", r)
	}
	if d.Routes[1].Table != 102 || !d.Routes[1].OnLink {
		t.Errorf("second route wrong: %+v", d.Routes[1])
	}
	if len(d.IPRules) != 1 || d.IPRules[0].Priority != 5 || d.IPRules[0].Table != 102 {
		t.Errorf("rules wrong: %+v", d.IPRules)
	}
}

func TestMatchAndDriverGlobs(t *testing.T) {
	p := loadString(t, `
network:
  version: 2
  ethernets:
    nics:
      match:
        driver: ["e1000*", "ixgbe"]
        macaddress: "00:11:22:33:44:55"
      set-name: lan0
`)
	d := defByID(t, p, "nics")
	if !d.HasMatch {
		t.Error("has_match should be set")
	}
	if got := util.SplitTab(d.Match.Driver); len(got) != 2 || got[0] != "e1000*" {
		t.Errorf("driver globs = %v", got)
	}
	if d.SetName != "lan0" || d.Match.MAC != "00:11:22:33:44:55" {
		t.Error("match fields wrong")
	}
}

func TestHierarchyShadowingAndOrder(t *testing.T) {
	root := t.TempDir()
	// same basename in all three layers: run wins
	writeYAML(t, root, "lib/netplan/10-base.yaml", `
network: {version: 2, ethernets: {eth0: {dhcp4: false, mtu: 1500}}}
`)
	writeYAML(t, root, "etc/netplan/10-base.yaml", `
network: {version: 2, ethernets: {eth0: {dhcp4: false, mtu: 9000}}}
`)
	writeYAML(t, root, "run/netplan/10-base.yaml", `
network: {version: 2, ethernets: {eth0: {dhcp4: true}}}
`)
	// later basename overrides earlier one
	writeYAML(t, root, "etc/netplan/20-override.yaml", `
network: {version: 2, ethernets: {eth0: {mtu: 1400}}}
`)
	p := New()
	if err := p.LoadYAMLHierarchy(root); err != nil {
		t.Fatalf("LoadYAMLHierarchy: %v", err)
	}
	d := defByID(t, p, "eth0")
	if !d.DHCP4 {
		t.Error("run/netplan must shadow etc and lib for the same basename")
	}
	if d.MTU != 1400 {
		t.Errorf("mtu = %d, later basename must win", d.MTU)
	}
	sources := p.Sources()
	if len(sources) != 2 {
		t.Errorf("sources = %v", sources)
	}
}

func TestSequenceReplacedWholesale(t *testing.T) {
	dir := t.TempDir()
	first := writeYAML(t, dir, "01.yaml", `
network:
  version: 2
  ethernets:
    eth0:
      addresses: [10.0.0.2/24, 10.0.0.3/24]
`)
	second := writeYAML(t, dir, "02.yaml", `
network:
  version: 2
  ethernets:
    eth0:
      addresses: [192.168.1.9/24]
`)
	p := New()
	if err := p.LoadYAML(first); err != nil {
		t.Fatal(err)
	}
	if err := p.LoadYAML(second); err != nil {
		t.Fatal(err)
	}
	d := defByID(t, p, "eth0")
	if len(d.Addresses) != 1 || d.Addresses[0] != "192.168.1.9/24" {
		t.Errorf("later sequence must replace earlier wholesale: %v", d.Addresses)
	}
}

func TestAccessPointDeepMerge(t *testing.T) {
	dir := t.TempDir()
	first := writeYAML(t, dir, "01.yaml", `
network:
  version: 2
  wifis:
    wlan0:
      access-points:
        "home": {password: "s3cret789"}
`)
	second := writeYAML(t, dir, "02.yaml", `
network:
  version: 2
  wifis:
    wlan0:
      access-points:
        "work": {hidden: true}
`)
	p := New()
	if err := p.LoadYAML(first); err != nil {
		t.Fatal(err)
	}
	if err := p.LoadYAML(second); err != nil {
		t.Fatal(err)
	}
	d := defByID(t, p, "wlan0")
	if len(d.AccessPoints) != 2 {
		t.Fatalf("access points must deep-merge across files: %v", d.APOrder)
	}
	if d.AccessPoints["home"].Auth.Password != "s3cret789" {
		t.Error("first file's access point lost")
	}
	if !d.AccessPoints["work"].Hidden {
		t.Error("second file's access point lost")
	}
}

func TestNullOverlayFieldReset(t *testing.T) {
	p := New()
	overlay := `network: {ethernets: {eth0: {dhcp4: null}}}`
	if err := p.LoadNullableFields(strings.NewReader(overlay)); err != nil {
		t.Fatal(err)
	}
	path := writeYAML(t, t.TempDir(), "01.yaml", `
network:
  version: 2
  ethernets:
    eth0: {dhcp4: true, mtu: 1500}
`)
	if err := p.LoadYAML(path); err != nil {
		t.Fatal(err)
	}
	d := defByID(t, p, "eth0")
	if d.DHCP4 {
		t.Error("nulled field must reset to default")
	}
	if d.MTU != 1500 {
		t.Error("untouched fields must survive")
	}
}

func TestNullOverlayDefinitionDeletion(t *testing.T) {
	p := New()
	overlay := `network: {ethernets: {eth0: null}}`
	if err := p.LoadNullableFields(strings.NewReader(overlay)); err != nil {
		t.Fatal(err)
	}
	path := writeYAML(t, t.TempDir(), "01.yaml", `
network:
  version: 2
  ethernets:
    eth0: {dhcp4: true}
    eth1: {dhcp4: true}
`)
	if err := p.LoadYAML(path); err != nil {
		t.Fatal(err)
	}
	if len(p.Defs()) != 1 || p.Defs()[0].ID != "eth1" {
		t.Errorf("eth0 must be deleted, got %v", p.Defs())
	}
}

func TestForwardReferenceResolved(t *testing.T) {
	p := loadString(t, `
network:
  version: 2
  vlans:
    vlan10: {id: 10, link: eth0}
  ethernets:
    eth0: {dhcp4: true}
`)
	if err := p.MissingIDError(); err != nil {
		t.Errorf("forward reference should close once the id appears: %v", err)
	}
	if defByID(t, p, "vlan10").VLANLinkID != "eth0" {
		t.Error("link id lost")
	}
}

func TestForwardReferenceUnresolved(t *testing.T) {
	p := loadString(t, `
network:
  version: 2
  vlans:
    vlan10:
      id: 10
      link: ghost0
`)
	err := p.MissingIDError()
	if err == nil {
		t.Fatal("dangling reference must be reported")
	}
	if !errors.Is(err, util.ErrReference) {
		t.Errorf("expected reference error, got %v", err)
	}
	var pe *util.ParseError
	if !errors.As(err, &pe) || pe.Line == 0 {
		t.Errorf("error must point at the referencing source location: %v", err)
	}
	if !strings.Contains(err.Error(), "ghost0") {
		t.Errorf("error must name the missing id: %v", err)
	}
}

func TestBridgeMembership(t *testing.T) {
	p := loadString(t, `
network:
  version: 2
  bridges:
    br0:
      interfaces: [eth0, eth1]
  ethernets:
    eth0: {}
    eth1: {}
`)
	if err := p.MissingIDError(); err != nil {
		t.Fatal(err)
	}
	if err := p.ResolveMembers(); err != nil {
		t.Fatal(err)
	}
	if defByID(t, p, "eth0").BridgeID != "br0" || defByID(t, p, "eth1").BridgeID != "br0" {
		t.Error("members must point at their bridge")
	}
}

func TestWireguardTunnel(t *testing.T) {
	p := loadString(t, `
network:
  version: 2
  tunnels:
    wg0:
      mode: wireguard
      port: 5182
      key: 4GgaQCy68nzNsUE5aJ9fuLzHhB65tAlwbmA72MWnOm8=
      peers:
        - endpoint: 1.2.3.4:5
          allowed-ips: [0.0.0.0/0, "2001:fe:ad:de:ad:be:ef:1/24"]
          keepalive: 23
          keys:
            public: M9nt4YujIOmNrRmpIRTmYSfMdrpvE7u6WkG8FY8WjG4=
`)
	d := defByID(t, p, "wg0")
	if d.Tunnel.Mode != netdef.TunnelModeWireGuard || d.Tunnel.Port != 5182 {
		t.Error("tunnel scalars wrong")
	}
	if d.Tunnel.PrivateKey == "" {
		t.Error("scalar key must land in the private key for wireguard")
	}
	if len(d.WireguardPeers) != 1 {
		t.Fatal("peer lost")
	}
	peer := d.WireguardPeers[0]
	if peer.Endpoint != "1.2.3.4:5" || peer.Keepalive != 23 || len(peer.AllowedIPs) != 2 {
		t.Errorf("peer fields wrong: %+v", peer)
	}
	if peer.PublicKey == "" {
		t.Error("peer public key lost")
	}
}

func TestTunnelKeysMapping(t *testing.T) {
	p := loadString(t, `
network:
  version: 2
  tunnels:
    gre0:
      mode: gre
      local: 10.0.0.1
      remote: 10.0.0.2
      keys: {input: 1234, output: 5678}
`)
	d := defByID(t, p, "gre0")
	if d.Tunnel.InputKey != "1234" || d.Tunnel.OutputKey != "5678" {
		t.Errorf("keys = %+v", d.Tunnel)
	}
}

func TestSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		kind    error
		message string
	}{
		{
			"unknown key",
			"network:\n  version: 2\n  ethernets:\n    eth0:\n      dchp4: true\n",
			util.ErrSchema, "unknown key 'dchp4'",
		},
		{
			"bad version",
			"network:\n  version: 1\n  ethernets: {eth0: {}}\n",
			util.ErrSchema, "version 2",
		},
		{
			"missing version",
			"network:\n  ethernets: {eth0: {}}\n",
			util.ErrSchema, "version",
		},
		{
			"scalar for mapping",
			"network:\n  version: 2\n  ethernets: eth0\n",
			util.ErrSchema, "expected mapping",
		},
		{
			"bad boolean",
			"network:\n  version: 2\n  ethernets: {eth0: {dhcp4: maybe}}\n",
			util.ErrSchema, "invalid boolean",
		},
		{
			"out of range",
			"network:\n  version: 2\n  vlans: {v1: {id: 5000, link: eth0}}\n",
			util.ErrSchema, "out of range",
		},
		{
			"unknown renderer",
			"network:\n  version: 2\n  renderer: ifupdown\n",
			util.ErrSchema, "unknown renderer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			path := writeYAML(t, t.TempDir(), "bad.yaml", tt.yaml)
			err := p.LoadYAML(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tt.kind) {
				t.Errorf("wrong kind: %v", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("message %q does not contain %q", err.Error(), tt.message)
			}
		})
	}
}

func TestTabIndentError(t *testing.T) {
	p := New()
	path := writeYAML(t, t.TempDir(), "tab.yaml", "network:\n\tversion: 2\n")
	err := p.LoadYAML(path)
	if err == nil {
		t.Fatal("tab indentation must be rejected")
	}
	if !errors.Is(err, util.ErrParse) {
		t.Errorf("wrong kind: %v", err)
	}
	if !strings.Contains(err.Error(), "tab") {
		t.Errorf("expected specialized tab message, got %q", err.Error())
	}
}

func TestAliasRejected(t *testing.T) {
	p := New()
	path := writeYAML(t, t.TempDir(), "alias.yaml", `
network:
  version: 2
  ethernets: &anchor
    eth0: {dhcp4: true}
  bridges: *anchor
`)
	err := p.LoadYAML(path)
	if err == nil {
		t.Fatal("aliases must be rejected")
	}
	if !strings.Contains(err.Error(), "alias") {
		t.Errorf("expected alias message, got %q", err.Error())
	}
}

func TestParseErrorPosition(t *testing.T) {
	p := New()
	path := writeYAML(t, t.TempDir(), "pos.yaml", "network:\n  version: 2\n  ethernets:\n    eth0:\n      dchp4: true\n")
	err := p.LoadYAML(path)
	var pe *util.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected positioned error, got %v", err)
	}
	if pe.Line != 5 {
		t.Errorf("line = %d, want 5", pe.Line)
	}
	if pe.Excerpt != "      dchp4: true" {
		t.Errorf("excerpt = %q", pe.Excerpt)
	}
	if !strings.Contains(err.Error(), "^") {
		t.Error("rendered error must carry the caret")
	}
}

func TestResetDropsEverything(t *testing.T) {
	p := loadString(t, `
network:
  version: 2
  renderer: NetworkManager
  ethernets: {eth0: {dhcp4: true}}
`)
	p.Reset()
	if len(p.Defs()) != 0 || p.GlobalBackend() != netdef.BackendNone || len(p.Sources()) != 0 {
		t.Error("Reset must drop all accumulated state")
	}
}

func TestTypeChangeRejected(t *testing.T) {
	dir := t.TempDir()
	first := writeYAML(t, dir, "01.yaml", "network: {version: 2, ethernets: {dev0: {dhcp4: true}}}\n")
	second := writeYAML(t, dir, "02.yaml", "network: {version: 2, bridges: {dev0: {}}}\n")
	p := New()
	if err := p.LoadYAML(first); err != nil {
		t.Fatal(err)
	}
	err := p.LoadYAML(second)
	if err == nil || !strings.Contains(err.Error(), "device type") {
		t.Errorf("type change must be rejected, got %v", err)
	}
}
