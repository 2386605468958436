package emit

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

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

func dump(t *testing.T, st *state.State) string {
	t.Helper()
	var buf bytes.Buffer
	if err := DumpState(st, &buf); err != nil {
		t.Fatalf("DumpState: %v", err)
	}
	return buf.String()
}

const roundTripInput = `
network:
  version: 2
  renderer: networkd
  ethernets:
    eth0:
      dhcp4: true
      dhcp4-overrides: {use-dns: false, route-metric: 50}
      nameservers:
        search: [lab]
        addresses: [8.8.8.8]
      routes:
        - {to: 10.0.0.0/8, via: 192.168.1.1, metric: 100}
    eth1:
      match: {macaddress: "00:11:22:33:44:55"}
      set-name: lan0
      addresses: [192.168.1.9/24]
      gateway4: 192.168.1.1
  wifis:
    wlan0:
      dhcp4: true
      access-points:
        "my network": {password: "s3cret789"}
  bridges:
    br0:
      interfaces: [eth0]
      parameters: {stp: false, priority: 100}
  vlans:
    vlan10: {id: 10, link: eth1}
  tunnels:
    gre0: {mode: gre, local: 10.0.0.1, remote: 10.0.0.2}
`

// parse -> emit -> parse must be a fixed point of the canonical form.
func TestRoundTrip(t *testing.T) {
	first := dump(t, importString(t, roundTripInput))
	second := dump(t, importString(t, first))
	if first != second {
		t.Errorf("canonical emission is not stable:\n--- first ---\n%s\n--- second ---\n%s", first, second)
	}
}

func TestEmissionShape(t *testing.T) {
	out := dump(t, importString(t, roundTripInput))
	for _, want := range []string{"version: 2", "renderer: networkd", "ethernets:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// free-form strings are double-quoted, identifiers and enums plain
	if !strings.Contains(out, `"my network"`) {
		t.Errorf("SSID must be double-quoted:\n%s", out)
	}
	if !strings.Contains(out, `"00:11:22:33:44:55"`) {
		t.Errorf("MAC must be double-quoted:\n%s", out)
	}
	if !strings.Contains(out, "mode: gre") {
		t.Errorf("enum tokens must be plain:\n%s", out)
	}
	if !strings.Contains(out, "id: 10") {
		t.Errorf("numbers must be plain:\n%s", out)
	}
	if !strings.Contains(out, "interfaces:") {
		t.Errorf("bridge member list must be reconstructed:\n%s", out)
	}
}

func TestDumpNetDef(t *testing.T) {
	st := importString(t, roundTripInput)
	var buf bytes.Buffer
	if err := DumpNetDef(st, st.Get("vlan10"), &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "vlans:") || !strings.Contains(out, "vlan10:") {
		t.Errorf("single-definition dump wrong:\n%s", out)
	}
	if strings.Contains(out, "eth0") {
		t.Errorf("other definitions leaked into the dump:\n%s", out)
	}
}

func TestDumpSubtreeScalar(t *testing.T) {
	doc := "network:\n  version: 2\n  ethernets:\n    eth0:\n      dhcp4: true\n"
	var out bytes.Buffer
	if err := DumpSubtree("network.ethernets.eth0.dhcp4", strings.NewReader(doc), &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "true\n" {
		t.Errorf("scalar leaf = %q", out.String())
	}
}

func TestDumpSubtreeMapping(t *testing.T) {
	doc := "network:\n  version: 2\n  ethernets:\n    eth0:\n      dhcp4: true\n"
	var out bytes.Buffer
	if err := DumpSubtree("network.ethernets", strings.NewReader(doc), &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "eth0:") || !strings.Contains(out.String(), "dhcp4: true") {
		t.Errorf("subtree = %q", out.String())
	}
	if strings.Contains(out.String(), "version") {
		t.Errorf("siblings leaked into subtree: %q", out.String())
	}
}

func TestDumpSubtreeTabPath(t *testing.T) {
	doc := "network:\n  ethernets:\n    eth0:\n      dhcp4: true\n"
	var out bytes.Buffer
	if err := DumpSubtree("network\tethernets\teth0\tdhcp4", strings.NewReader(doc), &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "true\n" {
		t.Errorf("tab path leaf = %q", out.String())
	}
}

func TestDumpSubtreeMissing(t *testing.T) {
	doc := "network:\n  version: 2\n"
	if err := DumpSubtree("network.bridges", strings.NewReader(doc), &bytes.Buffer{}); err == nil {
		t.Error("missing path must be an error")
	}
}

func TestCreatePatch(t *testing.T) {
	var out bytes.Buffer
	if err := CreatePatch("network.ethernets.eth0.dhcp4", "true", &out); err != nil {
		t.Fatal(err)
	}
	want := "network:\n  ethernets:\n    eth0:\n      dhcp4: true\n"
	if out.String() != want {
		t.Errorf("patch = %q, want %q", out.String(), want)
	}
}

func TestCreatePatchNull(t *testing.T) {
	var out bytes.Buffer
	if err := CreatePatch("network.ethernets.eth0", "null", &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "eth0: null") {
		t.Errorf("null patch = %q", out.String())
	}
}

func parseNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc.Content[0]
}

func encodeNode(t *testing.T, n *yaml.Node) string {
	t.Helper()
	var buf bytes.Buffer
	if err := encode(n, &buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.String()
}

func TestMergeDocuments(t *testing.T) {
	base := parseNode(t, "network:\n  ethernets:\n    eth0: {dhcp4: true, mtu: 1500}\n")
	patch := parseNode(t, "network:\n  ethernets:\n    eth0: {mtu: 9000}\n    eth1: {dhcp4: true}\n")
	out := encodeNode(t, MergeDocuments(base, patch))
	for _, want := range []string{"dhcp4: true", "mtu: 9000", "eth1:"} {
		if !strings.Contains(out, want) {
			t.Errorf("merged missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "1500") {
		t.Errorf("patched scalar must replace:\n%s", out)
	}

	// null deletes
	deleted := MergeDocuments(parseNode(t, "a:\n  b: 1\n  c: 2\n"), parseNode(t, "a:\n  b: null\n"))
	out = encodeNode(t, deleted)
	if strings.Contains(out, "b:") || !strings.Contains(out, "c: 2") {
		t.Errorf("null merge wrong:\n%s", out)
	}
}
