package nm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/netplan-go/netplan/pkg/parser"
	"github.com/netplan-go/netplan/pkg/state"
)

func writeKeyfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conn.nmconnection")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

const ethernetKeyfile = `[connection]
id=c1
uuid=d5e4f7b2-aacc-4a88-a9b5-2d1b1e2f3a4b
type=ethernet
interface-name=enp0s3

[ipv4]
method=auto
`

func TestImportEthernetKeyfile(t *testing.T) {
	root := t.TempDir()
	out, err := ImportKeyfile(writeKeyfile(t, ethernetKeyfile), root)
	if err != nil {
		t.Fatalf("ImportKeyfile: %v", err)
	}
	wantPath := filepath.Join(root, "etc/netplan/90-NM-d5e4f7b2-aacc-4a88-a9b5-2d1b1e2f3a4b.yaml")
	if out != wantPath {
		t.Errorf("output path = %s, want %s", out, wantPath)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	yaml := string(data)
	for _, want := range []string{
		"ethernets:",
		"enp0s3:",
		"renderer: NetworkManager",
		`uuid: "d5e4f7b2-aacc-4a88-a9b5-2d1b1e2f3a4b"`,
		`name: "c1"`,
		`"ipv4.method": "auto"`,
	} {
		if !strings.Contains(yaml, want) {
			t.Errorf("imported YAML missing %q:\n%s", want, yaml)
		}
	}
	// recognized keys are lifted, not duplicated into the passthrough
	for _, lifted := range []string{"connection.uuid", "connection.id", "connection.interface-name", "connection.type"} {
		if strings.Contains(yaml, lifted) {
			t.Errorf("lifted key %q leaked into passthrough:\n%s", lifted, yaml)
		}
	}
}

// Importing a keyfile and rendering the resulting YAML must reproduce
// the original, modulo key ordering.
func TestImportRenderRoundTrip(t *testing.T) {
	root := t.TempDir()
	out, err := ImportKeyfile(writeKeyfile(t, ethernetKeyfile), root)
	if err != nil {
		t.Fatal(err)
	}

	p := parser.New()
	if err := p.LoadYAML(out); err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	st := state.New()
	if err := st.Import(p); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if err := WriteState(st, root); err != nil {
		t.Fatalf("re-render: %v", err)
	}
	rendered, err := os.ReadFile(filepath.Join(root,
		"run/NetworkManager/system-connections/netplan-enp0s3.nmconnection"))
	if err != nil {
		t.Fatal(err)
	}
	gotLines := nonEmptyLines(string(rendered))
	wantLines := nonEmptyLines(ethernetKeyfile)
	if len(gotLines) != len(wantLines) {
		t.Fatalf("line sets differ:\n--- got ---\n%s\n--- want ---\n%s", rendered, ethernetKeyfile)
	}
	for line := range wantLines {
		if !gotLines[line] {
			t.Errorf("line %q lost in round trip:\n%s", line, rendered)
		}
	}
}

func nonEmptyLines(s string) map[string]bool {
	out := map[string]bool{}
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out[l] = true
		}
	}
	return out
}

func TestImportWifiKeyfile(t *testing.T) {
	keyfile := `[connection]
id=mywifi
uuid=11111111-2222-3333-4444-555555555555
type=wifi
interface-name=wlan0

[wifi]
ssid=HomeNet
mode=infrastructure
hidden=true

[wifi-security]
key-mgmt=wpa-psk
psk=secret123
`
	root := t.TempDir()
	out, err := ImportKeyfile(writeKeyfile(t, keyfile), root)
	if err != nil {
		t.Fatalf("ImportKeyfile: %v", err)
	}
	data, _ := os.ReadFile(out)
	yaml := string(data)
	for _, want := range []string{
		"wifis:",
		"wlan0:",
		"access-points:",
		`"HomeNet":`,
		"hidden: true",
		`"wifi-security.psk": "secret123"`,
	} {
		if !strings.Contains(yaml, want) {
			t.Errorf("imported wifi YAML missing %q:\n%s", want, yaml)
		}
	}
}

func TestImportUnknownTypeFallsBack(t *testing.T) {
	keyfile := `[connection]
id=dummy0
uuid=99999999-8888-7777-6666-555555555555
type=dummy

[dummy]
`
	root := t.TempDir()
	out, err := ImportKeyfile(writeKeyfile(t, keyfile), root)
	if err != nil {
		t.Fatalf("ImportKeyfile: %v", err)
	}
	data, _ := os.ReadFile(out)
	yaml := string(data)
	if !strings.Contains(yaml, "nm-devices:") {
		t.Errorf("unknown type must fall back to nm-devices:\n%s", yaml)
	}
	if !strings.Contains(yaml, `"connection.type": "dummy"`) {
		t.Errorf("connection.type must stay in the passthrough:\n%s", yaml)
	}
}

func TestImportRejectsIncompleteKeyfile(t *testing.T) {
	if _, err := ImportKeyfile(writeKeyfile(t, "[connection]\nid=x\ntype=ethernet\n"), t.TempDir()); err == nil {
		t.Error("missing uuid must be rejected")
	}
	if _, err := ImportKeyfile(writeKeyfile(t, "[connection]\nid=x\nuuid=u\n"), t.TempDir()); err == nil {
		t.Error("missing type must be rejected")
	}
}

func TestIDFromNMFilepath(t *testing.T) {
	id, ok := IDFromNMFilepath("/run/NetworkManager/system-connections/netplan-eth0.nmconnection", "")
	if !ok || id != "eth0" {
		t.Errorf("id = %q, %v", id, ok)
	}
	id, ok = IDFromNMFilepath("/x/netplan-wlan0-Joe%27s%20Home.nmconnection", "Joe's Home")
	if !ok || id != "wlan0" {
		t.Errorf("wifi id = %q, %v", id, ok)
	}
	if _, ok := IDFromNMFilepath("/x/other.nmconnection", ""); ok {
		t.Error("foreign path must not resolve")
	}
}
