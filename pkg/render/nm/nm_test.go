package nm

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

func render(t *testing.T, content string) (string, *state.State) {
	t.Helper()
	st := importString(t, content)
	root := t.TempDir()
	if err := WriteState(st, root); err != nil {
		t.Fatalf("WriteState: %v", err)
	}
	return root, st
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestEthernetKeyfile(t *testing.T) {
	root, _ := render(t, `
network:
  version: 2
  renderer: NetworkManager
  ethernets:
    eth0:
      dhcp4: true
      nameservers: {addresses: [8.8.8.8, 1.1.1.1], search: [lab]}
`)
	rel := "run/NetworkManager/system-connections/netplan-eth0.nmconnection"
	got := readFile(t, root, rel)
	for _, want := range []string{
		"[connection]\nid=netplan-eth0\ntype=ethernet\ninterface-name=eth0\n",
		"[ipv4]\nmethod=auto\n",
		"dns=8.8.8.8;1.1.1.1;\n",
		"dns-search=lab;\n",
		"[ipv6]\nmethod=ignore\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("keyfile missing %q:\n%s", want, got)
		}
	}
	fi, _ := os.Stat(filepath.Join(root, rel))
	if fi.Mode().Perm() != 0600 {
		t.Errorf("keyfile mode = %o, want 0600", fi.Mode().Perm())
	}
}

func TestStaticKeyfile(t *testing.T) {
	root, _ := render(t, `
network:
  version: 2
  renderer: NetworkManager
  ethernets:
    eth0:
      addresses: [192.168.1.9/24, "2001:db8::2/64"]
      gateway4: 192.168.1.1
      routes:
        - {to: 10.0.0.0/8, via: 192.168.1.254, metric: 77}
`)
	got := readFile(t, root, "run/NetworkManager/system-connections/netplan-eth0.nmconnection")
	for _, want := range []string{
		"method=manual",
		"address1=192.168.1.9/24",
		"gateway=192.168.1.1",
		"route1=10.0.0.0/8,192.168.1.254,77",
		"address1=2001:db8::2/64",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("keyfile missing %q:\n%s", want, got)
		}
	}
}

func TestWifiKeyfilePerSSID(t *testing.T) {
	root, _ := render(t, `
network:
  version: 2
  renderer: NetworkManager
  wifis:
    wlan0:
      dhcp4: true
      access-points:
        "Joe's Home": {password: "s0s3kr1t9"}
        "workplace": {hidden: true}
`)
	joe := readFile(t, root, "run/NetworkManager/system-connections/netplan-wlan0-Joe%27s%20Home.nmconnection")
	for _, want := range []string{
		"id=netplan-wlan0-Joe's Home\n",
		"type=wifi\n",
		"[wifi]\nssid=Joe's Home\nmode=infrastructure\n",
		"[wifi-security]\nkey-mgmt=wpa-psk\npsk=s0s3kr1t9\n",
	} {
		if !strings.Contains(joe, want) {
			t.Errorf("keyfile missing %q:\n%s", want, joe)
		}
	}
	work := readFile(t, root, "run/NetworkManager/system-connections/netplan-wlan0-workplace.nmconnection")
	if !strings.Contains(work, "hidden=true") {
		t.Errorf("hidden flag lost:\n%s", work)
	}
	if strings.Contains(work, "wifi-security") {
		t.Errorf("open network must not carry wifi-security:\n%s", work)
	}
}

func TestBridgeMemberKeyfile(t *testing.T) {
	root, _ := render(t, `
network:
  version: 2
  renderer: NetworkManager
  bridges:
    br0:
      interfaces: [eth0]
      parameters:
        stp: true
        port-priority: {eth0: 10}
        path-cost: {eth0: 50}
  ethernets:
    eth0: {}
`)
	member := readFile(t, root, "run/NetworkManager/system-connections/netplan-eth0.nmconnection")
	for _, want := range []string{
		"slave-type=bridge\nmaster=br0\n",
		"[bridge-port]\npriority=10\npath-cost=50\n",
	} {
		if !strings.Contains(member, want) {
			t.Errorf("member keyfile missing %q:\n%s", want, member)
		}
	}
	bridge := readFile(t, root, "run/NetworkManager/system-connections/netplan-br0.nmconnection")
	if !strings.Contains(bridge, "[bridge]\nstp=true\n") {
		t.Errorf("bridge keyfile wrong:\n%s", bridge)
	}
}

func TestDriverMatchRequiresSetName(t *testing.T) {
	st := importString(t, `
network:
  version: 2
  renderer: NetworkManager
  ethernets:
    nic:
      match: {driver: "e1000*"}
      dhcp4: true
`)
	err := WriteState(st, t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "driver") {
		t.Errorf("driver match without set-name must fail: %v", err)
	}
}

func TestGlobInterfaceNameRejected(t *testing.T) {
	st := importString(t, `
network:
  version: 2
  renderer: NetworkManager
  ethernets:
    nics:
      match: {name: "enp*"}
      dhcp4: true
`)
	err := WriteState(st, t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "globbing") {
		t.Errorf("glob interface-name must fail: %v", err)
	}
}

func TestUnmanagedDevices(t *testing.T) {
	root, _ := render(t, `
network:
  version: 2
  renderer: networkd
  ethernets:
    eth0: {dhcp4: true}
    nic1:
      match: {macaddress: "00:11:22:33:44:55"}
      dhcp4: true
  bridges:
    br0: {interfaces: []}
`)
	conf := readFile(t, root, "run/NetworkManager/conf.d/netplan.conf")
	if !strings.HasPrefix(conf, "[keyfile]\nunmanaged-devices+=") {
		t.Errorf("unmanaged-devices block wrong:\n%s", conf)
	}
	for _, want := range []string{"interface-name:eth0", "mac:00:11:22:33:44:55", "interface-name:br0"} {
		if !strings.Contains(conf, want) {
			t.Errorf("unmanaged list missing %q:\n%s", want, conf)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "run/NetworkManager/conf.d/10-globally-managed-devices.conf")); err != nil {
		t.Error("globally-managed-devices override missing")
	}
}

func TestDriverUdevUnmanagedRule(t *testing.T) {
	root, _ := render(t, `
network:
  version: 2
  renderer: networkd
  ethernets:
    nics:
      match: {driver: ["e1000*", "ixgbe"]}
      set-name: lan0
      dhcp4: true
`)
	rules := readFile(t, root, "run/udev/rules.d/90-netplan.rules")
	if !strings.Contains(rules, `ENV{ID_NET_DRIVER}=="e1000*", ENV{NM_UNMANAGED}="1"`) ||
		!strings.Contains(rules, `ENV{ID_NET_DRIVER}=="ixgbe", ENV{NM_UNMANAGED}="1"`) {
		t.Errorf("driver unmanaged rules wrong:\n%s", rules)
	}
}

func TestModemKeyfile(t *testing.T) {
	root, _ := render(t, `
network:
  version: 2
  modems:
    wwan0:
      apn: internet
      pin: "1234"
      dhcp4: true
`)
	got := readFile(t, root, "run/NetworkManager/system-connections/netplan-wwan0.nmconnection")
	for _, want := range []string{"type=gsm", "[gsm]\napn=internet\npin=1234\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("modem keyfile missing %q:\n%s", want, got)
		}
	}
}

func TestCleanupBound(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "run/NetworkManager/system-connections")
	os.MkdirAll(dir, 0755)
	owned := filepath.Join(dir, "netplan-eth0.nmconnection")
	foreign := filepath.Join(dir, "corporate.nmconnection")
	os.WriteFile(owned, nil, 0600)
	os.WriteFile(foreign, nil, 0600)
	if err := Cleanup(root); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(owned); !os.IsNotExist(err) {
		t.Error("owned profile should be deleted")
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Error("foreign profile must survive")
	}
}

func TestDeleteConnection(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "run/NetworkManager/system-connections")
	os.MkdirAll(dir, 0755)
	plain := filepath.Join(dir, "netplan-eth0.nmconnection")
	wifi := filepath.Join(dir, "netplan-eth0-ssid.nmconnection")
	other := filepath.Join(dir, "netplan-eth1.nmconnection")
	for _, f := range []string{plain, wifi, other} {
		os.WriteFile(f, nil, 0600)
	}
	if err := DeleteConnection("eth0", root); err != nil {
		t.Fatal(err)
	}
	for _, gone := range []string{plain, wifi} {
		if _, err := os.Stat(gone); !os.IsNotExist(err) {
			t.Errorf("%s should be deleted", gone)
		}
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("other definition's profile must survive")
	}
}
