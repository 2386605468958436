// Package nm renders definitions into NetworkManager keyfile connection
// profiles plus the unmanaged-devices configuration, and implements the
// inverse keyfile-to-YAML importer.
package nm

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/state"
	"github.com/netplan-go/netplan/pkg/util"
)

// Cleanup removes every file a previous generation pass produced.
func Cleanup(rootdir string) error {
	globs := []string{
		"run/NetworkManager/system-connections/netplan-*",
		"run/NetworkManager/conf.d/netplan.conf",
		"run/NetworkManager/conf.d/10-globally-managed-devices.conf",
		"run/udev/rules.d/90-netplan.rules",
	}
	for _, g := range globs {
		if err := util.CleanupGlob(filepath.Join(rootdir, g)); err != nil {
			return err
		}
	}
	return nil
}

// WriteState renders every NM-managed definition and the finalization
// files.
func WriteState(st *state.State, rootdir string) error {
	for _, d := range st.NetDefs() {
		if d.Backend != netdef.BackendNM {
			continue
		}
		if err := Write(st, d, rootdir); err != nil {
			return err
		}
	}
	return Finish(st, rootdir)
}

// Write renders one definition: one keyfile per definition, or one per
// SSID for wifi.
func Write(st *state.State, d *netdef.NetDef, rootdir string) error {
	if d.Match.Driver != "" && d.SetName == "" {
		return util.NewUnsupportedError(d.ID, "NetworkManager definitions cannot match by driver without a 'set-name'")
	}
	connDir := filepath.Join(rootdir, "run/NetworkManager/system-connections")
	if d.Type == netdef.TypeWifi {
		for _, ssid := range d.APOrder {
			ap := d.AccessPoints[ssid]
			content, err := keyfile(st, d, ap)
			if err != nil {
				return err
			}
			path := filepath.Join(connDir,
				fmt.Sprintf("netplan-%s-%s.nmconnection", d.ID, util.URIEscape(ssid)))
			if err := util.AtomicWrite(path, content, util.SecretMode); err != nil {
				return err
			}
		}
		return nil
	}
	content, err := keyfile(st, d, nil)
	if err != nil {
		return err
	}
	path := filepath.Join(connDir, fmt.Sprintf("netplan-%s.nmconnection", d.ID))
	return util.AtomicWrite(path, content, util.SecretMode)
}

// kfSection accumulates one keyfile group in insertion order.
type kfSection struct {
	name  string
	lines []string
}

type keyfileBuilder struct {
	sections []*kfSection
	index    map[string]*kfSection
}

func newKeyfileBuilder() *keyfileBuilder {
	return &keyfileBuilder{index: make(map[string]*kfSection)}
}

func (b *keyfileBuilder) group(name string) *kfSection {
	if s, ok := b.index[name]; ok {
		return s
	}
	s := &kfSection{name: name}
	b.sections = append(b.sections, s)
	b.index[name] = s
	return s
}

func (b *keyfileBuilder) set(group, key string, value interface{}) {
	s := b.group(group)
	s.lines = append(s.lines, fmt.Sprintf("%s=%v", key, value))
}

// replace overrides an already-written key in place, or appends it.
// Passthrough entries use this so imported profiles reproduce their
// original lines verbatim.
func (b *keyfileBuilder) replace(group, key string, value interface{}) {
	s := b.group(group)
	prefix := key + "="
	for i, l := range s.lines {
		if strings.HasPrefix(l, prefix) {
			s.lines[i] = fmt.Sprintf("%s=%v", key, value)
			return
		}
	}
	s.lines = append(s.lines, fmt.Sprintf("%s=%v", key, value))
}

func (b *keyfileBuilder) String() string {
	var parts []string
	for _, s := range b.sections {
		if len(s.lines) == 0 {
			continue
		}
		parts = append(parts, "["+s.name+"]\n"+strings.Join(s.lines, "\n")+"\n")
	}
	return strings.Join(parts, "\n")
}

// nmType maps a definition to the keyfile connection.type token.
func nmType(d *netdef.NetDef) (string, error) {
	switch d.Type {
	case netdef.TypeEthernet:
		return "ethernet", nil
	case netdef.TypeWifi:
		return "wifi", nil
	case netdef.TypeModem:
		if d.BackendSettings.NM != nil {
			if t, ok := d.BackendSettings.NM.PassthroughGet("connection.type"); ok && t == "cdma" {
				return "cdma", nil
			}
		}
		return "gsm", nil
	case netdef.TypeBridge:
		return "bridge", nil
	case netdef.TypeBond:
		return "bond", nil
	case netdef.TypeVLAN:
		return "vlan", nil
	case netdef.TypeVRF:
		return "vrf", nil
	case netdef.TypeVXLAN:
		return "vxlan", nil
	case netdef.TypeTunnel:
		if d.Tunnel.Mode == netdef.TunnelModeWireGuard {
			return "wireguard", nil
		}
		return "ip-tunnel", nil
	case netdef.TypeNMDevice:
		if nm := d.BackendSettings.NM; nm != nil {
			if t, ok := nm.PassthroughGet("connection.type"); ok {
				return t, nil
			}
		}
		return "", util.NewSemanticError(d.ID, "nm-device passthrough must contain 'connection.type'")
	}
	return "", util.NewUnsupportedError(d.ID, "device type '%s' is not supported by NetworkManager", d.Type)
}

func keyfile(st *state.State, d *netdef.NetDef, ap *netdef.AccessPoint) (string, error) {
	b := newKeyfileBuilder()
	connType, err := nmType(d)
	if err != nil {
		return "", err
	}

	nm := d.BackendSettings.NM
	connID := "netplan-" + d.ID
	if ap != nil {
		connID += "-" + ap.SSID
	}
	if nm != nil && nm.Name != "" {
		connID = nm.Name
	}
	if ap != nil && ap.Backend.NM != nil && ap.Backend.NM.Name != "" {
		connID = ap.Backend.NM.Name
	}
	b.set("connection", "id", connID)
	b.set("connection", "type", connType)

	uuid := ""
	if ap != nil && ap.Backend.NM != nil && ap.Backend.NM.UUID != "" {
		uuid = ap.Backend.NM.UUID
	} else if nm != nil && nm.UUID != "" {
		uuid = nm.UUID
	} else if d.HasVLANs && d.HasMatch {
		// vlan children refer to their parent by UUID when the parent
		// has no fixed interface name
		uuid = d.UUID()
	}
	if uuid != "" {
		b.set("connection", "uuid", uuid)
	}

	ifname, err := nmInterfaceName(d)
	if err != nil {
		return "", err
	}
	if ifname != "" {
		b.set("connection", "interface-name", ifname)
	}
	if nm != nil && nm.StableID != "" {
		b.set("connection", "stable-id", nm.StableID)
	}
	if nm != nil && nm.Device != "" {
		b.replace("connection", "interface-name", nm.Device)
	}
	if d.BridgeID != "" {
		b.set("connection", "slave-type", "bridge")
		b.set("connection", "master", d.BridgeID)
	}
	if d.BondID != "" {
		b.set("connection", "slave-type", "bond")
		b.set("connection", "master", d.BondID)
	}

	typeSections(st, b, d, connType)
	if ap != nil {
		wifiSections(b, d, ap)
	}
	// imported profiles keep their ip configuration in the passthrough;
	// writing the typed defaults would invent lines the original
	// keyfile never had
	if hasIPConfig(d) || !hasPassthrough(d, ap) {
		ipSections(b, d)
	}

	// opaque passthrough, preserved verbatim
	if nm != nil {
		applyPassthrough(b, nm.Passthrough)
	}
	if ap != nil && ap.Backend.NM != nil {
		applyPassthrough(b, ap.Backend.NM.Passthrough)
	}
	return b.String(), nil
}

func applyPassthrough(b *keyfileBuilder, entries []netdef.PassthroughEntry) {
	for _, e := range entries {
		dot := strings.LastIndex(e.Key, ".")
		if dot < 0 {
			continue
		}
		group, key := e.Key[:dot], e.Key[dot+1:]
		b.replace(group, key, e.Value)
	}
}

func hasIPConfig(d *netdef.NetDef) bool {
	return d.DHCP4 || d.DHCP6 || len(d.Addresses) > 0 || d.Gateway4 != "" ||
		d.Gateway6 != "" || len(d.Nameservers) > 0 || len(d.Routes) > 0 ||
		!d.LinkLocal.Empty() || d.AcceptRA == netdef.RAEnabled
}

func hasPassthrough(d *netdef.NetDef, ap *netdef.AccessPoint) bool {
	if nm := d.BackendSettings.NM; nm != nil && len(nm.Passthrough) > 0 {
		return true
	}
	if ap != nil && ap.Backend.NM != nil && len(ap.Backend.NM.Passthrough) > 0 {
		return true
	}
	return false
}

// nmInterfaceName resolves the interface-name key; globbing names
// cannot be expressed and are a render-time error.
func nmInterfaceName(d *netdef.NetDef) (string, error) {
	if d.Type == netdef.TypeNMDevice {
		// passthrough profiles carry their own interface-name if any
		return "", nil
	}
	if d.Type.IsVirtual() {
		return d.ID, nil
	}
	if d.SetName != "" {
		return d.SetName, nil
	}
	if !d.HasMatch {
		return d.ID, nil
	}
	if d.Match.OriginalName != "" {
		if util.HasGlobChars(d.Match.OriginalName) {
			return "", util.NewUnsupportedError(d.ID, "NetworkManager does not support globbing for the interface name ('%s')", d.Match.OriginalName)
		}
		return d.Match.OriginalName, nil
	}
	// pure MAC match: identified via the type section's mac-address
	return "", nil
}

func typeSections(st *state.State, b *keyfileBuilder, d *netdef.NetDef, connType string) {
	switch d.Type {
	case netdef.TypeEthernet:
		if d.MTU != 0 {
			b.set("ethernet", "mtu", d.MTU)
		}
		if d.Match.MAC != "" {
			b.set("ethernet", "mac-address", d.Match.MAC)
		}
		if d.SetMAC != "" {
			b.set("ethernet", "cloned-mac-address", d.SetMAC)
		}
		if d.WakeOnLan {
			b.set("ethernet", "wake-on-lan", 64) // magic packet
		}
	case netdef.TypeWifi:
		if d.MTU != 0 {
			b.set("wifi", "mtu", d.MTU)
		}
		if d.Match.MAC != "" {
			b.set("wifi", "mac-address", d.Match.MAC)
		}
	case netdef.TypeBridge:
		p := d.BridgeParams
		if p.AgeingTime != "" {
			b.set("bridge", "ageing-time", p.AgeingTime)
		}
		if p.Priority != 0 {
			b.set("bridge", "priority", p.Priority)
		}
		if p.ForwardDelay != "" {
			b.set("bridge", "forward-delay", p.ForwardDelay)
		}
		if p.HelloTime != "" {
			b.set("bridge", "hello-time", p.HelloTime)
		}
		if p.MaxAge != "" {
			b.set("bridge", "max-age", p.MaxAge)
		}
		if p.STP.IsSet() {
			b.set("bridge", "stp", p.STP.Value())
		}
	case netdef.TypeBond:
		p := d.BondParams
		if p.Mode != "" {
			b.set("bond", "mode", p.Mode)
		}
		if p.LACPRate != "" {
			b.set("bond", "lacp_rate", p.LACPRate)
		}
		if p.MonitorInterval != "" {
			b.set("bond", "miimon", p.MonitorInterval)
		}
		if p.MinLinks != 0 {
			b.set("bond", "min_links", p.MinLinks)
		}
		if p.TransmitHashPolicy != "" {
			b.set("bond", "xmit_hash_policy", p.TransmitHashPolicy)
		}
		if p.Primary != "" {
			b.set("bond", "primary", p.Primary)
		}
	case netdef.TypeVLAN:
		b.set("vlan", "id", d.VLANID)
		if parent := d.VLANLink(); parent != nil {
			if parent.HasMatch && parent.Backend == netdef.BackendNM {
				b.set("vlan", "parent", parent.UUID())
			} else {
				b.set("vlan", "parent", parent.ID)
			}
		}
	case netdef.TypeVRF:
		b.set("vrf", "table", d.VRFTable)
	case netdef.TypeTunnel:
		tunnelSections(b, d, connType)
	case netdef.TypeModem:
		modemSections(b, d)
	}

	// bridge member port tuning lives on the member's profile
	if parent := d.BridgeLink(); parent != nil {
		if pri, ok := parent.BridgeParams.PortPriority[d.ID]; ok {
			b.set("bridge-port", "priority", pri)
		}
		if cost, ok := parent.BridgeParams.PathCost[d.ID]; ok {
			b.set("bridge-port", "path-cost", cost)
		}
	}
}

var nmTunnelModes = map[netdef.TunnelMode]int{
	netdef.TunnelModeIPIP:   1,
	netdef.TunnelModeGRE:    2,
	netdef.TunnelModeSIT:    3,
	netdef.TunnelModeISATAP: 4,
	netdef.TunnelModeVTI:    5,
	netdef.TunnelModeIP6IP6: 6,
	netdef.TunnelModeIPIP6:  7,
	netdef.TunnelModeIP6GRE: 8,
	netdef.TunnelModeVTI6:   9,
}

func tunnelSections(b *keyfileBuilder, d *netdef.NetDef, connType string) {
	t := d.Tunnel
	if connType == "wireguard" {
		if t.PrivateKey != "" {
			b.set("wireguard", "private-key", t.PrivateKey)
		}
		if t.Port != 0 {
			b.set("wireguard", "listen-port", t.Port)
		}
		if t.FWMark != 0 {
			b.set("wireguard", "fwmark", t.FWMark)
		}
		for _, peer := range d.WireguardPeers {
			group := "wireguard-peer." + peer.PublicKey
			if peer.Endpoint != "" {
				b.set(group, "endpoint", peer.Endpoint)
			}
			if peer.PresharedKey != "" {
				b.set(group, "preshared-key", peer.PresharedKey)
				b.set(group, "preshared-key-flags", 0)
			}
			if len(peer.AllowedIPs) > 0 {
				b.set(group, "allowed-ips", strings.Join(peer.AllowedIPs, ";")+";")
			}
			if peer.Keepalive != 0 {
				b.set(group, "persistent-keepalive", peer.Keepalive)
			}
		}
		return
	}
	b.set("ip-tunnel", "mode", nmTunnelModes[t.Mode])
	if t.Local != "" {
		b.set("ip-tunnel", "local", t.Local)
	}
	if t.Remote != "" {
		b.set("ip-tunnel", "remote", t.Remote)
	}
	if t.TTL != 0 {
		b.set("ip-tunnel", "ttl", t.TTL)
	}
	if t.InputKey != "" {
		b.set("ip-tunnel", "input-key", t.InputKey)
	}
	if t.OutputKey != "" {
		b.set("ip-tunnel", "output-key", t.OutputKey)
	}
}

func modemSections(b *keyfileBuilder, d *netdef.NetDef) {
	mp := d.ModemParams
	if mp.APN != "" {
		b.set("gsm", "apn", mp.APN)
	}
	if mp.AutoConfig {
		b.set("gsm", "auto-config", "true")
	}
	if mp.DeviceID != "" {
		b.set("gsm", "device-id", mp.DeviceID)
	}
	if mp.NetworkID != "" {
		b.set("gsm", "network-id", mp.NetworkID)
	}
	if mp.Number != "" {
		b.set("gsm", "number", mp.Number)
	}
	if mp.Password != "" {
		b.set("gsm", "password", mp.Password)
	}
	if mp.PIN != "" {
		b.set("gsm", "pin", mp.PIN)
	}
	if mp.SIMID != "" {
		b.set("gsm", "sim-id", mp.SIMID)
	}
	if mp.SIMOperatorID != "" {
		b.set("gsm", "sim-operator-id", mp.SIMOperatorID)
	}
	if mp.Username != "" {
		b.set("gsm", "username", mp.Username)
	}
}

func wifiSections(b *keyfileBuilder, d *netdef.NetDef, ap *netdef.AccessPoint) {
	b.set("wifi", "ssid", ap.SSID)
	mode := "infrastructure"
	switch ap.Mode {
	case netdef.WifiModeAdhoc:
		mode = "adhoc"
	case netdef.WifiModeAP:
		mode = "ap"
	}
	b.set("wifi", "mode", mode)
	if ap.BSSID != "" {
		b.set("wifi", "bssid", ap.BSSID)
	}
	if ap.Hidden {
		b.set("wifi", "hidden", "true")
	}
	if ap.Band == netdef.WifiBand24 {
		b.set("wifi", "band", "bg")
	} else if ap.Band == netdef.WifiBand5 {
		b.set("wifi", "band", "a")
	}
	if ap.Channel != 0 {
		b.set("wifi", "channel", ap.Channel)
	}
	if ap.HasAuth && ap.Auth.Password != "" {
		switch ap.Auth.KeyManagement {
		case netdef.AuthKeyManagementPSK:
			b.set("wifi-security", "key-mgmt", "wpa-psk")
			b.set("wifi-security", "psk", ap.Auth.Password)
		case netdef.AuthKeyManagementEAP:
			b.set("wifi-security", "key-mgmt", "wpa-eap")
		case netdef.AuthKeyManagement8021X:
			b.set("wifi-security", "key-mgmt", "ieee8021x")
		}
	}
}

// ipSections emits [ipv4] and [ipv6]; an interface with no IPv6
// presence gets method=ignore.
func ipSections(b *keyfileBuilder, d *netdef.NetDef) {
	var v4Addrs, v6Addrs []string
	for _, a := range d.Addresses {
		if f, err := util.ValidateCIDR(a); err == nil && f == util.AFInet6 {
			v6Addrs = append(v6Addrs, a)
		} else {
			v4Addrs = append(v4Addrs, a)
		}
	}
	var v4DNS, v6DNS []string
	for _, ns := range d.Nameservers {
		if util.IPFamily(ns) == util.AFInet6 {
			v6DNS = append(v6DNS, ns)
		} else {
			v4DNS = append(v4DNS, ns)
		}
	}

	method4 := "disabled"
	switch {
	case d.DHCP4:
		method4 = "auto"
	case len(v4Addrs) > 0:
		method4 = "manual"
	case d.LinkLocal.IPv4:
		method4 = "link-local"
	}
	b.set("ipv4", "method", method4)
	for i, a := range v4Addrs {
		b.set("ipv4", fmt.Sprintf("address%d", i+1), a)
	}
	if d.Gateway4 != "" {
		b.set("ipv4", "gateway", d.Gateway4)
	}
	if len(v4DNS) > 0 {
		b.set("ipv4", "dns", util.NormalizeIPList(v4DNS, ";"))
	}
	if len(d.SearchDomains) > 0 {
		b.set("ipv4", "dns-search", util.NormalizeIPList(d.SearchDomains, ";"))
	}
	routeIdx := 1
	for _, r := range d.Routes {
		if r.Family != util.AFInet {
			continue
		}
		b.set("ipv4", fmt.Sprintf("route%d", routeIdx), nmRoute(r))
		routeIdx++
	}

	hasV6 := d.DHCP6 || len(v6Addrs) > 0 || d.AcceptRA == netdef.RAEnabled ||
		d.Gateway6 != "" || len(v6DNS) > 0 || d.LinkLocal.IPv6
	if !hasV6 {
		b.set("ipv6", "method", "ignore")
		return
	}
	method6 := "link-local"
	switch {
	case d.DHCP6 || d.AcceptRA == netdef.RAEnabled:
		method6 = "auto"
	case len(v6Addrs) > 0:
		method6 = "manual"
	}
	b.set("ipv6", "method", method6)
	if d.IPv6AddrGen != netdef.AddrGenDefault {
		b.set("ipv6", "addr-gen-mode", nmAddrGenMode(d.IPv6AddrGen))
	}
	if d.IPv6AddressToken != "" {
		b.set("ipv6", "token", d.IPv6AddressToken)
	}
	if d.IPv6Privacy.IsSet() && d.IPv6Privacy.Value() {
		b.set("ipv6", "ip6-privacy", 2)
	}
	for i, a := range v6Addrs {
		b.set("ipv6", fmt.Sprintf("address%d", i+1), a)
	}
	if d.Gateway6 != "" {
		b.set("ipv6", "gateway", d.Gateway6)
	}
	if len(v6DNS) > 0 {
		b.set("ipv6", "dns", util.NormalizeIPList(v6DNS, ";"))
	}
	routeIdx = 1
	for _, r := range d.Routes {
		if r.Family != util.AFInet6 {
			continue
		}
		b.set("ipv6", fmt.Sprintf("route%d", routeIdx), nmRoute(r))
		routeIdx++
	}
}

func nmAddrGenMode(m netdef.AddrGenMode) int {
	if m == netdef.AddrGenEUI64 {
		return 0
	}
	return 1
}

func nmRoute(r netdef.Route) string {
	to := r.To
	if to == "default" {
		if r.Family == util.AFInet6 {
			to = "::/0"
		} else {
			to = "0.0.0.0/0"
		}
	}
	out := to
	if r.Via != "" {
		out += "," + r.Via
	}
	if r.Metric != netdef.MetricUnspec {
		out += fmt.Sprintf(",%d", r.Metric)
	}
	return out
}

// Finish writes the unmanaged-devices configuration so NetworkManager
// leaves devices owned by other renderers alone, the zero-length
// globally-managed-devices override, and the udev rules for driver-only
// matches.
func Finish(st *state.State, rootdir string) error {
	var specs []string
	var udevRules []string
	for _, d := range st.NetDefs() {
		if d.Backend == netdef.BackendNM || d.Type == netdef.TypeNMDevice {
			continue
		}
		switch {
		case d.Match.MAC != "":
			specs = append(specs, "mac:"+d.Match.MAC)
		case d.Type.IsVirtual():
			specs = append(specs, "interface-name:"+d.ID)
		case d.SetName != "":
			specs = append(specs, "interface-name:"+d.SetName)
		case d.Match.OriginalName != "":
			specs = append(specs, "interface-name:"+d.Match.OriginalName)
		case !d.HasMatch:
			specs = append(specs, "interface-name:"+d.ID)
		}
		if d.Match.Driver != "" {
			for _, drv := range util.SplitTab(d.Match.Driver) {
				udevRules = append(udevRules,
					fmt.Sprintf("ACTION==\"add|change\", SUBSYSTEM==\"net\", ENV{ID_NET_DRIVER}==\"%s\", ENV{NM_UNMANAGED}=\"1\"", drv))
			}
		}
	}

	confDir := filepath.Join(rootdir, "run/NetworkManager/conf.d")
	if len(specs) > 0 {
		content := "[keyfile]\nunmanaged-devices+=" + strings.Join(specs, ",") + "\n"
		if err := util.AtomicWrite(filepath.Join(confDir, "netplan.conf"), content, util.ConfigMode); err != nil {
			return err
		}
	}
	// zero-length override masking the distro's globally-managed-devices
	if err := util.AtomicWrite(filepath.Join(confDir, "10-globally-managed-devices.conf"), "", util.ConfigMode); err != nil {
		return err
	}
	if len(udevRules) > 0 {
		content := strings.Join(udevRules, "\n") + "\n"
		path := filepath.Join(rootdir, "run/udev/rules.d/90-netplan.rules")
		if err := util.AtomicWrite(path, content, util.ConfigMode); err != nil {
			return err
		}
	}
	return nil
}
