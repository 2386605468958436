// Package networkd renders definitions into systemd-networkd
// configuration: .link, .netdev and .network files under
// run/systemd/network, udev rename rules, WPA supplicant units, the
// regulatory-domain unit and the wait-online override.
package networkd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/state"
	"github.com/netplan-go/netplan/pkg/util"
)

// Cleanup removes every file a previous generation pass produced.
// Deletion is bounded by the stable output globs and is idempotent.
func Cleanup(rootdir string) error {
	globs := []string{
		"run/systemd/network/10-netplan-*.link",
		"run/systemd/network/10-netplan-*.netdev",
		"run/systemd/network/10-netplan-*.network",
		"run/udev/rules.d/99-netplan-*.rules",
		"run/netplan/wpa-*.conf",
		"run/systemd/system/netplan-wpa-*.service",
		"run/systemd/system/systemd-networkd.service.wants/netplan-wpa-*.service",
		"run/systemd/system/netplan-regdom.service",
		"run/systemd/system/network.target.wants/netplan-regdom.service",
		"run/systemd/system/systemd-networkd-wait-online.service.d/10-netplan.conf",
	}
	for _, g := range globs {
		if err := util.CleanupGlob(filepath.Join(rootdir, g)); err != nil {
			return err
		}
	}
	return nil
}

// WriteState renders every networkd-managed definition plus the
// wait-online override.
func WriteState(st *state.State, rootdir string) error {
	for _, d := range st.NetDefs() {
		if d.Backend != netdef.BackendNetworkd {
			continue
		}
		if err := Write(st, d, rootdir); err != nil {
			return err
		}
	}
	return WriteWaitOnline(st, rootdir)
}

// Write renders one definition's networkd artifacts.
func Write(st *state.State, d *netdef.NetDef, rootdir string) error {
	log := util.WithNetdef(d.ID)
	base := filepath.Join(rootdir, "run/systemd/network", "10-netplan-"+util.URIEscape(d.ID))

	if !d.Type.IsVirtual() {
		if content := linkFile(d); content != "" {
			if err := util.AtomicWrite(base+".link", content, util.ConfigMode); err != nil {
				return err
			}
			log.Debug("wrote .link file")
		}
	}
	if d.Type.IsVirtual() {
		content, err := netdevFile(d)
		if err != nil {
			return err
		}
		if err := util.AtomicWrite(base+".netdev", content, netdevMode(d)); err != nil {
			return err
		}
		log.Debug("wrote .netdev file")
	}
	content, err := networkFile(st, d)
	if err != nil {
		return err
	}
	if content != "" {
		if err := util.AtomicWrite(base+".network", content, util.ConfigMode); err != nil {
			return err
		}
		log.Debug("wrote .network file")
	}
	if rules := udevRules(d); rules != "" {
		path := filepath.Join(rootdir, "run/udev/rules.d", "99-netplan-"+d.ID+".rules")
		if err := util.AtomicWrite(path, rules, util.ConfigMode); err != nil {
			return err
		}
	}
	if d.Type == netdef.TypeWifi || d.HasAuth {
		if err := writeWPA(d, rootdir); err != nil {
			return err
		}
	}
	if d.RegulatoryDomain != "" {
		if err := writeRegdom(d, rootdir); err != nil {
			return err
		}
	}
	return nil
}

// netdevMode keeps wireguard private keys out of world-readable files.
func netdevMode(d *netdef.NetDef) os.FileMode {
	if d.Type == netdef.TypeTunnel && d.Tunnel.Mode == netdef.TunnelModeWireGuard {
		return util.SecretMode
	}
	return util.ConfigMode
}

// matchName returns the interface name used in [Match] sections and the
// wait-online list: virtual devices answer to their id, renamed devices
// to their set-name, plain matches to the original name unless it
// globs, and match-less definitions directly to their id.
func matchName(d *netdef.NetDef) string {
	if d.Type.IsVirtual() {
		return d.ID
	}
	if d.SetName != "" {
		return d.SetName
	}
	if !d.HasMatch {
		return d.ID
	}
	if d.Match.OriginalName != "" && !util.HasGlobChars(d.Match.OriginalName) {
		return d.Match.OriginalName
	}
	return ""
}

// section builds one INI-style unit section, skipping emission entirely
// when no line was added.
type section struct {
	name  string
	lines []string
}

func newSection(name string) *section { return &section{name: name} }

func (s *section) add(key string, value interface{}) {
	s.lines = append(s.lines, fmt.Sprintf("%s=%v", key, value))
}

func (s *section) empty() bool { return len(s.lines) == 0 }

func joinSections(sections ...*section) string {
	var parts []string
	for _, s := range sections {
		if s == nil || s.empty() {
			continue
		}
		parts = append(parts, "["+s.name+"]\n"+strings.Join(s.lines, "\n")+"\n")
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n")
}

// linkFile renders the .link file, or "" when none is needed.
func linkFile(d *netdef.NetDef) string {
	hasOffloads := false
	for i := netdef.Offload(0); i < netdef.OffloadCount; i++ {
		if d.Offloads[i].IsSet() {
			hasOffloads = true
			break
		}
	}
	if d.SetName == "" && !d.WakeOnLan && d.MTU == 0 && d.SetMAC == "" && !hasOffloads {
		return ""
	}
	match := newSection("Match")
	addMatch(match, d)
	link := newSection("Link")
	if d.SetName != "" {
		link.add("Name", d.SetName)
	}
	wol := "off"
	if d.WakeOnLan {
		wol = "magic"
	}
	link.add("WakeOnLan", wol)
	if d.MTU != 0 {
		link.add("MTUBytes", d.MTU)
	}
	if d.SetMAC != "" {
		link.add("MACAddress", d.SetMAC)
	}
	for i := netdef.Offload(0); i < netdef.OffloadCount; i++ {
		if d.Offloads[i].IsSet() {
			link.add(i.NetworkdKey(), d.Offloads[i].Value())
		}
	}
	return joinSections(match, link)
}

func addMatch(s *section, d *netdef.NetDef) {
	if d.Match.Driver != "" {
		s.add("Driver", strings.Join(util.SplitTab(d.Match.Driver), " "))
	}
	if d.Match.MAC != "" {
		s.add("MACAddress", d.Match.MAC)
	}
	if d.Match.OriginalName != "" {
		s.add("OriginalName", d.Match.OriginalName)
	}
}

// netdevFile renders the .netdev file for a virtual definition.
func netdevFile(d *netdef.NetDef) (string, error) {
	nd := newSection("NetDev")
	nd.add("Name", d.ID)
	if d.SetMAC != "" {
		nd.add("MACAddress", d.SetMAC)
	}
	if d.MTU != 0 {
		nd.add("MTUBytes", d.MTU)
	}
	var extra []*section
	switch d.Type {
	case netdef.TypeBridge:
		nd.add("Kind", "bridge")
		if d.CustomBridging {
			extra = append(extra, bridgeSection(d))
		}
	case netdef.TypeBond:
		nd.add("Kind", "bond")
		if s := bondSection(d); !s.empty() {
			extra = append(extra, s)
		}
	case netdef.TypeVLAN:
		nd.add("Kind", "vlan")
		vs := newSection("VLAN")
		vs.add("Id", d.VLANID)
		extra = append(extra, vs)
	case netdef.TypeVRF:
		nd.add("Kind", "vrf")
		vs := newSection("VRF")
		vs.add("Table", d.VRFTable)
		extra = append(extra, vs)
	case netdef.TypeVXLAN:
		nd.add("Kind", "vxlan")
		extra = append(extra, vxlanSection(d))
	case netdef.TypeTunnel:
		if d.Tunnel.Mode == netdef.TunnelModeWireGuard {
			nd.add("Kind", "wireguard")
			extra = append(extra, wireguardSections(d)...)
			break
		}
		nd.add("Kind", tunnelKind(d.Tunnel.Mode))
		extra = append(extra, tunnelSection(d))
	default:
		return "", util.NewSemanticError(d.ID, "cannot render virtual device type '%s' with networkd", d.Type)
	}
	sections := append([]*section{nd}, extra...)
	return joinSections(sections...), nil
}

// tunnelKind maps the tunnel mode to the netdev Kind; the two modes
// sharing the ip6tnl kernel driver are selected via [Tunnel] Mode=.
func tunnelKind(m netdef.TunnelMode) string {
	switch m {
	case netdef.TunnelModeIPIP6, netdef.TunnelModeIP6IP6:
		return "ip6tnl"
	}
	return m.String()
}

func tunnelSection(d *netdef.NetDef) *section {
	t := d.Tunnel
	s := newSection("Tunnel")
	s.add("Independent", "true")
	if t.Local != "" {
		s.add("Local", t.Local)
	}
	if t.Remote != "" {
		s.add("Remote", t.Remote)
	}
	if t.TTL != 0 {
		s.add("TTL", t.TTL)
	}
	if t.InputKey != "" {
		s.add("InputKey", t.InputKey)
	}
	if t.OutputKey != "" {
		s.add("OutputKey", t.OutputKey)
	}
	if t.Mode == netdef.TunnelModeIPIP6 || t.Mode == netdef.TunnelModeIP6IP6 {
		s.add("Mode", t.Mode.String())
	}
	return s
}

func wireguardSections(d *netdef.NetDef) []*section {
	t := d.Tunnel
	wg := newSection("WireGuard")
	if strings.HasPrefix(t.PrivateKey, "/") {
		wg.add("PrivateKeyFile", t.PrivateKey)
	} else {
		wg.add("PrivateKey", t.PrivateKey)
	}
	if t.Port != 0 {
		wg.add("ListenPort", t.Port)
	}
	if t.FWMark != 0 {
		wg.add("FwMark", t.FWMark)
	}
	out := []*section{wg}
	for _, peer := range d.WireguardPeers {
		ps := newSection("WireGuardPeer")
		ps.add("PublicKey", peer.PublicKey)
		if len(peer.AllowedIPs) > 0 {
			ps.add("AllowedIPs", strings.Join(peer.AllowedIPs, ","))
		}
		if peer.Keepalive != 0 {
			ps.add("PersistentKeepalive", peer.Keepalive)
		}
		if peer.Endpoint != "" {
			ps.add("Endpoint", peer.Endpoint)
		}
		if peer.PresharedKey != "" {
			if strings.HasPrefix(peer.PresharedKey, "/") {
				ps.add("PresharedKeyFile", peer.PresharedKey)
			} else {
				ps.add("PresharedKey", peer.PresharedKey)
			}
		}
		out = append(out, ps)
	}
	return out
}

func vxlanSection(d *netdef.NetDef) *section {
	v := d.VXLAN
	s := newSection("VXLAN")
	s.add("VNI", v.VNI)
	if v.Local != "" {
		s.add("Local", v.Local)
	}
	if v.Remote != "" {
		s.add("Remote", v.Remote)
	}
	if v.TTL != 0 {
		s.add("TTL", v.TTL)
	}
	if v.FlowLabel != 0 {
		s.add("FlowLabel", v.FlowLabel)
	}
	if v.Port != 0 {
		s.add("DestinationPort", v.Port)
	}
	if v.MacLearning.IsSet() {
		s.add("MacLearning", v.MacLearning.Value())
	}
	if v.ShortCircuit.IsSet() {
		s.add("RouteShortCircuit", v.ShortCircuit.Value())
	}
	return s
}

// bondSection maps every set bond parameter to its networkd [Bond] key.
func bondSection(d *netdef.NetDef) *section {
	p := d.BondParams
	s := newSection("Bond")
	if p.Mode != "" {
		s.add("Mode", p.Mode)
	}
	if p.LACPRate != "" {
		s.add("LACPTransmitRate", p.LACPRate)
	}
	if p.MonitorInterval != "" {
		s.add("MIIMonitorSec", p.MonitorInterval)
	}
	if p.MinLinks != 0 {
		s.add("MinLinks", p.MinLinks)
	}
	if p.TransmitHashPolicy != "" {
		s.add("TransmitHashPolicy", p.TransmitHashPolicy)
	}
	if p.SelectionLogic != "" {
		s.add("AdSelect", p.SelectionLogic)
	}
	if p.AllMembersActive.IsSet() {
		s.add("AllSlavesActive", p.AllMembersActive.Value())
	}
	if p.ARPInterval != "" {
		s.add("ARPIntervalSec", p.ARPInterval)
	}
	if len(p.ARPIPTargets) > 0 {
		s.add("ARPIPTargets", strings.Join(p.ARPIPTargets, " "))
	}
	if p.ARPValidate != "" {
		s.add("ARPValidate", p.ARPValidate)
	}
	if p.ARPAllTargets != "" {
		s.add("ARPAllTargets", p.ARPAllTargets)
	}
	if p.UpDelay != "" {
		s.add("UpDelaySec", p.UpDelay)
	}
	if p.DownDelay != "" {
		s.add("DownDelaySec", p.DownDelay)
	}
	if p.FailOverMACPolicy != "" {
		s.add("FailOverMACPolicy", p.FailOverMACPolicy)
	}
	if p.GratuitousARP != 0 {
		s.add("GratuitousARP", p.GratuitousARP)
	}
	if p.PacketsPerMember != 0 {
		s.add("PacketsPerSlave", p.PacketsPerMember)
	}
	if p.PrimaryReselectPolicy != "" {
		s.add("PrimaryReselectPolicy", p.PrimaryReselectPolicy)
	}
	if p.ResendIGMP != 0 {
		s.add("ResendIGMP", p.ResendIGMP)
	}
	if p.LearnInterval != "" {
		s.add("LearnPacketIntervalSec", p.LearnInterval)
	}
	return s
}

func bridgeSection(d *netdef.NetDef) *section {
	p := d.BridgeParams
	s := newSection("Bridge")
	if p.AgeingTime != "" {
		s.add("AgeingTimeSec", p.AgeingTime)
	}
	if p.Priority != 0 {
		s.add("Priority", p.Priority)
	}
	if p.ForwardDelay != "" {
		s.add("ForwardDelaySec", p.ForwardDelay)
	}
	if p.HelloTime != "" {
		s.add("HelloTimeSec", p.HelloTime)
	}
	if p.MaxAge != "" {
		s.add("MaxAgeSec", p.MaxAge)
	}
	if p.STP.IsSet() {
		s.add("STP", p.STP.Value())
	}
	return s
}

