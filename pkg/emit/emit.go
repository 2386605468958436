// Package emit serializes a State (or a single definition) back to
// canonical YAML: block style throughout, fixed key order per definition
// type, plain scalars for identifiers and enum tokens, double quotes for
// free-form strings.
package emit

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/state"
	"github.com/netplan-go/netplan/pkg/util"
)

// node constructors; free-form strings get the double-quoted style so
// values like "yes", MACs and passwords survive a round trip as strings.

func plain(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}

func quoted(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v, Style: yaml.DoubleQuotedStyle}
}

func intNode(v int64) *yaml.Node {
	return plain(fmt.Sprintf("%d", v))
}

func boolNode(v bool) *yaml.Node {
	if v {
		return plain("true")
	}
	return plain("false")
}

type mapping struct {
	node *yaml.Node
}

func newMapping() *mapping {
	return &mapping{node: &yaml.Node{Kind: yaml.MappingNode}}
}

func (m *mapping) set(key string, value *yaml.Node) {
	m.node.Content = append(m.node.Content, plain(key), value)
}

func (m *mapping) setKeyNode(key, value *yaml.Node) {
	m.node.Content = append(m.node.Content, key, value)
}

func (m *mapping) empty() bool { return len(m.node.Content) == 0 }

func sequence(items ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Content: items}
}

func quotedSeq(items []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, it := range items {
		seq.Content = append(seq.Content, quoted(it))
	}
	return seq
}

// DumpState writes the canonical YAML document for the whole state.
func DumpState(s *state.State, w io.Writer) error {
	root, err := stateNode(s)
	if err != nil {
		return err
	}
	return encode(root, w)
}

// DumpNetDef writes a document holding a single definition under its
// type group.
func DumpNetDef(s *state.State, d *netdef.NetDef, w io.Writer) error {
	network := newMapping()
	network.set("version", intNode(2))
	group := newMapping()
	group.set(d.ID, netdefNode(s, d))
	network.set(d.Type.String(), group.node)
	root := newMapping()
	root.set("network", network.node)
	return encode(root.node, w)
}

func encode(root *yaml.Node, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		enc.Close()
		return fmt.Errorf("%w: %v", util.ErrEmitter, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("%w: %v", util.ErrEmitter, err)
	}
	return nil
}

// groupOrder fixes the emission order of the type groups.
var groupOrder = []netdef.Type{
	netdef.TypeEthernet,
	netdef.TypeWifi,
	netdef.TypeModem,
	netdef.TypeBridge,
	netdef.TypeBond,
	netdef.TypeVLAN,
	netdef.TypeVRF,
	netdef.TypeTunnel,
	netdef.TypeVXLAN,
	netdef.TypeNMDevice,
	netdef.TypePort,
}

func stateNode(s *state.State) (*yaml.Node, error) {
	network := newMapping()
	network.set("version", intNode(2))
	if s.Backend() != netdef.BackendNone {
		network.set("renderer", plain(s.Backend().String()))
	}
	if ovs := s.OVS(); ovs != nil {
		if n := ovsNode(ovs, true); !n.empty() {
			network.set("openvswitch", n.node)
		}
	}
	for _, t := range groupOrder {
		defs := s.NetDefsByType(t)
		if len(defs) == 0 {
			continue
		}
		group := newMapping()
		for _, d := range defs {
			group.set(d.ID, netdefNode(s, d))
		}
		network.set(t.String(), group.node)
	}
	root := newMapping()
	root.set("network", network.node)
	return root.node, nil
}

// netdefNode emits one definition in the canonical key order.
func netdefNode(s *state.State, d *netdef.NetDef) *yaml.Node {
	m := newMapping()
	// OpenVSwitch is implied by the openvswitch block and never a valid
	// YAML renderer token
	if (d.Backend == netdef.BackendNetworkd || d.Backend == netdef.BackendNM) &&
		d.Type != netdef.TypeNMDevice {
		m.set("renderer", plain(d.Backend.String()))
	}

	// device selection
	if d.HasMatch {
		mm := newMapping()
		if d.Match.OriginalName != "" {
			mm.set("name", quoted(d.Match.OriginalName))
		}
		if d.Match.MAC != "" {
			mm.set("macaddress", quoted(d.Match.MAC))
		}
		if globs := util.SplitTab(d.Match.Driver); len(globs) == 1 {
			mm.set("driver", quoted(globs[0]))
		} else if len(globs) > 1 {
			mm.set("driver", quotedSeq(globs))
		}
		m.set("match", mm.node)
	}
	if d.SetName != "" {
		m.set("set-name", quoted(d.SetName))
	}
	if d.WakeOnLan {
		m.set("wakeonlan", boolNode(true))
	}

	// addressing
	if d.DHCP4 {
		m.set("dhcp4", boolNode(true))
	}
	if d.DHCP6 {
		m.set("dhcp6", boolNode(true))
	}
	if d.DHCPIdentifier != "" {
		m.set("dhcp-identifier", plain(d.DHCPIdentifier))
	}
	if n := dhcpOverridesNode(d.DHCP4Overrides); !n.empty() {
		m.set("dhcp4-overrides", n.node)
	}
	if n := dhcpOverridesNode(d.DHCP6Overrides); !n.empty() {
		m.set("dhcp6-overrides", n.node)
	}
	if d.AcceptRA != netdef.RAKernel {
		m.set("accept-ra", boolNode(d.AcceptRA == netdef.RAEnabled))
	}
	if len(d.Addresses) > 0 {
		m.set("addresses", addressesNode(d))
	}
	if d.Gateway4 != "" {
		m.set("gateway4", quoted(d.Gateway4))
	}
	if d.Gateway6 != "" {
		m.set("gateway6", quoted(d.Gateway6))
	}
	if len(d.Nameservers) > 0 || len(d.SearchDomains) > 0 {
		ns := newMapping()
		if len(d.SearchDomains) > 0 {
			ns.set("search", quotedSeq(d.SearchDomains))
		}
		if len(d.Nameservers) > 0 {
			ns.set("addresses", quotedSeq(d.Nameservers))
		}
		m.set("nameservers", ns.node)
	}
	if len(d.Routes) > 0 {
		m.set("routes", routesNode(d.Routes))
	}
	if len(d.IPRules) > 0 {
		m.set("routing-policy", rulesNode(d.IPRules))
	}
	if d.LinkLocal != netdef.DefaultLinkLocal() {
		var items []*yaml.Node
		if d.LinkLocal.IPv4 {
			items = append(items, plain("ipv4"))
		}
		if d.LinkLocal.IPv6 {
			items = append(items, plain("ipv6"))
		}
		m.set("link-local", sequence(items...))
	}

	// link properties
	if d.Critical {
		m.set("critical", boolNode(true))
	}
	if d.Optional {
		m.set("optional", boolNode(true))
	}
	if d.OptionalAddrs != 0 {
		m.set("optional-addresses", quotedSeq(netdef.NetworkdOptionalTokens(d.OptionalAddrs)))
	}
	if d.SetMAC != "" {
		m.set("macaddress", quoted(d.SetMAC))
	}
	if d.MTU != 0 {
		m.set("mtu", intNode(int64(d.MTU)))
	}
	if d.IPv6MTU != 0 {
		m.set("ipv6-mtu", intNode(int64(d.IPv6MTU)))
	}
	if d.IPv6Privacy.IsSet() {
		m.set("ipv6-privacy", boolNode(d.IPv6Privacy.Value()))
	}
	if d.IPv6AddrGen != netdef.AddrGenDefault {
		m.set("ipv6-address-generation", plain(d.IPv6AddrGen.String()))
	}
	if d.IPv6AddressToken != "" {
		m.set("ipv6-address-token", quoted(d.IPv6AddressToken))
	}
	if d.EmitLLDP {
		m.set("emit-lldp", boolNode(true))
	}
	for i := netdef.Offload(0); i < netdef.OffloadCount; i++ {
		if d.Offloads[i].IsSet() {
			m.set(i.YAMLKey(), boolNode(d.Offloads[i].Value()))
		}
	}

	typeSpecificNodes(s, d, m)

	if d.HasAuth {
		m.set("auth", authNode(d.Auth).node)
	}
	if nm := d.BackendSettings.NM; nm != nil {
		m.set("networkmanager", nmSettingsNode(nm).node)
	}
	if d.OVS != nil {
		if n := ovsNode(d.OVS, false); !n.empty() {
			m.set("openvswitch", n.node)
		}
	}
	return m.node
}

func typeSpecificNodes(s *state.State, d *netdef.NetDef, m *mapping) {
	switch d.Type {
	case netdef.TypeEthernet:
		if d.SRIOVLinkID != "" {
			m.set("link", plain(d.SRIOVLinkID))
		}
		if d.SRIOVExplicitVFCount != netdef.SRIOVNoVFCount {
			m.set("virtual-function-count", intNode(int64(d.SRIOVExplicitVFCount)))
		}
		if d.EmbeddedSwitchMode != "" {
			m.set("embedded-switch-mode", plain(d.EmbeddedSwitchMode))
		}
		if d.DelayVFRebind {
			m.set("delay-virtual-functions-rebind", boolNode(true))
		}
	case netdef.TypeWifi:
		if len(d.APOrder) > 0 {
			aps := newMapping()
			for _, ssid := range d.APOrder {
				aps.setKeyNode(quoted(ssid), accessPointNode(d.AccessPoints[ssid]))
			}
			m.set("access-points", aps.node)
		}
		if d.RegulatoryDomain != "" {
			m.set("regulatory-domain", quoted(d.RegulatoryDomain))
		}
	case netdef.TypeModem:
		modemNodes(d, m)
	case netdef.TypeBridge, netdef.TypeBond:
		if members := memberIDs(s, d); len(members) > 0 {
			m.set("interfaces", plainSeq(members))
		}
		if d.Type == netdef.TypeBridge && d.CustomBridging {
			if n := bridgeParamsNode(d.BridgeParams); !n.empty() {
				m.set("parameters", n.node)
			}
		}
		if d.Type == netdef.TypeBond {
			if n := bondParamsNode(d.BondParams); !n.empty() {
				m.set("parameters", n.node)
			}
		}
	case netdef.TypeVLAN:
		if d.VLANID >= 0 {
			m.set("id", intNode(int64(d.VLANID)))
		}
		if d.VLANLinkID != "" {
			m.set("link", plain(d.VLANLinkID))
		}
	case netdef.TypeVRF:
		if d.VRFTable != netdef.TableUnspec {
			m.set("table", intNode(int64(d.VRFTable)))
		}
		if members := memberIDs(s, d); len(members) > 0 {
			m.set("interfaces", plainSeq(members))
		}
	case netdef.TypeTunnel:
		tunnelNodes(d, m)
	case netdef.TypeVXLAN:
		vxlanNodes(d, m)
	case netdef.TypePort:
		if d.PeerID != "" {
			m.set("peer", plain(d.PeerID))
		}
	}
}

func memberIDs(s *state.State, parent *netdef.NetDef) []string {
	var out []string
	for _, d := range s.NetDefs() {
		switch parent.Type {
		case netdef.TypeBridge:
			if d.BridgeID == parent.ID {
				out = append(out, d.ID)
			}
		case netdef.TypeBond:
			if d.BondID == parent.ID {
				out = append(out, d.ID)
			}
		case netdef.TypeVRF:
			if d.VRFLinkID == parent.ID {
				out = append(out, d.ID)
			}
		}
	}
	return out
}

func plainSeq(items []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, it := range items {
		seq.Content = append(seq.Content, plain(it))
	}
	return seq
}

func addressesNode(d *netdef.NetDef) *yaml.Node {
	opts := make(map[string]netdef.AddressOptions, len(d.AddressOptions))
	for _, ao := range d.AddressOptions {
		opts[ao.Address] = ao
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, a := range d.Addresses {
		if ao, ok := opts[a]; ok && (ao.Lifetime != "" || ao.Label != "") {
			om := newMapping()
			if ao.Lifetime != "" {
				om.set("lifetime", plain(ao.Lifetime))
			}
			if ao.Label != "" {
				om.set("label", quoted(ao.Label))
			}
			entry := newMapping()
			entry.setKeyNode(quoted(a), om.node)
			seq.Content = append(seq.Content, entry.node)
			continue
		}
		seq.Content = append(seq.Content, quoted(a))
	}
	return seq
}

func routesNode(routes []netdef.Route) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, r := range routes {
		rm := newMapping()
		if r.From != "" {
			rm.set("from", quoted(r.From))
		}
		if r.To != "" {
			rm.set("to", quoted(r.To))
		}
		if r.Via != "" {
			rm.set("via", quoted(r.Via))
		}
		if r.OnLink {
			rm.set("on-link", boolNode(true))
		}
		if r.Metric != netdef.MetricUnspec {
			rm.set("metric", intNode(int64(r.Metric)))
		}
		if r.Type != "unicast" && r.Type != "" {
			rm.set("type", plain(r.Type))
		}
		if r.Scope != "global" && r.Scope != "" {
			rm.set("scope", plain(r.Scope))
		}
		if r.Table != netdef.TableUnspec {
			rm.set("table", intNode(int64(r.Table)))
		}
		if r.MTU != 0 {
			rm.set("mtu", intNode(int64(r.MTU)))
		}
		if r.CongestionWindow != 0 {
			rm.set("congestion-window", intNode(int64(r.CongestionWindow)))
		}
		if r.AdvertisedReceiveWindow != 0 {
			rm.set("advertised-receive-window", intNode(int64(r.AdvertisedReceiveWindow)))
		}
		seq.Content = append(seq.Content, rm.node)
	}
	return seq
}

func rulesNode(rules []netdef.IPRule) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, r := range rules {
		rm := newMapping()
		if r.From != "" {
			rm.set("from", quoted(r.From))
		}
		if r.To != "" {
			rm.set("to", quoted(r.To))
		}
		if r.Table != netdef.TableUnspec {
			rm.set("table", intNode(int64(r.Table)))
		}
		if r.Priority != netdef.IPRuleNoPriority {
			rm.set("priority", intNode(int64(r.Priority)))
		}
		if r.FWMark != netdef.IPRuleNoFWMark {
			rm.set("mark", intNode(int64(r.FWMark)))
		}
		if r.TOS != netdef.IPRuleNoTOS {
			rm.set("type-of-service", intNode(int64(r.TOS)))
		}
		seq.Content = append(seq.Content, rm.node)
	}
	return seq
}

func dhcpOverridesNode(o netdef.DHCPOverrides) *mapping {
	m := newMapping()
	if o.UseDNS.IsSet() {
		m.set("use-dns", boolNode(o.UseDNS.Value()))
	}
	if o.UseNTP.IsSet() {
		m.set("use-ntp", boolNode(o.UseNTP.Value()))
	}
	if o.UseMTU.IsSet() {
		m.set("use-mtu", boolNode(o.UseMTU.Value()))
	}
	if o.UseRoutes.IsSet() {
		m.set("use-routes", boolNode(o.UseRoutes.Value()))
	}
	if o.UseHostname.IsSet() {
		m.set("use-hostname", boolNode(o.UseHostname.Value()))
	}
	if o.UseDomains != "" {
		m.set("use-domains", quoted(o.UseDomains))
	}
	if o.SendHostname.IsSet() {
		m.set("send-hostname", boolNode(o.SendHostname.Value()))
	}
	if o.Hostname != "" {
		m.set("hostname", quoted(o.Hostname))
	}
	if o.Metric != netdef.MetricUnspec {
		m.set("route-metric", intNode(int64(o.Metric)))
	}
	return m
}

func modemNodes(d *netdef.NetDef, m *mapping) {
	mp := d.ModemParams
	if mp.APN != "" {
		m.set("apn", quoted(mp.APN))
	}
	if mp.AutoConfig {
		m.set("auto-config", boolNode(true))
	}
	if mp.DeviceID != "" {
		m.set("device-id", quoted(mp.DeviceID))
	}
	if mp.NetworkID != "" {
		m.set("network-id", quoted(mp.NetworkID))
	}
	if mp.Number != "" {
		m.set("number", quoted(mp.Number))
	}
	if mp.Password != "" {
		m.set("password", quoted(mp.Password))
	}
	if mp.PIN != "" {
		m.set("pin", quoted(mp.PIN))
	}
	if mp.SIMID != "" {
		m.set("sim-id", quoted(mp.SIMID))
	}
	if mp.SIMOperatorID != "" {
		m.set("sim-operator-id", quoted(mp.SIMOperatorID))
	}
	if mp.Username != "" {
		m.set("username", quoted(mp.Username))
	}
}

func tunnelNodes(d *netdef.NetDef, m *mapping) {
	t := d.Tunnel
	if t.Mode != netdef.TunnelModeUnknown {
		m.set("mode", plain(t.Mode.String()))
	}
	if t.Local != "" {
		m.set("local", quoted(t.Local))
	}
	if t.Remote != "" {
		m.set("remote", quoted(t.Remote))
	}
	if t.TTL != 0 {
		m.set("ttl", intNode(int64(t.TTL)))
	}
	if t.Port != 0 {
		m.set("port", intNode(int64(t.Port)))
	}
	if t.FWMark != 0 {
		m.set("mark", intNode(int64(t.FWMark)))
	}
	if t.PrivateKey != "" || t.InputKey != "" || t.OutputKey != "" {
		if t.Mode == netdef.TunnelModeWireGuard && t.InputKey == "" && t.OutputKey == "" {
			m.set("key", quoted(t.PrivateKey))
		} else if t.InputKey == t.OutputKey && t.PrivateKey == "" {
			m.set("key", quoted(t.InputKey))
		} else {
			km := newMapping()
			if t.InputKey != "" {
				km.set("input", quoted(t.InputKey))
			}
			if t.OutputKey != "" {
				km.set("output", quoted(t.OutputKey))
			}
			if t.PrivateKey != "" {
				km.set("private", quoted(t.PrivateKey))
			}
			m.set("keys", km.node)
		}
	}
	if len(d.WireguardPeers) > 0 {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, peer := range d.WireguardPeers {
			pm := newMapping()
			if peer.Endpoint != "" {
				pm.set("endpoint", quoted(peer.Endpoint))
			}
			km := newMapping()
			if peer.PublicKey != "" {
				km.set("public", quoted(peer.PublicKey))
			}
			if peer.PresharedKey != "" {
				km.set("shared", quoted(peer.PresharedKey))
			}
			if !km.empty() {
				pm.set("keys", km.node)
			}
			if len(peer.AllowedIPs) > 0 {
				pm.set("allowed-ips", quotedSeq(peer.AllowedIPs))
			}
			if peer.Keepalive != 0 {
				pm.set("keepalive", intNode(int64(peer.Keepalive)))
			}
			seq.Content = append(seq.Content, pm.node)
		}
		m.set("peers", seq)
	}
}

func vxlanNodes(d *netdef.NetDef, m *mapping) {
	v := d.VXLAN
	if v == nil {
		return
	}
	if v.VNI != netdef.VXLANVNIUnset {
		m.set("id", intNode(int64(v.VNI)))
	}
	if d.VLANLinkID != "" {
		m.set("link", plain(d.VLANLinkID))
	}
	if v.Local != "" {
		m.set("local", quoted(v.Local))
	}
	if v.Remote != "" {
		m.set("remote", quoted(v.Remote))
	}
	if v.TTL != 0 {
		m.set("ttl", intNode(int64(v.TTL)))
	}
	if v.FlowLabel != 0 {
		m.set("flow-label", intNode(int64(v.FlowLabel)))
	}
	if v.Port != 0 {
		m.set("port", intNode(int64(v.Port)))
	}
	if v.MacLearning.IsSet() {
		m.set("mac-learning", boolNode(v.MacLearning.Value()))
	}
	if v.ShortCircuit.IsSet() {
		m.set("short-circuit", boolNode(v.ShortCircuit.Value()))
	}
}

func accessPointNode(ap *netdef.AccessPoint) *yaml.Node {
	m := newMapping()
	if ap.Hidden {
		m.set("hidden", boolNode(true))
	}
	if ap.Mode != netdef.WifiModeInfrastructure {
		m.set("mode", plain(ap.Mode.String()))
	}
	if ap.BSSID != "" {
		m.set("bssid", quoted(ap.BSSID))
	}
	if ap.Band != netdef.WifiBandDefault {
		m.set("band", quoted(ap.Band.String()))
	}
	if ap.Channel != 0 {
		m.set("channel", intNode(int64(ap.Channel)))
	}
	if ap.HasAuth {
		if ap.Auth.KeyManagement == netdef.AuthKeyManagementPSK && onlyPassword(ap.Auth) {
			m.set("password", quoted(ap.Auth.Password))
		} else {
			m.set("auth", authNode(ap.Auth).node)
		}
	}
	if nm := ap.Backend.NM; nm != nil {
		m.set("networkmanager", nmSettingsNode(nm).node)
	}
	if m.empty() {
		return newMapping().node
	}
	return m.node
}

func onlyPassword(a netdef.AuthSettings) bool {
	return a.Method == netdef.EAPNone && a.Identity == "" && a.AnonymousIdentity == "" &&
		a.CACertificate == "" && a.ClientCertificate == "" && a.ClientKey == "" &&
		a.ClientKeyPassword == "" && a.Phase2Auth == ""
}

func authNode(a netdef.AuthSettings) *mapping {
	m := newMapping()
	m.set("key-management", plain(a.KeyManagement.String()))
	if a.Method != netdef.EAPNone {
		m.set("method", plain(a.Method.String()))
	}
	if a.Identity != "" {
		m.set("identity", quoted(a.Identity))
	}
	if a.AnonymousIdentity != "" {
		m.set("anonymous-identity", quoted(a.AnonymousIdentity))
	}
	if a.Password != "" {
		m.set("password", quoted(a.Password))
	}
	if a.CACertificate != "" {
		m.set("ca-certificate", quoted(a.CACertificate))
	}
	if a.ClientCertificate != "" {
		m.set("client-certificate", quoted(a.ClientCertificate))
	}
	if a.ClientKey != "" {
		m.set("client-key", quoted(a.ClientKey))
	}
	if a.ClientKeyPassword != "" {
		m.set("client-key-password", quoted(a.ClientKeyPassword))
	}
	if a.Phase2Auth != "" {
		m.set("phase2-auth", quoted(a.Phase2Auth))
	}
	return m
}

func nmSettingsNode(nm *netdef.NMSettings) *mapping {
	m := newMapping()
	if nm.UUID != "" {
		m.set("uuid", quoted(nm.UUID))
	}
	if nm.Name != "" {
		m.set("name", quoted(nm.Name))
	}
	if nm.StableID != "" {
		m.set("stable-id", quoted(nm.StableID))
	}
	if nm.Device != "" {
		m.set("device", quoted(nm.Device))
	}
	if len(nm.Passthrough) > 0 {
		pm := newMapping()
		for _, e := range nm.Passthrough {
			pm.setKeyNode(quoted(e.Key), quoted(e.Value))
		}
		m.set("passthrough", pm.node)
	}
	return m
}

func ovsNode(o *netdef.OVSSettings, global bool) *mapping {
	m := newMapping()
	if len(o.ExternalIDs) > 0 {
		m.set("external-ids", stringMapNode(o.ExternalIDs))
	}
	if len(o.OtherConfig) > 0 {
		m.set("other-config", stringMapNode(o.OtherConfig))
	}
	if o.LACP != "" {
		m.set("lacp", plain(o.LACP))
	}
	if o.FailMode != "" {
		m.set("fail-mode", plain(o.FailMode))
	}
	if o.McastSnooping.IsSet() {
		m.set("mcast-snooping", boolNode(o.McastSnooping.Value()))
	}
	if o.RSTP.IsSet() {
		m.set("rstp", boolNode(o.RSTP.Value()))
	}
	if len(o.Protocols) > 0 {
		m.set("protocols", plainSeq(o.Protocols))
	}
	if o.Controller != nil {
		cm := newMapping()
		if o.Controller.ConnectionMode != "" {
			cm.set("connection-mode", plain(o.Controller.ConnectionMode))
		}
		if len(o.Controller.Addresses) > 0 {
			cm.set("addresses", quotedSeq(o.Controller.Addresses))
		}
		m.set("controller", cm.node)
	}
	if global && o.SSL != nil {
		sm := newMapping()
		if o.SSL.CACert != "" {
			sm.set("ca-cert", quoted(o.SSL.CACert))
		}
		if o.SSL.ClientCert != "" {
			sm.set("certificate", quoted(o.SSL.ClientCert))
		}
		if o.SSL.ClientKey != "" {
			sm.set("private-key", quoted(o.SSL.ClientKey))
		}
		m.set("ssl", sm.node)
	}
	return m
}

func stringMapNode(kv map[string]string) *yaml.Node {
	m := newMapping()
	for _, k := range sortedKeys(kv) {
		m.setKeyNode(quoted(k), quoted(kv[k]))
	}
	return m.node
}

func sortedKeys(kv map[string]string) []string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func bondParamsNode(p netdef.BondParameters) *mapping {
	m := newMapping()
	if p.Mode != "" {
		m.set("mode", plain(p.Mode))
	}
	if p.LACPRate != "" {
		m.set("lacp-rate", plain(p.LACPRate))
	}
	if p.MonitorInterval != "" {
		m.set("mii-monitor-interval", quoted(p.MonitorInterval))
	}
	if p.MinLinks != 0 {
		m.set("min-links", intNode(int64(p.MinLinks)))
	}
	if p.TransmitHashPolicy != "" {
		m.set("transmit-hash-policy", plain(p.TransmitHashPolicy))
	}
	if p.SelectionLogic != "" {
		m.set("ad-select", plain(p.SelectionLogic))
	}
	if p.AllMembersActive.IsSet() {
		m.set("all-members-active", boolNode(p.AllMembersActive.Value()))
	}
	if p.ARPInterval != "" {
		m.set("arp-interval", quoted(p.ARPInterval))
	}
	if len(p.ARPIPTargets) > 0 {
		m.set("arp-ip-targets", quotedSeq(p.ARPIPTargets))
	}
	if p.ARPValidate != "" {
		m.set("arp-validate", plain(p.ARPValidate))
	}
	if p.ARPAllTargets != "" {
		m.set("arp-all-targets", plain(p.ARPAllTargets))
	}
	if p.UpDelay != "" {
		m.set("up-delay", quoted(p.UpDelay))
	}
	if p.DownDelay != "" {
		m.set("down-delay", quoted(p.DownDelay))
	}
	if p.FailOverMACPolicy != "" {
		m.set("fail-over-mac-policy", plain(p.FailOverMACPolicy))
	}
	if p.GratuitousARP != 0 {
		m.set("gratuitous-arp", intNode(int64(p.GratuitousARP)))
	}
	if p.PacketsPerMember != 0 {
		m.set("packets-per-member", intNode(int64(p.PacketsPerMember)))
	}
	if p.PrimaryReselectPolicy != "" {
		m.set("primary-reselect-policy", plain(p.PrimaryReselectPolicy))
	}
	if p.ResendIGMP != 0 {
		m.set("resend-igmp", intNode(int64(p.ResendIGMP)))
	}
	if p.LearnInterval != "" {
		m.set("learn-packet-interval", quoted(p.LearnInterval))
	}
	if p.Primary != "" {
		m.set("primary", plain(p.Primary))
	}
	return m
}

func bridgeParamsNode(p netdef.BridgeParameters) *mapping {
	m := newMapping()
	if p.AgeingTime != "" {
		m.set("ageing-time", quoted(p.AgeingTime))
	}
	if p.Priority != 0 {
		m.set("priority", intNode(int64(p.Priority)))
	}
	if len(p.PortPriority) > 0 {
		m.set("port-priority", intMapNode(p.PortPriority))
	}
	if p.ForwardDelay != "" {
		m.set("forward-delay", quoted(p.ForwardDelay))
	}
	if p.HelloTime != "" {
		m.set("hello-time", quoted(p.HelloTime))
	}
	if p.MaxAge != "" {
		m.set("max-age", quoted(p.MaxAge))
	}
	if len(p.PathCost) > 0 {
		m.set("path-cost", intMapNode(p.PathCost))
	}
	if p.STP.IsSet() {
		m.set("stp", boolNode(p.STP.Value()))
	}
	return m
}

func intMapNode(kv map[string]int) *yaml.Node {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m := newMapping()
	for _, k := range keys {
		m.set(k, intNode(int64(kv[k])))
	}
	return m.node
}
