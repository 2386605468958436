package parser

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/util"
)

// processDef walks one definition mapping. Scalar keys are
// last-writer-wins across files; sequence-valued keys are replaced
// wholesale; access-points and passthrough deep-merge. A key whose path
// was marked by the null overlay resets its field instead.
func (p *Parser) processDef(def *netdef.NetDef, groupKey string, n *yaml.Node) error {
	m, err := p.asMapping(n, fmt.Sprintf("definition '%s'", def.ID))
	if err != nil {
		return err
	}
	return p.eachPair(m, func(key, value *yaml.Node) error {
		if p.nulled("network", groupKey, def.ID, key.Value) {
			p.clearField(def, key.Value)
			return nil
		}
		handled, err := p.handleCommonKey(def, key, value)
		if err != nil {
			return err
		}
		if !handled {
			handled, err = p.handleTypeKey(def, key, value)
			if err != nil {
				return err
			}
		}
		if !handled {
			return p.schemaErrorf(key, "unknown key '%s'", key.Value)
		}
		def.MarkDirty(key.Value)
		return nil
	})
}

func (p *Parser) handleCommonKey(def *netdef.NetDef, key, value *yaml.Node) (bool, error) {
	if def.Type == netdef.TypeNMDevice {
		// nm-devices carry only renderer and backend settings
		switch key.Value {
		case "renderer", "networkmanager":
		default:
			return false, nil
		}
	}
	switch key.Value {
	case "renderer":
		name, err := p.asString(value, "renderer")
		if err != nil {
			return true, err
		}
		b, ok := netdef.BackendByName(name)
		if !ok {
			return true, p.schemaErrorf(value, "unknown renderer '%s'", name)
		}
		def.Backend = b
		return true, nil
	case "dhcp4":
		v, err := p.asBool(value, "dhcp4")
		def.DHCP4 = v
		return true, err
	case "dhcp6":
		v, err := p.asBool(value, "dhcp6")
		def.DHCP6 = v
		return true, err
	case "dhcp-identifier":
		v, err := p.asString(value, "dhcp-identifier")
		if err != nil {
			return true, err
		}
		if v != "duid" && v != "mac" {
			return true, p.schemaErrorf(value, "invalid dhcp-identifier '%s'", v)
		}
		def.DHCPIdentifier = v
		return true, nil
	case "dhcp4-overrides":
		return true, p.processDHCPOverrides(value, &def.DHCP4Overrides)
	case "dhcp6-overrides":
		return true, p.processDHCPOverrides(value, &def.DHCP6Overrides)
	case "accept-ra":
		v, err := p.asBool(value, "accept-ra")
		if err != nil {
			return true, err
		}
		if v {
			def.AcceptRA = netdef.RAEnabled
		} else {
			def.AcceptRA = netdef.RADisabled
		}
		return true, nil
	case "addresses":
		return true, p.processAddresses(def, value)
	case "gateway4":
		v, err := p.asString(value, "gateway4")
		if err != nil {
			return true, err
		}
		if util.IPFamily(v) != util.AFInet {
			return true, p.schemaErrorf(value, "invalid IPv4 address '%s'", v)
		}
		def.Gateway4 = v
		return true, nil
	case "gateway6":
		v, err := p.asString(value, "gateway6")
		if err != nil {
			return true, err
		}
		if util.IPFamily(v) != util.AFInet6 {
			return true, p.schemaErrorf(value, "invalid IPv6 address '%s'", v)
		}
		def.Gateway6 = v
		return true, nil
	case "nameservers":
		return true, p.processNameservers(def, value)
	case "routes":
		return true, p.processRoutes(def, value)
	case "routing-policy":
		return true, p.processIPRules(def, value)
	case "link-local":
		items, err := p.asStringSeq(value, "link-local")
		if err != nil {
			return true, err
		}
		ll := netdef.LinkLocalSet{}
		for _, it := range items {
			switch it {
			case "ipv4":
				ll.IPv4 = true
			case "ipv6":
				ll.IPv6 = true
			default:
				return true, p.schemaErrorf(value, "invalid link-local value '%s'", it)
			}
		}
		def.LinkLocal = ll
		return true, nil
	case "critical":
		v, err := p.asBool(value, "critical")
		def.Critical = v
		return true, err
	case "optional":
		v, err := p.asBool(value, "optional")
		def.Optional = v
		return true, err
	case "optional-addresses":
		items, err := p.asStringSeq(value, "optional-addresses")
		if err != nil {
			return true, err
		}
		var flags netdef.OptionalFlag
		for _, it := range items {
			f, ok := netdef.OptionalFlagByName(it)
			if !ok {
				return true, p.schemaErrorf(value, "invalid optional-addresses value '%s'", it)
			}
			flags |= f
		}
		def.OptionalAddrs = flags
		return true, nil
	case "macaddress":
		v, err := p.asString(value, "macaddress")
		if err != nil {
			return true, err
		}
		if err := util.ValidateMAC(v); err != nil {
			return true, p.schemaErrorf(value, "%v", err)
		}
		def.SetMAC = v
		return true, nil
	case "mtu":
		v, err := p.asInt(value, "mtu", 0, math.MaxInt32)
		def.MTU = int(v)
		return true, err
	case "ipv6-mtu":
		v, err := p.asInt(value, "ipv6-mtu", 0, math.MaxInt32)
		def.IPv6MTU = int(v)
		return true, err
	case "ipv6-privacy":
		v, err := p.asBool(value, "ipv6-privacy")
		def.IPv6Privacy = netdef.Bool(v)
		return true, err
	case "ipv6-address-generation":
		v, err := p.asString(value, "ipv6-address-generation")
		if err != nil {
			return true, err
		}
		mode, ok := netdef.AddrGenModeByName(v)
		if !ok {
			return true, p.schemaErrorf(value, "unknown ipv6-address-generation '%s'", v)
		}
		def.IPv6AddrGen = mode
		return true, nil
	case "ipv6-address-token":
		v, err := p.asString(value, "ipv6-address-token")
		def.IPv6AddressToken = v
		return true, err
	case "emit-lldp":
		v, err := p.asBool(value, "emit-lldp")
		def.EmitLLDP = v
		return true, err
	case "networkmanager":
		return true, p.processNMSettings(value, def.NMSettings())
	case "openvswitch":
		if def.OVS == nil {
			def.OVS = &netdef.OVSSettings{}
		}
		return true, p.processOVS(value, def.OVS, false)
	}
	if off, ok := netdef.OffloadByYAMLKey(key.Value); ok {
		v, err := p.asBool(value, key.Value)
		if err != nil {
			return true, err
		}
		def.Offloads[off] = netdef.Bool(v)
		return true, nil
	}
	return false, nil
}

func (p *Parser) handlePhysicalKey(def *netdef.NetDef, key, value *yaml.Node) (bool, error) {
	switch key.Value {
	case "match":
		def.HasMatch = true
		return true, p.processMatch(def, value)
	case "set-name":
		v, err := p.asString(value, "set-name")
		def.SetName = v
		return true, err
	case "wakeonlan":
		v, err := p.asBool(value, "wakeonlan")
		def.WakeOnLan = v
		return true, err
	case "embedded-switch-mode":
		v, err := p.asString(value, "embedded-switch-mode")
		if err != nil {
			return true, err
		}
		if v != "switchdev" && v != "legacy" {
			return true, p.schemaErrorf(value, "invalid embedded-switch-mode '%s'", v)
		}
		def.EmbeddedSwitchMode = v
		return true, nil
	case "delay-virtual-functions-rebind":
		v, err := p.asBool(value, "delay-virtual-functions-rebind")
		def.DelayVFRebind = v
		return true, err
	case "virtual-function-count":
		v, err := p.asInt(value, "virtual-function-count", 0, 255)
		def.SRIOVExplicitVFCount = int(v)
		return true, err
	case "auth":
		def.HasAuth = true
		return true, p.processAuth(value, &def.Auth)
	}
	return false, nil
}

func (p *Parser) handleTypeKey(def *netdef.NetDef, key, value *yaml.Node) (bool, error) {
	if def.Type.IsPhysical() {
		if handled, err := p.handlePhysicalKey(def, key, value); handled || err != nil {
			return handled, err
		}
	}
	switch def.Type {
	case netdef.TypeEthernet:
		if key.Value == "link" {
			id, err := p.asString(value, "link")
			if err != nil {
				return true, err
			}
			def.SRIOVLinkID = id
			p.recordRef(id, value)
			return true, nil
		}
	case netdef.TypeWifi:
		switch key.Value {
		case "access-points":
			return true, p.processAccessPoints(def, value)
		case "regulatory-domain":
			v, err := p.asString(value, "regulatory-domain")
			def.RegulatoryDomain = v
			return true, err
		case "wakeonwlan":
			items, err := p.asStringSeq(value, "wakeonwlan")
			if err != nil {
				return true, err
			}
			var flags netdef.WoWLANFlag
			for _, it := range items {
				f, ok := netdef.WoWLANFlagByName(it)
				if !ok {
					return true, p.schemaErrorf(value, "invalid wakeonwlan value '%s'", it)
				}
				flags |= f
			}
			def.WoWLAN = flags
			return true, nil
		}
	case netdef.TypeModem:
		return p.handleModemKey(def, key, value)
	case netdef.TypeBridge:
		switch key.Value {
		case "interfaces":
			return true, p.processMemberList(def, value)
		case "parameters":
			def.CustomBridging = true
			return true, p.processBridgeParams(def, value)
		}
	case netdef.TypeBond:
		switch key.Value {
		case "interfaces":
			return true, p.processMemberList(def, value)
		case "parameters":
			return true, p.processBondParams(def, value)
		}
	case netdef.TypeVLAN:
		switch key.Value {
		case "id":
			v, err := p.asInt(value, "id", 0, 4094)
			def.VLANID = int(v)
			return true, err
		case "link":
			id, err := p.asString(value, "link")
			if err != nil {
				return true, err
			}
			def.VLANLinkID = id
			p.recordRef(id, value)
			return true, nil
		}
	case netdef.TypeVRF:
		switch key.Value {
		case "table":
			v, err := p.asInt(value, "table", 1, math.MaxUint32)
			def.VRFTable = uint32(v)
			return true, err
		case "interfaces":
			return true, p.processMemberList(def, value)
		}
	case netdef.TypeTunnel:
		return p.handleTunnelKey(def, key, value)
	case netdef.TypeVXLAN:
		return p.handleVXLANKey(def, key, value)
	case netdef.TypePort:
		if key.Value == "peer" {
			id, err := p.asString(value, "peer")
			if err != nil {
				return true, err
			}
			def.PeerID = id
			p.recordRef(id, value)
			return true, nil
		}
	}
	return false, nil
}

func (p *Parser) handleModemKey(def *netdef.NetDef, key, value *yaml.Node) (bool, error) {
	mp := &def.ModemParams
	switch key.Value {
	case "apn":
		v, err := p.asString(value, "apn")
		mp.APN = v
		return true, err
	case "auto-config":
		v, err := p.asBool(value, "auto-config")
		mp.AutoConfig = v
		return true, err
	case "device-id":
		v, err := p.asString(value, "device-id")
		mp.DeviceID = v
		return true, err
	case "network-id":
		v, err := p.asString(value, "network-id")
		mp.NetworkID = v
		return true, err
	case "number":
		v, err := p.asString(value, "number")
		mp.Number = v
		return true, err
	case "password":
		v, err := p.asString(value, "password")
		mp.Password = v
		return true, err
	case "pin":
		v, err := p.asString(value, "pin")
		mp.PIN = v
		return true, err
	case "sim-id":
		v, err := p.asString(value, "sim-id")
		mp.SIMID = v
		return true, err
	case "sim-operator-id":
		v, err := p.asString(value, "sim-operator-id")
		mp.SIMOperatorID = v
		return true, err
	case "username":
		v, err := p.asString(value, "username")
		mp.Username = v
		return true, err
	}
	return false, nil
}

func (p *Parser) handleTunnelKey(def *netdef.NetDef, key, value *yaml.Node) (bool, error) {
	t := &def.Tunnel
	switch key.Value {
	case "mode":
		v, err := p.asString(value, "mode")
		if err != nil {
			return true, err
		}
		mode, ok := netdef.TunnelModeByName(v)
		if !ok {
			return true, p.schemaErrorf(value, "unknown tunnel mode '%s'", v)
		}
		t.Mode = mode
		return true, nil
	case "local":
		v, err := p.asString(value, "local")
		t.Local = v
		return true, err
	case "remote":
		v, err := p.asString(value, "remote")
		t.Remote = v
		return true, err
	case "ttl":
		v, err := p.asInt(value, "ttl", 1, 255)
		t.TTL = int(v)
		return true, err
	case "key", "keys":
		return true, p.processTunnelKeys(value, t)
	case "port":
		v, err := p.asInt(value, "port", 1, 65535)
		t.Port = int(v)
		return true, err
	case "mark":
		v, err := p.asInt(value, "mark", 0, math.MaxUint32)
		t.FWMark = int(v)
		return true, err
	case "peers":
		return true, p.processWireguardPeers(def, value)
	}
	return false, nil
}

// processTunnelKeys accepts the scalar shorthand (a single key used for
// both directions, or the wireguard private key) and the mapping form.
func (p *Parser) processTunnelKeys(n *yaml.Node, t *netdef.TunnelSettings) error {
	n, err := p.resolveAlias(n)
	if err != nil {
		return err
	}
	if n.Kind == yaml.ScalarNode {
		if t.Mode == netdef.TunnelModeWireGuard {
			t.PrivateKey = n.Value
		} else {
			t.InputKey = n.Value
			t.OutputKey = n.Value
		}
		return nil
	}
	m, err := p.asMapping(n, "tunnel keys")
	if err != nil {
		return err
	}
	return p.eachPair(m, func(key, value *yaml.Node) error {
		v, err := p.asString(value, key.Value)
		if err != nil {
			return err
		}
		switch key.Value {
		case "input":
			t.InputKey = v
		case "output":
			t.OutputKey = v
		case "private":
			t.PrivateKey = v
		default:
			return p.schemaErrorf(key, "unknown key '%s'", key.Value)
		}
		return nil
	})
}

func (p *Parser) processWireguardPeers(def *netdef.NetDef, n *yaml.Node) error {
	seq, err := p.asSequence(n, "peers")
	if err != nil {
		return err
	}
	peers := make([]netdef.WireGuardPeer, 0, len(seq.Content))
	for _, item := range seq.Content {
		m, err := p.asMapping(item, "peer")
		if err != nil {
			return err
		}
		var peer netdef.WireGuardPeer
		err = p.eachPair(m, func(key, value *yaml.Node) error {
			switch key.Value {
			case "endpoint":
				v, err := p.asString(value, "endpoint")
				peer.Endpoint = v
				return err
			case "keys":
				km, err := p.asMapping(value, "keys")
				if err != nil {
					return err
				}
				return p.eachPair(km, func(kkey, kvalue *yaml.Node) error {
					v, err := p.asString(kvalue, kkey.Value)
					if err != nil {
						return err
					}
					switch kkey.Value {
					case "public":
						peer.PublicKey = v
					case "shared":
						peer.PresharedKey = v
					default:
						return p.schemaErrorf(kkey, "unknown key '%s'", kkey.Value)
					}
					return nil
				})
			case "allowed-ips":
				ips, err := p.asStringSeq(value, "allowed-ips")
				peer.AllowedIPs = ips
				return err
			case "keepalive":
				v, err := p.asInt(value, "keepalive", 0, 65535)
				peer.Keepalive = int(v)
				return err
			}
			return p.schemaErrorf(key, "unknown key '%s'", key.Value)
		})
		if err != nil {
			return err
		}
		peers = append(peers, peer)
	}
	def.WireguardPeers = peers
	return nil
}

func (p *Parser) handleVXLANKey(def *netdef.NetDef, key, value *yaml.Node) (bool, error) {
	if def.VXLAN == nil {
		def.VXLAN = &netdef.VXLANSettings{VNI: netdef.VXLANVNIUnset}
	}
	v := def.VXLAN
	switch key.Value {
	case "id":
		n, err := p.asInt(value, "id", 0, 16777216)
		v.VNI = int(n)
		return true, err
	case "link":
		id, err := p.asString(value, "link")
		if err != nil {
			return true, err
		}
		def.VLANLinkID = id
		p.recordRef(id, value)
		return true, nil
	case "local":
		s, err := p.asString(value, "local")
		v.Local = s
		return true, err
	case "remote":
		s, err := p.asString(value, "remote")
		v.Remote = s
		return true, err
	case "ttl":
		n, err := p.asInt(value, "ttl", 0, 255)
		v.TTL = int(n)
		return true, err
	case "flow-label":
		n, err := p.asInt(value, "flow-label", 0, 1048575)
		v.FlowLabel = int(n)
		return true, err
	case "port":
		n, err := p.asInt(value, "port", 1, 65535)
		v.Port = int(n)
		return true, err
	case "mac-learning":
		b, err := p.asBool(value, "mac-learning")
		v.MacLearning = netdef.Bool(b)
		return true, err
	case "short-circuit":
		b, err := p.asBool(value, "short-circuit")
		v.ShortCircuit = netdef.Bool(b)
		return true, err
	}
	return false, nil
}

func (p *Parser) processMatch(def *netdef.NetDef, n *yaml.Node) error {
	m, err := p.asMapping(n, "match")
	if err != nil {
		return err
	}
	return p.eachPair(m, func(key, value *yaml.Node) error {
		switch key.Value {
		case "name":
			v, err := p.asString(value, "name")
			def.Match.OriginalName = v
			return err
		case "macaddress":
			v, err := p.asString(value, "macaddress")
			if err != nil {
				return err
			}
			if err := util.ValidateMAC(v); err != nil {
				return p.schemaErrorf(value, "%v", err)
			}
			def.Match.MAC = v
			return nil
		case "driver":
			globs, err := p.asStringSeq(value, "driver")
			if err != nil {
				return err
			}
			def.Match.Driver = util.JoinTab(globs)
			return nil
		}
		return p.schemaErrorf(key, "unknown key '%s'", key.Value)
	})
}

// processAddresses accepts scalar CIDR entries and the mapping form with
// per-address options.
func (p *Parser) processAddresses(def *netdef.NetDef, n *yaml.Node) error {
	seq, err := p.asSequence(n, "addresses")
	if err != nil {
		return err
	}
	var addrs []string
	var opts []netdef.AddressOptions
	for _, item := range seq.Content {
		item, err := p.resolveAlias(item)
		if err != nil {
			return err
		}
		if item.Kind == yaml.ScalarNode {
			if _, err := util.ValidateCIDR(item.Value); err != nil {
				return p.schemaErrorf(item, "%v", err)
			}
			addrs = append(addrs, item.Value)
			continue
		}
		m, err := p.asMapping(item, "address")
		if err != nil {
			return err
		}
		err = p.eachPair(m, func(addrKey, optsNode *yaml.Node) error {
			if _, err := util.ValidateCIDR(addrKey.Value); err != nil {
				return p.schemaErrorf(addrKey, "%v", err)
			}
			ao := netdef.AddressOptions{Address: addrKey.Value}
			om, err := p.asMapping(optsNode, "address options")
			if err != nil {
				return err
			}
			err = p.eachPair(om, func(okey, ovalue *yaml.Node) error {
				v, err := p.asString(ovalue, okey.Value)
				if err != nil {
					return err
				}
				switch okey.Value {
				case "lifetime":
					if v != "0" && v != "forever" {
						return p.schemaErrorf(ovalue, "invalid lifetime '%s'", v)
					}
					ao.Lifetime = v
				case "label":
					if len(v) > 15 {
						return p.schemaErrorf(ovalue, "label '%s' is too long (maximum 15 characters)", v)
					}
					ao.Label = v
				default:
					return p.schemaErrorf(okey, "unknown key '%s'", okey.Value)
				}
				return nil
			})
			if err != nil {
				return err
			}
			addrs = append(addrs, ao.Address)
			opts = append(opts, ao)
			return nil
		})
		if err != nil {
			return err
		}
	}
	def.Addresses = addrs
	def.AddressOptions = opts
	return nil
}

func (p *Parser) processNameservers(def *netdef.NetDef, n *yaml.Node) error {
	m, err := p.asMapping(n, "nameservers")
	if err != nil {
		return err
	}
	return p.eachPair(m, func(key, value *yaml.Node) error {
		switch key.Value {
		case "addresses":
			addrs, err := p.asStringSeq(value, "addresses")
			if err != nil {
				return err
			}
			for _, a := range addrs {
				if !util.IsValidIP(a) {
					return p.schemaErrorf(value, "invalid nameserver address '%s'", a)
				}
			}
			def.Nameservers = addrs
			return nil
		case "search":
			domains, err := p.asStringSeq(value, "search")
			def.SearchDomains = domains
			return err
		}
		return p.schemaErrorf(key, "unknown key '%s'", key.Value)
	})
}

var routeTypes = map[string]bool{
	"unicast": true, "anycast": true, "blackhole": true, "broadcast": true,
	"local": true, "multicast": true, "nat": true, "prohibit": true,
	"throw": true, "unreachable": true, "xresolve": true,
}

var routeScopes = map[string]bool{"global": true, "link": true, "host": true}

func (p *Parser) processRoutes(def *netdef.NetDef, n *yaml.Node) error {
	seq, err := p.asSequence(n, "routes")
	if err != nil {
		return err
	}
	routes := make([]netdef.Route, 0, len(seq.Content))
	for _, item := range seq.Content {
		m, err := p.asMapping(item, "route")
		if err != nil {
			return err
		}
		route := netdef.Route{
			Type:   "unicast",
			Scope:  "global",
			Metric: netdef.MetricUnspec,
			Table:  netdef.TableUnspec,
		}
		err = p.eachPair(m, func(key, value *yaml.Node) error {
			switch key.Value {
			case "to":
				v, err := p.asString(value, "to")
				if err != nil {
					return err
				}
				if !util.IsDefaultDestination(v) {
					if _, err := util.ValidateCIDR(v); err != nil {
						return p.schemaErrorf(value, "%v", err)
					}
				}
				route.To = v
				return nil
			case "via":
				v, err := p.asString(value, "via")
				if err != nil {
					return err
				}
				if !util.IsValidIP(v) {
					return p.schemaErrorf(value, "invalid gateway address '%s'", v)
				}
				route.Via = v
				return nil
			case "from":
				v, err := p.asString(value, "from")
				route.From = v
				return err
			case "on-link":
				v, err := p.asBool(value, "on-link")
				route.OnLink = v
				return err
			case "metric":
				v, err := p.asUint32(value, "metric")
				route.Metric = v
				return err
			case "type":
				v, err := p.asString(value, "type")
				if err != nil {
					return err
				}
				if !routeTypes[v] {
					return p.schemaErrorf(value, "invalid route type '%s'", v)
				}
				route.Type = v
				return nil
			case "scope":
				v, err := p.asString(value, "scope")
				if err != nil {
					return err
				}
				if !routeScopes[v] {
					return p.schemaErrorf(value, "invalid route scope '%s'", v)
				}
				route.Scope = v
				return nil
			case "table":
				v, err := p.asInt(value, "table", 1, math.MaxUint32)
				route.Table = uint32(v)
				return err
			case "mtu":
				v, err := p.asInt(value, "mtu", 0, math.MaxInt32)
				route.MTU = int(v)
				return err
			case "congestion-window":
				v, err := p.asInt(value, "congestion-window", 0, math.MaxInt32)
				route.CongestionWindow = int(v)
				return err
			case "advertised-receive-window":
				v, err := p.asInt(value, "advertised-receive-window", 0, math.MaxInt32)
				route.AdvertisedReceiveWindow = int(v)
				return err
			}
			return p.schemaErrorf(key, "unknown key '%s'", key.Value)
		})
		if err != nil {
			return err
		}
		route.Family = routeFamily(route)
		if route.To == "" && route.Scope == "global" {
			return p.schemaErrorf(m, "route must specify 'to'")
		}
		routes = append(routes, route)
	}
	def.Routes = routes
	return nil
}

func routeFamily(r netdef.Route) int {
	switch {
	case r.To == "::/0":
		return util.AFInet6
	case r.To == "0.0.0.0/0":
		return util.AFInet
	case r.Via != "":
		return util.IPFamily(r.Via)
	case r.To != "" && r.To != "default":
		if f, err := util.ValidateCIDR(r.To); err == nil {
			return f
		}
	}
	return util.AFInet
}

func (p *Parser) processIPRules(def *netdef.NetDef, n *yaml.Node) error {
	seq, err := p.asSequence(n, "routing-policy")
	if err != nil {
		return err
	}
	rules := make([]netdef.IPRule, 0, len(seq.Content))
	for _, item := range seq.Content {
		m, err := p.asMapping(item, "routing policy rule")
		if err != nil {
			return err
		}
		rule := netdef.IPRule{
			Table:    netdef.TableUnspec,
			Priority: netdef.IPRuleNoPriority,
			FWMark:   netdef.IPRuleNoFWMark,
			TOS:      netdef.IPRuleNoTOS,
		}
		err = p.eachPair(m, func(key, value *yaml.Node) error {
			switch key.Value {
			case "from":
				v, err := p.asString(value, "from")
				rule.From = v
				return err
			case "to":
				v, err := p.asString(value, "to")
				rule.To = v
				return err
			case "table":
				v, err := p.asInt(value, "table", 1, math.MaxUint32)
				rule.Table = uint32(v)
				return err
			case "priority":
				v, err := p.asInt(value, "priority", 0, math.MaxUint32)
				rule.Priority = int(v)
				return err
			case "mark":
				v, err := p.asInt(value, "mark", 0, math.MaxUint32)
				rule.FWMark = int(v)
				return err
			case "type-of-service":
				v, err := p.asInt(value, "type-of-service", 0, 255)
				rule.TOS = int(v)
				return err
			}
			return p.schemaErrorf(key, "unknown key '%s'", key.Value)
		})
		if err != nil {
			return err
		}
		switch {
		case rule.From != "":
			rule.Family = cidrFamily(rule.From)
		case rule.To != "":
			rule.Family = cidrFamily(rule.To)
		default:
			rule.Family = util.AFInet
		}
		rules = append(rules, rule)
	}
	def.IPRules = rules
	return nil
}

func cidrFamily(s string) int {
	if f, err := util.ValidateCIDR(s); err == nil {
		return f
	}
	return util.IPFamily(s)
}

func (p *Parser) processMemberList(def *netdef.NetDef, n *yaml.Node) error {
	seq, err := p.asSequence(n, "interfaces")
	if err != nil {
		return err
	}
	for _, item := range seq.Content {
		id, err := p.asString(item, "interface id")
		if err != nil {
			return err
		}
		p.recordMember(def, id, item)
	}
	return nil
}

var bondModes = map[string]bool{
	"balance-rr": true, "active-backup": true, "balance-xor": true,
	"broadcast": true, "802.3ad": true, "balance-tlb": true, "balance-alb": true,
	"active-passive": true,
}

func (p *Parser) processBondParams(def *netdef.NetDef, n *yaml.Node) error {
	m, err := p.asMapping(n, "bond parameters")
	if err != nil {
		return err
	}
	bp := &def.BondParams
	return p.eachPair(m, func(key, value *yaml.Node) error {
		switch key.Value {
		case "mode":
			v, err := p.asString(value, "mode")
			if err != nil {
				return err
			}
			if !bondModes[v] {
				return p.schemaErrorf(value, "unknown bond mode '%s'", v)
			}
			bp.Mode = v
			return nil
		case "lacp-rate":
			v, err := p.asString(value, "lacp-rate")
			bp.LACPRate = v
			return err
		case "mii-monitor-interval":
			v, err := p.asString(value, "mii-monitor-interval")
			bp.MonitorInterval = v
			return err
		case "min-links":
			v, err := p.asInt(value, "min-links", 0, math.MaxInt32)
			bp.MinLinks = int(v)
			return err
		case "transmit-hash-policy":
			v, err := p.asString(value, "transmit-hash-policy")
			bp.TransmitHashPolicy = v
			return err
		case "ad-select":
			v, err := p.asString(value, "ad-select")
			bp.SelectionLogic = v
			return err
		case "all-slaves-active", "all-members-active":
			v, err := p.asBool(value, key.Value)
			bp.AllMembersActive = netdef.Bool(v)
			return err
		case "arp-interval":
			v, err := p.asString(value, "arp-interval")
			bp.ARPInterval = v
			return err
		case "arp-ip-targets":
			v, err := p.asStringSeq(value, "arp-ip-targets")
			bp.ARPIPTargets = v
			return err
		case "arp-validate":
			v, err := p.asString(value, "arp-validate")
			bp.ARPValidate = v
			return err
		case "arp-all-targets":
			v, err := p.asString(value, "arp-all-targets")
			bp.ARPAllTargets = v
			return err
		case "up-delay":
			v, err := p.asString(value, "up-delay")
			bp.UpDelay = v
			return err
		case "down-delay":
			v, err := p.asString(value, "down-delay")
			bp.DownDelay = v
			return err
		case "fail-over-mac-policy":
			v, err := p.asString(value, "fail-over-mac-policy")
			bp.FailOverMACPolicy = v
			return err
		case "gratuitous-arp", "gratuitious-arp":
			v, err := p.asInt(value, "gratuitous-arp", 1, 255)
			bp.GratuitousARP = int(v)
			return err
		case "packets-per-slave", "packets-per-member":
			v, err := p.asInt(value, key.Value, 0, 65535)
			bp.PacketsPerMember = int(v)
			return err
		case "primary-reselect-policy":
			v, err := p.asString(value, "primary-reselect-policy")
			bp.PrimaryReselectPolicy = v
			return err
		case "resend-igmp":
			v, err := p.asInt(value, "resend-igmp", 0, 255)
			bp.ResendIGMP = int(v)
			return err
		case "learn-packet-interval":
			v, err := p.asString(value, "learn-packet-interval")
			bp.LearnInterval = v
			return err
		case "primary":
			v, err := p.asString(value, "primary")
			if err != nil {
				return err
			}
			bp.Primary = v
			p.recordRef(v, value)
			return nil
		}
		return p.schemaErrorf(key, "unknown key '%s'", key.Value)
	})
}

func (p *Parser) processBridgeParams(def *netdef.NetDef, n *yaml.Node) error {
	m, err := p.asMapping(n, "bridge parameters")
	if err != nil {
		return err
	}
	bp := &def.BridgeParams
	return p.eachPair(m, func(key, value *yaml.Node) error {
		switch key.Value {
		case "ageing-time", "aging-time":
			v, err := p.asString(value, key.Value)
			bp.AgeingTime = v
			return err
		case "priority":
			v, err := p.asInt(value, "priority", 0, 65535)
			bp.Priority = int(v)
			return err
		case "forward-delay":
			v, err := p.asString(value, "forward-delay")
			bp.ForwardDelay = v
			return err
		case "hello-time":
			v, err := p.asString(value, "hello-time")
			bp.HelloTime = v
			return err
		case "max-age":
			v, err := p.asString(value, "max-age")
			bp.MaxAge = v
			return err
		case "stp":
			v, err := p.asBool(value, "stp")
			bp.STP = netdef.Bool(v)
			return err
		case "port-priority":
			mm, err := p.asMapping(value, "port-priority")
			if err != nil {
				return err
			}
			if bp.PortPriority == nil {
				bp.PortPriority = make(map[string]int)
			}
			return p.eachPair(mm, func(member, pri *yaml.Node) error {
				v, err := p.asInt(pri, "port-priority", 0, 63)
				if err != nil {
					return err
				}
				p.recordRef(member.Value, member)
				bp.PortPriority[member.Value] = int(v)
				return nil
			})
		case "path-cost":
			mm, err := p.asMapping(value, "path-cost")
			if err != nil {
				return err
			}
			if bp.PathCost == nil {
				bp.PathCost = make(map[string]int)
			}
			return p.eachPair(mm, func(member, cost *yaml.Node) error {
				v, err := p.asInt(cost, "path-cost", 0, math.MaxInt32)
				if err != nil {
					return err
				}
				p.recordRef(member.Value, member)
				bp.PathCost[member.Value] = int(v)
				return nil
			})
		}
		return p.schemaErrorf(key, "unknown key '%s'", key.Value)
	})
}

func (p *Parser) processDHCPOverrides(n *yaml.Node, o *netdef.DHCPOverrides) error {
	m, err := p.asMapping(n, "dhcp overrides")
	if err != nil {
		return err
	}
	return p.eachPair(m, func(key, value *yaml.Node) error {
		switch key.Value {
		case "use-dns":
			v, err := p.asBool(value, "use-dns")
			o.UseDNS = netdef.Bool(v)
			return err
		case "use-ntp":
			v, err := p.asBool(value, "use-ntp")
			o.UseNTP = netdef.Bool(v)
			return err
		case "use-mtu":
			v, err := p.asBool(value, "use-mtu")
			o.UseMTU = netdef.Bool(v)
			return err
		case "use-routes":
			v, err := p.asBool(value, "use-routes")
			o.UseRoutes = netdef.Bool(v)
			return err
		case "use-hostname":
			v, err := p.asBool(value, "use-hostname")
			o.UseHostname = netdef.Bool(v)
			return err
		case "use-domains":
			s, err := p.asScalar(value, "use-domains")
			if err != nil {
				return err
			}
			switch s.Value {
			case "true", "false", "route":
				o.UseDomains = s.Value
			default:
				return p.schemaErrorf(value, "invalid use-domains value '%s'", s.Value)
			}
			return nil
		case "send-hostname":
			v, err := p.asBool(value, "send-hostname")
			o.SendHostname = netdef.Bool(v)
			return err
		case "hostname":
			v, err := p.asString(value, "hostname")
			o.Hostname = v
			return err
		case "route-metric":
			v, err := p.asUint32(value, "route-metric")
			o.Metric = v
			return err
		}
		return p.schemaErrorf(key, "unknown key '%s'", key.Value)
	})
}

func (p *Parser) processAuth(n *yaml.Node, a *netdef.AuthSettings) error {
	m, err := p.asMapping(n, "auth")
	if err != nil {
		return err
	}
	return p.eachPair(m, func(key, value *yaml.Node) error {
		switch key.Value {
		case "key-management":
			v, err := p.asString(value, "key-management")
			if err != nil {
				return err
			}
			km, ok := netdef.KeyManagementByName(v)
			if !ok {
				return p.schemaErrorf(value, "unknown key management type '%s'", v)
			}
			a.KeyManagement = km
			return nil
		case "method":
			v, err := p.asString(value, "method")
			if err != nil {
				return err
			}
			method, ok := netdef.EAPMethodByName(v)
			if !ok {
				return p.schemaErrorf(value, "unknown EAP method '%s'", v)
			}
			a.Method = method
			return nil
		case "identity":
			v, err := p.asString(value, "identity")
			a.Identity = v
			return err
		case "anonymous-identity":
			v, err := p.asString(value, "anonymous-identity")
			a.AnonymousIdentity = v
			return err
		case "password":
			v, err := p.asString(value, "password")
			a.Password = v
			return err
		case "ca-certificate":
			v, err := p.asString(value, "ca-certificate")
			a.CACertificate = v
			return err
		case "client-certificate":
			v, err := p.asString(value, "client-certificate")
			a.ClientCertificate = v
			return err
		case "client-key":
			v, err := p.asString(value, "client-key")
			a.ClientKey = v
			return err
		case "client-key-password":
			v, err := p.asString(value, "client-key-password")
			a.ClientKeyPassword = v
			return err
		case "phase2-auth":
			v, err := p.asString(value, "phase2-auth")
			a.Phase2Auth = v
			return err
		}
		return p.schemaErrorf(key, "unknown key '%s'", key.Value)
	})
}

func (p *Parser) processAccessPoints(def *netdef.NetDef, n *yaml.Node) error {
	m, err := p.asMapping(n, "access-points")
	if err != nil {
		return err
	}
	return p.eachPair(m, func(ssidNode, apNode *yaml.Node) error {
		ap := def.AccessPoint(ssidNode.Value)
		apm, err := p.asMapping(apNode, fmt.Sprintf("access point '%s'", ssidNode.Value))
		if err != nil {
			return err
		}
		return p.eachPair(apm, func(key, value *yaml.Node) error {
			switch key.Value {
			case "password":
				v, err := p.asString(value, "password")
				if err != nil {
					return err
				}
				ap.HasAuth = true
				if ap.Auth.KeyManagement == netdef.AuthKeyManagementNone {
					ap.Auth.KeyManagement = netdef.AuthKeyManagementPSK
				}
				ap.Auth.Password = v
				return nil
			case "auth":
				ap.HasAuth = true
				return p.processAuth(value, &ap.Auth)
			case "mode":
				v, err := p.asString(value, "mode")
				if err != nil {
					return err
				}
				mode, ok := netdef.WifiModeByName(v)
				if !ok {
					return p.schemaErrorf(value, "unknown wifi mode '%s'", v)
				}
				ap.Mode = mode
				return nil
			case "bssid":
				v, err := p.asString(value, "bssid")
				if err != nil {
					return err
				}
				if err := util.ValidateMAC(v); err != nil {
					return p.schemaErrorf(value, "%v", err)
				}
				ap.BSSID = v
				return nil
			case "band":
				v, err := p.asString(value, "band")
				if err != nil {
					return err
				}
				band, ok := netdef.WifiBandByName(v)
				if !ok {
					return p.schemaErrorf(value, "unknown wifi band '%s'", v)
				}
				ap.Band = band
				return nil
			case "channel":
				v, err := p.asInt(value, "channel", 0, 200)
				ap.Channel = int(v)
				return err
			case "hidden":
				v, err := p.asBool(value, "hidden")
				ap.Hidden = v
				return err
			case "networkmanager":
				if ap.Backend.NM == nil {
					ap.Backend.NM = &netdef.NMSettings{}
				}
				return p.processNMSettings(value, ap.Backend.NM)
			}
			return p.schemaErrorf(key, "unknown key '%s'", key.Value)
		})
	})
}

// processNMSettings deep-merges the networkmanager backend block; the
// passthrough mapping accumulates across files.
func (p *Parser) processNMSettings(n *yaml.Node, s *netdef.NMSettings) error {
	m, err := p.asMapping(n, "networkmanager")
	if err != nil {
		return err
	}
	return p.eachPair(m, func(key, value *yaml.Node) error {
		switch key.Value {
		case "name":
			v, err := p.asString(value, "name")
			s.Name = v
			return err
		case "uuid":
			v, err := p.asString(value, "uuid")
			s.UUID = v
			return err
		case "stable-id":
			v, err := p.asString(value, "stable-id")
			s.StableID = v
			return err
		case "device":
			v, err := p.asString(value, "device")
			s.Device = v
			return err
		case "passthrough":
			pm, err := p.asMapping(value, "passthrough")
			if err != nil {
				return err
			}
			return p.eachPair(pm, func(pkey, pvalue *yaml.Node) error {
				v, err := p.asString(pvalue, pkey.Value)
				if err != nil {
					return err
				}
				s.PassthroughSet(pkey.Value, v)
				return nil
			})
		}
		return p.schemaErrorf(key, "unknown key '%s'", key.Value)
	})
}

var ovsLACPModes = map[string]bool{"active": true, "passive": true, "off": true}
var ovsFailModes = map[string]bool{"secure": true, "standalone": true}

// processOVS parses an openvswitch block. The global form additionally
// accepts ssl; per-definition forms accept lacp/fail-mode/controller.
func (p *Parser) processOVS(n *yaml.Node, s *netdef.OVSSettings, global bool) error {
	m, err := p.asMapping(n, "openvswitch")
	if err != nil {
		return err
	}
	return p.eachPair(m, func(key, value *yaml.Node) error {
		switch key.Value {
		case "external-ids":
			kv, err := p.stringMap(value, "external-ids")
			if err != nil {
				return err
			}
			s.ExternalIDs = mergeStringMap(s.ExternalIDs, kv)
			return nil
		case "other-config":
			kv, err := p.stringMap(value, "other-config")
			if err != nil {
				return err
			}
			s.OtherConfig = mergeStringMap(s.OtherConfig, kv)
			return nil
		case "lacp":
			v, err := p.asString(value, "lacp")
			if err != nil {
				return err
			}
			if !ovsLACPModes[v] {
				return p.schemaErrorf(value, "invalid lacp mode '%s'", v)
			}
			s.LACP = v
			return nil
		case "fail-mode":
			v, err := p.asString(value, "fail-mode")
			if err != nil {
				return err
			}
			if !ovsFailModes[v] {
				return p.schemaErrorf(value, "invalid fail-mode '%s'", v)
			}
			s.FailMode = v
			return nil
		case "mcast-snooping":
			v, err := p.asBool(value, "mcast-snooping")
			s.McastSnooping = netdef.Bool(v)
			return err
		case "rstp":
			v, err := p.asBool(value, "rstp")
			s.RSTP = netdef.Bool(v)
			return err
		case "protocols":
			v, err := p.asStringSeq(value, "protocols")
			s.Protocols = v
			return err
		case "controller":
			cm, err := p.asMapping(value, "controller")
			if err != nil {
				return err
			}
			if s.Controller == nil {
				s.Controller = &netdef.OVSController{}
			}
			return p.eachPair(cm, func(ckey, cvalue *yaml.Node) error {
				switch ckey.Value {
				case "connection-mode":
					v, err := p.asString(cvalue, "connection-mode")
					if err != nil {
						return err
					}
					if v != "in-band" && v != "out-of-band" {
						return p.schemaErrorf(cvalue, "invalid connection-mode '%s'", v)
					}
					s.Controller.ConnectionMode = v
					return nil
				case "addresses":
					v, err := p.asStringSeq(cvalue, "addresses")
					s.Controller.Addresses = v
					return err
				}
				return p.schemaErrorf(ckey, "unknown key '%s'", ckey.Value)
			})
		case "ssl":
			if !global {
				return p.schemaErrorf(key, "ssl is only valid in the global openvswitch block")
			}
			sm, err := p.asMapping(value, "ssl")
			if err != nil {
				return err
			}
			if s.SSL == nil {
				s.SSL = &netdef.OVSSSL{}
			}
			return p.eachPair(sm, func(skey, svalue *yaml.Node) error {
				v, err := p.asString(svalue, skey.Value)
				if err != nil {
					return err
				}
				switch skey.Value {
				case "ca-cert":
					s.SSL.CACert = v
				case "certificate":
					s.SSL.ClientCert = v
				case "private-key":
					s.SSL.ClientKey = v
				default:
					return p.schemaErrorf(skey, "unknown key '%s'", skey.Value)
				}
				return nil
			})
		}
		return p.schemaErrorf(key, "unknown key '%s'", key.Value)
	})
}

func (p *Parser) stringMap(n *yaml.Node, what string) (map[string]string, error) {
	m, err := p.asMapping(n, what)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m.Content)/2)
	err = p.eachPair(m, func(key, value *yaml.Node) error {
		v, err := p.asString(value, what)
		if err != nil {
			return err
		}
		out[key.Value] = v
		return nil
	})
	return out, err
}

func mergeStringMap(dst, src map[string]string) map[string]string {
	if dst == nil {
		return src
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// clearField resets a definition field to its default. Used when the
// null overlay marks the key's path.
func (p *Parser) clearField(def *netdef.NetDef, key string) {
	switch key {
	case "renderer":
		def.Backend = netdef.BackendNone
	case "dhcp4":
		def.DHCP4 = false
	case "dhcp6":
		def.DHCP6 = false
	case "dhcp-identifier":
		def.DHCPIdentifier = ""
	case "dhcp4-overrides":
		def.DHCP4Overrides = netdef.DHCPOverrides{Metric: netdef.MetricUnspec}
	case "dhcp6-overrides":
		def.DHCP6Overrides = netdef.DHCPOverrides{Metric: netdef.MetricUnspec}
	case "accept-ra":
		def.AcceptRA = netdef.RAKernel
	case "addresses":
		def.Addresses = nil
		def.AddressOptions = nil
	case "gateway4":
		def.Gateway4 = ""
	case "gateway6":
		def.Gateway6 = ""
	case "nameservers":
		def.Nameservers = nil
		def.SearchDomains = nil
	case "routes":
		def.Routes = nil
	case "routing-policy":
		def.IPRules = nil
	case "link-local":
		def.LinkLocal = netdef.DefaultLinkLocal()
	case "critical":
		def.Critical = false
	case "optional":
		def.Optional = false
	case "optional-addresses":
		def.OptionalAddrs = 0
	case "macaddress":
		def.SetMAC = ""
	case "mtu":
		def.MTU = 0
	case "ipv6-mtu":
		def.IPv6MTU = 0
	case "ipv6-privacy":
		def.IPv6Privacy = netdef.TriUnset
	case "ipv6-address-generation":
		def.IPv6AddrGen = netdef.AddrGenDefault
	case "ipv6-address-token":
		def.IPv6AddressToken = ""
	case "emit-lldp":
		def.EmitLLDP = false
	case "match":
		def.Match = netdef.MatchSpec{}
		def.HasMatch = false
	case "set-name":
		def.SetName = ""
	case "wakeonlan":
		def.WakeOnLan = false
	case "access-points":
		def.AccessPoints = nil
		def.APOrder = nil
	case "auth":
		def.Auth = netdef.AuthSettings{}
		def.HasAuth = false
	case "interfaces":
		// membership resets are applied when the members re-register
	case "networkmanager":
		def.BackendSettings.NM = nil
	case "openvswitch":
		def.OVS = nil
	case "peers":
		def.WireguardPeers = nil
	default:
		if off, ok := netdef.OffloadByYAMLKey(key); ok {
			def.Offloads[off] = netdef.TriUnset
		}
	}
}
