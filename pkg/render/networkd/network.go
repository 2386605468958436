package networkd

import (
	"fmt"
	"strings"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/state"
	"github.com/netplan-go/netplan/pkg/util"
)

// networkFile renders the .network file, or "" when neither a [Link]
// nor a [Network] section would carry content.
func networkFile(st *state.State, d *netdef.NetDef) (string, error) {
	match := newSection("Match")
	if name := matchName(d); name != "" {
		match.add("Name", name)
	}
	if !d.Type.IsVirtual() {
		if d.Match.MAC != "" {
			match.add("MACAddress", d.Match.MAC)
		}
		if d.Match.Driver != "" {
			match.add("Driver", strings.Join(util.SplitTab(d.Match.Driver), " "))
		}
		if d.IsMember() && d.Match.MAC != "" {
			// a MAC match would otherwise also catch the vlan/bond/bridge
			// devices inheriting the address
			match.add("Type", "!vlan bond bridge")
		}
	}

	link := newSection("Link")
	if d.Optional {
		link.add("RequiredForOnline", "no")
	}
	if d.OptionalAddrs != 0 {
		link.add("OptionalAddresses", strings.Join(netdef.NetworkdOptionalTokens(d.OptionalAddrs), " "))
	}
	if d.MTU != 0 {
		link.add("MTUBytes", d.MTU)
	}

	network := newSection("Network")
	if d.EmitLLDP {
		network.add("EmitLLDP", "true")
	}
	network.add("LinkLocalAddressing", linkLocalValue(d))
	switch {
	case d.DHCP4 && d.DHCP6:
		network.add("DHCP", "yes")
	case d.DHCP4:
		network.add("DHCP", "ipv4")
	case d.DHCP6:
		network.add("DHCP", "ipv6")
	}
	for _, a := range d.Addresses {
		network.add("Address", a)
	}
	if d.Gateway4 != "" {
		network.add("Gateway", d.Gateway4)
	}
	if d.Gateway6 != "" {
		network.add("Gateway", d.Gateway6)
	}
	for _, ns := range d.Nameservers {
		network.add("DNS", ns)
	}
	if len(d.SearchDomains) > 0 {
		network.add("Domains", strings.Join(d.SearchDomains, " "))
	}
	switch d.AcceptRA {
	case netdef.RAEnabled:
		network.add("IPv6AcceptRA", "yes")
	case netdef.RADisabled:
		network.add("IPv6AcceptRA", "no")
	}
	if d.IPv6Privacy.IsSet() {
		network.add("IPv6PrivacyExtensions", d.IPv6Privacy.Value())
	}
	if d.IPv6AddressToken != "" {
		network.add("IPv6Token", "static:"+d.IPv6AddressToken)
	}
	if d.IPv6MTU != 0 {
		network.add("IPv6MTUBytes", d.IPv6MTU)
	}
	if d.Type.IsVirtual() {
		network.add("ConfigureWithoutCarrier", "yes")
	}
	if d.BridgeID != "" {
		network.add("Bridge", d.BridgeID)
	}
	if d.BondID != "" {
		network.add("Bond", d.BondID)
	}
	if d.VRFLinkID != "" {
		network.add("VRF", d.VRFLinkID)
	}
	if d.HasVLANs {
		for _, child := range st.NetDefsByType(netdef.TypeVLAN) {
			if child.VLANLinkID == d.ID {
				network.add("VLAN", child.ID)
			}
		}
	}

	var tail []*section
	for _, r := range d.Routes {
		tail = append(tail, routeSection(r))
	}
	for _, rule := range d.IPRules {
		tail = append(tail, ruleSection(rule))
	}
	if d.DHCP4 || d.DHCP6 {
		dhcp, err := dhcpSection(d)
		if err != nil {
			return "", err
		}
		tail = append(tail, dhcp)
	}

	// only LinkLocalAddressing was added: nothing really to configure
	if link.empty() && len(network.lines) == 1 && len(tail) == 0 {
		return "", nil
	}
	sections := append([]*section{match, link, network}, tail...)
	return joinSections(sections...), nil
}

// linkLocalValue applies the membership suppression rule: bond and
// bridge members never request link-local addresses.
func linkLocalValue(d *netdef.NetDef) string {
	if d.IsMember() {
		return "no"
	}
	switch {
	case d.LinkLocal.IPv4 && d.LinkLocal.IPv6:
		return "yes"
	case d.LinkLocal.IPv4:
		return "ipv4"
	case d.LinkLocal.IPv6:
		return "ipv6"
	}
	return "no"
}

func routeSection(r netdef.Route) *section {
	s := newSection("Route")
	if r.From != "" {
		s.add("Source", r.From)
	}
	switch {
	case r.To == "default" && r.Family == util.AFInet6, r.To == "::/0":
		s.add("Destination", "::/0")
	case r.To == "default", r.To == "0.0.0.0/0":
		s.add("Destination", "0.0.0.0/0")
	case r.To != "":
		s.add("Destination", r.To)
	}
	if r.Via != "" {
		s.add("Gateway", r.Via)
	}
	if r.OnLink {
		s.add("GatewayOnLink", "true")
	}
	if r.Metric != netdef.MetricUnspec {
		s.add("Metric", r.Metric)
	}
	if r.Type != "" && r.Type != "unicast" {
		s.add("Type", r.Type)
	}
	if r.Scope != "" && r.Scope != "global" {
		s.add("Scope", r.Scope)
	}
	if r.Table != netdef.TableUnspec {
		s.add("Table", r.Table)
	}
	if r.MTU != 0 {
		s.add("MTUBytes", r.MTU)
	}
	if r.CongestionWindow != 0 {
		s.add("InitialCongestionWindow", r.CongestionWindow)
	}
	if r.AdvertisedReceiveWindow != 0 {
		s.add("InitialAdvertisedReceiveWindow", r.AdvertisedReceiveWindow)
	}
	return s
}

func ruleSection(r netdef.IPRule) *section {
	s := newSection("RoutingPolicyRule")
	if r.From != "" {
		s.add("From", r.From)
	}
	if r.To != "" {
		s.add("To", r.To)
	}
	if r.Table != netdef.TableUnspec {
		s.add("Table", r.Table)
	}
	if r.Priority != netdef.IPRuleNoPriority {
		s.add("Priority", r.Priority)
	}
	if r.FWMark != netdef.IPRuleNoFWMark {
		s.add("FirewallMark", r.FWMark)
	}
	if r.TOS != netdef.IPRuleNoTOS {
		s.add("TypeOfService", r.TOS)
	}
	return s
}

// dhcpSection renders the combined [DHCP] section. When both families
// run DHCP their overrides must agree; disagreement is a render-time
// error naming the offending field.
func dhcpSection(d *netdef.NetDef) (*section, error) {
	o := d.DHCP4Overrides
	if !d.DHCP4 {
		o = d.DHCP6Overrides
	} else if d.DHCP6 {
		if err := checkOverridesEqual(d); err != nil {
			return nil, err
		}
	}
	s := newSection("DHCP")
	if d.DHCPIdentifier == "mac" {
		s.add("ClientIdentifier", "mac")
	}
	metric := o.Metric
	if metric == netdef.MetricUnspec {
		if d.Type == netdef.TypeWifi {
			metric = 600
		} else {
			metric = 100
		}
	}
	s.add("RouteMetric", metric)
	useMTU := false
	if o.UseMTU.IsSet() {
		useMTU = o.UseMTU.Value()
	}
	s.add("UseMTU", useMTU)
	if o.UseRoutes.IsSet() {
		s.add("UseRoutes", o.UseRoutes.Value())
	}
	if o.UseDNS.IsSet() {
		s.add("UseDNS", o.UseDNS.Value())
	}
	if o.UseDomains != "" {
		s.add("UseDomains", o.UseDomains)
	}
	if o.UseNTP.IsSet() {
		s.add("UseNTP", o.UseNTP.Value())
	}
	if o.SendHostname.IsSet() {
		s.add("SendHostname", o.SendHostname.Value())
	}
	if o.UseHostname.IsSet() {
		s.add("UseHostname", o.UseHostname.Value())
	}
	if o.Hostname != "" {
		s.add("Hostname", o.Hostname)
	}
	return s, nil
}

func checkOverridesEqual(d *netdef.NetDef) error {
	a, b := d.DHCP4Overrides, d.DHCP6Overrides
	fields := []struct {
		name  string
		equal bool
	}{
		{"use-dns", a.UseDNS == b.UseDNS},
		{"use-ntp", a.UseNTP == b.UseNTP},
		{"use-mtu", a.UseMTU == b.UseMTU},
		{"use-routes", a.UseRoutes == b.UseRoutes},
		{"use-hostname", a.UseHostname == b.UseHostname},
		{"use-domains", a.UseDomains == b.UseDomains},
		{"send-hostname", a.SendHostname == b.SendHostname},
		{"hostname", a.Hostname == b.Hostname},
		{"route-metric", a.Metric == b.Metric},
	}
	for _, f := range fields {
		if !f.equal {
			return util.NewSemanticError(d.ID,
				"networkd requires that dhcp4-overrides and dhcp6-overrides agree on '%s'", f.name)
		}
	}
	return nil
}

// udevRules renders the rename rules needed when a set-name rides on a
// MAC or driver match, or "" when none are needed.
func udevRules(d *netdef.NetDef) string {
	if d.Type.IsVirtual() || d.SetName == "" {
		return ""
	}
	if d.Match.MAC == "" && d.Match.Driver == "" {
		return ""
	}
	var sb strings.Builder
	drivers := util.SplitTab(d.Match.Driver)
	if len(drivers) == 0 {
		drivers = []string{"?*"}
	}
	for _, drv := range drivers {
		sb.WriteString(`SUBSYSTEM=="net", ACTION=="add", DRIVERS=="` + drv + `"`)
		if d.Match.MAC != "" {
			sb.WriteString(`, ATTR{address}=="` + strings.ToLower(d.Match.MAC) + `"`)
		}
		fmt.Fprintf(&sb, ", NAME=\"%s\"\n", d.SetName)
	}
	return sb.String()
}
