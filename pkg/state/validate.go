package state

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/util"
)

// validator runs the three validation passes over a freshly assembled
// state: per-definition grammar, per-definition backend rules, then
// graph-wide consistency.
type validator struct {
	state *State
	errs  util.ValidationBuilder
}

// run executes all passes. It returns the ids of definitions to drop
// when errors are being ignored.
func (v *validator) run(ignore bool) []string {
	var dropped []string
	for _, d := range v.state.defs {
		err := firstError(v.checkGrammar(d), v.checkBackendRules(d))
		if err == nil {
			continue
		}
		if ignore {
			util.WithNetdef(d.ID).Warnf("ignoring invalid definition: %v", err)
			dropped = append(dropped, d.ID)
			continue
		}
		v.errs.Merge(err)
	}
	if v.errs.HasErrors() {
		return dropped
	}
	v.checkGraph(dropped)
	return dropped
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// checkGrammar enforces the structural invariants local to one
// definition.
func (v *validator) checkGrammar(d *netdef.NetDef) error {
	if d.SetName != "" && !d.HasMatch {
		return util.NewSemanticError(d.ID, "'set-name' requires a 'match' block")
	}
	if d.IPv6AddrGen != netdef.AddrGenDefault && d.IPv6AddressToken != "" {
		return util.NewSemanticError(d.ID, "'ipv6-address-generation' and 'ipv6-address-token' are mutually exclusive")
	}
	switch d.Type {
	case netdef.TypeWifi:
		if len(d.AccessPoints) == 0 {
			return util.NewSemanticError(d.ID, "wifi definition needs an 'access-points' block")
		}
		for _, ssid := range d.APOrder {
			if err := v.checkAuth(d.ID, d.AccessPoints[ssid].Auth); err != nil {
				return err
			}
		}
	case netdef.TypeVLAN:
		if d.VLANLinkID == "" {
			return util.NewSemanticError(d.ID, "vlan definition needs a 'link'")
		}
		if d.VLANID < 0 || d.VLANID > 4094 {
			return util.NewSemanticError(d.ID, "vlan id must be in range [0, 4094]")
		}
	case netdef.TypeVXLAN:
		if d.VXLAN == nil || d.VXLAN.VNI == netdef.VXLANVNIUnset {
			return util.NewSemanticError(d.ID, "vxlan definition needs an 'id' (VNI)")
		}
	case netdef.TypeTunnel:
		if err := v.checkTunnel(d); err != nil {
			return err
		}
	case netdef.TypeNMDevice:
		nm := d.BackendSettings.NM
		if nm == nil {
			return util.NewSemanticError(d.ID, "nm-device definition needs a 'networkmanager' block")
		}
		if _, ok := nm.PassthroughGet("connection.type"); !ok {
			return util.NewSemanticError(d.ID, "nm-device passthrough must contain 'connection.type'")
		}
	case netdef.TypeVRF:
		if d.VRFTable == netdef.TableUnspec {
			return util.NewSemanticError(d.ID, "vrf definition needs a 'table'")
		}
	}
	if d.HasAuth {
		if err := v.checkAuth(d.ID, d.Auth); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) checkAuth(id string, a netdef.AuthSettings) error {
	if a.KeyManagement == netdef.AuthKeyManagementPSK && a.Password != "" {
		n := len(a.Password)
		if n == 64 {
			for i := 0; i < n; i++ {
				c := a.Password[i]
				if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
					return util.NewSemanticError(id, "64-character PSK must be a hexadecimal hash")
				}
			}
		} else if n < 8 || n > 63 {
			return util.NewSemanticError(id, "PSK length must be between 8 and 63 characters (or a 64-character hash)")
		}
	}
	return nil
}

func (v *validator) checkTunnel(d *netdef.NetDef) error {
	t := &d.Tunnel
	if t.Mode == netdef.TunnelModeUnknown {
		return util.NewSemanticError(d.ID, "tunnel definition needs a 'mode'")
	}
	if t.Mode == netdef.TunnelModeWireGuard {
		if t.PrivateKey == "" {
			return util.NewSemanticError(d.ID, "wireguard tunnel needs a private key")
		}
		if !strings.HasPrefix(t.PrivateKey, "/") {
			if err := checkWireguardKey(t.PrivateKey); err != nil {
				return util.NewSemanticError(d.ID, "invalid wireguard private key: %v", err)
			}
		}
		if len(d.WireguardPeers) == 0 {
			return util.NewSemanticError(d.ID, "wireguard tunnel needs at least one peer")
		}
		for i := range d.WireguardPeers {
			peer := &d.WireguardPeers[i]
			if peer.PublicKey == "" {
				return util.NewSemanticError(d.ID, "wireguard peer needs a public key")
			}
			if err := checkWireguardKey(peer.PublicKey); err != nil {
				return util.NewSemanticError(d.ID, "invalid wireguard public key: %v", err)
			}
			if peer.PresharedKey != "" && !strings.HasPrefix(peer.PresharedKey, "/") {
				if len(peer.PresharedKey) != 44 {
					return util.NewSemanticError(d.ID, "wireguard preshared key must be a 44-character base64 string or a file path")
				}
				if _, err := base64.StdEncoding.DecodeString(peer.PresharedKey); err != nil {
					return util.NewSemanticError(d.ID, "invalid wireguard preshared key: %v", err)
				}
			}
			if len(peer.AllowedIPs) == 0 {
				return util.NewSemanticError(d.ID, "wireguard peer needs a non-empty 'allowed-ips' list")
			}
		}
		return nil
	}
	if t.Local == "" || t.Remote == "" {
		return util.NewSemanticError(d.ID, "tunnel needs both 'local' and 'remote' addresses")
	}
	family := t.Mode.LocalFamily()
	if util.IPFamily(t.Local) != family {
		return util.NewSemanticError(d.ID, "tunnel local address '%s' must be %s for mode %s",
			t.Local, util.FamilyName(family), t.Mode)
	}
	if util.IPFamily(t.Remote) != family {
		return util.NewSemanticError(d.ID, "tunnel remote address '%s' must be %s for mode %s",
			t.Remote, util.FamilyName(family), t.Mode)
	}
	return nil
}

// checkWireguardKey validates a 44-character base64 curve25519 key by
// decoding it and deriving its public point.
func checkWireguardKey(key string) error {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return fmt.Errorf("not valid base64")
	}
	if len(raw) != curve25519.ScalarSize {
		return fmt.Errorf("must decode to %d bytes", curve25519.ScalarSize)
	}
	if _, err := curve25519.X25519(raw, curve25519.Basepoint); err != nil {
		return fmt.Errorf("not a usable curve25519 key")
	}
	return nil
}

// checkBackendRules enforces the per-backend feature matrix.
func (v *validator) checkBackendRules(d *netdef.NetDef) error {
	if d.Type != netdef.TypeTunnel {
		return nil
	}
	t := &d.Tunnel
	switch d.Backend {
	case netdef.BackendNetworkd:
		if t.Mode == netdef.TunnelModeISATAP {
			return util.NewUnsupportedError(d.ID, "tunnel mode 'isatap' is not supported by networkd")
		}
	case netdef.BackendNM:
		if t.Mode == netdef.TunnelModeGRETAP || t.Mode == netdef.TunnelModeIP6GRETAP {
			return util.NewUnsupportedError(d.ID, "tunnel mode '%s' is not supported by NetworkManager", t.Mode)
		}
	}
	if !t.Mode.SupportsKeys() && t.Mode != netdef.TunnelModeWireGuard {
		if t.InputKey != "" || t.OutputKey != "" {
			return util.NewUnsupportedError(d.ID, "input/output keys are not allowed for tunnel mode '%s'", t.Mode)
		}
	}
	return nil
}

// defaultRouteClaim describes one (family, table, metric) default-route
// tuple for the uniqueness check.
type defaultRouteClaim struct {
	family int
	table  uint32
	metric uint32
}

func (c defaultRouteClaim) String() string {
	table := "main"
	if c.table != netdef.TableUnspec && c.table != netdef.RouteTableMain {
		table = fmt.Sprintf("%d", c.table)
	}
	metric := "default"
	if c.metric != netdef.MetricUnspec {
		metric = fmt.Sprintf("%d", c.metric)
	}
	return fmt.Sprintf("(%s, table: %s, metric: %s)", util.FamilyName(c.family), table, metric)
}

// checkGraph runs whole-graph consistency checks: VRF table adoption,
// route dedup, default-route uniqueness, VLAN parent adoption and
// SR-IOV PF/VF adoption. Dropped ids (ignore-errors mode) are excluded.
func (v *validator) checkGraph(dropped []string) {
	isDropped := make(map[string]bool, len(dropped))
	for _, id := range dropped {
		isDropped[id] = true
	}
	live := make([]*netdef.NetDef, 0, len(v.state.defs))
	for _, d := range v.state.defs {
		if !isDropped[d.ID] {
			live = append(live, d)
		}
	}

	// VRF route adoption happens before dedup so conflicting tables
	// surface as errors rather than being silently collapsed.
	for _, d := range live {
		vrf := d.VRFLink()
		if vrf == nil {
			continue
		}
		for i := range d.Routes {
			r := &d.Routes[i]
			if r.Table == netdef.TableUnspec {
				r.Table = vrf.VRFTable
			} else if r.Table != vrf.VRFTable {
				v.errs.AddErrorf(
					"%s: route table %d conflicts with VRF '%s' table %d",
					d.ID, r.Table, vrf.ID, vrf.VRFTable)
			}
		}
	}
	for _, d := range live {
		if d.Type == netdef.TypeVRF {
			for i := range d.Routes {
				if d.Routes[i].Table == netdef.TableUnspec {
					d.Routes[i].Table = d.VRFTable
				}
			}
		}
		dedupRoutes(d)
	}

	// Default-route uniqueness across the whole graph.
	claims := make(map[defaultRouteClaim]string)
	claim := func(d *netdef.NetDef, c defaultRouteClaim) {
		if c.table == netdef.RouteTableMain {
			c.table = netdef.TableUnspec
		}
		if prev, ok := claims[c]; ok && prev != d.ID {
			v.errs.AddErrorf(
				"conflicting default route declared by both '%s' and '%s' for %s",
				prev, d.ID, c)
			return
		}
		claims[c] = d.ID
	}
	for _, d := range live {
		if d.Gateway4 != "" {
			claim(d, defaultRouteClaim{family: util.AFInet, table: netdef.TableUnspec, metric: netdef.MetricUnspec})
		}
		if d.Gateway6 != "" {
			claim(d, defaultRouteClaim{family: util.AFInet6, table: netdef.TableUnspec, metric: netdef.MetricUnspec})
		}
		for _, r := range d.Routes {
			if r.IsDefault() {
				claim(d, defaultRouteClaim{family: r.Family, table: r.Table, metric: r.Metric})
			}
		}
	}

	// VLAN parent adoption.
	for _, d := range live {
		if d.Type == netdef.TypeVLAN {
			if parent := d.VLANLink(); parent != nil {
				parent.HasVLANs = true
			}
		}
	}

	// SR-IOV adoption: mark physical functions, then reject PF-only
	// features on non-PFs.
	for _, d := range live {
		if pf := d.SRIOVLink(); pf != nil {
			pf.IsSRIOVPF = true
		}
	}
	for _, d := range live {
		if d.SRIOVExplicitVFCount != netdef.SRIOVNoVFCount || d.EmbeddedSwitchMode != "" {
			d.IsSRIOVPF = true
		}
	}
	for _, d := range live {
		if d.DelayVFRebind && !d.IsSRIOVPF {
			v.errs.AddErrorf("%s: 'delay-virtual-functions-rebind' is only valid on an SR-IOV physical function", d.ID)
		}
	}
}

// dedupRoutes removes routes that became identical after table
// adoption.
func dedupRoutes(d *netdef.NetDef) {
	seen := make(map[netdef.Route]bool, len(d.Routes))
	out := d.Routes[:0]
	for _, r := range d.Routes {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	d.Routes = out
}
