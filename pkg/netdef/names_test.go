package netdef

import "testing"

func TestTypeTables(t *testing.T) {
	for typ, name := range typeNames {
		back, ok := TypeByName(name)
		if !ok || back != typ {
			t.Errorf("TypeByName(%q) = %v, %v", name, back, ok)
		}
	}
	if _, ok := TypeByName("floppy-disks"); ok {
		t.Error("unknown group name should not resolve")
	}
}

func TestTypePhysicality(t *testing.T) {
	physical := []Type{TypeEthernet, TypeWifi, TypeModem}
	virtual := []Type{TypeBridge, TypeBond, TypeVLAN, TypeVRF, TypeTunnel, TypePort, TypeNMDevice, TypeVXLAN}
	for _, typ := range physical {
		if !typ.IsPhysical() || typ.IsVirtual() {
			t.Errorf("%v misclassified, want physical", typ)
		}
	}
	for _, typ := range virtual {
		if typ.IsPhysical() || !typ.IsVirtual() {
			t.Errorf("%v misclassified, want virtual", typ)
		}
	}
}

func TestDefaultBackendForType(t *testing.T) {
	tests := []struct {
		typ    Type
		global Backend
		want   Backend
	}{
		{TypeModem, BackendNone, BackendNM},
		{TypeModem, BackendNetworkd, BackendNM},
		{TypeNMDevice, BackendNone, BackendNM},
		{TypePort, BackendNetworkd, BackendOVS},
		{TypeEthernet, BackendNone, BackendNetworkd},
		{TypeEthernet, BackendNM, BackendNM},
		{TypeBridge, BackendNetworkd, BackendNetworkd},
	}
	for _, tt := range tests {
		if got := DefaultBackendForType(tt.typ, tt.global); got != tt.want {
			t.Errorf("DefaultBackendForType(%v, %v) = %v, want %v", tt.typ, tt.global, got, tt.want)
		}
	}
}

func TestTunnelModes(t *testing.T) {
	for mode, name := range tunnelModeNames {
		back, ok := TunnelModeByName(name)
		if !ok || back != mode {
			t.Errorf("TunnelModeByName(%q) = %v, %v", name, back, ok)
		}
	}
	keyed := []TunnelMode{TunnelModeGRE, TunnelModeIP6GRE, TunnelModeGRETAP, TunnelModeIP6GRETAP, TunnelModeVTI, TunnelModeVTI6}
	for _, m := range keyed {
		if !m.SupportsKeys() {
			t.Errorf("%v should support keys", m)
		}
	}
	unkeyed := []TunnelMode{TunnelModeIPIP, TunnelModeSIT, TunnelModeISATAP, TunnelModeIP6IP6, TunnelModeIPIP6}
	for _, m := range unkeyed {
		if m.SupportsKeys() {
			t.Errorf("%v should not support keys", m)
		}
	}
	if TunnelModeIP6GRE.LocalFamily() != 10 {
		t.Error("ip6gre should have an IPv6 outer family")
	}
	if TunnelModeGRE.LocalFamily() != 2 {
		t.Error("gre should have an IPv4 outer family")
	}
}

func TestOptionalFlags(t *testing.T) {
	flags := OptionalIPv4LL | OptionalDHCP6
	tokens := NetworkdOptionalTokens(flags)
	if len(tokens) != 2 || tokens[0] != "ipv4-ll" || tokens[1] != "dhcp6" {
		t.Errorf("tokens = %v", tokens)
	}
	if f, ok := OptionalFlagByName("static"); !ok || f != OptionalStatic {
		t.Error("static flag lookup failed")
	}
	if _, ok := OptionalFlagByName("bogus"); ok {
		t.Error("bogus flag should not resolve")
	}
}

func TestOffloadTables(t *testing.T) {
	for i := Offload(0); i < OffloadCount; i++ {
		back, ok := OffloadByYAMLKey(i.YAMLKey())
		if !ok || back != i {
			t.Errorf("OffloadByYAMLKey(%q) = %v, %v", i.YAMLKey(), back, ok)
		}
		if i.NetworkdKey() == "" {
			t.Errorf("offload %d has no networkd key", i)
		}
	}
}
