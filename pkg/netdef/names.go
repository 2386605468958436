// Package netdef defines the typed intermediate representation for
// network definitions: the NetDef structure, its parameter blocks, and
// the closed-set token tables shared by the parser, the validator and
// the renderer backends.
package netdef

// Type identifies the kind of device a definition configures. Types
// below typeVirtualStart describe physical hardware; the rest create
// virtual devices.
type Type int

const (
	TypeNone Type = iota
	TypeEthernet
	TypeWifi
	TypeModem
	typeVirtualStart
	TypeBridge
	TypeBond
	TypeVLAN
	TypeVRF
	TypeTunnel
	TypePort // OpenVSwitch patch port
	TypeNMDevice
	TypeVXLAN
)

// IsPhysical reports whether the type selects existing hardware rather
// than creating a virtual device.
func (t Type) IsPhysical() bool {
	return t > TypeNone && t < typeVirtualStart
}

// IsVirtual reports whether rendering the type requires creating a
// device.
func (t Type) IsVirtual() bool {
	return t > typeVirtualStart
}

var typeNames = map[Type]string{
	TypeEthernet: "ethernets",
	TypeWifi:     "wifis",
	TypeModem:    "modems",
	TypeBridge:   "bridges",
	TypeBond:     "bonds",
	TypeVLAN:     "vlans",
	TypeVRF:      "vrfs",
	TypeTunnel:   "tunnels",
	TypePort:     "_ovs-ports",
	TypeNMDevice: "nm-devices",
	TypeVXLAN:    "vxlans",
}

var typesByName = reverseTypes(typeNames)

func reverseTypes(m map[Type]string) map[string]Type {
	r := make(map[string]Type, len(m))
	for k, v := range m {
		r[v] = k
	}
	return r
}

// String returns the YAML type-group key for t ("ethernets", "bonds", ...).
func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// TypeByName maps a YAML type-group key back to its Type.
func TypeByName(name string) (Type, bool) {
	t, ok := typesByName[name]
	return t, ok
}

// Backend selects the renderer responsible for a definition.
type Backend int

const (
	BackendNone Backend = iota
	BackendNetworkd
	BackendNM
	BackendOVS
)

var backendNames = map[Backend]string{
	BackendNone:     "none",
	BackendNetworkd: "networkd",
	BackendNM:       "NetworkManager",
	BackendOVS:      "OpenVSwitch",
}

func (b Backend) String() string {
	if s, ok := backendNames[b]; ok {
		return s
	}
	return "none"
}

// BackendByName maps a renderer token to its Backend. Only networkd and
// NetworkManager are accepted in YAML; OpenVSwitch is implied by the
// openvswitch block or the _ovs-ports group.
func BackendByName(name string) (Backend, bool) {
	switch name {
	case "networkd":
		return BackendNetworkd, true
	case "NetworkManager":
		return BackendNM, true
	}
	return BackendNone, false
}

// DefaultBackendForType returns the renderer used when neither the
// definition nor the globals select one.
func DefaultBackendForType(t Type, global Backend) Backend {
	switch t {
	case TypeModem, TypeNMDevice:
		return BackendNM
	case TypePort:
		return BackendOVS
	}
	if global != BackendNone {
		return global
	}
	return BackendNetworkd
}

// TunnelMode enumerates the supported tunnel encapsulations.
type TunnelMode int

const (
	TunnelModeUnknown TunnelMode = iota
	TunnelModeIPIP
	TunnelModeGRE
	TunnelModeSIT
	TunnelModeISATAP
	TunnelModeVTI
	TunnelModeIP6IP6
	TunnelModeIPIP6
	TunnelModeIP6GRE
	TunnelModeVTI6
	TunnelModeGRETAP
	TunnelModeIP6GRETAP
	TunnelModeWireGuard
)

var tunnelModeNames = map[TunnelMode]string{
	TunnelModeIPIP:      "ipip",
	TunnelModeGRE:       "gre",
	TunnelModeSIT:       "sit",
	TunnelModeISATAP:    "isatap",
	TunnelModeVTI:       "vti",
	TunnelModeIP6IP6:    "ip6ip6",
	TunnelModeIPIP6:     "ipip6",
	TunnelModeIP6GRE:    "ip6gre",
	TunnelModeVTI6:      "vti6",
	TunnelModeGRETAP:    "gretap",
	TunnelModeIP6GRETAP: "ip6gretap",
	TunnelModeWireGuard: "wireguard",
}

var tunnelModesByName = func() map[string]TunnelMode {
	r := make(map[string]TunnelMode, len(tunnelModeNames))
	for k, v := range tunnelModeNames {
		r[v] = k
	}
	return r
}()

func (m TunnelMode) String() string {
	if s, ok := tunnelModeNames[m]; ok {
		return s
	}
	return "unknown"
}

// TunnelModeByName maps a YAML mode token to its TunnelMode.
func TunnelModeByName(name string) (TunnelMode, bool) {
	m, ok := tunnelModesByName[name]
	return m, ok
}

// SupportsKeys reports whether the mode accepts input/output keys.
func (m TunnelMode) SupportsKeys() bool {
	switch m {
	case TunnelModeGRE, TunnelModeIP6GRE, TunnelModeGRETAP, TunnelModeIP6GRETAP,
		TunnelModeVTI, TunnelModeVTI6:
		return true
	}
	return false
}

// LocalFamily returns the address family of the tunnel's outer addresses.
func (m TunnelMode) LocalFamily() int {
	switch m {
	case TunnelModeIP6IP6, TunnelModeIPIP6, TunnelModeIP6GRE, TunnelModeVTI6, TunnelModeIP6GRETAP:
		return 10 // AF_INET6
	case TunnelModeWireGuard, TunnelModeUnknown:
		return 0 // either
	}
	return 2 // AF_INET
}

// KeyManagement enumerates Wi-Fi / 802.1X key management schemes.
type KeyManagement int

const (
	AuthKeyManagementNone KeyManagement = iota
	AuthKeyManagementPSK
	AuthKeyManagementEAP
	AuthKeyManagement8021X
)

var keyManagementNames = map[KeyManagement]string{
	AuthKeyManagementNone:  "none",
	AuthKeyManagementPSK:   "psk",
	AuthKeyManagementEAP:   "eap",
	AuthKeyManagement8021X: "802.1x",
}

var keyManagementByName = func() map[string]KeyManagement {
	r := make(map[string]KeyManagement, len(keyManagementNames))
	for k, v := range keyManagementNames {
		r[v] = k
	}
	return r
}()

func (k KeyManagement) String() string { return keyManagementNames[k] }

// KeyManagementByName maps a YAML key-management token.
func KeyManagementByName(name string) (KeyManagement, bool) {
	k, ok := keyManagementByName[name]
	return k, ok
}

// EAPMethod enumerates the supported 802.1X EAP methods.
type EAPMethod int

const (
	EAPNone EAPMethod = iota
	EAPTLS
	EAPPEAP
	EAPTTLS
)

var eapMethodNames = map[EAPMethod]string{
	EAPNone: "",
	EAPTLS:  "tls",
	EAPPEAP: "peap",
	EAPTTLS: "ttls",
}

func (m EAPMethod) String() string { return eapMethodNames[m] }

// EAPMethodByName maps a YAML auth method token.
func EAPMethodByName(name string) (EAPMethod, bool) {
	for k, v := range eapMethodNames {
		if v == name && k != EAPNone {
			return k, true
		}
	}
	return EAPNone, false
}

// WifiMode enumerates access-point operation modes.
type WifiMode int

const (
	WifiModeInfrastructure WifiMode = iota
	WifiModeAdhoc
	WifiModeAP
	WifiModeOther
)

var wifiModeNames = map[WifiMode]string{
	WifiModeInfrastructure: "infrastructure",
	WifiModeAdhoc:          "adhoc",
	WifiModeAP:             "ap",
	WifiModeOther:          "other",
}

func (m WifiMode) String() string { return wifiModeNames[m] }

// WifiModeByName maps a YAML access-point mode token.
func WifiModeByName(name string) (WifiMode, bool) {
	for k, v := range wifiModeNames {
		if v == name && k != WifiModeOther {
			return k, true
		}
	}
	return WifiModeOther, false
}

// WifiBand selects the radio band of an access point.
type WifiBand int

const (
	WifiBandDefault WifiBand = iota
	WifiBand24      // 2.4GHz
	WifiBand5       // 5GHz
)

var wifiBandNames = map[WifiBand]string{
	WifiBandDefault: "",
	WifiBand24:      "2.4GHz",
	WifiBand5:       "5GHz",
}

func (b WifiBand) String() string { return wifiBandNames[b] }

// WifiBandByName maps a YAML band token.
func WifiBandByName(name string) (WifiBand, bool) {
	switch name {
	case "2.4GHz":
		return WifiBand24, true
	case "5GHz":
		return WifiBand5, true
	}
	return WifiBandDefault, false
}

// RAMode is the tri-mode handling of IPv6 router advertisements.
type RAMode int

const (
	RAKernel RAMode = iota // defer to kernel default
	RADisabled
	RAEnabled
)

// AddrGenMode selects how the IPv6 interface identifier is derived.
type AddrGenMode int

const (
	AddrGenDefault AddrGenMode = iota
	AddrGenEUI64
	AddrGenStablePrivacy
)

var addrGenNames = map[AddrGenMode]string{
	AddrGenDefault:       "",
	AddrGenEUI64:         "eui64",
	AddrGenStablePrivacy: "stable-privacy",
}

func (m AddrGenMode) String() string { return addrGenNames[m] }

// AddrGenModeByName maps a YAML ipv6-address-generation token.
func AddrGenModeByName(name string) (AddrGenMode, bool) {
	switch name {
	case "eui64":
		return AddrGenEUI64, true
	case "stable-privacy":
		return AddrGenStablePrivacy, true
	}
	return AddrGenDefault, false
}

// WoWLAN flags for wireless wake-on-LAN configuration.
type WoWLANFlag uint

const (
	WoWLANDefault    WoWLANFlag = 1 << iota
	WoWLANAny                   // any wake event
	WoWLANDisconnect            // wake on disconnect
	WoWLANMagic                 // wake on magic packet
	WoWLANGTKRekey              // GTK rekey failure
	WoWLANEAPIdentity
	WoWLAN4WayHandshake
	WoWLANRFKill
	WoWLANTCP
)

var wowlanNames = []struct {
	Flag WoWLANFlag
	Name string
}{
	{WoWLANDefault, "default"},
	{WoWLANAny, "any"},
	{WoWLANDisconnect, "disconnect"},
	{WoWLANMagic, "magic_pkt"},
	{WoWLANGTKRekey, "gtk_rekey_failure"},
	{WoWLANEAPIdentity, "eap_identity_req"},
	{WoWLAN4WayHandshake, "four_way_handshake"},
	{WoWLANRFKill, "rfkill_release"},
	{WoWLANTCP, "tcp"},
}

// WoWLANFlagByName maps a YAML wakeonwlan list element.
func WoWLANFlagByName(name string) (WoWLANFlag, bool) {
	for _, e := range wowlanNames {
		if e.Name == name {
			return e.Flag, true
		}
	}
	return 0, false
}

// OptionalFlag marks address states excluded from the wait-online check.
type OptionalFlag uint

const (
	OptionalIPv4LL OptionalFlag = 1 << iota
	OptionalIPv6RA
	OptionalDHCP4
	OptionalDHCP6
	OptionalStatic
)

var optionalFlagNames = []struct {
	Flag OptionalFlag
	Name string
}{
	{OptionalIPv4LL, "ipv4-ll"},
	{OptionalIPv6RA, "ipv6-ra"},
	{OptionalDHCP4, "dhcp4"},
	{OptionalDHCP6, "dhcp6"},
	{OptionalStatic, "static"},
}

// OptionalFlagByName maps a YAML optional-addresses element.
func OptionalFlagByName(name string) (OptionalFlag, bool) {
	for _, e := range optionalFlagNames {
		if e.Name == name {
			return e.Flag, true
		}
	}
	return 0, false
}

// NetworkdOptionalTokens returns the OptionalAddresses= tokens for the
// set flags, in declaration order.
func NetworkdOptionalTokens(flags OptionalFlag) []string {
	var out []string
	for _, e := range optionalFlagNames {
		if flags&e.Flag != 0 {
			out = append(out, e.Name)
		}
	}
	return out
}

// Offload identifies one of the hardware offload tri-states.
type Offload int

const (
	OffloadRxChecksum Offload = iota
	OffloadTxChecksum
	OffloadTSO
	OffloadTSO6
	OffloadGSO
	OffloadGRO
	OffloadLRO
	OffloadCount
)

var offloadNetworkdKeys = [OffloadCount]string{
	"ReceiveChecksumOffload",
	"TransmitChecksumOffload",
	"TCPSegmentationOffload",
	"TCP6SegmentationOffload",
	"GenericSegmentationOffload",
	"GenericReceiveOffload",
	"LargeReceiveOffload",
}

var offloadYAMLKeys = [OffloadCount]string{
	"receive-checksum-offload",
	"transmit-checksum-offload",
	"tcp-segmentation-offload",
	"tcp6-segmentation-offload",
	"generic-segmentation-offload",
	"generic-receive-offload",
	"large-receive-offload",
}

// NetworkdKey returns the [Link] key for the offload option.
func (o Offload) NetworkdKey() string { return offloadNetworkdKeys[o] }

// YAMLKey returns the YAML key for the offload option.
func (o Offload) YAMLKey() string { return offloadYAMLKeys[o] }

// OffloadByYAMLKey maps a YAML offload key.
func OffloadByYAMLKey(key string) (Offload, bool) {
	for i := Offload(0); i < OffloadCount; i++ {
		if offloadYAMLKeys[i] == key {
			return i, true
		}
	}
	return 0, false
}
