package netdef

import (
	"github.com/google/uuid"
)

// TriState is a three-valued option: unset defers to the backend default.
type TriState int

const (
	TriUnset TriState = iota
	TriFalse
	TriTrue
)

// Bool converts a parsed boolean into a TriState.
func Bool(b bool) TriState {
	if b {
		return TriTrue
	}
	return TriFalse
}

// IsSet reports whether the option was given explicitly.
func (t TriState) IsSet() bool { return t != TriUnset }

// Value returns the boolean value; only meaningful when IsSet.
func (t TriState) Value() bool { return t == TriTrue }

// MatchSpec selects physical devices by hardware properties. Driver holds
// one or more fnmatch globs joined by tabs; OriginalName is a single
// fnmatch glob.
type MatchSpec struct {
	Driver       string
	MAC          string
	OriginalName string
}

// Empty reports whether no match property is set.
func (m MatchSpec) Empty() bool {
	return m.Driver == "" && m.MAC == "" && m.OriginalName == ""
}

// DHCPOverrides tunes one DHCP family's lease handling. All tri-states
// default to the backend behavior when unset.
type DHCPOverrides struct {
	UseDNS       TriState
	UseNTP       TriState
	UseMTU       TriState
	UseRoutes    TriState
	UseHostname  TriState
	UseDomains   string // "", "true", "false" or "route"
	SendHostname TriState
	Hostname     string
	Metric       uint32 // route metric, MetricUnspec when not given
}

// MetricUnspec marks an absent route metric.
const MetricUnspec = ^uint32(0)

// RouteTableMain is the kernel's main routing table.
const RouteTableMain = 254

// TableUnspec marks an absent routing table.
const TableUnspec = 0

// Route is one static route attached to a definition.
type Route struct {
	Family   int // AF_INET / AF_INET6
	Type     string
	Scope    string
	Table    uint32
	From     string
	To       string
	Via      string
	OnLink   bool
	Metric   uint32
	MTU      int
	CongestionWindow         int
	AdvertisedReceiveWindow  int
}

// IsDefault reports whether the route claims the default destination.
func (r Route) IsDefault() bool {
	return r.To == "default" || r.To == "0.0.0.0/0" || r.To == "::/0"
}

// IPRule is one routing policy rule.
type IPRule struct {
	Family   int
	From     string
	To       string
	Table    uint32
	Priority int
	FWMark   int
	TOS      int
}

// Markers for absent IPRule fields.
const (
	IPRuleNoPriority = -1
	IPRuleNoFWMark   = -1
	IPRuleNoTOS      = -1
)

// AddressOptions carries per-address lifetime and label settings for
// addresses given in mapping form.
type AddressOptions struct {
	Address  string
	Lifetime string
	Label    string
}

// WireGuardPeer is one peer of a wireguard tunnel definition.
type WireGuardPeer struct {
	Endpoint     string
	PublicKey    string
	PresharedKey string // 44-char base64 or a file path
	AllowedIPs   []string
	Keepalive    int
}

// TunnelSettings configures tunnel-type definitions.
type TunnelSettings struct {
	Mode       TunnelMode
	Local      string
	Remote     string
	TTL        int
	InputKey   string
	OutputKey  string
	PrivateKey string // wireguard only
	Port       int    // wireguard listen port
	FWMark     int    // wireguard fwmark
}

// VXLANSettings configures vxlan-type definitions.
type VXLANSettings struct {
	VNI       int
	Local     string
	Remote    string
	TTL       int
	FlowLabel int
	Port      int
	MacLearning  TriState
	ShortCircuit TriState
}

// VXLANVNIUnset marks an absent VNI.
const VXLANVNIUnset = -1

// BondParameters mirror the YAML bond parameters block. Interval fields
// keep the user's textual form ("100ms", "1s") so the renderer can emit
// them unmodified.
type BondParameters struct {
	Mode                  string
	LACPRate              string
	MonitorInterval       string
	MinLinks              int
	TransmitHashPolicy    string
	SelectionLogic        string
	AllMembersActive      TriState
	ARPInterval           string
	ARPIPTargets          []string
	ARPValidate           string
	ARPAllTargets         string
	UpDelay               string
	DownDelay             string
	FailOverMACPolicy     string
	GratuitousARP         int
	PacketsPerMember      int
	PrimaryReselectPolicy string
	ResendIGMP            int
	LearnInterval         string
	Primary               string
}

// Empty reports whether no bond parameter was set.
func (p BondParameters) Empty() bool {
	return p.Mode == "" && p.LACPRate == "" &&
		p.MonitorInterval == "" && p.MinLinks == 0 && p.TransmitHashPolicy == "" &&
		p.SelectionLogic == "" && !p.AllMembersActive.IsSet() && p.ARPInterval == "" &&
		len(p.ARPIPTargets) == 0 && p.ARPValidate == "" && p.ARPAllTargets == "" &&
		p.UpDelay == "" && p.DownDelay == "" && p.FailOverMACPolicy == "" &&
		p.GratuitousARP == 0 && p.PacketsPerMember == 0 && p.PrimaryReselectPolicy == "" &&
		p.ResendIGMP == 0 && p.LearnInterval == "" && p.Primary == ""
}

// BridgeParameters mirror the YAML bridge parameters block.
type BridgeParameters struct {
	AgeingTime   string
	Priority     int
	PortPriority map[string]int // member id -> priority
	ForwardDelay string
	HelloTime    string
	MaxAge       string
	PathCost     map[string]int // member id -> cost
	STP          TriState
}

// ModemParameters mirror the YAML modem (GSM/CDMA) settings.
type ModemParameters struct {
	APN           string
	AutoConfig    bool
	DeviceID      string
	NetworkID     string
	Number        string
	Password      string
	PIN           string
	SIMID         string
	SIMOperatorID string
	Username      string
}

// OVSController addresses the OpenFlow controllers of a bridge.
type OVSController struct {
	ConnectionMode string // in-band / out-of-band
	Addresses      []string
}

// OVSSettings carries per-definition and global Open vSwitch options.
type OVSSettings struct {
	ExternalIDs  map[string]string
	OtherConfig  map[string]string
	LACP         string
	FailMode     string
	McastSnooping TriState
	RSTP          TriState
	Protocols    []string
	Controller   *OVSController
	SSL          *OVSSSL
}

// OVSSSL is the global SSL configuration for ssl: controller targets.
type OVSSSL struct {
	CACert     string
	ClientCert string
	ClientKey  string
}

// PassthroughEntry is one opaque backend key preserved verbatim,
// namespaced "<group>.<key>". Order of appearance is preserved.
type PassthroughEntry struct {
	Key   string
	Value string
}

// NMSettings is the NetworkManager arm of the backend-settings union.
type NMSettings struct {
	Name        string
	UUID        string
	StableID    string
	Device      string
	Passthrough []PassthroughEntry
}

// PassthroughGet returns the value for a namespaced key, if present.
func (s *NMSettings) PassthroughGet(key string) (string, bool) {
	for _, e := range s.Passthrough {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// PassthroughSet appends or replaces a namespaced key.
func (s *NMSettings) PassthroughSet(key, value string) {
	for i, e := range s.Passthrough {
		if e.Key == key {
			s.Passthrough[i].Value = value
			return
		}
	}
	s.Passthrough = append(s.Passthrough, PassthroughEntry{Key: key, Value: value})
}

// NetworkdSettings is the systemd-networkd arm of the backend-settings
// union.
type NetworkdSettings struct {
	Unit string
}

// BackendSettings is a union with exactly one arm populated, selected by
// the definition's backend.
type BackendSettings struct {
	NM       *NMSettings
	Networkd *NetworkdSettings
}

// AccessPoint is one SSID profile of a wifi definition.
type AccessPoint struct {
	SSID     string
	BSSID    string
	Band     WifiBand
	Channel  int
	Hidden   bool
	Mode     WifiMode
	Auth     AuthSettings
	HasAuth  bool
	Backend  BackendSettings
}

// AuthSettings configures WPA / 802.1X authentication for an access
// point or a wired definition.
type AuthSettings struct {
	KeyManagement     KeyManagement
	Method            EAPMethod
	Identity          string
	AnonymousIdentity string
	Password          string
	CACertificate     string
	ClientCertificate string
	ClientKey         string
	ClientKeyPassword string
	Phase2Auth        string
}

// LinkLocalSet records which families get link-local addresses. When
// the key is absent no link-local address is requested.
type LinkLocalSet struct {
	IPv4 bool
	IPv6 bool
}

// DefaultLinkLocal is the link-local membership used when the key is
// absent.
func DefaultLinkLocal() LinkLocalSet { return LinkLocalSet{} }

// Empty reports whether no family requests a link-local address.
func (l LinkLocalSet) Empty() bool { return !l.IPv4 && !l.IPv6 }

// SRIOVNoVFCount marks an absent sriov explicit VF count.
const SRIOVNoVFCount = -1

// NetDef is one named network definition: the unit of configuration.
// String-typed cross references (BridgeID, BondID, ...) are filled during
// parsing and resolved to pointers when a State is imported.
type NetDef struct {
	ID       string
	Type     Type
	Backend  Backend
	Filepath string // origin: last YAML file that wrote to this definition

	// Addressing
	DHCP4          bool
	DHCP6          bool
	DHCP4Overrides DHCPOverrides
	DHCP6Overrides DHCPOverrides
	DHCPIdentifier string
	AcceptRA       RAMode
	Addresses      []string
	AddressOptions []AddressOptions
	Gateway4       string
	Gateway6       string
	Nameservers    []string
	SearchDomains  []string
	Routes         []Route
	IPRules        []IPRule
	LinkLocal      LinkLocalSet

	// Wireguard
	WireguardPeers []WireGuardPeer

	// Parent/peer links, as ids until import resolves them
	BridgeID    string
	BondID      string
	VLANLinkID  string
	SRIOVLinkID string
	VRFLinkID   string
	PeerID      string

	bridgeLink *NetDef
	bondLink   *NetDef
	vlanLink   *NetDef
	sriovLink  *NetDef
	vrfLink    *NetDef
	peerLink   *NetDef

	// Device selection and identity
	Match    MatchSpec
	HasMatch bool
	SetName  string
	SetMAC   string

	// Link properties
	MTU              int
	IPv6MTU          int
	WakeOnLan        bool
	WoWLAN           WoWLANFlag
	Optional         bool
	OptionalAddrs    OptionalFlag
	Critical         bool
	EmitLLDP         bool
	IPv6Privacy      TriState
	IPv6AddrGen      AddrGenMode
	IPv6AddressToken string
	RegulatoryDomain string
	Offloads         [OffloadCount]TriState

	// Type parameter blocks
	VRFTable       uint32
	VLANID         int // -1 when unset
	HasVLANs       bool
	CustomBridging bool
	BondParams     BondParameters
	BridgeParams   BridgeParameters
	ModemParams    ModemParameters
	Tunnel         TunnelSettings
	VXLAN          *VXLANSettings
	OVS            *OVSSettings
	AccessPoints   map[string]*AccessPoint
	APOrder        []string // SSIDs in insertion order
	Auth           AuthSettings
	HasAuth        bool

	// SR-IOV
	SRIOVExplicitVFCount int // SRIOVNoVFCount when unset
	EmbeddedSwitchMode   string
	DelayVFRebind        bool
	IsSRIOVPF            bool // computed during validation

	// Backend-specific settings (tagged union keyed by Backend)
	BackendSettings BackendSettings

	uuid  string
	dirty map[string]struct{}
}

// New creates a definition of the given type with field defaults applied.
func New(id string, t Type) *NetDef {
	d := &NetDef{
		ID:                   id,
		Type:                 t,
		VLANID:               -1,
		SRIOVExplicitVFCount: SRIOVNoVFCount,
		LinkLocal:            DefaultLinkLocal(),
		dirty:                make(map[string]struct{}),
	}
	d.DHCP4Overrides.Metric = MetricUnspec
	d.DHCP6Overrides.Metric = MetricUnspec
	return d
}

// namespaceNetplan is the UUID namespace for stable per-definition UUIDs.
var namespaceNetplan = uuid.MustParse("0ca31718-dcbd-4f66-a8a8-6ad93f6e6c1c")

// UUID returns the definition's stable identifier, generating it on first
// use. The value is derived from the id so repeated generation runs keep
// profiles stable.
func (d *NetDef) UUID() string {
	if d.uuid == "" {
		d.uuid = uuid.NewSHA1(namespaceNetplan, []byte(d.ID)).String()
	}
	return d.uuid
}

// SetUUID pins the identifier, used by the keyfile importer where the
// original connection UUID must survive the round trip.
func (d *NetDef) SetUUID(u string) { d.uuid = u }

// HasUUID reports whether an identifier was generated or pinned.
func (d *NetDef) HasUUID() bool { return d.uuid != "" }

// MarkDirty records that a YAML key wrote to this definition in the
// current parser pass. The null-overlay merger consults this set.
func (d *NetDef) MarkDirty(key string) {
	if d.dirty == nil {
		d.dirty = make(map[string]struct{})
	}
	d.dirty[key] = struct{}{}
}

// IsDirty reports whether a key was written in the current pass.
func (d *NetDef) IsDirty(key string) bool {
	_, ok := d.dirty[key]
	return ok
}

// ClearDirty drops the per-pass write log.
func (d *NetDef) ClearDirty() {
	d.dirty = make(map[string]struct{})
}

// Link accessors, valid after State import.

// BridgeLink returns the resolved bridge parent, or nil.
func (d *NetDef) BridgeLink() *NetDef { return d.bridgeLink }

// BondLink returns the resolved bond parent, or nil.
func (d *NetDef) BondLink() *NetDef { return d.bondLink }

// VLANLink returns the resolved vlan parent, or nil.
func (d *NetDef) VLANLink() *NetDef { return d.vlanLink }

// SRIOVLink returns the resolved physical function, or nil.
func (d *NetDef) SRIOVLink() *NetDef { return d.sriovLink }

// VRFLink returns the resolved VRF parent, or nil.
func (d *NetDef) VRFLink() *NetDef { return d.vrfLink }

// PeerLink returns the resolved OVS patch peer, or nil.
func (d *NetDef) PeerLink() *NetDef { return d.peerLink }

// ResolveLinks binds the string references to their definitions. Missing
// referents are left nil; the validator reports them.
func (d *NetDef) ResolveLinks(lookup func(string) *NetDef) {
	if d.BridgeID != "" {
		d.bridgeLink = lookup(d.BridgeID)
	}
	if d.BondID != "" {
		d.bondLink = lookup(d.BondID)
	}
	if d.VLANLinkID != "" {
		d.vlanLink = lookup(d.VLANLinkID)
	}
	if d.SRIOVLinkID != "" {
		d.sriovLink = lookup(d.SRIOVLinkID)
	}
	if d.VRFLinkID != "" {
		d.vrfLink = lookup(d.VRFLinkID)
	}
	if d.PeerID != "" {
		d.peerLink = lookup(d.PeerID)
	}
}

// IsMember reports whether the definition is enslaved to a bond or
// bridge. Members never request link-local addresses.
func (d *NetDef) IsMember() bool {
	return d.BridgeID != "" || d.BondID != ""
}

// NMSettings returns the NetworkManager arm, allocating it on first use.
// Valid only for NM-managed definitions.
func (d *NetDef) NMSettings() *NMSettings {
	if d.BackendSettings.NM == nil {
		d.BackendSettings.NM = &NMSettings{}
	}
	return d.BackendSettings.NM
}

// NetworkdSettings returns the networkd arm, allocating it on first use.
func (d *NetDef) NetworkdSettings() *NetworkdSettings {
	if d.BackendSettings.Networkd == nil {
		d.BackendSettings.Networkd = &NetworkdSettings{}
	}
	return d.BackendSettings.Networkd
}

// AccessPoint returns the SSID's profile, allocating it on first use and
// recording insertion order.
func (d *NetDef) AccessPoint(ssid string) *AccessPoint {
	if d.AccessPoints == nil {
		d.AccessPoints = make(map[string]*AccessPoint)
	}
	ap, ok := d.AccessPoints[ssid]
	if !ok {
		ap = &AccessPoint{SSID: ssid}
		d.AccessPoints[ssid] = ap
		d.APOrder = append(d.APOrder, ssid)
	}
	return ap
}
