package nm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/netplan-go/netplan/pkg/emit"
	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/state"
	"github.com/netplan-go/netplan/pkg/util"
)

// keyfileLoadOptions keeps NM keyfiles intact under the ini reader:
// values routinely contain ';' list separators and '#' characters that
// must not be treated as comments.
var keyfileLoadOptions = ini.LoadOptions{
	IgnoreInlineComment:     true,
	KeyValueDelimiters:      "=",
	PreserveSurroundedQuote: true,
}

// typeByConnectionType maps a keyfile connection.type to the definition
// type it lifts into. Unknown types fall back to nm-device with full
// passthrough.
func typeByConnectionType(ctype string) netdef.Type {
	switch ctype {
	case "ethernet", "802-3-ethernet":
		return netdef.TypeEthernet
	case "wifi", "802-11-wireless":
		return netdef.TypeWifi
	case "gsm", "cdma":
		return netdef.TypeModem
	case "bridge":
		return netdef.TypeBridge
	case "bond":
		return netdef.TypeBond
	case "vlan":
		return netdef.TypeVLAN
	case "ip-tunnel", "wireguard":
		return netdef.TypeTunnel
	}
	return netdef.TypeNMDevice
}

// ImportKeyfile translates a NetworkManager keyfile into one YAML file
// under etc/netplan/90-NM-<uuid>.yaml. Recognized keys are lifted into
// the typed model; everything else is preserved verbatim in the
// definition's passthrough mapping.
func ImportKeyfile(keyfilePath, rootdir string) (string, error) {
	f, err := ini.LoadSources(keyfileLoadOptions, keyfilePath)
	if err != nil {
		return "", fmt.Errorf("%w: cannot read keyfile: %v", util.ErrFile, err)
	}
	conn := f.Section("connection")
	uuid := conn.Key("uuid").String()
	ctype := conn.Key("type").String()
	if uuid == "" {
		return "", fmt.Errorf("%w: keyfile has no connection.uuid", util.ErrSchema)
	}
	if ctype == "" {
		return "", fmt.Errorf("%w: keyfile has no connection.type", util.ErrSchema)
	}

	t := typeByConnectionType(ctype)
	id := conn.Key("interface-name").String()
	if id == "" {
		id = "NM-" + uuid
	}
	d := netdef.New(id, t)
	d.Backend = netdef.BackendNM
	d.SetUUID(uuid)

	var nmSettings *netdef.NMSettings
	if t == netdef.TypeWifi {
		ssid := f.Section("wifi").Key("ssid").String()
		if ssid == "" {
			ssid = f.Section("802-11-wireless").Key("ssid").String()
		}
		if ssid == "" {
			return "", fmt.Errorf("%w: wifi keyfile has no SSID", util.ErrSchema)
		}
		ap := d.AccessPoint(ssid)
		ap.Backend.NM = &netdef.NMSettings{}
		nmSettings = ap.Backend.NM
	} else {
		nmSettings = d.NMSettings()
	}
	nmSettings.UUID = uuid
	nmSettings.Name = conn.Key("id").String()

	lifted := map[string]bool{
		"connection.uuid":           true,
		"connection.id":             true,
		"connection.interface-name": d.ID != "NM-"+uuid,
	}
	if t != netdef.TypeNMDevice {
		lifted["connection.type"] = true
	}
	if t == netdef.TypeWifi {
		liftWifiKeys(f, d, lifted)
	}

	for _, section := range f.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		for _, key := range section.Keys() {
			full := section.Name() + "." + key.Name()
			if lifted[full] {
				continue
			}
			nmSettings.PassthroughSet(full, key.Value())
		}
	}

	st := state.New()
	outPath := filepath.Join(rootdir, "etc/netplan", "90-NM-"+uuid+".yaml")
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", fmt.Errorf("%w: %v", util.ErrFile, err)
	}
	var sb strings.Builder
	if err := emit.DumpNetDef(st, d, &sb); err != nil {
		return "", err
	}
	if err := util.AtomicWrite(outPath, sb.String(), util.SecretMode); err != nil {
		return "", err
	}
	util.WithFile(outPath).Debug("imported NetworkManager keyfile")
	return outPath, nil
}

func liftWifiKeys(f *ini.File, d *netdef.NetDef, lifted map[string]bool) {
	group := "wifi"
	if !f.Section("wifi").HasKey("ssid") && f.Section("802-11-wireless").HasKey("ssid") {
		group = "802-11-wireless"
	}
	sec := f.Section(group)
	ap := d.AccessPoints[d.APOrder[0]]
	lifted[group+".ssid"] = true
	if sec.HasKey("mode") {
		if mode, ok := netdef.WifiModeByName(sec.Key("mode").String()); ok {
			ap.Mode = mode
			lifted[group+".mode"] = true
		} else {
			ap.Mode = netdef.WifiModeOther
		}
	}
	if sec.HasKey("hidden") {
		ap.Hidden, _ = sec.Key("hidden").Bool()
		lifted[group+".hidden"] = true
	}
}

// IDFromNMFilepath recovers the netdef id from a generated keyfile
// path; for wifi profiles the caller passes the SSID, whose escaped
// suffix is stripped. It inverts the naming scheme used by Write.
func IDFromNMFilepath(path, ssid string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "netplan-") || !strings.HasSuffix(base, ".nmconnection") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(base, "netplan-"), ".nmconnection")
	if ssid != "" {
		suffix := "-" + util.URIEscape(ssid)
		if !strings.HasSuffix(id, suffix) {
			return "", false
		}
		id = strings.TrimSuffix(id, suffix)
	}
	return id, true
}

// DeleteConnection removes every generated profile belonging to the
// definition id, including per-SSID wifi profiles.
func DeleteConnection(id, rootdir string) error {
	globs := []string{
		fmt.Sprintf("run/NetworkManager/system-connections/netplan-%s.nmconnection", id),
		fmt.Sprintf("run/NetworkManager/system-connections/netplan-%s-*.nmconnection", id),
	}
	for _, g := range globs {
		if err := util.CleanupGlob(filepath.Join(rootdir, g)); err != nil {
			return err
		}
	}
	return nil
}
