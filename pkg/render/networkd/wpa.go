package networkd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/util"
)

// deviceUnit returns the systemd .device unit guarding an interface.
func deviceUnit(name string) string {
	return "sys-subsystem-net-devices-" + util.SystemdEscape(name) + ".device"
}

// writeWPA emits the supplicant configuration (mode 0600, it carries
// credentials) and the unit starting wpa_supplicant bound to the
// device, enabled under systemd-networkd.service.wants.
func writeWPA(d *netdef.NetDef, rootdir string) error {
	confPath := filepath.Join(rootdir, "run/netplan", "wpa-"+d.ID+".conf")
	if err := util.AtomicWrite(confPath, wpaConfig(d), util.SecretMode); err != nil {
		return err
	}

	escaped := util.SystemdEscape(d.ID)
	unit := "netplan-wpa-" + escaped + ".service"
	driver := "nl80211,wext"
	if d.Type != netdef.TypeWifi {
		// wired 802.1X
		driver = "wired"
	}
	var sb strings.Builder
	sb.WriteString("[Unit]\n")
	fmt.Fprintf(&sb, "Description=WPA supplicant for netplan %s\n", d.ID)
	sb.WriteString("DefaultDependencies=no\n")
	fmt.Fprintf(&sb, "Requires=%s\n", deviceUnit(d.ID))
	fmt.Fprintf(&sb, "After=%s\n", deviceUnit(d.ID))
	sb.WriteString("Before=network.target\nWants=network.target\n\n")
	sb.WriteString("[Service]\n")
	sb.WriteString("Type=simple\n")
	fmt.Fprintf(&sb, "ExecStart=/sbin/wpa_supplicant -c /run/netplan/wpa-%s.conf -i%s -D%s\n", d.ID, d.ID, driver)

	unitPath := filepath.Join(rootdir, "run/systemd/system", unit)
	if err := util.AtomicWrite(unitPath, sb.String(), util.ConfigMode); err != nil {
		return err
	}
	return util.EnableUnit(rootdir, unit, "systemd-networkd.service.wants")
}

// wpaConfig renders the wpa_supplicant configuration for every access
// point of a wifi definition, or the single 802.1X block for wired
// auth.
func wpaConfig(d *netdef.NetDef) string {
	var sb strings.Builder
	sb.WriteString("ctrl_interface=/run/wpa_supplicant\n\n")
	if d.Type != netdef.TypeWifi {
		sb.WriteString("network={\n")
		writeAuth(&sb, d.Auth)
		sb.WriteString("}\n")
		return sb.String()
	}
	for _, ssid := range d.APOrder {
		ap := d.AccessPoints[ssid]
		sb.WriteString("network={\n")
		fmt.Fprintf(&sb, "  ssid=\"%s\"\n", ap.SSID)
		if ap.BSSID != "" {
			fmt.Fprintf(&sb, "  bssid=%s\n", ap.BSSID)
		}
		if ap.Hidden {
			sb.WriteString("  scan_ssid=1\n")
		}
		switch ap.Band {
		case netdef.WifiBand24:
			sb.WriteString("  freq_list=2412 2417 2422 2427 2432 2437 2442 2447 2452 2457 2462 2467 2472 2484\n")
		case netdef.WifiBand5:
			sb.WriteString("  freq_list=5180 5200 5220 5240 5260 5280 5300 5320 5500 5520 5540 5560 5580 5600 5620 5640 5660 5680 5700 5745 5765 5785 5805 5825\n")
		}
		switch ap.Mode {
		case netdef.WifiModeAdhoc:
			sb.WriteString("  mode=1\n")
		case netdef.WifiModeAP:
			sb.WriteString("  mode=2\n")
		}
		if ap.HasAuth {
			writeAuth(&sb, ap.Auth)
		} else {
			sb.WriteString("  key_mgmt=NONE\n")
		}
		sb.WriteString("}\n")
	}
	return sb.String()
}

func writeAuth(sb *strings.Builder, a netdef.AuthSettings) {
	switch a.KeyManagement {
	case netdef.AuthKeyManagementNone:
		sb.WriteString("  key_mgmt=NONE\n")
	case netdef.AuthKeyManagementPSK:
		sb.WriteString("  key_mgmt=WPA-PSK\n")
		if a.Password != "" {
			if len(a.Password) == 64 {
				// already a hashed PSK
				fmt.Fprintf(sb, "  psk=%s\n", a.Password)
			} else {
				fmt.Fprintf(sb, "  psk=\"%s\"\n", a.Password)
			}
		}
	case netdef.AuthKeyManagementEAP:
		sb.WriteString("  key_mgmt=WPA-EAP\n")
	case netdef.AuthKeyManagement8021X:
		sb.WriteString("  key_mgmt=IEEE8021X\n")
	}
	switch a.Method {
	case netdef.EAPTLS:
		sb.WriteString("  eap=TLS\n")
	case netdef.EAPPEAP:
		sb.WriteString("  eap=PEAP\n")
	case netdef.EAPTTLS:
		sb.WriteString("  eap=TTLS\n")
	}
	if a.Identity != "" {
		fmt.Fprintf(sb, "  identity=\"%s\"\n", a.Identity)
	}
	if a.AnonymousIdentity != "" {
		fmt.Fprintf(sb, "  anonymous_identity=\"%s\"\n", a.AnonymousIdentity)
	}
	if a.Password != "" && a.KeyManagement != netdef.AuthKeyManagementPSK {
		fmt.Fprintf(sb, "  password=\"%s\"\n", a.Password)
	}
	if a.CACertificate != "" {
		fmt.Fprintf(sb, "  ca_cert=\"%s\"\n", a.CACertificate)
	}
	if a.ClientCertificate != "" {
		fmt.Fprintf(sb, "  client_cert=\"%s\"\n", a.ClientCertificate)
	}
	if a.ClientKey != "" {
		fmt.Fprintf(sb, "  private_key=\"%s\"\n", a.ClientKey)
	}
	if a.ClientKeyPassword != "" {
		fmt.Fprintf(sb, "  private_key_passwd=\"%s\"\n", a.ClientKeyPassword)
	}
	if a.Phase2Auth != "" {
		fmt.Fprintf(sb, "  phase2=\"auth=%s\"\n", strings.ToUpper(a.Phase2Auth))
	}
}

// writeRegdom emits the oneshot unit applying the wireless regulatory
// domain, enabled under network.target.wants.
func writeRegdom(d *netdef.NetDef, rootdir string) error {
	var sb strings.Builder
	sb.WriteString("[Unit]\n")
	sb.WriteString("Description=netplan regulatory-domain configuration\n")
	sb.WriteString("After=network.target\n")
	sb.WriteString("ConditionPathExists=/usr/sbin/iw\n\n")
	sb.WriteString("[Service]\n")
	sb.WriteString("Type=oneshot\n")
	fmt.Fprintf(&sb, "ExecStart=/usr/sbin/iw reg set %s\n", d.RegulatoryDomain)

	unitPath := filepath.Join(rootdir, "run/systemd/system/netplan-regdom.service")
	if err := util.AtomicWrite(unitPath, sb.String(), util.ConfigMode); err != nil {
		return err
	}
	return util.EnableUnit(rootdir, "netplan-regdom.service", "network.target.wants")
}
