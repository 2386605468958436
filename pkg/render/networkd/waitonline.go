package networkd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/state"
	"github.com/netplan-go/netplan/pkg/util"
)

const waitOnlineBin = "/lib/systemd/systemd-networkd-wait-online"

// WriteWaitOnline synthesizes the systemd-networkd-wait-online override.
// Non-optional networkd-managed interfaces are split into a link-local
// group (waited for at degraded, members never qualify) and a routable
// group (any static address, DHCP or accepted RAs); with no qualifying
// interface the override still clears ExecStart, disabling the wait.
func WriteWaitOnline(st *state.State, rootdir string) error {
	var llArgs, routableArgs []string
	for _, d := range st.NetDefs() {
		if d.Backend != netdef.BackendNetworkd || d.Optional {
			continue
		}
		name := matchName(d)
		if name == "" {
			continue
		}
		routable := len(d.Addresses) > 0 || d.DHCP4 || d.DHCP6 || d.AcceptRA == netdef.RAEnabled
		degraded := !d.LinkLocal.Empty() && !d.IsMember()
		if degraded {
			llArgs = append(llArgs, "-i", name+":degraded")
		} else if !routable {
			llArgs = append(llArgs, "-i", name+":carrier")
		}
		if routable {
			routableArgs = append(routableArgs, "-i", name)
		}
	}

	var sb strings.Builder
	sb.WriteString("[Service]\nExecStart=\n")
	if len(llArgs) > 0 {
		fmt.Fprintf(&sb, "ExecStart=%s %s\n", waitOnlineBin, strings.Join(llArgs, " "))
	}
	if len(routableArgs) > 0 {
		fmt.Fprintf(&sb, "ExecStart=%s --any --dns -o routable %s\n",
			waitOnlineBin, strings.Join(routableArgs, " "))
	}

	path := filepath.Join(rootdir,
		"run/systemd/system/systemd-networkd-wait-online.service.d/10-netplan.conf")
	return util.AtomicWrite(path, sb.String(), util.ConfigMode)
}
