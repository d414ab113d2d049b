package types

import (
	"net/netip"
	"strings"
)

// HeartbeatRequest is the periodic status report from a door module.
// Only ModuleID is required; the rest is whatever the firmware knows.
type HeartbeatRequest struct {
	ModuleID        string `json:"module_id"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	UptimeSeconds   uint64 `json:"uptime_s,omitempty"`
	DoorClosed      *bool  `json:"door_closed,omitempty"`
	RSSIDbm         *int   `json:"rssi_dbm,omitempty"`
	// IP is the module's LAN address; the actuator posts unlocks there.
	IP            string `json:"ip,omitempty"`
	FreeHeapBytes uint32 `json:"free_heap_bytes,omitempty"`
	Sequence      uint32 `json:"seq,omitempty"`
}

// UnlockURL is the module's own unlock endpoint, or "" when the module
// did not report a usable address. Only IP literals, optionally with a
// port, are accepted; hostnames and anything carrying a path are not.
func (h HeartbeatRequest) UnlockURL() string {
	host, ok := ValidModuleAddr(h.IP)
	if !ok {
		return ""
	}
	return "http://" + host + "/unlock"
}

// ValidModuleAddr normalizes a reported module address.
func ValidModuleAddr(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.String(), true
	}
	if a, err := netip.ParseAddr(raw); err == nil && a.Zone() == "" {
		if a.Is6() {
			return "[" + a.String() + "]", true
		}
		return a.String(), true
	}
	return "", false
}

type HeartbeatResponse struct {
	OK         bool   `json:"ok"`
	Known      bool   `json:"known"`
	ModuleID   string `json:"module_id"`
	ServerTime string `json:"server_time"`
}
