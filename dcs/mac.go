package dcs

import (
	"fmt"
	"strconv"
	"strings"
)

// The server identifies data collectors (IDCs) by their MAC address
// as an unsigned integer; humans prefer colon-separated hex.

// FormatMAC converts an integer MAC address to colon-separated hex,
// e.g. 0x0013A20040B5 -> "00:13:A2:00:40:B5". Values beyond 48 bits
// are rejected.
func FormatMAC(mac uint64) (string, error) {
	if mac > 0xFFFFFFFFFFFF {
		return "", fmt.Errorf("dcs: MAC address out of range: %d", mac)
	}
	s := fmt.Sprintf("%012X", mac)
	parts := make([]string, 0, 6)
	for i := 0; i < len(s); i += 2 {
		parts = append(parts, s[i:i+2])
	}
	return strings.Join(parts, ":"), nil
}

// ParseMAC converts a colon- or dash-separated hex MAC address to its
// integer form.
func ParseMAC(s string) (uint64, error) {
	clean := strings.NewReplacer(":", "", "-", "").Replace(s)
	if len(clean) != 12 {
		return 0, fmt.Errorf("dcs: MAC address of unexpected size: %q", s)
	}
	v, err := strconv.ParseUint(clean, 16, 48)
	if err != nil {
		return 0, fmt.Errorf("dcs: malformed MAC address %q: %v", s, err)
	}
	return v, nil
}
