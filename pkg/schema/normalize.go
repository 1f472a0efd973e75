package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// NormalizeMAC canonicalizes a hardware address to upper-hex
// XX:XX:XX:XX:XX:XX. Accepts colon, dash, dot or bare separator forms.
func NormalizeMAC(mac string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', '.', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(mac))

	if len(cleaned) != 12 {
		return "", util.NewSchemaError("mac", "mac_address",
			fmt.Sprintf("expected 12 hex digits, got %q", mac))
	}
	for _, r := range cleaned {
		if !isHex(r) {
			return "", util.NewSchemaError("mac", "mac_address",
				fmt.Sprintf("non-hex digit in %q", mac))
		}
	}

	cleaned = strings.ToUpper(cleaned)
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(cleaned[i : i+2])
	}
	return b.String(), nil
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// OUIPrefix returns the first six hex digits of a normalized MAC,
// the key into the vendor lookup table.
func OUIPrefix(mac string) string {
	cleaned := strings.ReplaceAll(mac, ":", "")
	if len(cleaned) < 6 {
		return ""
	}
	return strings.ToUpper(cleaned[:6])
}

// NormalizeCIDR validates an IPv4 address with optional prefix.
// The host address is preserved, never reduced to the network address.
// A missing prefix defaults to /32.
func NormalizeCIDR(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", util.NewSchemaError("cidr", "ip_address", "empty address")
	}

	host := addr
	prefix := 32
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		host = addr[:i]
		p, err := strconv.Atoi(addr[i+1:])
		if err != nil || p < 0 || p > 32 {
			return "", util.NewSchemaError("cidr", "ip_address",
				fmt.Sprintf("invalid prefix length in %q", addr))
		}
		prefix = p
	}

	if !util.IsValidIPv4(host) {
		return "", util.NewSchemaError("cidr", "ip_address",
			fmt.Sprintf("not an IPv4 address: %q", host))
	}
	return fmt.Sprintf("%s/%d", host, prefix), nil
}
