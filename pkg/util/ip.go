package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseIPWithMask parses an IP address with CIDR notation
// Returns the IP, mask length, and any error
func ParseIPWithMask(cidr string) (net.IP, int, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	ones, _ := ipNet.Mask.Size()
	return ip, ones, nil
}

// IsValidIPv4 checks if a string is a valid IPv4 address
func IsValidIPv4(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.To4() != nil
}

// IsValidIPv4CIDR checks if a string is a valid IPv4 CIDR notation
func IsValidIPv4CIDR(cidr string) bool {
	_, _, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	parts := strings.Split(cidr, "/")
	ip := net.ParseIP(parts[0])
	return ip != nil && ip.To4() != nil
}

// SplitIPMask splits a CIDR notation into IP and mask length
// Returns the IP (without mask) and mask length
func SplitIPMask(cidr string) (string, int) {
	parts := strings.Split(cidr, "/")
	if len(parts) != 2 {
		return cidr, 0 // Return as-is if no mask
	}
	maskLen, err := strconv.Atoi(parts[1])
	if err != nil {
		return parts[0], 0
	}
	return parts[0], maskLen
}

// NetworkSize returns the number of addresses covered by an IPv4 CIDR.
func NetworkSize(cidr string) (int, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return 0, fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	if ipNet.IP.To4() == nil {
		return 0, fmt.Errorf("not an IPv4 network: %s", cidr)
	}
	ones, bits := ipNet.Mask.Size()
	return 1 << (bits - ones), nil
}

// CompareIPv4 orders two dotted-quad addresses numerically.
// Unparseable addresses sort after valid ones.
func CompareIPv4(a, b string) int {
	ipA := net.ParseIP(a)
	ipB := net.ParseIP(b)
	if ipA != nil {
		ipA = ipA.To4()
	}
	if ipB != nil {
		ipB = ipB.To4()
	}
	switch {
	case ipA == nil && ipB == nil:
		return strings.Compare(a, b)
	case ipA == nil:
		return 1
	case ipB == nil:
		return -1
	}
	for i := 0; i < 4; i++ {
		if ipA[i] != ipB[i] {
			if ipA[i] < ipB[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
