package util

import "testing"

func TestIsValidIPv4(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"10.0.0.1", true},
		{"255.255.255.255", true},
		{"10.0.0.256", false},
		{"10.0.0", false},
		{"fe80::1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidIPv4(tt.in); got != tt.want {
			t.Errorf("IsValidIPv4(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsValidIPv4CIDR(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"10.0.0.0/24", true},
		{"192.168.1.1/32", true},
		{"10.0.0.0/33", false},
		{"10.0.0.0", false},
		{"2001:db8::/64", false},
	}
	for _, tt := range tests {
		if got := IsValidIPv4CIDR(tt.in); got != tt.want {
			t.Errorf("IsValidIPv4CIDR(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNetworkSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"10.0.0.0/24", 256, false},
		{"10.0.0.0/20", 4096, false},
		{"10.0.0.0/16", 65536, false},
		{"10.0.0.1/32", 1, false},
		{"not-a-cidr", 0, true},
	}
	for _, tt := range tests {
		got, err := NetworkSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NetworkSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NetworkSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCompareIPv4(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"10.0.0.1", "10.0.0.2", -1},
		{"10.0.0.2", "10.0.0.1", 1},
		{"10.0.0.1", "10.0.0.1", 0},
		{"10.0.0.9", "10.0.0.10", -1}, // numeric, not lexicographic
		{"192.168.1.1", "10.0.0.1", 1},
	}
	for _, tt := range tests {
		if got := CompareIPv4(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareIPv4(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
