package discovery

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/driftwatch-net/driftwatch/internal/testutil"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

const nmapFixture = `<?xml version="1.0"?>
<nmaprun>
  <host>
    <status state="up"/>
    <address addr="10.0.0.10" addrtype="ipv4"/>
    <address addr="AA:BB:CC:DD:EE:01" addrtype="mac" vendor="MikroTik"/>
    <hostnames><hostname name="core-sw1.lan"/></hostnames>
    <ports>
      <port protocol="tcp" portid="22"><state state="open"/><service name="ssh"/></port>
      <port protocol="tcp" portid="23"><state state="closed"/></port>
      <port protocol="tcp" portid="8291"><state state="open"/></port>
    </ports>
    <os><osmatch name="MikroTik RouterOS 7.X" accuracy="96"/></os>
  </host>
  <host>
    <status state="up"/>
    <address addr="10.0.0.2" addrtype="ipv4"/>
  </host>
  <host>
    <status state="down"/>
    <address addr="10.0.0.3" addrtype="ipv4"/>
  </host>
</nmaprun>`

func stubNmap(t *testing.T, fn func(ctx context.Context, args []string) ([]byte, error)) {
	t.Helper()
	orig := runNmap
	runNmap = fn
	t.Cleanup(func() { runNmap = orig })
}

func TestScanParsesHosts(t *testing.T) {
	var gotArgs []string
	stubNmap(t, func(_ context.Context, args []string) ([]byte, error) {
		gotArgs = args
		return []byte(nmapFixture), nil
	})

	hosts, err := Scan(testutil.Context(t), "10.0.0.0/24", Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("hosts = %+v, down host must be dropped", hosts)
	}

	// sorted numerically by IP, so .2 before .10
	if hosts[0].IPAddress != "10.0.0.2" || hosts[1].IPAddress != "10.0.0.10" {
		t.Errorf("order = %s, %s", hosts[0].IPAddress, hosts[1].IPAddress)
	}

	sw := hosts[1]
	if sw.MAC != "AA:BB:CC:DD:EE:01" || sw.Vendor != "MikroTik" {
		t.Errorf("host = %+v", sw)
	}
	if sw.Hostname != "core-sw1.lan" {
		t.Errorf("Hostname = %q", sw.Hostname)
	}
	want := []string{"22/tcp (ssh)", "8291/tcp"}
	if !reflect.DeepEqual(sw.OpenPorts, want) {
		t.Errorf("OpenPorts = %v, want %v", sw.OpenPorts, want)
	}
	if sw.OSGuess != "MikroTik RouterOS 7.X (96%)" {
		t.Errorf("OSGuess = %q", sw.OSGuess)
	}

	if gotArgs[len(gotArgs)-1] != "10.0.0.0/24" {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestScanProfiles(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"default fast", Options{}, "-F"},
		{"ping only", Options{PingOnly: true}, "-sn"},
		{"extended", Options{Extended: true}, "--top-ports"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotArgs []string
			stubNmap(t, func(_ context.Context, args []string) ([]byte, error) {
				gotArgs = args
				return []byte(`<nmaprun></nmaprun>`), nil
			})
			if _, err := Scan(testutil.Context(t), "10.0.0.0/28", tt.opts); err != nil {
				t.Fatalf("Scan: %v", err)
			}
			found := false
			for _, a := range gotArgs {
				if a == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("args = %v, want %s", gotArgs, tt.want)
			}
		})
	}
}

// ping-only sweeps never carry the intrusive flags
func TestScanPingOnlySuppressesDetection(t *testing.T) {
	var gotArgs []string
	stubNmap(t, func(_ context.Context, args []string) ([]byte, error) {
		gotArgs = args
		return []byte(`<nmaprun></nmaprun>`), nil
	})
	_, err := Scan(testutil.Context(t), "10.0.0.0/28",
		Options{PingOnly: true, OSDetection: true, ServiceDetection: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range gotArgs {
		if a == "-O" || a == "-sV" {
			t.Errorf("args = %v, detection flags must be dropped with -sn", gotArgs)
		}
	}
}

func TestScanRefusesWideRanges(t *testing.T) {
	stubNmap(t, func(context.Context, []string) ([]byte, error) {
		t.Fatal("nmap must not run for a refused range")
		return nil, nil
	})

	_, err := Scan(testutil.Context(t), "10.0.0.0/16", Options{})
	if !errors.Is(err, util.ErrDiscovery) {
		t.Errorf("err = %v", err)
	}

	_, err = Scan(testutil.Context(t), "not-a-network", Options{})
	if !errors.Is(err, util.ErrDiscovery) {
		t.Errorf("err = %v", err)
	}
}

func TestScanBadXML(t *testing.T) {
	stubNmap(t, func(context.Context, []string) ([]byte, error) {
		return []byte("segmentation fault"), nil
	})
	_, err := Scan(testutil.Context(t), "10.0.0.0/28", Options{})
	if !errors.Is(err, util.ErrDiscovery) {
		t.Errorf("err = %v", err)
	}
}
