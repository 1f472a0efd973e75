// Package discovery shells out to nmap to sweep a network range and
// parse the hosts it finds.
package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// MaxAddresses is the widest sweep accepted: a /20. Wider ranges take
// too long and hammer the network.
const MaxAddresses = 4096

// DefaultTimeout bounds one nmap run.
const DefaultTimeout = 120 * time.Second

// Options select the scan profile.
type Options struct {
	// PingOnly restricts the sweep to host discovery (-sn).
	PingOnly bool
	// Extended scans the top 1000 ports instead of the fast set.
	Extended bool
	// OSDetection adds -O.
	OSDetection bool
	// ServiceDetection adds -sV.
	ServiceDetection bool
	// Timeout for the whole run; zero means DefaultTimeout.
	Timeout time.Duration
}

// Host is one discovered endpoint.
type Host struct {
	IPAddress string   `json:"ip_address"`
	MAC       string   `json:"mac_address,omitempty"`
	Vendor    string   `json:"vendor,omitempty"`
	Hostname  string   `json:"hostname,omitempty"`
	OpenPorts []string `json:"open_ports,omitempty"`
	OSGuess   string   `json:"os_guess,omitempty"`
}

// nmap -oX output subset
type nmapRun struct {
	Hosts []nmapHost `xml:"host"`
}

type nmapHost struct {
	Status    nmapStatus     `xml:"status"`
	Addresses []nmapAddress  `xml:"address"`
	Hostnames []nmapHostname `xml:"hostnames>hostname"`
	Ports     []nmapPort     `xml:"ports>port"`
	OSMatches []nmapOSMatch  `xml:"os>osmatch"`
}

type nmapStatus struct {
	State string `xml:"state,attr"`
}

type nmapAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
	Vendor   string `xml:"vendor,attr"`
}

type nmapHostname struct {
	Name string `xml:"name,attr"`
}

type nmapPort struct {
	Protocol string      `xml:"protocol,attr"`
	PortID   int         `xml:"portid,attr"`
	State    nmapStatus  `xml:"state"`
	Service  nmapService `xml:"service"`
}

type nmapService struct {
	Name string `xml:"name,attr"`
}

type nmapOSMatch struct {
	Name     string `xml:"name,attr"`
	Accuracy string `xml:"accuracy,attr"`
}

// runner is swappable for tests.
var runNmap = func(ctx context.Context, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, "nmap", args...).Output()
}

// Scan sweeps one IPv4 network. The range is validated before any
// command runs; anything wider than MaxAddresses is refused.
func Scan(ctx context.Context, network string, opts Options) ([]Host, error) {
	if !util.IsValidIPv4CIDR(network) {
		return nil, fmt.Errorf("%w: %q is not an IPv4 CIDR", util.ErrDiscovery, network)
	}
	size, err := util.NetworkSize(network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrDiscovery, err)
	}
	if size > MaxAddresses {
		return nil, fmt.Errorf("%w: %s covers %d addresses, maximum is %d (/20)",
			util.ErrDiscovery, network, size, MaxAddresses)
	}

	args := buildArgs(network, opts)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	util.Infof("discovery scan of %s (%d addresses)", network, size)
	output, err := runNmap(ctx, args)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: nmap timed out after %s", util.ErrDiscovery, timeout)
		}
		return nil, fmt.Errorf("%w: nmap failed: %v", util.ErrDiscovery, err)
	}

	hosts, err := parseXML(output)
	if err != nil {
		return nil, err
	}
	util.Infof("discovery scan of %s: %d hosts up", network, len(hosts))
	return hosts, nil
}

func buildArgs(network string, opts Options) []string {
	args := []string{"-n"}
	switch {
	case opts.PingOnly:
		args = append(args, "-sn")
	case opts.Extended:
		args = append(args, "--top-ports", "1000")
	default:
		args = append(args, "-F")
	}
	if opts.OSDetection && !opts.PingOnly {
		args = append(args, "-O")
	}
	if opts.ServiceDetection && !opts.PingOnly {
		args = append(args, "-sV")
	}
	return append(args, "-oX", "-", network)
}

func parseXML(output []byte) ([]Host, error) {
	var run nmapRun
	if err := xml.Unmarshal(output, &run); err != nil {
		return nil, fmt.Errorf("%w: unparseable nmap output: %v", util.ErrDiscovery, err)
	}

	var hosts []Host
	for _, h := range run.Hosts {
		if h.Status.State != "up" {
			continue
		}
		host := Host{}
		for _, addr := range h.Addresses {
			switch addr.AddrType {
			case "ipv4":
				host.IPAddress = addr.Addr
			case "mac":
				host.MAC = addr.Addr
				host.Vendor = addr.Vendor
			}
		}
		if host.IPAddress == "" {
			continue
		}
		if len(h.Hostnames) > 0 {
			host.Hostname = h.Hostnames[0].Name
		}
		for _, p := range h.Ports {
			if p.State.State != "open" {
				continue
			}
			entry := fmt.Sprintf("%d/%s", p.PortID, p.Protocol)
			if p.Service.Name != "" {
				entry += fmt.Sprintf(" (%s)", p.Service.Name)
			}
			host.OpenPorts = append(host.OpenPorts, entry)
		}
		if len(h.OSMatches) > 0 {
			m := h.OSMatches[0]
			host.OSGuess = fmt.Sprintf("%s (%s%%)", m.Name, m.Accuracy)
		}
		hosts = append(hosts, host)
	}

	sort.Slice(hosts, func(i, j int) bool {
		return util.CompareIPv4(hosts[i].IPAddress, hosts[j].IPAddress) < 0
	})
	return hosts, nil
}
