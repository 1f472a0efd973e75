package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftwatch-net/driftwatch/pkg/cli"
	"github.com/driftwatch-net/driftwatch/pkg/discovery"
)

var (
	discoverPingOnly bool
	discoverExtended bool
	discoverOS       bool
	discoverServices bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover <cidr>",
	Short: "Sweep a network range with nmap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts, err := discovery.Scan(cmd.Context(), args[0], discovery.Options{
			PingOnly:         discoverPingOnly,
			Extended:         discoverExtended,
			OSDetection:      discoverOS,
			ServiceDetection: discoverServices,
		})
		if err != nil {
			return err
		}

		table := cli.NewTable("IP", "MAC", "VENDOR", "HOSTNAME", "OPEN PORTS", "OS")
		for _, h := range hosts {
			table.Row(h.IPAddress, h.MAC, h.Vendor, h.Hostname,
				strings.Join(h.OpenPorts, ","), h.OSGuess)
		}
		table.Flush()
		cmd.Printf("\n%d hosts up\n", len(hosts))
		return nil
	},
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverPingOnly, "ping-only", false, "Host discovery only (-sn)")
	discoverCmd.Flags().BoolVar(&discoverExtended, "extended", false, "Scan the top 1000 ports")
	discoverCmd.Flags().BoolVar(&discoverOS, "os", false, "OS detection")
	discoverCmd.Flags().BoolVar(&discoverServices, "services", false, "Service version detection")
}
