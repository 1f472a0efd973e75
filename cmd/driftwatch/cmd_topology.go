package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/driftwatch-net/driftwatch/pkg/audit"
	"github.com/driftwatch-net/driftwatch/pkg/cli"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
)

var topologyCustomer string

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Topology scanning and node management",
}

var topologyScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Collect ARP/MAC/LLDP tables and detect VLAN drift",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		vlt, err := openVault()
		if err != nil {
			return err
		}

		result, err := newScanner(st, vlt).Scan(cmd.Context(), topologyCustomer)

		event := audit.NewEvent(currentUser(), audit.OpTopologyScan).
			WithDetail("customer", topologyCustomer)
		if err != nil {
			event.WithError(err)
		} else {
			event.WithDetail("devices_scanned", result.DevicesScanned).
				WithDetail("nodes_discovered", result.NodesDiscovered)
		}
		_ = audit.Log(event)
		if err != nil {
			return err
		}

		fmt.Printf("%d devices scanned, %d nodes discovered, %d drift incidents\n",
			result.DevicesScanned, result.NodesDiscovered, result.Drifts)
		return nil
	},
}

var topologyAuthorizeCmd = &cobra.Command{
	Use:   "authorize <customer> <mac>",
	Short: "Mark a node as authorized",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mac, err := schema.NormalizeMAC(args[1])
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		err = st.AuthorizeNode(args[0], mac)
		event := audit.NewEvent(currentUser(), audit.OpAuthorizeNode).WithTarget(args[0], mac)
		if err != nil {
			event.WithError(err)
		}
		_ = audit.Log(event)
		if err != nil {
			return err
		}
		fmt.Printf("%s authorized for %s\n", mac, args[0])
		return nil
	},
}

var topologyNodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List discovered network nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		nodes, err := st.ListNodes(topologyCustomer)
		if err != nil {
			return err
		}

		table := cli.NewTable("CUSTOMER", "MAC", "IP", "VLAN", "PORT", "VENDOR", "AUTHORIZED")
		for _, n := range nodes {
			vlan := "-"
			if n.VLANID != nil {
				vlan = strconv.Itoa(*n.VLANID)
			}
			authorized := cli.Red("no")
			if n.Authorized {
				authorized = cli.Green("yes")
			}
			table.Row(n.CustomerID, n.MACAddress, n.IPAddress, vlan, n.SwitchPort, n.VendorOUI, authorized)
		}
		table.Flush()
		return nil
	},
}

func init() {
	topologyCmd.PersistentFlags().StringVar(&topologyCustomer, "customer", "", "Limit to one customer")
	topologyCmd.AddCommand(topologyScanCmd)
	topologyCmd.AddCommand(topologyAuthorizeCmd)
	topologyCmd.AddCommand(topologyNodesCmd)
}
