package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/driftwatch-net/driftwatch/pkg/audit"
	"github.com/driftwatch-net/driftwatch/pkg/cli"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
)

var (
	inventoryPort       int
	inventoryCustomer   string
	inventoryActiveOnly bool
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Device inventory management",
}

var inventoryAddCmd = &cobra.Command{
	Use:   "add <customer> <device> <vendor> <host>",
	Short: "Add a device to the inventory",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		device := schema.InventoryDevice{
			CustomerID: args[0],
			DeviceID:   args[1],
			Vendor:     args[2],
			Host:       args[3],
			Port:       inventoryPort,
			Active:     true,
		}
		err = st.CreateDevice(device)

		event := audit.NewEvent(currentUser(), audit.OpOnboardDevice).WithTarget(args[0], args[1])
		if err != nil {
			event.WithError(err)
		}
		_ = audit.Log(event)
		if err != nil {
			return err
		}
		fmt.Printf("%s/%s added\n", args[0], args[1])
		return nil
	},
}

var inventoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inventory devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		devices, err := st.ListDevices(inventoryCustomer, inventoryActiveOnly)
		if err != nil {
			return err
		}

		table := cli.NewTable("CUSTOMER", "DEVICE", "VENDOR", "HOST", "PORT", "ACTIVE")
		for _, d := range devices {
			active := cli.Dim("no")
			if d.Active {
				active = cli.Green("yes")
			}
			table.Row(d.CustomerID, d.DeviceID, d.Vendor, d.Host, strconv.Itoa(d.Port), active)
		}
		table.Flush()
		return nil
	},
}

var inventoryToggleCmd = &cobra.Command{
	Use:   "toggle <customer> <device>",
	Short: "Toggle a device active/inactive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		active, err := st.ToggleActive(args[0], args[1])

		event := audit.NewEvent(currentUser(), audit.OpToggleActive).WithTarget(args[0], args[1])
		if err != nil {
			event.WithError(err)
		} else {
			event.WithDetail("active", active)
		}
		_ = audit.Log(event)
		if err != nil {
			return err
		}
		fmt.Printf("%s/%s active=%t\n", args[0], args[1], active)
		return nil
	},
}

func init() {
	inventoryAddCmd.Flags().IntVar(&inventoryPort, "port", 22, "SSH port")
	inventoryListCmd.Flags().StringVar(&inventoryCustomer, "customer", "", "Limit to one customer")
	inventoryListCmd.Flags().BoolVar(&inventoryActiveOnly, "active-only", false, "Only active devices")

	inventoryCmd.AddCommand(inventoryAddCmd)
	inventoryCmd.AddCommand(inventoryListCmd)
	inventoryCmd.AddCommand(inventoryToggleCmd)
}
