package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/driftwatch-net/driftwatch/pkg/audit"
	"github.com/driftwatch-net/driftwatch/pkg/cli"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/vault"
)

var (
	vaultHost      string
	vaultUsername  string
	vaultPort      int
	vaultCommunity string
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Encrypted credential management",
}

var vaultKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new master key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := vault.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		fmt.Fprintln(os.Stderr, "export DRIFTWATCH_MASTER_KEY with this value; losing it loses the vault")
		return nil
	},
}

var vaultSetCmd = &cobra.Command{
	Use:   "set <customer> <device>",
	Short: "Store device credentials",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vlt, err := openVault()
		if err != nil {
			return err
		}

		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		cred := schema.Credential{
			Host:          vaultHost,
			Username:      vaultUsername,
			Password:      password,
			Port:          vaultPort,
			SNMPCommunity: vaultCommunity,
		}
		err = vlt.Save(args[0], args[1], cred)

		event := audit.NewEvent(currentUser(), audit.OpVaultWrite).WithTarget(args[0], args[1])
		if err != nil {
			event.WithError(err)
		}
		_ = audit.Log(event)
		if err != nil {
			return err
		}
		fmt.Printf("credentials for %s/%s stored\n", args[0], args[1])
		return nil
	},
}

var vaultGetCmd = &cobra.Command{
	Use:   "get <customer> <device>",
	Short: "Show stored credentials (password masked)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vlt, err := openVault()
		if err != nil {
			return err
		}
		cred, err := vlt.Get(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("host:     %s\n", cred.Host)
		fmt.Printf("username: %s\n", cred.Username)
		fmt.Printf("password: %s\n", strings.Repeat("*", 8))
		fmt.Printf("port:     %d\n", cred.Port)
		if cred.SNMPCommunity != "" {
			fmt.Printf("snmp:     %s\n", strings.Repeat("*", 8))
		}
		return nil
	},
}

var vaultListCmd = &cobra.Command{
	Use:   "list [customer]",
	Short: "List customers, or a customer's devices",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vlt, err := openVault()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			customers, err := vlt.ListCustomers()
			if err != nil {
				return err
			}
			for _, c := range customers {
				fmt.Println(c)
			}
			return nil
		}

		devices, err := vlt.ListDevices(args[0])
		if err != nil {
			return err
		}
		table := cli.NewTable("DEVICE")
		for _, d := range devices {
			table.Row(d)
		}
		table.Flush()
		return nil
	},
}

var vaultDeleteCmd = &cobra.Command{
	Use:   "delete <customer> <device>",
	Short: "Remove stored credentials",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vlt, err := openVault()
		if err != nil {
			return err
		}
		err = vlt.Delete(args[0], args[1])

		event := audit.NewEvent(currentUser(), audit.OpVaultDelete).WithTarget(args[0], args[1])
		if err != nil {
			event.WithError(err)
		}
		_ = audit.Log(event)
		if err != nil {
			return err
		}
		fmt.Printf("credentials for %s/%s removed\n", args[0], args[1])
		return nil
	},
}

// promptPassword reads a line without echo when stdin is a terminal,
// falling back to DRIFTWATCH_PASSWORD for scripted use.
func promptPassword(prompt string) (string, error) {
	if v := os.Getenv("DRIFTWATCH_PASSWORD"); v != "" {
		return v, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func init() {
	vaultSetCmd.Flags().StringVar(&vaultHost, "host", "", "Device address")
	vaultSetCmd.Flags().StringVar(&vaultUsername, "username", "", "Login username")
	vaultSetCmd.Flags().IntVar(&vaultPort, "port", 22, "SSH port")
	vaultSetCmd.Flags().StringVar(&vaultCommunity, "community", "", "SNMP community (optional)")

	vaultCmd.AddCommand(vaultKeygenCmd)
	vaultCmd.AddCommand(vaultSetCmd)
	vaultCmd.AddCommand(vaultGetCmd)
	vaultCmd.AddCommand(vaultListCmd)
	vaultCmd.AddCommand(vaultDeleteCmd)
}
