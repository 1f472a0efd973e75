package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftwatch-net/driftwatch/pkg/audit"
	"github.com/driftwatch-net/driftwatch/pkg/cli"
)

var auditCustomer string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Configuration audit operations",
}

var auditRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Audit every active device against its baseline",
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

		start := time.Now()
		result, err := newAuditor(st, vlt).AuditAll(cmd.Context(), auditCustomer)

		event := audit.NewEvent(currentUser(), audit.OpAuditRun).
			WithDetail("customer", auditCustomer).
			WithDuration(time.Since(start))
		if err != nil {
			event.WithError(err)
		} else {
			event.WithDetail("succeeded", result.SuccessCount).
				WithDetail("failed", result.FailureCount)
		}
		_ = audit.Log(event)
		if err != nil {
			return err
		}

		table := cli.NewTable("CUSTOMER", "DEVICE", "RESULT", "SEVERITY")
		for _, o := range result.Outcomes {
			switch {
			case o.Err != nil:
				table.Row(o.CustomerID, o.DeviceID, cli.Red("failed"), "-")
			case o.Baselined:
				table.Row(o.CustomerID, o.DeviceID, cli.Yellow("baselined"), "-")
			case o.HasDrift:
				table.Row(o.CustomerID, o.DeviceID, cli.Red("drift"), cli.Severity(o.Severity.String()))
			default:
				table.Row(o.CustomerID, o.DeviceID, cli.Green("compliant"), o.Severity.String())
			}
		}
		table.Flush()
		fmt.Printf("\n%d succeeded, %d failed\n", result.SuccessCount, result.FailureCount)
		return nil
	},
}

func init() {
	auditRunCmd.Flags().StringVar(&auditCustomer, "customer", "", "Limit the run to one customer")
	auditCmd.AddCommand(auditRunCmd)
}
