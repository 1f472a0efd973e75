package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/driftwatch-net/driftwatch/pkg/cli"
	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/version"
)

var (
	reportCustomer    string
	reportDevice      string
	reportMinSeverity string
	reportLimit       int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Audit report archive queries",
}

var reportHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived audit reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		minSeverity := schema.SeverityCompliant
		switch reportMinSeverity {
		case "LOW":
			minSeverity = schema.SeverityLow
		case "MEDIUM":
			minSeverity = schema.SeverityMedium
		case "HIGH":
			minSeverity = schema.SeverityHigh
		case "CRITICAL":
			minSeverity = schema.SeverityCritical
		}

		rows, err := st.AuditHistory(reportCustomer, reportDevice, minSeverity, reportLimit)
		if err != nil {
			return err
		}

		table := cli.NewTable("TIMESTAMP", "CUSTOMER", "DEVICE", "SEVERITY", "DRIFT", "SUMMARY")
		for _, r := range rows {
			drift := "no"
			if r.HasDrift {
				drift = cli.Red("yes")
			}
			table.Row(r.Timestamp.Format("2006-01-02 15:04"), r.CustomerID, r.DeviceID,
				cli.Severity(r.SeverityLabel), drift, r.Summary)
		}
		table.Flush()
		return nil
	},
}

var reportStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Audit report counts by severity",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.AuditStats(reportCustomer)
		if err != nil {
			return err
		}

		table := cli.NewTable("SEVERITY", "REPORTS")
		for _, label := range []string{"COMPLIANT", "LOW", "MEDIUM", "HIGH", "CRITICAL"} {
			if n, ok := stats[label]; ok {
				table.Row(label, strconv.Itoa(n))
			}
		}
		table.Flush()
		return nil
	},
}

func init() {
	reportCmd.PersistentFlags().StringVar(&reportCustomer, "customer", "", "Filter by customer")
	reportHistoryCmd.Flags().StringVar(&reportDevice, "device", "", "Filter by device")
	reportHistoryCmd.Flags().StringVar(&reportMinSeverity, "min-severity", "", "Minimum severity")
	reportHistoryCmd.Flags().IntVar(&reportLimit, "limit", 50, "Maximum rows")

	reportCmd.AddCommand(reportHistoryCmd)
	reportCmd.AddCommand(reportStatsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("driftwatch " + version.Info())
	},
}
