package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/driftwatch-net/driftwatch/pkg/cli"
	"github.com/driftwatch-net/driftwatch/pkg/store"
)

var (
	incidentsCustomer    string
	incidentsDevice      string
	incidentsSeverity    string
	incidentsMinSeverity string
	incidentsStatus      string
	incidentsSort        string
	incidentsPage        int
	incidentsPageSize    int
)

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Incident queries",
}

var incidentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List incidents with filters and pagination",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		page, err := st.ListIncidents(store.IncidentFilter{
			CustomerID:  incidentsCustomer,
			DeviceID:    incidentsDevice,
			Severity:    incidentsSeverity,
			MinSeverity: incidentsMinSeverity,
			Status:      incidentsStatus,
			Sort:        incidentsSort,
			Page:        incidentsPage,
			PageSize:    incidentsPageSize,
		})
		if err != nil {
			return err
		}

		table := cli.NewTable("ID", "TIMESTAMP", "CUSTOMER", "DEVICE", "SEVERITY", "CATEGORY", "STATUS")
		for _, inc := range page.Incidents {
			table.Row(strconv.FormatInt(inc.ID, 10),
				inc.Timestamp.Format("2006-01-02 15:04"),
				inc.CustomerID, inc.DeviceID, cli.Severity(inc.Severity),
				inc.Category, inc.Status)
		}
		table.Flush()
		cmd.Printf("\npage %d (%d total)\n", page.Page, page.Total)
		return nil
	},
}

func init() {
	incidentsListCmd.Flags().StringVar(&incidentsCustomer, "customer", "", "Filter by customer")
	incidentsListCmd.Flags().StringVar(&incidentsDevice, "device", "", "Filter by device")
	incidentsListCmd.Flags().StringVar(&incidentsSeverity, "severity", "", "Exact severity")
	incidentsListCmd.Flags().StringVar(&incidentsMinSeverity, "min-severity", "", "Minimum severity")
	incidentsListCmd.Flags().StringVar(&incidentsStatus, "status", "", "Status filter")
	incidentsListCmd.Flags().StringVar(&incidentsSort, "sort", "", "Sort order (newest, oldest, severity_desc, severity_asc)")
	incidentsListCmd.Flags().IntVar(&incidentsPage, "page", 1, "Page number")
	incidentsListCmd.Flags().IntVar(&incidentsPageSize, "page-size", 25, "Page size")

	incidentsCmd.AddCommand(incidentsListCmd)
}
