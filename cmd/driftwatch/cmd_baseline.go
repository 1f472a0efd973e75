package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftwatch-net/driftwatch/pkg/audit"
	"github.com/driftwatch-net/driftwatch/pkg/auditor"
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Baseline management",
}

var baselineShowCmd = &cobra.Command{
	Use:   "show <customer> <device>",
	Short: "Print a device baseline",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		baselines := &auditor.BaselineStore{Dir: cfg.BaselineDir}
		config, err := baselines.Load(args[0], args[1])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var baselineResetCmd = &cobra.Command{
	Use:   "reset <customer> <device>",
	Short: "Discard a baseline so the next audit records a fresh one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		baselines := &auditor.BaselineStore{Dir: cfg.BaselineDir}
		err := baselines.Delete(args[0], args[1])

		event := audit.NewEvent(currentUser(), audit.OpBaselineReset).WithTarget(args[0], args[1])
		if err != nil {
			event.WithError(err)
		}
		_ = audit.Log(event)
		if err != nil {
			return err
		}
		fmt.Printf("baseline for %s/%s removed\n", args[0], args[1])
		return nil
	},
}

func init() {
	baselineCmd.AddCommand(baselineShowCmd)
	baselineCmd.AddCommand(baselineResetCmd)
}
