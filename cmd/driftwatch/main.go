// Driftwatch - Network Configuration Drift Auditor
//
// A multi-tenant auditor for network device fleets:
//   - Snapshots device configurations over SSH (SNMP fallback)
//   - Diffs them against per-device baselines and classifies the drift
//   - Watches L2/L3 topology for VLAN drift and unauthorized nodes
//   - Stores incidents in SQLite and serves a dashboard API
//
// Typical flow:
//
//	driftwatch vault set acme core-sw1          # store credentials
//	driftwatch inventory add acme core-sw1 mikrotik 10.0.0.1
//	driftwatch audit run                        # first run records the baseline
//	driftwatch audit run                        # later runs report drift
//	driftwatch serve                            # dashboard + API
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/driftwatch-net/driftwatch/pkg/audit"
	"github.com/driftwatch-net/driftwatch/pkg/auditor"
	"github.com/driftwatch-net/driftwatch/pkg/settings"
	"github.com/driftwatch-net/driftwatch/pkg/store"
	"github.com/driftwatch-net/driftwatch/pkg/topology"
	"github.com/driftwatch-net/driftwatch/pkg/util"
	"github.com/driftwatch-net/driftwatch/pkg/vault"
)

var (
	// Global option flags
	configPath string
	logLevel   string
	jsonLog    bool
	verbose    bool

	// Global state, populated in PersistentPreRunE
	cfg *settings.Settings
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "driftwatch",
	Short:             "Network configuration drift auditor",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Driftwatch audits network device fleets for configuration drift
and topology anomalies.

Credentials live in an encrypted vault, baselines on disk, incidents
in SQLite. The serve command exposes the dashboard API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = settings.LoadFrom(configPath)
		} else {
			cfg, err = settings.Load()
		}
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		if verbose {
			level = "debug"
		}
		if err := util.SetLogLevel(level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		if jsonLog || cfg.LogJSON {
			util.SetJSONFormat()
		}

		trail, err := audit.NewFileLogger(filepath.Join(cfg.DataDir, "audit.log"), audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024,
			MaxBackups: 10,
		})
		if err != nil {
			util.Warnf("could not initialize the audit trail: %v", err)
		} else {
			audit.SetDefaultLogger(trail)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "JSON log output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(incidentsCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

// openStore opens the SQLite store at the configured path.
func openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return nil, err
	}
	return store.Open(cfg.DatabasePath)
}

// openVault opens the credential vault; the master key comes from the
// environment.
func openVault() (*vault.Vault, error) {
	return vault.Open(cfg.VaultPath)
}

func newAuditor(st *store.Store, vlt *vault.Vault) *auditor.Auditor {
	return &auditor.Auditor{
		Store:     st,
		Vault:     vlt,
		Baselines: &auditor.BaselineStore{Dir: cfg.BaselineDir},
		Archiver:  &auditor.Archiver{Dir: cfg.ReportDir, Store: st},
		Workers:   cfg.Workers,
	}
}

func newScanner(st *store.Store, vlt *vault.Vault) *topology.Scanner {
	oui := topology.LoadOUITable(cfg.OUIPath)
	return &topology.Scanner{
		Store:   st,
		Vault:   vlt,
		OUI:     oui,
		Workers: cfg.Workers,
	}
}

// currentUser names the actor for audit trail entries.
func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
