// Package cmd provides command-line interface commands for Argus.
package cmd

import (
	"fmt"
	"os"

	"argus/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

var (
	outputYAML bool
	noColor    bool
)

// NewCheckConfigCmd builds the check-config command. It loads and validates
// the effective configuration and prints a summary, so a bad config file or
// env var is caught before a deploy rather than at first refresh.
func NewCheckConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Load, validate, and print the effective configuration",
		RunE:  runCheckConfig,
	}
	cmd.Flags().BoolVar(&outputYAML, "yaml", false, "dump the effective config as YAML")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	if noColor {
		color.NoColor = true
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		errorColor.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return err
	}

	if outputYAML {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	headerColor.Println("Argus configuration")
	fmt.Printf("  Wazuh indexer:    %s (index %s)\n", cfg.WazuhBaseURL(), cfg.Wazuh.Index)
	fmt.Printf("  API:              %s:%d\n", cfg.API.Host, cfg.API.Port)
	fmt.Printf("  Refresh interval: %s\n", cfg.Dashboards.RefreshInterval)
	fmt.Printf("  Realtime:         %t\n", cfg.Dashboards.EnableRealtime)
	fmt.Printf("  SQLite:           %s\n", cfg.SQLitePath)

	printIntegration("IRIS", cfg.IRIS.Enabled, cfg.IRIS.BaseURL)
	printIntegration("MISP", cfg.MISP.Enabled, cfg.MISP.BaseURL)
	printIntegration("Redis", cfg.Redis.Enabled, cfg.Redis.Addr)

	successColor.Println("Configuration OK")
	return nil
}

func printIntegration(name string, enabled bool, target string) {
	if enabled {
		fmt.Printf("  %-17s %s\n", name+":", target)
	} else {
		warningColor.Printf("  %-17s disabled\n", name+":")
	}
}
