// Package cmd contains the CLI commands for sentinelctl.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Used for flags
	verbose bool
	output  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sentinelctl",
	Short: "Sentinel - Web server log forensics",
	Long: `sentinelctl parses web-server access and error logs and runs attack
detection over them offline, without the API server.

Supported log formats:
  - combined  (IP, timestamp, request, status, bytes, referrer, user agent)
  - main      (IP, timestamp, request, status, bytes)
  - extended  (combined + host)
  - error     (nginx-style error log)

Detection covers injection signatures (SQLi, XSS, path traversal),
scanner user agents, sensitive-path probes, and statistical detectors
for flooding, brute force, and data exfiltration.

Examples:
  # Analyze a batch of access logs
  sentinelctl analyze /var/log/nginx/access.log*

  # Parse a log file and dump the entries
  sentinelctl parse /var/log/nginx/access.log

  # Validate a custom rules directory
  sentinelctl rules check /etc/sentinel/rules`,
	// Run when no subcommand is specified
	Run: func(cmd *cobra.Command, args []string) {
		// Show help by default
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json, plain)")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintError prints an error message and exits if fatal is true.
func PrintError(msg string, fatal bool) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	if fatal {
		os.Exit(1)
	}
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}
