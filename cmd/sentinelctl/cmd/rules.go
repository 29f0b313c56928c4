package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forenx/sentinel/internal/rules"
)

// rulesCmd represents the rules command group
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Custom detection rule commands",
}

// rulesCheckCmd validates a rules directory
var rulesCheckCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Validate custom detection rules",
	Long: `Load and validate every rule file in a directory without running
anything. Expressions are compiled against the entry field set, so typos
in field names and non-boolean expressions are reported here instead of
at ingest time.

Example:
  sentinelctl rules check /etc/sentinel/rules`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := rules.LoadDir(args[0])
		if err != nil {
			return err
		}

		if len(loaded) == 0 {
			fmt.Println("No rules found.")
			return nil
		}

		enabled := 0
		for _, r := range loaded {
			status := "enabled"
			if !r.IsEnabled() {
				status = "disabled"
			} else {
				enabled++
			}
			fmt.Printf("  %-30s %-20s %s\n", r.ID, r.Attack, status)
		}
		fmt.Printf("\n%d rule(s) valid, %d enabled.\n", len(loaded), enabled)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesCheckCmd)
}
