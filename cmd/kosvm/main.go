// Command kosvm runs, disassembles, and interactively debugs Kos bytecode
// modules against pkg/vm.
package main

import (
	"fmt"
	"os"

	"github.com/koslang/kosvm/pkg/version"
	"github.com/spf13/cobra"
)

var showVersion bool

var rootCmd = &cobra.Command{
	Use:   "kosvm",
	Short: "Kos VM — a register-based bytecode interpreter",
	Long: `kosvm - Kos VM command-line front end
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
Runs, disassembles, or interactively steps a Kos bytecode module.

Building Kos source is out of scope for this VM; the modules named on
these subcommands come from a small built-in demo registry assembled
with pkg/kasm rather than compiled from a .kos file.

EXAMPLES:
  kosvm run countdown              # execute the countdown demo module
  kosvm disasm closure             # list the closure demo's bytecode
  kosvm debug arithmetic           # single-step it interactively`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version.GetFullVersion())
			return nil
		}
		return cmd.Help()
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&showVersion, "version", "V", false, "print version information and exit")
	rootCmd.AddCommand(runCmd, disasmCmd, debugCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kosvm: %v\n", err)
		os.Exit(1)
	}
}
