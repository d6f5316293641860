package main

import (
	"fmt"
	"os"

	"github.com/koslang/kosvm/pkg/vm"
	"github.com/spf13/cobra"
)

var runVerbose bool

var runCmd = &cobra.Command{
	Use:   "run <module>",
	Short: "Execute a module's main function to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, err := loadDemo(args[0])
		if err != nil {
			return err
		}

		inst := vm.NewInstance(vm.DefaultLimits())
		ctx := vm.NewContext(inst)

		if runVerbose {
			fmt.Fprintf(os.Stderr, "running %q (max stack depth %d)\n", args[0], inst.Limits.MaxStackDepth)
		}

		result, ok := ctx.RunModule(mod)
		if !ok {
			fmt.Fprintf(os.Stderr, "uncaught exception: %s\n", ctx.Exception.String())
			os.Exit(1)
		}
		fmt.Println(result.String())
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "print run metadata to stderr")
}
