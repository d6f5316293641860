package main

import (
	"fmt"
	"os"

	"github.com/koslang/kosvm/pkg/debugger"
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/value"
	"github.com/koslang/kosvm/pkg/vm"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var debugHistoryFile string
var debugBreakpoints []uint

var debugCmd = &cobra.Command{
	Use:   "debug <module>",
	Short: "Step through a module's main function interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, err := loadDemo(args[0])
		if err != nil {
			return err
		}
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "kosvm debug: stdin is not a terminal; commands must be newline-terminated")
		}

		inst := vm.NewInstance(vm.DefaultLimits())
		ctx := vm.NewContext(inst)

		mainDesc, ok := mod.Constants[mod.MainIdx].Ref().(*object.Function)
		if !ok {
			return fmt.Errorf("module %q has no main function constant", args[0])
		}
		fn := object.NewFunction(mainDesc.FunctionCore)
		fv, ok := vm.AllocMovable(ctx, value.TypeFunction, 96, fn)
		if !ok {
			return fmt.Errorf("allocating main function failed")
		}
		if !ctx.StackPush(value.NewHeapRef(fv), value.Bad, object.NoReg, object.NoReg) {
			return fmt.Errorf("pushing the initial frame failed: %s", ctx.Exception.String())
		}

		dbg := debugger.New(ctx, &debugger.Config{
			Input:       os.Stdin,
			Output:      os.Stdout,
			HistoryFile: debugHistoryFile,
		})
		for _, off := range debugBreakpoints {
			dbg.AddBreakpoint(uint32(off))
		}
		return dbg.Run()
	},
}

func init() {
	debugCmd.Flags().StringVar(&debugHistoryFile, "history-file", "", "persist debugger command history to this file")
	debugCmd.Flags().UintSliceVarP(&debugBreakpoints, "break", "b", nil, "seed a breakpoint at this bytecode offset (repeatable)")
}
