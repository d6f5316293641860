package main

import (
	"fmt"
	"os"

	"github.com/koslang/kosvm/pkg/bytecode"
	"github.com/koslang/kosvm/pkg/object"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var disasmFilter opFilter

// opFilter is a repeatable --op flag restricting disassembly to the named
// mnemonics: a pflag.Value implementation rather than the built-in
// StringSlice type, so repeated --op args accumulate instead of each
// resetting the list (pflag.Value.Set is called once per occurrence).
type opFilter []string

var _ pflag.Value = (*opFilter)(nil)

func (f *opFilter) String() string { return fmt.Sprint([]string(*f)) }
func (f *opFilter) Set(s string) error {
	*f = append(*f, s)
	return nil
}
func (f *opFilter) Type() string { return "op" }

func (f opFilter) allows(op bytecode.Op) bool {
	if len(f) == 0 {
		return true
	}
	for _, name := range f {
		if name == op.String() {
			return true
		}
	}
	return false
}

var disasmCmd = &cobra.Command{
	Use:   "disasm <module>",
	Short: "List the bytecode of a module's main function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, err := loadDemo(args[0])
		if err != nil {
			return err
		}
		mainFn, ok := mod.Constants[mod.MainIdx].Ref().(*object.Function)
		if !ok {
			return fmt.Errorf("module %q has no main function constant", args[0])
		}

		width := 80
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
				width = w
			}
		}

		code := mainFn.Bytecode
		offs := uint32(0)
		for {
			ins, next, ok := bytecode.Decode(code, offs)
			if !ok {
				break
			}
			if disasmFilter.allows(ins.Op) {
				line := fmt.Sprintf("%5d: %-14s a=%d b=%d c=%d d=%d imm=%d",
					offs, ins.Op.String(), ins.A, ins.B, ins.C, ins.D, ins.Imm)
				if len(line) > width {
					line = line[:width]
				}
				fmt.Println(line)
			}
			offs = next
		}
		return nil
	},
}

func init() {
	disasmCmd.Flags().VarP(&disasmFilter, "op", "o", "only list instructions matching this mnemonic (repeatable)")
}
