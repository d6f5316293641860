// Package debugger provides interactive, in-process debugging of a
// running vm.Context: breakpoints by bytecode offset, single-instruction
// stepping, and register/stack/backtrace inspection. There is no wire
// protocol here (spec.md's Non-goals exclude one) -- the debugger drives
// the same Context a program runs in, the way an embedded REPL would.
package debugger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/koslang/kosvm/pkg/bytecode"
	"github.com/koslang/kosvm/pkg/object"
	"github.com/koslang/kosvm/pkg/readline"
	"github.com/koslang/kosvm/pkg/vm"
)

// Debugger drives ctx one Step at a time, stopping at breakpoints
// (bytecode offsets within the currently running function) or when the
// user asks to step.
type Debugger struct {
	ctx *vm.Context

	breakpoints map[uint32]bool
	history     []HistoryEntry
	maxHistory  int

	input  *readline.Reader
	output io.Writer

	stepCount uint64
}

// HistoryEntry records one executed instruction.
type HistoryEntry struct {
	Offset uint32
	Instr  string
}

// Config holds debugger configuration.
type Config struct {
	MaxHistory  int
	Input       io.Reader
	Output      io.Writer
	HistoryFile string // persisted readline command history, empty disables it
}

// New creates a debugger attached to ctx, which must already have a
// frame pushed onto its stack (e.g. via StackPush) before Run is called.
func New(ctx *vm.Context, config *Config) *Debugger {
	if config == nil {
		config = &Config{}
	}
	if config.MaxHistory == 0 {
		config.MaxHistory = 200
	}
	if config.Input == nil {
		config.Input = os.Stdin
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	return &Debugger{
		ctx:         ctx,
		breakpoints: make(map[uint32]bool),
		maxHistory:  config.MaxHistory,
		input: readline.NewReader(&readline.Config{
			Prompt:      "dbg> ",
			HistoryFile: config.HistoryFile,
			Input:       config.Input,
			Output:      config.Output,
		}),
		output: config.Output,
	}
}

// Run starts the interactive command loop.
func (d *Debugger) Run() error {
	d.printBanner()
	d.displayTop()

	for {
		if d.ctx.Stack == nil || d.ctx.Stack.Size() == 0 {
			fmt.Fprintln(d.output, "program finished")
			return nil
		}

		line, err := d.input.ReadLine()
		if err != nil {
			return nil
		}
		cmd := strings.TrimSpace(line)
		if cmd == "" {
			cmd = "s"
		}
		if err := d.handleCommand(cmd); err != nil {
			fmt.Fprintf(d.output, "error: %v\n", err)
		}
	}
}

func (d *Debugger) handleCommand(cmd string) error {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "h", "help", "?":
		d.printHelp()

	case "s", "step":
		d.step()
		d.displayTop()

	case "c", "continue", "run":
		d.continueToBreakpoint()
		d.displayTop()

	case "b", "break", "bp":
		if len(parts) < 2 {
			d.listBreakpoints()
		} else {
			off, err := parseOffset(parts[1])
			if err != nil {
				return err
			}
			d.breakpoints[off] = true
			fmt.Fprintf(d.output, "breakpoint set at offset %d\n", off)
		}

	case "d", "delete":
		if len(parts) < 2 {
			fmt.Fprintln(d.output, "usage: delete <offset>")
		} else {
			off, err := parseOffset(parts[1])
			if err != nil {
				return err
			}
			delete(d.breakpoints, off)
			fmt.Fprintf(d.output, "breakpoint cleared at offset %d\n", off)
		}

	case "r", "regs", "registers":
		d.displayRegisters()

	case "bt", "backtrace", "where":
		d.displayBacktrace()

	case "dis", "disasm":
		d.displayDisassembly(8)

	case "history", "hist":
		d.displayHistory()

	case "stats":
		fmt.Fprintf(d.output, "instructions executed: %d\n", d.stepCount)

	case "q", "quit", "exit":
		fmt.Fprintln(d.output, "goodbye")
		os.Exit(0)

	default:
		fmt.Fprintf(d.output, "unknown command: %s (type 'help')\n", parts[0])
	}

	return nil
}

// step executes exactly one bytecode instruction via ctx.Step, recording
// it in history.
func (d *Debugger) step() {
	if d.ctx.Stack == nil || d.ctx.Stack.Size() == 0 {
		return
	}
	seg := d.ctx.Stack
	frame := seg.Top()
	var before uint32
	var instrText string
	if frame != nil {
		before = frame.InstrOffs
		if callable, ok := frame.Func.Ref().(object.Callable); ok {
			if ins, _, ok := bytecode.Decode(callable.Core().Bytecode, before); ok {
				instrText = ins.Op.String()
			}
		}
	}
	d.ctx.Step()
	d.stepCount++
	d.recordHistory(before, instrText)
}

// continueToBreakpoint steps repeatedly until a breakpoint offset is
// reached, the program finishes, or an uncaught exception propagates out.
func (d *Debugger) continueToBreakpoint() {
	fmt.Fprintln(d.output, "running...")
	for {
		if d.ctx.Stack == nil || d.ctx.Stack.Size() == 0 {
			return
		}
		frame := d.ctx.Stack.Top()
		if frame != nil && d.breakpoints[frame.InstrOffs] {
			fmt.Fprintf(d.output, "breakpoint hit at offset %d\n", frame.InstrOffs)
			return
		}
		d.step()
		if d.ctx.HasException {
			fmt.Fprintln(d.output, "exception pending")
			return
		}
	}
}

func (d *Debugger) displayTop() {
	if d.ctx.Stack == nil || d.ctx.Stack.Size() == 0 {
		fmt.Fprintln(d.output, "(no active frame)")
		return
	}
	d.displayRegisters()
	d.displayDisassembly(5)
}

func (d *Debugger) displayRegisters() {
	seg := d.ctx.Stack
	if seg == nil || seg.Size() == 0 {
		fmt.Fprintln(d.output, "no active frame")
		return
	}
	frame := seg.Top()
	fmt.Fprintf(d.output, "offset=%d retReg=%d genReg=%d depth=%d\n",
		frame.InstrOffs, frame.RetReg, frame.GenReg, d.ctx.StackDepth)
	for i, r := range frame.Regs {
		fmt.Fprintf(d.output, "  r%-3d = %s\n", i, r.String())
	}
}

func (d *Debugger) displayDisassembly(count int) {
	seg := d.ctx.Stack
	if seg == nil || seg.Size() == 0 {
		return
	}
	frame := seg.Top()
	callable, ok := frame.Func.Ref().(object.Callable)
	if !ok {
		fmt.Fprintln(d.output, "(frame has no callable)")
		return
	}
	code := callable.Core().Bytecode
	offs := frame.InstrOffs
	for i := 0; i < count; i++ {
		ins, next, ok := bytecode.Decode(code, offs)
		if !ok {
			break
		}
		marker := "  "
		if offs == frame.InstrOffs {
			marker = "=>"
		}
		bp := " "
		if d.breakpoints[offs] {
			bp = "*"
		}
		fmt.Fprintf(d.output, "%s %s%4d: %-14s a=%d b=%d c=%d d=%d imm=%d\n",
			marker, bp, offs, ins.Op.String(), ins.A, ins.B, ins.C, ins.D, ins.Imm)
		offs = next
	}
}

func (d *Debugger) displayBacktrace() {
	seg := d.ctx.Stack
	depth := 0
	for seg != nil {
		for i := int(seg.Size()) - 1; i >= 0; i-- {
			frame := &seg.Frames[i]
			name := "<anonymous>"
			if callable, ok := frame.Func.Ref().(object.Callable); ok {
				if s, ok := callable.Core().Name.Ref().(*object.String); ok {
					name = s.String()
				}
			}
			fmt.Fprintf(d.output, "#%-3d %s (offset %d)\n", depth, name, frame.InstrOffs)
			depth++
		}
		seg = seg.Backlink
	}
}

// AddBreakpoint arms a breakpoint at offset before Run starts, the way a
// caller driving the debugger non-interactively (e.g. a CLI --break flag)
// would seed it without going through the "break" command text.
func (d *Debugger) AddBreakpoint(offset uint32) {
	d.breakpoints[offset] = true
}

func (d *Debugger) listBreakpoints() {
	if len(d.breakpoints) == 0 {
		fmt.Fprintln(d.output, "no breakpoints set")
		return
	}
	fmt.Fprintln(d.output, "breakpoints:")
	for off := range d.breakpoints {
		fmt.Fprintf(d.output, "  %d\n", off)
	}
}

func (d *Debugger) recordHistory(offset uint32, instr string) {
	if len(d.history) >= d.maxHistory {
		d.history = d.history[1:]
	}
	d.history = append(d.history, HistoryEntry{Offset: offset, Instr: instr})
}

func (d *Debugger) displayHistory() {
	if len(d.history) == 0 {
		fmt.Fprintln(d.output, "no history")
		return
	}
	for i, e := range d.history {
		fmt.Fprintf(d.output, "%3d: %4d %s\n", i, e.Offset, e.Instr)
	}
}

func (d *Debugger) printBanner() {
	fmt.Fprintln(d.output, "kos vm debugger")
	fmt.Fprintln(d.output, "type 'help' for commands, 's' to step, 'c' to continue")
	fmt.Fprintln(d.output)
}

func (d *Debugger) printHelp() {
	fmt.Fprintln(d.output, "commands:")
	fmt.Fprintln(d.output, "  s/step            step one instruction")
	fmt.Fprintln(d.output, "  c/continue        run until breakpoint or finish")
	fmt.Fprintln(d.output, "  b/break <offset>  set breakpoint")
	fmt.Fprintln(d.output, "  d/delete <offset> clear breakpoint")
	fmt.Fprintln(d.output, "  r/regs            show current frame's registers")
	fmt.Fprintln(d.output, "  bt/backtrace      show call stack")
	fmt.Fprintln(d.output, "  dis               disassemble ahead of ip")
	fmt.Fprintln(d.output, "  history           show executed instructions")
	fmt.Fprintln(d.output, "  stats             show instruction count")
	fmt.Fprintln(d.output, "  q/quit            exit")
}

func parseOffset(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q: %w", s, err)
	}
	return uint32(n), nil
}
