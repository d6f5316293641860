package main

import (
	"fmt"
	"sort"

	"github.com/koslang/kosvm/pkg/kasm"
	"github.com/koslang/kosvm/pkg/object"
)

// Building and loading Kos source is out of scope for this VM (spec's
// lexer/parser/compiler Non-goal); there is no on-disk bytecode file
// format to read a module from either. demoModules stands in for the
// "load a module from wherever the embedder's toolchain put it" step a
// real checkout would wire in here: a small registry of modules built
// directly with pkg/kasm, enough to exercise run/disasm/debug end to end
// against the real interpreter.
var demoModules = map[string]func() *object.Module{
	"arithmetic": buildArithmeticDemo,
	"countdown":  buildCountdownDemo,
	"closure":    buildClosureDemo,
}

func demoNames() []string {
	names := make([]string, 0, len(demoModules))
	for name := range demoModules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func loadDemo(name string) (*object.Module, error) {
	build, ok := demoModules[name]
	if !ok {
		return nil, fmt.Errorf("unknown demo module %q (available: %v)", name, demoNames())
	}
	return build(), nil
}

// arithmetic: 7 / 2, exercising truncating (not float-promoting) integer DIV.
func buildArithmeticDemo() *object.Module {
	mb := kasm.NewModuleBuilder("arithmetic", "arithmetic.kos")
	b := kasm.NewBuilder()
	b.LoadInt8(0, 7)
	b.LoadInt8(1, 2)
	b.Div(2, 0, 1)
	b.Return(2)
	fn, err := b.BuildFunction(object.ArgLayout{NumRegs: 3})
	if err != nil {
		panic(err)
	}
	idx := mb.AddFunctionConstant(fn)
	mb.SetMain(idx)
	return mb.Module()
}

// countdown: recurses from 5 down to the base case via a self-referencing
// LOAD_FUN, the way a recursive function value is bound in the absence of
// named function declarations.
func buildCountdownDemo() *object.Module {
	mb := kasm.NewModuleBuilder("countdown", "countdown.kos")

	cb := kasm.NewBuilder()
	cb.LoadInt8(1, 0)
	cb.CmpEq(2, 0, 1)
	cb.JumpCond(2, "base")
	cb.LoadFun8(3, 0)
	cb.LoadInt8(4, 1)
	cb.Sub(5, 0, 4)
	cb.LoadArray8(6, 0)
	cb.Push(6, 5)
	cb.Call(7, 3, 8, 6)
	cb.Return(7)
	cb.Label("base")
	cb.Return(1)
	fn, err := cb.BuildFunction(object.ArgLayout{NumRegs: 9, MinArgs: 1, ArgsReg: 0})
	if err != nil {
		panic(err)
	}
	selfIdx := mb.AddFunctionConstant(fn)

	mainB := kasm.NewBuilder()
	mainB.LoadFun8(0, selfIdx)
	mainB.LoadArray8(1, 0)
	mainB.LoadInt8(2, 5)
	mainB.Push(1, 2)
	mainB.Call(3, 0, 4, 1)
	mainB.Return(3)
	mainFn, err := mainB.BuildFunction(object.ArgLayout{NumRegs: 5})
	if err != nil {
		panic(err)
	}
	mainIdx := mb.AddFunctionConstant(mainFn)
	mb.SetMain(mainIdx)
	return mb.Module()
}

// closure: binds a captured value into an inner function via BIND and
// returns what the inner function reads back out of its closure slot.
func buildClosureDemo() *object.Module {
	mb := kasm.NewModuleBuilder("closure", "closure.kos")

	inner := kasm.NewBuilder()
	inner.Return(0)
	innerFn, err := inner.BuildFunction(object.ArgLayout{NumRegs: 1, BindReg: 0, NumBinds: 1})
	if err != nil {
		panic(err)
	}
	innerIdx := mb.AddFunctionConstant(innerFn)

	outer := kasm.NewBuilder()
	outer.LoadFun8(0, innerIdx)
	outer.LoadInt8(1, 99)
	outer.Bind(0, 0, 1)
	outer.Call(2, 0, 3, 4)
	outer.Return(2)
	outerFn, err := outer.BuildFunction(object.ArgLayout{NumRegs: 5})
	if err != nil {
		panic(err)
	}
	outerIdx := mb.AddFunctionConstant(outerFn)
	mb.SetMain(outerIdx)
	return mb.Module()
}
