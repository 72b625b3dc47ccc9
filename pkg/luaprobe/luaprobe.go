// Package luaprobe drives a board from a Lua script, for probe sequences that
// need loops or arithmetic the line format can't express.
package luaprobe

import (
	"fmt"
	"io"

	lua "github.com/yuin/gopher-lua"

	"windermere/pkg/board"
)

// Runner owns one Lua state bound to one board.
type Runner struct {
	b   *board.Board
	L   *lua.LState
	out io.Writer
}

// NewRunner exposes the board to a fresh Lua state. print() and read echoes
// go to out when it is non-nil.
func NewRunner(b *board.Board, out io.Writer) *Runner {
	r := &Runner{b: b, L: lua.NewState(), out: out}
	r.install()
	return r
}

func (r *Runner) Close() { r.L.Close() }

func (r *Runner) SetOutput(w io.Writer) { r.out = w }

// Run executes one chunk of Lua source.
func (r *Runner) Run(src string) error {
	if err := r.L.DoString(src); err != nil {
		return fmt.Errorf("lua: %w", err)
	}
	return nil
}

// RunFile executes a Lua file.
func (r *Runner) RunFile(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("lua %s: %w", path, err)
	}
	return nil
}

// Run is a one-shot helper around NewRunner.
func Run(src string, b *board.Board, out io.Writer) error {
	r := NewRunner(b, out)
	defer r.Close()
	return r.Run(src)
}

func checkAddr(L *lua.LState, n int) uint32 {
	return uint32(L.CheckInt64(n))
}

func checkLine(L *lua.LState, n int) uint8 {
	line := L.CheckInt(n)
	if line < 0 || line >= 32 {
		L.ArgError(n, "irq line out of range")
	}
	return uint8(line)
}

func (r *Runner) install() {
	L := r.L
	b := r.b

	funcs := map[string]lua.LGFunction{
		"read8": func(L *lua.LState) int {
			L.Push(lua.LNumber(b.ReadReg8(checkAddr(L, 1))))
			return 1
		},
		"read32": func(L *lua.LState) int {
			L.Push(lua.LNumber(b.ReadReg32(checkAddr(L, 1))))
			return 1
		},
		"write8": func(L *lua.LState) int {
			v := L.CheckInt64(2)
			if v < 0 || v > 0xFF {
				L.ArgError(2, "byte value out of range")
			}
			b.WriteReg8(checkAddr(L, 1), uint8(v))
			return 0
		},
		"write32": func(L *lua.LState) int {
			b.WriteReg32(checkAddr(L, 1), uint32(L.CheckInt64(2)))
			return 0
		},
		"run": func(L *lua.LState) int {
			b.RunCycles(L.CheckInt64(1))
			return 0
		},
		"advance": func(L *lua.LState) int {
			b.Advance(L.CheckInt64(1))
			return 0
		},
		"reg": func(L *lua.LState) int {
			L.Push(lua.LNumber(b.GPR(L.CheckInt(1))))
			return 1
		},
		"set_reg": func(L *lua.LState) int {
			b.SetGPR(L.CheckInt(1), uint32(L.CheckInt64(2)))
			return 0
		},
		"cycles": func(L *lua.LState) int {
			L.Push(lua.LNumber(b.Cycles))
			return 1
		},
		"irq": func(L *lua.LState) int {
			L.Push(lua.LBool(b.IRQPending(checkLine(L, 1))))
			return 1
		},
		"ack": func(L *lua.LState) int {
			b.AckInterrupt(checkLine(L, 1))
			return 0
		},
		"dump": func(L *lua.LState) int {
			name := L.CheckString(1)
			if !b.Dump(name) {
				L.ArgError(1, "nothing named "+name+" to dump")
			}
			return 0
		},
		"print": func(L *lua.LState) int {
			if r.out == nil {
				return 0
			}
			for i := 1; i <= L.GetTop(); i++ {
				if i > 1 {
					fmt.Fprint(r.out, "\t")
				}
				fmt.Fprint(r.out, L.ToStringMeta(L.Get(i)).String())
			}
			fmt.Fprintln(r.out)
			return 0
		},
	}
	for name, fn := range funcs {
		L.SetGlobal(name, L.NewFunction(fn))
	}

	for name, addr := range b.Symbols() {
		L.SetGlobal(name, lua.LNumber(addr))
	}
	L.SetGlobal("IRQ_TC1", lua.LNumber(board.IRQTC1))
	L.SetGlobal("IRQ_TC2", lua.LNumber(board.IRQTC2))
}
