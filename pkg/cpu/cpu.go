package cpu

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
)

const (
	RegLR = 14
	RegPC = 15
)

// ClockSpeed is the Windermere core clock in Hz (0x9000 * 1000).
const ClockSpeed = 0x9000 * 1000

// NoIRQ marks a window whose peripheral never raises an interrupt.
const NoIRQ uint8 = 0xFF

var ErrOverlap = errors.New("peripheral window overlaps an existing mount")

// window is one mounted peripheral on the bus.
type window struct {
	base uint32
	size uint32
	irq  uint8
	p    Peripheral
}

func (w *window) contains(addr uint32) bool {
	return addr >= w.base && addr-w.base < w.size
}

// CPU is the host side of the emulated core: the register file, the cycle
// counter and the peripheral bus. Instruction decode lives elsewhere; this
// type only advances time and routes register accesses.
type CPU struct {
	Regs   [16]uint32
	Cycles int64

	InterruptPending bool
	PendingIRQs      uint32

	// Output is where bus diagnostics are written. If nil, os.Stdout is used.
	Output io.Writer

	windows []*window
}

func NewCPU() *CPU {
	return &CPU{}
}

// GPR implements RegisterReader.
func (c *CPU) GPR(n int) uint32 {
	if n < 0 || n >= len(c.Regs) {
		return 0
	}
	return c.Regs[n]
}

func (c *CPU) SetGPR(n int, val uint32) {
	if n >= 0 && n < len(c.Regs) {
		c.Regs[n] = val
	}
}

func (c *CPU) outputSink() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return os.Stdout
}

func (c *CPU) busLog() *log.Logger {
	return log.New(c.outputSink(), "[BUS] ", 0)
}

// MountPeripheral maps p at [base, base+size). irq is the interrupt line
// raised when p is a Ticker that fires, or NoIRQ.
func (c *CPU) MountPeripheral(base, size uint32, irq uint8, p Peripheral) error {
	if size == 0 {
		return fmt.Errorf("mount %s at 0x%08x: empty window", p.Type(), base)
	}
	if irq != NoIRQ && irq >= 32 {
		return fmt.Errorf("mount %s at 0x%08x: irq line %d out of range", p.Type(), base, irq)
	}
	w := &window{base: base, size: size, irq: irq, p: p}
	for _, o := range c.windows {
		if w.contains(o.base) || o.contains(w.base) {
			return fmt.Errorf("mount %s at 0x%08x: %w (%s at 0x%08x)", p.Type(), base, ErrOverlap, o.p.Type(), o.base)
		}
	}
	c.windows = append(c.windows, w)
	sort.Slice(c.windows, func(i, j int) bool { return c.windows[i].base < c.windows[j].base })
	return nil
}

// PeripheralAt returns the peripheral mounted at exactly base, if any.
func (c *CPU) PeripheralAt(base uint32) Peripheral {
	for _, w := range c.windows {
		if w.base == base {
			return w.p
		}
	}
	return nil
}

func (c *CPU) lookup(addr uint32) *window {
	i := sort.Search(len(c.windows), func(i int) bool {
		return c.windows[i].base+c.windows[i].size > addr
	})
	if i < len(c.windows) && c.windows[i].contains(addr) {
		return c.windows[i]
	}
	return nil
}

func (c *CPU) TriggerPeripheralInterrupt(line uint8) {
	if line < 32 {
		c.PendingIRQs |= 1 << line
		c.InterruptPending = true
	}
}

// AckInterrupt clears a latched interrupt line.
func (c *CPU) AckInterrupt(line uint8) {
	if line < 32 {
		c.PendingIRQs &^= 1 << line
		c.InterruptPending = c.PendingIRQs != 0
	}
}

func (c *CPU) IRQPending(line uint8) bool {
	return line < 32 && c.PendingIRQs&(1<<line) != 0
}

func (c *CPU) ReadReg8(addr uint32) uint8 {
	if w := c.lookup(addr); w != nil {
		return w.p.ReadReg8(addr - w.base)
	}
	c.busLog().Printf("unmapped 8bit read %08x at pc=%08x lr=%08x", addr, c.Regs[RegPC], c.Regs[RegLR])
	return 0xFF
}

func (c *CPU) ReadReg32(addr uint32) uint32 {
	if w := c.lookup(addr); w != nil {
		return w.p.ReadReg32(addr - w.base)
	}
	c.busLog().Printf("unmapped 32bit read %08x at pc=%08x lr=%08x", addr, c.Regs[RegPC], c.Regs[RegLR])
	return 0xFFFFFFFF
}

func (c *CPU) WriteReg8(addr uint32, val uint8) {
	if w := c.lookup(addr); w != nil {
		w.p.WriteReg8(addr-w.base, val)
		return
	}
	c.busLog().Printf("unmapped 8bit write %08x value %02x at pc=%08x lr=%08x", addr, val, c.Regs[RegPC], c.Regs[RegLR])
}

func (c *CPU) WriteReg32(addr uint32, val uint32) {
	if w := c.lookup(addr); w != nil {
		w.p.WriteReg32(addr-w.base, val)
		return
	}
	c.busLog().Printf("unmapped 32bit write %08x value %08x at pc=%08x lr=%08x", addr, val, c.Regs[RegPC], c.Regs[RegLR])
}

func (c *CPU) tick() {
	for _, w := range c.windows {
		t, ok := w.p.(Ticker)
		if !ok {
			continue
		}
		if t.Tick(c.Cycles) && w.irq != NoIRQ {
			c.TriggerPeripheralInterrupt(w.irq)
		}
	}
}

// Step advances the clock by one cycle and gives every Ticker one look at it.
func (c *CPU) Step() {
	c.Cycles++
	c.tick()
}

// RunCycles steps n single cycles, so no timer boundary is ever skipped.
func (c *CPU) RunCycles(n int64) {
	for ; n > 0; n-- {
		c.Step()
	}
}

// Advance jumps the clock by n cycles and ticks once. Tickers only evaluate
// one boundary per call, so boundaries inside the jump are dropped.
func (c *CPU) Advance(n int64) {
	if n <= 0 {
		return
	}
	c.Cycles += n
	c.tick()
}
