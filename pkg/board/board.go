// Package board assembles the Windermere core with its timers and UARTs at
// their documented register addresses.
package board

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"windermere/pkg/cpu"
	"windermere/pkg/peripherals"
)

const DefaultBase uint32 = 0x80000000

// Offsets of each block from the peripheral base.
const (
	TC1Offset   uint32 = 0x300
	TC2Offset   uint32 = 0x320
	UART0Offset uint32 = 0x600
	UART1Offset uint32 = 0x700
)

// Interrupt lines raised by the timers.
const (
	IRQTC1 uint8 = 4
	IRQTC2 uint8 = 5
)

type Config struct {
	// ClockSpeed in Hz. Zero selects cpu.ClockSpeed.
	ClockSpeed int
	// Base is where the register space starts. Zero selects DefaultBase.
	Base uint32
	// Output receives every diagnostic line. Nil leaves stdout.
	Output io.Writer
}

// Board embeds the core, so bus accesses and clock control go straight
// through it.
type Board struct {
	*cpu.CPU
	TC1   *peripherals.Timer
	TC2   *peripherals.Timer
	UART0 *peripherals.UART
	UART1 *peripherals.UART

	base    uint32
	symbols map[string]uint32
}

func New(cfg Config) (*Board, error) {
	if cfg.ClockSpeed == 0 {
		cfg.ClockSpeed = cpu.ClockSpeed
	}
	if cfg.ClockSpeed < 512000 {
		return nil, fmt.Errorf("clock speed %d Hz is below the 512kHz timer rate", cfg.ClockSpeed)
	}
	if cfg.Base == 0 {
		cfg.Base = DefaultBase
	}

	c := cpu.NewCPU()
	b := &Board{
		CPU:   c,
		TC1:   peripherals.NewTimer("TC1", c, cfg.ClockSpeed),
		TC2:   peripherals.NewTimer("TC2", c, cfg.ClockSpeed),
		UART0: peripherals.NewUART("UART0", c),
		UART1: peripherals.NewUART("UART1", c),
		base:  cfg.Base,
	}
	b.TC1.OnEOI = func() { c.AckInterrupt(IRQTC1) }
	b.TC2.OnEOI = func() { c.AckInterrupt(IRQTC2) }

	mounts := []struct {
		off  uint32
		size uint32
		irq  uint8
		p    cpu.Peripheral
	}{
		{TC1Offset, peripherals.TimerWindow, IRQTC1, b.TC1},
		{TC2Offset, peripherals.TimerWindow, IRQTC2, b.TC2},
		{UART0Offset, peripherals.UARTWindow, cpu.NoIRQ, b.UART0},
		{UART1Offset, peripherals.UARTWindow, cpu.NoIRQ, b.UART1},
	}
	for _, m := range mounts {
		if err := c.MountPeripheral(cfg.Base+m.off, m.size, m.irq, m.p); err != nil {
			return nil, err
		}
	}

	if cfg.Output != nil {
		b.SetOutput(cfg.Output)
	}
	b.symbols = b.buildSymbols()
	return b, nil
}

// SetOutput points every diagnostic sink on the board at w.
func (b *Board) SetOutput(w io.Writer) {
	b.CPU.Output = w
	b.TC1.SetOutput(w)
	b.TC2.SetOutput(w)
	b.UART0.SetOutput(w)
	b.UART1.SetOutput(w)
}

func (b *Board) Base() uint32 { return b.base }

func (b *Board) buildSymbols() map[string]uint32 {
	syms := map[string]uint32{}
	for _, tc := range []struct {
		name string
		off  uint32
	}{{"TC1", TC1Offset}, {"TC2", TC2Offset}} {
		at := b.base + tc.off
		syms[tc.name] = at
		syms[tc.name+"LOAD"] = at + peripherals.TimerLoad
		syms[tc.name+"VAL"] = at + peripherals.TimerValue
		syms[tc.name+"CTRL"] = at + peripherals.TimerCtrl
		syms[tc.name+"EOI"] = at + peripherals.TimerEOI
	}
	for _, u := range []struct {
		name string
		off  uint32
	}{{"UART0", UART0Offset}, {"UART1", UART1Offset}} {
		at := b.base + u.off
		syms[u.name] = at
		for reg := peripherals.UARTData; reg <= peripherals.UARTTest3; reg += 4 {
			syms[u.name+peripherals.UARTRegisterName(reg)] = at + reg
		}
	}
	return syms
}

// Symbols maps register mnemonics (TC1LOAD, UART0FCR, ...) to bus addresses.
// The returned map is a copy.
func (b *Board) Symbols() map[string]uint32 {
	out := make(map[string]uint32, len(b.symbols))
	for k, v := range b.symbols {
		out[k] = v
	}
	return out
}

// Lookup resolves a register mnemonic, ignoring case.
func (b *Board) Lookup(name string) (uint32, bool) {
	addr, ok := b.symbols[strings.ToUpper(name)]
	return addr, ok
}

// SymbolNames returns the mnemonics in address order.
func (b *Board) SymbolNames() []string {
	names := make([]string, 0, len(b.symbols))
	for k := range b.symbols {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		ai, aj := b.symbols[names[i]], b.symbols[names[j]]
		if ai != aj {
			return ai < aj
		}
		return names[i] < names[j]
	})
	return names
}

// Dump writes the named block's state to its trace. Unknown names report
// false.
func (b *Board) Dump(name string) bool {
	switch strings.ToUpper(name) {
	case "TC1":
		b.TC1.Dump()
	case "TC2":
		b.TC2.Dump()
	case "UART0":
		b.UART0.Dump()
	case "UART1":
		b.UART1.Dump()
	default:
		return false
	}
	return true
}

func init() {
	cpu.RegisterPeripheral(peripherals.TimerType, func(c *cpu.CPU, irq uint8) cpu.Peripheral {
		t := peripherals.NewTimer("TC", c, cpu.ClockSpeed)
		if irq != cpu.NoIRQ {
			t.OnEOI = func() { c.AckInterrupt(irq) }
		}
		return t
	})
	cpu.RegisterPeripheral(peripherals.UARTType, func(c *cpu.CPU, _ uint8) cpu.Peripheral {
		return peripherals.NewUART("UART", c)
	})
}
