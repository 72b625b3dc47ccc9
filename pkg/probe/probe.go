// Package probe parses and replays line-oriented register probe scripts:
//
//	w32  UART0FCR 0x60      ; write a word
//	r8   UART0FLG 0x10      ; read a byte, expecting 0x10
//	w32  TC1LOAD  1000
//	w32  TC1CTRL  0xC8
//	run  72000              ; step single cycles
//	expect-irq 4 1
//	w32  TC1EOI   0
//	reg  pc 0x1000
//	dump TC1
package probe

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

type Kind int

const (
	OpWrite8 Kind = iota
	OpWrite32
	OpRead8
	OpRead32
	OpRun
	OpAdvance
	OpReg
	OpDump
	OpExpectIRQ
	OpAck
)

var mnemonics = map[string]Kind{
	"W8":         OpWrite8,
	"W32":        OpWrite32,
	"R8":         OpRead8,
	"R32":        OpRead32,
	"RUN":        OpRun,
	"ADVANCE":    OpAdvance,
	"REG":        OpReg,
	"DUMP":       OpDump,
	"EXPECT-IRQ": OpExpectIRQ,
	"ACK":        OpAck,
}

var ErrUnknownSymbol = errors.New("unknown symbol")

// Op is one parsed script line.
type Op struct {
	Kind   Kind
	Addr   uint32
	Value  uint32
	Count  int64
	Expect bool
	Name   string
}

type Program struct {
	Ops []Op
	// SourceMap maps an op index to its 1-based line in the script.
	SourceMap map[int]int
}

// Target is what a program runs against. board.Board satisfies it.
type Target interface {
	ReadReg8(addr uint32) uint8
	ReadReg32(addr uint32) uint32
	WriteReg8(addr uint32, val uint8)
	WriteReg32(addr uint32, val uint32)
	RunCycles(n int64)
	Advance(n int64)
	SetGPR(n int, val uint32)
	IRQPending(line uint8) bool
	AckInterrupt(line uint8)
	Dump(name string) bool
}

// ExpectError reports a read or interrupt check that did not match.
type ExpectError struct {
	Line int
	What string
	Got  uint32
	Want uint32
}

func (e *ExpectError) Error() string {
	return fmt.Sprintf("line %d: %s = 0x%x, want 0x%x", e.Line, e.What, e.Got, e.Want)
}

type Parser struct {
	symbols map[string]uint32
}

func NewParser(symbols map[string]uint32) *Parser {
	p := &Parser{symbols: make(map[string]uint32, len(symbols))}
	for k, v := range symbols {
		p.symbols[normalizeSymbol(k)] = v
	}
	return p
}

func Parse(src string, symbols map[string]uint32) (*Program, error) {
	return NewParser(symbols).Parse(src)
}

func (p *Parser) Parse(src string) (*Program, error) {
	prog := &Program{SourceMap: make(map[int]int)}
	for i, raw := range strings.Split(src, "\n") {
		op, ok, err := p.ParseLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		prog.SourceMap[len(prog.Ops)] = i + 1
		prog.Ops = append(prog.Ops, op)
	}
	return prog, nil
}

// ParseLine parses a single line. ok is false for blank and comment lines.
func (p *Parser) ParseLine(raw string, lineNo int) (op Op, ok bool, err error) {
	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return op, false, nil
	}
	fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
	mnemonic := strings.ToUpper(fields[0])
	operands := fields[1:]

	kind, known := mnemonics[mnemonic]
	if !known {
		return op, false, fmt.Errorf("unknown op '%s' on line %d", fields[0], lineNo)
	}
	op.Kind = kind

	switch kind {
	case OpWrite8, OpWrite32:
		if len(operands) != 2 {
			return op, false, fmt.Errorf("%s expects address and value on line %d", mnemonic, lineNo)
		}
		if op.Addr, err = p.parseValue(operands[0], lineNo); err != nil {
			return op, false, err
		}
		if op.Value, err = p.parseValue(operands[1], lineNo); err != nil {
			return op, false, err
		}
		if kind == OpWrite8 && op.Value > 0xFF {
			return op, false, fmt.Errorf("byte value out of range on line %d: %s", lineNo, operands[1])
		}

	case OpRead8, OpRead32:
		if len(operands) < 1 || len(operands) > 2 {
			return op, false, fmt.Errorf("%s expects an address and an optional expected value on line %d", mnemonic, lineNo)
		}
		if op.Addr, err = p.parseValue(operands[0], lineNo); err != nil {
			return op, false, err
		}
		if len(operands) == 2 {
			op.Expect = true
			if op.Value, err = p.parseValue(operands[1], lineNo); err != nil {
				return op, false, err
			}
		}

	case OpRun, OpAdvance:
		if len(operands) != 1 {
			return op, false, fmt.Errorf("%s expects a cycle count on line %d", mnemonic, lineNo)
		}
		n, perr := strconv.ParseInt(operands[0], 0, 64)
		if perr != nil || n < 0 {
			return op, false, fmt.Errorf("invalid cycle count '%s' on line %d", operands[0], lineNo)
		}
		op.Count = n

	case OpReg:
		if len(operands) != 2 {
			return op, false, fmt.Errorf("REG expects a register and a value on line %d", lineNo)
		}
		n, rerr := parseRegister(operands[0], lineNo)
		if rerr != nil {
			return op, false, rerr
		}
		op.Count = int64(n)
		if op.Value, err = p.parseValue(operands[1], lineNo); err != nil {
			return op, false, err
		}

	case OpDump:
		if len(operands) != 1 {
			return op, false, fmt.Errorf("DUMP expects a block name on line %d", lineNo)
		}
		op.Name = strings.ToUpper(operands[0])

	case OpExpectIRQ, OpAck:
		want := 1
		if kind == OpExpectIRQ {
			want = 2
		}
		if len(operands) != want {
			return op, false, fmt.Errorf("%s expects %d operand(s) on line %d", mnemonic, want, lineNo)
		}
		irq, lerr := strconv.ParseUint(operands[0], 0, 8)
		if lerr != nil || irq >= 32 {
			return op, false, fmt.Errorf("invalid irq line '%s' on line %d", operands[0], lineNo)
		}
		op.Count = int64(irq)
		if kind == OpExpectIRQ {
			switch operands[1] {
			case "0":
			case "1":
				op.Value = 1
			default:
				return op, false, fmt.Errorf("EXPECT-IRQ state must be 0 or 1 on line %d", lineNo)
			}
		}
	}

	return op, true, nil
}

// parseValue accepts a number, a symbol, or SYMBOL+number.
func (p *Parser) parseValue(token string, lineNo int) (uint32, error) {
	if value, err := strconv.ParseUint(token, 0, 32); err == nil {
		return uint32(value), nil
	}

	sym, offset := token, uint64(0)
	if plus := strings.IndexByte(token, '+'); plus > 0 {
		sym = token[:plus]
		off, err := strconv.ParseUint(token[plus+1:], 0, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid offset '%s' on line %d", token, lineNo)
		}
		offset = off
	}

	if addr, ok := p.symbols[normalizeSymbol(sym)]; ok {
		return addr + uint32(offset), nil
	}
	if isIdentifier(sym) {
		return 0, fmt.Errorf("%w '%s' on line %d", ErrUnknownSymbol, sym, lineNo)
	}
	return 0, fmt.Errorf("invalid value '%s' on line %d", token, lineNo)
}

// Exec runs the program in order. Read results are echoed to out when it is
// non-nil. The first failed expectation stops the run.
func (prog *Program) Exec(t Target, out io.Writer) error {
	for i, op := range prog.Ops {
		lineNo := prog.SourceMap[i]
		switch op.Kind {
		case OpWrite8:
			t.WriteReg8(op.Addr, uint8(op.Value))
		case OpWrite32:
			t.WriteReg32(op.Addr, op.Value)
		case OpRead8:
			got := uint32(t.ReadReg8(op.Addr))
			if out != nil {
				fmt.Fprintf(out, "r8  %08x = %02x\n", op.Addr, got)
			}
			if op.Expect && got != op.Value {
				return &ExpectError{Line: lineNo, What: fmt.Sprintf("r8 %08x", op.Addr), Got: got, Want: op.Value}
			}
		case OpRead32:
			got := t.ReadReg32(op.Addr)
			if out != nil {
				fmt.Fprintf(out, "r32 %08x = %08x\n", op.Addr, got)
			}
			if op.Expect && got != op.Value {
				return &ExpectError{Line: lineNo, What: fmt.Sprintf("r32 %08x", op.Addr), Got: got, Want: op.Value}
			}
		case OpRun:
			t.RunCycles(op.Count)
		case OpAdvance:
			t.Advance(op.Count)
		case OpReg:
			t.SetGPR(int(op.Count), op.Value)
		case OpDump:
			if !t.Dump(op.Name) {
				return fmt.Errorf("line %d: nothing named %s to dump", lineNo, op.Name)
			}
		case OpExpectIRQ:
			var got uint32
			if t.IRQPending(uint8(op.Count)) {
				got = 1
			}
			if got != op.Value {
				return &ExpectError{Line: lineNo, What: fmt.Sprintf("irq %d", op.Count), Got: got, Want: op.Value}
			}
		case OpAck:
			t.AckInterrupt(uint8(op.Count))
		}
	}
	return nil
}

func stripComments(line string) string {
	semicolon := strings.Index(line, ";")
	doubleSlash := strings.Index(line, "//")

	cut := -1
	if semicolon >= 0 {
		cut = semicolon
	}
	if doubleSlash >= 0 && (cut == -1 || doubleSlash < cut) {
		cut = doubleSlash
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

func parseRegister(token string, lineNo int) (int, error) {
	switch strings.ToUpper(token) {
	case "SP":
		return 13, nil
	case "LR":
		return 14, nil
	case "PC":
		return 15, nil
	}
	upper := strings.ToUpper(token)
	if strings.HasPrefix(upper, "R") {
		if n, err := strconv.Atoi(upper[1:]); err == nil && n >= 0 && n < 16 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("invalid register '%s' on line %d", token, lineNo)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}

func normalizeSymbol(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
