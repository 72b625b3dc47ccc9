package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/term"

	"windermere/pkg/board"
	"windermere/pkg/luaprobe"
	"windermere/pkg/probe"
)

const helpText = `ops:  w8|w32 ADDR VAL   r8|r32 ADDR [EXPECT]   run N   advance N
      reg Rn VAL   dump TC1|TC2|UART0|UART1   expect-irq LINE 0|1   ack LINE
also: lua CODE   syms   state   help   quit
ADDR may be a number, a symbol (UART0FCR) or SYMBOL+offset.`

// session is one console against one board.
type session struct {
	b      *board.Board
	parser *probe.Parser
	lua    *luaprobe.Runner
	out    io.Writer
}

func newSession(b *board.Board, out io.Writer) *session {
	return &session{
		b:      b,
		parser: probe.NewParser(b.Symbols()),
		lua:    luaprobe.NewRunner(b, out),
		out:    out,
	}
}

func (s *session) close() { s.lua.Close() }

// exec handles one input line. It returns io.EOF when the user quits.
func (s *session) exec(line string, lineNo int) error {
	cmd := strings.TrimSpace(line)
	word, rest, _ := strings.Cut(cmd, " ")
	switch strings.ToLower(word) {
	case "":
		return nil
	case "quit", "exit":
		return io.EOF
	case "help":
		fmt.Fprintln(s.out, helpText)
		return nil
	case "syms":
		for _, name := range s.b.SymbolNames() {
			addr, _ := s.b.Lookup(name)
			fmt.Fprintf(s.out, "%-12s %08x\n", name, addr)
		}
		return nil
	case "state":
		fmt.Fprintf(s.out, "cycles=%d irq=%08x\n", s.b.Cycles, s.b.PendingIRQs)
		fmt.Fprintf(s.out, "TC1   %s\nTC2   %s\nUART0 %s\nUART1 %s\n", s.b.TC1, s.b.TC2, s.b.UART0, s.b.UART1)
		return nil
	case "lua":
		return s.lua.Run(rest)
	}

	op, ok, err := s.parser.ParseLine(cmd, lineNo)
	if err != nil || !ok {
		return err
	}
	prog := &probe.Program{Ops: []probe.Op{op}, SourceMap: map[int]int{0: lineNo}}
	return prog.Exec(s.b, s.out)
}

func runInteractive(s *session, fd int) error {
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "windermere> ")
	s.out = t
	s.b.SetOutput(t)
	s.lua.SetOutput(t)

	for lineNo := 1; ; lineNo++ {
		line, err := t.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := s.exec(line, lineNo); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			fmt.Fprintf(t, "error: %v\n", err)
		}
	}
}

func runBatch(s *session, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for lineNo := 1; sc.Scan(); lineNo++ {
		if err := s.exec(sc.Text(), lineNo); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
	return sc.Err()
}

func main() {
	b, err := board.New(board.Config{})
	if err != nil {
		log.Fatalf("board: %v", err)
	}
	s := newSession(b, os.Stdout)
	defer s.close()

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		err = runInteractive(s, fd)
	} else {
		err = runBatch(s, os.Stdin)
	}
	if err != nil {
		log.Fatal(err)
	}
}
