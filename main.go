//go:build !js

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"windermere/pkg/board"
	"windermere/pkg/script"
)

func main() {
	scriptPath := flag.String("script", "", "probe (.probe) or Lua (.lua) script to run")
	cycles := flag.Int64("cycles", 0, "cycles to step after the script finishes")
	clock := flag.Int("clock", 0, "core clock in Hz (default: Windermere 36.864MHz)")
	restorePath := flag.String("restore", "", "restore board state from a hibernation archive before running")
	hibernatePath := flag.String("hibernate", "", "write a hibernation archive after running")
	quiet := flag.Bool("quiet", false, "discard the peripheral trace")
	flag.Parse()

	if *scriptPath == "" && *cycles == 0 && *restorePath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -script, -cycles or -restore")
		flag.Usage()
		os.Exit(2)
	}
	if *cycles < 0 {
		fmt.Fprintln(os.Stderr, "-cycles must not be negative")
		os.Exit(2)
	}

	var out io.Writer = os.Stdout
	if *quiet {
		out = io.Discard
	}

	if err := run(runOptions{
		script:    *scriptPath,
		cycles:    *cycles,
		clock:     *clock,
		restore:   *restorePath,
		hibernate: *hibernatePath,
		trace:     out,
		summary:   os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	script    string
	cycles    int64
	clock     int
	restore   string
	hibernate string
	trace     io.Writer
	summary   io.Writer
}

func run(opts runOptions) error {
	b, err := board.New(board.Config{ClockSpeed: opts.clock, Output: opts.trace})
	if err != nil {
		return err
	}

	if opts.restore != "" {
		if err := b.RestoreFromFile(opts.restore); err != nil {
			return fmt.Errorf("restore %q: %w", opts.restore, err)
		}
	}

	if opts.script != "" {
		if err := script.RunFile(opts.script, b, opts.trace); err != nil {
			return err
		}
	}

	b.RunCycles(opts.cycles)

	if opts.hibernate != "" {
		if err := b.HibernateToFile(opts.hibernate); err != nil {
			return fmt.Errorf("hibernate %q: %w", opts.hibernate, err)
		}
	}

	fmt.Fprintf(opts.summary, "run complete: cycles=%d irq=%08x\n", b.Cycles, b.PendingIRQs)
	fmt.Fprintf(opts.summary, "  TC1   %s\n", b.TC1)
	fmt.Fprintf(opts.summary, "  TC2   %s\n", b.TC2)
	fmt.Fprintf(opts.summary, "  UART0 %s\n", b.UART0)
	fmt.Fprintf(opts.summary, "  UART1 %s\n", b.UART1)
	return nil
}
