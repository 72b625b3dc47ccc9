package main

import (
	"bytes"
	"fmt"
	"testing"

	"windermere/pkg/board"
	"windermere/pkg/peripherals"
)

func newTestGame(t *testing.T) *Game {
	t.Helper()
	trace := new(bytes.Buffer)
	b, err := board.New(board.Config{Output: trace})
	if err != nil {
		t.Fatal(err)
	}
	return &Game{b: b, trace: trace, cyclesPerFrame: 1000}
}

func TestGame_CountsRisingEdges(t *testing.T) {
	g := newTestGame(t)
	g.b.TC1.Load(10)
	g.b.TC1.SetConfig(peripherals.TimerEnabled | peripherals.TimerPeriodic | peripherals.TimerMode512kHz)

	// Two periods without EOI latch once; the second fire is not a new edge.
	g.step(2 * 10 * 72)
	if g.fires[0] != 1 {
		t.Errorf("fires before EOI = %d, want 1", g.fires[0])
	}

	g.eoi()
	if g.b.InterruptPending {
		t.Fatal("eoi left an interrupt pending")
	}
	g.step(10 * 72)
	if g.fires[0] != 2 || g.fires[1] != 0 {
		t.Errorf("fires = %v, want [2 0]", g.fires)
	}
}

func TestGame_TraceTail(t *testing.T) {
	g := newTestGame(t)
	for i := 0; i < traceLines+3; i++ {
		fmt.Fprintf(g.trace, "line %d\n", i)
	}
	g.collectTrace()

	if len(g.lastTrace) != traceLines {
		t.Fatalf("kept %d lines, want %d", len(g.lastTrace), traceLines)
	}
	if g.lastTrace[0] != "line 3" || g.lastTrace[traceLines-1] != fmt.Sprintf("line %d", traceLines+2) {
		t.Errorf("tail = %q", g.lastTrace)
	}
	if g.trace.Len() != 0 {
		t.Error("trace buffer not drained")
	}

	g.collectTrace()
	if len(g.lastTrace) != traceLines {
		t.Error("empty trace changed the tail")
	}
}

func TestGame_Layout(t *testing.T) {
	g := newTestGame(t)
	if w, h := g.Layout(1920, 1080); w != screenW || h != screenH {
		t.Errorf("Layout = %dx%d", w, h)
	}
}
