package main

import (
	"bytes"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"windermere/pkg/board"
	"windermere/pkg/peripherals"
	"windermere/pkg/script"
)

const (
	screenW    = 640
	screenH    = 400
	lineHeight = 16
	traceLines = 8
)

type Game struct {
	b      *board.Board
	trace  *bytes.Buffer
	face   font.Face
	paused bool

	// cyclesPerFrame is how many single cycles Update steps.
	cyclesPerFrame int64
	fires          [2]int
	lastTrace      []string
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		g.eoi()
	}
	if g.paused {
		return nil
	}
	g.step(g.cyclesPerFrame)
	g.collectTrace()
	return nil
}

// step runs n single cycles and counts timer interrupt rising edges.
func (g *Game) step(n int64) {
	for i := int64(0); i < n; i++ {
		before := g.b.PendingIRQs
		g.b.Step()
		if rise := g.b.PendingIRQs &^ before; rise != 0 {
			if rise&(1<<board.IRQTC1) != 0 {
				g.fires[0]++
			}
			if rise&(1<<board.IRQTC2) != 0 {
				g.fires[1]++
			}
		}
	}
}

func (g *Game) collectTrace() {
	if g.trace.Len() == 0 {
		return
	}
	lines := strings.Split(strings.TrimRight(g.trace.String(), "\n"), "\n")
	g.lastTrace = append(g.lastTrace, lines...)
	if len(g.lastTrace) > traceLines {
		g.lastTrace = g.lastTrace[len(g.lastTrace)-traceLines:]
	}
	g.trace.Reset()
}

// eoi acknowledges both timers through their EOI registers.
func (g *Game) eoi() {
	g.b.WriteReg32(g.b.Base()+board.TC1Offset+peripherals.TimerEOI, 0)
	g.b.WriteReg32(g.b.Base()+board.TC2Offset+peripherals.TimerEOI, 0)
}

func (g *Game) drawLine(screen *ebiten.Image, row int, clr color.Color, format string, args ...any) {
	text.Draw(screen, fmt.Sprintf(format, args...), g.face, 8, 20+row*lineHeight, clr)
}

func (g *Game) Draw(screen *ebiten.Image) {
	white := color.White
	dim := color.Gray{Y: 0xA0}
	hot := color.RGBA{R: 0xFF, G: 0x60, B: 0x40, A: 0xFF}

	row := 0
	state := "running"
	if g.paused {
		state = "paused"
	}
	g.drawLine(screen, row, white, "cycle %d  (%s, %d cycles/frame)", g.b.Cycles, state, g.cyclesPerFrame)
	row += 2

	for i, tc := range []*peripherals.Timer{g.b.TC1, g.b.TC2} {
		var clr color.Color = dim
		if tc.Enabled() {
			clr = white
		}
		g.drawLine(screen, row, clr, "%s  %s  ctrl=%02x tick=%d cycles next=%d fired=%d",
			tc.Name(), tc.String(), tc.Config(), tc.TickInterval(), tc.NextTickAt(), g.fires[i])
		row++
	}
	row++

	for _, u := range []*peripherals.UART{g.b.UART0, g.b.UART1} {
		f := peripherals.DecodeFrameControl(uint32(u.FrameControl()))
		g.drawLine(screen, row, white, "%s  %s", u.Name(), u.String())
		row++
		g.drawLine(screen, row, dim, "       break=%t parity=%t even=%t stop2=%t fifo=%t",
			f.Break, f.ParityEnable, f.EvenParity, f.ExtraStopBit, f.FIFOEnable)
		row++
	}
	row++

	var irqColor color.Color = dim
	if g.b.InterruptPending {
		irqColor = hot
	}
	g.drawLine(screen, row, irqColor, "irq pending=%08x  [space] pause  [enter] EOI", g.b.PendingIRQs)
	row += 2

	for _, l := range g.lastTrace {
		g.drawLine(screen, row, dim, "%s", l)
		row++
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenW, screenH
}

func main() {
	scriptPath := flag.String("script", "", "probe (.probe) or Lua (.lua) script run before the monitor starts")
	perFrame := flag.Int64("cycles", 20000, "cycles stepped per frame")
	flag.Parse()

	trace := new(bytes.Buffer)
	b, err := board.New(board.Config{Output: trace})
	if err != nil {
		log.Fatalf("board: %v", err)
	}

	if *scriptPath != "" {
		if err := script.RunFile(*scriptPath, b, trace); err != nil {
			fmt.Fprintln(os.Stderr, trace.String())
			log.Fatalf("script failed: %v", err)
		}
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(screenW*2, screenH*2)
	ebiten.SetWindowTitle("Windermere peripherals")

	game := &Game{
		b:              b,
		trace:          trace,
		face:           basicfont.Face7x13,
		cyclesPerFrame: *perFrame,
	}
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
