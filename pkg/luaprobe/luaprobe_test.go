package luaprobe

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"windermere/pkg/board"
)

func newBoard(t *testing.T) (*board.Board, *bytes.Buffer) {
	t.Helper()
	var trace bytes.Buffer
	b, err := board.New(board.Config{Output: &trace})
	if err != nil {
		t.Fatal(err)
	}
	return b, &trace
}

func TestRun_TimerPeriod(t *testing.T) {
	b, _ := newBoard(t)
	var out bytes.Buffer
	src := `
write32(TC1LOAD, 1000)
write32(TC1CTRL, 0xC8)
local fires = 0
for i = 1, 3 do
  run(72000)
  if irq(IRQ_TC1) then
    fires = fires + 1
    write32(TC1EOI, 0)
  end
end
print("fires", fires, read32(TC1VAL))
`
	if err := Run(src, b, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.String(); got != "fires\t3\t1000\n" {
		t.Errorf("print output %q", got)
	}
	if b.Cycles != 3*72000 {
		t.Errorf("Cycles = %d", b.Cycles)
	}
	if b.InterruptPending {
		t.Error("interrupt left pending after EOI")
	}
}

func TestRun_UARTRegisters(t *testing.T) {
	b, trace := newBoard(t)
	var out bytes.Buffer
	src := `
write8(UART0CON, 5)
write32(UART0FCR, 0x40)
print(read8(UART0CON), read32(UART0FCR), read8(UART0FLG), read32(UART0LCR) == 0xFFFFFFFF)
`
	if err := Run(src, b, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.String(); got != "5\t64\t16\ttrue\n" {
		t.Errorf("print output %q", got)
	}
	if !strings.Contains(trace.String(), "portcon updated: enable=1 sirenable=0 irdatx=1") {
		t.Errorf("trace %q", trace.String())
	}
}

func TestRun_RegistersAndAdvance(t *testing.T) {
	b, _ := newBoard(t)
	r := NewRunner(b, nil)
	defer r.Close()

	if err := r.Run(`set_reg(15, 0x8000) advance(500) advance(0)`); err != nil {
		t.Fatal(err)
	}
	if b.GPR(15) != 0x8000 || b.Cycles != 500 {
		t.Errorf("pc=%x cycles=%d", b.GPR(15), b.Cycles)
	}

	// State carries across chunks on one runner.
	if err := r.Run(`saved = reg(15) + cycles()`); err != nil {
		t.Fatal(err)
	}
	if err := r.Run(`if saved ~= 0x8000 + 500 then error("lost state") end`); err != nil {
		t.Error(err)
	}
}

func TestRun_Errors(t *testing.T) {
	b, _ := newBoard(t)
	tests := []struct {
		src  string
		want string
	}{
		{`write8(UART0CON, 256)`, "byte value out of range"},
		{`irq(40)`, "irq line out of range"},
		{`dump("GPIO")`, "nothing named GPIO"},
		{`read8()`, "number expected"},
		{`this is not lua`, "lua:"},
	}
	for _, tc := range tests {
		err := Run(tc.src, b, nil)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Run(%q) err = %v; want %q", tc.src, err, tc.want)
		}
	}
}

func TestRun_DumpAndAck(t *testing.T) {
	b, trace := newBoard(t)
	b.TriggerPeripheralInterrupt(board.IRQTC2)
	if err := Run(`ack(IRQ_TC2) dump("uart1")`, b, nil); err != nil {
		t.Fatal(err)
	}
	if b.IRQPending(board.IRQTC2) {
		t.Error("ack did not clear TC2")
	}
	if !strings.HasPrefix(trace.String(), "[UART1] portcon=00") {
		t.Errorf("dump trace %q", trace.String())
	}
}

func TestRunFile(t *testing.T) {
	b, _ := newBoard(t)
	path := filepath.Join(t.TempDir(), "probe.lua")
	if err := os.WriteFile(path, []byte("write32(TC2LOAD, 9)"), 0644); err != nil {
		t.Fatal(err)
	}
	r := NewRunner(b, nil)
	defer r.Close()
	if err := r.RunFile(path); err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if b.TC2.Interval() != 9 {
		t.Errorf("TC2 interval = %d", b.TC2.Interval())
	}
	if err := r.RunFile(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("RunFile on a missing file succeeded")
	}
}
