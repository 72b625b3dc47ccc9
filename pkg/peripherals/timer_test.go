package peripherals

import (
	"bytes"
	"strings"
	"testing"

	"windermere/pkg/cpu"
)

func newTestTimer(t *testing.T) (*Timer, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	tm := NewTimer("TC1", cpu.NewCPU(), cpu.ClockSpeed)
	tm.SetOutput(&buf)
	return tm, &buf
}

// crossBoundary ticks exactly at the next boundary.
func crossBoundary(tm *Timer) bool {
	return tm.Tick(tm.NextTickAt())
}

func TestTimer_TickInterval(t *testing.T) {
	tests := []struct {
		clock  int
		config uint8
		want   int
	}{
		{cpu.ClockSpeed, 0, 18432},
		{cpu.ClockSpeed, TimerMode512kHz, 72},
		{cpu.ClockSpeed, TimerEnabled | TimerPeriodic, 18432},
		{cpu.ClockSpeed, TimerEnabled | TimerPeriodic | TimerMode512kHz, 72},
		{cpu.ClockSpeed, 0xFF, 72},
		{cpu.ClockSpeed, 0xFF &^ TimerMode512kHz, 18432},
		{1024000, 0, 512},
		{1024000, TimerMode512kHz, 2},
	}
	for _, tc := range tests {
		tm := NewTimer("TC", nil, tc.clock)
		tm.SetConfig(tc.config)
		if got := tm.TickInterval(); got != tc.want {
			t.Errorf("clock=%d config=%02x: TickInterval() = %d, want %d", tc.clock, tc.config, got, tc.want)
		}
	}
}

func TestTimer_NewTimerFirstBoundary(t *testing.T) {
	tm, _ := newTestTimer(t)
	if tm.NextTickAt() != 18432 {
		t.Errorf("NextTickAt = %d, want 18432", tm.NextTickAt())
	}
	if tm.Enabled() || tm.Periodic() {
		t.Errorf("new timer should be disabled one-shot, config=%02x", tm.Config())
	}
}

func TestTimer_SetConfigPreservesPhase(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.SetNextTickAt(100000)

	tm.SetConfig(TimerMode512kHz | TimerEnabled)
	if want := int64(100000 - 18432 + 72); tm.NextTickAt() != want {
		t.Fatalf("after switch to 512kHz NextTickAt = %d, want %d", tm.NextTickAt(), want)
	}

	tm.SetConfig(TimerEnabled)
	if tm.NextTickAt() != 100000 {
		t.Errorf("after switch back NextTickAt = %d, want 100000", tm.NextTickAt())
	}

	// Same divider, different mode bits: phase untouched.
	tm.SetConfig(TimerEnabled | TimerPeriodic)
	if tm.NextTickAt() != 100000 {
		t.Errorf("mode-only change moved NextTickAt to %d", tm.NextTickAt())
	}
}

func TestTimer_LoadKeepsPhase(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.SetNextTickAt(5000)
	tm.Load(42)
	if tm.Interval() != 42 || tm.Value() != 42 {
		t.Errorf("Load(42): interval=%d value=%d", tm.Interval(), tm.Value())
	}
	if tm.NextTickAt() != 5000 {
		t.Errorf("Load moved NextTickAt to %d", tm.NextTickAt())
	}
}

func TestTimer_TickBeforeBoundaryIsInert(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.Load(5)
	tm.SetConfig(TimerEnabled | TimerMode512kHz)
	next := tm.NextTickAt()

	for _, c := range []int64{0, 1, next - 1} {
		if tm.Tick(c) {
			t.Errorf("Tick(%d) fired before boundary %d", c, next)
		}
		if tm.Value() != 5 || tm.NextTickAt() != next {
			t.Errorf("Tick(%d) mutated state: value=%d next=%d", c, tm.Value(), tm.NextTickAt())
		}
	}
}

func TestTimer_DisabledAccruesBoundaries(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.Load(3)
	tm.SetConfig(TimerMode512kHz | TimerPeriodic)
	start := tm.NextTickAt()

	for i := 0; i < 10; i++ {
		if crossBoundary(tm) {
			t.Fatalf("disabled timer fired on crossing %d", i+1)
		}
	}
	if tm.Value() != 3 {
		t.Errorf("disabled timer value = %d, want 3", tm.Value())
	}
	if want := start + 10*72; tm.NextTickAt() != want {
		t.Errorf("NextTickAt = %d, want %d", tm.NextTickAt(), want)
	}
}

func TestTimer_OneShotFiresOnce(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.Load(3)
	tm.SetConfig(TimerEnabled | TimerMode512kHz)

	wantValues := []int32{2, 1, 0, 0, 0, 0}
	fires := 0
	for i, want := range wantValues {
		if crossBoundary(tm) {
			fires++
			if i != 2 {
				t.Errorf("fired on crossing %d, want crossing 3", i+1)
			}
		}
		if tm.Value() != want {
			t.Errorf("crossing %d: value = %d, want %d", i+1, tm.Value(), want)
		}
	}
	if fires != 1 {
		t.Fatalf("one-shot fired %d times, want 1", fires)
	}

	tm.Load(2)
	if crossBoundary(tm) {
		t.Error("reloaded one-shot fired early")
	}
	if !crossBoundary(tm) {
		t.Error("reloaded one-shot did not fire")
	}
}

func TestTimer_PeriodicReloads(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.Load(3)
	tm.SetConfig(TimerEnabled | TimerPeriodic | TimerMode512kHz)

	fires := 0
	for i := 1; i <= 30; i++ {
		fired := crossBoundary(tm)
		if fired != (i%3 == 0) {
			t.Fatalf("crossing %d: fired=%v", i, fired)
		}
		if fired {
			fires++
			if tm.Value() != 3 {
				t.Errorf("crossing %d: value after reload = %d, want 3", i, tm.Value())
			}
		}
	}
	if fires != 10 {
		t.Errorf("fires = %d, want 10", fires)
	}
}

func TestTimer_ThousandCountPeriodic(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.Load(1000)
	tm.SetConfig(TimerEnabled | TimerPeriodic)

	fires := 0
	for i := 1; i <= 3000; i++ {
		fired := crossBoundary(tm)
		want := int32(1000 - i%1000)
		if i%1000 == 0 {
			want = 1000
			if !fired {
				t.Fatalf("crossing %d did not fire", i)
			}
			fires++
		} else if fired {
			t.Fatalf("crossing %d fired early", i)
		}
		if tm.Value() != want {
			t.Fatalf("crossing %d: value = %d, want %d", i, tm.Value(), want)
		}
	}
	if fires != 3 {
		t.Errorf("fires = %d, want 3", fires)
	}
}

func TestTimer_OneBoundaryPerTick(t *testing.T) {
	tm, _ := newTestTimer(t)
	tm.Load(10)
	tm.SetConfig(TimerEnabled | TimerMode512kHz)
	first := tm.NextTickAt()

	// Five boundaries have passed, but only one is counted.
	tm.Tick(first + 4*72)
	if tm.Value() != 9 {
		t.Errorf("value = %d, want 9", tm.Value())
	}
	if tm.NextTickAt() != first+72 {
		t.Errorf("NextTickAt = %d, want %d", tm.NextTickAt(), first+72)
	}
}

func TestTimer_Dump(t *testing.T) {
	tm, buf := newTestTimer(t)
	tm.Load(3)
	tm.SetConfig(TimerEnabled)
	next := tm.NextTickAt()

	tm.Dump()

	want := "[TC1] enabled=true periodic=false interval=3 value=3\n"
	if buf.String() != want {
		t.Errorf("Dump wrote %q, want %q", buf.String(), want)
	}
	if tm.Value() != 3 || tm.NextTickAt() != next {
		t.Error("Dump changed timer state")
	}
}

func TestTimer_Registers(t *testing.T) {
	c := cpu.NewCPU()
	c.Regs[cpu.RegPC] = 0x1000
	c.Regs[cpu.RegLR] = 0x2000
	var buf bytes.Buffer
	tm := NewTimer("TC2", c, cpu.ClockSpeed)
	tm.SetOutput(&buf)

	eoi := 0
	tm.OnEOI = func() { eoi++ }

	tm.WriteReg32(TimerLoad, 50)
	if tm.ReadReg32(TimerLoad) != 50 || tm.ReadReg32(TimerValue) != 50 {
		t.Errorf("LOAD/VALUE = %d/%d, want 50/50", tm.ReadReg32(TimerLoad), tm.ReadReg32(TimerValue))
	}

	next := tm.NextTickAt()
	tm.WriteReg32(TimerCtrl, uint32(TimerEnabled|TimerMode512kHz))
	if tm.ReadReg32(TimerCtrl) != uint32(TimerEnabled|TimerMode512kHz) {
		t.Errorf("CTRL = %02x", tm.ReadReg32(TimerCtrl))
	}
	if tm.NextTickAt() != next-18432+72 {
		t.Errorf("CTRL write did not go through SetConfig: next=%d", tm.NextTickAt())
	}

	tm.WriteReg32(TimerEOI, 0)
	if eoi != 1 {
		t.Errorf("EOI hook called %d times, want 1", eoi)
	}
	if buf.Len() != 0 {
		t.Errorf("modeled accesses logged: %q", buf.String())
	}

	if v := tm.ReadReg32(0x10); v != 0xFFFFFFFF {
		t.Errorf("unknown 32bit read = %08x, want ffffffff", v)
	}
	if v := tm.ReadReg8(TimerValue); v != 0xFF {
		t.Errorf("8bit read = %02x, want ff", v)
	}
	tm.WriteReg8(TimerLoad, 7)
	if tm.Interval() != 50 {
		t.Errorf("8bit write changed interval to %d", tm.Interval())
	}

	log := buf.String()
	for _, want := range []string{
		"[TC2] unhandled 32bit timer read 10 at pc=00001000 lr=00002000",
		"unhandled 8bit timer read 4 at pc=00001000",
		"unhandled 8bit timer write 0 value 07",
	} {
		if !strings.Contains(log, want) {
			t.Errorf("trace missing %q:\n%s", want, log)
		}
	}
}

func TestTimer_StateRoundTrip(t *testing.T) {
	src, _ := newTestTimer(t)
	src.Load(77)
	src.SetConfig(TimerEnabled | TimerPeriodic | TimerMode512kHz)
	for i := 0; i < 5; i++ {
		crossBoundary(src)
	}

	dst, _ := newTestTimer(t)
	if err := dst.LoadState(src.SaveState()); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if dst.Config() != src.Config() || dst.Interval() != src.Interval() ||
		dst.Value() != src.Value() || dst.NextTickAt() != src.NextTickAt() {
		t.Errorf("restored %s next=%d, want %s next=%d", dst, dst.NextTickAt(), src, src.NextTickAt())
	}

	if err := dst.LoadState([]byte(`{"clock_speed":0}`)); err == nil {
		t.Error("LoadState accepted a zero clock speed")
	}
	if err := dst.LoadState([]byte("not json")); err == nil {
		t.Error("LoadState accepted garbage")
	}
}
