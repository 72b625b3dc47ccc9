package peripherals

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"windermere/pkg/cpu"
)

const TimerType = "Timer"

// Timer control bits.
const (
	TimerMode512kHz uint8 = 1 << 3
	TimerPeriodic   uint8 = 1 << 6
	TimerEnabled    uint8 = 1 << 7
)

// Timer is a down-counter clocked off the core's absolute cycle count. One
// timer tick happens every TickInterval cycles; each tick decrements the
// counter while the timer is enabled.
type Timer struct {
	name string
	regs cpu.RegisterReader
	log  *log.Logger

	// OnEOI is called when the guest writes the end-of-interrupt register.
	OnEOI func()

	nextTickAt int64
	config     uint8
	interval   uint32
	value      int32
	clockSpeed int
}

// NewTimer returns a disabled timer in 2kHz mode whose first boundary is one
// interval after cycle zero.
func NewTimer(name string, regs cpu.RegisterReader, clockSpeed int) *Timer {
	t := &Timer{
		name:       name,
		regs:       regs,
		log:        log.New(os.Stdout, "["+name+"] ", 0),
		clockSpeed: clockSpeed,
	}
	t.nextTickAt = int64(t.TickInterval())
	return t
}

func (t *Timer) Type() string { return TimerType }

func (t *Timer) Name() string { return t.name }

// SetOutput redirects the diagnostic trace.
func (t *Timer) SetOutput(w io.Writer) { t.log.SetOutput(w) }

func (t *Timer) Config() uint8 { return t.config }
func (t *Timer) Interval() uint32 { return t.interval }
func (t *Timer) Value() int32 { return t.value }
func (t *Timer) NextTickAt() int64 { return t.nextTickAt }
func (t *Timer) Enabled() bool { return t.config&TimerEnabled != 0 }
func (t *Timer) Periodic() bool { return t.config&TimerPeriodic != 0 }
func (t *Timer) ClockSpeed() int { return t.clockSpeed }
func (t *Timer) SetNextTickAt(c int64) { t.nextTickAt = c }

// TickInterval is the number of cycles between two timer ticks under the
// current config.
func (t *Timer) TickInterval() int {
	if t.config&TimerMode512kHz != 0 {
		return t.clockSpeed / 512000
	}
	return t.clockSpeed / 2000
}

// Load sets both the reload value and the live counter. The tick phase is
// left alone.
func (t *Timer) Load(v uint32) {
	t.interval = v
	t.value = int32(v)
}

// SetConfig swaps the config while keeping the phase of the next boundary:
// the old interval comes off before the config changes and the new one goes
// on after.
func (t *Timer) SetConfig(v uint8) {
	t.nextTickAt -= int64(t.TickInterval())
	t.config = v
	t.nextTickAt += int64(t.TickInterval())
}

// Tick checks for a single boundary crossing at cycles. Boundaries keep
// accruing while disabled; only the counter is gated. Crossings missed
// between calls are not caught up.
func (t *Timer) Tick(cycles int64) bool {
	if cycles < t.nextTickAt {
		return false
	}
	t.nextTickAt += int64(t.TickInterval())

	if t.config&TimerEnabled == 0 || t.value == 0 {
		return false
	}
	t.value--
	if t.value != 0 {
		return false
	}
	if t.config&TimerPeriodic != 0 {
		t.value = int32(t.interval)
	}
	return true
}

func (t *Timer) String() string {
	return fmt.Sprintf("enabled=%t periodic=%t interval=%d value=%d",
		t.Enabled(), t.Periodic(), t.interval, t.value)
}

// Dump writes the timer state to the trace.
func (t *Timer) Dump() {
	t.log.Print(t.String())
}

type timerState struct {
	NextTickAt int64  `json:"next_tick_at"`
	Config     uint8  `json:"config"`
	Interval   uint32 `json:"interval"`
	Value      int32  `json:"value"`
	ClockSpeed int    `json:"clock_speed"`
}

func (t *Timer) SaveState() []byte {
	data, _ := json.Marshal(timerState{
		NextTickAt: t.nextTickAt,
		Config:     t.config,
		Interval:   t.interval,
		Value:      t.value,
		ClockSpeed: t.clockSpeed,
	})
	return data
}

func (t *Timer) LoadState(data []byte) error {
	var s timerState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timer %s: %w", t.name, err)
	}
	if s.ClockSpeed <= 0 {
		return fmt.Errorf("timer %s: invalid clock speed %d", t.name, s.ClockSpeed)
	}
	t.nextTickAt = s.NextTickAt
	t.config = s.Config
	t.interval = s.Interval
	t.value = s.Value
	t.clockSpeed = s.ClockSpeed
	return nil
}
