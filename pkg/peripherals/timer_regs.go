package peripherals

// Timer register offsets, relative to the TCn base.
const (
	TimerLoad  uint32 = 0x00
	TimerValue uint32 = 0x04
	TimerCtrl  uint32 = 0x08
	TimerEOI   uint32 = 0x0C
)

// TimerWindow is the size of one timer's register block.
const TimerWindow uint32 = 0x20

// Timer registers are word-wide only.
func (t *Timer) ReadReg8(offset uint32) uint8 {
	pc, lr := pcLR(t.regs)
	t.log.Printf("unhandled 8bit timer read %x at pc=%08x lr=%08x", offset, pc, lr)
	return 0xFF
}

func (t *Timer) WriteReg8(offset uint32, val uint8) {
	pc, lr := pcLR(t.regs)
	t.log.Printf("unhandled 8bit timer write %x value %02x at pc=%08x lr=%08x", offset, val, pc, lr)
}

func (t *Timer) ReadReg32(offset uint32) uint32 {
	switch offset {
	case TimerLoad:
		return t.interval
	case TimerValue:
		return uint32(t.value)
	case TimerCtrl:
		return uint32(t.config)
	default:
		pc, lr := pcLR(t.regs)
		t.log.Printf("unhandled 32bit timer read %x at pc=%08x lr=%08x", offset, pc, lr)
		return 0xFFFFFFFF
	}
}

func (t *Timer) WriteReg32(offset uint32, val uint32) {
	switch offset {
	case TimerLoad:
		t.Load(val)
	case TimerCtrl:
		t.SetConfig(uint8(val))
	case TimerEOI:
		if t.OnEOI != nil {
			t.OnEOI()
		}
	default:
		pc, lr := pcLR(t.regs)
		t.log.Printf("unhandled 32bit timer write %x value %08x at pc=%08x lr=%08x", offset, val, pc, lr)
	}
}
