package peripherals

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"windermere/pkg/cpu"
)

const UARTType = "UART"

// UART register offsets, relative to the UARTn base.
//
//	DATA  byte write, long read
//	FCR   long
//	LCR   long
//	CON   byte
//	FLG   byte, mirrored as long
//	INT   long write, byte read
//	INTM  byte
//	INTR  byte
const (
	UARTData  uint32 = 0x00
	UARTFCR   uint32 = 0x04
	UARTLCR   uint32 = 0x08
	UARTCON   uint32 = 0x0C
	UARTFLG   uint32 = 0x10
	UARTINT   uint32 = 0x14
	UARTINTM  uint32 = 0x18
	UARTINTR  uint32 = 0x1C
	UARTTest1 uint32 = 0x20
	UARTTest2 uint32 = 0x24
	UARTTest3 uint32 = 0x28
)

// UARTWindow is the size of one UART's register block.
const UARTWindow uint32 = 0x100

// Interrupt sources, shared by INT and INTM.
const (
	IntRx          uint8 = 1
	IntTx          uint8 = 2
	IntModemStatus uint8 = 4
)

// Port control (CON).
const (
	PortCtrlEnable    uint8 = 1
	PortCtrlSirEnable uint8 = 2
	PortCtrlIrdaTx    uint8 = 4
)

// Frame control (FCR).
const (
	FrameCtrlBreak        uint32 = 1
	FrameCtrlParityEnable uint32 = 2
	FrameCtrlEvenParity   uint32 = 4
	FrameCtrlExtraStopBit uint32 = 8
	FrameCtrlUFifoEn      uint32 = 0x10
	FrameCtrlWrdLenMask   uint32 = 0x60
	FrameCtrlWlen5        uint32 = 0x00
	FrameCtrlWlen6        uint32 = 0x20
	FrameCtrlWlen7        uint32 = 0x40
	FrameCtrlWlen8        uint32 = 0x60
)

// Receive status, carried above the byte in DATA reads.
const (
	RecvFrameError   uint32 = 0x100
	RecvParityError  uint32 = 0x200
	RecvOverrunError uint32 = 0x400
)

// Status flags (FLG).
const (
	FlagClearToSend       uint8 = 1
	FlagDataSetReady      uint8 = 2
	FlagDataCarrierDetect uint8 = 4
	FlagBusy              uint8 = 8
	FlagReceiveFifoEmpty  uint8 = 0x10
	FlagTransmitFifoFull  uint8 = 0x20
)

// FrameFormat is FCR split into its fields.
type FrameFormat struct {
	Break        bool
	ParityEnable bool
	EvenParity   bool
	ExtraStopBit bool
	FIFOEnable   bool
	WordLength   int
}

// WordLength returns the data bits selected by FCR bits 6:5.
func WordLength(fcr uint32) int {
	return 5 + int((fcr&FrameCtrlWrdLenMask)>>5)
}

func DecodeFrameControl(fcr uint32) FrameFormat {
	return FrameFormat{
		Break:        fcr&FrameCtrlBreak != 0,
		ParityEnable: fcr&FrameCtrlParityEnable != 0,
		EvenParity:   fcr&FrameCtrlEvenParity != 0,
		ExtraStopBit: fcr&FrameCtrlExtraStopBit != 0,
		FIFOEnable:   fcr&FrameCtrlUFifoEn != 0,
		WordLength:   WordLength(fcr),
	}
}

// UART models the control and status registers of one Windermere UART. No
// bytes move; the link always looks idle with an empty receive FIFO.
type UART struct {
	name string
	regs cpu.RegisterReader
	log  *log.Logger

	portControl   uint8
	frameControl  uint8
	interrupts    uint8
	interruptMask uint8
}

func NewUART(name string, regs cpu.RegisterReader) *UART {
	return &UART{
		name: name,
		regs: regs,
		log:  log.New(os.Stdout, "["+name+"] ", 0),
	}
}

func (u *UART) Type() string { return UARTType }

func (u *UART) Name() string { return u.name }

// SetOutput redirects the diagnostic trace.
func (u *UART) SetOutput(w io.Writer) { u.log.SetOutput(w) }

func (u *UART) PortControl() uint8 { return u.portControl }
func (u *UART) FrameControl() uint8 { return u.frameControl }
func (u *UART) Interrupts() uint8 { return u.interrupts }
func (u *UART) InterruptMask() uint8 { return u.interruptMask }

// uartReg lists which access widths a register offset answers to. A nil
// handler means that width falls through to the unhandled path.
type uartReg struct {
	name    string
	read8   func(u *UART) uint8
	read32  func(u *UART) uint32
	write8  func(u *UART, v uint8)
	write32 func(u *UART, v uint32)
}

var uartRegs = map[uint32]uartReg{
	UARTData: {name: "DATA"},
	UARTFCR: {
		name:    "FCR",
		read32:  func(u *UART) uint32 { return uint32(u.frameControl) },
		write32: (*UART).writeFrameControl,
	},
	UARTLCR: {name: "LCR", write32: (*UART).writeLineControl},
	UARTCON: {
		name:   "CON",
		read8:  func(u *UART) uint8 { return u.portControl },
		write8: (*UART).writePortControl,
	},
	// Never busy, never full.
	UARTFLG: {
		name:   "FLG",
		read8:  func(*UART) uint8 { return FlagReceiveFifoEmpty },
		read32: func(*UART) uint32 { return uint32(FlagReceiveFifoEmpty) },
	},
	UARTINT:   {name: "INT", write32: (*UART).writeInterrupts},
	UARTINTM:  {name: "INTM", write8: (*UART).writeInterruptMask},
	UARTINTR:  {name: "INTR"},
	UARTTest1: {name: "TEST1"},
	UARTTest2: {name: "TEST2"},
	UARTTest3: {name: "TEST3"},
}

// UARTRegisterName returns the mnemonic for a UART offset, or "" if the
// offset is not part of the register map.
func UARTRegisterName(offset uint32) string {
	return uartRegs[offset].name
}

func (u *UART) describe(offset uint32) string {
	if name := UARTRegisterName(offset); name != "" {
		return fmt.Sprintf("%x (%s)", offset, name)
	}
	return fmt.Sprintf("%x", offset)
}

func (u *UART) ReadReg8(offset uint32) uint8 {
	if r := uartRegs[offset]; r.read8 != nil {
		return r.read8(u)
	}
	pc, lr := pcLR(u.regs)
	u.log.Printf("unhandled 8bit uart read %s at pc=%08x lr=%08x", u.describe(offset), pc, lr)
	return 0xFF
}

func (u *UART) ReadReg32(offset uint32) uint32 {
	if r := uartRegs[offset]; r.read32 != nil {
		return r.read32(u)
	}
	pc, lr := pcLR(u.regs)
	u.log.Printf("unhandled 32bit uart read %s at pc=%08x lr=%08x", u.describe(offset), pc, lr)
	return 0xFFFFFFFF
}

func (u *UART) WriteReg8(offset uint32, val uint8) {
	if r := uartRegs[offset]; r.write8 != nil {
		r.write8(u, val)
		return
	}
	pc, lr := pcLR(u.regs)
	u.log.Printf("unhandled 8bit uart write %s value %02x at pc=%08x lr=%08x", u.describe(offset), val, pc, lr)
}

func (u *UART) WriteReg32(offset uint32, val uint32) {
	if r := uartRegs[offset]; r.write32 != nil {
		r.write32(u, val)
		return
	}
	pc, lr := pcLR(u.regs)
	u.log.Printf("unhandled 32bit uart write %s value %08x at pc=%08x lr=%08x", u.describe(offset), val, pc, lr)
}

func (u *UART) writePortControl(v uint8) {
	u.portControl = v
	u.log.Printf("portcon updated: enable=%d sirenable=%d irdatx=%d",
		bit(v, PortCtrlEnable), bit(v, PortCtrlSirEnable), bit(v, PortCtrlIrdaTx))
}

func (u *UART) writeInterruptMask(v uint8) {
	u.interruptMask = v
	u.log.Printf("interruptmask updated: %02x rx=%d tx=%d modem=%d",
		v, bit(v, IntRx), bit(v, IntTx), bit(v, IntModemStatus))
}

func (u *UART) writeFrameControl(v uint32) {
	u.frameControl = uint8(v)
	f := DecodeFrameControl(v)
	u.log.Printf("frameControl updated: break=%t parityEn=%t evenParity=%t extraStop=%t ufifoEn=%t wrdLen=%d",
		f.Break, f.ParityEnable, f.EvenParity, f.ExtraStopBit, f.FIFOEnable, f.WordLength)
}

func (u *UART) writeLineControl(v uint32) {
	u.log.Printf("** uart writing lcr %x **", v)
}

func (u *UART) writeInterrupts(v uint32) {
	u.log.Printf("uart interrupts %x -> %x", u.interrupts, uint8(v))
	u.interrupts = uint8(v)
}

func (u *UART) String() string {
	return fmt.Sprintf("portcon=%02x fcr=%02x wrdLen=%d int=%02x intm=%02x",
		u.portControl, u.frameControl, WordLength(uint32(u.frameControl)), u.interrupts, u.interruptMask)
}

// Dump writes the register state to the trace.
func (u *UART) Dump() {
	u.log.Print(u.String())
}

type uartState struct {
	PortControl   uint8 `json:"port_control"`
	FrameControl  uint8 `json:"frame_control"`
	Interrupts    uint8 `json:"interrupts"`
	InterruptMask uint8 `json:"interrupt_mask"`
}

func (u *UART) SaveState() []byte {
	data, _ := json.Marshal(uartState{
		PortControl:   u.portControl,
		FrameControl:  u.frameControl,
		Interrupts:    u.interrupts,
		InterruptMask: u.interruptMask,
	})
	return data
}

func (u *UART) LoadState(data []byte) error {
	var s uartState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("uart %s: %w", u.name, err)
	}
	u.portControl = s.PortControl
	u.frameControl = s.FrameControl
	u.interrupts = s.Interrupts
	u.interruptMask = s.InterruptMask
	return nil
}
