package cpu

// RegisterReader is the read-only view of the core that peripherals get for
// diagnostics. GPR 15 is the program counter, GPR 14 the link register.
type RegisterReader interface {
	GPR(n int) uint32
}

// Peripheral is a memory-mapped device. Offsets are relative to the base
// address the device was mounted at.
type Peripheral interface {
	Type() string
	ReadReg8(offset uint32) uint8
	ReadReg32(offset uint32) uint32
	WriteReg8(offset uint32, val uint8)
	WriteReg32(offset uint32, val uint32)
}

// Ticker is implemented by peripherals that count cycles. Tick is called once
// per Step with the absolute cycle counter and reports whether the device
// raised its interrupt.
type Ticker interface {
	Tick(cycles int64) bool
}

// StatefulPeripheral is a Peripheral whose state survives hibernation.
type StatefulPeripheral interface {
	Peripheral
	SaveState() []byte
	LoadState(data []byte) error
}

// PeripheralFactory builds a peripheral when restoring a snapshot into a core
// that has nothing mounted at the saved base.
type PeripheralFactory func(c *CPU, irq uint8) Peripheral

var peripheralRegistry = make(map[string]PeripheralFactory)

// RegisterPeripheral registers a factory for a given peripheral type name.
func RegisterPeripheral(name string, factory PeripheralFactory) {
	peripheralRegistry[name] = factory
}
