package peripherals

import "windermere/pkg/cpu"

// pcLR fetches the guest program counter and link register for a trace line.
func pcLR(r cpu.RegisterReader) (uint32, uint32) {
	if r == nil {
		return 0, 0
	}
	return r.GPR(cpu.RegPC), r.GPR(cpu.RegLR)
}

func bit[T uint8 | uint32](v, mask T) int {
	if v&mask != 0 {
		return 1
	}
	return 0
}
