package cpu

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// mountedWindow records one bus mount in the snapshot.
type mountedWindow struct {
	Base uint32 `json:"base"`
	Size uint32 `json:"size"`
	IRQ  uint8  `json:"irq"`
	Type string `json:"type"`
}

// humanReadableState is the JSON-serializable snapshot of core state.
type humanReadableState struct {
	Regs             [16]uint32      `json:"regs"`
	Cycles           int64           `json:"cycles"`
	InterruptPending bool            `json:"interrupt_pending"`
	PendingIRQs      uint32          `json:"pending_irqs"`
	Mounted          []mountedWindow `json:"mounted"`
}

func peripheralEntry(base uint32) string {
	return fmt.Sprintf("peripheral_%08x.json", base)
}

// HibernateToBytes serialises the core and every stateful peripheral into an
// in-memory ZIP archive and returns the raw bytes.
func (c *CPU) HibernateToBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	state := humanReadableState{
		Regs:             c.Regs,
		Cycles:           c.Cycles,
		InterruptPending: c.InterruptPending,
		PendingIRQs:      c.PendingIRQs,
	}
	for _, w := range c.windows {
		state.Mounted = append(state.Mounted, mountedWindow{
			Base: w.base,
			Size: w.size,
			IRQ:  w.irq,
			Type: w.p.Type(),
		})
	}

	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal cpu_state: %w", err)
	}
	if err := writeZipEntry(zw, "cpu_state.json", jsonData); err != nil {
		return nil, err
	}

	for _, w := range c.windows {
		sp, ok := w.p.(StatefulPeripheral)
		if !ok {
			continue
		}
		if err := writeZipEntry(zw, peripheralEntry(w.base), sp.SaveState()); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// RestoreFromBytes applies an archive produced by HibernateToBytes. Saved
// peripherals are loaded into whatever is already mounted at the same base
// with the same type; missing ones are built from the registry.
func (c *CPU) RestoreFromBytes(data []byte) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	jsonData, err := readZipEntry(fileMap, "cpu_state.json")
	if err != nil {
		return err
	}
	var state humanReadableState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return fmt.Errorf("unmarshal cpu_state: %w", err)
	}

	for _, m := range state.Mounted {
		p := c.PeripheralAt(m.Base)
		if p != nil && p.Type() != m.Type {
			return fmt.Errorf("restore 0x%08x: mounted %s, snapshot has %s", m.Base, p.Type(), m.Type)
		}
		if p == nil {
			factory, ok := peripheralRegistry[m.Type]
			if !ok {
				continue
			}
			p = factory(c, m.IRQ)
			if err := c.MountPeripheral(m.Base, m.Size, m.IRQ, p); err != nil {
				return fmt.Errorf("restore 0x%08x: %w", m.Base, err)
			}
		}

		sp, ok := p.(StatefulPeripheral)
		if !ok {
			continue
		}
		raw, err := readZipEntry(fileMap, peripheralEntry(m.Base))
		if err != nil {
			continue
		}
		if err := sp.LoadState(raw); err != nil {
			return fmt.Errorf("load peripheral 0x%08x state: %w", m.Base, err)
		}
	}

	c.Regs = state.Regs
	c.Cycles = state.Cycles
	c.InterruptPending = state.InterruptPending
	c.PendingIRQs = state.PendingIRQs
	return nil
}

// HibernateToFile writes the hibernation archive to the given file path.
func (c *CPU) HibernateToFile(path string) error {
	data, err := c.HibernateToBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RestoreFromFile reads a hibernation archive from the given file path and
// restores the core.
func (c *CPU) RestoreFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.RestoreFromBytes(data)
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %q: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, fmt.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
