// Package script picks the right runner for a probe script by its file
// extension.
package script

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"windermere/pkg/board"
	"windermere/pkg/luaprobe"
	"windermere/pkg/probe"
)

// IsLua reports whether path names a Lua script.
func IsLua(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".lua")
}

// Run executes src against b. Lua is used when name ends in .lua; anything
// else is parsed as a line probe script.
func Run(name, src string, b *board.Board, out io.Writer) error {
	if IsLua(name) {
		return luaprobe.Run(src, b, out)
	}
	prog, err := probe.Parse(src, b.Symbols())
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := prog.Exec(b, out); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func RunFile(path string, b *board.Board, out io.Writer) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return Run(path, string(src), b, out)
}
