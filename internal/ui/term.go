package ui

import (
	"io"
	"os"

	"golang.org/x/term"
)

const (
	defaultWidth = 80
	maxWidth     = 120
)

// terminalWidth reports the width of out when it is a terminal.
func terminalWidth(out io.Writer) (int, bool) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth, true
	}
	if width > maxWidth {
		width = maxWidth
	}
	return width, true
}
