package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the console greeting to w. Colors are dropped when w is
// not a terminal.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	title := out.String(fmt.Sprintf("mqlua %s", version)).Bold().Foreground(out.Color("#818cf8"))
	hint := out.String("Lua nodes connected with ZeroMQ. End input to exit.").Faint()

	fmt.Fprintln(w, title)
	fmt.Fprintln(w, hint)
}

// Error renders an error message in the console's error color.
func Error(w io.Writer, msg string) string {
	out := termenv.NewOutput(w)
	return out.String(msg).Foreground(out.Color("#fb7185")).String()
}
