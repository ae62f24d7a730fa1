package sink

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Console prints lines to a terminal, coloring them by marker.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	progress *color.Color
	success  *color.Color
	failure  *color.Color
}

// NewConsole creates a console sink writing to out. Colors are used only
// when colored is true.
func NewConsole(out io.Writer, colored bool) *Console {
	c := &Console{
		out:      out,
		progress: color.New(color.FgCyan),
		success:  color.New(color.FgGreen),
		failure:  color.New(color.FgRed, color.Bold),
	}
	for _, clr := range []*color.Color{c.progress, c.success, c.failure} {
		if colored {
			clr.EnableColor()
		} else {
			clr.DisableColor()
		}
	}
	return c
}

// Accept prints line followed by a newline.
func (c *Console) Accept(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case strings.HasPrefix(line, FailureMarker):
		_, _ = c.failure.Fprintln(c.out, line)
	case strings.HasPrefix(line, SuccessMarker):
		_, _ = c.success.Fprintln(c.out, line)
	case strings.HasPrefix(line, ProgressMarker):
		_, _ = c.progress.Fprintln(c.out, line)
	default:
		_, _ = fmt.Fprintln(c.out, line)
	}
}

// ColorSupported reports whether f is a terminal that should get colors.
// NO_COLOR and TERM=dumb disable colors.
func ColorSupported(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
