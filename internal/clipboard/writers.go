package clipboard

import (
	"context"
	"io"
	"os"

	sysclip "github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"
)

// SystemWriter writes to the desktop clipboard (pbcopy, xclip, xsel,
// wl-copy or the Windows API, whichever the platform provides).
type SystemWriter struct{}

func (SystemWriter) Write(_ context.Context, text string) error {
	if sysclip.Unsupported {
		return ErrUnavailable
	}
	return sysclip.WriteAll(text)
}

// OSC52Writer emits an OSC 52 escape sequence, which most terminal emulators
// turn into a clipboard write. It works over SSH where no desktop clipboard
// is reachable.
type OSC52Writer struct {
	Out  io.Writer
	Tmux bool
}

// NewOSC52Writer writes sequences to out, wrapping them for tmux when running
// inside a tmux session.
func NewOSC52Writer(out io.Writer) *OSC52Writer {
	return &OSC52Writer{Out: out, Tmux: os.Getenv("TMUX") != ""}
}

func (w *OSC52Writer) Write(_ context.Context, text string) error {
	if w == nil || w.Out == nil {
		return ErrUnavailable
	}
	seq := osc52.New(text)
	if w.Tmux {
		seq = seq.Tmux()
	}
	_, err := seq.WriteTo(w.Out)
	return err
}
