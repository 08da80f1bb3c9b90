package notify

import (
	"io"
	"os"

	"github.com/fatih/color"
)

// Terminal prints each shown entry as one colored line.
type Terminal struct {
	out io.Writer
}

// NewTerminal creates a Terminal renderer writing to out (stdout when nil).
func NewTerminal(out io.Writer) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	return &Terminal{out: out}
}

// Show prints e with a kind-specific prefix and color.
func (t *Terminal) Show(e Entry) {
	switch e.Kind {
	case KindSuccess:
		color.New(color.FgGreen).Fprintf(t.out, "✓ %s\n", e.Message)
	case KindWarning:
		color.New(color.FgYellow).Fprintf(t.out, "⚠ %s\n", e.Message)
	case KindError:
		color.New(color.FgRed).Fprintf(t.out, "✗ %s\n", e.Message)
	default:
		color.New(color.FgCyan).Fprintf(t.out, "ℹ %s\n", e.Message)
	}
}

// Dismiss is a no-op: terminal lines are not retracted.
func (t *Terminal) Dismiss(Entry) {}

// Multi fans out to several renderers in order.
type Multi []Renderer

func (m Multi) Show(e Entry) {
	for _, r := range m {
		r.Show(e)
	}
}

func (m Multi) Dismiss(e Entry) {
	for _, r := range m {
		r.Dismiss(e)
	}
}

// Func adapts plain functions to a Renderer. Nil fields are skipped.
type Func struct {
	OnShow    func(Entry)
	OnDismiss func(Entry)
}

func (f Func) Show(e Entry) {
	if f.OnShow != nil {
		f.OnShow(e)
	}
}

func (f Func) Dismiss(e Entry) {
	if f.OnDismiss != nil {
		f.OnDismiss(e)
	}
}
