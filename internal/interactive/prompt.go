// Package interactive provides confirmation prompts for destructive commands.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks yes/no questions on a terminal.
type Prompter struct {
	out     io.Writer
	scanner *bufio.Scanner
	assume  bool
}

// NewPrompterWithIO creates a prompter with custom input/output.
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// AssumeYes makes every Confirm return true without asking.
func (p *Prompter) AssumeYes() *Prompter {
	p.assume = true
	return p
}

// IsTerminal reports whether r is a terminal (TTY).
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Confirm displays a question and reads a y/n answer. Anything other than
// yes, including end of input, is a no.
func (p *Prompter) Confirm(format string, args ...any) bool {
	if p.assume {
		return true
	}

	_, _ = fmt.Fprintf(p.out, format, args...)
	_, _ = fmt.Fprint(p.out, " [y/N] ")

	if !p.scanner.Scan() {
		_, _ = fmt.Fprintln(p.out)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(p.scanner.Text())) {
	case "y", "yes":
		return true
	case "", "n", "no":
		return false
	default:
		_, _ = fmt.Fprintln(p.out, "Invalid response, assuming no.")
		return false
	}
}
