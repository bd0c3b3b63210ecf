// Package console prints the human-facing status lines of the command-line
// tools.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// Printer writes status lines. The zero value writes to stdout.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// New returns a printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{out: w}
}

func (p *Printer) writer() io.Writer {
	if p.out == nil {
		return os.Stdout
	}
	return p.out
}

// Printf writes a plain line.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer(), format+"\n", args...)
}

// Success writes a green check line.
func (p *Printer) Success(format string, args ...any) {
	p.Printf("%s", green("✓ "+fmt.Sprintf(format, args...)))
}

// Warn writes a yellow warning line.
func (p *Printer) Warn(format string, args ...any) {
	p.Printf("%s", yellow("⚠️  "+fmt.Sprintf(format, args...)))
}

// Error writes a red error line.
func (p *Printer) Error(format string, args ...any) {
	p.Printf("%s", red("❌ "+fmt.Sprintf(format, args...)))
}

// Step writes a cyan progress line.
func (p *Printer) Step(format string, args ...any) {
	p.Printf("%s", cyan(fmt.Sprintf(format, args...)))
}

// Banner writes a title framed by rules.
func (p *Printer) Banner(lines ...string) {
	rule := strings.Repeat("=", 60)
	p.Printf("\n%s", rule)
	for i, l := range lines {
		if i == 0 {
			l = bold(l)
		}
		p.Printf("%s", l)
	}
	p.Printf("%s\n", rule)
}

// Raw writes text verbatim.
func (p *Printer) Raw(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.writer(), text)
}
