package inputmon

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Prompter implements the confirmation protocol described in §4.5: pause
// the Monitor, read one line of yes/no input, then resume the Monitor
// unconditionally. It satisfies skills.Confirmer.
type Prompter struct {
	monitor *Monitor
	in      *bufio.Reader
	out     io.Writer
}

// NewPrompter builds a Prompter that reads from in and writes prompts to
// out. monitor may be nil — Confirm then skips the pause rendezvous
// entirely, which is correct for a non-interactive Monitor (ErrNotATerminal).
func NewPrompter(monitor *Monitor, in io.Reader, out io.Writer) *Prompter {
	return &Prompter{monitor: monitor, in: bufio.NewReader(in), out: out}
}

// Confirm implements the four-step protocol from §4.5: clear pause_event,
// wait (bounded) for the monitor's acknowledgement, read the response,
// and resume the monitor in a defer so a panic mid-prompt can never wedge
// the background ESC watcher.
func (p *Prompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	if p.monitor != nil {
		p.monitor.RequestPause()
		defer p.monitor.Resume()
	}

	fmt.Fprintf(p.out, "%s [y/N] ", prompt)

	type result struct {
		line string
		err  error
	}
	lineCh := make(chan result, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		lineCh <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-lineCh:
		if r.err != nil && r.line == "" {
			return false, r.err
		}
		answer := strings.ToLower(strings.TrimSpace(r.line))
		return answer == "y" || answer == "yes", nil
	}
}
