package inputmon

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

// pollInterval bounds how long the monitor loop blocks on a single stdin
// read attempt while in character-at-a-time mode, per §4.5's "poll stdin
// with a short timeout."
const pollInterval = 100 * time.Millisecond

// ackWaitTimeout bounds how long the confirmation protocol waits for the
// monitor's pause acknowledgement before proceeding anyway (§4.5 step 2).
const ackWaitTimeout = 500 * time.Millisecond

const escByte = 0x1b

// Monitor watches stdin for ESC while a turn is running and arbitrates
// the pause/resume handshake with confirmation prompts that need cooked
// terminal access. The zero value is not usable — construct with New.
type Monitor struct {
	fd       int
	onEscape func()
	pauseEvt *event
	pauseAck *event
}

// New builds a Monitor bound to fd (normally int(os.Stdin.Fd())).
// onEscape is invoked from the monitor goroutine every time ESC is read;
// it must not block.
func New(fd int, onEscape func()) *Monitor {
	return &Monitor{
		fd:       fd,
		onEscape: onEscape,
		pauseEvt: newEvent(true),
		pauseAck: newEvent(false),
	}
}

// ErrNotATerminal is returned by Run when fd is not a terminal — callers
// running in a non-interactive context (tests, piped stdin, CI) should
// treat this as "no ESC-to-cancel available" rather than a fatal error.
var ErrNotATerminal = errors.New("inputmon: fd is not a terminal")

// Run drives the monitor loop until ctx is cancelled. It puts the
// terminal into raw mode for the duration it is actively polling, and
// restores cooked mode whenever a confirmation prompt requests a pause.
// Run returns nil when ctx is cancelled, ErrNotATerminal when fd is not a
// terminal, and the error when switching the terminal mode or reading fails.
func (m *Monitor) Run(ctx context.Context) error {
	if !term.IsTerminal(m.fd) {
		return ErrNotATerminal
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.pauseEvt.wait():
		}

		if err := m.runCbreak(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		// pause_event was cleared underneath us: restore cooked mode,
		// acknowledge, and wait to be told to resume.
		m.pauseAck.Set()
		select {
		case <-ctx.Done():
			return nil
		case <-m.pauseEvt.wait():
		}
		m.pauseAck.Clear()
	}
}

// runCbreak puts the terminal into character-at-a-time mode and polls
// stdin for ESC until pause_event is cleared (a confirmation prompt wants
// the terminal) or ctx is done. It restores cooked mode before returning
// in every case, including on error.
func (m *Monitor) runCbreak(ctx context.Context) error {
	state, err := term.MakeRaw(m.fd)
	if err != nil {
		return err
	}
	defer term.Restore(m.fd, state)

	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if !m.pauseEvt.IsSet() {
			return nil
		}

		os.Stdin.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := os.Stdin.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if n > 0 && buf[0] == escByte && m.onEscape != nil {
			m.onEscape()
		}
	}
}

// RequestPause clears pause_event and waits up to ackWaitTimeout for the
// monitor to acknowledge it has restored cooked mode. It returns whether
// the acknowledgement arrived in time; the caller proceeds either way,
// per §4.5 step 2 — a missed ack is an input glitch, not a fault.
func (m *Monitor) RequestPause() (acked bool) {
	m.pauseEvt.Clear()
	select {
	case <-m.pauseAck.wait():
		return true
	case <-time.After(ackWaitTimeout):
		return false
	}
}

// Resume sets pause_event, signalling the monitor to resume cbreak
// polling. Callers must call this unconditionally after RequestPause,
// typically via defer, so a panicking prompt never wedges the monitor.
func (m *Monitor) Resume() {
	m.pauseEvt.Set()
}
