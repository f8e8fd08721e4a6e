package inputmon

import (
	"testing"
	"time"
)

// runFakeAcker plays the part of Monitor.Run's handshake half (the
// cbreak/ESC polling is irrelevant here), acknowledging every pause
// request immediately so the pause/resume rendezvous can be exercised
// without a real terminal, mirroring what Monitor.Run does right after
// MakeRaw/Restore in real use.
func runFakeAcker(m *Monitor, done <-chan struct{}) {
	for {
		if !waitCleared(m.pauseEvt, done) {
			return
		}
		m.pauseAck.Set()
		select {
		case <-done:
			return
		case <-m.pauseEvt.wait():
			m.pauseAck.Clear()
		}
	}
}

// waitCleared blocks until e becomes clear, returning false if done fires
// first. It exists only in this test to drive the fake acker off
// pause_event's clear transition, which *event does not expose directly
// (production code only ever waits for "set").
func waitCleared(e *event, done <-chan struct{}) bool {
	for {
		e.mu.Lock()
		isSet := e.set
		waitCh := e.ch
		e.mu.Unlock()
		if !isSet {
			return true
		}
		select {
		case <-done:
			return false
		case <-waitCh:
		}
	}
}

func TestRequestPauseReceivesAckWhenMonitorRunning(t *testing.T) {
	m := New(0, nil)
	done := make(chan struct{})
	defer close(done)
	go runFakeAcker(m, done)

	acked := m.RequestPause()
	if !acked {
		t.Fatal("expected RequestPause to observe the fake monitor's ack")
	}
	if !m.pauseAck.IsSet() {
		t.Fatal("pause_ack_event should be set while paused")
	}
	m.Resume()
}

func TestRequestPauseTimesOutWithNoMonitor(t *testing.T) {
	m := New(0, nil)
	start := time.Now()
	acked := m.RequestPause()
	elapsed := time.Since(start)

	if acked {
		t.Fatal("expected RequestPause to time out when nothing acknowledges it")
	}
	if elapsed < ackWaitTimeout {
		t.Fatalf("expected RequestPause to wait at least %v, took %v", ackWaitTimeout, elapsed)
	}
	// The confirmation protocol proceeds regardless of the timeout.
	m.Resume()
	if !m.pauseEvt.IsSet() {
		t.Fatal("expected Resume to set pause_event even after a timed-out pause request")
	}
}

func TestResumeClearsAckViaFakeMonitor(t *testing.T) {
	m := New(0, nil)
	done := make(chan struct{})
	defer close(done)
	go runFakeAcker(m, done)

	m.RequestPause()
	m.Resume()

	// Give the fake monitor a moment to observe resume and clear the ack,
	// mirroring the original implementation's own 0.15s settling window.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !m.pauseAck.IsSet() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected pause_ack_event to clear after resume")
}

func TestPauseEventStartsSet(t *testing.T) {
	m := New(0, nil)
	if !m.pauseEvt.IsSet() {
		t.Fatal("pause_event should start set (running state)")
	}
	if m.pauseAck.IsSet() {
		t.Fatal("pause_ack_event should start clear")
	}
}
