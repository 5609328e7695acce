package main

import (
	"errors"
	"io"
	"os"
	"sync"

	"subject-focus/internal/controller"
	"subject-focus/internal/logging"

	"golang.org/x/term"
)

type keyHandler interface {
	HandleKey(k controller.Key) bool
}

// terminal owns stdin while it is in raw mode.
type terminal struct {
	fd          int
	state       *term.State
	restoreOnce sync.Once
}

// startTerminal puts stdin into raw mode and feeds keystrokes to h. When
// stdin is not a terminal the control server is the only input.
func startTerminal(h keyHandler) *terminal {
	t := &terminal{fd: int(os.Stdin.Fd())}
	if !term.IsTerminal(t.fd) {
		logging.Info("stdin is not a terminal, keyboard control disabled")
		return t
	}

	state, err := term.MakeRaw(t.fd)
	if err != nil {
		logging.Warn("Failed to enable raw mode, keyboard control disabled: %v", err)
		return t
	}
	t.state = state
	logging.SetRawTerminal(true)

	go func() {
		if err := readKeys(os.Stdin, h); err != nil {
			logging.Debug("Key reader stopped: %v", err)
		}
	}()
	return t
}

// Interactive reports whether keystrokes are being read.
func (t *terminal) Interactive() bool {
	return t != nil && t.state != nil
}

// Restore returns the terminal to its original mode. It is safe to call
// more than once.
func (t *terminal) Restore() {
	if !t.Interactive() {
		return
	}
	t.restoreOnce.Do(func() {
		logging.SetRawTerminal(false)
		if err := term.Restore(t.fd, t.state); err != nil {
			logging.Warn("Failed to restore terminal: %v", err)
		}
	})
}

// readKeys decodes raw input from r until it ends or quit is pressed.
func readKeys(r io.Reader, h keyHandler) error {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, k := range controller.DecodeKeys(buf[:n]) {
			h.HandleKey(k)
			if k == controller.KeyQuit {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
