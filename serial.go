// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/grid-x/serial"
)

const (
	// Default serial timeouts
	serialTimeout     = 5 * time.Second
	serialIdleTimeout = 60 * time.Second

	serialMaxReply = 4096
)

var errReplyTooLong = errors.New("reply exceeds maximum length")

// SerialHandler implements the Handler interface over a serial port
// (ASRL resources). Port parameters live in the embedded serial.Config.
type SerialHandler struct {
	// Serial port configuration.
	serial.Config

	Logger      logger
	IdleTimeout time.Duration

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port         io.ReadWriteCloser
	lastActivity time.Time
	closeTimer   *time.Timer
}

// NewSerialHandler creates a serial handler with default configuration
// for the given port, e.g. "/dev/ttyUSB0".
func NewSerialHandler(port string) *SerialHandler {
	return &SerialHandler{
		Config: serial.Config{
			Address: port,
			Timeout: serialTimeout,
		},
		IdleTimeout: serialIdleTimeout,
	}
}

// Connect opens the port.
func (h *SerialHandler) Connect() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.connect()
}

// connect opens the serial port if it is not open. Caller must hold the mutex.
func (h *SerialHandler) connect() error {
	if h.port == nil {
		port, err := serial.Open(&h.Config)
		if err != nil {
			return &ConnectionError{Address: h.Config.Address, Err: err}
		}
		h.port = port
	}
	return nil
}

// Close closes the port. Closing an already closed handler is a no-op.
func (h *SerialHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.close()
}

// close closes the serial port if it is open. Caller must hold the mutex.
func (h *SerialHandler) close() (err error) {
	if h.port != nil {
		err = h.port.Close()
		h.port = nil
	}
	return
}

// Send writes a command with no expected reply.
func (h *SerialHandler) Send(cmd string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.write(cmd)
}

// Query writes a command and reads one reply line.
func (h *SerialHandler) Query(cmd string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.write(cmd); err != nil {
		return "", err
	}
	line, err := h.readLine(cmd, time.Now().Add(h.Config.Timeout))
	if err != nil {
		return "", err
	}
	reply := strings.TrimRight(line, "\r\n")
	h.logf("scpi: recv %q", reply)
	return reply, nil
}

func (h *SerialHandler) write(cmd string) error {
	if err := h.connect(); err != nil {
		return err
	}
	// Start the timer to close when idle
	h.lastActivity = time.Now()
	h.startCloseTimer()

	h.logf("scpi: send %q", cmd)
	if _, err := h.port.Write(terminate(cmd)); err != nil {
		return &TransportError{Command: cmd, Err: err}
	}
	return nil
}

// readLine reads byte-wise until a line terminator arrives or the deadline
// passes. The port read timeout bounds each iteration, so a silent device
// cannot block past the deadline by more than one port timeout.
func (h *SerialHandler) readLine(cmd string, deadline time.Time) (string, error) {
	data := make([]byte, 0, 64)
	buf := make([]byte, 1)

	for {
		if time.Now().After(deadline) {
			return "", &TimeoutError{Command: cmd, Timeout: h.Config.Timeout.String()}
		}
		n, err := h.port.Read(buf)
		if err != nil {
			if isTimeout(err) {
				return "", &TimeoutError{Command: cmd, Timeout: h.Config.Timeout.String()}
			}
			return "", &TransportError{Command: cmd, Err: err}
		}
		if n == 0 {
			continue
		}
		data = append(data, buf[0])
		if buf[0] == '\n' {
			return string(data), nil
		}
		if len(data) >= serialMaxReply {
			return "", &TransportError{Command: cmd, Err: errReplyTooLong}
		}
	}
}

func (h *SerialHandler) startCloseTimer() {
	if h.IdleTimeout <= 0 {
		return
	}
	if h.closeTimer == nil {
		h.closeTimer = time.AfterFunc(h.IdleTimeout, h.closeIdle)
	} else {
		h.closeTimer.Reset(h.IdleTimeout)
	}
}

// closeIdle closes the port if last activity is passed behind IdleTimeout.
func (h *SerialHandler) closeIdle() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.IdleTimeout <= 0 {
		return
	}
	if idle := time.Since(h.lastActivity); idle >= h.IdleTimeout {
		h.logf("scpi: closing port due to idle timeout: %v", idle)
		_ = h.close()
	}
}

func (h *SerialHandler) logf(format string, v ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, v...)
	}
}
