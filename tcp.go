// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"bufio"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// Default TCP timeouts
	tcpTimeout     = 10 * time.Second
	tcpIdleTimeout = 60 * time.Second
)

// TCPHandler implements the Handler interface over a raw SCPI socket
// (the "scpi-raw" service, typically port 5025 on LXI instruments).
type TCPHandler struct {
	// Dial target, e.g. "10.0.0.7:5025".
	Address string
	// Connect, write and read timeout.
	Timeout time.Duration
	// Idle timeout to close the connection.
	IdleTimeout time.Duration
	// Transmission logger
	Logger logger

	mu           sync.Mutex
	conn         net.Conn
	reader       *bufio.Reader
	closeTimer   *time.Timer
	lastActivity time.Time
}

// NewTCPHandler allocates a TCPHandler with default timeouts.
func NewTCPHandler(address string) *TCPHandler {
	return &TCPHandler{
		Address:     address,
		Timeout:     tcpTimeout,
		IdleTimeout: tcpIdleTimeout,
	}
}

// Connect establishes a new connection to the address in Address.
// Connect and Close are exported so that multiple commands can be issued
// over one session.
func (h *TCPHandler) Connect() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.connect()
}

func (h *TCPHandler) connect() error {
	if h.conn == nil {
		dialer := net.Dialer{Timeout: h.Timeout}
		conn, err := dialer.Dial("tcp", h.Address)
		if err != nil {
			return &ConnectionError{Address: h.Address, Err: err}
		}
		h.conn = conn
		h.reader = bufio.NewReader(conn)
	}
	return nil
}

// Send writes a command with no expected reply.
func (h *TCPHandler) Send(cmd string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.write(cmd)
}

// Query writes a command and reads one reply line.
func (h *TCPHandler) Query(cmd string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.connect(); err != nil {
		return "", err
	}
	// If a reply to a previously timed-out query is still in the buffer,
	// every subsequent reply would pair with the wrong command. Flush
	// stale input before sending.
	h.flushAll()

	if err := h.write(cmd); err != nil {
		return "", err
	}
	line, err := h.reader.ReadString('\n')
	if err != nil {
		return "", h.ioError(cmd, err)
	}
	reply := strings.TrimRight(line, "\r\n")
	h.logf("scpi: recv %q", reply)
	return reply, nil
}

func (h *TCPHandler) write(cmd string) error {
	if err := h.connect(); err != nil {
		return err
	}
	// Set timer to close when idle
	h.lastActivity = time.Now()
	h.startCloseTimer()
	// Set write and read timeout
	var deadline time.Time
	if h.Timeout > 0 {
		deadline = h.lastActivity.Add(h.Timeout)
	}
	if err := h.conn.SetDeadline(deadline); err != nil {
		return &TransportError{Command: cmd, Err: err}
	}
	h.logf("scpi: send %q", cmd)
	if _, err := h.conn.Write(terminate(cmd)); err != nil {
		return h.ioError(cmd, err)
	}
	return nil
}

// Close closes the current connection. Closing an already closed handler
// is a no-op.
func (h *TCPHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.close()
}

// close closes the connection if it is open. Caller must hold the mutex.
func (h *TCPHandler) close() (err error) {
	if h.conn != nil {
		err = h.conn.Close()
		h.conn = nil
		h.reader = nil
	}
	return
}

// flushAll implements a non-blocking read flush of buffered and pending
// input. The read deadline is reset by the next write.
func (h *TCPHandler) flushAll() {
	if h.conn == nil {
		return
	}
	if n := h.reader.Buffered(); n > 0 {
		_, _ = h.reader.Discard(n)
		h.logf("scpi: dropped %d stale buffered bytes", n)
	}
	if err := h.conn.SetReadDeadline(time.Now()); err != nil {
		return
	}
	buf := make([]byte, 1024)
	for {
		n, err := h.conn.Read(buf)
		if n > 0 {
			h.logf("scpi: dropped %d stale bytes", n)
		}
		if err != nil || n == 0 {
			return
		}
	}
}

func (h *TCPHandler) ioError(cmd string, err error) error {
	if isTimeout(err) {
		return &TimeoutError{Command: cmd, Timeout: h.Timeout.String()}
	}
	return &TransportError{Command: cmd, Err: err}
}

func (h *TCPHandler) startCloseTimer() {
	if h.IdleTimeout <= 0 {
		return
	}
	if h.closeTimer == nil {
		h.closeTimer = time.AfterFunc(h.IdleTimeout, h.closeIdle)
	} else {
		h.closeTimer.Reset(h.IdleTimeout)
	}
}

// closeIdle closes the connection if last activity is passed behind IdleTimeout.
func (h *TCPHandler) closeIdle() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.IdleTimeout <= 0 {
		return
	}
	if idle := time.Since(h.lastActivity); idle >= h.IdleTimeout {
		h.logf("scpi: closing connection due to idle timeout: %v", idle)
		_ = h.close()
	}
}

func (h *TCPHandler) logf(format string, v ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, v...)
	}
}

// terminate appends the command terminator if the caller did not.
func terminate(cmd string) []byte {
	if strings.HasSuffix(cmd, "\n") {
		return []byte(cmd)
	}
	return []byte(cmd + "\n")
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
