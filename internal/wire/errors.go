// ABOUTME: Failure kinds reported by the framer and helpers to classify socket errors
// ABOUTME: Distinguishes peer close, bad headers, missing and truncated bodies, short writes

package wire

import (
	"errors"
	"io"
	"net"
	"syscall"
)

var (
	// ErrConnectionClosed means a read returned no data: the peer closed the
	// connection, it was reset, or it was shut down locally.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrMalformedHeader means a Content-Length value was empty, too long or
	// not a decimal number.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrNoBody means the header block declared no body (Content-Length zero
	// or absent).
	ErrNoBody = errors.New("frame has no body")

	// ErrIncompleteBody means the connection ended before Content-Length body
	// bytes arrived.
	ErrIncompleteBody = errors.New("incomplete body")

	// ErrShortWrite means a write to the connection failed or sent fewer
	// bytes than requested.
	ErrShortWrite = errors.New("short write")
)

// IsExpectedClose reports whether err is a normal connection termination:
// EOF, closed connection, broken pipe, or connection reset.
func IsExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
