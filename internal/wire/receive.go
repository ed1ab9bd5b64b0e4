// ABOUTME: Reads one Content-Length framed message from a debugger connection
// ABOUTME: Parses the header block byte by byte with a bounded line buffer, then reads the body

package wire

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	// ContentLength is the only header key with meaning on the wire.
	ContentLength = "Content-Length"

	// MaxHeaderLine caps the buffered bytes of one header line, CRLF included.
	MaxHeaderLine = 80

	// MaxContentLengthDigits bounds the Content-Length value.
	MaxContentLengthDigits = 7
)

// ReceiveMessage reads one frame from r and returns its body.
//
// It blocks until a full frame arrives or the connection ends. When no body
// can be returned the error wraps one of ErrConnectionClosed,
// ErrMalformedHeader, ErrNoBody or ErrIncompleteBody.
func ReceiveMessage(r io.Reader, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}

	contentLength := 0
	for {
		line, err := readHeaderLine(r)
		if err != nil {
			return nil, err
		}

		// Bare CRLF ends the header block.
		if len(line) == 0 {
			break
		}

		key, value, hasValue := strings.Cut(line, ":")
		value = strings.TrimLeft(value, " ")

		if key != ContentLength {
			if !hasValue {
				value = "(no value)"
			}
			logger.Debug("ignoring header", "key", key, "value", value)
			continue
		}

		n, err := parseContentLength(value, hasValue)
		if err != nil {
			return nil, err
		}
		contentLength = n
	}

	if contentLength == 0 {
		return nil, ErrNoBody
	}

	body := make([]byte, contentLength)
	if received, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: got %d of %d bytes: %w", ErrIncompleteBody, received, contentLength, err)
	}
	return body, nil
}

// readHeaderLine reads up to and including the next CRLF and returns the line
// without it. Bytes past MaxHeaderLine are consumed but not kept.
func readHeaderLine(r io.Reader) (string, error) {
	var buf [MaxHeaderLine]byte
	var one [1]byte
	pos := 0
	var c, prev byte

	for c != '\n' || prev != '\r' {
		prev = c
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return "", fmt.Errorf("%w: reading header: %w", ErrConnectionClosed, err)
		}
		c = one[0]
		if pos < MaxHeaderLine {
			buf[pos] = c
			pos++
		}
	}

	// At least the CRLF was seen, so pos >= 2. An overlong line loses its
	// last two kept bytes instead of the CRLF that was never buffered.
	return string(buf[:pos-2]), nil
}

func parseContentLength(value string, hasValue bool) (int, error) {
	if !hasValue || value == "" {
		return 0, fmt.Errorf("%w: %s has no value", ErrMalformedHeader, ContentLength)
	}
	if len(value) > MaxContentLengthDigits {
		return 0, fmt.Errorf("%w: %s value %q exceeds %d digits", ErrMalformedHeader, ContentLength, value, MaxContentLengthDigits)
	}

	n := 0
	for i := 0; i < len(value); i++ {
		d := value[i]
		if d < '0' || d > '9' {
			return 0, fmt.Errorf("%w: %s value %q is not a number", ErrMalformedHeader, ContentLength, value)
		}
		n = 10*n + int(d-'0')
	}
	return n, nil
}
