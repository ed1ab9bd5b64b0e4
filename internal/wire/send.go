// ABOUTME: Writes the connect handshake and UTF-16 messages as Content-Length frames
// ABOUTME: Every write must go out in full or the whole send is abandoned

package wire

import (
	"fmt"
	"io"
)

// ProtocolVersion is advertised in the connect handshake.
const ProtocolVersion = 1

// SendConnectMessage writes the handshake frame announcing the engine
// version and, when non-empty, the embedding host. The frame has no body.
func SendConnectMessage(w io.Writer, version, embeddingHost string) error {
	buf := make([]byte, 0, SendBufferSize)

	send := func(format string, args ...any) error {
		buf = fmt.Appendf(buf[:0], format, args...)
		return writeAll(w, buf)
	}

	if err := send("Type: connect\r\n"); err != nil {
		return err
	}
	if err := send("V8-Version: %s\r\n", version); err != nil {
		return err
	}
	if err := send("Protocol-Version: %d\r\n", ProtocolVersion); err != nil {
		return err
	}
	if embeddingHost != "" {
		if err := send("Embedding-Host: %s\r\n", embeddingHost); err != nil {
			return err
		}
	}
	if err := send("%s: 0\r\n", ContentLength); err != nil {
		return err
	}
	return send("\r\n")
}

// SendMessage writes text as one frame with a UTF-8 body.
func SendMessage(w io.Writer, text []uint16) error {
	header := fmt.Appendf(make([]byte, 0, SendBufferSize), "%s: %d\r\n", ContentLength, UTF8Length(text))
	if err := writeAll(w, header); err != nil {
		return err
	}
	if err := writeAll(w, []byte("\r\n")); err != nil {
		return err
	}

	var enc Encoder
	for _, unit := range text {
		if chunk := enc.Push(unit); chunk != nil {
			if err := writeAll(w, chunk); err != nil {
				return err
			}
		}
	}
	if chunk := enc.Flush(); len(chunk) > 0 {
		return writeAll(w, chunk)
	}
	return nil
}

func writeAll(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShortWrite, err)
	}
	if n < len(p) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(p))
	}
	return nil
}
