// ABOUTME: Tests for the handshake and message writers
// ABOUTME: Verifies exact handshake bytes, framed round trips and short-write handling

package wire

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWriter keeps every Write call separately.
type recordingWriter struct {
	writes [][]byte
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, bytes.Clone(p))
	return len(p), nil
}

func (w *recordingWriter) bytes() []byte {
	return bytes.Join(w.writes, nil)
}

// limitedWriter accepts a fixed number of writes, then fails or writes short.
type limitedWriter struct {
	allowed int
	short   bool
	calls   int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	w.calls++
	if w.calls <= w.allowed {
		return len(p), nil
	}
	if w.short {
		return len(p) / 2, nil
	}
	return 0, errors.New("connection reset")
}

func TestSendConnectMessage(t *testing.T) {
	t.Run("with embedding host", func(t *testing.T) {
		w := &recordingWriter{}
		require.NoError(t, SendConnectMessage(w, "3.14.5.9", "node"))

		want := "Type: connect\r\n" +
			"V8-Version: 3.14.5.9\r\n" +
			"Protocol-Version: 1\r\n" +
			"Embedding-Host: node\r\n" +
			"Content-Length: 0\r\n" +
			"\r\n"
		assert.Equal(t, want, string(w.bytes()))
		assert.Len(t, w.writes, 6, "each line is a separate write")
	})

	t.Run("without embedding host", func(t *testing.T) {
		w := &recordingWriter{}
		require.NoError(t, SendConnectMessage(w, "dev", ""))

		assert.Equal(t, "Type: connect\r\nV8-Version: dev\r\nProtocol-Version: 1\r\nContent-Length: 0\r\n\r\n", string(w.bytes()))
	})

	t.Run("handshake parses as a frame without body", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, SendConnectMessage(&buf, "dev", "host"))

		_, err := ReceiveMessage(&buf, testLogger())
		assert.ErrorIs(t, err, ErrNoBody)
		assert.Zero(t, buf.Len())
	})

	t.Run("aborts on first failed write", func(t *testing.T) {
		for allowed := 0; allowed < 6; allowed++ {
			w := &limitedWriter{allowed: allowed}
			err := SendConnectMessage(w, "dev", "host")
			assert.ErrorIs(t, err, ErrShortWrite)
			assert.Equal(t, allowed+1, w.calls)
		}
	})
}

func TestSendMessage(t *testing.T) {
	t.Run("writes header then body", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, SendMessage(&buf, EncodeString(`{"seq":0,"type":"event"}`)))
		assert.Equal(t, "Content-Length: 24\r\n\r\n{\"seq\":0,\"type\":\"event\"}", buf.String())
	})

	t.Run("content length counts UTF-8 bytes", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, SendMessage(&buf, EncodeString("ü"+grinning)))
		assert.True(t, strings.HasPrefix(buf.String(), "Content-Length: 6\r\n\r\n"))
	})

	t.Run("empty text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, SendMessage(&buf, nil))
		assert.Equal(t, "Content-Length: 0\r\n\r\n", buf.String())
	})

	t.Run("body writes never split a code point", func(t *testing.T) {
		w := &recordingWriter{}
		s := strings.Repeat("ab"+grinning+"ç", 100)
		require.NoError(t, SendMessage(w, EncodeString(s)))

		require.Greater(t, len(w.writes), 3)
		for i, chunk := range w.writes[2:] {
			assert.Truef(t, utf8.Valid(chunk), "write %d: % x", i, chunk)
			assert.LessOrEqual(t, len(chunk), SendBufferSize)
		}
	})

	t.Run("failed write aborts", func(t *testing.T) {
		w := &limitedWriter{allowed: 3}
		err := SendMessage(w, EncodeString(strings.Repeat("q", 500)))
		assert.ErrorIs(t, err, ErrShortWrite)
		assert.Equal(t, 4, w.calls)
	})

	t.Run("short write aborts", func(t *testing.T) {
		w := &limitedWriter{allowed: 1, short: true}
		err := SendMessage(w, EncodeString("hello"))
		assert.ErrorIs(t, err, ErrShortWrite)
		assert.Equal(t, 2, w.calls)
	})
}

func TestSendReceiveRoundTrip(t *testing.T) {
	inputs := []string{
		"a",
		grinning,
		strings.Repeat(grinning, 100),
		strings.Repeat("x", 77) + grinning,
		`{"seq":7,"type":"event","event":"break","body":{"sourceLineText":"  // ✓ 日本語 ` + grinning + `"}}`,
	}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		inputs = append(inputs, randomText(rng, 1+rng.Intn(500)))
	}

	for _, s := range inputs {
		var buf bytes.Buffer
		text := EncodeString(s)
		require.NoError(t, SendMessage(&buf, text))

		body, err := ReceiveMessage(&buf, testLogger())
		require.NoError(t, err)
		assert.Equal(t, text, DecodeUTF8(body))
		assert.Zero(t, buf.Len())
	}
}
