// ABOUTME: Tests for the streaming UTF-16 to UTF-8 encoder and length calculation
// ABOUTME: Covers surrogate pairs straddling the flush threshold and lone surrogates

package wire

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const grinning = "\U0001F600"

// encodeChunks runs text through an Encoder and returns every chunk it emits.
func encodeChunks(text []uint16) [][]byte {
	var enc Encoder
	var chunks [][]byte
	for _, unit := range text {
		if chunk := enc.Push(unit); chunk != nil {
			chunks = append(chunks, bytes.Clone(chunk))
		}
	}
	if tail := enc.Flush(); len(tail) > 0 {
		chunks = append(chunks, bytes.Clone(tail))
	}
	return chunks
}

func TestEncoder_ASCII(t *testing.T) {
	s := strings.Repeat("a", 200)
	chunks := encodeChunks(EncodeString(s))

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), SendBufferSize)
	}
	assert.Equal(t, s, string(bytes.Join(chunks, nil)))
}

func TestEncoder_SurrogatePairAtFlushBoundary(t *testing.T) {
	// 77 ASCII bytes leave exactly room for the lead placeholder, which
	// fills the buffer and forces a flush right after the lead.
	s := strings.Repeat("x", 77) + grinning
	chunks := encodeChunks(EncodeString(s))

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("x", 77), string(chunks[0]))
	assert.Equal(t, grinning, string(chunks[1]))
	assert.Len(t, chunks[1], 4)
}

func TestEncoder_ChunksNeverSplitCodePoints(t *testing.T) {
	for prefix := 60; prefix <= 90; prefix++ {
		s := strings.Repeat("y", prefix) + grinning + "é" + grinning + grinning + "€" + strings.Repeat(grinning, 40)
		chunks := encodeChunks(EncodeString(s))

		for i, c := range chunks {
			assert.Truef(t, utf8.Valid(c), "prefix %d chunk %d splits a sequence: % x", prefix, i, c)
			assert.LessOrEqual(t, len(c), SendBufferSize)
		}
		assert.Equal(t, s, string(bytes.Join(chunks, nil)), "prefix %d", prefix)
	}
}

func TestEncoder_LoneSurrogates(t *testing.T) {
	tests := []struct {
		name string
		text []uint16
		want string
	}{
		{"lone lead", []uint16{0xd83d, 'a'}, "�a"},
		{"lone trail", []uint16{'a', 0xde00}, "a�"},
		{"lead at end", []uint16{'a', 0xd83d}, "a�"},
		{"two leads then trail", []uint16{0xd83d, 0xd83d, 0xde00}, "�" + grinning},
		{"pair then trail", []uint16{0xd83d, 0xde00, 0xde00}, grinning + "�"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bytes.Join(encodeChunks(tt.text), nil)
			assert.Equal(t, tt.want, string(got))
			assert.Equal(t, len(got), UTF8Length(tt.text))
		})
	}
}

func TestEncoder_LeadAtFlushBoundaryWithoutTrail(t *testing.T) {
	text := append(EncodeString(strings.Repeat("z", 77)), 0xd83d)
	got := bytes.Join(encodeChunks(text), nil)

	assert.Equal(t, strings.Repeat("z", 77)+"�", string(got))
	assert.Equal(t, len(got), UTF8Length(text))
}

func TestEncoder_Reuse(t *testing.T) {
	var enc Encoder
	for _, unit := range EncodeString("abc") {
		enc.Push(unit)
	}
	assert.Equal(t, "abc", string(enc.Flush()))

	enc.Push(0xd83d)
	enc.Flush()
	enc.Push(0xde00)
	assert.Equal(t, "�", string(enc.Flush()), "a flushed lead must not pair with a later trail")
}

func TestUTF8Length(t *testing.T) {
	for _, s := range []string{"", "ascii", "ü", "€uro", grinning, "mixed ü € " + grinning + " end"} {
		assert.Equal(t, len(s), UTF8Length(EncodeString(s)), s)
	}
}

func TestDecodeUTF8(t *testing.T) {
	assert.Equal(t, EncodeString("héllo "+grinning), DecodeUTF8([]byte("héllo "+grinning)))
	assert.Equal(t, []uint16{'a', 0xfffd, 'b'}, DecodeUTF8([]byte{'a', 0xff, 'b'}))
	assert.Empty(t, DecodeUTF8(nil))
}

func TestUTF8Length_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		s := randomText(rng, rng.Intn(300))
		text := EncodeString(s)
		assert.Equal(t, len(s), UTF8Length(text))
		assert.Equal(t, s, string(bytes.Join(encodeChunks(text), nil)))
	}
}

// randomText builds a string mixing 1-, 2-, 3- and 4-byte code points.
func randomText(rng *rand.Rand, n int) string {
	ranges := [][2]rune{
		{0x20, 0x7e},
		{0xa0, 0x7ff},
		{0x800, 0xd7ff},
		{0xe000, 0xfffd},
		{0x10000, 0x10ffff},
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		r := ranges[rng.Intn(len(ranges))]
		b.WriteRune(r[0] + rune(rng.Intn(int(r[1]-r[0]+1))))
	}
	return b.String()
}
