// ABOUTME: Streaming UTF-16 to UTF-8 encoder over a fixed-size send buffer
// ABOUTME: Emits chunks for the socket without ever splitting an encoded surrogate pair

package wire

import (
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// SendBufferSize is the size of the buffer bodies are encoded into
	// before each write.
	SendBufferSize = 80

	// maxUnitBytes is the most bytes a single UTF-16 code unit can add to
	// the buffer.
	maxUnitBytes = 3

	// leadPlaceholderBytes is the width of the provisional encoding written
	// for a lead surrogate until its trail arrives.
	leadPlaceholderBytes = 3
)

// Encoder converts UTF-16 code units to UTF-8 one unit at a time.
//
// A lead surrogate is first written as a 3-byte U+FFFD placeholder. When the
// matching trail follows, the placeholder is replaced by the 4-byte encoding
// of the pair. A lead that is never completed, or a trail without a lead,
// stays U+FFFD.
//
// The zero value is ready to use.
type Encoder struct {
	buf      [SendBufferSize]byte
	pos      int
	prev     uint16
	prevLead bool

	// carryFrom is the offset of placeholder bytes that must move to the
	// front of buf before more output is produced, when carrying is set.
	carryFrom int
	carrying  bool
}

// Push encodes one code unit. It returns a chunk to transmit when the buffer
// can no longer take a worst-case unit, otherwise nil. The chunk aliases the
// encoder's buffer and is only valid until the next Push or Flush.
func (e *Encoder) Push(unit uint16) []byte {
	e.settle()

	switch {
	case unit < 0x80:
		e.buf[e.pos] = byte(unit)
		e.pos++
	case e.prevLead && utf16.IsSurrogate(rune(unit)) && !isLead(unit):
		e.pos -= leadPlaceholderBytes
		r := utf16.DecodeRune(rune(e.prev), rune(unit))
		e.pos += utf8.EncodeRune(e.buf[e.pos:], r)
	case utf16.IsSurrogate(rune(unit)):
		e.pos += utf8.EncodeRune(e.buf[e.pos:], utf8.RuneError)
	default:
		e.pos += utf8.EncodeRune(e.buf[e.pos:], rune(unit))
	}

	e.prev = unit
	e.prevLead = isLead(unit)

	if SendBufferSize-e.pos >= maxUnitBytes {
		return nil
	}

	if e.prevLead {
		// Hold back the lead so its trail can complete the sequence in the
		// next chunk.
		end := e.pos - leadPlaceholderBytes
		e.carryFrom = end
		e.carrying = true
		return e.buf[:end]
	}

	chunk := e.buf[:e.pos]
	e.pos = 0
	return chunk
}

// Flush returns whatever is still buffered and resets the encoder.
func (e *Encoder) Flush() []byte {
	e.settle()
	chunk := e.buf[:e.pos]
	e.pos = 0
	e.prev = 0
	e.prevLead = false
	return chunk
}

// settle moves held-back lead placeholder bytes to the front of the buffer.
func (e *Encoder) settle() {
	if !e.carrying {
		return
	}
	copy(e.buf[:leadPlaceholderBytes], e.buf[e.carryFrom:e.carryFrom+leadPlaceholderBytes])
	e.pos = leadPlaceholderBytes
	e.carrying = false
}

// UTF8Length returns the number of bytes Encoder produces for text.
func UTF8Length(text []uint16) int {
	n := 0
	prevLead := false
	for _, unit := range text {
		switch {
		case unit < 0x80:
			n++
		case unit < 0x800:
			n += 2
		case prevLead && utf16.IsSurrogate(rune(unit)) && !isLead(unit):
			// The pair's 4 bytes replace the lead's 3-byte placeholder.
			n++
		default:
			n += 3
		}
		prevLead = isLead(unit)
	}
	return n
}

// DecodeUTF8 converts a UTF-8 body to UTF-16 code units. Invalid bytes become
// U+FFFD.
func DecodeUTF8(body []byte) []uint16 {
	return utf16.Encode([]rune(string(body)))
}

// EncodeString converts s to UTF-16 code units.
func EncodeString(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// String converts UTF-16 code units back to a Go string.
func String(text []uint16) string {
	return string(utf16.Decode(text))
}

func isLead(unit uint16) bool {
	return unit >= 0xd800 && unit < 0xdc00
}
