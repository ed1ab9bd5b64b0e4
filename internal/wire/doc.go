// Package wire implements the framing and text transcoding used on the
// debugger connection.
//
// # Frames
//
// Every frame is a block of ASCII header lines terminated by an empty line,
// optionally followed by a body whose size is given by Content-Length:
//
//	Content-Length: 52\r\n
//	\r\n
//	{"seq":1,"type":"request","command":"disconnect"}
//
// Only Content-Length carries meaning. Other keys are logged and ignored.
// Header lines are read one byte at a time and capped at MaxHeaderLine bytes;
// excess bytes are consumed from the stream but dropped.
//
// # Handshake
//
// SendConnectMessage writes the zero-body frame a front-end receives when its
// connection becomes the active session:
//
//	Type: connect\r\n
//	V8-Version: <engine version>\r\n
//	Protocol-Version: 1\r\n
//	Embedding-Host: <host>\r\n   (only when configured)
//	Content-Length: 0\r\n
//	\r\n
//
// # Text
//
// On the wire bodies are UTF-8; at the engine boundary they are UTF-16 code
// units. Encoder streams UTF-16 into a fixed SendBufferSize buffer and never
// splits the four bytes of a surrogate pair across two writes. Lone
// surrogates encode as U+FFFD so UTF8Length always matches the bytes sent.
//
// # Failures
//
// ReceiveMessage reports why no message was produced: ErrConnectionClosed,
// ErrMalformedHeader, ErrNoBody or ErrIncompleteBody. Callers in this module
// treat all of them as a disconnect.
package wire
