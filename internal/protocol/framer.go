package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"remotepad/internal/logger"
)

var log = logger.For("protocol")

// MaxFrameSize bounds how much unterminated data a Framer holds.
const MaxFrameSize = 64 << 10

var (
	headerEnd = []byte("\r\n\r\n")
	jsonStart = []byte(`{["-0123456789tfn`)
)

// Frame is one header block plus its body, carved out of a byte stream.
type Frame struct {
	StartLine string
	Header    map[string]string // keys lower-cased
	Body      []byte
}

// Path returns the request target of a request frame.
func (f Frame) Path() string {
	parts := strings.Fields(f.StartLine)
	if len(parts) < 2 || strings.HasPrefix(parts[0], "HTTP/") {
		return ""
	}
	return parts[1]
}

// Status returns the status code of a response frame, or 0.
func (f Frame) Status() int {
	parts := strings.Fields(f.StartLine)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return 0
	}
	code, _ := strconv.Atoi(parts[1])
	return code
}

// Framer splits a stream into frames. Headers and bodies may arrive split
// across reads or several per read; bytes are held until a frame completes.
//
// The body length comes from Content-Length when present. Without it the
// body is one JSON value. Bytes that cannot open a JSON value, such as the
// next request line, leave the body empty; invalid JSON takes the rest of
// the buffer. A body still incomplete past MaxFrameSize is dropped.
type Framer struct {
	buf []byte
}

// Write appends bytes read from the stream.
func (f *Framer) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	if len(f.buf) > MaxFrameSize && bytes.Index(f.buf, headerEnd) < 0 {
		log.Warnf("Discarding %d bytes without a header terminator", len(f.buf))
		f.buf = f.buf[:0]
	}
	return len(p), nil
}

// Buffered reports how many bytes are waiting for a frame to complete.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Next returns the next complete frame, or false when more bytes are needed.
func (f *Framer) Next() (Frame, bool) {
	idx := bytes.Index(f.buf, headerEnd)
	if idx < 0 {
		return Frame{}, false
	}

	frame := parseHead(f.buf[:idx])
	rest := f.buf[idx+len(headerEnd):]

	var n int
	if cl, ok := frame.Header["content-length"]; ok {
		size, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || size < 0 || size > MaxFrameSize {
			log.Warnf("Dropping frame with bad Content-Length %q", cl)
			f.buf = f.buf[:0]
			return Frame{}, false
		}
		if len(rest) < size {
			return Frame{}, false
		}
		n = size
	} else {
		var complete bool
		n, complete = jsonValueLen(rest)
		if !complete {
			if len(rest) > MaxFrameSize {
				log.Warnf("Dropping frame with %d bytes of unfinished body", len(rest))
				f.buf = f.buf[:0]
			}
			return Frame{}, false
		}
	}

	frame.Body = append([]byte(nil), rest[:n]...)
	f.consume(idx + len(headerEnd) + n)
	return frame, true
}

func (f *Framer) consume(n int) {
	remaining := copy(f.buf, f.buf[n:])
	f.buf = f.buf[:remaining]
}

// jsonValueLen measures the JSON value at the start of b. Nothing but
// whitespace asks for more bytes, and so does truncated JSON. Bytes that
// cannot start a value measure zero. Invalid JSON claims all of b.
func jsonValueLen(b []byte) (int, bool) {
	trimmed := bytes.TrimLeft(b, " \t\r\n")
	if len(trimmed) == 0 {
		return 0, false
	}
	if !bytes.ContainsRune(jsonStart, rune(trimmed[0])) {
		return 0, true
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	var raw json.RawMessage
	err := dec.Decode(&raw)
	switch {
	case err == nil:
		return int(dec.InputOffset()), true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return 0, false
	default:
		return len(b), true
	}
}

func parseHead(head []byte) Frame {
	lines := strings.Split(string(head), "\r\n")
	frame := Frame{
		StartLine: strings.TrimSpace(lines[0]),
		Header:    make(map[string]string, len(lines)-1),
	}
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		frame.Header[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return frame
}
