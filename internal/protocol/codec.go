// Package protocol implements the command wire format and the status feed envelopes.
//
// A command travels as a minimal HTTP/1.1 POST whose body is a flat JSON
// object. Every request is answered with the same fixed 200 response; there
// is no error channel back to the sender.
package protocol

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// SuccessResponse is written once per received request frame.
const SuccessResponse = "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{\"success\":true}"

// EncodeRequest renders cmd as the bytes written to the socket.
func EncodeRequest(cmd Command) []byte {
	body := encodeBody(cmd)

	var b bytes.Buffer
	b.Grow(96 + len(body))
	b.WriteString("POST ")
	b.WriteString(cmd.Endpoint())
	b.WriteString(" HTTP/1.1\r\nContent-Type: application/json\r\nContent-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\n\r\n")
	b.Write(body)
	return b.Bytes()
}

func encodeBody(cmd Command) []byte {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	// the variants only hold strings and integers
	_ = enc.Encode(cmd)
	return bytes.TrimSuffix(b.Bytes(), []byte("\n"))
}

// Decode turns a request frame into a command. Field sets are tried in a
// fixed order: text, keycode (modifier defaults to 0), deltaX with deltaY,
// button. A body matching none of them falls back on the request path, so an
// empty click request becomes a left click. Anything else is not a command.
func Decode(f Frame) (Command, bool) {
	fields := map[string]json.RawMessage{}
	if body := bytes.TrimSpace(f.Body); len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, false
		}
	}

	if raw, ok := fields["text"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return Text{Text: s}, true
		}
	}

	if kc, ok := intField(fields, "keycode", 0, math.MaxUint8); ok {
		mod, _ := intField(fields, "modifier", 0, math.MaxUint8)
		return KeyPress{Keycode: uint8(kc), Modifier: uint8(mod)}, true
	}

	dx, okx := intField(fields, "deltaX", math.MinInt8, math.MaxInt8)
	dy, oky := intField(fields, "deltaY", math.MinInt8, math.MaxInt8)
	if okx && oky {
		return MouseMove{DeltaX: int8(dx), DeltaY: int8(dy)}, true
	}

	if raw, ok := fields["button"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return MouseClick{Button: s}, true
		}
	}

	if f.Path() == EndpointClick {
		return MouseClick{Button: "left"}, true
	}
	return nil, false
}

// intField reads an integral JSON number within [lo, hi].
func intField(fields map[string]json.RawMessage, key string, lo, hi int64) (int64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) || f < float64(lo) || f > float64(hi) {
		return 0, false
	}
	return int64(f), true
}
