package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequestExactBytes(t *testing.T) {
	got := string(EncodeRequest(KeyPress{Keycode: 0x04, Modifier: 0x02}))
	want := "POST /keyboard/key HTTP/1.1\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: 26\r\n" +
		"\r\n" +
		`{"keycode":4,"modifier":2}`
	assert.Equal(t, want, got)
}

func TestEncodeBodies(t *testing.T) {
	cases := []struct {
		cmd      Command
		endpoint string
		body     string
	}{
		{Text{Text: "a<b>&c"}, "/keyboard/text", `{"text":"a<b>&c"}`},
		{MouseMove{DeltaX: 5, DeltaY: -3}, "/mouse/move", `{"deltaX":5,"deltaY":-3}`},
		{MouseClick{Button: "right"}, "/mouse/click", `{"button":"right"}`},
	}
	for _, c := range cases {
		f := mustFrame(t, EncodeRequest(c.cmd))
		assert.Equal(t, "POST "+c.endpoint+" HTTP/1.1", f.StartLine)
		assert.Equal(t, c.endpoint, f.Path())
		assert.Equal(t, c.body, string(f.Body))
		assert.Equal(t, "application/json", f.Header["content-type"])
	}
}

func TestMouseMoveRoundTrip(t *testing.T) {
	cmd, ok := Decode(mustFrame(t, EncodeRequest(MouseMove{DeltaX: 5, DeltaY: -3})))
	require.True(t, ok)
	assert.Equal(t, MouseMove{DeltaX: 5, DeltaY: -3}, cmd)

	for _, v := range []int8{-127, -1, 0, 1, 127} {
		cmd, ok := Decode(mustFrame(t, EncodeRequest(MouseMove{DeltaX: v, DeltaY: -v})))
		require.True(t, ok)
		assert.Equal(t, MouseMove{DeltaX: v, DeltaY: -v}, cmd)
	}
}

func TestDecodeFieldPriority(t *testing.T) {
	cases := []struct {
		name string
		path string
		body string
		want Command
	}{
		{"text wins", "/mouse/click", `{"text":"hi","button":"left"}`, Text{Text: "hi"}},
		{"keycode without modifier", "/keyboard/key", `{"keycode":40}`, KeyPress{Keycode: 40}},
		{"malformed modifier defaults", "/keyboard/key", `{"keycode":40,"modifier":"x"}`, KeyPress{Keycode: 40}},
		{"keycode before move", "/", `{"keycode":4,"modifier":2,"deltaX":1,"deltaY":1}`, KeyPress{4, 2}},
		{"move", "/whatever", `{"deltaX":-10,"deltaY":20}`, MouseMove{-10, 20}},
		{"button", "/", `{"button":"middle"}`, MouseClick{Button: "middle"}},
		{"bad text type falls through", "/", `{"text":1,"button":"left"}`, MouseClick{Button: "left"}},
		{"empty click body", "/mouse/click", `{}`, MouseClick{Button: "left"}},
		{"no click body", "/mouse/click", ``, MouseClick{Button: "left"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cmd, ok := Decode(Frame{StartLine: "POST " + c.path + " HTTP/1.1", Body: []byte(c.body)})
			require.True(t, ok)
			assert.Equal(t, c.want, cmd)
		})
	}
}

func TestDecodeIgnoresUnroutable(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"foo":1}`,
		`{"deltaX":1}`,
		`{"deltaX":200,"deltaY":0}`,
		`{"keycode":256}`,
		`{"keycode":-1}`,
		`{"keycode":1.5}`,
		`not json`,
		`[1,2]`,
	}
	for _, b := range bodies {
		_, ok := Decode(Frame{StartLine: "POST /keyboard/key HTTP/1.1", Body: []byte(b)})
		assert.Falsef(t, ok, "body %s", b)
	}
}

func TestFramerFragmentedHeader(t *testing.T) {
	wire := EncodeRequest(Text{Text: "hello"})
	var f Framer
	for i := 0; i < len(wire)-1; i++ {
		_, _ = f.Write(wire[i : i+1])
		_, ok := f.Next()
		require.Falsef(t, ok, "frame completed early at byte %d", i)
	}
	_, _ = f.Write(wire[len(wire)-1:])
	frame, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, `{"text":"hello"}`, string(frame.Body))
	assert.Zero(t, f.Buffered())
}

func TestFramerCoalescedRequests(t *testing.T) {
	var wire []byte
	wire = append(wire, EncodeRequest(KeyPress{Keycode: 4})...)
	wire = append(wire, EncodeRequest(MouseClick{Button: "left"})...)
	wire = append(wire, EncodeRequest(MouseMove{DeltaX: 1})[:20]...)

	var f Framer
	_, _ = f.Write(wire)

	a, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, EndpointKey, a.Path())
	b, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, EndpointClick, b.Path())
	_, ok = f.Next()
	assert.False(t, ok)
	assert.Equal(t, 20, f.Buffered())
}

func TestFramerWithoutContentLength(t *testing.T) {
	var f Framer
	_, _ = f.Write([]byte("POST /keyboard/text HTTP/1.1\r\n\r\n{\"text\":\"a"))
	_, ok := f.Next()
	require.False(t, ok)

	_, _ = f.Write([]byte("b\"}POST /mouse/click HTTP/1.1\r\n\r\n{}"))
	first, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, `{"text":"ab"}`, string(first.Body))

	second, ok := f.Next()
	require.True(t, ok)
	cmd, ok := Decode(second)
	require.True(t, ok)
	assert.Equal(t, MouseClick{Button: "left"}, cmd)
}

func TestFramerBodylessRequestDoesNotSwallowTheNext(t *testing.T) {
	var f Framer
	_, _ = f.Write([]byte("POST /mouse/click HTTP/1.1\r\n\r\n"))
	_, ok := f.Next()
	require.False(t, ok, "a body may still follow")

	_, _ = f.Write(EncodeRequest(Text{Text: "hello"}))

	var cmds []Command
	for {
		frame, ok := f.Next()
		if !ok {
			break
		}
		if cmd, ok := Decode(frame); ok {
			cmds = append(cmds, cmd)
		}
	}
	assert.Equal(t, []Command{MouseClick{Button: "left"}, Text{Text: "hello"}}, cmds)
	assert.Zero(t, f.Buffered())
}

func TestFramerDropsUnfinishedBodyPastLimit(t *testing.T) {
	var f Framer
	header := "POST /keyboard/text HTTP/1.1\r\n\r\n"
	_, _ = f.Write([]byte(header + `{"text":"`))
	chunk := bytes.Repeat([]byte("a"), 4<<10)
	for i := 0; i < 256; i++ {
		_, _ = f.Write(chunk)
		_, ok := f.Next()
		require.False(t, ok)
		require.LessOrEqualf(t, f.Buffered(), MaxFrameSize+len(header)+len(chunk), "after chunk %d", i)
	}

	_, _ = f.Write(EncodeRequest(KeyPress{Keycode: 4}))
	frame, ok := f.Next()
	require.True(t, ok)
	cmd, ok := Decode(frame)
	require.True(t, ok)
	assert.Equal(t, KeyPress{Keycode: 4}, cmd)
}

func TestFramerResponse(t *testing.T) {
	var f Framer
	_, _ = f.Write([]byte(SuccessResponse + SuccessResponse))
	for i := 0; i < 2; i++ {
		r, ok := f.Next()
		require.True(t, ok)
		assert.Equal(t, 200, r.Status())
		assert.Equal(t, "", r.Path())
		assert.Equal(t, `{"success":true}`, string(r.Body))
	}
}

func TestFramerDiscardsOversizedGarbage(t *testing.T) {
	var f Framer
	_, _ = f.Write(make([]byte, MaxFrameSize+1))
	assert.Zero(t, f.Buffered())

	_, _ = f.Write([]byte("POST / HTTP/1.1\r\nContent-Length: 999999\r\n\r\n"))
	_, ok := f.Next()
	assert.False(t, ok)
	assert.Zero(t, f.Buffered())
}

func mustFrame(t *testing.T, wire []byte) Frame {
	t.Helper()
	var f Framer
	_, _ = f.Write(wire)
	frame, ok := f.Next()
	require.True(t, ok)
	return frame
}
