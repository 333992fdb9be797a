package protocol

// Request paths, one per command variant.
const (
	EndpointText  = "/keyboard/text"
	EndpointKey   = "/keyboard/key"
	EndpointMove  = "/mouse/move"
	EndpointClick = "/mouse/click"
)

// Command is one of Text, KeyPress, MouseMove or MouseClick.
type Command interface {
	// Endpoint is the request path the command is sent to.
	Endpoint() string
	isCommand()
}

// Text types a string on the receiver.
type Text struct {
	Text string `json:"text"`
}

// KeyPress presses one HID usage with a HID modifier mask held.
type KeyPress struct {
	Keycode  uint8 `json:"keycode"`
	Modifier uint8 `json:"modifier"`
}

// MouseMove moves the cursor relative to its position. Positive DeltaY is up.
type MouseMove struct {
	DeltaX int8 `json:"deltaX"`
	DeltaY int8 `json:"deltaY"`
}

// MouseClick clicks "left", "right" or "middle".
type MouseClick struct {
	Button string `json:"button"`
}

func (Text) Endpoint() string       { return EndpointText }
func (KeyPress) Endpoint() string   { return EndpointKey }
func (MouseMove) Endpoint() string  { return EndpointMove }
func (MouseClick) Endpoint() string { return EndpointClick }

func (Text) isCommand()       {}
func (KeyPress) isCommand()   {}
func (MouseMove) isCommand()  {}
func (MouseClick) isCommand() {}
