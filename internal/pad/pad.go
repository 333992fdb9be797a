// Package pad drives a receiver from the keyboard of a terminal.
package pad

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/term"

	"remotepad/internal/logger"
	"remotepad/internal/manager"
	"remotepad/internal/protocol"
)

var log = logger.For("pad")

const help = "arrows: move  shift+arrows: move faster  alt+l/r/m: click  ctrl+q: quit\r\n"

// Sender delivers commands to the connected receiver.
type Sender interface {
	Send(cmd protocol.Command) error
}

// Pad reads key presses and forwards them as commands.
type Pad struct {
	parser Parser
	sender Sender
}

// New creates a pad that moves the mouse step units per arrow press.
func New(sender Sender, step int) *Pad {
	return &Pad{parser: NewParser(step), sender: sender}
}

type fdReader interface {
	io.Reader
	Fd() uintptr
}

// Run reads in until Ctrl+Q, end of input or ctx is done. When in is a
// terminal it is switched to raw mode and restored afterwards.
func (p *Pad) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if f, ok := in.(fdReader); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		old, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to enable raw mode: %w", err)
		}
		defer term.Restore(fd, old)
	}
	fmt.Fprint(out, help)

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				select {
				case chunks <- append([]byte(nil), buf[:n]...):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var pending []byte
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case chunk := <-chunks:
			pending = append(pending, chunk...)
			actions, n := p.parser.Parse(pending)
			pending = pending[n:]
			for _, a := range actions {
				if a.Quit {
					return nil
				}
				p.send(out, a.Command)
			}
		}
	}
}

func (p *Pad) send(out io.Writer, cmd protocol.Command) {
	err := p.sender.Send(cmd)
	switch {
	case err == nil, errors.Is(err, manager.ErrMoveInFlight):
	default:
		log.Debugf("Send %s: %v", cmd.Endpoint(), err)
		fmt.Fprintf(out, "%v\r\n", err)
	}
}
