package messaging

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
)

var errNoFrames = errors.New("message has no frames")

// Socket is a per-node endpoint created from a Context. It is owned by the
// node that created it and must not be shared with other nodes.
type Socket struct {
	owner   *Context
	pattern Pattern
	sock    transport

	closeOnce sync.Once
	closeErr  error
}

// Pattern returns the socket pattern.
func (s *Socket) Pattern() Pattern { return s.pattern }

// Bind listens on endpoint (tcp://, ipc://, inproc://). Stream sockets
// accept tcp:// only.
func (s *Socket) Bind(endpoint string) error {
	if err := s.sock.Listen(endpoint); err != nil {
		return fmt.Errorf("bind %s: %w", endpoint, err)
	}
	return nil
}

// Connect dials endpoint.
func (s *Socket) Connect(endpoint string) error {
	if err := s.sock.Dial(endpoint); err != nil {
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}
	return nil
}

// Send sends one message made of one or more frames.
func (s *Socket) Send(frames ...[]byte) error {
	switch len(frames) {
	case 0:
		return errNoFrames
	case 1:
		return s.sock.Send(zmq4.NewMsg(frames[0]))
	default:
		return s.sock.SendMulti(zmq4.NewMsgFrom(frames...))
	}
}

// Recv blocks until a message arrives and returns its frames.
func (s *Socket) Recv() ([][]byte, error) {
	msg, err := s.sock.Recv()
	if err != nil {
		return nil, err
	}
	return msg.Frames, nil
}

// Subscribe adds a topic filter on sub and xsub sockets.
func (s *Socket) Subscribe(topic string) error {
	return s.sock.SetOption(zmq4.OptionSubscribe, topic)
}

// Unsubscribe removes a topic filter.
func (s *Socket) Unsubscribe(topic string) error {
	return s.sock.SetOption(zmq4.OptionUnsubscribe, topic)
}

// Close releases the socket. It is safe to call more than once.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.owner.forget(s)
		s.closeErr = s.sock.Close()
	})
	return s.closeErr
}
