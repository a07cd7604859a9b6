package messaging

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-zeromq/zmq4"
)

// transport is the part of zmq4.Socket a Socket uses.
type transport interface {
	Listen(endpoint string) error
	Dial(endpoint string) error
	Send(msg zmq4.Msg) error
	SendMulti(msg zmq4.Msg) error
	Recv() (zmq4.Msg, error)
	SetOption(name string, value interface{}) error
	Close() error
}

var (
	errStreamClosed = errors.New("stream socket closed")
	errStreamFrames = errors.New("stream socket: send needs a peer identity and a data frame")
	errUnknownPeer  = errors.New("stream socket: unknown peer identity")
)

const streamInbox = 64

// streamSocket is a raw TCP socket with ZeroMQ STREAM semantics: every
// received message is [identity, data], an empty data frame announces a
// connection or a disconnection, and sending [identity, ""] closes that peer.
type streamSocket struct {
	ctx   context.Context
	inbox chan zmq4.Msg
	done  chan struct{}

	mu        sync.Mutex
	nextPeer  uint32
	peers     map[string]net.Conn
	listeners []net.Listener

	closeOnce sync.Once
}

var _ transport = (*streamSocket)(nil)

func newStreamSocket(ctx context.Context) *streamSocket {
	return &streamSocket{
		ctx:   ctx,
		inbox: make(chan zmq4.Msg, streamInbox),
		done:  make(chan struct{}),
		peers: make(map[string]net.Conn),
	}
}

// tcpAddress turns tcp://host:port into host:port; "*" means every interface.
func tcpAddress(endpoint string) (string, error) {
	addr, ok := strings.CutPrefix(endpoint, "tcp://")
	if !ok {
		return "", fmt.Errorf("stream socket: only tcp:// endpoints are supported, got %q", endpoint)
	}
	if host, port, err := net.SplitHostPort(addr); err == nil && host == "*" {
		addr = net.JoinHostPort("", port)
	}
	return addr, nil
}

func (s *streamSocket) Listen(endpoint string) error {
	addr, err := tcpAddress(endpoint)
	if err != nil {
		return err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(s.ctx, "tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		_ = ln.Close()
		return errStreamClosed
	}
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()

	go s.accept(ln)
	return nil
}

func (s *streamSocket) accept(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.attach(conn)
	}
}

func (s *streamSocket) Dial(endpoint string) error {
	addr, err := tcpAddress(endpoint)
	if err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(s.ctx, "tcp", addr)
	if err != nil {
		return err
	}
	s.attach(conn)
	return nil
}

// attach registers conn under a fresh identity, announces it and starts
// reading from it.
func (s *streamSocket) attach(conn net.Conn) {
	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.nextPeer++
	id := make([]byte, 5)
	binary.BigEndian.PutUint32(id[1:], s.nextPeer)
	s.peers[string(id)] = conn
	s.mu.Unlock()

	s.deliver(id, nil)
	go s.read(id, conn)
}

func (s *streamSocket) read(id []byte, conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !s.deliver(id, data) {
				return
			}
		}
		if err != nil {
			break
		}
	}

	s.mu.Lock()
	_, known := s.peers[string(id)]
	delete(s.peers, string(id))
	s.mu.Unlock()
	_ = conn.Close()
	if known {
		s.deliver(id, nil)
	}
}

func (s *streamSocket) deliver(id, data []byte) bool {
	if data == nil {
		data = []byte{}
	}
	select {
	case s.inbox <- zmq4.NewMsgFrom(id, data):
		return true
	case <-s.done:
		return false
	case <-s.ctx.Done():
		return false
	}
}

func (s *streamSocket) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *streamSocket) Send(zmq4.Msg) error { return errStreamFrames }

// SendMulti writes the data frames to the peer named by the first frame. A
// single empty data frame closes the connection to that peer.
func (s *streamSocket) SendMulti(msg zmq4.Msg) error {
	if len(msg.Frames) < 2 {
		return errStreamFrames
	}
	id := string(msg.Frames[0])

	s.mu.Lock()
	conn, ok := s.peers[id]
	if ok && len(msg.Frames) == 2 && len(msg.Frames[1]) == 0 {
		delete(s.peers, id)
	}
	s.mu.Unlock()
	if !ok {
		return errUnknownPeer
	}

	if len(msg.Frames) == 2 && len(msg.Frames[1]) == 0 {
		return conn.Close()
	}
	for _, frame := range msg.Frames[1:] {
		if _, err := conn.Write(frame); err != nil {
			return err
		}
	}
	return nil
}

func (s *streamSocket) Recv() (zmq4.Msg, error) {
	select {
	case msg := <-s.inbox:
		return msg, nil
	case <-s.done:
		return zmq4.Msg{}, errStreamClosed
	case <-s.ctx.Done():
		return zmq4.Msg{}, s.ctx.Err()
	}
}

func (s *streamSocket) SetOption(name string, _ interface{}) error {
	return fmt.Errorf("stream socket: option %q not supported", name)
}

func (s *streamSocket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		listeners := s.listeners
		peers := s.peers
		s.listeners = nil
		s.peers = make(map[string]net.Conn)
		s.mu.Unlock()

		for _, ln := range listeners {
			_ = ln.Close()
		}
		for _, conn := range peers {
			_ = conn.Close()
		}
	})
	return nil
}
