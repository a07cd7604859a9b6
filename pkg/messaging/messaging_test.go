package messaging_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/aretw0/mqlua/pkg/domain"
	"github.com/aretw0/mqlua/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern_AllTwelve(t *testing.T) {
	names := messaging.PatternNames()
	require.Len(t, names, 12)
	for i, name := range names {
		p, err := messaging.ParsePattern(name)
		require.NoError(t, err, name)
		assert.Equal(t, messaging.Pattern(i), p)
		assert.Equal(t, name, p.String())
	}
}

func TestParsePattern_Unknown(t *testing.T) {
	for _, name := range []string{"", "PUB", "publish", "radio"} {
		_, err := messaging.ParsePattern(name)
		assert.ErrorIs(t, err, domain.ErrUnknownPattern, name)
	}
}

func TestNew_CancelledParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := messaging.New(parent)
	assert.ErrorIs(t, err, domain.ErrContextCreation)
}

func TestContext_EveryPatternCreates(t *testing.T) {
	c, err := messaging.New(context.Background())
	require.NoError(t, err)
	defer c.Close()

	for _, name := range messaging.PatternNames() {
		p, err := messaging.ParsePattern(name)
		require.NoError(t, err)
		s, err := c.Socket(p)
		require.NoError(t, err, name)
		assert.Equal(t, p, s.Pattern())
		require.NoError(t, s.Close(), name)
	}
	assert.Equal(t, 0, c.Open())
}

// recvWithin fails the test instead of blocking forever.
func recvWithin(t *testing.T, s *messaging.Socket) [][]byte {
	t.Helper()
	type result struct {
		frames [][]byte
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := s.Recv()
		ch <- result{f, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.frames
	case <-time.After(5 * time.Second):
		require.FailNow(t, "recv timed out")
		return nil
	}
}

func TestContext_StreamConnectExchangesRawBytes(t *testing.T) {
	c, err := messaging.New(context.Background())
	require.NoError(t, err)
	defer c.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s, err := c.Socket(messaging.Stream)
	require.NoError(t, err)
	require.NoError(t, s.Connect("tcp://"+ln.Addr().String()))

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	// Connection notice: identity plus an empty frame.
	hello := recvWithin(t, s)
	require.Len(t, hello, 2)
	id := hello[0]
	assert.NotEmpty(t, id)
	assert.Empty(t, hello[1])

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	var got []byte
	for len(got) < 4 {
		frames := recvWithin(t, s)
		require.Len(t, frames, 2)
		assert.Equal(t, id, frames[0])
		got = append(got, frames[1]...)
	}
	assert.Equal(t, "ping", string(got))

	require.NoError(t, s.Send(id, []byte("pong")))
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf))

	// An empty data frame hangs up on the peer.
	require.NoError(t, s.Send(id, []byte{}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestContext_StreamBindAnnouncesPeers(t *testing.T) {
	c, err := messaging.New(context.Background())
	require.NoError(t, err)
	defer c.Close()

	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := free.Addr().String()
	require.NoError(t, free.Close())

	s, err := c.Socket(messaging.Stream)
	require.NoError(t, err)
	require.NoError(t, s.Bind("tcp://"+addr))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	hello := recvWithin(t, s)
	require.Len(t, hello, 2)
	assert.Empty(t, hello[1])

	require.NoError(t, conn.Close())
	bye := recvWithin(t, s)
	require.Len(t, bye, 2)
	assert.Equal(t, hello[0], bye[0])
	assert.Empty(t, bye[1])
}

func TestContext_StreamRejectsBadUse(t *testing.T) {
	c, err := messaging.New(context.Background())
	require.NoError(t, err)
	defer c.Close()

	s, err := c.Socket(messaging.Stream)
	require.NoError(t, err)
	assert.Error(t, s.Bind("inproc://stream"))
	assert.Error(t, s.Send([]byte("no identity")))
	assert.Error(t, s.Send([]byte("nobody"), []byte("data")))
	assert.Error(t, s.Subscribe(""))
}

func TestContext_PushPullInproc(t *testing.T) {
	c, err := messaging.New(context.Background())
	require.NoError(t, err)
	defer c.Close()

	endpoint := fmt.Sprintf("inproc://push-pull-%d", time.Now().UnixNano())

	pull, err := c.Socket(messaging.Pull)
	require.NoError(t, err)
	require.NoError(t, pull.Bind(endpoint))

	push, err := c.Socket(messaging.Push)
	require.NoError(t, err)
	require.NoError(t, push.Connect(endpoint))

	require.NoError(t, push.Send([]byte("hello"), []byte("world")))

	frames, err := pull.Recv()
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "hello", string(frames[0]))
	assert.Equal(t, "world", string(frames[1]))
}

func TestContext_CloseReleasesSockets(t *testing.T) {
	c, err := messaging.New(context.Background())
	require.NoError(t, err)

	a, err := c.Socket(messaging.Pair)
	require.NoError(t, err)
	_, err = c.Socket(messaging.Dealer)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Open())

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, c.Open())

	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Open())
	require.NoError(t, c.Close())

	_, err = c.Socket(messaging.Pair)
	assert.ErrorIs(t, err, domain.ErrContextClosed)
}

func TestSocket_SendRequiresFrames(t *testing.T) {
	c, err := messaging.New(context.Background())
	require.NoError(t, err)
	defer c.Close()

	s, err := c.Socket(messaging.Push)
	require.NoError(t, err)
	assert.Error(t, s.Send())
}
