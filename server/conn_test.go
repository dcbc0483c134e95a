package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/momentics/wsgate/api"
	"github.com/momentics/wsgate/codec"
	"github.com/momentics/wsgate/internal/router"
	"github.com/momentics/wsgate/protocol"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func quietRegistry(t *testing.T, cfg *Config, opts ...Option) *Registry {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Logger = quietLogger()
	r := NewRegistry(cfg, opts...)
	t.Cleanup(func() { r.Close() })
	return r
}

var nopHandler = RawFunc(func(*Conn, *protocol.Head, []byte) api.Response { return api.OK })

// pipeConn returns a connection over net.Pipe past the handshake but not yet
// open, plus the client end. No goroutines are started.
func pipeConn(t *testing.T, reg *Registry, h Handler) (*Conn, net.Conn) {
	t.Helper()
	l := newListener(reg, "pipe", nil, nil, "", "")
	rule, err := l.router.Add(router.Rule[Handler]{Handler: h})
	require.NoError(t, err)
	srv, cli := net.Pipe()
	t.Cleanup(func() { cli.Close() })
	require.True(t, reg.admit())

	c := newConn(l, srv, "192.0.2.1", false)
	c.rule = rule
	c.head = &protocol.Head{URL: "/", Session: "pipe-session", Header: map[string]string{}}
	c.setState(StateHandshaking)
	l.live.Add(c)
	return c, cli
}

func markOpen(c *Conn) {
	c.mu.Lock()
	c.state = StateOpen
	c.opened = true
	c.mu.Unlock()
}

func textFrame(s string) *protocol.FrameBuffer {
	return protocol.NewFrameBuffer(protocol.OpcodeText, []byte(s), nil)
}

// closeAndDrain ends the receive side and consumes the trailing close frame.
func closeAndDrain(t *testing.T, c *Conn, cli net.Conn) {
	t.Helper()
	c.stopReceiving()
	f, err := protocol.ReadFrame(cli, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.OpcodeClose, f.Opcode)
	assert.Eventually(t, func() bool { return c.State() == StateClosed }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, c.Listener().Len())
}

func noPings() *Config {
	cfg := DefaultConfig()
	cfg.PingInterval = 0
	return cfg
}

func TestTransmitOrderSingleSender(t *testing.T) {
	reg := quietRegistry(t, noPings())
	c, cli := pipeConn(t, reg, nopHandler)
	markOpen(c)

	for _, s := range []string{"F1", "F2", "F3"} {
		fb := textFrame(s)
		require.True(t, c.enqueue(fb))
		fb.Release()
	}
	go c.transmit()

	for _, want := range []string{"F1", "F2", "F3"} {
		f, err := protocol.ReadFrame(cli, 0)
		require.NoError(t, err)
		assert.Equal(t, protocol.OpcodeText, f.Opcode)
		assert.Equal(t, want, string(f.Payload))
	}
	closeAndDrain(t, c, cli)
}

func TestTransmitOrderConcurrentSenders(t *testing.T) {
	reg := quietRegistry(t, noPings())
	c, cli := pipeConn(t, reg, nopHandler)
	markOpen(c)
	go c.transmit()

	const perSender = 100
	var wg sync.WaitGroup
	for _, tag := range []string{"a", "b"} {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				fb := textFrame(fmt.Sprintf("%s-%03d", tag, i))
				c.enqueue(fb)
				fb.Release()
			}
		}(tag)
	}

	next := map[string]int{}
	for i := 0; i < 2*perSender; i++ {
		f, err := protocol.ReadFrame(cli, 0)
		require.NoError(t, err)
		tag, num, ok := strings.Cut(string(f.Payload), "-")
		require.True(t, ok)
		n, err := strconv.Atoi(num)
		require.NoError(t, err)
		assert.Equal(t, next[tag], n, "sender %s out of order", tag)
		next[tag] = n + 1
	}
	wg.Wait()
	assert.Equal(t, perSender, next["a"])
	assert.Equal(t, perSender, next["b"])
	closeAndDrain(t, c, cli)
}

func TestSharedBufferOutlivesSender(t *testing.T) {
	reg := quietRegistry(t, noPings())
	conns := make([]*Conn, 3)
	clis := make([]net.Conn, 3)
	for i := range conns {
		conns[i], clis[i] = pipeConn(t, reg, nopHandler)
		markOpen(conns[i])
	}

	var freed atomic.Bool
	fb := protocol.NewFrameBuffer(protocol.OpcodeText, []byte("shared"), func() { freed.Store(true) })
	reg.deliver(conns, fb)
	assert.EqualValues(t, 3, fb.Refs())
	assert.False(t, freed.Load())

	for i, c := range conns {
		go c.transmit()
		f, err := protocol.ReadFrame(clis[i], 0)
		require.NoError(t, err)
		assert.Equal(t, "shared", string(f.Payload))
		want := int32(len(conns) - i - 1)
		assert.Eventually(t, func() bool { return fb.Refs() == want }, time.Second, time.Millisecond)
		if i < len(conns)-1 {
			assert.False(t, freed.Load())
		}
	}
	assert.Eventually(t, freed.Load, time.Second, time.Millisecond)

	for i, c := range conns {
		closeAndDrain(t, c, clis[i])
	}
}

func TestOpenSendsReplyFirst(t *testing.T) {
	reg := quietRegistry(t, noPings())
	c, cli := pipeConn(t, reg, nopHandler)

	fb := textFrame("early")
	require.True(t, c.enqueue(fb))
	fb.Release()

	reply := []byte("HTTP/1.1 101 Switching Protocols\r\n\r\n")
	c.open(protocol.NewRawBuffer(reply))
	go c.transmit()

	got := make([]byte, len(reply))
	_, err := io.ReadFull(cli, got)
	require.NoError(t, err)
	assert.Equal(t, reply, got)

	f, err := protocol.ReadFrame(cli, 0)
	require.NoError(t, err)
	assert.Equal(t, "early", string(f.Payload))
	closeAndDrain(t, c, cli)
}

func TestEnqueueRefusedWhenClosing(t *testing.T) {
	reg := quietRegistry(t, noPings())
	c, _ := pipeConn(t, reg, nopHandler)
	c.setState(StateClosing)

	fb := textFrame("late")
	assert.False(t, c.enqueue(fb))
	assert.EqualValues(t, 1, fb.Refs())
	assert.True(t, fb.Release())

	c.setState(StateHTTP)
	assert.False(t, c.enqueue(textFrame("http")))
}

func TestFinishWithoutOpenSkipsCloseEvent(t *testing.T) {
	reg := quietRegistry(t, noPings())
	var events atomic.Int32
	h := RawFunc(func(*Conn, *protocol.Head, []byte) api.Response {
		events.Add(1)
		return api.OK
	})
	c, cli := pipeConn(t, reg, h)
	go c.transmit()
	c.stopReceiving()

	// no close frame for a session that never opened
	_, err := cli.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return c.State() == StateClosed }, time.Second, time.Millisecond)
	assert.Zero(t, events.Load())
	assert.Zero(t, c.Listener().Len())
}

func TestCloseEventFiresOnce(t *testing.T) {
	reg := quietRegistry(t, noPings())
	var closes atomic.Int32
	h := RawFunc(func(c *Conn, head *protocol.Head, data []byte) api.Response {
		if c != nil && head == nil && data == nil {
			closes.Add(1)
		}
		return api.OK
	})
	c, cli := pipeConn(t, reg, h)
	markOpen(c)
	go c.transmit()

	c.shutdown()
	f, err := protocol.ReadFrame(cli, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.OpcodeClose, f.Opcode)

	c.stopReceiving()
	c.stopReceiving()
	assert.Eventually(t, func() bool { return c.State() == StateClosed }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, closes.Load())
}

func TestPongMeasuresRoundTrip(t *testing.T) {
	reg := quietRegistry(t, noPings())
	c, _ := pipeConn(t, reg, nopHandler)
	assert.Zero(t, Ping(c))
	assert.Zero(t, Ping(nil))
	assert.True(t, c.LastPong().IsZero())

	c.pong([]byte("short"))
	assert.True(t, c.LastPong().IsZero())

	var ts [protocol.PingPayloadLen]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().Add(-1500*time.Microsecond).UnixMicro()))
	c.pong(ts[:])
	assert.GreaterOrEqual(t, Ping(c), uint64(1500))
	assert.GreaterOrEqual(t, c.RTT(), 1500*time.Microsecond)
	assert.False(t, c.LastPong().IsZero())
}

func TestHandlerPanicBecomesRefusal(t *testing.T) {
	reg := quietRegistry(t, noPings())
	h := ValueFunc(func(*Conn, *protocol.Head, *structpb.Value) api.Response { panic("boom") })
	c, _ := pipeConn(t, reg, h)
	resp := c.event(c, c.head, nil, false)
	code, ok := resp.StatusCode()
	require.True(t, ok)
	assert.Equal(t, 500, code)
}

// taggedCodec is JSON behind a "v:" prefix.
type taggedCodec struct{}

func (taggedCodec) Name() string { return "tagged" }

func (taggedCodec) Encode(v *structpb.Value) ([]byte, error) {
	b, err := codec.JSON{}.Encode(v)
	if err != nil {
		return nil, err
	}
	return append([]byte("v:"), b...), nil
}

func (taggedCodec) Decode(data []byte) (*structpb.Value, error) {
	rest, ok := strings.CutPrefix(string(data), "v:")
	if !ok {
		return nil, errors.New("missing tag")
	}
	return codec.JSON{}.Decode([]byte(rest))
}

func TestAdaptersUseRegistryCodec(t *testing.T) {
	reg := quietRegistry(t, noPings(), WithCodec(taggedCodec{}))
	c, _ := pipeConn(t, reg, nopHandler)

	var got *structpb.Value
	vf := ValueFunc(func(_ *Conn, _ *protocol.Head, v *structpb.Value) api.Response {
		got = v
		return api.OK
	})
	vf.HandleRaw(c, nil, []byte("v:3"))
	require.NotNil(t, got)
	assert.Equal(t, 3.0, got.GetNumberValue())
	vf.HandleRaw(c, nil, []byte("3"))
	assert.Nil(t, got)

	var raw []byte
	rf := RawFunc(func(_ *Conn, _ *protocol.Head, data []byte) api.Response {
		raw = data
		return api.OK
	})
	rf.HandleValue(c, nil, structpb.NewNumberValue(2))
	assert.Equal(t, "v:2", string(raw))

	// one-shot HTTP events have no connection and use JSON
	rf.HandleValue(nil, &protocol.Head{}, structpb.NewNumberValue(2))
	assert.Equal(t, "2", string(raw))
}

func TestRoutedFieldsReadConcurrently(t *testing.T) {
	reg := quietRegistry(t, noPings())
	c, _ := pipeConn(t, reg, nopHandler)
	rule := c.rule

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			c.route(rule, &protocol.Head{URL: "/r", Session: "S" + strconv.Itoa(i)})
		}
	}()
	for i := 0; i < 1000; i++ {
		assert.NotEmpty(t, c.Session())
		assert.NotNil(t, c.Head())
		assert.NotEmpty(t, c.Path())
	}
	<-done
	assert.Equal(t, "S999", c.Session())
	assert.Equal(t, "/r", c.Path())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}
