package protocol_test

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/wsgate/api"
	"github.com/momentics/wsgate/protocol"
)

func TestComputeAcceptKeyRFCExample(t *testing.T) {
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", protocol.ComputeAcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

const upgradeRequest = "GET /chat?room=1 HTTP/1.1\r\n" +
	"Host: example.com:8080\r\n" +
	"Upgrade: WebSocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"Cookie: theme=dark; wssession=ABCDEF\r\n" +
	"\r\n"

func TestValidateUpgrade(t *testing.T) {
	h, err := protocol.ParseRequest([]byte(upgradeRequest))
	require.NoError(t, err)
	require.True(t, h.HasUpgrade())
	require.NoError(t, h.ValidateUpgrade())

	bad := []struct {
		mutate func(*protocol.Head)
		reason string
	}{
		{func(h *protocol.Head) { h.Method = "post" }, "Bad method (not GET)"},
		{func(h *protocol.Head) { h.Header["upgrade"] = "h2c" }, "Bad upgrade header (not websocket)"},
		{func(h *protocol.Head) { h.Header["sec-websocket-version"] = "8" }, "Bad websocket version (not 13)"},
		{func(h *protocol.Head) { delete(h.Header, "sec-websocket-key") }, "No websocket key"},
	}
	for _, b := range bad {
		h, err := protocol.ParseRequest([]byte(upgradeRequest))
		require.NoError(t, err)
		b.mutate(h)
		err = h.ValidateUpgrade()
		var he *api.HandshakeError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, 400, he.Status)
		assert.Equal(t, b.reason, he.Reason)
	}
}

func TestSwitchingProtocols(t *testing.T) {
	h, err := protocol.ParseRequest([]byte(upgradeRequest))
	require.NoError(t, err)

	resp := string(protocol.SwitchingProtocols(h, "/chat", false))
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n"))
	assert.Contains(t, resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n")
	assert.Contains(t, resp, "Set-Cookie: wssession=ABCDEF; Path=/chat; Domain=example.com\r\n")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\n"))

	resp = string(protocol.SwitchingProtocols(h, "", true))
	assert.Contains(t, resp, "Path=/chat; Domain=example.com; Secure\r\n")
}

func TestReadRequestAcrossReads(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	go func() {
		// split inside the terminator and send a frame prefix behind it
		cli.Write([]byte(upgradeRequest[:len(upgradeRequest)-3]))
		cli.Write([]byte("\n\r\nXYZ"))
	}()

	raw, rest, err := protocol.ReadRequest(srv, time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, upgradeRequest, string(raw))
	assert.Equal(t, "XYZ", string(rest))
}

func TestReadRequestTimeout(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	go cli.Write([]byte("GET / HTTP/1.1\r\n"))

	_, _, err := protocol.ReadRequest(srv, 50*time.Millisecond, 0)
	var he *api.HandshakeError
	require.True(t, errors.As(err, &he), "got %v", err)
	assert.Equal(t, 408, he.Status)
	assert.ErrorIs(t, err, api.ErrHandshakeTimeout)
}

func TestReadRequestEOF(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()

	go func() {
		cli.Write([]byte("GET / HTTP/1.1\r\n"))
		cli.Close()
	}()

	_, _, err := protocol.ReadRequest(srv, time.Second, 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadRequestTooLarge(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	go cli.Write([]byte("GET / HTTP/1.1\r\nX-Big: " + strings.Repeat("a", 4096)))

	_, _, err := protocol.ReadRequest(srv, time.Second, 1024)
	assert.ErrorIs(t, err, api.ErrHeaderTooLarge)
}
