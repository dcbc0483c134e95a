package transport_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/wsgate/api"
	"github.com/momentics/wsgate/internal/transport"
)

func TestListenAddr(t *testing.T) {
	cases := []struct {
		bind   string
		secure bool
		want   string
	}{
		{"", false, ":http"},
		{"", true, ":https"},
		{"8080", false, ":8080"},
		{"localhost#8080", false, "localhost:8080"},
		{"127.0.0.1#", true, "127.0.0.1:https"},
		{"[::1]#9000", false, "[::1]:9000"},
		{"127.0.0.1:0", false, "127.0.0.1:0"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, transport.ListenAddr(c.bind, c.secure), c.bind)
	}
	assert.Equal(t, "https", transport.NormalizeBind("", true))
	assert.Equal(t, "x#1", transport.NormalizeBind("x#1", true))
}

func TestListenAppliesOptions(t *testing.T) {
	ln, err := transport.Listen(context.Background(), "127.0.0.1#0", false, 32768)
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()
	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	c.Close()
	<-done
}

func TestListenFailure(t *testing.T) {
	ln, err := transport.Listen(context.Background(), "127.0.0.1#0", false, 0)
	require.NoError(t, err)
	defer ln.Close()

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	_, err = transport.Listen(context.Background(), "127.0.0.1#"+port, false, 0)
	assert.Error(t, err)
}

func TestLoadCredentialsErrors(t *testing.T) {
	_, err := transport.LoadCredentials("", "")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = transport.LoadCredentials("", "/nonexistent/key.pem")
	assert.Error(t, err)
}
