package protocol_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/wsgate/api"
	"github.com/momentics/wsgate/protocol"
)

func render(t *testing.T, r api.Response) string {
	t.Helper()
	var b bytes.Buffer
	require.NoError(t, protocol.WriteResponse(&b, r))
	return b.String()
}

func TestResponseMiniLanguage(t *testing.T) {
	out := render(t, api.OK)
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 204 No content\r\n"))
	assert.NotContains(t, out, "Content-Length")

	out = render(t, api.Text("hello"))
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, out, "Content-Type: text/plain\r\n")
	assert.Contains(t, out, "Content-Length: 5\r\n")
	assert.Contains(t, out, "Connection: close\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nhello"))

	out = render(t, api.Redirect("/login"))
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 302 Found\r\n"))
	assert.Contains(t, out, "Location: /login\r\n")

	out = render(t, api.NoContent())
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 204 No content\r\n"))

	out = render(t, api.Unauthorized("Members"))
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 401 Unauthorized\r\n"))
	assert.Contains(t, out, "WWW-Authenticate: Basic realm=\"Members\"\r\n")
	assert.True(t, strings.HasSuffix(out, "Login required"))

	out = render(t, api.Status(403, "Forbidden"))
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 403 Forbidden\r\n"))
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nForbidden"))

	out = render(t, "something broke")
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 500 something broke\r\n"))
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nsomething broke"))

	out = render(t, "bad\r\nInjected: yes")
	assert.NotContains(t, out, "\r\nInjected: yes\r\n")
}

func TestResponseFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "logo.svg")
	require.NoError(t, os.WriteFile(name, []byte("<svg/>"), 0o644))

	out := render(t, api.File(name))
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, out, "Content-Type: image/svg+xml\r\n")
	assert.Contains(t, out, "Content-Length: 6\r\n")
	assert.True(t, strings.HasSuffix(out, "<svg/>"))

	out = render(t, api.File(filepath.Join(dir, "missing.txt")))
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 404 Not found\r\n"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", protocol.ContentType("a/b.PNG"))
	assert.Equal(t, "text/javascript", protocol.ContentType("app.js"))
	assert.Equal(t, "text/plain", protocol.ContentType("README"))
	assert.Equal(t, "text/wsgx", protocol.ContentType("x.wsgx"))
}

func TestResponseStatusCode(t *testing.T) {
	code, ok := api.Status(404, "Not found").StatusCode()
	assert.True(t, ok)
	assert.Equal(t, 404, code)

	_, ok = api.Text("404 x").StatusCode()
	assert.False(t, ok)
	_, ok = api.Response("40x y").StatusCode()
	assert.False(t, ok)
}
