// File: server/conn_rx.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Receive side: handshake, one-shot HTTP dispatch, and the inbound frame loop.

package server

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/momentics/wsgate/api"
	"github.com/momentics/wsgate/protocol"
)

// receive runs the receive side and then releases the transmitter.
func (c *Conn) receive() {
	defer c.stopReceiving()
	err := c.serve()
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isClosedErr(err):
		c.log.WithError(err).Debug("stream ended")
	default:
		c.log.WithError(err).Info("connection ended")
	}
}

func (c *Conn) serve() error {
	cfg := c.reg.cfg
	c.setState(StateHandshaking)

	if tc, ok := c.stream.(*tls.Conn); ok {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HandshakeTimeout)
		err := tc.HandshakeContext(ctx)
		cancel()
		if err != nil {
			c.reg.metrics.Add(mHandshake, 1)
			return fmt.Errorf("tls handshake: %w", err)
		}
	}

	raw, rest, err := protocol.ReadRequest(c.stream, cfg.HandshakeTimeout, cfg.MaxHeaderBytes)
	if err != nil {
		return c.fail(err)
	}
	head, err := protocol.ParseRequest(raw)
	if err != nil {
		return c.fail(err)
	}
	head.IP = c.peer

	rule := c.l.router.Resolve(head.Host(), head.Origin(), head.URL)
	if rule == nil {
		return c.fail(api.NewHandshakeError(404, "Path not found", api.ErrPathNotFound))
	}
	c.route(rule, head)

	r := io.MultiReader(bytes.NewReader(rest), c.stream)
	if !head.HasUpgrade() {
		return c.serveHTTP(head, r)
	}
	if err := head.ValidateUpgrade(); err != nil {
		return c.fail(err)
	}
	return c.serveWebSocket(head, bufio.NewReader(r))
}

// fail answers a handshake error with a best-effort response. Transport errors
// are returned without writing anything.
func (c *Conn) fail(err error) error {
	var he *api.HandshakeError
	if !errors.As(err, &he) {
		return err
	}
	c.reg.metrics.Add(mHandshake, 1)
	c.log.WithFields(logrus.Fields{"status": he.Status, "reason": he.Reason}).Info("handshake rejected")
	if werr := c.writeResponse(he.Response()); werr != nil {
		c.log.WithError(werr).Debug("error response not delivered")
	}
	return nil
}

func (c *Conn) writeResponse(resp api.Response) error {
	if t := c.reg.cfg.WriteTimeout; t > 0 {
		c.stream.SetWriteDeadline(time.Now().Add(t))
	}
	return protocol.WriteResponse(c.stream, resp)
}

// serveHTTP handles one plain request and answers it; the connection is not reused.
func (c *Conn) serveHTTP(head *protocol.Head, r io.Reader) error {
	c.setState(StateHTTP)
	c.reg.metrics.Add(mHTTP, 1)

	var body []byte
	_, expect := head.Header[protocol.HeaderExpect]
	length, hasLen := head.Header[protocol.HeaderContentLen]
	hasBody := head.Method == "post" || expect || hasLen
	if hasBody {
		if strings.EqualFold(head.Header[protocol.HeaderExpect], "100-continue") {
			if err := protocol.WriteContinue(c.stream); err != nil {
				return err
			}
		}
		var err error
		if body, err = readBody(r, length, hasLen, c.reg.cfg.MaxBodyBytes); err != nil {
			return c.fail(err)
		}
	}

	resp := c.event(nil, head, body, hasBody)
	c.log.WithFields(logrus.Fields{"method": head.Method, "url": head.URL, "response": string(resp)}).Debug("http request")
	return c.writeResponse(resp)
}

// readBody reads exactly Content-Length bytes, or up to EOF without one.
func readBody(r io.Reader, length string, hasLen bool, limit int64) ([]byte, error) {
	if !hasLen {
		body, err := io.ReadAll(io.LimitReader(r, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > limit {
			return nil, api.NewHandshakeError(413, "Payload too large", api.ErrResourceExhausted)
		}
		return body, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(length), 10, 64)
	if err != nil || n < 0 {
		return nil, api.NewHandshakeError(400, "Bad content length", api.ErrBadRequest)
	}
	if n > limit {
		return nil, api.NewHandshakeError(413, "Payload too large", api.ErrResourceExhausted)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// serveWebSocket runs connect, opens the session and reads frames until the end.
func (c *Conn) serveWebSocket(head *protocol.Head, br *bufio.Reader) error {
	if resp := c.event(c, head, nil, false); !resp.IsOK() {
		c.log.WithField("response", string(resp)).Info("upgrade refused by handler")
		return c.writeResponse(resp)
	}

	c.reg.sessions.Join(head.Session, c)
	c.open(protocol.NewRawBuffer(protocol.SwitchingProtocols(head, c.Path(), c.secure)))
	c.reg.metrics.Add(mSessions, 1)
	c.log.WithFields(logrus.Fields{"url": head.URL, "session": shortToken(head.Session)}).Info("websocket open")

	return c.readFrames(br)
}

func (c *Conn) readFrames(br *bufio.Reader) error {
	cfg := c.reg.cfg
	bp := c.reg.pool
	for {
		h, err := protocol.ReadHeader(br)
		if err != nil {
			return err
		}
		if err := protocol.CheckClientHeader(h, cfg.MaxPayload); err != nil {
			return err
		}
		buf := bp.Get(int(h.Length))
		if err := protocol.ReadPayload(br, h, buf); err != nil {
			bp.Put(buf)
			return err
		}
		c.reg.metrics.Add(mFramesIn, 1)
		c.reg.metrics.Add(mBytesIn, int64(len(buf)))

		switch h.Opcode {
		case protocol.OpcodeText, protocol.OpcodeBinary:
			if err := c.message(buf); err != nil {
				return err
			}
		case protocol.OpcodeClose:
			bp.Put(buf)
			return nil
		case protocol.OpcodePing:
			pong := protocol.NewFrameBuffer(protocol.OpcodePong, buf, func() { bp.Put(buf) })
			c.enqueue(pong)
			pong.Release()
		case protocol.OpcodePong:
			c.pong(buf)
			bp.Put(buf)
		default:
			bp.Put(buf)
		}
	}
}

// message dispatches one data frame. Raw handlers keep the buffer.
func (c *Conn) message(buf []byte) error {
	h := c.rule.Handler
	var resp api.Response
	if h.Raw() {
		resp = c.event(c, nil, buf, true)
	} else {
		v, err := c.reg.codec.Decode(buf)
		c.reg.pool.Put(buf)
		if err != nil {
			return fmt.Errorf("%w: %v", api.ErrProtocol, err)
		}
		resp = c.callValue(v)
	}
	if !resp.IsOK() {
		return fmt.Errorf("closed by handler: %s", string(resp))
	}
	return nil
}

func (c *Conn) callValue(v *structpb.Value) (resp api.Response) {
	defer func() {
		if p := recover(); p != nil {
			c.log.WithField("panic", p).Error("handler panicked")
			resp = api.Status(500, "Internal error")
		}
	}()
	return c.rule.Handler.HandleValue(c, nil, v)
}

// pong records the round trip of one of our timestamped pings.
func (c *Conn) pong(payload []byte) {
	if len(payload) != protocol.PingPayloadLen {
		return
	}
	now := time.Now().UnixMicro()
	sent := int64(binary.BigEndian.Uint64(payload))
	if d := now - sent; d >= 0 && sent > 0 {
		c.rtt.Store(d)
		c.lastPong.Store(now)
	}
}

// shortToken keeps session tokens out of logs beyond a short prefix.
func shortToken(tok string) string {
	if len(tok) > 8 {
		return tok[:8] + "..."
	}
	return tok
}
