// File: server/conn_tx.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Transmit side. Frames are written strictly in queue order and only while the
// session is open. When the receiver stops, the transmitter tears the
// connection down: queued frames are dropped, a close frame goes out if none
// did, the stream is closed, the close event fires once and the connection
// leaves its listener.

package server

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/momentics/wsgate/protocol"
)

func (c *Conn) transmit() {
	cfg := c.reg.cfg
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	var nextPing time.Time
	pinged := false

loop:
	for {
		c.mu.Lock()
		open := c.state == StateOpen
		var fb *protocol.FrameBuffer
		if open && c.txq.Length() > 0 {
			fb = c.txq.Peek().(*protocol.FrameBuffer)
		}
		c.mu.Unlock()

		if fb != nil {
			err := c.write(fb)
			c.mu.Lock()
			c.txq.Remove()
			if fb.IsClose() && err == nil {
				c.closedByUs = true
				c.state = StateClosing
			}
			done := c.closedByUs
			c.mu.Unlock()
			fb.Release()
			if err != nil {
				if !isClosedErr(err) {
					c.log.WithError(err).Info("write failed")
				}
				break loop
			}
			if done {
				break loop
			}
			if pinged && !fb.IsRaw() {
				nextPing = time.Now().Add(cfg.PingInterval)
			}
			continue
		}

		var tick <-chan time.Time
		if open && cfg.PingInterval > 0 {
			if nextPing.IsZero() {
				nextPing = time.Now().Add(cfg.FirstPing)
			}
			wait := time.Until(nextPing)
			if wait <= 0 {
				c.enqueuePing()
				pinged = true
				nextPing = time.Now().Add(cfg.PingInterval)
				continue
			}
			timer.Reset(wait)
			tick = timer.C
		}

		select {
		case <-c.wake:
		case <-c.stop:
			break loop
		case <-tick:
		}
	}
	c.finish()
}

// write sends one queued buffer, honouring the configured write deadline.
func (c *Conn) write(fb *protocol.FrameBuffer) error {
	if t := c.reg.cfg.WriteTimeout; t > 0 {
		c.stream.SetWriteDeadline(time.Now().Add(t))
	}
	n, err := fb.WriteTo(c.stream)
	if err != nil {
		return err
	}
	c.reg.metrics.Add(mBytesOut, n)
	if !fb.IsRaw() {
		c.reg.metrics.Add(mFramesOut, 1)
		c.log.WithField("opcode", fb.Opcode()).Debug("frame sent")
	}
	return nil
}

// enqueuePing queues a ping carrying the current time in microseconds.
func (c *Conn) enqueuePing() {
	var ts [protocol.PingPayloadLen]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixMicro()))
	fb := protocol.NewFrameBuffer(protocol.OpcodePing, ts[:], nil)
	if c.enqueue(fb) {
		c.reg.metrics.Add(mPings, 1)
	}
	fb.Release()
}

// finish runs once per connection, after the transmit loop has ended.
func (c *Conn) finish() {
	c.mu.Lock()
	dropped := c.txq.Length()
	for c.txq.Length() > 0 {
		c.txq.Remove().(*protocol.FrameBuffer).Release()
	}
	if c.state < StateClosing {
		c.state = StateClosing
	}
	opened, closed := c.opened, c.closedByUs
	c.mu.Unlock()
	if dropped > 0 {
		c.reg.metrics.Add(mDropped, int64(dropped))
	}

	if opened && !closed {
		fb := protocol.CloseFrame()
		if err := c.write(fb); err == nil {
			c.mu.Lock()
			c.closedByUs = true
			c.mu.Unlock()
		}
		fb.Release()
	}
	c.stream.Close()

	// both directions quiesced from here on
	<-c.stop

	if opened {
		c.event(c, nil, nil, false)
		c.reg.sessions.Leave(c.head.Session, c)
		c.log.Info("websocket closed")
	}
	c.l.remove(c)
	c.reg.release()

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
