// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants

package protocol

// Data and control opcodes
const (
	OpcodeContinuation byte = 0x0
	OpcodeText         byte = 0x1
	OpcodeBinary       byte = 0x2
	OpcodeClose        byte = 0x8
	OpcodePing         byte = 0x9
	OpcodePong         byte = 0xA
)

const (
	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // 2 + 8 extended length + 4 mask key

	// Bit masks
	FinBit     = 0x80
	MaskBit    = 0x80
	OpcodeMask = 0x0F
	LenMask    = 0x7F

	// Length markers in the second header byte
	len16Marker = 126
	len64Marker = 127

	// MaxFramePayload is the default per-frame payload limit used when
	// a caller does not configure one.
	MaxFramePayload = 16 << 20

	// PingPayloadLen is the size of the timestamp carried by keep-alive pings.
	PingPayloadLen = 8
)

// Handshake constants.
const (
	WebSocketGUID    = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	WebSocketVersion = "13"
	SessionCookie    = "wssession"

	HeaderUpgrade    = "upgrade"
	HeaderVersion    = "sec-websocket-version"
	HeaderKey        = "sec-websocket-key"
	HeaderHost       = "host"
	HeaderOrigin     = "origin"
	HeaderCookie     = "cookie"
	HeaderAuth       = "authorization"
	HeaderExpect     = "expect"
	HeaderContentLen = "content-length"

	// DefaultMaxHeaderBytes bounds the request line plus headers.
	DefaultMaxHeaderBytes = 16 << 10
)
