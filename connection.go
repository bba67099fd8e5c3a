/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

// Package dgate implements a sans-I/O core for the Discord real-time
// gateway protocol: a WebSocket framing engine, a streaming zlib
// decompression layer, two wire encodings, a heartbeat/acknowledgement
// supervisor, a session lifecycle manager, and a close-handshake arbiter.
//
// The package produces and consumes bytes only. It never opens a socket,
// never starts a timer, and never spawns a goroutine. Callers own all of
// that; see cmd/dgated for a worked example of wrapping the core with real
// I/O. A Connection is not internally synchronized: it must only be touched
// from a single goroutine at a time, and callers serialize access to it.
package dgate

import (
	"net/url"
	"strconv"
	"time"
)

// Payload is a decoded gateway envelope handed to the caller, either
// because it's a DISPATCH event, because its opcode is not one this package
// handles, or because the Connection was configured with
// WithDispatchHandled(true).
type Payload struct {
	Op       Opcode
	Type     string // event name, only set for DISPATCH
	Sequence *int64
	Data     any // generic map/slice/scalar tree - spec.md's "generic passthrough"
}

// Option configures a Connection at construction time.
type Option func(*Connection)

// WithCompression selects the inbound binary-message compression strategy.
// Defaults to CompressionNone.
func WithCompression(c Compression) Option {
	return func(conn *Connection) {
		conn.compression = c
	}
}

// WithDispatchHandled controls whether opcodes the dispatcher auto-handles
// (HEARTBEAT, HEARTBEAT_ACK, RECONNECT, INVALID_SESSION) are also queued for
// the caller even though a response was already generated. Defaults to
// false, matching the reference implementation.
func WithDispatchHandled(v bool) Option {
	return func(conn *Connection) {
		conn.dispatchHandled = v
	}
}

// Connection is the top-level aggregate: one logical gateway session, which
// may span many underlying TCP connections across repeated calls to
// Reconnect.
type Connection struct {
	uri       string
	resumeURI string

	encoding    Encoding
	compression Compression
	codec       wireCodec

	dispatchHandled bool

	sessionID string
	sequence  *int64

	shouldResume ShouldResume
	acknowledged bool

	heartbeatInterval float64
	latency           latencyRing
	lastHeartbeatSent *time.Time

	attempts int

	textBuffer  []byte
	bytesBuffer []byte
	inflator    *transportInflator

	eventQueue []Payload

	framer *framer
	hs     *handshakeState
}

// NewConnection constructs a Connection targeting uri (as returned by
// Discord's Get Gateway / Get Gateway Bot endpoints) using the given wire
// encoding. Encoding is immutable for the lifetime of the Connection.
func NewConnection(uri string, encoding Encoding, opts ...Option) *Connection {
	c := &Connection{
		uri:          uri,
		encoding:     encoding,
		codec:        codecFor(encoding),
		acknowledged: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resetTransportState()
	return c
}

// resetTransportState (re)initializes everything scoped to a single
// underlying TCP connection. It deliberately never touches session_id,
// sequence, resume_uri, or should_resume - see Reconnect.
func (c *Connection) resetTransportState() {
	c.framer = newFramer()
	c.hs = newHandshakeState()
	c.acknowledged = true
	c.heartbeatInterval = 0
	c.lastHeartbeatSent = nil
	c.textBuffer = nil
	c.bytesBuffer = nil
	if c.compression == CompressionTransportZlibStream {
		c.inflator = newTransportInflator()
	} else {
		c.inflator = nil
	}
}

// Reconnect resets connection-scoped state ahead of establishing a new
// underlying TCP connection, and returns the recommended backoff in
// seconds before attempting it: 2 * (attempts made since the last READY or
// RESUMED), then increments the attempt counter.
func (c *Connection) Reconnect() int {
	backoff := 2 * c.attempts
	c.attempts++
	c.resetTransportState()
	return backoff
}

// Destination returns the (host, port) a caller should open a TCP/TLS
// socket to, derived from resume_uri (if ShouldResume is ResumeYes) or uri.
func (c *Connection) Destination() (string, int) {
	u := c.targetURL()
	host := u.Hostname()
	if port := u.Port(); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			return host, p
		}
	}
	return host, 443
}

// Closing reports whether the WebSocket is in any stage of the close
// handshake; no heartbeat should be sent while this is true.
func (c *Connection) Closing() bool {
	return c.framer.state != csOpen
}

// Latency returns the arithmetic mean of up to the last 5 heartbeat
// round-trip times.
func (c *Connection) Latency() time.Duration {
	return c.latency.mean()
}

// QueryParams returns the query string this Connection will use on its
// next connect(), without the leading '?'.
func (c *Connection) QueryParams() string {
	return c.targetURL().RawQuery
}

// SessionID returns the current session identifier, or "" if none has been
// assigned yet.
func (c *Connection) SessionID() string { return c.sessionID }

// Sequence returns the last sequence number observed, or nil if none.
func (c *Connection) Sequence() *int64 { return c.sequence }

// ShouldResume reports the tri-state resume recommendation left behind by
// the last disconnect (or ResumeUnknown if none has happened yet).
func (c *Connection) ShouldResume() ShouldResume { return c.shouldResume }

// targetURL resolves the endpoint currently in effect, with the library's
// query parameters merged in.
func (c *Connection) targetURL() *url.URL {
	raw := c.uri
	if c.shouldResume == ResumeYes && c.resumeURI != "" {
		raw = c.resumeURI
	}
	return buildGatewayURL(raw, c.encoding, c.compression)
}
