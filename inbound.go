/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

import "time"

// Connect builds the bytes of the HTTP/1.1 Upgrade request that opens the
// gateway connection. Callers write this to a freshly-opened TLS socket to
// Destination() and then feed everything read back in to Receive.
func (c *Connection) Connect() []byte {
	u := c.targetURL()
	requestURI := u.EscapedPath()
	if u.RawQuery != "" {
		requestURI += "?" + u.RawQuery
	}
	return c.hs.buildUpgradeRequest(u.Host, requestURI)
}

// Receive feeds newly-read bytes into the connection. It returns any bytes
// that must be written back to the socket as an automatic protocol
// response (a PONG reply to a PING frame, a non-acknowledging heartbeat
// reply to a HEARTBEAT request, or a close frame for RECONNECT and
// INVALID_SESSION) and an error when this chunk carried
// something the caller must act on:
//
//   - *ConnectionRejected, the instant the upgrade response's status line
//     and headers are known (before its body, if any, has fully arrived).
//   - *RejectedConnectionData, once a rejected upgrade's body is complete.
//   - *CloseDiscordConnection, once the close handshake reaches a terminal
//     state; Data, if non-nil, must be written before the socket is closed.
//   - *ProtocolError, on any framing or decoding violation; the underlying
//     socket must be torn down and, per ShouldReconnect, possibly replaced.
//
// Decoded DISPATCH payloads and payloads with an opcode this package does
// not handle (and, if WithDispatchHandled was set, every other payload) are
// queued internally and drained through Events.
func (c *Connection) Receive(data []byte, now time.Time) ([][]byte, error) {
	if !c.hs.completed {
		outcome, headersJustReady, done, err := c.hs.feed(data)
		if err != nil {
			return nil, err
		}
		if headersJustReady {
			return nil, &ConnectionRejected{Code: c.hs.statusCode, Headers: c.hs.headers}
		}
		if !done {
			return nil, nil
		}
		if !outcome.accepted {
			return nil, &RejectedConnectionData{Data: outcome.body}
		}
		data = outcome.leftover
	}

	events, err := c.framer.feed(data)
	if err != nil {
		return nil, protocolErrorf("%v", err)
	}

	var outbound [][]byte
	for _, ev := range events {
		switch ev.Kind {
		case evPing:
			outbound = append(outbound, c.framer.sendPong(ev.Data))

		case evClose:
			return outbound, c.closeEvent(ev)

		case evText, evBinary:
			full, ready := c.reassemble(ev)
			if !ready {
				continue
			}
			reply, err := c.processMessage(ev.Kind, full, now)
			outbound = append(outbound, reply...)
			if err != nil {
				return outbound, err
			}
		}
	}
	return outbound, nil
}

// reassemble accumulates fragmented text/binary messages; it returns the
// complete message and true once the fin fragment has arrived.
func (c *Connection) reassemble(ev wsEvent) ([]byte, bool) {
	if ev.Kind == evBinary {
		c.bytesBuffer = append(c.bytesBuffer, ev.Data...)
		if !ev.Fin {
			return nil, false
		}
		full := c.bytesBuffer
		c.bytesBuffer = nil
		return full, true
	}
	c.textBuffer = append(c.textBuffer, ev.Data...)
	if !ev.Fin {
		return nil, false
	}
	full := c.textBuffer
	c.textBuffer = nil
	return full, true
}

// processMessage decompresses (if configured) and decodes a complete
// message, then runs it through the opcode dispatch table. It returns any
// automatic protocol response bytes the dispatch table produced (e.g. a
// non-acknowledging heartbeat reply or a close frame), which the caller
// must write back regardless of whether an error is also returned.
func (c *Connection) processMessage(kind wsEventKind, msg []byte, now time.Time) ([][]byte, error) {
	raw := msg
	if kind == evBinary {
		var err error
		switch c.compression {
		case CompressionPayload:
			raw, err = inflatePayloadOnce(msg)
		case CompressionTransportZlibStream:
			raw, err = c.inflator.inflate(msg)
		}
		if err != nil {
			return nil, err
		}
	}

	env, err := c.codec.decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	outcome := c.feedEnvelope(env, now)
	if outcome.err != nil {
		return outcome.outbound, outcome.err
	}
	if outcome.payload != nil {
		c.eventQueue = append(c.eventQueue, *outcome.payload)
	}
	return outcome.outbound, nil
}

// closeEvent builds the terminal error for an inbound close frame, sending
// a reply only when we didn't initiate the handshake ourselves. If the close
// was never explained by something this connection already decided (an
// unexplained peer-initiated close), should_resume defaults to YES, since
// resuming is the conservative choice.
func (c *Connection) closeEvent(ev wsEvent) error {
	if c.shouldResume == ResumeUnknown {
		c.shouldResume = ResumeYes
	}

	var codePtr *int
	if ev.CloseCode != 0 {
		code := int(ev.CloseCode)
		codePtr = &code
	}
	var reasonPtr *string
	if ev.CloseReason != "" {
		reasonPtr = &ev.CloseReason
	}

	var reply []byte
	if c.framer.state == csRemoteClosing {
		reply = c.framer.remoteCloseReply(ev.CloseCode, ev.CloseReason)
	}

	return &CloseDiscordConnection{Data: reply, Code: codePtr, Reason: reasonPtr}
}

// HandshakeEOF is called by the driver when the underlying socket reaches
// EOF while an upgrade rejection's body has neither a Content-Length nor
// chunked framing, so completion can only be detected by the connection
// closing. It returns *RejectedConnectionData with whatever body bytes
// arrived, or nil if the handshake had already completed by other means.
func (c *Connection) HandshakeEOF() error {
	if c.hs.completed {
		return nil
	}
	outcome := c.hs.finalizeRejectionBody()
	if outcome == nil {
		return nil
	}
	return &RejectedConnectionData{Data: outcome.body}
}
