/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

import (
	"time"

	"github.com/gobwas/ws"
)

// helloData is the "d" payload of a HELLO envelope.
type helloData struct {
	HeartbeatInterval float64 `json:"heartbeat_interval" msgpack:"heartbeat_interval"`
}

// readyData is the slice of a READY payload this package cares about;
// everything else in the payload is left for the caller to decode from the
// Payload.Data generic tree.
type readyData struct {
	SessionID        string `json:"session_id" msgpack:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url" msgpack:"resume_gateway_url"`
}

// invalidSessionData is the "d" payload of an INVALID_SESSION envelope: a
// bare boolean indicating whether the session can be resumed.
type invalidSessionData bool

// dispatchOutcome carries what feedEnvelope learned from one envelope: the
// payload (if any) to surface to the caller, bytes (if any) that must be
// written back to the socket as an automatic protocol response, or an error
// when the envelope's "d" field could not be decoded.
type dispatchOutcome struct {
	payload  *Payload
	outbound [][]byte
	err      error
}

// feedEnvelope updates session/heartbeat/resume state from a fully decoded
// inbound envelope and decides whether (and how) to surface it to the
// caller, per the opcode dispatch table.
func (c *Connection) feedEnvelope(env *Envelope, now time.Time) dispatchOutcome {
	if env.S != nil {
		c.sequence = env.S
	}

	switch env.Op {
	case OpcodeDispatch:
		return c.handleDispatch(env)

	case OpcodeHeartbeat:
		// Server requested an out-of-cycle heartbeat; it is answered
		// immediately with a non-acknowledging heartbeat (it doesn't mark a
		// new round-trip pending, so it leaves acknowledged/lastHeartbeatSent
		// untouched), and surfaced only under dispatch_handled.
		reply, err := c.encodeOutbound(OpcodeHeartbeat, c.sequence)
		if err != nil {
			return dispatchOutcome{err: err}
		}
		out := c.maybeSurface(env, nil)
		out.outbound = [][]byte{reply}
		return out

	case OpcodeReconnect:
		// Opcode 7 means the server is about to drop this connection and
		// wants us back with a RESUME. This isn't optional for the caller
		// regardless of dispatch_handled, so receive() emits the close frame
		// itself; the opcode is surfaced only under dispatch_handled.
		c.shouldResume = ResumeYes
		closeFrame := c.framer.localClose(ws.StatusCode(CloseServiceRestart), "reconnect requested")
		out := c.maybeSurface(env, nil)
		out.outbound = [][]byte{closeFrame}
		return out

	case OpcodeInvalidSession:
		var resumable invalidSessionData
		if err := env.Decode(&resumable); err != nil {
			return dispatchOutcome{err: err}
		}
		if bool(resumable) {
			c.shouldResume = ResumeYes
		} else {
			c.shouldResume = ResumeNo
			c.sessionID = ""
			c.sequence = nil
			c.resumeURI = ""
		}
		closeFrame := c.framer.localClose(ws.StatusCode(CloseServiceRestart), "invalid session")
		out := c.maybeSurface(env, nil)
		out.outbound = [][]byte{closeFrame}
		return out

	case OpcodeHello:
		var hello helloData
		if err := env.Decode(&hello); err != nil {
			return dispatchOutcome{err: err}
		}
		c.heartbeatInterval = hello.HeartbeatInterval / 1000
		return c.maybeSurface(env, nil)

	case OpcodeHeartbeatACK:
		c.acknowledged = true
		if c.lastHeartbeatSent != nil {
			c.latency.push(now.Sub(*c.lastHeartbeatSent))
			c.lastHeartbeatSent = nil
		}
		return c.maybeSurface(env, nil)

	default:
		return dispatchOutcome{payload: &Payload{Op: env.Op, Sequence: env.S}}
	}
}

// handleDispatch processes a DISPATCH envelope: it watches for READY and
// RESUMED to (re)establish session identity and reset the backoff counter,
// and hands every DISPATCH payload to the caller regardless.
func (c *Connection) handleDispatch(env *Envelope) dispatchOutcome {
	eventType := ""
	if env.T != nil {
		eventType = *env.T
	}

	switch eventType {
	case "READY":
		var ready readyData
		if err := env.Decode(&ready); err != nil {
			return dispatchOutcome{err: err}
		}
		c.sessionID = ready.SessionID
		c.resumeURI = ready.ResumeGatewayURL
		c.attempts = 0

	case "RESUMED":
		c.attempts = 0
	}

	data, err := env.Generic()
	if err != nil {
		return dispatchOutcome{err: err}
	}
	return dispatchOutcome{payload: &Payload{Op: env.Op, Type: eventType, Sequence: env.S, Data: data}}
}

// maybeSurface applies the dispatch_handled policy to an opcode the core
// already fully processed above.
func (c *Connection) maybeSurface(env *Envelope, data any) dispatchOutcome {
	if !c.dispatchHandled {
		return dispatchOutcome{}
	}
	if data == nil {
		var err error
		data, err = env.Generic()
		if err != nil {
			return dispatchOutcome{err: err}
		}
	}
	return dispatchOutcome{payload: &Payload{Op: env.Op, Sequence: env.S, Data: data}}
}
