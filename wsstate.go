/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

import (
	"fmt"

	"github.com/gobwas/ws"
)

// connState mirrors the handshake states a WebSocket endpoint moves through
// once a close has started. There is no "not yet open" state here: the
// framer is only ever fed bytes once the upgrade has already completed
// (see handshake.go for the pre-upgrade phase).
type connState int

const (
	csOpen connState = iota
	csLocalClosing
	csRemoteClosing
	csClosed
)

type wsEventKind int

const (
	evText wsEventKind = iota
	evBinary
	evPing
	evClose
)

// wsEvent is a single inbound occurrence surfaced by the framer to the
// inbound pipeline (inbound.go). Fin indicates, for evText/evBinary, whether
// this was the last fragment of the logical message.
type wsEvent struct {
	Kind        wsEventKind
	Data        []byte
	Fin         bool
	CloseCode   ws.StatusCode
	CloseReason string
}

// framer is the WebSocket framing engine: it owns the unconsumed-byte tail
// left over from a partial frame, the current fragmentation opcode, and the
// close-handshake state. It never touches a socket; Feed consumes bytes and
// produces events, Send* functions produce bytes to transmit.
type framer struct {
	state  connState
	inbuf  []byte
	fragOp ws.OpCode // set by a text/binary head frame, consulted by continuation frames
	inFrag bool
}

func newFramer() *framer {
	return &framer{state: csOpen}
}

// feed appends newly-received bytes and decodes as many complete frames as
// are available. Left-over partial-frame bytes remain buffered for the next
// call. An empty/nil data slice just re-attempts decoding of anything
// already buffered (the "pump" case of Connection.Receive).
func (f *framer) feed(data []byte) ([]wsEvent, error) {
	if len(data) > 0 {
		f.inbuf = append(f.inbuf, data...)
	}

	var events []wsEvent
	for {
		frame, n, ok, err := parseFrame(f.inbuf)
		if err != nil {
			return events, err
		}
		if !ok {
			break
		}
		f.inbuf = f.inbuf[n:]

		ev, err := f.handleFrame(frame)
		if err != nil {
			return events, err
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return events, nil
}

func (f *framer) handleFrame(frame wsFrame) (*wsEvent, error) {
	switch frame.Op {
	case ws.OpText, ws.OpBinary:
		f.fragOp = frame.Op
		f.inFrag = !frame.Fin
		kind := evText
		if frame.Op == ws.OpBinary {
			kind = evBinary
		}
		return &wsEvent{Kind: kind, Data: frame.Payload, Fin: frame.Fin}, nil

	case ws.OpContinuation:
		if !f.inFrag && frame.Fin {
			// A lone continuation frame outside of any fragmented sequence is a
			// protocol violation, but being lenient here costs nothing and some
			// servers mis-tag single-frame messages; treat it like the frame
			// it continues.
		}
		var kind wsEventKind
		switch f.fragOp {
		case ws.OpBinary:
			kind = evBinary
		default:
			kind = evText
		}
		if frame.Fin {
			f.inFrag = false
		}
		return &wsEvent{Kind: kind, Data: frame.Payload, Fin: frame.Fin}, nil

	case ws.OpPing:
		return &wsEvent{Kind: evPing, Data: frame.Payload}, nil

	case ws.OpPong:
		return nil, nil

	case ws.OpClose:
		code, reason := parseCloseFramePayload(frame.Payload)
		switch f.state {
		case csLocalClosing:
			f.state = csClosed
		case csOpen:
			f.state = csRemoteClosing
		}
		return &wsEvent{Kind: evClose, CloseCode: code, CloseReason: reason}, nil

	default:
		return nil, fmt.Errorf("dgate: unsupported websocket opcode %#x", byte(frame.Op))
	}
}

func parseCloseFramePayload(payload []byte) (ws.StatusCode, string) {
	if len(payload) == 0 {
		return 0, ""
	}
	code, reason, err := ws.ParseCloseFrameData(payload)
	if err != nil {
		return 0, ""
	}
	return code, reason
}

// sendPong builds the reply to a Ping event; this never changes framer state.
func (f *framer) sendPong(payload []byte) []byte {
	return encodeFrame(ws.OpPong, payload)
}

// localClose transitions the framer into LOCAL_CLOSING and builds the close
// frame to send.
func (f *framer) localClose(code ws.StatusCode, reason string) []byte {
	f.state = csLocalClosing
	return encodeCloseFrame(code, reason)
}

// remoteCloseReply builds the reply to a peer-initiated close and marks the
// handshake complete on our side (see the close-handshake arbiter in
// inbound.go for how this interacts with Connection state).
func (f *framer) remoteCloseReply(code ws.StatusCode, reason string) []byte {
	f.state = csClosed
	return encodeCloseFrame(code, reason)
}
