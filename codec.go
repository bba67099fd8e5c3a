/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

import "github.com/gobwas/ws"

// Envelope is the decoded gateway payload envelope: op/s/t are always
// pulled out eagerly (the dispatcher needs them regardless of opcode), while
// the "d" field is kept raw and decoded lazily - either into a specific
// typed struct for the opcodes the dispatcher handles itself, or into a
// generic value (map/slice/scalar tree) for DISPATCH payloads handed to the
// caller untouched.
type Envelope struct {
	Op Opcode
	S  *int64
	T  *string

	raw   []byte
	codec wireCodec
}

// Decode unmarshals the envelope's "d" field into v, using whichever wire
// encoding produced this envelope.
func (e *Envelope) Decode(v any) error {
	if e.raw == nil {
		return nil
	}
	return e.codec.unmarshal(e.raw, v)
}

// Generic decodes "d" into an untyped map/slice/scalar tree, the shape
// handed to callers for DISPATCH payloads (spec.md's "generic passthrough").
func (e *Envelope) Generic() (any, error) {
	if e.raw == nil {
		return nil, nil
	}
	var v any
	if err := e.codec.unmarshal(e.raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// wireCodec abstracts over the two wire encodings (JSON and binary terms).
// Both directions - building outbound envelopes and decoding inbound ones -
// go through this interface so the rest of the package never branches on
// Encoding directly.
type wireCodec interface {
	encoding() Encoding
	frameOp() ws.OpCode

	// marshal encodes an arbitrary value (used for both whole envelopes and
	// nested structures).
	marshal(v any) ([]byte, error)
	unmarshal(data []byte, v any) error

	// encodeEnvelope builds the wire bytes for an outbound {op, d} payload.
	encodeEnvelope(op Opcode, d any) ([]byte, error)
	// decodeEnvelope parses a finalized inbound message into an Envelope.
	decodeEnvelope(data []byte) (*Envelope, error)
}

func codecFor(enc Encoding) wireCodec {
	switch enc {
	case EncodingBinaryTerms:
		return termCodec{}
	default:
		return jsonCodec{}
	}
}
