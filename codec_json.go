/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

import (
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/gobwas/ws"
)

// jsonCodec implements wireCodec for the "json" gateway encoding using
// sonic, the JSON library the teacher corpus (marouanesouiri/dwaz) already
// depends on for payload marshalling elsewhere in that codebase.
type jsonCodec struct{}

func (jsonCodec) encoding() Encoding  { return EncodingJSON }
func (jsonCodec) frameOp() ws.OpCode { return ws.OpText }

func (jsonCodec) marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (jsonCodec) unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return sonic.Unmarshal(data, v)
}

type jsonEnvelopeOut struct {
	Op Opcode `json:"op"`
	D  any    `json:"d"`
}

type jsonEnvelopeIn struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  *string         `json:"t,omitempty"`
}

func (c jsonCodec) encodeEnvelope(op Opcode, d any) ([]byte, error) {
	return c.marshal(jsonEnvelopeOut{Op: op, D: d})
}

func (c jsonCodec) decodeEnvelope(data []byte) (*Envelope, error) {
	var wire jsonEnvelopeIn
	if err := sonic.Unmarshal(data, &wire); err != nil {
		return nil, protocolErrorf("invalid json envelope: %v", err)
	}
	return &Envelope{
		Op:    wire.Op,
		S:     wire.S,
		T:     wire.T,
		raw:   []byte(wire.D),
		codec: c,
	}, nil
}
