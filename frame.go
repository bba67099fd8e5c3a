/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

import (
	"encoding/binary"
	"fmt"

	"github.com/gobwas/ws"
)

// wsFrame is a single decoded WebSocket frame. Control frames (close, ping,
// pong) are never fragmented per RFC 6455; data frames (text, binary) may
// arrive as a head frame followed by zero or more continuation frames, with
// Fin set only on the last one.
type wsFrame struct {
	Fin     bool
	Op      ws.OpCode
	Payload []byte
}

// parseFrame attempts to decode a single frame from the front of buf.
// It returns ok=false (with n=0) when buf doesn't yet hold a complete frame;
// the caller should retain buf and retry once more bytes are fed in.
func parseFrame(buf []byte) (frame wsFrame, n int, ok bool, err error) {
	if len(buf) < 2 {
		return wsFrame{}, 0, false, nil
	}

	b0, b1 := buf[0], buf[1]
	fin := b0&0x80 != 0
	rsv := b0 & 0x70
	op := ws.OpCode(b0 & 0x0f)

	if rsv != 0 {
		return wsFrame{}, 0, false, fmt.Errorf("dgate: reserved frame bits set (rsv=%x)", rsv)
	}

	masked := b1&0x80 != 0
	lenField := int64(b1 & 0x7f)

	head := 2
	var payloadLen int64

	switch {
	case lenField < 126:
		payloadLen = lenField
	case lenField == 126:
		if len(buf) < head+2 {
			return wsFrame{}, 0, false, nil
		}
		payloadLen = int64(binary.BigEndian.Uint16(buf[head : head+2]))
		head += 2
	default: // 127
		if len(buf) < head+8 {
			return wsFrame{}, 0, false, nil
		}
		payloadLen = int64(binary.BigEndian.Uint64(buf[head : head+8]))
		head += 8
	}

	var mask [4]byte
	if masked {
		if len(buf) < head+4 {
			return wsFrame{}, 0, false, nil
		}
		copy(mask[:], buf[head:head+4])
		head += 4
	}

	total := int64(head) + payloadLen
	if int64(len(buf)) < total {
		return wsFrame{}, 0, false, nil
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[head:total])
	if masked {
		ws.Cipher(payload, mask, 0)
	}

	return wsFrame{Fin: fin, Op: op, Payload: payload}, int(total), true, nil
}

// encodeFrame builds a single masked client-to-server WebSocket frame.
// Discord (like every WebSocket server) requires client frames to be masked.
func encodeFrame(op ws.OpCode, payload []byte) []byte {
	payloadLen := len(payload)

	var head []byte
	switch {
	case payloadLen < 126:
		head = []byte{0x80 | byte(op), 0x80 | byte(payloadLen)}
	case payloadLen <= 0xffff:
		head = make([]byte, 4)
		head[0] = 0x80 | byte(op)
		head[1] = 0x80 | 126
		binary.BigEndian.PutUint16(head[2:], uint16(payloadLen))
	default:
		head = make([]byte, 10)
		head[0] = 0x80 | byte(op)
		head[1] = 0x80 | 127
		binary.BigEndian.PutUint64(head[2:], uint64(payloadLen))
	}

	mask := ws.NewMask()
	out := make([]byte, 0, len(head)+4+payloadLen)
	out = append(out, head...)
	out = append(out, mask[:]...)

	masked := make([]byte, payloadLen)
	copy(masked, payload)
	ws.Cipher(masked, mask, 0)
	out = append(out, masked...)

	return out
}

// encodeCloseFrame builds a masked close frame carrying the given status code
// and (optional) reason text.
func encodeCloseFrame(code ws.StatusCode, reason string) []byte {
	return encodeFrame(ws.OpClose, ws.NewCloseFrameBody(code, reason))
}
