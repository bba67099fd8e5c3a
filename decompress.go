/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// zlibFlushSentinel is the 4-byte marker Discord appends to every message in
// zlib-stream transport compression mode (a Z_SYNC_FLUSH boundary).
var zlibFlushSentinel = [4]byte{0x00, 0x00, 0xff, 0xff}

func endsWithZlibSentinel(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	tail := buf[len(buf)-4:]
	return tail[0] == zlibFlushSentinel[0] && tail[1] == zlibFlushSentinel[1] &&
		tail[2] == zlibFlushSentinel[2] && tail[3] == zlibFlushSentinel[3]
}

const deflateWindowSize = 32 * 1024

// transportInflator is the long-lived zlib-stream decompressor required by
// CompressionTransportZlibStream: a single DEFLATE bitstream spans the whole
// TCP connection, so the decompressor's sliding window must be carried
// forward across messages rather than rebuilt from scratch each time.
//
// Go's compress/flate has no buffer-in/buffer-out incremental API (unlike
// Python's zlib.decompressobj, which the reference implementation relies
// on). Instead, each message is decompressed with flate.Resetter.Reset,
// re-seeding the reader with an io.Reader over just that message's bytes
// plus the trailing decompressed-history dictionary from prior messages -
// which is exactly what DEFLATE's LZ77 window needs to resolve back-references
// that cross a message boundary.
type transportInflator struct {
	fr             *flate.Reader
	headerConsumed bool
	history        []byte
}

func newTransportInflator() *transportInflator {
	return &transportInflator{}
}

// inflate decompresses one finalized, sentinel-terminated message and
// returns the plaintext payload bytes.
func (t *transportInflator) inflate(msg []byte) ([]byte, error) {
	if !t.headerConsumed {
		// The very first message on the connection is prefixed with the
		// 2-byte zlib header (CMF/FLG); everything after is a raw,
		// continuous DEFLATE stream.
		if len(msg) < 2 {
			return nil, protocolErrorf("transport-compressed message too short for zlib header")
		}
		msg = msg[2:]
		t.headerConsumed = true
	}

	r := bytes.NewReader(msg)

	if t.fr == nil {
		t.fr = flate.NewReader(r)
	} else if err := t.fr.(flate.Resetter).Reset(r, t.history); err != nil {
		return nil, protocolErrorf("resetting transport inflator: %v", err)
	}

	out, err := io.ReadAll(t.fr)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, protocolErrorf("inflating transport-compressed message: %v", err)
	}

	t.history = appendWindow(t.history, out)
	return out, nil
}

// appendWindow grows the carried-forward decompression dictionary, keeping
// only the most recent deflateWindowSize bytes (DEFLATE cannot reference
// further back than that anyway).
func appendWindow(history, add []byte) []byte {
	history = append(history, add...)
	if len(history) > deflateWindowSize {
		history = history[len(history)-deflateWindowSize:]
	}
	return history
}

// inflatePayloadOnce decompresses a single, independent zlib stream - used
// for CompressionPayload, where every binary message carries its own
// self-contained zlib container, either properly terminated or cut off at a
// zlib flush sentinel.
func inflatePayloadOnce(msg []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(msg))
	if err != nil {
		return nil, protocolErrorf("opening payload-compressed message: %v", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil && !(err == io.ErrUnexpectedEOF && endsWithZlibSentinel(msg)) {
		return nil, protocolErrorf("inflating payload-compressed message: %v", err)
	}
	return out, nil
}
