/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

import "testing"

func TestBuildGatewayURLMergesQueryParams(t *testing.T) {
	u := buildGatewayURL("wss://gateway.discord.gg/?existing=1", EncodingJSON, CompressionTransportZlibStream)

	if u.Hostname() != "gateway.discord.gg" {
		t.Fatalf("host = %q", u.Hostname())
	}
	q := u.Query()
	if q.Get("v") != gatewayVersion {
		t.Fatalf("v = %q, want %q", q.Get("v"), gatewayVersion)
	}
	if q.Get("encoding") != "json" {
		t.Fatalf("encoding = %q, want json", q.Get("encoding"))
	}
	if q.Get("compress") != "zlib-stream" {
		t.Fatalf("compress = %q, want zlib-stream", q.Get("compress"))
	}
	if q.Get("existing") != "1" {
		t.Fatalf("existing query param was dropped: %q", u.RawQuery)
	}
}

func TestBuildGatewayURLAddsSchemeAndEncodingETF(t *testing.T) {
	u := buildGatewayURL("gateway.discord.gg", EncodingBinaryTerms, CompressionNone)
	if u.Scheme != "wss" {
		t.Fatalf("scheme = %q, want wss", u.Scheme)
	}
	if u.Query().Get("encoding") != "etf" {
		t.Fatalf("encoding = %q, want etf", u.Query().Get("encoding"))
	}
	if u.Query().Has("compress") {
		t.Fatalf("compress should be absent for CompressionNone")
	}
}

func TestHandshakeAcceptsSwitchingProtocols(t *testing.T) {
	h := newHandshakeState()
	resp := "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n<leftover frame bytes>"

	outcome, headersJustReady, done, err := h.feed([]byte(resp))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if headersJustReady {
		t.Fatalf("headersJustReady should only fire for rejections")
	}
	if !done || outcome == nil || !outcome.accepted {
		t.Fatalf("expected an accepted outcome, got %+v (done=%v)", outcome, done)
	}
	if string(outcome.leftover) != "<leftover frame bytes>" {
		t.Fatalf("leftover = %q", outcome.leftover)
	}
}

func TestHandshakeRejectionSignalsHeadersBeforeBody(t *testing.T) {
	h := newHandshakeState()
	head := "HTTP/1.1 401 Unauthorized\r\nContent-Length: 5\r\n\r\n"

	outcome, headersJustReady, done, err := h.feed([]byte(head))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !headersJustReady {
		t.Fatalf("expected headersJustReady on the call that completes headers")
	}
	if done {
		t.Fatalf("should not be done before the body arrives")
	}
	if h.statusCode != 401 {
		t.Fatalf("statusCode = %d, want 401", h.statusCode)
	}

	outcome, headersJustReady, done, err = h.feed([]byte("oops!"))
	if err != nil {
		t.Fatalf("feed body: %v", err)
	}
	if headersJustReady {
		t.Fatalf("headersJustReady should not fire twice")
	}
	if !done || outcome == nil || outcome.accepted {
		t.Fatalf("expected a completed rejection outcome, got %+v (done=%v)", outcome, done)
	}
	if string(outcome.body) != "oops!" {
		t.Fatalf("body = %q, want oops!", outcome.body)
	}
}

func TestChunkedRejectionBodyDecodes(t *testing.T) {
	h := newHandshakeState()
	headers := "HTTP/1.1 429 Too Many Requests\r\nTransfer-Encoding: chunked\r\n\r\n"
	body := "5\r\nhello\r\n0\r\n\r\n"

	_, _, _, err := h.feed([]byte(headers))
	if err != nil {
		t.Fatalf("feed headers: %v", err)
	}
	outcome, _, done, err := h.feed([]byte(body))
	if err != nil {
		t.Fatalf("feed chunked body: %v", err)
	}
	if !done {
		t.Fatalf("expected chunked body to complete")
	}
	if string(outcome.body) != "hello" {
		t.Fatalf("body = %q, want hello", outcome.body)
	}
}
