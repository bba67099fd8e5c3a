/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

import (
	"errors"
	"testing"
	"time"

	"github.com/gobwas/ws"
)

// openConnection builds a Connection with the handshake already marked
// complete, so tests can drive Receive directly with WebSocket frames.
func openConnection(opts ...Option) *Connection {
	c := NewConnection("wss://gateway.discord.gg/", EncodingJSON, opts...)
	c.hs.completed = true
	c.hs.accepted = true
	return c
}

func textFrame(payload string) []byte {
	return encodeFrame(ws.OpText, []byte(payload))
}

func TestReceiveHelloSetsInterval(t *testing.T) {
	c := openConnection()
	_, err := c.Receive(textFrame(`{"op":10,"d":{"heartbeat_interval":41250}}`), time.Now())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if c.HeartbeatInterval() != 41.25 {
		t.Fatalf("HeartbeatInterval() = %v, want 41.25", c.HeartbeatInterval())
	}
}

func TestReceiveReadySetsSessionAndClearsAttempts(t *testing.T) {
	c := openConnection()
	c.attempts = 3

	ready := `{"op":0,"s":1,"t":"READY","d":{"session_id":"abc123","resume_gateway_url":"wss://resume.gg"}}`
	_, err := c.Receive(textFrame(ready), time.Now())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if c.SessionID() != "abc123" {
		t.Fatalf("SessionID() = %q", c.SessionID())
	}
	if c.ShouldResume() != ResumeUnknown {
		t.Fatalf("ShouldResume() = %v, want ResumeUnknown; READY does not touch it", c.ShouldResume())
	}
	if c.attempts != 0 {
		t.Fatalf("attempts = %d, want 0 after READY", c.attempts)
	}
	if c.Sequence() == nil || *c.Sequence() != 1 {
		t.Fatalf("Sequence() = %v, want 1", c.Sequence())
	}

	var got []Payload
	for p := range c.Events() {
		got = append(got, p)
	}
	if len(got) != 1 || got[0].Type != "READY" {
		t.Fatalf("Events() = %+v", got)
	}
}

func TestHeartbeatAckUpdatesLatency(t *testing.T) {
	c := openConnection()
	sentAt := time.Now()
	if _, err := c.Heartbeat(sentAt); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if c.Acknowledged() {
		t.Fatalf("Acknowledged() should be false right after sending a heartbeat")
	}

	ackAt := sentAt.Add(25 * time.Millisecond)
	if _, err := c.Receive(textFrame(`{"op":11}`), ackAt); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !c.Acknowledged() {
		t.Fatalf("Acknowledged() should be true after HEARTBEAT_ACK")
	}
	if c.Latency() != 25*time.Millisecond {
		t.Fatalf("Latency() = %v, want 25ms", c.Latency())
	}
}

func TestReceiveRemoteCloseReturnsCloseDiscordConnection(t *testing.T) {
	c := openConnection()
	closeFrame := encodeCloseFrame(ws.StatusCode(CloseAuthenticationFailed), "bad token")

	outbound, err := c.Receive(closeFrame, time.Now())
	var closeErr *CloseDiscordConnection
	if !errors.As(err, &closeErr) {
		t.Fatalf("err = %v, want *CloseDiscordConnection", err)
	}
	if closeErr.Code == nil || *closeErr.Code != int(CloseAuthenticationFailed) {
		t.Fatalf("Code = %v, want %d", closeErr.Code, CloseAuthenticationFailed)
	}
	if len(outbound) != 0 {
		t.Fatalf("no automatic outbound bytes expected alongside a close, got %d", len(outbound))
	}
	if !c.Closing() {
		t.Fatalf("Closing() should be true once a close frame has been seen")
	}
}

func TestReceivePingProducesPong(t *testing.T) {
	c := openConnection()
	ping := encodeFrame(ws.OpPing, []byte("keepalive"))

	outbound, err := c.Receive(ping, time.Now())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(outbound) != 1 {
		t.Fatalf("outbound = %v, want exactly one pong frame", outbound)
	}
	frame, _, ok, err := parseFrame(outbound[0])
	if err != nil || !ok {
		t.Fatalf("parsing pong frame: ok=%v err=%v", ok, err)
	}
	if frame.Op != ws.OpPong || string(frame.Payload) != "keepalive" {
		t.Fatalf("unexpected pong frame: %+v", frame)
	}
}

func TestReconnectPreservesSessionResetsTransport(t *testing.T) {
	c := openConnection()
	if _, err := c.Receive(textFrame(`{"op":0,"s":1,"t":"READY","d":{"session_id":"abc","resume_gateway_url":"wss://resume.gg"}}`), time.Now()); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	for range c.Events() {
	}

	// RECONNECT is what actually sets should_resume=YES, not READY.
	if _, err := c.Receive(textFrame(`{"op":7,"d":null}`), time.Now()); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if backoff := c.Reconnect(); backoff != 0 {
		t.Fatalf("first Reconnect backoff = %d, want 0", backoff)
	}
	if backoff := c.Reconnect(); backoff != 2 {
		t.Fatalf("second Reconnect backoff = %d, want 2", backoff)
	}

	if c.SessionID() != "abc" {
		t.Fatalf("SessionID() should survive Reconnect, got %q", c.SessionID())
	}
	if c.ShouldResume() != ResumeYes {
		t.Fatalf("ShouldResume() should survive Reconnect")
	}
	if c.hs.completed {
		t.Fatalf("handshake state should be rebuilt fresh on Reconnect")
	}
}

func TestDispatchHandledSurfacesInternalOpcodes(t *testing.T) {
	c := openConnection(WithDispatchHandled(true))
	_, err := c.Receive(textFrame(`{"op":10,"d":{"heartbeat_interval":1000}}`), time.Now())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	var got []Payload
	for p := range c.Events() {
		got = append(got, p)
	}
	if len(got) != 1 || got[0].Op != OpcodeHello {
		t.Fatalf("Events() = %+v, want one surfaced HELLO", got)
	}
}

func TestReconnectOpcodeEmitsClose1012AndSetsResumeYes(t *testing.T) {
	c := openConnection()
	outbound, err := c.Receive(textFrame(`{"op":7,"d":null}`), time.Now())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if c.ShouldResume() != ResumeYes {
		t.Fatalf("ShouldResume() = %v, want ResumeYes", c.ShouldResume())
	}
	if len(outbound) != 1 {
		t.Fatalf("outbound = %v, want exactly one close frame", outbound)
	}
	frame, _, ok, err := parseFrame(outbound[0])
	if err != nil || !ok {
		t.Fatalf("parsing close frame: ok=%v err=%v", ok, err)
	}
	code, _ := parseCloseFramePayload(frame.Payload)
	if frame.Op != ws.OpClose || int(code) != int(CloseServiceRestart) {
		t.Fatalf("unexpected close frame: op=%v code=%v", frame.Op, code)
	}

	var got []Payload
	for p := range c.Events() {
		got = append(got, p)
	}
	if len(got) != 0 {
		t.Fatalf("Events() = %+v, RECONNECT should not be enqueued", got)
	}
}

func TestInvalidSessionNotResumableEmitsClose1012(t *testing.T) {
	c := openConnection()
	outbound, err := c.Receive(textFrame(`{"op":9,"d":false}`), time.Now())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if c.ShouldResume() != ResumeNo {
		t.Fatalf("ShouldResume() = %v, want ResumeNo", c.ShouldResume())
	}
	if len(outbound) != 1 {
		t.Fatalf("outbound = %v, want exactly one close frame", outbound)
	}
	frame, _, ok, err := parseFrame(outbound[0])
	if err != nil || !ok {
		t.Fatalf("parsing close frame: ok=%v err=%v", ok, err)
	}
	code, _ := parseCloseFramePayload(frame.Payload)
	if frame.Op != ws.OpClose || int(code) != int(CloseServiceRestart) {
		t.Fatalf("unexpected close frame: op=%v code=%v", frame.Op, code)
	}
}

func TestHeartbeatRequestAnswersImmediatelyWithoutSurfacing(t *testing.T) {
	c := openConnection()
	outbound, err := c.Receive(textFrame(`{"op":1,"d":null}`), time.Now())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(outbound) != 1 {
		t.Fatalf("outbound = %v, want exactly one heartbeat reply", outbound)
	}
	frame, _, ok, err := parseFrame(outbound[0])
	if err != nil || !ok {
		t.Fatalf("parsing heartbeat reply frame: ok=%v err=%v", ok, err)
	}
	if frame.Op != ws.OpText {
		t.Fatalf("heartbeat reply frame op = %v, want text", frame.Op)
	}
	if !c.Acknowledged() {
		t.Fatalf("answering an out-of-cycle heartbeat request should not mark a round-trip pending")
	}

	var got []Payload
	for p := range c.Events() {
		got = append(got, p)
	}
	if len(got) != 0 {
		t.Fatalf("Events() = %+v, HEARTBEAT request should not be enqueued", got)
	}
}

func TestUnexplainedRemoteCloseDefaultsResumeToYes(t *testing.T) {
	c := openConnection()
	closeFrame := encodeCloseFrame(ws.StatusCode(CloseGenericError), "")

	if _, err := c.Receive(closeFrame, time.Now()); err == nil {
		t.Fatalf("expected a *CloseDiscordConnection error")
	}
	if c.ShouldResume() != ResumeYes {
		t.Fatalf("ShouldResume() = %v, want ResumeYes for an unexplained peer close", c.ShouldResume())
	}
}
