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

// identifyData is the "d" payload of an IDENTIFY envelope.
type identifyData struct {
	Token          string              `json:"token" msgpack:"token"`
	Properties     IdentifyProperties  `json:"properties" msgpack:"properties"`
	Compress       bool                `json:"compress,omitempty" msgpack:"compress,omitempty"`
	LargeThreshold int                 `json:"large_threshold,omitempty" msgpack:"large_threshold,omitempty"`
	Shard          *[2]int             `json:"shard,omitempty" msgpack:"shard,omitempty"`
	Presence       *PresenceUpdateData `json:"presence,omitempty" msgpack:"presence,omitempty"`
	Intents        int                 `json:"intents" msgpack:"intents"`
}

// IdentifyOption customizes an outgoing IDENTIFY payload.
type IdentifyOption func(*identifyData)

// WithIdentifyCompress requests per-payload zlib compression of the server's
// replies (independent of transport-level compression).
func WithIdentifyCompress(v bool) IdentifyOption {
	return func(d *identifyData) { d.Compress = v }
}

// WithIdentifyLargeThreshold sets the member-count threshold above which a
// guild is considered "large" and its member list is not sent in full on
// GUILD_CREATE.
func WithIdentifyLargeThreshold(n int) IdentifyOption {
	return func(d *identifyData) { d.LargeThreshold = n }
}

// WithIdentifyShard sets this connection's [shard_id, num_shards] pair.
func WithIdentifyShard(id, count int) IdentifyOption {
	return func(d *identifyData) { d.Shard = &[2]int{id, count} }
}

// WithIdentifyPresence sets the initial presence to broadcast on connect.
func WithIdentifyPresence(p PresenceUpdateData) IdentifyOption {
	return func(d *identifyData) { d.Presence = &p }
}

// Identify builds the bytes for an IDENTIFY payload. Callers send this once,
// immediately after receiving HELLO, when ShouldResume is not ResumeYes.
func (c *Connection) Identify(token string, intents int, props IdentifyProperties, opts ...IdentifyOption) ([]byte, error) {
	d := identifyData{
		Token:      token,
		Properties: props,
		Intents:    intents,
		Compress:   c.compression == CompressionPayload,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return c.encodeOutbound(OpcodeIdentify, d)
}

// resumeData is the "d" payload of a RESUME envelope.
type resumeData struct {
	Token     string `json:"token" msgpack:"token"`
	SessionID string `json:"session_id" msgpack:"session_id"`
	Sequence  int64  `json:"seq" msgpack:"seq"`
}

// Resume builds the bytes for a RESUME payload, using the session ID and
// sequence number left behind by the disconnect that preceded this
// Reconnect. Callers should only do this when ShouldResume reports
// ResumeYes.
func (c *Connection) Resume(token string) ([]byte, error) {
	var seq int64
	if c.sequence != nil {
		seq = *c.sequence
	}
	d := resumeData{Token: token, SessionID: c.sessionID, Sequence: seq}
	return c.encodeOutbound(OpcodeResume, d)
}

// Heartbeat builds the bytes for a HEARTBEAT payload and marks the
// connection as awaiting an acknowledgement. now is the caller's current
// wall-clock time, used later to compute round-trip latency once the
// acknowledgement arrives; the core never reads the clock itself. Callers
// are responsible for calling this on the interval HELLO specified (with
// jitter on the very first beat) and for treating a still-unacknowledged
// heartbeat at the next interval as grounds to close with
// CloseSessionTimedOut.
func (c *Connection) Heartbeat(now time.Time) ([]byte, error) {
	c.acknowledged = false
	c.lastHeartbeatSent = &now
	return c.encodeOutbound(OpcodeHeartbeat, c.sequence)
}

// Acknowledged reports whether the most recently sent heartbeat has been
// acknowledged.
func (c *Connection) Acknowledged() bool { return c.acknowledged }

// HeartbeatInterval returns the interval HELLO asked for, in seconds, or 0
// before HELLO has arrived.
func (c *Connection) HeartbeatInterval() float64 { return c.heartbeatInterval }

// requestGuildMembersData is the "d" payload of a REQUEST_GUILD_MEMBERS
// envelope.
type requestGuildMembersData struct {
	GuildID   string   `json:"guild_id" msgpack:"guild_id"`
	Query     *string  `json:"query,omitempty" msgpack:"query,omitempty"`
	Limit     int      `json:"limit" msgpack:"limit"`
	Presences bool     `json:"presences,omitempty" msgpack:"presences,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty" msgpack:"user_ids,omitempty"`
	Nonce     string   `json:"nonce,omitempty" msgpack:"nonce,omitempty"`
}

// RequestGuildMembersQuery requests members by (possibly empty) name prefix.
func (c *Connection) RequestGuildMembersQuery(guildID, query string, limit int, presences bool, nonce string) ([]byte, error) {
	d := requestGuildMembersData{GuildID: guildID, Query: &query, Limit: limit, Presences: presences, Nonce: nonce}
	return c.encodeOutbound(OpcodeRequestGuildMembers, d)
}

// RequestGuildMembersByID requests specific members by snowflake.
func (c *Connection) RequestGuildMembersByID(guildID string, userIDs []string, presences bool, nonce string) ([]byte, error) {
	d := requestGuildMembersData{GuildID: guildID, UserIDs: userIDs, Presences: presences, Nonce: nonce}
	return c.encodeOutbound(OpcodeRequestGuildMembers, d)
}

// voiceStateUpdateData is the "d" payload of a VOICE_STATE_UPDATE envelope.
type voiceStateUpdateData struct {
	GuildID   string  `json:"guild_id" msgpack:"guild_id"`
	ChannelID *string `json:"channel_id" msgpack:"channel_id"`
	SelfMute  bool    `json:"self_mute" msgpack:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf" msgpack:"self_deaf"`
}

// UpdateVoiceState builds the bytes for a VOICE_STATE_UPDATE payload.
// channelID of "" leaves/disconnects from voice.
func (c *Connection) UpdateVoiceState(guildID, channelID string, selfMute, selfDeaf bool) ([]byte, error) {
	var chanPtr *string
	if channelID != "" {
		chanPtr = &channelID
	}
	d := voiceStateUpdateData{GuildID: guildID, ChannelID: chanPtr, SelfMute: selfMute, SelfDeaf: selfDeaf}
	return c.encodeOutbound(OpcodeVoiceStateUpdate, d)
}

// PresenceUpdateData is the "d" payload of a PRESENCE_UPDATE envelope, and
// may also be nested inside IDENTIFY.
type PresenceUpdateData struct {
	Since      *int64     `json:"since" msgpack:"since"`
	Activities []Activity `json:"activities" msgpack:"activities"`
	Status     string     `json:"status" msgpack:"status"`
	AFK        bool       `json:"afk" msgpack:"afk"`
}

// Activity is a single entry of PresenceUpdateData.Activities.
type Activity struct {
	Name string `json:"name" msgpack:"name"`
	Type int    `json:"type" msgpack:"type"`
	URL  string `json:"url,omitempty" msgpack:"url,omitempty"`
}

// UpdatePresence builds the bytes for a PRESENCE_UPDATE payload.
func (c *Connection) UpdatePresence(p PresenceUpdateData) ([]byte, error) {
	return c.encodeOutbound(OpcodePresenceUpdate, p)
}

// encodeOutbound encodes d into an envelope for op using this connection's
// wire codec, then wraps it in a single masked client WebSocket frame.
func (c *Connection) encodeOutbound(op Opcode, d any) ([]byte, error) {
	payload, err := c.codec.encodeEnvelope(op, d)
	if err != nil {
		return nil, err
	}
	return encodeFrame(c.codec.frameOp(), payload), nil
}

// Close builds the bytes for a client-initiated close frame and transitions
// the Connection into the local-closing state; Closing() will report true
// from this point on. Pass a non-nil reason for a clean application-level
// close, or call with CloseCode 0 ("" reason) for an abnormal teardown.
func (c *Connection) Close(code CloseCode, reason string) []byte {
	return c.framer.localClose(ws.StatusCode(code), reason)
}
