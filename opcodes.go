/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

// Opcode identifies the kind of gateway payload carried in an envelope's
// "op" field.
type Opcode int

const (
	OpcodeDispatch            Opcode = 0
	OpcodeHeartbeat           Opcode = 1
	OpcodeIdentify            Opcode = 2
	OpcodePresenceUpdate      Opcode = 3
	OpcodeVoiceStateUpdate    Opcode = 4
	OpcodeResume              Opcode = 6
	OpcodeReconnect           Opcode = 7
	OpcodeRequestGuildMembers Opcode = 8
	OpcodeInvalidSession      Opcode = 9
	OpcodeHello               Opcode = 10
	OpcodeHeartbeatACK        Opcode = 11
)

// CloseCode enumerates the documented gateway close codes.
type CloseCode int

const (
	// CloseNormalClosure is the standard WebSocket code (not one of
	// Discord's documented gateway codes) for a clean, caller-initiated
	// close, e.g. on application shutdown.
	CloseNormalClosure CloseCode = 1000

	// CloseServiceRestart is the standard WebSocket code the core emits when
	// it closes the connection itself in response to RECONNECT or
	// INVALID_SESSION.
	CloseServiceRestart CloseCode = 1012

	CloseGenericError         CloseCode = 4000
	CloseUnknownOpcode        CloseCode = 4001
	CloseDecodingError        CloseCode = 4002
	CloseNotAuthenticated     CloseCode = 4003
	CloseAuthenticationFailed CloseCode = 4004
	CloseAlreadyAuthenticated CloseCode = 4005
	CloseInvalidSeq           CloseCode = 4006
	CloseRateLimited          CloseCode = 4008
	CloseSessionTimedOut      CloseCode = 4009
	CloseInvalidShard         CloseCode = 4010
	CloseShardingRequired     CloseCode = 4011
	CloseInvalidAPIVersion    CloseCode = 4012
	CloseInvalidIntents       CloseCode = 4013
	CloseDisallowedIntents    CloseCode = 4014
)

// reconnectAdvice maps documented close codes to whether reconnecting (with
// a fresh IDENTIFY or a RESUME, depending on ShouldResume) is advisable.
// Deliberately conservative: everything not listed here defaults to true.
var reconnectAdvice = map[CloseCode]bool{
	CloseGenericError:         true,
	CloseUnknownOpcode:        true,
	CloseDecodingError:        true,
	CloseNotAuthenticated:     true,
	CloseAuthenticationFailed: false,
	CloseAlreadyAuthenticated: true,
	CloseInvalidSeq:           true,
	CloseRateLimited:          true,
	CloseSessionTimedOut:      true,
	CloseInvalidShard:         false,
	CloseShardingRequired:     false,
	CloseInvalidAPIVersion:    false,
	CloseInvalidIntents:       false,
	CloseDisallowedIntents:    false,
}

// ShouldReconnect reports whether a new connection attempt is advisable
// after observing the given close code. A nil code (no close code was
// observed, e.g. an abrupt TCP drop) always returns true. Codes outside the
// 4000-4999 range - including ordinary WebSocket close codes like 1000 or
// 1001 - also return true; only a handful of codes within that range are
// known to be unrecoverable.
func ShouldReconnect(code *int) bool {
	if code == nil {
		return true
	}

	c := *code
	if c < 4000 || c > 4999 {
		return true
	}

	if advice, ok := reconnectAdvice[CloseCode(c)]; ok {
		return advice
	}
	return true
}
