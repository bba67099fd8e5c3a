/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

import "fmt"

// ConnectionRejected is returned from Connection.Receive when the server
// refused the WebSocket upgrade request. The status code and response
// headers captured so far are attached; subsequent Receive calls will keep
// delivering the rejected response's body until RejectedConnectionData is
// returned.
type ConnectionRejected struct {
	Code    int
	Headers [][2]string
}

func (e *ConnectionRejected) Error() string {
	return fmt.Sprintf("dgate: websocket upgrade rejected with status %d", e.Code)
}

// RejectedConnectionData is returned once the full body of a rejected
// upgrade response has been received.
type RejectedConnectionData struct {
	Data []byte
}

func (e *RejectedConnectionData) Error() string {
	return "dgate: complete response body for rejected websocket upgrade"
}

// CloseDiscordConnection is returned from Connection.Receive when the
// WebSocket is closing. Data, if non-nil, must be transmitted before the
// caller closes the underlying socket. Code and Reason are populated only
// when the peer initiated the close.
type CloseDiscordConnection struct {
	Data   []byte
	Code   *int
	Reason *string
}

func (e *CloseDiscordConnection) Error() string {
	if e.Code != nil {
		reason := ""
		if e.Reason != nil {
			reason = " - " + *e.Reason
		}
		return fmt.Sprintf("dgate: websocket closing (code %d%s)", *e.Code, reason)
	}
	return "dgate: websocket closing"
}

// ProtocolError signals a fatal violation of the gateway wire protocol
// (an unrecoverable decoding/framing condition for the current TCP
// connection). The caller must tear down the socket and, if warranted,
// establish a new one.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "dgate: protocol error: " + e.Message
}

func protocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Message: fmt.Sprintf(format, args...)}
}
