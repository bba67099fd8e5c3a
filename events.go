/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

package dgate

import "iter"

// Events drains the payloads decoded so far - DISPATCH events and payloads
// with an opcode this package does not handle, plus whatever else
// WithDispatchHandled opted into - in arrival order. Each
// call to Receive may make zero or more new payloads available; Events
// yields everything queued since the last time it was drained.
//
// Stopping iteration early (a break in the range-over-func loop) leaves the
// remaining payloads queued for the next call to Events.
func (c *Connection) Events() iter.Seq[Payload] {
	return func(yield func(Payload) bool) {
		for len(c.eventQueue) > 0 {
			p := c.eventQueue[0]
			c.eventQueue = c.eventQueue[1:]
			if !yield(p) {
				return
			}
		}
	}
}
