/************************************************************************************
 *
 * dgate, a sans-I/O Discord gateway protocol core
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 ************************************************************************************/

// Package driver wraps the sans-I/O dgate core with real sockets and
// timers: it owns the TLS connection, a receive loop, and a heartbeat
// loop, the way marouanesouiri/dwaz's Shard owns a *net.Conn and its own
// readLoop/startHeartbeat goroutines. dgate itself never does any of this;
// this package is the reference "driver" the core's doc comment points to.
package driver

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shoreline-dev/dgate"
)

// Config configures a Driver.
type Config struct {
	GatewayURL string
	Token      string
	Intents    int
	Encoding   dgate.Encoding
	Compress   dgate.Compression
	Properties dgate.IdentifyProperties
	Logger     zerolog.Logger
}

// Driver supervises one logical gateway session: a receive loop reading
// off the socket and a heartbeat loop sending on HELLO's interval, both
// guarded by a single mutex around the shared *dgate.Connection - mirroring
// the single-goroutine-touches-Connection-at-a-time contract in the core's
// package doc, just enforced here instead of assumed.
type Driver struct {
	cfg  Config
	conn *dgate.Connection

	mu     sync.Mutex
	socket net.Conn

	lastCloseCode *int

	// Handler receives every Payload the core surfaces (DISPATCH events and,
	// if configured, handled opcodes too).
	Handler func(dgate.Payload)
}

// New constructs a Driver. The underlying dgate.Connection is created here
// so Config.Compress/Encoding stay fixed for the Driver's lifetime, same as
// the core requires.
func New(cfg Config) *Driver {
	conn := dgate.NewConnection(cfg.GatewayURL, cfg.Encoding, dgate.WithCompression(cfg.Compress))
	return &Driver{cfg: cfg, conn: conn}
}

// Run dials, performs the upgrade handshake, identifies or resumes, and
// then supervises the receive and heartbeat loops until ctx is canceled or
// an unrecoverable error occurs. On a recoverable disconnect it
// reconnects automatically, honoring dgate's backoff and ShouldReconnect
// advice - the same shape as Shard.reconnect's exponential backoff, but
// driven by the core's own policy rather than a fixed doubling schedule.
func (d *Driver) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := d.connectOnce(ctx); err != nil {
			d.cfg.Logger.Error().Err(err).Msg("gateway connection attempt failed")
		}

		lastClose, resumeAdvisable := d.sessionOutcome()
		if !dgate.ShouldReconnect(lastClose) {
			return fmt.Errorf("driver: gateway closed with an unrecoverable code %v", lastClose)
		}

		backoff := d.conn.Reconnect()
		d.cfg.Logger.Info().Int("backoff_seconds", backoff).Bool("resume", resumeAdvisable).Msg("reconnecting")
		select {
		case <-time.After(time.Duration(backoff) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sessionOutcome is read after a session ends; lastCloseCode is stashed by
// handleReceiveError since CloseDiscordConnection only surfaces inside the
// receive loop's error path.
func (d *Driver) sessionOutcome() (*int, bool) {
	return d.lastCloseCode, d.conn.ShouldResume() == dgate.ResumeYes
}

func (d *Driver) connectOnce(ctx context.Context) error {
	host, port := d.conn.Destination()
	dialer := &tls.Dialer{}
	socket, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("dialing gateway: %w", err)
	}
	d.mu.Lock()
	d.socket = socket
	d.mu.Unlock()
	defer socket.Close()

	if _, err := socket.Write(d.conn.Connect()); err != nil {
		return fmt.Errorf("writing upgrade request: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	helloReceived := make(chan float64, 1)

	group.Go(func() error { return d.receiveLoop(gctx, socket, helloReceived) })
	group.Go(func() error { return d.heartbeatLoop(gctx, socket, helloReceived) })

	return group.Wait()
}

// receiveLoop is the sans-I/O core's only consumer of socket reads,
// grounded on Shard.readLoop's read-decode-dispatch cycle.
func (d *Driver) receiveLoop(ctx context.Context, socket net.Conn, helloReceived chan<- float64) error {
	buf := make([]byte, 32*1024)
	identified := false

	for {
		n, err := socket.Read(buf)
		if n > 0 {
			outbound, rerr := d.conn.Receive(buf[:n], time.Now())
			for _, b := range outbound {
				if _, werr := socket.Write(b); werr != nil {
					return werr
				}
			}
			if rerr != nil {
				if handled, stop := d.handleReceiveError(socket, rerr); handled {
					return stop
				}
			}

			if !identified && d.conn.HeartbeatInterval() > 0 {
				identified = true
				select {
				case helloReceived <- d.conn.HeartbeatInterval():
				default:
				}
				if err := d.identifyOrResume(socket); err != nil {
					return err
				}
			}

			for payload := range d.conn.Events() {
				if d.Handler != nil {
					d.Handler(payload)
				}
			}
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// handleReceiveError classifies an error from Connection.Receive. It
// returns (true, err) when the receive loop must stop, (false, nil) when
// the error was informational and the loop should keep running.
func (d *Driver) handleReceiveError(socket net.Conn, err error) (bool, error) {
	switch e := err.(type) {
	case *dgate.CloseDiscordConnection:
		if e.Data != nil {
			socket.Write(e.Data)
		}
		d.lastCloseCode = e.Code
		return true, nil
	case *dgate.ConnectionRejected:
		return true, fmt.Errorf("driver: gateway upgrade rejected with status %d", e.Code)
	case *dgate.RejectedConnectionData:
		return true, fmt.Errorf("driver: gateway upgrade rejected, body: %s", e.Data)
	case *dgate.ProtocolError:
		return true, e
	default:
		return true, err
	}
}

func (d *Driver) identifyOrResume(socket net.Conn) error {
	if d.conn.ShouldResume() == dgate.ResumeYes && d.conn.SessionID() != "" {
		frame, err := d.conn.Resume(d.cfg.Token)
		if err != nil {
			return err
		}
		_, err = socket.Write(frame)
		return err
	}
	frame, err := d.conn.Identify(d.cfg.Token, d.cfg.Intents, d.cfg.Properties)
	if err != nil {
		return err
	}
	_, err = socket.Write(frame)
	return err
}

// heartbeatLoop waits for HELLO's interval, then beats on that cadence with
// a jittered first delay, exactly like Shard.startHeartbeat.
func (d *Driver) heartbeatLoop(ctx context.Context, socket net.Conn, helloReceived <-chan float64) error {
	var interval time.Duration
	select {
	case secs := <-helloReceived:
		interval = time.Duration(secs * float64(time.Second))
	case <-ctx.Done():
		return ctx.Err()
	}

	jitter := time.Duration(rand.Float64() * float64(interval))
	timer := time.NewTimer(jitter)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if !d.conn.Acknowledged() {
				frame := d.conn.Close(dgate.CloseCode(0), "heartbeat not acknowledged")
				socket.Write(frame)
				return fmt.Errorf("driver: heartbeat not acknowledged within interval")
			}
			frame, err := d.conn.Heartbeat(time.Now())
			if err != nil {
				return err
			}
			if !d.conn.Closing() {
				if _, err := socket.Write(frame); err != nil {
					return err
				}
			}
			timer.Reset(interval)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Latency reports the current heartbeat round-trip latency.
func (d *Driver) Latency() time.Duration { return d.conn.Latency() }

// Shutdown sends a clean close frame on the current socket, if any, and
// closes it - grounded on Shard.Shutdown's "tell the server, then hang up"
// sequencing.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.socket == nil {
		return nil
	}
	frame := d.conn.Close(dgate.CloseNormalClosure, "shutting down")
	d.socket.Write(frame)
	return d.socket.Close()
}
