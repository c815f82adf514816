// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package aap implements the application side of the bundle agent's control protocol.
//
// A connection starts with the agent writing VersionIndicator followed by a Welcome carrying its node ID.
// Afterwards every message is one frame: an 8-byte big-endian length followed by a msgpack-encoded struct
// whose Type field selects its kind. The client binds the connection to an agent ID with a ConnectionConfig.
//
// A Channel is either a requester or a subscriber. A requester issues BundleADUs and Keepalives, each answered
// by exactly one Response. A subscriber passively receives BundleADUs and Keepalive probes pushed by the agent
// and must answer every one of them with a Response.
package aap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// DefaultHandshakeTimeout bounds reading the welcome if the dial context carries no deadline.
const DefaultHandshakeTimeout = 5 * time.Second

// Channel is one session with the bundle agent. It must only be used by a single owner.
type Channel struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMutex sync.Mutex
	writer     *bufio.Writer

	// requestMutex serialises request/response pairs of requester sessions
	requestMutex sync.Mutex

	nodeID     bpv7.EndpointID
	endpoint   bpv7.EndpointID
	secret     string
	subscriber bool
	keepalive  time.Duration
	configured bool

	unacked      atomic.Bool
	lastActivity atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the agent listening on address and completes the welcome handshake.
// network is "unix" or "tcp".
func Dial(ctx context.Context, network, address string) (*Channel, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, NewAgentDisconnectedError(err)
	}

	channel, err := newChannel(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return channel, nil
}

func newChannel(ctx context.Context, conn net.Conn) (*Channel, error) {
	channel := Channel{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		closed: make(chan struct{}),
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultHandshakeTimeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, NewAgentDisconnectedError(err)
	}

	version, err := channel.reader.ReadByte()
	if err != nil {
		return nil, NewAgentDisconnectedError(err)
	}
	if version != VersionIndicator {
		return nil, fmt.Errorf("unsupported protocol version 0x%02x", version)
	}

	msgType, msgBytes, err := ReadMessage(channel.reader)
	if err != nil {
		return nil, NewAgentDisconnectedError(err)
	}
	if msgType != MsgTypeWelcome {
		return nil, fmt.Errorf("expected %v, got %v", MsgTypeWelcome, msgType)
	}

	welcome := Welcome{}
	if err := Unmarshal(msgBytes, &welcome); err != nil {
		return nil, err
	}

	nodeID, err := bpv7.NewEndpointID(welcome.NodeID)
	if err != nil {
		return nil, fmt.Errorf("agent sent invalid node ID %q: %w", welcome.NodeID, err)
	}
	channel.nodeID = nodeID

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, NewAgentDisconnectedError(err)
	}

	channel.touch()
	log.WithFields(log.Fields{
		"agent":  conn.RemoteAddr(),
		"nodeID": nodeID,
	}).Debug("Connected to bundle agent")

	return &channel, nil
}

// NodeID returns the node ID the agent announced in its welcome.
func (channel *Channel) NodeID() bpv7.EndpointID {
	return channel.nodeID
}

// Endpoint returns the endpoint this session is bound to by Configure.
func (channel *Channel) Endpoint() bpv7.EndpointID {
	return channel.endpoint
}

// Secret returns the secret of a configured session.
func (channel *Channel) Secret() string {
	return channel.secret
}

func (channel *Channel) IsSubscriber() bool {
	return channel.subscriber
}

func (channel *Channel) touch() {
	channel.lastActivity.Store(time.Now().UnixNano())
}

func (channel *Channel) idle() time.Duration {
	return time.Since(time.Unix(0, channel.lastActivity.Load()))
}

// Configure binds the session to agentID on the agent's node.
// An empty secret is replaced by a fresh random one; the returned secret must be used to re-register the
// same agent ID later. subscribe selects the role of the session. keepalive is the interval in which the
// session must show activity, zero disables keepalives.
// Returns an AuthenticationError if the agent refuses the secret.
func (channel *Channel) Configure(agentID, secret string, subscribe bool, keepalive time.Duration) (string, error) {
	channel.requestMutex.Lock()
	defer channel.requestMutex.Unlock()

	endpoint, err := LocalEndpoint(channel.nodeID, agentID)
	if err != nil {
		return "", err
	}

	if secret == "" {
		secret = uuid.NewString()
	}

	config := ConnectionConfig{
		Message:          Message{Type: MsgTypeConnectionConfig},
		EndpointID:       endpoint.String(),
		Secret:           secret,
		IsSubscriber:     subscribe,
		KeepaliveSeconds: uint32(keepalive / time.Second),
	}

	response, err := channel.roundTrip(&config)
	if err != nil {
		return "", err
	}

	switch response.Status {
	case StatusSuccess:
	case StatusUnauthorized:
		return "", NewAuthenticationError(endpoint.String())
	default:
		return "", NewAgentOperationFailedError("configure", response.Status, response.Error)
	}

	channel.endpoint = endpoint
	channel.secret = secret
	channel.subscriber = subscribe
	channel.keepalive = time.Duration(config.KeepaliveSeconds) * time.Second
	channel.configured = true

	log.WithFields(log.Fields{
		"endpoint":   endpoint,
		"subscriber": subscribe,
		"keepalive":  channel.keepalive,
	}).Info("Bundle agent session configured")

	if !subscribe && channel.keepalive > 0 {
		go channel.keepaliveLoop()
	}

	return secret, nil
}

func (channel *Channel) write(msg any) error {
	channel.writeMutex.Lock()
	defer channel.writeMutex.Unlock()

	if err := WriteMessage(channel.writer, msg); err != nil {
		return channel.fail(err)
	}
	channel.touch()
	return nil
}

// roundTrip sends a request and reads its Response. The caller holds requestMutex.
func (channel *Channel) roundTrip(msg any) (*Response, error) {
	if err := channel.write(msg); err != nil {
		return nil, err
	}

	msgType, msgBytes, err := ReadMessage(channel.reader)
	if err != nil {
		return nil, channel.fail(err)
	}
	channel.touch()

	if msgType != MsgTypeResponse {
		return nil, channel.fail(fmt.Errorf("expected %v, got %v", MsgTypeResponse, msgType))
	}

	response := Response{}
	if err := Unmarshal(msgBytes, &response); err != nil {
		return nil, channel.fail(err)
	}
	return &response, nil
}

// Send hands an ADU to the agent for transmission and waits for the agent's verdict.
// Returns the ID of the created bundle.
func (channel *Channel) Send(ctx context.Context, adu *BundleADU) (string, error) {
	if !channel.configured {
		return "", ErrNotConfigured
	}
	if channel.subscriber {
		return "", ErrSubscribed
	}
	if err := adu.CheckValid(); err != nil {
		return "", err
	}

	// the caller's ADU stays untouched
	outgoing := *adu
	outgoing.Type = MsgTypeBundleADU
	if outgoing.SourceEID == "" {
		outgoing.SourceEID = channel.endpoint.String()
	}

	channel.requestMutex.Lock()
	defer channel.requestMutex.Unlock()

	stop := channel.watchContext(ctx)
	response, err := channel.roundTrip(&outgoing)
	if ctxErr := stop(); ctxErr != nil {
		if err != nil {
			return "", ctxErr
		}
		_ = channel.conn.SetReadDeadline(time.Time{})
	}
	if err != nil {
		return "", err
	}

	if response.Status != StatusSuccess {
		return "", NewAgentOperationFailedError("send", response.Status, response.Error)
	}

	log.WithFields(log.Fields{
		"adu":    &outgoing,
		"bundle": response.BundleID,
	}).Debug("Bundle agent accepted ADU")

	return response.BundleID, nil
}

// Keepalive proves liveness of a requester session.
func (channel *Channel) Keepalive() error {
	if !channel.configured {
		return ErrNotConfigured
	}
	if channel.subscriber {
		return ErrSubscribed
	}

	channel.requestMutex.Lock()
	defer channel.requestMutex.Unlock()

	response, err := channel.roundTrip(NewKeepalive())
	if err != nil {
		return err
	}
	if response.Status != StatusAck {
		return NewAgentOperationFailedError("keepalive", response.Status, response.Error)
	}
	return nil
}

func (channel *Channel) keepaliveLoop() {
	ticker := time.NewTicker(channel.keepalive / 2)
	defer ticker.Stop()

	for {
		select {
		case <-channel.closed:
			return

		case <-ticker.C:
			if channel.idle() < channel.keepalive/2 {
				continue
			}
			if err := channel.Keepalive(); err != nil {
				log.WithFields(log.Fields{
					"endpoint": channel.endpoint,
					"error":    err,
				}).Warn("Keepalive to bundle agent failed")
				if IsDisconnected(err) {
					return
				}
			}
		}
	}
}

// Receive blocks until the agent delivers the next ADU.
// Keepalive probes arriving in the meantime are acknowledged transparently.
// Every returned ADU must be answered with Ack before Receive may be called again.
// Cancelling ctx closes the session, since a partially read frame can not be resumed.
// Disconnecting the session from another goroutine makes a pending Receive return an AgentDisconnectedError.
func (channel *Channel) Receive(ctx context.Context) (*BundleADU, error) {
	if !channel.configured {
		return nil, ErrNotConfigured
	}
	if !channel.subscriber {
		return nil, ErrNotSubscribed
	}
	if channel.unacked.Load() {
		return nil, ErrUnackedADU
	}

	stop := channel.watchContext(ctx)
	adu, err := channel.receive()
	if ctxErr := stop(); ctxErr != nil {
		if err != nil {
			return nil, ctxErr
		}
		_ = channel.conn.SetReadDeadline(time.Time{})
	}
	return adu, err
}

func (channel *Channel) receive() (*BundleADU, error) {
	for {
		msgType, msgBytes, err := ReadMessage(channel.reader)
		if err != nil {
			return nil, channel.fail(err)
		}
		channel.touch()

		switch msgType {
		case MsgTypeKeepalive:
			log.WithField("endpoint", channel.endpoint).Debug("Answering keepalive probe")
			if err := channel.write(NewResponse(StatusAck)); err != nil {
				return nil, err
			}

		case MsgTypeBundleADU:
			adu := BundleADU{}
			if err := Unmarshal(msgBytes, &adu); err != nil {
				return nil, channel.fail(err)
			}

			channel.unacked.Store(true)
			if err := adu.CheckValid(); err != nil {
				log.WithFields(log.Fields{
					"endpoint": channel.endpoint,
					"error":    err,
				}).Warn("Received inconsistent ADU")
				if ackErr := channel.Ack(StatusInvalidRequest); ackErr != nil {
					return nil, ackErr
				}
				continue
			}
			return &adu, nil

		default:
			return nil, channel.fail(fmt.Errorf("unexpected %v on subscriber session", msgType))
		}
	}
}

// Ack reports the outcome of processing the last received ADU.
func (channel *Channel) Ack(status ResponseStatus) error {
	if !channel.subscriber {
		return ErrNotSubscribed
	}
	if !channel.unacked.CompareAndSwap(true, false) {
		return ErrNothingToAck
	}
	return channel.write(NewResponse(status))
}

// watchContext interrupts blocking reads once ctx is done.
// The returned function stops watching and reports ctx's error if it interrupted the read.
func (channel *Channel) watchContext(ctx context.Context) func() error {
	if ctx.Done() == nil {
		return func() error { return nil }
	}

	done := make(chan struct{})
	interrupted := make(chan bool, 1)
	go func() {
		select {
		case <-ctx.Done():
			_ = channel.conn.SetReadDeadline(time.Now())
			interrupted <- true
		case <-done:
			interrupted <- false
		}
	}()

	return func() error {
		close(done)
		if <-interrupted {
			return ctx.Err()
		}
		return nil
	}
}

// fail turns an I/O error into an AgentDisconnectedError and tears the session down.
func (channel *Channel) fail(err error) error {
	_ = channel.Disconnect()

	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return NewAgentDisconnectedError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewAgentDisconnectedError(err)
	}
	return NewAgentDisconnectedError(fmt.Errorf("protocol violation: %w", err))
}

// Done is closed once the session has been disconnected.
func (channel *Channel) Done() <-chan struct{} {
	return channel.closed
}

// Disconnect closes the session. It is safe to call multiple times; a blocked Receive returns an
// AgentDisconnectedError.
func (channel *Channel) Disconnect() (err error) {
	channel.closeOnce.Do(func() {
		close(channel.closed)
		err = channel.conn.Close()

		log.WithField("endpoint", channel.endpoint).Debug("Bundle agent session closed")
	})
	return
}
