// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package unix_agent

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/pkg/bpv7"

	"github.com/dtn7/dtn7-coap/pkg/aap"
	"github.com/dtn7/dtn7-coap/pkg/application_agent"
	"github.com/dtn7/dtn7-coap/pkg/metrics"
)

var errSessionClosed = errors.New("session closed")

type frame struct {
	msgType  aap.MessageType
	msgBytes []byte
}

// session is the agent's side of one client connection.
// All frames sent by the client are read by readLoop and handed out through frames.
type session struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader

	writeMutex sync.Mutex
	writer     *bufio.Writer

	endpoint  bpv7.EndpointID
	keepalive time.Duration

	frames  chan frame
	readErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(conn net.Conn, id string) *session {
	return &session{
		id:     id,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		frames: make(chan frame),
		closed: make(chan struct{}),
	}
}

func (sess *session) welcome(nodeID bpv7.EndpointID) error {
	sess.writeMutex.Lock()
	defer sess.writeMutex.Unlock()

	if err := sess.writer.WriteByte(aap.VersionIndicator); err != nil {
		return err
	}
	return aap.WriteMessage(sess.writer, aap.NewWelcome(nodeID.String()))
}

func (sess *session) write(msg any) error {
	sess.writeMutex.Lock()
	defer sess.writeMutex.Unlock()

	return aap.WriteMessage(sess.writer, msg)
}

// readLoop reads frames until the connection fails. frames is closed afterwards and readErr holds the cause.
func (sess *session) readLoop() {
	defer close(sess.frames)

	for {
		msgType, msgBytes, err := aap.ReadMessage(sess.reader)
		if err != nil {
			sess.readErr = err
			return
		}

		select {
		case sess.frames <- frame{msgType: msgType, msgBytes: msgBytes}:
		case <-sess.closed:
			sess.readErr = errSessionClosed
			return
		}
	}
}

// awaitResponse waits up to timeout for the client's Response.
func (sess *session) awaitResponse(timeout time.Duration, stop <-chan interface{}) (*aap.Response, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-stop:
		return nil, errSessionClosed

	case <-timer.C:
		return nil, fmt.Errorf("no response within %v", timeout)

	case frm, ok := <-sess.frames:
		if !ok {
			return nil, sess.readErr
		}
		if frm.msgType != aap.MsgTypeResponse {
			return nil, fmt.Errorf("expected %v, got %v", aap.MsgTypeResponse, frm.msgType)
		}

		response := aap.Response{}
		if err := aap.Unmarshal(frm.msgBytes, &response); err != nil {
			return nil, err
		}
		return &response, nil
	}
}

func (sess *session) close() {
	sess.closeOnce.Do(func() {
		close(sess.closed)
		_ = sess.conn.Close()
	})
}

// serveSubscriber pushes the mailbox's ADUs to the client, one at a time.
// An ADU is removed from the mailbox as soon as the client answered it, regardless of the answer's status.
// If the client does not answer in time, the ADU stays queued and the session is closed.
func (agent *UNIXAgent) serveSubscriber(sess *session, mailbox *application_agent.Mailbox, logger *log.Entry) {
	metrics.AgentSessions.WithLabelValues("subscriber").Inc()
	defer metrics.AgentSessions.WithLabelValues("subscriber").Dec()

	for {
		adu, ok := mailbox.Peek()
		if !ok {
			if !agent.idle(sess, mailbox, logger) {
				return
			}
			continue
		}

		if err := sess.write(adu); err != nil {
			logger.WithError(err).Debug("Failed pushing ADU")
			return
		}

		response, err := sess.awaitResponse(agent.config.AckTimeout, agent.stopChan)
		if err != nil {
			logger.WithError(err).WithField("adu", adu).Info("Subscriber did not acknowledge ADU, keeping it queued")
			return
		}

		switch response.Status {
		case aap.StatusSuccess:
			logger.WithField("adu", adu).Debug("Subscriber accepted ADU")
		default:
			logger.WithFields(log.Fields{
				"adu":    adu,
				"status": response.Status,
			}).Info("Subscriber rejected ADU, dropping it")
		}
		mailbox.Pop()
	}
}

// idle waits for new ADUs and probes the client while nothing happens.
// Returns false once the session should end.
func (agent *UNIXAgent) idle(sess *session, mailbox *application_agent.Mailbox, logger *log.Entry) bool {
	var probe <-chan time.Time
	if sess.keepalive > 0 {
		timer := time.NewTimer(sess.keepalive)
		defer timer.Stop()
		probe = timer.C
	}

	select {
	case <-agent.stopChan:
		return false

	case <-mailbox.Notify():
		return true

	case frm, ok := <-sess.frames:
		if ok {
			logger.WithField("type", frm.msgType).Info("Unexpected message on subscriber session")
		}
		return false

	case <-probe:
		if err := sess.write(aap.NewKeepalive()); err != nil {
			return false
		}
		response, err := sess.awaitResponse(agent.config.AckTimeout, agent.stopChan)
		if err != nil {
			logger.WithError(err).Info("Subscriber missed keepalive probe")
			return false
		}
		if response.Status != aap.StatusAck {
			logger.WithField("status", response.Status).Info("Subscriber answered keepalive probe without ACK")
			return false
		}
		return true
	}
}

// serveRequester answers the ADUs and keepalives of a requester session.
// Without traffic for twice the keepalive interval, the session is closed.
func (agent *UNIXAgent) serveRequester(sess *session, logger *log.Entry) {
	metrics.AgentSessions.WithLabelValues("requester").Inc()
	defer metrics.AgentSessions.WithLabelValues("requester").Dec()

	for {
		var expired <-chan time.Time
		var timer *time.Timer
		if sess.keepalive > 0 {
			timer = time.NewTimer(2 * sess.keepalive)
			expired = timer.C
		}

		var frm frame
		var ok bool
		select {
		case <-agent.stopChan:
		case <-expired:
			logger.Info("Requester session expired")
		case frm, ok = <-sess.frames:
		}
		if timer != nil {
			timer.Stop()
		}
		if !ok {
			return
		}

		var response *aap.Response
		switch frm.msgType {
		case aap.MsgTypeKeepalive:
			response = aap.NewResponse(aap.StatusAck)

		case aap.MsgTypeBundleADU:
			response = agent.handleBundleADU(sess, frm.msgBytes, logger)

		default:
			response = aap.NewResponse(aap.StatusInvalidRequest)
			response.Error = fmt.Sprintf("unexpected %v on requester session", frm.msgType)
		}

		if err := sess.write(response); err != nil {
			logger.WithError(err).Debug("Failed sending response")
			return
		}
	}
}

func (agent *UNIXAgent) handleBundleADU(sess *session, msgBytes []byte, logger *log.Entry) *aap.Response {
	adu := aap.BundleADU{}
	if err := aap.Unmarshal(msgBytes, &adu); err != nil {
		response := aap.NewResponse(aap.StatusInvalidRequest)
		response.Error = err.Error()
		return response
	}
	if err := adu.CheckValid(); err != nil {
		response := aap.NewResponse(aap.StatusInvalidRequest)
		response.Error = err.Error()
		return response
	}
	if _, err := bpv7.NewEndpointID(adu.DestinationEID); err != nil {
		response := aap.NewResponse(aap.StatusInvalidRequest)
		response.Error = err.Error()
		return response
	}

	adu.SourceEID = sess.endpoint.String()

	bundleID, err := agent.manager.Send(&adu)
	if err != nil {
		logger.WithError(err).WithField("adu", &adu).Info("Failed sending ADU")

		status := aap.StatusError
		var noRoute *application_agent.NoRouteError
		if errors.As(err, &noRoute) {
			status = aap.StatusNotFound
		}
		response := aap.NewResponse(status)
		response.Error = err.Error()
		return response
	}

	response := aap.NewResponse(aap.StatusSuccess)
	response.BundleID = bundleID
	return response
}
