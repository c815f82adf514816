// SPDX-FileCopyrightText: 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package unix_agent serves the bundle agent's control protocol on a UNIX domain or TCP socket.
package unix_agent

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/pkg/bpv7"

	"github.com/dtn7/dtn7-coap/pkg/aap"
	"github.com/dtn7/dtn7-coap/pkg/application_agent"
)

const (
	// DefaultAckTimeout is the time a subscriber has to answer a pushed ADU or keepalive probe.
	// Subscribers processing an ADU before answering, like the CoAP gateway, must finish within it.
	DefaultAckTimeout = 15 * time.Second
	// DefaultConfigTimeout is the time a new connection has to send its ConnectionConfig.
	DefaultConfigTimeout = 10 * time.Second
)

type Config struct {
	// Network is either "unix" or "tcp".
	Network string
	Address string
	// AdminSecret may claim any registration, regardless of its secret.
	AdminSecret     string
	AckTimeout      time.Duration
	ConfigTimeout   time.Duration
	MailboxCapacity int
}

type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// UNIXAgent allows applications to exchange ADUs with the bundle agent via a UNIX domain or TCP socket.
type UNIXAgent struct {
	config    Config
	manager   *application_agent.Manager
	listener  deadlineListener
	mailboxes *application_agent.MailboxBank

	sessions sync.WaitGroup
	stopOnce sync.Once
	stopChan chan interface{}
}

func NewUNIXAgent(manager *application_agent.Manager, config Config) (*UNIXAgent, error) {
	if config.Network == "" {
		config.Network = "unix"
	}
	if config.Network != "unix" && config.Network != "tcp" {
		return nil, fmt.Errorf("unsupported network %q", config.Network)
	}
	if config.Address == "" {
		return nil, errors.New("no listen address given")
	}
	if config.AckTimeout <= 0 {
		config.AckTimeout = DefaultAckTimeout
	}
	if config.ConfigTimeout <= 0 {
		config.ConfigTimeout = DefaultConfigTimeout
	}

	agent := UNIXAgent{
		config:    config,
		manager:   manager,
		mailboxes: application_agent.NewMailboxBank(config.AdminSecret, config.MailboxCapacity),
		stopChan:  make(chan interface{}),
	}
	return &agent, nil
}

func (agent *UNIXAgent) Name() string {
	return fmt.Sprintf("%v:%v", agent.config.Network, agent.config.Address)
}

// Address returns the address the agent listens on, which is useful for port 0 TCP listeners.
func (agent *UNIXAgent) Address() string {
	if agent.listener == nil {
		return agent.config.Address
	}
	return agent.listener.Addr().String()
}

func (agent *UNIXAgent) Shutdown() {
	agent.stopOnce.Do(func() {
		log.WithField("listenAddress", agent.config.Address).Info("Shutting agent down")
		close(agent.stopChan)
		if agent.listener != nil {
			_ = agent.listener.Close()
		}
		agent.sessions.Wait()
	})
}

func (agent *UNIXAgent) Endpoints() []bpv7.EndpointID {
	return agent.mailboxes.RegisteredIDs()
}

func (agent *UNIXAgent) Deliver(adu *aap.BundleADU) error {
	return agent.mailboxes.Deliver(adu)
}

func (agent *UNIXAgent) Start() error {
	log.WithFields(log.Fields{
		"network": agent.config.Network,
		"address": agent.config.Address,
	}).Info("Starting UNIXAgent")

	if agent.config.Network == "unix" {
		if err := os.Remove(agent.config.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	listener, err := net.Listen(agent.config.Network, agent.config.Address)
	if err != nil {
		return err
	}
	dl, ok := listener.(deadlineListener)
	if !ok {
		_ = listener.Close()
		return fmt.Errorf("listener for %v does not support deadlines", agent.config.Network)
	}
	agent.listener = dl

	agent.sessions.Add(1)
	go agent.listen()

	return nil
}

func (agent *UNIXAgent) listen() {
	defer agent.sessions.Done()
	defer func() {
		log.WithField("listenAddress", agent.config.Address).Info("Cleaning up socket")
	}()

	for {
		select {
		case <-agent.stopChan:
			return

		default:
			if err := agent.listener.SetDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
				select {
				case <-agent.stopChan:
					return
				default:
				}

				log.WithFields(log.Fields{
					"listener": agent.config.Address,
					"error":    err,
				}).Error("UNIXAgent failed to set deadline on socket")
				return
			} else if conn, err := agent.listener.Accept(); err == nil {
				agent.sessions.Add(1)
				go func() {
					defer agent.sessions.Done()
					agent.handleConnection(conn)
				}()
			}
		}
	}
}

func (agent *UNIXAgent) handleConnection(conn net.Conn) {
	sess := newSession(conn, uuid.NewString())
	defer sess.close()

	logger := log.WithFields(log.Fields{
		"session": sess.id,
		"remote":  conn.RemoteAddr(),
	})
	logger.Debug("Accepted application agent connection")

	if err := sess.welcome(agent.manager.NodeID()); err != nil {
		logger.WithError(err).Debug("Failed sending welcome")
		return
	}

	go sess.readLoop()

	config, err := agent.awaitConfig(sess)
	if err != nil {
		logger.WithError(err).Debug("Connection did not configure itself")
		return
	}

	eid, mailbox, status, err := agent.register(config)
	if err != nil {
		logger.WithError(err).WithField("endpoint", config.EndpointID).Info("Refusing connection config")
		response := aap.NewResponse(status)
		response.Error = err.Error()
		_ = sess.write(response)
		return
	}

	sess.endpoint = eid
	if config.KeepaliveSeconds > 0 {
		sess.keepalive = time.Duration(config.KeepaliveSeconds) * time.Second
	}

	if err := sess.write(aap.NewResponse(aap.StatusSuccess)); err != nil {
		if config.IsSubscriber {
			mailbox.Detach()
		}
		return
	}

	logger = logger.WithFields(log.Fields{
		"endpoint":   eid,
		"subscriber": config.IsSubscriber,
	})
	logger.Info("Application agent session configured")

	if config.IsSubscriber {
		defer mailbox.Detach()
		agent.serveSubscriber(sess, mailbox, logger)
	} else {
		agent.serveRequester(sess, logger)
	}

	logger.Info("Application agent session closed")
}

// awaitConfig waits for the ConnectionConfig of a new connection. Keepalives sent before are acknowledged.
func (agent *UNIXAgent) awaitConfig(sess *session) (*aap.ConnectionConfig, error) {
	timeout := time.NewTimer(agent.config.ConfigTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-agent.stopChan:
			return nil, errors.New("agent is shutting down")

		case <-timeout.C:
			return nil, errors.New("timed out waiting for connection config")

		case frm, ok := <-sess.frames:
			if !ok {
				return nil, sess.readErr
			}

			switch frm.msgType {
			case aap.MsgTypeKeepalive:
				if err := sess.write(aap.NewResponse(aap.StatusAck)); err != nil {
					return nil, err
				}

			case aap.MsgTypeConnectionConfig:
				config := aap.ConnectionConfig{}
				if err := aap.Unmarshal(frm.msgBytes, &config); err != nil {
					return nil, err
				}
				return &config, nil

			default:
				response := aap.NewResponse(aap.StatusInvalidRequest)
				response.Error = fmt.Sprintf("expected %v, got %v", aap.MsgTypeConnectionConfig, frm.msgType)
				_ = sess.write(response)
				return nil, errors.New(response.Error)
			}
		}
	}
}

// register validates a ConnectionConfig and claims its endpoint.
// On failure, the returned status is to be sent to the client.
func (agent *UNIXAgent) register(config *aap.ConnectionConfig) (bpv7.EndpointID, *application_agent.Mailbox, aap.ResponseStatus, error) {
	eid, err := bpv7.NewEndpointID(config.EndpointID)
	if err != nil {
		return eid, nil, aap.StatusInvalidRequest, err
	}
	if !agent.manager.IsLocal(eid) {
		return eid, nil, aap.StatusInvalidRequest, application_agent.NewForeignIDError(eid)
	}

	mailbox, err := agent.mailboxes.Register(eid, config.Secret)
	if err != nil {
		return eid, nil, aap.StatusUnauthorized, err
	}

	if config.IsSubscriber {
		if err := mailbox.Attach(); err != nil {
			return eid, nil, aap.StatusError, err
		}
	}

	return eid, mailbox, aap.StatusSuccess, nil
}
