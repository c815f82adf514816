// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package gateway relays CoAP requests arriving as bundle payloads to a real CoAP server and ships the
// server's response back to the originating node.
//
// The gateway works strictly sequentially: receive an ADU, process it, acknowledge it, then receive the next
// one. Every received ADU is acknowledged exactly once, with SUCCESS if a reply was handed to the bundle agent
// and with ERROR otherwise. Failures concerning a single ADU never end the loop; losing a bundle agent session
// does.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-coap/pkg/aap"
	"github.com/dtn7/dtn7-coap/pkg/coap_codec"
	"github.com/dtn7/dtn7-coap/pkg/metrics"
	"github.com/dtn7/dtn7-coap/pkg/resolver"
)

const (
	// DefaultReplyAgentID is the agent ID replies are addressed to on the originating node.
	DefaultReplyAgentID = "rec"
	// DefaultCoAPTimeout bounds a single CoAP exchange attempt.
	DefaultCoAPTimeout = 10 * time.Second
	// DefaultAckBudget bounds resolving and dispatching one ADU. It stays below the bundle agent's
	// default ack timeout, so the ERROR ack of a stalled exchange still arrives in time.
	DefaultAckBudget = 12 * time.Second
)

// Inbound is the subscribed bundle agent session requests arrive on.
type Inbound interface {
	Receive(ctx context.Context) (*aap.BundleADU, error)
	Ack(status aap.ResponseStatus) error
}

// Outbound is the requester session replies are sent through.
type Outbound interface {
	Send(ctx context.Context, adu *aap.BundleADU) (string, error)
}

// Resolver maps a request's target host to a network address.
type Resolver interface {
	Resolve(ctx context.Context, host string, port uint16) (resolver.Endpoint, error)
}

// RetryPolicy controls how often a failed CoAP exchange is repeated.
// The zero value disables retries.
type RetryPolicy struct {
	// Attempts is the number of additional attempts after the first one.
	Attempts int
	// Backoff is the pause before each additional attempt.
	Backoff time.Duration
}

type Config struct {
	ReplyAgentID string
	CoAPTimeout  time.Duration
	Retry        RetryPolicy
	// AckBudget is the time between receiving an ADU and giving up on its CoAP exchange.
	// It must be shorter than the bundle agent's ack timeout.
	AckBudget time.Duration
}

// ExchangeBound is the longest time the retry policy may spend on one request:
// every attempt running into CoAPTimeout, plus the backoff before each additional attempt.
func (config Config) ExchangeBound() time.Duration {
	attempts := time.Duration(1 + config.Retry.Attempts)
	return attempts*config.CoAPTimeout + time.Duration(config.Retry.Attempts)*config.Retry.Backoff
}

// Gateway is the inbound side of a node, relaying requests from the bundle agent to CoAP servers.
type Gateway struct {
	inbound    Inbound
	outbound   Outbound
	resolver   Resolver
	dispatcher Dispatcher
	config     Config

	stateMutex sync.RWMutex
	state      State
}

func NewGateway(inbound Inbound, outbound Outbound, res Resolver, dispatcher Dispatcher, config Config) *Gateway {
	if config.ReplyAgentID == "" {
		config.ReplyAgentID = DefaultReplyAgentID
	}
	if config.CoAPTimeout <= 0 {
		config.CoAPTimeout = DefaultCoAPTimeout
	}
	if config.Retry.Attempts < 0 {
		config.Retry.Attempts = 0
	}
	if config.AckBudget <= 0 {
		config.AckBudget = DefaultAckBudget
	}

	gateway := Gateway{
		inbound:    inbound,
		outbound:   outbound,
		resolver:   res,
		dispatcher: dispatcher,
		config:     config,
		state:      AwaitingBundle,
	}
	return &gateway
}

// State returns the position of the ADU currently being processed.
func (gateway *Gateway) State() State {
	gateway.stateMutex.RLock()
	defer gateway.stateMutex.RUnlock()

	return gateway.state
}

func (gateway *Gateway) transition(to State, logger *log.Entry) {
	gateway.stateMutex.Lock()
	from := gateway.state
	gateway.state = to
	gateway.stateMutex.Unlock()

	if !from.next(to) {
		logger.WithError(NewInvalidTransitionError(from, to)).Error("Gateway state machine out of order")
	}
	logger.WithFields(log.Fields{
		"from": from,
		"to":   to,
	}).Debug("Gateway state transition")
}

// Run processes inbound ADUs until ctx is done or a bundle agent session fails.
// Returns nil if ctx ended the loop.
func (gateway *Gateway) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"replyAgentID": gateway.config.ReplyAgentID,
		"coapTimeout":  gateway.config.CoAPTimeout,
		"retries":      gateway.config.Retry.Attempts,
		"ackBudget":    gateway.config.AckBudget,
	}).Info("Gateway waiting for bundles")

	for {
		adu, err := gateway.inbound.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := gateway.Handle(ctx, adu); err != nil {
			return err
		}
	}
}

// Handle runs one received ADU through the processing cycle and acknowledges it.
// Only session failures are returned; per-message failures are logged and acknowledged with ERROR.
func (gateway *Gateway) Handle(ctx context.Context, adu *aap.BundleADU) error {
	logger := log.WithField("adu", adu)

	bundleID, err := gateway.Process(ctx, adu, logger)

	status := aap.StatusSuccess
	outcome := "relayed"
	if err != nil {
		status = aap.StatusError
		outcome = failureOutcome(err)
		gateway.transition(Failed, logger)
		logger.WithError(err).Warn("Failed relaying CoAP request")
	} else {
		logger.WithField("reply", bundleID).Info("Relayed CoAP response")
	}

	ackErr := gateway.inbound.Ack(status)
	metrics.AcksTotal.WithLabelValues(status.String()).Inc()
	metrics.InboundADUsTotal.WithLabelValues(outcome).Inc()
	if ackErr != nil {
		return ackErr
	}
	gateway.transition(Acknowledged, logger)
	gateway.transition(AwaitingBundle, logger)

	if err != nil && aap.IsDisconnected(err) {
		return err
	}
	return nil
}

// Process decodes the CoAP request carried by adu, exchanges it with its target server and sends the response
// back to the originating node. Returns the reply bundle's ID.
//
// Resolving and dispatching share the ack budget, counted from the call. Sending the reply uses ctx itself,
// since interrupting a half written ADU would tear down the outbound session.
func (gateway *Gateway) Process(ctx context.Context, adu *aap.BundleADU, logger *log.Entry) (string, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, gateway.config.AckBudget)
	defer cancel()

	gateway.transition(Decoding, logger)
	request, err := coap_codec.Decode(adu.Payload)
	if err != nil {
		return "", err
	}
	if !request.IsRequest() {
		return "", fmt.Errorf("%w: %v", ErrNotRequest, request)
	}
	logger = logger.WithField("request", request)

	host, port, err := request.Target()
	if err != nil {
		return "", err
	}
	target, err := gateway.resolver.Resolve(budgetCtx, host, port)
	if err != nil {
		return "", err
	}
	gateway.transition(AddressResolved, logger)
	logger = logger.WithField("target", target)

	gateway.transition(DispatchingCoAP, logger)
	response, err := gateway.dispatch(budgetCtx, target, request, logger)
	if err != nil {
		return "", err
	}
	gateway.transition(CoAPResponseReceived, logger)

	gateway.transition(EncodingReply, logger)
	payload, err := coap_codec.Encode(reply(request, response))
	if err != nil {
		return "", err
	}

	replyTo, err := aap.ReplyEndpoint(adu.SourceEID, gateway.config.ReplyAgentID)
	if err != nil {
		return "", err
	}

	bundleID, err := gateway.outbound.Send(ctx, aap.NewBundleADU("", replyTo, payload))
	if err != nil {
		return "", err
	}
	gateway.transition(ReplySent, logger)

	return bundleID, nil
}

// dispatch runs the CoAP exchange, repeating it according to the retry policy.
// Each attempt gets its own timeout; ctx carries the ack budget and ends all attempts at once.
func (gateway *Gateway) dispatch(ctx context.Context, target resolver.Endpoint, request *coap_codec.Message, logger *log.Entry) (*coap_codec.Message, error) {
	attempts := 1 + gateway.config.Retry.Attempts

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			logger.WithFields(log.Fields{
				"attempt": attempt,
				"error":   lastErr,
			}).Debug("Retrying CoAP exchange")

			select {
			case <-ctx.Done():
				return nil, NewDispatchError(target.String(), attempt-1, ctx.Err())
			case <-time.After(gateway.config.Retry.Backoff):
			}
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, gateway.config.CoAPTimeout)
		response, err := gateway.dispatcher.Dispatch(attemptCtx, target, request)
		cancel()

		if err == nil {
			metrics.DispatchDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
			return response, nil
		}
		metrics.DispatchDuration.WithLabelValues("failure").Observe(time.Since(start).Seconds())
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return nil, NewDispatchError(target.String(), attempts, lastErr)
}

// reply re-addresses a server's response to the original request: same token and message ID, piggybacked
// as ACK if the request was confirmable.
func reply(request, response *coap_codec.Message) *coap_codec.Message {
	msgType := message.NonConfirmable
	if request.Type == message.Confirmable {
		msgType = message.Acknowledgement
	}

	msg := coap_codec.Message{
		Type:      msgType,
		Code:      response.Code,
		MessageID: request.MessageID,
		Token:     request.Token,
		Options:   response.Options,
		Payload:   response.Payload,
	}
	return &msg
}

func failureOutcome(err error) string {
	var resolutionErr *resolver.ResolutionError
	var dispatchErr *DispatchError
	switch {
	case coap_codec.IsCodecError(err), errors.Is(err, ErrNotRequest):
		return "decode_failed"
	case errors.As(err, &resolutionErr):
		return "resolve_failed"
	case errors.As(err, &dispatchErr):
		return "dispatch_failed"
	default:
		return "reply_failed"
	}
}
