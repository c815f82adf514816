// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package originator issues CoAP requests across the DTN and matches the replies coming back.
//
// Requests leave through a requester session; replies arrive on a subscribed session and are handed to the
// waiting caller by their token. Both directions run concurrently, so several requests may be in flight.
package originator

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-coap/pkg/aap"
	"github.com/dtn7/dtn7-coap/pkg/coap_codec"
	"github.com/dtn7/dtn7-coap/pkg/correlator"
	"github.com/dtn7/dtn7-coap/pkg/id_keeper"
	"github.com/dtn7/dtn7-coap/pkg/metrics"
)

// DefaultTimeout bounds the wait for a reply; bundles may take a while.
const DefaultTimeout = 60 * time.Second

// Outbound is the requester session requests are sent through.
type Outbound interface {
	Send(ctx context.Context, adu *aap.BundleADU) (string, error)
}

// Inbound is the subscribed session replies arrive on.
type Inbound interface {
	Receive(ctx context.Context) (*aap.BundleADU, error)
	Ack(status aap.ResponseStatus) error
}

type Config struct {
	// Destination is the endpoint of the remote gateway, e.g. dtn://b.dtn/rec.
	Destination string
	Timeout     time.Duration
}

type Originator struct {
	outbound   Outbound
	inbound    Inbound
	ids        *id_keeper.IdKeeper
	correlator *correlator.Correlator
	config     Config
}

func NewOriginator(outbound Outbound, inbound Inbound, ids *id_keeper.IdKeeper, corr *correlator.Correlator, config Config) *Originator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if ids == nil {
		ids = id_keeper.NewIdKeeper()
	}
	if corr == nil {
		corr = correlator.NewCorrelator()
	}

	return &Originator{
		outbound:   outbound,
		inbound:    inbound,
		ids:        ids,
		correlator: corr,
		config:     config,
	}
}

func (orig *Originator) Correlator() *correlator.Correlator {
	return orig.correlator
}

// Do sends request to the remote gateway and waits for the reply.
// The request gets a fresh message ID and token; the caller's values are ignored.
func (orig *Originator) Do(ctx context.Context, request *coap_codec.Message) (*coap_codec.Message, error) {
	mid, err := orig.ids.Acquire()
	if err != nil {
		metrics.ClientRequestsTotal.WithLabelValues("exhausted").Inc()
		return nil, err
	}
	defer orig.ids.Release(mid)

	msg := *request
	msg.MessageID = mid
	msg.Token = orig.ids.NextToken()

	payload, err := coap_codec.Encode(&msg)
	if err != nil {
		metrics.ClientRequestsTotal.WithLabelValues("encode_failed").Inc()
		return nil, err
	}

	if err := orig.correlator.Register(msg.Token); err != nil {
		return nil, err
	}

	logger := log.WithField("request", &msg)
	start := time.Now()

	bundleID, err := orig.outbound.Send(ctx, aap.NewBundleADU("", orig.config.Destination, payload))
	if err != nil {
		orig.correlator.Cancel(msg.Token)
		metrics.ClientRequestsTotal.WithLabelValues("send_failed").Inc()
		return nil, err
	}
	logger.WithField("bundle", bundleID).Debug("Request handed to bundle agent")

	response, err := orig.correlator.Await(ctx, msg.Token, orig.config.Timeout)
	if err != nil {
		var timeoutErr *correlator.CorrelationTimeoutError
		if errors.As(err, &timeoutErr) {
			metrics.ClientRequestsTotal.WithLabelValues("timeout").Inc()
		} else {
			metrics.ClientRequestsTotal.WithLabelValues("cancelled").Inc()
		}
		return nil, err
	}

	metrics.ClientRoundTripDuration.Observe(time.Since(start).Seconds())
	metrics.ClientRequestsTotal.WithLabelValues("success").Inc()
	logger.WithField("response", response).Debug("Received reply")

	return response, nil
}

// RunReceiver hands every reply arriving on the inbound session to the correlator until ctx is done or the
// session fails. Returns nil if ctx ended the loop.
// Replies nobody waits for are dropped; undecodable payloads are acknowledged with ERROR.
func (orig *Originator) RunReceiver(ctx context.Context) error {
	for {
		adu, err := orig.inbound.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		status := aap.StatusSuccess
		response, err := coap_codec.Decode(adu.Payload)
		if err != nil {
			log.WithError(err).WithField("adu", adu).Warn("Received undecodable reply")
			status = aap.StatusError
		} else if !orig.correlator.Deliver(response) {
			log.WithField("response", response).Info("Dropping reply without pending request")
		}

		if err := orig.inbound.Ack(status); err != nil {
			return err
		}
	}
}
