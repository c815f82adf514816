// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package gateway

import (
	"context"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/options"
	"github.com/plgd-dev/go-coap/v3/udp"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-coap/pkg/coap_codec"
	"github.com/dtn7/dtn7-coap/pkg/id_keeper"
	"github.com/dtn7/dtn7-coap/pkg/resolver"
)

// Dispatcher performs one CoAP exchange with a resolved target.
type Dispatcher interface {
	Dispatch(ctx context.Context, target resolver.Endpoint, request *coap_codec.Message) (*coap_codec.Message, error)
}

// UDPDispatcher exchanges requests over a fresh go-coap UDP client connection per request.
// Every dispatched request carries a new message ID and token; the relayed request's own identifiers never
// leave the gateway.
type UDPDispatcher struct {
	ids *id_keeper.IdKeeper
}

// NewUDPDispatcher creates a dispatcher drawing identifiers from ids. A nil ids gets a private IdKeeper.
func NewUDPDispatcher(ids *id_keeper.IdKeeper) *UDPDispatcher {
	if ids == nil {
		ids = id_keeper.NewIdKeeper()
	}
	return &UDPDispatcher{ids: ids}
}

// Dispatch sends request as a confirmable message to target and waits for the response until ctx is done.
func (dispatcher *UDPDispatcher) Dispatch(ctx context.Context, target resolver.Endpoint, request *coap_codec.Message) (*coap_codec.Message, error) {
	conn, err := udp.Dial(target.Address(),
		options.WithContext(ctx),
		options.WithNetwork(string(target.Network)))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.WithError(err).WithField("target", target).Debug("Closing CoAP client connection failed")
		}
	}()

	mid, err := dispatcher.ids.Acquire()
	if err != nil {
		return nil, err
	}
	defer dispatcher.ids.Release(mid)

	req := conn.AcquireMessage(ctx)
	defer conn.ReleaseMessage(req)

	request.Fill(req)
	req.SetType(message.Confirmable)
	req.SetMessageID(int32(mid))
	req.SetToken(dispatcher.ids.NextToken())

	log.WithFields(log.Fields{
		"target":  target,
		"request": request,
		"mid":     mid,
		"token":   req.Token(),
	}).Debug("Dispatching CoAP request")

	resp, err := conn.Do(req)
	if err != nil {
		return nil, err
	}
	defer conn.ReleaseMessage(resp)

	return coap_codec.FromPool(resp)
}
