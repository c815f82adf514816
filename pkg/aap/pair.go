// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package aap

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// PairConfig describes the two sessions a node opens to its bundle agent.
type PairConfig struct {
	Network string
	Address string

	// SendAgentID is bound to the requester session, ReceiveAgentID to the subscribed one.
	SendAgentID    string
	ReceiveAgentID string

	// Secret is used for both sessions. If empty, the first Configure generates one.
	Secret    string
	Keepalive time.Duration
}

// Pair holds a requester session for sending and a subscribed session for receiving.
type Pair struct {
	Sender   *Channel
	Receiver *Channel
}

// DialPair opens and configures both sessions. If either step fails, every session opened so far is closed.
func DialPair(ctx context.Context, config PairConfig) (*Pair, error) {
	sender, err := Dial(ctx, config.Network, config.Address)
	if err != nil {
		return nil, err
	}

	secret, err := sender.Configure(config.SendAgentID, config.Secret, false, config.Keepalive)
	if err != nil {
		_ = sender.Disconnect()
		return nil, err
	}

	receiver, err := Dial(ctx, config.Network, config.Address)
	if err != nil {
		_ = sender.Disconnect()
		return nil, err
	}

	if _, err := receiver.Configure(config.ReceiveAgentID, secret, true, config.Keepalive); err != nil {
		_ = sender.Disconnect()
		_ = receiver.Disconnect()
		return nil, err
	}

	log.WithFields(log.Fields{
		"sender":   sender.Endpoint(),
		"receiver": receiver.Endpoint(),
	}).Info("Bundle agent sessions established")

	return &Pair{Sender: sender, Receiver: receiver}, nil
}

// Secret returns the secret both sessions were configured with.
func (pair *Pair) Secret() string {
	return pair.Sender.Secret()
}

// Close disconnects both sessions.
func (pair *Pair) Close() error {
	var err *multierror.Error
	if senderErr := pair.Sender.Disconnect(); senderErr != nil {
		err = multierror.Append(err, senderErr)
	}
	if receiverErr := pair.Receiver.Disconnect(); receiverErr != nil {
		err = multierror.Append(err, receiverErr)
	}
	return err.ErrorOrNil()
}
