// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package application_agent

import (
	"bytes"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// Forwarder moves a bundle towards another node.
type Forwarder interface {
	Forward(bndl *bpv7.Bundle) error
}

// Link connects two managers within the same process.
// Bundles are serialised to CBOR and parsed again, as if they were sent over the wire.
type Link struct {
	peer *Manager
}

func NewLink(peer *Manager) *Link {
	return &Link{peer: peer}
}

func (link *Link) Forward(bndl *bpv7.Bundle) error {
	buff := new(bytes.Buffer)
	if err := bndl.MarshalCbor(buff); err != nil {
		return err
	}

	received, err := bpv7.ParseBundle(buff)
	if err != nil {
		return err
	}

	return link.peer.Receive(&received)
}

// Connect links two managers with each other in both directions.
func Connect(a, b *Manager) {
	a.AddRoute(b.NodeID(), NewLink(b))
	b.AddRoute(a.NodeID(), NewLink(a))
}
