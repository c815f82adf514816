// SPDX-FileCopyrightText: 2019, 2021, 2024 Markus Sommer
// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2021, 2024 Artur Sterz
// SPDX-FileCopyrightText: 2021 Jonas Höchst
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mtcp

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/cboring"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// KeepaliveInterval between two empty byte strings sent on an idle connection.
const KeepaliveInterval = 5 * time.Second

// MTCPClient is an implementation of a Minimal TCP Convergence-Layer client
// which connects to a MTCP server to send bundles. It serves as a static link
// of the bundle agent, i.e., it forwards all bundles for its peer node.
//
// A failed connection is not retried in the background; the next Forward dials again.
type MTCPClient struct {
	conn  net.Conn
	peer  bpv7.EndpointID
	mutex sync.Mutex

	address string

	stopSyn chan struct{}
}

// NewMTCPClient creates a new MTCPClient for the peer node reachable at the given address.
func NewMTCPClient(address string, peer bpv7.EndpointID) *MTCPClient {
	return &MTCPClient{
		peer:    peer,
		address: address,
	}
}

// Activate establishes the connection.
func (client *MTCPClient) Activate() error {
	client.mutex.Lock()
	defer client.mutex.Unlock()

	return client.activate()
}

// activate dials the server; the caller holds the mutex.
func (client *MTCPClient) activate() error {
	if client.conn != nil {
		return nil
	}

	conn, err := dialPeer(client.address)
	if err != nil {
		return err
	}

	client.conn = conn
	client.stopSyn = make(chan struct{})

	log.WithFields(log.Fields{
		"client": client.String(),
		"peer":   client.peer,
	}).Info("MTCPClient connected")

	go client.handler(conn, client.stopSyn)
	return nil
}

func (client *MTCPClient) handler(conn net.Conn, stopSyn chan struct{}) {
	var ticker = time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopSyn:
			_ = conn.Close()
			return

		case <-ticker.C:
			client.mutex.Lock()
			if client.conn != conn {
				client.mutex.Unlock()
				return
			}
			err := cboring.WriteByteStringLen(0, conn)
			if err != nil {
				log.WithFields(log.Fields{
					"client": client.String(),
					"error":  err,
				}).Error("MTCPClient: Keepalive erred")

				client.disconnect()
			}
			client.mutex.Unlock()
		}
	}
}

// Forward sends a bundle to the peer, dialing first if there is no connection.
func (client *MTCPClient) Forward(bndl *bpv7.Bundle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("MTCPClient.Forward: %v", r)
		}
	}()

	client.mutex.Lock()
	defer client.mutex.Unlock()

	if err = client.activate(); err != nil {
		return
	}

	defer func() {
		if err != nil {
			client.disconnect()
		}
	}()

	log.WithField("bundle", bndl.ID().String()).Debug("mtcp sending bundle")

	connWriter := bufio.NewWriter(client.conn)

	buff := new(bytes.Buffer)
	if cborErr := cboring.Marshal(bndl, buff); cborErr != nil {
		err = cborErr
		return
	}

	if bsErr := cboring.WriteByteStringLen(uint64(buff.Len()), connWriter); bsErr != nil {
		err = bsErr
		return
	}

	if _, plErr := buff.WriteTo(connWriter); plErr != nil {
		err = plErr
		return
	}

	if flushErr := connWriter.Flush(); flushErr != nil {
		err = flushErr
		return
	}

	// Check if the connection is still alive with an empty, unbuffered packet
	if probeErr := cboring.WriteByteStringLen(0, client.conn); probeErr != nil {
		err = probeErr
		return
	}

	return
}

// disconnect drops the current connection; the caller holds the mutex.
func (client *MTCPClient) disconnect() {
	if client.conn == nil {
		return
	}

	close(client.stopSyn)
	client.conn = nil
}

func (client *MTCPClient) Close() error {
	client.mutex.Lock()
	defer client.mutex.Unlock()

	client.disconnect()
	return nil
}

func (client *MTCPClient) GetPeerEndpointID() bpv7.EndpointID {
	return client.peer
}

func (client *MTCPClient) Address() string {
	return client.address
}

func (client *MTCPClient) String() string {
	return fmt.Sprintf("mtcp://%s", client.address)
}
