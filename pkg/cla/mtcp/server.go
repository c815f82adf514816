// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mtcp implements the Minimal TCP Convergence-Layer, which links two bundle agents.
// Each bundle is sent as a CBOR byte string holding the CBOR encoded bundle. Empty byte strings are keepalives.
package mtcp

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/cboring"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// ReceiveFunc is called for every bundle read by a MTCPServer.
type ReceiveFunc func(bndl *bpv7.Bundle) error

// MTCPServer is an implementation of a Minimal TCP Convergence-Layer server
// which accepts bundles from multiple connections and hands them to its ReceiveFunc.
type MTCPServer struct {
	listenAddress string
	endpointID    bpv7.EndpointID
	receive       ReceiveFunc

	listener *net.TCPListener
	conns    sync.WaitGroup

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewMTCPServer creates a new MTCPServer for the given listen address.
func NewMTCPServer(listenAddress string, endpointID bpv7.EndpointID, receive ReceiveFunc) *MTCPServer {
	return &MTCPServer{
		listenAddress: listenAddress,
		endpointID:    endpointID,
		receive:       receive,
		stopSyn:       make(chan struct{}),
		stopAck:       make(chan struct{}),
	}
}

func (serv *MTCPServer) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", serv.listenAddress)
	if err != nil {
		return err
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return err
	}
	serv.listener = ln

	go func(ln *net.TCPListener) {
		for {
			select {
			case <-serv.stopSyn:
				_ = ln.Close()
				close(serv.stopAck)

				return

			default:
				if err := ln.SetDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
					log.WithFields(log.Fields{
						"cla":   serv,
						"error": err,
					}).Warn("MTCPServer failed to set deadline on TCP socket")

					_ = ln.Close()
					close(serv.stopAck)
					return
				} else if conn, err := ln.Accept(); err == nil {
					serv.conns.Add(1)
					go serv.handleSender(conn)
				}
			}
		}
	}(ln)

	return nil
}

func (serv *MTCPServer) handleSender(conn net.Conn) {
	defer serv.conns.Done()
	defer func() {
		_ = conn.Close()

		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"cla":   serv,
				"conn":  conn.RemoteAddr(),
				"error": r,
			}).Warn("MTCPServer's sender failed")
		}
	}()

	log.WithFields(log.Fields{
		"cla":  serv,
		"conn": conn.RemoteAddr(),
	}).Debug("MTCP handleServer connection was established")

	go func() {
		<-serv.stopSyn
		_ = conn.Close()
	}()

	connReader := bufio.NewReader(conn)
	for {
		if n, err := cboring.ReadByteStringLen(connReader); err != nil {
			log.WithFields(log.Fields{
				"cla":   serv,
				"conn":  conn.RemoteAddr(),
				"error": err,
			}).Debug("MTCP handleServer connection failed to read byte string len")

			return
		} else if n == 0 {
			continue
		}

		bndl := new(bpv7.Bundle)
		if err := cboring.Unmarshal(bndl, connReader); err != nil {
			log.WithFields(log.Fields{
				"cla":   serv,
				"conn":  conn.RemoteAddr(),
				"error": err,
			}).Warn("MTCP handleServer connection failed to read bundle")

			return
		}

		log.WithFields(log.Fields{
			"cla":    serv,
			"bundle": bndl.ID().String(),
		}).Debug("MTCP handleServer connection received a bundle")

		if err := serv.receive(bndl); err != nil {
			log.WithFields(log.Fields{
				"cla":    serv,
				"bundle": bndl.ID().String(),
				"error":  err,
			}).Info("Received bundle was not delivered")
		}
	}
}

// Close stops accepting connections and terminates the established ones.
func (serv *MTCPServer) Close() error {
	close(serv.stopSyn)
	<-serv.stopAck
	serv.conns.Wait()

	return nil
}

func (serv *MTCPServer) GetEndpointID() bpv7.EndpointID {
	return serv.endpointID
}

// Address returns the listening address, e.g., to learn the port chosen for ":0".
func (serv *MTCPServer) Address() string {
	if serv.listener != nil {
		return serv.listener.Addr().String()
	}
	return serv.listenAddress
}

func (serv *MTCPServer) String() string {
	return fmt.Sprintf("mtcp://%s", serv.Address())
}
