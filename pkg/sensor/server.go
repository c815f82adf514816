// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sensor

import (
	"bytes"
	"sync"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/mux"
	coapNet "github.com/plgd-dev/go-coap/v3/net"
	"github.com/plgd-dev/go-coap/v3/options"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/plgd-dev/go-coap/v3/udp/server"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-coap/pkg/coap_codec"
)

// Server serves a Tree over CoAP/UDP.
type Server struct {
	tree    *Tree
	network string
	address string

	conn   *coapNet.UDPConn
	server *server.Server

	stopOnce sync.Once
	served   sync.WaitGroup
}

// NewServer creates a server for tree on address, e.g. "[::]:5683". network is "udp", "udp4" or "udp6".
func NewServer(tree *Tree, network, address string) *Server {
	if network == "" {
		network = "udp"
	}
	return &Server{
		tree:    tree,
		network: network,
		address: address,
	}
}

func (srv *Server) Tree() *Tree {
	return srv.tree
}

// Start binds the socket and serves requests in the background.
func (srv *Server) Start() error {
	conn, err := coapNet.NewListenUDP(srv.network, srv.address)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.DefaultHandle(mux.HandlerFunc(srv.handle))

	srv.conn = conn
	srv.server = udp.NewServer(options.WithMux(router))

	log.WithFields(log.Fields{
		"address":   srv.Address(),
		"resources": srv.tree.Paths(),
	}).Info("Starting CoAP sensor server")

	srv.served.Add(1)
	go func() {
		defer srv.served.Done()
		if err := srv.server.Serve(conn); err != nil {
			log.WithError(err).Error("CoAP sensor server failed")
		}
	}()

	return nil
}

// Address returns the bound address, which is useful for port 0 listeners.
func (srv *Server) Address() string {
	if srv.conn == nil {
		return srv.address
	}
	return srv.conn.LocalAddr().String()
}

// Stop shuts the server down and waits for the serving goroutine.
func (srv *Server) Stop() {
	srv.stopOnce.Do(func() {
		if srv.server == nil {
			return
		}
		srv.server.Stop()
		srv.served.Wait()
		_ = srv.conn.Close()
	})
}

func (srv *Server) handle(w mux.ResponseWriter, r *mux.Message) {
	request, err := coap_codec.FromPool(r.Message)
	if err != nil {
		log.WithError(err).Debug("Failed reading CoAP request")
		_ = w.SetResponse(codes.BadRequest, message.TextPlain, bytes.NewReader([]byte("Malformed request.")))
		return
	}

	response := srv.tree.Serve(request)
	log.WithFields(log.Fields{
		"request":  request,
		"response": response.Code,
	}).Debug("Served CoAP request")

	if err := w.SetResponse(response.Code, message.TextPlain, bytes.NewReader(response.Payload)); err != nil {
		log.WithError(err).Warn("Failed setting CoAP response")
	}
}
