// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2023, 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rest_agent provides a RESTful Application Agent for inspecting the bundle agent and injecting ADUs.
//
// A client must register itself for some endpoint ID at first. After that, ADUs sent to this endpoint can be
// fetched or new ADUs can be sent. Finally, a client should unregister itself. Besides the agent's own routes
// below its prefix, the server answers GET /status, /health and /metrics.
//
// A possible conversation follows as an example.
//
//	// 1. Registration of our client, POST to /register
//	// -> {"endpoint_id":"dtn://foo/bar","secret":""}
//	// <- {"error":"","uuid":"75be76e2-23fc-4a0e-8eb8-4773f84a9d2f"}
//
//	// 2. Fetching ADUs for our client, POST to /fetch
//	// -> {"uuid":"75be76e2-23fc-4a0e-8eb8-4773f84a9d2f"}
//	// <- {"error":"","adus":[{"source":"dtn://sender/snd","destination":"dtn://foo/bar","payload":"aGVsbG8="}]}
//
//	// 3. Dispatch a new ADU, POST to /send
//	// -> {"uuid":"75be76e2-23fc-4a0e-8eb8-4773f84a9d2f","destination":"dtn://dst/rec","payload":"aGVsbG8="}
//	// <- {"error":"","bundle_id":"dtn://foo/bar-1712000000000-0"}
//
//	// 4. Unregister the client, POST to /unregister
//	// -> {"uuid":"75be76e2-23fc-4a0e-8eb8-4773f84a9d2f"}
//	// <- {"error":""}
package rest_agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/pkg/bpv7"

	"github.com/dtn7/dtn7-coap/pkg/aap"
	"github.com/dtn7/dtn7-coap/pkg/application_agent"
	"github.com/dtn7/dtn7-coap/pkg/metrics"
)

type RestAgent struct {
	router        *mux.Router
	listenAddress string
	manager       *application_agent.Manager

	// map UUIDs to EIDs
	clients   sync.Map // uuid[string] -> bpv7.EndpointID
	mailboxes *application_agent.MailboxBank

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRestAgent(manager *application_agent.Manager, prefix, listenAddress string) (ra *RestAgent) {
	ra = &RestAgent{
		listenAddress: listenAddress,
		manager:       manager,
		mailboxes:     application_agent.NewMailboxBank("", 0),
	}

	r := metrics.NewRouter()
	r.HandleFunc("/status", ra.handleStatus).Methods(http.MethodGet)
	ra.router = r

	restRouter := r.PathPrefix(prefix).Subrouter()
	restRouter.HandleFunc("/register", ra.handleRegister).Methods(http.MethodPost)
	restRouter.HandleFunc("/unregister", ra.handleUnregister).Methods(http.MethodPost)
	restRouter.HandleFunc("/fetch", ra.handleFetch).Methods(http.MethodPost)
	restRouter.HandleFunc("/send", ra.handleSend).Methods(http.MethodPost)

	return ra
}

func (ra *RestAgent) Name() string {
	return fmt.Sprintf("RestAgent(%v)", ra.listenAddress)
}

// Handler exposes the agent's routes, e.g., for tests.
func (ra *RestAgent) Handler() http.Handler {
	return ra.router
}

func (ra *RestAgent) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	ra.cancel = cancel
	ra.done = make(chan struct{})

	go func() {
		defer close(ra.done)
		if err := metrics.Serve(ctx, ra.listenAddress, ra.router); err != nil {
			log.WithError(err).WithField("address", ra.listenAddress).Error("RestAgent's HTTP server failed")
		}
	}()

	return nil
}

func (ra *RestAgent) Shutdown() {
	if ra.cancel == nil {
		return
	}
	ra.cancel()
	<-ra.done
}

// Deliver puts incoming ADUs in a mailbox.
func (ra *RestAgent) Deliver(adu *aap.BundleADU) error {
	return ra.mailboxes.Deliver(adu)
}

func (ra *RestAgent) Endpoints() []bpv7.EndpointID {
	return ra.mailboxes.RegisteredIDs()
}

func writeJSON(w http.ResponseWriter, v any, what string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warnf("Failed to write REST %s response", what)
	}
}

// handleStatus reports the node ID and all registered endpoints, called by GET /status.
func (ra *RestAgent) handleStatus(w http.ResponseWriter, _ *http.Request) {
	endpoints := ra.manager.GetEndpoints()

	statusResponse := RestStatusResponse{
		NodeID:    ra.manager.NodeID().String(),
		Endpoints: make([]string, 0, len(endpoints)),
	}
	for _, eid := range endpoints {
		statusResponse.Endpoints = append(statusResponse.Endpoints, eid.String())
	}

	writeJSON(w, statusResponse, "status")
}

// handleRegister processes /register POST requests.
func (ra *RestAgent) handleRegister(w http.ResponseWriter, r *http.Request) {
	var (
		registerRequest  RestRegisterRequest
		registerResponse RestRegisterResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&registerRequest); jsonErr != nil {
		registerResponse.Error = jsonErr.Error()
	} else if eid, eidErr := bpv7.NewEndpointID(registerRequest.EndpointId); eidErr != nil {
		registerResponse.Error = eidErr.Error()
	} else if !ra.manager.IsLocal(eid) {
		registerResponse.Error = application_agent.NewForeignIDError(eid).Error()
	} else if _, regErr := ra.mailboxes.Register(eid, registerRequest.Secret); regErr != nil {
		registerResponse.Error = regErr.Error()
	} else {
		clientID := uuid.NewString()
		ra.clients.Store(clientID, eid)
		registerResponse.UUID = clientID
	}

	log.WithFields(log.Fields{
		"endpoint": registerRequest.EndpointId,
		"response": registerResponse,
	}).Info("Processing REST registration")

	writeJSON(w, registerResponse, "registration")
}

// handleUnregister processes /unregister POST requests.
func (ra *RestAgent) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var (
		unregisterRequest  RestUnregisterRequest
		unregisterResponse RestUnregisterResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&unregisterRequest); jsonErr != nil {
		log.WithError(jsonErr).Warn("Failed to parse REST unregistration request")
		unregisterResponse.Error = jsonErr.Error()
	} else {
		log.WithField("uuid", unregisterRequest.UUID).Info("Unregister REST client")
		if eid, ok := ra.clients.LoadAndDelete(unregisterRequest.UUID); ok {
			if err := ra.mailboxes.Unregister(eid.(bpv7.EndpointID)); err != nil {
				log.WithFields(log.Fields{
					"uuid":  unregisterRequest.UUID,
					"eid":   eid,
					"error": err,
				}).Debug("Error unregistering eid")
				unregisterResponse.Error = err.Error()
			}
		} else {
			log.WithField("uuid", unregisterRequest.UUID).Debug("REST agent does not know client")
			unregisterResponse.Error = "REST agent does not know client"
		}
	}

	writeJSON(w, unregisterResponse, "unregistration")
}

// handleFetch returns and removes the ADUs from some client's mailbox, called by /fetch.
func (ra *RestAgent) handleFetch(w http.ResponseWriter, r *http.Request) {
	var (
		fetchRequest  RestFetchRequest
		fetchResponse RestFetchResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&fetchRequest); jsonErr != nil {
		log.WithError(jsonErr).Warn("Failed to parse REST fetch request")
		fetchResponse.Error = jsonErr.Error()
	} else if eid, ok := ra.clients.Load(fetchRequest.UUID); ok {
		log.WithFields(log.Fields{
			"uuid": fetchRequest.UUID,
			"eid":  eid,
		}).Debug("REST client fetches ADUs")

		if mailbox, err := ra.mailboxes.GetMailbox(eid.(bpv7.EndpointID)); err == nil {
			adus := mailbox.GetAll(true)
			fetchResponse.ADUs = make([]RestADU, 0, len(adus))
			for _, adu := range adus {
				fetchResponse.ADUs = append(fetchResponse.ADUs, RestADU{
					Source:      adu.SourceEID,
					Destination: adu.DestinationEID,
					Payload:     adu.Payload,
				})
			}
		} else {
			log.WithFields(log.Fields{
				"uuid": fetchRequest.UUID,
				"eid":  eid,
			}).Debug("No mailbox registered for this eid")
			fetchResponse.Error = err.Error()
		}
	} else {
		log.WithField("uuid", fetchRequest.UUID).Debug("REST agent does not know client")
		fetchResponse.Error = "REST agent does not know client"
	}

	writeJSON(w, fetchResponse, "fetch")
}

// handleSend wraps the posted payload into a bundle from the client's endpoint, called by /send.
func (ra *RestAgent) handleSend(w http.ResponseWriter, r *http.Request) {
	var (
		sendRequest  RestSendRequest
		sendResponse RestSendResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&sendRequest); jsonErr != nil {
		log.WithError(jsonErr).Warn("Failed to parse REST send request")
		sendResponse.Error = jsonErr.Error()
	} else if eid, ok := ra.clients.Load(sendRequest.UUID); !ok {
		log.WithField("uuid", sendRequest.UUID).Debug("REST client cannot send for unknown UUID")
		sendResponse.Error = "Invalid UUID"
	} else if _, eidErr := bpv7.NewEndpointID(sendRequest.Destination); eidErr != nil {
		sendResponse.Error = eidErr.Error()
	} else {
		adu := aap.NewBundleADU(eid.(bpv7.EndpointID).String(), sendRequest.Destination, sendRequest.Payload)
		if bundleID, err := ra.manager.Send(adu); err != nil {
			log.WithError(err).WithField("uuid", sendRequest.UUID).Warn("REST client failed to send an ADU")
			sendResponse.Error = err.Error()
		} else {
			log.WithFields(log.Fields{
				"uuid":   sendRequest.UUID,
				"bundle": bundleID,
			}).Info("REST client sent bundle")
			sendResponse.BundleID = bundleID
		}
	}

	writeJSON(w, sendResponse, "send")
}
