// SPDX-FileCopyrightText: 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package application_agent

import (
	"errors"
	"sync"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/pkg/bpv7"

	"github.com/dtn7/dtn7-coap/pkg/aap"
	"github.com/dtn7/dtn7-coap/pkg/id_keeper"
	"github.com/dtn7/dtn7-coap/pkg/metrics"
)

// DefaultLifetime of bundles created by the Manager.
const DefaultLifetime = "24h"

// Manager is the bundle agent of a single node.
// It keeps track of the node's application agents and of the links to other nodes.
type Manager struct {
	stateMutex sync.RWMutex

	nodeID    bpv7.EndpointID
	lifetime  string
	sequencer *id_keeper.BundleSequencer
	agents    map[string]ApplicationAgent
	routes    map[bpv7.EndpointID]Forwarder
}

// NewManager creates the bundle agent of node nodeID.
// If sequencer is nil, then the manager uses its own.
func NewManager(nodeID bpv7.EndpointID, sequencer *id_keeper.BundleSequencer) (*Manager, error) {
	node, err := aap.NodeEndpoint(nodeID)
	if err != nil {
		return nil, err
	}

	if sequencer == nil {
		sequencer = id_keeper.NewBundleSequencer()
	}

	manager := Manager{
		nodeID:    node,
		lifetime:  DefaultLifetime,
		sequencer: sequencer,
		agents:    make(map[string]ApplicationAgent),
		routes:    make(map[bpv7.EndpointID]Forwarder),
	}
	return &manager, nil
}

func (manager *Manager) NodeID() bpv7.EndpointID {
	return manager.nodeID
}

// SetLifetime changes the lifetime of subsequently created bundles, e.g. "10m".
func (manager *Manager) SetLifetime(lifetime string) {
	manager.stateMutex.Lock()
	defer manager.stateMutex.Unlock()

	manager.lifetime = lifetime
}

// Shutdown stops all registered agents.
// Agents are stopped outside of the lock, since they might still be sending bundles.
func (manager *Manager) Shutdown() {
	manager.stateMutex.Lock()
	agents := make([]ApplicationAgent, 0, len(manager.agents))
	for agentName, agent := range manager.agents {
		delete(manager.agents, agentName)
		agents = append(agents, agent)
	}
	manager.stateMutex.Unlock()

	for _, agent := range agents {
		agent.Shutdown()
	}
}

// GetEndpoints returns a slice of all registered Endpoints on this node
func (manager *Manager) GetEndpoints() []bpv7.EndpointID {
	manager.stateMutex.RLock()
	defer manager.stateMutex.RUnlock()

	endpoints := make([]bpv7.EndpointID, 0)

	for _, agent := range manager.agents {
		endpoints = append(endpoints, agent.Endpoints()...)
	}

	return endpoints
}

// RegisterAgent registers and start a new ApplicationAgent
// If an agent with the same name is already registered, then method returns an AgentAlreadyRegisteredError
// If the agent's startup fails,the resulting error will be returned, and the agent will NOT be registered.
func (manager *Manager) RegisterAgent(newAgent ApplicationAgent) error {
	manager.stateMutex.Lock()
	defer manager.stateMutex.Unlock()

	agentName := newAgent.Name()

	if _, ok := manager.agents[agentName]; ok {
		return NewAgentAlreadyRegisteredError(agentName)
	}

	err := newAgent.Start()
	if err != nil {
		return err
	}

	manager.agents[agentName] = newAgent

	return nil
}

// UnregisterAgent stops an application agent and removes it from the manager.
// If no agent with the given name is registered, then method returns a NoSuchAgentError.
func (manager *Manager) UnregisterAgent(agentName string) error {
	manager.stateMutex.Lock()
	agent, ok := manager.agents[agentName]
	if !ok {
		manager.stateMutex.Unlock()
		return NewNoSuchAgentError(agentName)
	}
	delete(manager.agents, agentName)
	manager.stateMutex.Unlock()

	agent.Shutdown()

	return nil
}

// AddRoute forwards all bundles addressed to the given node through forwarder.
// An existing route to the same node gets replaced.
func (manager *Manager) AddRoute(node bpv7.EndpointID, forwarder Forwarder) {
	node, err := aap.NodeEndpoint(node)
	if err != nil {
		log.WithError(err).WithField("node", node).Warn("Refusing route to unsupported endpoint")
		return
	}

	manager.stateMutex.Lock()
	defer manager.stateMutex.Unlock()

	log.WithFields(log.Fields{
		"node": manager.nodeID,
		"peer": node,
	}).Debug("Adding route")
	manager.routes[node] = forwarder
}

func (manager *Manager) RemoveRoute(node bpv7.EndpointID) {
	node, err := aap.NodeEndpoint(node)
	if err != nil {
		return
	}

	manager.stateMutex.Lock()
	defer manager.stateMutex.Unlock()

	delete(manager.routes, node)
}

// IsLocal reports whether eid belongs to this node.
func (manager *Manager) IsLocal(eid bpv7.EndpointID) bool {
	return manager.nodeID.SameNode(eid)
}

// Send wraps an ADU into a new bundle and dispatches it.
// Bundles for this node are delivered locally, all others are handed to the route of their destination node.
// Returns the new bundle's ID or a NoRouteError, if no route to the destination is known.
func (manager *Manager) Send(adu *aap.BundleADU) (string, error) {
	manager.stateMutex.RLock()
	lifetime := manager.lifetime
	manager.stateMutex.RUnlock()

	bndl, err := bpv7.Builder().
		Source(adu.SourceEID).
		Destination(adu.DestinationEID).
		CreationTimestampNow().
		Lifetime(lifetime).
		PayloadBlock(adu.Payload).
		Build()
	if err != nil {
		return "", err
	}
	manager.sequencer.Update(&bndl)

	bundleID := bndl.ID().String()
	log.WithFields(log.Fields{
		"bundle":      bundleID,
		"destination": adu.DestinationEID,
	}).Debug("Application agent sent bundle")
	metrics.BundlesTotal.WithLabelValues("sent").Inc()

	destination := bndl.PrimaryBlock.Destination
	if manager.IsLocal(destination) {
		if err := manager.Receive(&bndl); err != nil {
			log.WithError(err).WithField("bundle", bundleID).Info("Local delivery failed")
		}
		return bundleID, nil
	}

	node, err := aap.NodeEndpoint(destination)
	if err != nil {
		return "", err
	}

	manager.stateMutex.RLock()
	forwarder, ok := manager.routes[node]
	manager.stateMutex.RUnlock()
	if !ok {
		metrics.BundlesTotal.WithLabelValues("unroutable").Inc()
		return "", NewNoRouteError(node)
	}

	if err := forwarder.Forward(&bndl); err != nil {
		return "", err
	}
	metrics.BundlesTotal.WithLabelValues("forwarded").Inc()

	return bundleID, nil
}

// Receive hands a bundle addressed to this node to all registered agents.
// An error is returned if no agent accepted the bundle.
func (manager *Manager) Receive(bndl *bpv7.Bundle) error {
	metrics.BundlesTotal.WithLabelValues("received").Inc()

	if !manager.IsLocal(bndl.PrimaryBlock.Destination) {
		metrics.BundlesTotal.WithLabelValues("dropped").Inc()
		return NewForeignIDError(bndl.PrimaryBlock.Destination)
	}

	adu, err := aduFromBundle(bndl)
	if err != nil {
		metrics.BundlesTotal.WithLabelValues("dropped").Inc()
		return err
	}

	manager.stateMutex.RLock()
	defer manager.stateMutex.RUnlock()

	var deliveryErrors error
	delivered := false
	for _, agent := range manager.agents {
		err := agent.Deliver(adu)
		if err == nil {
			delivered = true
			continue
		}

		var noSuchID *NoSuchIDError
		if !errors.As(err, &noSuchID) {
			log.WithFields(log.Fields{
				"bundle": bndl.ID().String(),
				"agent":  agent.Name(),
				"error":  err,
			}).Debug("Error delivering bundle")
		}
		deliveryErrors = multierror.Append(deliveryErrors, err)
	}

	if delivered {
		metrics.BundlesTotal.WithLabelValues("delivered").Inc()
		return nil
	}

	metrics.BundlesTotal.WithLabelValues("dropped").Inc()
	if deliveryErrors == nil {
		return NewNoSuchIDError(bndl.PrimaryBlock.Destination)
	}
	return deliveryErrors
}

func aduFromBundle(bndl *bpv7.Bundle) (*aap.BundleADU, error) {
	payloadBlock, err := bndl.PayloadBlock()
	if err != nil {
		return nil, err
	}
	payload := payloadBlock.Value.(*bpv7.PayloadBlock).Data()

	adu := aap.NewBundleADU(bndl.PrimaryBlock.SourceNode.String(), bndl.PrimaryBlock.Destination.String(), payload)
	return adu, nil
}
