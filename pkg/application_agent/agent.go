// SPDX-FileCopyrightText: 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package application_agent contains the loopback bundle agent. Application agents hand ADUs to the Manager,
// which wraps them into bundles and either delivers them locally or forwards them over a link to a peer node.
package application_agent

import (
	"github.com/dtn7/dtn7-go/pkg/bpv7"

	"github.com/dtn7/dtn7-coap/pkg/aap"
)

type ApplicationAgent interface {
	// Name returns a unique identifier for this agent.
	Name() string

	// Endpoints returns the EndpointIDs that this ApplicationAgent answers to.
	Endpoints() []bpv7.EndpointID

	// Deliver hands a received ADU to the agent.
	// Agents which do not answer to the ADU's destination return a NoSuchIDError.
	Deliver(adu *aap.BundleADU) error

	Start() error

	Shutdown()
}
