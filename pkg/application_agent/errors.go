// SPDX-FileCopyrightText: 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package application_agent

import (
	"fmt"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

type AgentAlreadyRegisteredError string

func NewAgentAlreadyRegisteredError(name string) *AgentAlreadyRegisteredError {
	err := AgentAlreadyRegisteredError(name)
	return &err
}

func (err *AgentAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("Agent has already been registered: %v", string(*err))
}

type NoSuchAgentError string

func NewNoSuchAgentError(name string) *NoSuchAgentError {
	err := NoSuchAgentError(name)
	return &err
}

func (err *NoSuchAgentError) Error() string {
	return fmt.Sprintf("No such agent registered: %v", string(*err))
}

// InvalidSecretError is returned if an endpoint is registered again with a differing secret.
type InvalidSecretError bpv7.EndpointID

func NewInvalidSecretError(eid bpv7.EndpointID) *InvalidSecretError {
	err := InvalidSecretError(eid)
	return &err
}

func (err *InvalidSecretError) Error() string {
	return fmt.Sprintf("Secret does not match registration of %v", bpv7.EndpointID(*err).String())
}

type NoSuchIDError bpv7.EndpointID

func NewNoSuchIDError(eid bpv7.EndpointID) *NoSuchIDError {
	err := NoSuchIDError(eid)
	return &err
}

func (err *NoSuchIDError) Error() string {
	return fmt.Sprintf("No such ID has been registered: %v", bpv7.EndpointID(*err).String())
}

// ForeignIDError is returned if an endpoint outside of the agent's node should be registered.
type ForeignIDError bpv7.EndpointID

func NewForeignIDError(eid bpv7.EndpointID) *ForeignIDError {
	err := ForeignIDError(eid)
	return &err
}

func (err *ForeignIDError) Error() string {
	return fmt.Sprintf("ID %v does not belong to this node", bpv7.EndpointID(*err).String())
}

type MailboxFullError bpv7.EndpointID

func NewMailboxFullError(eid bpv7.EndpointID) *MailboxFullError {
	err := MailboxFullError(eid)
	return &err
}

func (err *MailboxFullError) Error() string {
	return fmt.Sprintf("Mailbox of %v is full", bpv7.EndpointID(*err).String())
}

type MailboxAttachedError bpv7.EndpointID

func NewMailboxAttachedError(eid bpv7.EndpointID) *MailboxAttachedError {
	err := MailboxAttachedError(eid)
	return &err
}

func (err *MailboxAttachedError) Error() string {
	return fmt.Sprintf("Mailbox of %v already has a subscriber", bpv7.EndpointID(*err).String())
}

// NoRouteError is returned if a bundle is addressed to a node the agent has no link to.
type NoRouteError bpv7.EndpointID

func NewNoRouteError(node bpv7.EndpointID) *NoRouteError {
	err := NoRouteError(node)
	return &err
}

func (err *NoRouteError) Error() string {
	return fmt.Sprintf("No link to node %v", bpv7.EndpointID(*err).String())
}
