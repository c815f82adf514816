// SPDX-FileCopyrightText: 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package application_agent

import (
	"sync"

	"github.com/dtn7/dtn7-go/pkg/bpv7"

	"github.com/dtn7/dtn7-coap/pkg/aap"
)

type registration struct {
	secret  string
	mailbox *Mailbox
}

// MailboxBank holds the registered endpoints of an agent together with their secrets and mailboxes.
// Registrations outlive the connections that created them, so ADUs keep being queued while no subscriber is
// attached. A registered endpoint can only be claimed again with its secret or the administrative secret.
type MailboxBank struct {
	rwMutex sync.RWMutex

	adminSecret     string
	mailboxCapacity int
	registeredIDs   []bpv7.EndpointID
	registrations   map[bpv7.EndpointID]*registration
}

func NewMailboxBank(adminSecret string, mailboxCapacity int) *MailboxBank {
	bank := MailboxBank{
		adminSecret:     adminSecret,
		mailboxCapacity: mailboxCapacity,
		registeredIDs:   make([]bpv7.EndpointID, 0),
		registrations:   make(map[bpv7.EndpointID]*registration),
	}
	return &bank
}

// Register creates a registration for eid or claims an existing one.
// Returns InvalidSecretError if eid is registered with another secret and secret is not the admin secret.
func (bank *MailboxBank) Register(eid bpv7.EndpointID, secret string) (*Mailbox, error) {
	bank.rwMutex.Lock()
	defer bank.rwMutex.Unlock()

	if reg, ok := bank.registrations[eid]; ok {
		if reg.secret != secret && (bank.adminSecret == "" || secret != bank.adminSecret) {
			return nil, NewInvalidSecretError(eid)
		}
		return reg.mailbox, nil
	}

	reg := registration{
		secret:  secret,
		mailbox: NewMailbox(eid, bank.mailboxCapacity),
	}
	bank.registeredIDs = append(bank.registeredIDs, eid)
	bank.registrations[eid] = &reg

	return reg.mailbox, nil
}

func (bank *MailboxBank) Unregister(eid bpv7.EndpointID) error {
	bank.rwMutex.Lock()
	defer bank.rwMutex.Unlock()

	if _, ok := bank.registrations[eid]; !ok {
		return NewNoSuchIDError(eid)
	}

	remainingIDs := make([]bpv7.EndpointID, 0, len(bank.registeredIDs))
	for _, reid := range bank.registeredIDs {
		if reid != eid {
			remainingIDs = append(remainingIDs, reid)
		}
	}
	bank.registeredIDs = remainingIDs

	delete(bank.registrations, eid)

	return nil
}

func (bank *MailboxBank) RegisteredIDs() []bpv7.EndpointID {
	bank.rwMutex.RLock()
	defer bank.rwMutex.RUnlock()

	ids := make([]bpv7.EndpointID, len(bank.registeredIDs))
	copy(ids, bank.registeredIDs)
	return ids
}

func (bank *MailboxBank) GetMailbox(eid bpv7.EndpointID) (*Mailbox, error) {
	bank.rwMutex.RLock()
	defer bank.rwMutex.RUnlock()

	reg, ok := bank.registrations[eid]
	if !ok {
		return nil, NewNoSuchIDError(eid)
	}

	return reg.mailbox, nil
}

// Deliver queues an ADU in the mailbox of its destination.
func (bank *MailboxBank) Deliver(adu *aap.BundleADU) error {
	destination, err := bpv7.NewEndpointID(adu.DestinationEID)
	if err != nil {
		return err
	}

	bank.rwMutex.RLock()
	defer bank.rwMutex.RUnlock()

	reg, ok := bank.registrations[destination]
	if !ok {
		return NewNoSuchIDError(destination)
	}
	return reg.mailbox.Deliver(adu)
}
