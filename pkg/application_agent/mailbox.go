// SPDX-FileCopyrightText: 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package application_agent

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/pkg/bpv7"

	"github.com/dtn7/dtn7-coap/pkg/aap"
)

// DefaultMailboxCapacity is the number of ADUs a mailbox queues before refusing deliveries.
const DefaultMailboxCapacity = 1024

// Mailbox queues the ADUs addressed to one endpoint until a subscriber takes them.
// At most one subscriber can be attached at a time.
type Mailbox struct {
	rwMutex sync.RWMutex

	eid      bpv7.EndpointID
	capacity int
	messages []*aap.BundleADU
	attached bool
	notify   chan struct{}
}

func NewMailbox(eid bpv7.EndpointID, capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}

	mailbox := Mailbox{
		eid:      eid,
		capacity: capacity,
		messages: make([]*aap.BundleADU, 0),
		notify:   make(chan struct{}, 1),
	}
	return &mailbox
}

// Deliver appends an ADU to the mailbox.
// Returns MailboxFullError if the mailbox holds capacity ADUs already.
func (mailbox *Mailbox) Deliver(adu *aap.BundleADU) error {
	log.WithFields(log.Fields{
		"mailbox": mailbox.eid,
		"adu":     adu,
	}).Debug("Delivering ADU to mailbox")

	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	if len(mailbox.messages) >= mailbox.capacity {
		return NewMailboxFullError(mailbox.eid)
	}

	mailbox.messages = append(mailbox.messages, adu)

	select {
	case mailbox.notify <- struct{}{}:
	default:
	}

	return nil
}

// Notify yields a value whenever ADUs were delivered since the last read.
func (mailbox *Mailbox) Notify() <-chan struct{} {
	return mailbox.notify
}

// Peek returns the oldest queued ADU without removing it.
func (mailbox *Mailbox) Peek() (*aap.BundleADU, bool) {
	mailbox.rwMutex.RLock()
	defer mailbox.rwMutex.RUnlock()

	if len(mailbox.messages) == 0 {
		return nil, false
	}
	return mailbox.messages[0], true
}

// Pop removes and returns the oldest queued ADU.
func (mailbox *Mailbox) Pop() (*aap.BundleADU, bool) {
	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	if len(mailbox.messages) == 0 {
		return nil, false
	}

	adu := mailbox.messages[0]
	mailbox.messages[0] = nil
	mailbox.messages = mailbox.messages[1:]
	return adu, true
}

// GetAll returns all queued ADUs in order. If remove is set, then the mailbox will be cleared.
func (mailbox *Mailbox) GetAll(remove bool) []*aap.BundleADU {
	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	adus := make([]*aap.BundleADU, len(mailbox.messages))
	copy(adus, mailbox.messages)

	if remove {
		mailbox.messages = make([]*aap.BundleADU, 0)
	}

	return adus
}

func (mailbox *Mailbox) Len() int {
	mailbox.rwMutex.RLock()
	defer mailbox.rwMutex.RUnlock()

	return len(mailbox.messages)
}

func (mailbox *Mailbox) Clear() {
	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	clear(mailbox.messages)
	mailbox.messages = mailbox.messages[:0]
}

// Attach marks the mailbox as served by a subscriber.
// Returns MailboxAttachedError if another subscriber is attached.
func (mailbox *Mailbox) Attach() error {
	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	if mailbox.attached {
		return NewMailboxAttachedError(mailbox.eid)
	}
	mailbox.attached = true
	return nil
}

func (mailbox *Mailbox) Detach() {
	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	mailbox.attached = false
}

func (mailbox *Mailbox) Attached() bool {
	mailbox.rwMutex.RLock()
	defer mailbox.rwMutex.RUnlock()

	return mailbox.attached
}
