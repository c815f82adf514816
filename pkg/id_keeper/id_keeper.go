// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package id_keeper hands out the identifiers an originating node needs: CoAP message IDs, request tokens
// and the sequence numbers of outgoing bundles' creation timestamps.
package id_keeper

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// MaxMessageID is the largest message ID handed out before wrapping around to 1.
const MaxMessageID uint16 = 65535

// TokenLength is the length of the tokens returned by NextToken.
const TokenLength = 8

// ErrIdentifiersExhausted is returned by Acquire if every message ID is still in flight.
var ErrIdentifiersExhausted = errors.New("all message IDs are in flight")

// IdKeeper keeps track of the message IDs and tokens of outgoing requests.
// Message IDs start at 1, increase by one and wrap from MaxMessageID back to 1; 0 is never issued.
type IdKeeper struct {
	mutex sync.Mutex

	last     uint16
	inFlight map[uint16]struct{}

	tokenPrefix  [4]byte
	tokenCounter uint32
}

// NewIdKeeper creates an IdKeeper whose tokens carry a random per-instance prefix.
func NewIdKeeper() *IdKeeper {
	idk := IdKeeper{
		inFlight: make(map[uint16]struct{}),
	}

	if _, err := rand.Read(idk.tokenPrefix[:]); err != nil {
		log.WithError(err).Warn("Failed to draw random token prefix, tokens only carry a counter")
	}

	return &idk
}

func (idk *IdKeeper) advance() uint16 {
	if idk.last == MaxMessageID {
		idk.last = 0
	}
	idk.last++
	return idk.last
}

// Next returns the next message ID of the sequence.
func (idk *IdKeeper) Next() uint16 {
	idk.mutex.Lock()
	defer idk.mutex.Unlock()

	return idk.advance()
}

// Acquire returns the next message ID which is not currently in flight and marks it as in flight.
// The ID stays reserved until Release is called for it.
// Returns ErrIdentifiersExhausted if all MaxMessageID identifiers are reserved.
func (idk *IdKeeper) Acquire() (uint16, error) {
	idk.mutex.Lock()
	defer idk.mutex.Unlock()

	for range MaxMessageID {
		id := idk.advance()
		if _, busy := idk.inFlight[id]; !busy {
			idk.inFlight[id] = struct{}{}
			return id, nil
		}
	}

	return 0, ErrIdentifiersExhausted
}

// Release returns a message ID obtained from Acquire.
func (idk *IdKeeper) Release(id uint16) {
	idk.mutex.Lock()
	defer idk.mutex.Unlock()

	delete(idk.inFlight, id)
}

// InFlight returns the number of reserved message IDs.
func (idk *IdKeeper) InFlight() int {
	idk.mutex.Lock()
	defer idk.mutex.Unlock()

	return len(idk.inFlight)
}

// NextToken returns a fresh TokenLength-byte request token.
// Tokens of one IdKeeper only repeat after 2^32 calls.
func (idk *IdKeeper) NextToken() []byte {
	idk.mutex.Lock()
	idk.tokenCounter++
	counter := idk.tokenCounter
	idk.mutex.Unlock()

	token := make([]byte, TokenLength)
	copy(token, idk.tokenPrefix[:])
	binary.BigEndian.PutUint32(token[4:], counter)
	return token
}
