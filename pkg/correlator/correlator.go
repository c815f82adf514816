// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package correlator matches CoAP replies arriving over the bundle channel to the requests awaiting them.
// The token is the only correlation key; message IDs are not unique across the DTN.
package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/plgd-dev/go-coap/v3/message"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-coap/pkg/coap_codec"
	"github.com/dtn7/dtn7-coap/pkg/metrics"
)

type slot struct {
	token      message.Token
	registered time.Time
	completed  bool
	response   chan *coap_codec.Message
}

// Correlator is a table of pending requests keyed by token. It is safe for concurrent use.
type Correlator struct {
	mutex   sync.Mutex
	pending map[string]*slot

	scheduler gocron.Scheduler
}

func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[string]*slot),
	}
}

// Register creates a pending slot for token. It must be called before the request is sent,
// so that an early reply is not dropped.
func (c *Correlator) Register(token message.Token) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := string(token)
	if _, ok := c.pending[key]; ok {
		return ErrTokenInUse
	}

	c.pending[key] = &slot{
		token:      token,
		registered: time.Now(),
		response:   make(chan *coap_codec.Message, 1),
	}
	metrics.CorrelatorPending.Inc()
	return nil
}

// Await blocks until the reply for token arrives, timeout elapses or ctx is done.
// The slot is freed afterwards in any case. A reply arriving later is dropped.
func (c *Correlator) Await(ctx context.Context, token message.Token, timeout time.Duration) (*coap_codec.Message, error) {
	c.mutex.Lock()
	s, ok := c.pending[string(token)]
	c.mutex.Unlock()
	if !ok {
		return nil, ErrUnknownToken
	}
	defer c.Cancel(token)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case response := <-s.response:
		return response, nil

	case <-timer.C:
		return nil, NewCorrelationTimeoutError(token, timeout)

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver hands a decoded reply to the slot of its token.
// Returns false if the reply was dropped, because its token is unknown or was already answered.
func (c *Correlator) Deliver(msg *coap_codec.Message) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	s, ok := c.pending[string(msg.Token)]
	if !ok || s.completed {
		metrics.CorrelatorDroppedTotal.Inc()
		log.WithFields(log.Fields{
			"token": msg.Token,
			"known": ok,
		}).Debug("Dropping reply without pending request")
		return false
	}

	s.completed = true
	s.response <- msg
	return true
}

// Cancel frees the slot of token, if any.
func (c *Correlator) Cancel(token message.Token) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := string(token)
	if _, ok := c.pending[key]; ok {
		delete(c.pending, key)
		metrics.CorrelatorPending.Dec()
	}
}

// Pending returns the number of registered slots.
func (c *Correlator) Pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.pending)
}

// Sweep frees all slots registered before threshold and returns their number.
// It catches registrations whose requester vanished without calling Await or Cancel.
func (c *Correlator) Sweep(threshold time.Time) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for key, s := range c.pending {
		if s.registered.Before(threshold) {
			delete(c.pending, key)
			metrics.CorrelatorPending.Dec()
			removed++
		}
	}
	return removed
}

// StartSweeper periodically frees slots older than maxAge.
func (c *Correlator) StartSweeper(interval, maxAge time.Duration) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if removed := c.Sweep(time.Now().Add(-maxAge)); removed > 0 {
				log.WithField("removed", removed).Info("Removed stale correlation slots")
			}
		}),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return err
	}

	scheduler.Start()
	c.scheduler = scheduler
	return nil
}

// Stop ends the sweeper, if it runs.
func (c *Correlator) Stop() error {
	if c.scheduler == nil {
		return nil
	}
	return c.scheduler.Shutdown()
}
