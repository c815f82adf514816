// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package correlator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"pgregory.net/rapid"

	"github.com/dtn7/dtn7-coap/pkg/coap_codec"
)

func reply(token message.Token, payload string) *coap_codec.Message {
	return &coap_codec.Message{
		Type:    message.Acknowledgement,
		Code:    codes.Content,
		Token:   token,
		Payload: []byte(payload),
	}
}

func TestCorrelator_OutOfOrder(t *testing.T) {
	rapid.Check(t, func(tr *rapid.T) {
		c := NewCorrelator()

		n := rapid.IntRange(1, 32).Draw(tr, "number of requests")
		tokens := make([]message.Token, n)
		for i := range n {
			tokens[i] = message.Token(fmt.Sprintf("token-%03d", i))
			if err := c.Register(tokens[i]); err != nil {
				tr.Fatal(err)
			}
		}

		order := rapid.Permutation(tokens).Draw(tr, "delivery order")
		for _, token := range order {
			if !c.Deliver(reply(token, string(token))) {
				tr.Fatalf("Reply for %v was dropped", token)
			}
		}

		for _, token := range tokens {
			msg, err := c.Await(context.Background(), token, time.Second)
			if err != nil {
				tr.Fatal(err)
			}
			if string(msg.Payload) != string(token) {
				tr.Fatalf("Token %v received reply for %v", token, string(msg.Payload))
			}
		}

		if c.Pending() != 0 {
			tr.Fatalf("%v slots left after all replies were awaited", c.Pending())
		}
	})
}

func TestCorrelator_AwaitBlocks(t *testing.T) {
	c := NewCorrelator()
	token := message.Token("abcdefgh")
	if err := c.Register(token); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		c.Deliver(reply(token, "late"))
	}()

	msg, err := c.Await(context.Background(), token, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Payload) != "late" {
		t.Fatalf("Unexpected payload %q", msg.Payload)
	}
}

func TestCorrelator_UnknownToken(t *testing.T) {
	c := NewCorrelator()

	if c.Deliver(reply(message.Token("unknown"), "")) {
		t.Fatal("Reply with unknown token was accepted")
	}
	if _, err := c.Await(context.Background(), message.Token("unknown"), time.Second); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("Expected ErrUnknownToken, got %v", err)
	}
}

func TestCorrelator_Duplicate(t *testing.T) {
	c := NewCorrelator()
	token := message.Token("dup")

	if err := c.Register(token); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(token); !errors.Is(err, ErrTokenInUse) {
		t.Fatalf("Expected ErrTokenInUse, got %v", err)
	}

	if !c.Deliver(reply(token, "first")) {
		t.Fatal("First reply was dropped")
	}
	if c.Deliver(reply(token, "second")) {
		t.Fatal("Second reply for the same token was accepted")
	}
}

func TestCorrelator_Timeout(t *testing.T) {
	c := NewCorrelator()
	token := message.Token("slow")
	if err := c.Register(token); err != nil {
		t.Fatal(err)
	}

	_, err := c.Await(context.Background(), token, 20*time.Millisecond)
	var timeoutErr *CorrelationTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Expected CorrelationTimeoutError, got %v", err)
	}

	if c.Deliver(reply(token, "too late")) {
		t.Fatal("Reply after timeout was accepted")
	}
	if c.Pending() != 0 {
		t.Fatal("Slot was not freed after timeout")
	}
}

func TestCorrelator_Cancel(t *testing.T) {
	c := NewCorrelator()
	token := message.Token("cancel")
	if err := c.Register(token); err != nil {
		t.Fatal(err)
	}

	c.Cancel(token)
	if c.Deliver(reply(token, "")) {
		t.Fatal("Reply for cancelled token was accepted")
	}
	if err := c.Register(token); err != nil {
		t.Fatalf("Token could not be registered again after Cancel: %v", err)
	}
}

func TestCorrelator_Sweep(t *testing.T) {
	c := NewCorrelator()
	if err := c.Register(message.Token("old")); err != nil {
		t.Fatal(err)
	}

	if removed := c.Sweep(time.Now().Add(-time.Hour)); removed != 0 {
		t.Fatalf("Sweep removed %v fresh slots", removed)
	}
	if removed := c.Sweep(time.Now().Add(time.Second)); removed != 1 {
		t.Fatalf("Sweep removed %v slots, expected 1", removed)
	}
}

func TestCorrelator_Sweeper(t *testing.T) {
	c := NewCorrelator()
	if err := c.StartSweeper(50*time.Millisecond, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Stop() }()

	if err := c.Register(message.Token("abandoned")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Pending() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Sweeper did not remove abandoned slot")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
