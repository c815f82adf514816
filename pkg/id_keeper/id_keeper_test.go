// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package id_keeper

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"pgregory.net/rapid"
)

func TestIdKeeper_Sequence(t *testing.T) {
	rapid.Check(t, func(tr *rapid.T) {
		idk := NewIdKeeper()
		idk.last = rapid.Uint16().Draw(tr, "start")

		previous := idk.last
		steps := rapid.IntRange(1, 500).Draw(tr, "steps")
		for range steps {
			id := idk.Next()
			if id == 0 {
				tr.Fatal("IdKeeper issued message ID 0")
			}

			expected := previous + 1
			if previous == MaxMessageID {
				expected = 1
			}
			if id != expected {
				tr.Fatalf("Expected message ID %d after %d, got %d", expected, previous, id)
			}
			previous = id
		}
	})
}

func TestIdKeeper_Wrap(t *testing.T) {
	idk := NewIdKeeper()

	if id := idk.Next(); id != 1 {
		t.Fatalf("First message ID should be 1, got %d", id)
	}

	idk.last = MaxMessageID - 1
	if id := idk.Next(); id != MaxMessageID {
		t.Fatalf("Expected %d, got %d", MaxMessageID, id)
	}
	if id := idk.Next(); id != 1 {
		t.Fatalf("Expected wrap to 1, got %d", id)
	}
}

func TestIdKeeper_Concurrent(t *testing.T) {
	const workers = 50
	const perWorker = 200

	idk := NewIdKeeper()
	results := make(chan uint16, workers*perWorker)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for range perWorker {
				results <- idk.Next()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint16]bool)
	for id := range results {
		if seen[id] {
			t.Fatalf("Message ID %d issued twice", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("Expected %d IDs, got %d", workers*perWorker, len(seen))
	}
}

func TestIdKeeper_AcquireSkipsInFlight(t *testing.T) {
	idk := NewIdKeeper()

	first, err := idk.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	// force the sequence around so that it hits the reserved ID again
	idk.last = first - 1
	if first == 1 {
		idk.last = MaxMessageID
	}

	second, err := idk.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Fatalf("Acquire handed out in-flight ID %d", first)
	}

	idk.Release(first)
	idk.Release(second)
	if n := idk.InFlight(); n != 0 {
		t.Fatalf("Expected no IDs in flight, got %d", n)
	}
}

func TestIdKeeper_Exhausted(t *testing.T) {
	idk := NewIdKeeper()
	for range MaxMessageID {
		if _, err := idk.Acquire(); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := idk.Acquire(); !errors.Is(err, ErrIdentifiersExhausted) {
		t.Fatalf("Expected ErrIdentifiersExhausted, got %v", err)
	}

	idk.Release(42)
	id, err := idk.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if id != 42 {
		t.Fatalf("Expected released ID 42, got %d", id)
	}
}

func TestIdKeeper_NextToken(t *testing.T) {
	rapid.Check(t, func(tr *rapid.T) {
		idk := NewIdKeeper()
		n := rapid.IntRange(2, 200).Draw(tr, "tokens")

		seen := make(map[string]bool, n)
		for range n {
			token := idk.NextToken()
			if len(token) != TokenLength {
				tr.Fatalf("Token has length %d", len(token))
			}
			if !bytes.Equal(token[:4], idk.tokenPrefix[:]) {
				tr.Fatal("Token does not carry the instance prefix")
			}
			if seen[string(token)] {
				tr.Fatalf("Token %x issued twice", token)
			}
			seen[string(token)] = true
		}
	})
}
