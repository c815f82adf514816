// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mtcp

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

func generateBundle(t *rapid.T, i int) bpv7.Bundle {
	bndl, err := bpv7.Builder().
		Source("dtn://sender/snd").
		Destination("dtn://mtcpcla/rec").
		CreationTimestampNow().
		Lifetime("10m").
		PayloadBlock(rapid.SliceOfN(rapid.Byte(), 1, 512).Draw(t, fmt.Sprintf("payload %v", i))).
		Build()
	if err != nil {
		t.Fatalf("Error during bundle creation %s", err)
	}
	bndl.PrimaryBlock.CreationTimestamp[1] = uint64(i)
	return bndl
}

func payloadOf(t rapid.TB, bndl *bpv7.Bundle) []byte {
	payloadBlock, err := bndl.PayloadBlock()
	if err != nil {
		t.Fatal(err)
	}
	return payloadBlock.Value.(*bpv7.PayloadBlock).Data()
}

func TestSendReceive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numberOfClients := rapid.IntRange(1, 8).Draw(t, "Number of Clients")
		numberOfBundles := rapid.IntRange(1, 100).Draw(t, "Number of Bundles")

		bundles := make([]bpv7.Bundle, numberOfBundles)
		for i := 0; i < numberOfBundles; i++ {
			bundles[i] = generateBundle(t, i)
		}

		var wgReceive sync.WaitGroup
		wgReceive.Add(numberOfBundles)
		var receivedMutex sync.Mutex
		received := make(map[string][]byte, numberOfBundles)

		receiveFunc := func(bndl *bpv7.Bundle) error {
			receivedMutex.Lock()
			received[bndl.ID().String()] = payloadOf(t, bndl)
			receivedMutex.Unlock()
			wgReceive.Done()
			return nil
		}

		// Server
		serv := NewMTCPServer("127.0.0.1:0", bpv7.MustNewEndpointID("dtn://mtcpcla/"), receiveFunc)
		if err := serv.Start(); err != nil {
			t.Fatal(err)
		}

		clients := make([]*MTCPClient, numberOfClients)
		for i := 0; i < numberOfClients; i++ {
			client := NewMTCPClient(serv.Address(), serv.GetEndpointID())
			if err := client.Activate(); err != nil {
				t.Fatal(fmt.Errorf("starting Client failed: %v", err))
			}
			clients[i] = client
		}

		var wgSend sync.WaitGroup
		wgSend.Add(numberOfBundles)
		errs := make(chan error, numberOfBundles)
		for i := 0; i < numberOfBundles; i++ {
			sender := clients[rapid.IntRange(0, len(clients)-1).Draw(t, fmt.Sprintf("Sender %v", i))]
			go func(i int, sender *MTCPClient) {
				defer wgSend.Done()
				if err := sender.Forward(&bundles[i]); err != nil {
					errs <- err
				}
			}(i, sender)
		}
		wgSend.Wait()
		close(errs)
		for err := range errs {
			t.Fatal(err)
		}
		wgReceive.Wait()

		for i := range bundles {
			payload, ok := received[bundles[i].ID().String()]
			if !ok {
				t.Fatalf("Bundle %v was not received", bundles[i].ID())
			}
			if !bytes.Equal(payload, payloadOf(t, &bundles[i])) {
				t.Fatalf("Payload of bundle %v differs", bundles[i].ID())
			}
		}

		for _, client := range clients {
			if err := client.Close(); err != nil {
				t.Fatal(err)
			}
		}

		if err := serv.Close(); err != nil {
			t.Fatal(err)
		}
	})
}

func TestReconnect(t *testing.T) {
	received := make(chan *bpv7.Bundle, 1)
	receiveFunc := func(bndl *bpv7.Bundle) error {
		received <- bndl
		return nil
	}

	serv := NewMTCPServer("127.0.0.1:0", bpv7.MustNewEndpointID("dtn://mtcpcla/"), receiveFunc)
	if err := serv.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = serv.Close() }()

	client := NewMTCPClient(serv.Address(), serv.GetEndpointID())
	defer func() { _ = client.Close() }()

	bndl, err := bpv7.Builder().
		Source("dtn://sender/snd").
		Destination("dtn://mtcpcla/rec").
		CreationTimestampNow().
		Lifetime("10m").
		PayloadBlock([]byte("hello")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	// Forward dials on its own, also after the connection was dropped.
	for i := 0; i < 2; i++ {
		if err := client.Forward(&bndl); err != nil {
			t.Fatal(err)
		}

		select {
		case got := <-received:
			if !bytes.Equal(payloadOf(t, got), []byte("hello")) {
				t.Fatal("Payload differs")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Bundle was not received")
		}

		_ = client.Close()
	}
}
