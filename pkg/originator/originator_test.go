// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package originator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"pgregory.net/rapid"

	"github.com/dtn7/dtn7-coap/pkg/aap"
	"github.com/dtn7/dtn7-coap/pkg/coap_codec"
	"github.com/dtn7/dtn7-coap/pkg/correlator"
	"github.com/dtn7/dtn7-coap/pkg/id_keeper"
)

// loopback answers every sent request with a 2.05 reply carrying the request's payload.
// If hold is set, replies are only released by flush, in reverse order.
type loopback struct {
	mutex   sync.Mutex
	hold    bool
	held    []*aap.BundleADU
	replies chan *aap.BundleADU
	acks    chan aap.ResponseStatus
	sent    []*coap_codec.Message
}

func newLoopback(hold bool) *loopback {
	return &loopback{
		hold:    hold,
		replies: make(chan *aap.BundleADU, 128),
		acks:    make(chan aap.ResponseStatus, 128),
	}
}

func (lb *loopback) Send(ctx context.Context, adu *aap.BundleADU) (string, error) {
	request, err := coap_codec.Decode(adu.Payload)
	if err != nil {
		return "", err
	}

	reply := coap_codec.Message{
		Type:      message.NonConfirmable,
		Code:      codes.Content,
		MessageID: request.MessageID,
		Token:     request.Token,
		Payload:   request.Payload,
	}
	payload, err := coap_codec.Encode(&reply)
	if err != nil {
		return "", err
	}
	replyADU := aap.NewBundleADU("dtn://b.dtn/snd", "dtn://a.dtn/rec", payload)

	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	lb.sent = append(lb.sent, request)
	if lb.hold {
		lb.held = append(lb.held, replyADU)
	} else {
		lb.replies <- replyADU
	}
	return fmt.Sprintf("dtn://a.dtn/snd-%d", len(lb.sent)), nil
}

func (lb *loopback) flush() {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	for i := len(lb.held) - 1; i >= 0; i-- {
		lb.replies <- lb.held[i]
	}
	lb.held = nil
}

func (lb *loopback) pending() int {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	return len(lb.held)
}

func (lb *loopback) Receive(ctx context.Context) (*aap.BundleADU, error) {
	select {
	case adu := <-lb.replies:
		return adu, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (lb *loopback) Ack(status aap.ResponseStatus) error {
	lb.acks <- status
	return nil
}

func startReceiver(t *testing.T, orig *Originator) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- orig.RunReceiver(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Receiver failed: %v", err)
		}
	})
	return cancel
}

func putRequest(t interface{ Fatal(args ...any) }, value string) *coap_codec.Message {
	request, err := coap_codec.NewRequest(codes.PUT, "coap://localhost/temperature", []byte(value))
	if err != nil {
		t.Fatal(err)
	}
	return request
}

func TestOriginator_Do(t *testing.T) {
	lb := newLoopback(false)
	ids := id_keeper.NewIdKeeper()
	orig := NewOriginator(lb, lb, ids, nil, Config{Destination: "dtn://b.dtn/rec", Timeout: 2 * time.Second})
	startReceiver(t, orig)

	for i := 1; i <= 3; i++ {
		response, err := orig.Do(context.Background(), putRequest(t, strconv.Itoa(i)))
		if err != nil {
			t.Fatal(err)
		}
		if string(response.Payload) != strconv.Itoa(i) {
			t.Fatalf("Request %d got reply %q", i, string(response.Payload))
		}
		if status := <-lb.acks; status != aap.StatusSuccess {
			t.Fatalf("Reply acknowledged with %v", status)
		}
	}

	for i, request := range lb.sent {
		if request.MessageID != uint16(i+1) {
			t.Fatalf("Request %d carries message ID %d", i, request.MessageID)
		}
		if len(request.Token) != id_keeper.TokenLength {
			t.Fatalf("Request %d carries token %v", i, request.Token)
		}
	}
	if ids.InFlight() != 0 || orig.Correlator().Pending() != 0 {
		t.Fatalf("%d IDs and %d slots left over", ids.InFlight(), orig.Correlator().Pending())
	}
}

func TestOriginator_OutOfOrder(t *testing.T) {
	rapid.Check(t, func(tr *rapid.T) {
		lb := newLoopback(true)
		orig := NewOriginator(lb, lb, nil, nil, Config{Destination: "dtn://b.dtn/rec", Timeout: 5 * time.Second})

		ctx, cancel := context.WithCancel(context.Background())
		receiverDone := make(chan error, 1)
		go func() { receiverDone <- orig.RunReceiver(ctx) }()
		defer func() {
			cancel()
			<-receiverDone
		}()

		n := rapid.IntRange(1, 16).Draw(tr, "concurrent requests")
		results := make([]string, n)
		errs := make([]error, n)
		requests := make([]*coap_codec.Message, n)
		for i := range n {
			requests[i] = putRequest(tr, fmt.Sprintf("value-%d", i))
		}

		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				response, err := orig.Do(context.Background(), requests[i])
				errs[i] = err
				if err == nil {
					results[i] = string(response.Payload)
				}
			}()
		}

		deadline := time.Now().Add(5 * time.Second)
		for lb.pending() < n {
			if time.Now().After(deadline) {
				tr.Fatalf("Only %d of %d requests were sent", lb.pending(), n)
			}
			time.Sleep(time.Millisecond)
		}
		lb.flush()
		wg.Wait()

		for i := range n {
			if errs[i] != nil {
				tr.Fatal(errs[i])
			}
			if results[i] != fmt.Sprintf("value-%d", i) {
				tr.Fatalf("Request %d got reply %q", i, results[i])
			}
		}
	})
}

func TestOriginator_UnknownToken(t *testing.T) {
	lb := newLoopback(false)
	orig := NewOriginator(lb, lb, nil, nil, Config{Destination: "dtn://b.dtn/rec"})
	startReceiver(t, orig)

	stray := coap_codec.Message{
		Type:      message.NonConfirmable,
		Code:      codes.Content,
		MessageID: 99,
		Token:     message.Token("stray"),
		Payload:   []byte("21.5"),
	}
	payload, err := coap_codec.Encode(&stray)
	if err != nil {
		t.Fatal(err)
	}
	lb.replies <- aap.NewBundleADU("dtn://b.dtn/snd", "dtn://a.dtn/rec", payload)

	if status := <-lb.acks; status != aap.StatusSuccess {
		t.Fatalf("Stray reply acknowledged with %v", status)
	}
	if orig.Correlator().Pending() != 0 {
		t.Fatal("Stray reply created a slot")
	}
}

func TestOriginator_Undecodable(t *testing.T) {
	lb := newLoopback(false)
	orig := NewOriginator(lb, lb, nil, nil, Config{Destination: "dtn://b.dtn/rec"})
	startReceiver(t, orig)

	lb.replies <- aap.NewBundleADU("dtn://b.dtn/snd", "dtn://a.dtn/rec", []byte{0x01})

	if status := <-lb.acks; status != aap.StatusError {
		t.Fatalf("Undecodable reply acknowledged with %v", status)
	}
}

func TestOriginator_Timeout(t *testing.T) {
	lb := newLoopback(true)
	ids := id_keeper.NewIdKeeper()
	corr := correlator.NewCorrelator()
	orig := NewOriginator(lb, lb, ids, corr, Config{Destination: "dtn://b.dtn/rec", Timeout: 50 * time.Millisecond})

	_, err := orig.Do(context.Background(), putRequest(t, "1"))

	var timeoutErr *correlator.CorrelationTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Expected CorrelationTimeoutError, got %v", err)
	}
	if ids.InFlight() != 0 || corr.Pending() != 0 {
		t.Fatalf("%d IDs and %d slots left over", ids.InFlight(), corr.Pending())
	}
}

type failingOutbound struct{}

func (failingOutbound) Send(ctx context.Context, adu *aap.BundleADU) (string, error) {
	return "", aap.NewAgentOperationFailedError("send", aap.StatusNotFound, "no route")
}

func TestOriginator_SendFailure(t *testing.T) {
	corr := correlator.NewCorrelator()
	orig := NewOriginator(failingOutbound{}, newLoopback(false), nil, corr, Config{Destination: "dtn://c.dtn/rec"})

	_, err := orig.Do(context.Background(), putRequest(t, "1"))

	var opErr *aap.AgentOperationFailedError
	if !errors.As(err, &opErr) || opErr.Status != aap.StatusNotFound {
		t.Fatalf("Expected NOT_FOUND failure, got %v", err)
	}
	if corr.Pending() != 0 {
		t.Fatal("Failed send left a pending slot")
	}
}
