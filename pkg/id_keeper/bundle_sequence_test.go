// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package id_keeper

import (
	"testing"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

func buildBundle(t *testing.T, source string) bpv7.Bundle {
	bndl, err := bpv7.Builder().
		Source(source).
		Destination("dtn://b.dtn/rec").
		CreationTimestampNow().
		Lifetime("24h").
		PayloadBlock([]byte("payload")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	return bndl
}

func TestBundleSequencer_Update(t *testing.T) {
	seq := NewBundleSequencer()

	first := buildBundle(t, "dtn://a.dtn/snd")
	second := first
	other := buildBundle(t, "dtn://c.dtn/snd")
	other.PrimaryBlock.CreationTimestamp = first.PrimaryBlock.CreationTimestamp

	seq.Update(&first)
	seq.Update(&second)
	seq.Update(&other)

	if n := first.PrimaryBlock.CreationTimestamp.SequenceNumber(); n != 0 {
		t.Fatalf("First bundle should get sequence number 0, got %d", n)
	}
	if n := second.PrimaryBlock.CreationTimestamp.SequenceNumber(); n != 1 {
		t.Fatalf("Second bundle should get sequence number 1, got %d", n)
	}
	if n := other.PrimaryBlock.CreationTimestamp.SequenceNumber(); n != 0 {
		t.Fatalf("Bundle from another source should get sequence number 0, got %d", n)
	}
	if first.ID() == second.ID() {
		t.Fatal("Bundles share a BundleID after Update")
	}
}

func TestBundleSequencer_Clean(t *testing.T) {
	seq := NewBundleSequencer()

	old := buildBundle(t, "dtn://a.dtn/snd")
	old.PrimaryBlock.CreationTimestamp = bpv7.NewCreationTimestamp(bpv7.DtnTimeEpoch, 0)
	fresh := buildBundle(t, "dtn://a.dtn/snd")

	seq.Update(&old)
	seq.Update(&fresh)
	if seq.Size() != 2 {
		t.Fatalf("Expected two tracked tuples, got %d", seq.Size())
	}

	seq.Clean()
	if seq.Size() != 1 {
		t.Fatalf("Expected one tracked tuple after Clean, got %d", seq.Size())
	}
}
