// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package id_keeper

import (
	"sync"
	"time"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// idTuple is a tuple struct for looking up a bundle's ID - based on its source
// node and DTN time part of the creation timestamp.
type idTuple struct {
	source bpv7.EndpointID
	time   bpv7.DtnTime
}

func newIdTuple(bndl *bpv7.Bundle) idTuple {
	return idTuple{
		source: bndl.PrimaryBlock.SourceNode,
		time:   bndl.PrimaryBlock.CreationTimestamp.DtnTime(),
	}
}

// BundleSequencer keeps track of the creation timestamp's sequence number for
// outgoing bundles, so that two bundles created within the same second get distinct BundleIDs.
type BundleSequencer struct {
	data  map[idTuple]uint64
	mutex sync.Mutex
}

func NewBundleSequencer() *BundleSequencer {
	return &BundleSequencer{
		data: make(map[idTuple]uint64),
	}
}

// Update updates the sequencer's state regarding this bundle and sets this
// bundle's sequence number.
func (seq *BundleSequencer) Update(bndl *bpv7.Bundle) {
	var tpl = newIdTuple(bndl)

	seq.mutex.Lock()
	defer seq.mutex.Unlock()
	if state, ok := seq.data[tpl]; ok {
		seq.data[tpl] = state + 1
	} else {
		seq.data[tpl] = 0
	}

	bndl.PrimaryBlock.CreationTimestamp[1] = seq.data[tpl]
}

// Clean removes states which are older than a minute.
func (seq *BundleSequencer) Clean() {
	seq.mutex.Lock()
	defer seq.mutex.Unlock()

	var threshold = bpv7.DtnTimeFromTime(time.Now().Add(-time.Minute))

	for tpl := range seq.data {
		if tpl.time < threshold {
			delete(seq.data, tpl)
		}
	}
}

// Size returns the number of tracked (source, time) tuples.
func (seq *BundleSequencer) Size() int {
	seq.mutex.Lock()
	defer seq.mutex.Unlock()

	return len(seq.data)
}
