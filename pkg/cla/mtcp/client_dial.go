// SPDX-FileCopyrightText: 2021 Alvar Penning
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux

package mtcp

import (
	"net"
	"time"
)

const peerDialTimeout = time.Second

// dialPeer connects to a peer's MTCP server.
// Only the portable keepalive settings are available here; a lost peer shows up after about ten seconds.
func dialPeer(address string) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout: peerDialTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     5 * time.Second,
			Interval: 3 * time.Second,
			Count:    2,
		},
	}
	return dialer.Dial("tcp", address)
}
