// SPDX-FileCopyrightText: 2021 Alvar Penning
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux

package mtcp

import (
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const peerDialTimeout = time.Second

type socketOption struct {
	level int
	name  int
	value int
}

// peerLossOptions let the kernel notice a vanished peer within a few seconds, see tcp(7).
// Unacknowledged data is given up on after two seconds; an idle connection is probed once after five.
var peerLossOptions = []socketOption{
	{unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1},
	{unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, 5},
	{unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, 3},
	{unix.IPPROTO_TCP, unix.TCP_KEEPCNT, 1},
	{unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, 2000},
}

func setPeerLossOptions(_, _ string, rawConn syscall.RawConn) error {
	var optErr error
	err := rawConn.Control(func(fd uintptr) {
		for _, opt := range peerLossOptions {
			if optErr = unix.SetsockoptInt(int(fd), opt.level, opt.name, opt.value); optErr != nil {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return optErr
}

// dialPeer connects to a peer's MTCP server.
// Go's own keepalive setup is disabled, as it would override peerLossOptions.
func dialPeer(address string) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout:   peerDialTimeout,
		KeepAlive: -1,
		Control:   setPeerLossOptions,
	}
	return dialer.Dial("tcp", address)
}
