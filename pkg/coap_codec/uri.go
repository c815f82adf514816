// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package coap_codec

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
)

// NewRequest builds a confirmable request for a coap:// URI.
// The URI's host, port, path and query end up in the Uri-Host, Uri-Port, Uri-Path and Uri-Query options.
// Message ID and token are left empty for the sender to assign.
func NewRequest(code codes.Code, rawURI string, payload []byte) (*Message, error) {
	target, err := url.Parse(rawURI)
	if err != nil {
		return nil, NewCodecError("invalid URI", err)
	}
	if target.Scheme != "coap" {
		return nil, NewCodecError("URI scheme must be coap, not "+strconv.Quote(target.Scheme), nil)
	}
	if target.Hostname() == "" {
		return nil, NewCodecError("URI has no host", nil)
	}

	p := pool.NewMessage(context.Background())
	defer p.Reset()

	p.SetOptionString(message.URIHost, target.Hostname())
	if portStr := target.Port(); portStr != "" {
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, NewCodecError("invalid port", err)
		}
		if uint16(port) != DefaultPort {
			p.SetOptionUint32(message.URIPort, uint32(port))
		}
	}

	if path := target.EscapedPath(); path != "" && path != "/" {
		unescaped, err := url.PathUnescape(path)
		if err != nil {
			return nil, NewCodecError("invalid path", err)
		}
		if err := p.SetPath(unescaped); err != nil {
			return nil, NewCodecError("invalid path", err)
		}
	}

	if target.RawQuery != "" {
		for _, query := range strings.Split(target.RawQuery, "&") {
			if query != "" {
				p.AddQuery(query)
			}
		}
	}

	opts, err := FromPool(p)
	if err != nil {
		return nil, err
	}

	msg := Message{
		Type:    message.Confirmable,
		Code:    code,
		Options: opts.Options,
		Payload: append([]byte(nil), payload...),
	}
	return &msg, nil
}
