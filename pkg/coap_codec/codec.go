// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package coap_codec converts CoAP messages to and from the bytes carried as bundle payloads.
//
// The wire format is CoAP over UDP (RFC 7252) as implemented by go-coap's UDP coder. A decoded Message is a plain
// value which owns all of its memory, so it can cross goroutines and outlive the pooled go-coap message it was
// read from.
package coap_codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	"github.com/plgd-dev/go-coap/v3/udp/coder"
)

// DefaultPort is used if a request carries no Uri-Port option.
const DefaultPort uint16 = 5683

// Message is a decoded CoAP message.
type Message struct {
	Type      message.Type
	Code      codes.Code
	MessageID uint16
	Token     message.Token
	Options   message.Options
	Payload   []byte
}

// Decode parses a CoAP message from its UDP wire format.
// Returns a CodecError for malformed input.
func Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, NewCodecError("empty payload", nil)
	}

	p := pool.NewMessage(context.Background())
	defer p.Reset()

	if _, err := p.UnmarshalWithDecoder(coder.DefaultCoder, data); err != nil {
		return nil, NewCodecError("malformed message", err)
	}

	return FromPool(p)
}

// Encode serialises msg into its UDP wire format.
func Encode(msg *Message) ([]byte, error) {
	p := pool.NewMessage(context.Background())
	defer p.Reset()

	msg.Fill(p)

	data, err := p.MarshalWithEncoder(coder.DefaultCoder)
	if err != nil {
		return nil, NewCodecError("failed to encode message", err)
	}
	return data, nil
}

// FromPool copies a go-coap message into a Message.
func FromPool(p *pool.Message) (*Message, error) {
	payload, err := p.ReadBody()
	if err != nil {
		return nil, NewCodecError("failed to read body", err)
	}

	msg := Message{
		Type:      p.Type(),
		Code:      p.Code(),
		MessageID: uint16(p.MessageID()),
		Token:     append(message.Token(nil), p.Token()...),
		Options:   copyOptions(p.Options()),
		Payload:   append([]byte(nil), payload...),
	}
	return &msg, nil
}

// Fill writes msg's header, options and payload into a go-coap message.
func (msg *Message) Fill(p *pool.Message) {
	p.SetType(msg.Type)
	p.SetCode(msg.Code)
	p.SetMessageID(int32(msg.MessageID))
	p.SetToken(msg.Token)
	p.ResetOptionsTo(msg.Options)
	if len(msg.Payload) > 0 {
		p.SetBody(bytes.NewReader(msg.Payload))
	}
}

func copyOptions(opts message.Options) message.Options {
	if len(opts) == 0 {
		return nil
	}
	out := make(message.Options, 0, len(opts))
	for _, opt := range opts {
		out = append(out, message.Option{ID: opt.ID, Value: append([]byte(nil), opt.Value...)})
	}
	return out
}

// IsRequest reports whether the message carries a request method code (class 0, non-empty).
func (msg *Message) IsRequest() bool {
	return msg.Code != codes.Empty && msg.Code>>5 == 0
}

// Host returns the Uri-Host option.
func (msg *Message) Host() (string, error) {
	host, err := msg.Options.GetString(message.URIHost)
	if err != nil {
		return "", NewCodecError("request carries no Uri-Host", err)
	}
	return host, nil
}

// Port returns the Uri-Port option, or DefaultPort if there is none.
func (msg *Message) Port() uint16 {
	port, err := msg.Options.GetUint32(message.URIPort)
	if err != nil || port == 0 || port > 0xFFFF {
		return DefaultPort
	}
	return uint16(port)
}

// Path returns the request path assembled from the Uri-Path options, "/" if there are none.
func (msg *Message) Path() string {
	path, err := msg.Options.Path()
	if err != nil || path == "" {
		return "/"
	}
	return path
}

// Queries returns the Uri-Query options.
func (msg *Message) Queries() []string {
	queries, err := msg.Options.Queries()
	if err != nil {
		return nil
	}
	return queries
}

// ContentFormat returns the Content-Format option if there is one.
func (msg *Message) ContentFormat() (message.MediaType, bool) {
	mt, err := msg.Options.ContentFormat()
	if err != nil {
		return 0, false
	}
	return mt, true
}

// Target returns host and port a request is addressed to.
func (msg *Message) Target() (string, uint16, error) {
	if !msg.IsRequest() {
		return "", 0, NewCodecError(fmt.Sprintf("message with code %v is no request", msg.Code), nil)
	}
	host, err := msg.Host()
	if err != nil {
		return "", 0, err
	}
	return host, msg.Port(), nil
}

func (msg *Message) String() string {
	return fmt.Sprintf("CoAP(%v %v mid=%d token=%v path=%v payload=%dB)",
		msg.Type, msg.Code, msg.MessageID, msg.Token, msg.Path(), len(msg.Payload))
}

// IsCodecError reports whether err is or wraps a CodecError.
func IsCodecError(err error) bool {
	var codecErr *CodecError
	return errors.As(err, &codecErr)
}
