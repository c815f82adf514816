// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package gateway

// State is the position of one inbound ADU in the gateway's processing cycle.
type State int

const (
	// AwaitingBundle is the idle state between two inbound ADUs.
	AwaitingBundle State = iota

	// Decoding is entered once an ADU was received and its payload is parsed as a CoAP request.
	Decoding

	// AddressResolved is reached after the request's Uri-Host was mapped to a network address.
	AddressResolved

	// DispatchingCoAP lasts while the request is exchanged with the target server.
	DispatchingCoAP

	// CoAPResponseReceived is reached once the target server answered.
	CoAPResponseReceived

	// EncodingReply is entered while the response is re-encoded under the original token and message ID.
	EncodingReply

	// ReplySent is reached once the bundle agent accepted the reply ADU.
	ReplySent

	// Acknowledged is the final state of every ADU, successful or not.
	Acknowledged

	// Failed is entered from any state on a per-message error.
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingBundle:
		return "AWAITING_BUNDLE"

	case Decoding:
		return "DECODING"

	case AddressResolved:
		return "ADDRESS_RESOLVED"

	case DispatchingCoAP:
		return "DISPATCHING_COAP"

	case CoAPResponseReceived:
		return "COAP_RESPONSE_RECEIVED"

	case EncodingReply:
		return "ENCODING_REPLY"

	case ReplySent:
		return "REPLY_SENT"

	case Acknowledged:
		return "ACKNOWLEDGED"

	case Failed:
		return "FAILED"

	default:
		return "UNKNOWN"
	}
}

func (s State) Valid() bool {
	return s >= AwaitingBundle && s <= Failed
}

// next reports whether the cycle may move from s to to.
func (s State) next(to State) bool {
	switch {
	case to == Failed:
		return s != Acknowledged && s != AwaitingBundle
	case s == Failed:
		return to == Acknowledged
	case s == ReplySent:
		return to == Acknowledged
	case s == Acknowledged:
		return to == AwaitingBundle
	default:
		return to == s+1
	}
}
