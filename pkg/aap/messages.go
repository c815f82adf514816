// SPDX-FileCopyrightText: 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package aap

import "fmt"

// VersionIndicator is the first byte an agent writes on every new connection.
const VersionIndicator byte = 0x2F

type MessageType uint8

const (
	MsgTypeWelcome          MessageType = 1
	MsgTypeConnectionConfig MessageType = 2
	MsgTypeResponse         MessageType = 3
	MsgTypeBundleADU        MessageType = 4
	MsgTypeKeepalive        MessageType = 5
)

func (mt MessageType) String() string {
	switch mt {
	case MsgTypeWelcome:
		return "Welcome"
	case MsgTypeConnectionConfig:
		return "ConnectionConfig"
	case MsgTypeResponse:
		return "Response"
	case MsgTypeBundleADU:
		return "BundleADU"
	case MsgTypeKeepalive:
		return "Keepalive"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(mt))
	}
}

type ResponseStatus uint8

const (
	StatusUnspecified    ResponseStatus = 0
	StatusSuccess        ResponseStatus = 1
	StatusError          ResponseStatus = 2
	StatusAck            ResponseStatus = 3
	StatusInvalidRequest ResponseStatus = 4
	StatusNotFound       ResponseStatus = 5
	StatusUnauthorized   ResponseStatus = 6
)

func (rs ResponseStatus) String() string {
	switch rs {
	case StatusSuccess:
		return "SUCCESS"
	case StatusError:
		return "ERROR"
	case StatusAck:
		return "ACK"
	case StatusInvalidRequest:
		return "INVALID_REQUEST"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "UNSPECIFIED"
	}
}

// ADUFlags carry per-bundle processing hints.
type ADUFlags uint8

const (
	FlagNone        ADUFlags = 0
	FlagBPDU        ADUFlags = 1 << 0
	FlagWithBDMAuth ADUFlags = 1 << 1
)

type Message struct {
	Type MessageType
}

// Welcome is sent by the agent right after the version indicator.
type Welcome struct {
	Message
	NodeID string
}

// ConnectionConfig binds a connection to an agent ID and selects its role.
type ConnectionConfig struct {
	Message
	EndpointID       string
	Secret           string
	IsSubscriber     bool
	KeepaliveSeconds uint32
}

type Response struct {
	Message
	Status   ResponseStatus
	BundleID string
	Error    string
}

// BundleADU is an application data unit, the payload of one bundle plus its addressing.
type BundleADU struct {
	Message
	SourceEID      string
	DestinationEID string
	PayloadLength  uint64
	Flags          ADUFlags
	Payload        []byte
}

type Keepalive struct {
	Message
}

func NewWelcome(nodeID string) *Welcome {
	return &Welcome{Message: Message{Type: MsgTypeWelcome}, NodeID: nodeID}
}

func NewResponse(status ResponseStatus) *Response {
	return &Response{Message: Message{Type: MsgTypeResponse}, Status: status}
}

func NewKeepalive() *Keepalive {
	return &Keepalive{Message: Message{Type: MsgTypeKeepalive}}
}

// NewBundleADU creates an ADU for payload with a matching PayloadLength.
func NewBundleADU(source, destination string, payload []byte) *BundleADU {
	return &BundleADU{
		Message:        Message{Type: MsgTypeBundleADU},
		SourceEID:      source,
		DestinationEID: destination,
		PayloadLength:  uint64(len(payload)),
		Payload:        payload,
	}
}

// CheckValid verifies that the declared payload length matches the payload.
func (adu *BundleADU) CheckValid() error {
	if adu.PayloadLength != uint64(len(adu.Payload)) {
		return fmt.Errorf("ADU declares %d payload bytes but carries %d", adu.PayloadLength, len(adu.Payload))
	}
	return nil
}

func (adu *BundleADU) String() string {
	return fmt.Sprintf("ADU(%v -> %v, %d bytes)", adu.SourceEID, adu.DestinationEID, len(adu.Payload))
}
