// SPDX-FileCopyrightText: 2025 Markus Sommer
// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package aap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxMessageLength bounds the size of a single frame.
const MaxMessageLength = 64 << 20

// WriteMessage sends msg as one frame: 8-byte big-endian length followed by its msgpack encoding.
func WriteMessage(w *bufio.Writer, msg any) error {
	msgBytes, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}

	msgLenBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(msgLenBytes, uint64(len(msgBytes)))

	if _, err = w.Write(msgLenBytes); err != nil {
		return err
	}
	if _, err = w.Write(msgBytes); err != nil {
		return err
	}
	return w.Flush()
}

// ReadMessage reads one frame and returns its type together with the raw msgpack bytes,
// which can then be decoded into the matching typed struct with Unmarshal.
func ReadMessage(r *bufio.Reader) (MessageType, []byte, error) {
	msgLenBytes := make([]byte, 8)
	if _, err := io.ReadFull(r, msgLenBytes); err != nil {
		return 0, nil, err
	}

	msgLen := binary.BigEndian.Uint64(msgLenBytes)
	if msgLen > MaxMessageLength {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds limit of %d bytes", msgLen, MaxMessageLength)
	}

	msgBytes := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msgBytes); err != nil {
		return 0, nil, err
	}

	message := Message{}
	if err := msgpack.Unmarshal(msgBytes, &message); err != nil {
		return 0, nil, err
	}

	return message.Type, msgBytes, nil
}

// Unmarshal decodes the raw bytes of a frame into v.
func Unmarshal(msgBytes []byte, v any) error {
	return msgpack.Unmarshal(msgBytes, v)
}
