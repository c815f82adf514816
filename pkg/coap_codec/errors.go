// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package coap_codec

import "fmt"

// CodecError is returned if bytes can not be turned into a CoAP message or vice versa.
type CodecError struct {
	message string
	cause   error
}

func NewCodecError(message string, cause error) *CodecError {
	return &CodecError{message: message, cause: cause}
}

func (err *CodecError) Error() string {
	if err.cause == nil {
		return fmt.Sprintf("CoAP codec: %v", err.message)
	}
	return fmt.Sprintf("CoAP codec: %v: %v", err.message, err.cause)
}

func (err *CodecError) Unwrap() error { return err.cause }
